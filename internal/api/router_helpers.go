package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/labweave/labweave/internal/middleware"
	"github.com/labweave/labweave/internal/models"
	"github.com/labweave/labweave/internal/ws"
)

func wsHandler(appCtx context.Context, log *logrus.Logger, hub *ws.Hub, corsOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// CORS origins are reused as WebSocket origin patterns.
		conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
			OriginPatterns:       corsOrigins,
			CompressionMode:      websocket.CompressionContextTakeover,
			CompressionThreshold: 128,
		})
		if err != nil {
			log.WithError(err).Error("websocket accept failed")

			return
		}

		client := ws.NewClient(hub, conn, middleware.UserID(c))
		client.SetFilter(ws.Filter{
			DocumentID: c.Query("document_id"),
			ProjectID:  c.Query("project_id"),
		})
		hub.Register(client)

		// Derive a context that cancels when either the server shuts down or the request ends.
		wsCtx, wsCancel := context.WithCancel(appCtx)
		go func() {
			select {
			case <-c.Request.Context().Done():
				wsCancel()
			case <-wsCtx.Done():
			}
		}()

		go client.WritePump(wsCtx)
		client.ReadPump(wsCtx)
		wsCancel()
	}
}

// maxPaginationLimit caps the maximum number of items per page.
const maxPaginationLimit = 1000

// maxPaginationOffset caps the maximum offset for paginated queries.
const maxPaginationOffset = 100000

func parseInt(s string, fallback int) int {
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return fallback
	}

	if v > maxPaginationLimit {
		return maxPaginationLimit
	}

	return v
}

func parseOffset(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0
	}

	if v > maxPaginationOffset {
		return maxPaginationOffset
	}

	return v
}

// validatePathID checks that a path parameter ID is non-empty and within length limits.
func validatePathID(id string) error {
	if id == "" {
		return fmt.Errorf("id must not be empty")
	}
	if len(id) > 255 {
		return fmt.Errorf("id exceeds maximum length of 255")
	}
	return nil
}

// parseVersionNumber parses a positive version number path parameter.
func parseVersionNumber(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("version number must be a positive integer")
	}

	return n, nil
}

// parseDepth parses an optional depth query value. Empty means 0 (service default).
func parseDepth(s string) (int, error) {
	if s == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, models.Invalid("depth", "must be an integer")
	}

	return n, nil
}

// splitTags turns a comma-separated form value into a tag list.
func splitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	return strings.Split(s, ",")
}

// parseMetadata decodes an optional JSON object form value.
func parseMetadata(s string) (map[string]any, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil || m == nil {
		return nil, models.Invalid("metadata", "must be a JSON object")
	}

	return m, nil
}

// readUpload reads the multipart "file" field. Reads stop one byte past
// limit so oversized uploads are detected without buffering them whole.
func readUpload(c *gin.Context, limit int64) (models.FileUpload, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		if isBodyTooLarge(err) {
			return models.FileUpload{}, err
		}

		return models.FileUpload{}, models.ErrFieldRequired("file")
	}

	return readFileHeader(fh, limit)
}

func readFileHeader(fh *multipart.FileHeader, limit int64) (models.FileUpload, error) {
	if fh.Size > limit {
		return models.FileUpload{}, fmt.Errorf("file %q: %w", fh.Filename, models.ErrTooLarge)
	}

	f, err := fh.Open()
	if err != nil {
		return models.FileUpload{}, fmt.Errorf("opening upload: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return models.FileUpload{}, fmt.Errorf("reading upload: %w", err)
	}

	if int64(len(data)) > limit {
		return models.FileUpload{}, fmt.Errorf("file %q: %w", fh.Filename, models.ErrTooLarge)
	}

	return models.FileUpload{
		Filename: fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		Data:     data,
	}, nil
}
