package api

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/labweave/labweave/internal/middleware"
	"github.com/labweave/labweave/internal/models"
)

// ContentHashHeader carries the SHA-256 of a content response body.
const ContentHashHeader = "X-Content-SHA256"

// versionNumber reads and checks the :number parameter, writing a 400 on failure.
func versionNumber(c *gin.Context) (int, bool) {
	n, err := parseVersionNumber(c.Param("number"))
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())

		return 0, false
	}

	return n, true
}

// AddVersion handles POST /api/v1/documents/:id/versions (multipart).
func (h *DocumentHandler) AddVersion(c *gin.Context) {
	id, ok := documentID(c)
	if !ok {
		return
	}

	file, err := readUpload(c, h.maxUploadBytes)
	if err != nil {
		respondServiceError(c, h.log, err, "version.add")

		return
	}

	user := middleware.UserID(c)

	v, err := h.svc.AddVersion(c.Request.Context(), id, file, c.PostForm("comment"), user)
	if err != nil {
		respondServiceError(c, h.log, err, "version.add")

		return
	}

	h.log.WithFields(logrus.Fields{
		"action":       "version.add",
		"document_id":  id,
		"version":      v.Number,
		"content_hash": v.ContentHash,
		"user_id":      user,
	}).Info("audit")

	c.JSON(http.StatusCreated, v)
}

// ListVersions handles GET /api/v1/documents/:id/versions.
func (h *DocumentHandler) ListVersions(c *gin.Context) {
	id, ok := documentID(c)
	if !ok {
		return
	}

	versions, err := h.svc.ListVersions(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.log, err, "version.list")

		return
	}

	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

// GetVersion handles GET /api/v1/documents/:id/versions/:number.
func (h *DocumentHandler) GetVersion(c *gin.Context) {
	id, ok := documentID(c)
	if !ok {
		return
	}

	n, ok := versionNumber(c)
	if !ok {
		return
	}

	v, err := h.svc.GetVersion(c.Request.Context(), id, n)
	if err != nil {
		respondServiceError(c, h.log, err, "version.get")

		return
	}

	c.JSON(http.StatusOK, v)
}

// Restore handles POST /api/v1/documents/:id/versions/:number/restore.
// The JSON body is optional.
func (h *DocumentHandler) Restore(c *gin.Context) {
	id, ok := documentID(c)
	if !ok {
		return
	}

	n, ok := versionNumber(c)
	if !ok {
		return
	}

	var req models.RestoreRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")

			return
		}
	}

	user := middleware.UserID(c)

	v, err := h.svc.RestoreVersion(c.Request.Context(), id, n, req, user)
	if err != nil {
		respondServiceError(c, h.log, err, "version.restore")

		return
	}

	h.log.WithFields(logrus.Fields{
		"action":        "version.restore",
		"document_id":   id,
		"version":       v.Number,
		"restored_from": n,
		"user_id":       user,
	}).Info("audit")

	c.JSON(http.StatusCreated, v)
}

// VersionContent handles GET /api/v1/documents/:id/versions/:number/content.
func (h *DocumentHandler) VersionContent(c *gin.Context) {
	id, ok := documentID(c)
	if !ok {
		return
	}

	n, ok := versionNumber(c)
	if !ok {
		return
	}

	v, data, err := h.svc.OpenVersion(c.Request.Context(), id, n)
	if err != nil {
		respondServiceError(c, h.log, err, "version.content")

		return
	}

	writeContent(c, v, data)
}

// CurrentContent handles GET /api/v1/documents/:id/content.
func (h *DocumentHandler) CurrentContent(c *gin.Context) {
	id, ok := documentID(c)
	if !ok {
		return
	}

	v, data, err := h.svc.OpenCurrent(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.log, err, "document.content")

		return
	}

	writeContent(c, v, data)
}

func writeContent(c *gin.Context, v *models.Version, data []byte) {
	contentType := v.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	c.Header(ContentHashHeader, v.ContentHash)
	c.Header("X-Version-Number", strconv.Itoa(v.Number))
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": v.Filename}))
	c.Data(http.StatusOK, contentType, data)
}
