package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/labweave/labweave/internal/middleware"
)

// AdminHandler serves administrative endpoints.
type AdminHandler struct {
	resync ResyncService
	ledger DocumentService
	log    *logrus.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(resync ResyncService, ledger DocumentService, log *logrus.Logger) *AdminHandler {
	return &AdminHandler{resync: resync, ledger: ledger, log: log}
}

type resyncRequest struct {
	DocumentID string `json:"document_id"`
}

// Resync handles POST /api/v1/admin/resync. With a document_id it replays
// one document, otherwise every document.
func (h *AdminHandler) Resync(c *gin.Context) {
	var req resyncRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")

			return
		}
	}

	fields := logrus.Fields{"action": "admin.resync", "user_id": middleware.UserID(c)}

	if req.DocumentID != "" {
		if err := validatePathID(req.DocumentID); err != nil {
			respondError(c, http.StatusBadRequest, ErrCodeValidationError, "document_id: "+err.Error())

			return
		}

		if err := h.resync.Resync(c.Request.Context(), req.DocumentID); err != nil {
			respondServiceError(c, h.log, err, "admin.resync")

			return
		}

		fields["document_id"] = req.DocumentID
		h.log.WithFields(fields).Info("audit")

		c.JSON(http.StatusAccepted, gin.H{"resynced": 1})

		return
	}

	n, err := h.resync.ResyncAll(c.Request.Context())
	if err != nil {
		respondServiceError(c, h.log, err, "admin.resync")

		return
	}

	fields["documents"] = n
	h.log.WithFields(fields).Info("audit")

	c.JSON(http.StatusAccepted, gin.H{"resynced": n})
}

// CollectGarbage handles POST /api/v1/admin/gc?dry_run=true.
func (h *AdminHandler) CollectGarbage(c *gin.Context) {
	dryRun, err := strconv.ParseBool(c.DefaultQuery("dry_run", "false"))
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeValidationError, "dry_run: must be a boolean")

		return
	}

	res, err := h.ledger.CollectGarbage(c.Request.Context(), dryRun)
	if err != nil {
		respondServiceError(c, h.log, err, "admin.gc")

		return
	}

	h.log.WithFields(logrus.Fields{
		"action":   "admin.gc",
		"user_id":  middleware.UserID(c),
		"orphaned": res.Orphaned,
		"deleted":  res.Deleted,
		"dry_run":  res.DryRun,
	}).Info("audit")

	c.JSON(http.StatusOK, res)
}
