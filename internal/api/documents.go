package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/labweave/labweave/internal/middleware"
	"github.com/labweave/labweave/internal/models"
)

// DocumentHandler serves document and version endpoints.
type DocumentHandler struct {
	svc            DocumentService
	log            *logrus.Logger
	maxUploadBytes int64
}

// NewDocumentHandler creates a DocumentHandler. maxUploadBytes bounds the
// size of a single uploaded file.
func NewDocumentHandler(svc DocumentService, log *logrus.Logger, maxUploadBytes int64) *DocumentHandler {
	return &DocumentHandler{svc: svc, log: log, maxUploadBytes: maxUploadBytes}
}

// documentID reads and checks the :id parameter, writing a 400 on failure.
func documentID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if err := validatePathID(id); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())

		return "", false
	}

	return id, true
}

// Create handles POST /api/v1/documents (multipart).
func (h *DocumentHandler) Create(c *gin.Context) {
	file, err := readUpload(c, h.maxUploadBytes)
	if err != nil {
		respondServiceError(c, h.log, err, "document.create")

		return
	}

	metadata, err := parseMetadata(c.PostForm("metadata"))
	if err != nil {
		respondServiceError(c, h.log, err, "document.create")

		return
	}

	req := models.CreateDocumentRequest{
		Title:        c.PostForm("title"),
		Description:  c.PostForm("description"),
		DocumentType: c.PostForm("document_type"),
		ProjectID:    c.PostForm("project_id"),
		ExperimentID: c.PostForm("experiment_id"),
		Tags:         splitTags(c.PostForm("tags")),
		Metadata:     metadata,
		CreatedBy:    middleware.UserID(c),
	}

	doc, version, err := h.svc.CreateDocument(c.Request.Context(), req, file)
	if err != nil {
		respondServiceError(c, h.log, err, "document.create")

		return
	}

	h.log.WithFields(logrus.Fields{
		"action":       "document.create",
		"document_id":  doc.ID,
		"content_hash": version.ContentHash,
		"user_id":      req.CreatedBy,
	}).Info("audit")

	c.JSON(http.StatusCreated, gin.H{"document": doc, "version": version})
}

// List handles GET /api/v1/documents.
func (h *DocumentHandler) List(c *gin.Context) {
	filter := models.DocumentFilter{
		ProjectID:    c.Query("project_id"),
		ExperimentID: c.Query("experiment_id"),
		DocumentType: c.Query("document_type"),
		Tag:          c.Query("tag"),
	}
	limit := parseInt(c.DefaultQuery("limit", "50"), 50)
	offset := parseOffset(c.DefaultQuery("offset", "0"))

	docs, hasMore, err := h.svc.ListDocuments(c.Request.Context(), filter, limit, offset)
	if err != nil {
		respondServiceError(c, h.log, err, "document.list")

		return
	}

	c.JSON(http.StatusOK, gin.H{"documents": docs, "has_more": hasMore})
}

// Get handles GET /api/v1/documents/:id.
func (h *DocumentHandler) Get(c *gin.Context) {
	id, ok := documentID(c)
	if !ok {
		return
	}

	doc, err := h.svc.GetDocument(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.log, err, "document.get")

		return
	}

	c.JSON(http.StatusOK, doc)
}

// Update handles PATCH /api/v1/documents/:id.
func (h *DocumentHandler) Update(c *gin.Context) {
	id, ok := documentID(c)
	if !ok {
		return
	}

	var req models.UpdateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if isBodyTooLarge(err) {
			respondServiceError(c, h.log, err, "document.update")

			return
		}

		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")

		return
	}

	doc, err := h.svc.UpdateDocument(c.Request.Context(), id, req)
	if err != nil {
		respondServiceError(c, h.log, err, "document.update")

		return
	}

	h.log.WithFields(logrus.Fields{
		"action":      "document.update",
		"document_id": id,
		"user_id":     middleware.UserID(c),
	}).Info("audit")

	c.JSON(http.StatusOK, doc)
}

// Delete handles DELETE /api/v1/documents/:id.
func (h *DocumentHandler) Delete(c *gin.Context) {
	id, ok := documentID(c)
	if !ok {
		return
	}

	if err := h.svc.DeleteDocument(c.Request.Context(), id); err != nil {
		respondServiceError(c, h.log, err, "document.delete")

		return
	}

	h.log.WithFields(logrus.Fields{
		"action":      "document.delete",
		"document_id": id,
		"user_id":     middleware.UserID(c),
	}).Info("audit")

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// Link handles POST /api/v1/documents/:id/links.
func (h *DocumentHandler) Link(c *gin.Context) {
	id, ok := documentID(c)
	if !ok {
		return
	}

	var req models.LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")

		return
	}

	if err := h.svc.LinkDocument(c.Request.Context(), id, req); err != nil {
		respondServiceError(c, h.log, err, "document.link")

		return
	}

	h.log.WithFields(logrus.Fields{
		"action":      "document.link",
		"document_id": id,
		"relation":    req.Relation,
		"target":      models.StableNodeID(req.TargetType, req.TargetID),
	}).Info("audit")

	c.JSON(http.StatusAccepted, gin.H{"linked": true})
}
