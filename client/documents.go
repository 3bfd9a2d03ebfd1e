package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
)

// DocumentService handles document CRUD and links.
type DocumentService struct {
	c *Client
}

type documentListResponse struct {
	Documents []Document `json:"documents"`
	HasMore   bool       `json:"has_more"`
}

func documentPath(id string) string {
	return "/api/v1/documents/" + url.PathEscape(id)
}

// Create uploads file as version 1 of a new document.
func (s *DocumentService) Create(ctx context.Context, req *CreateDocumentRequest, file File) (*CreateResult, error) {
	fields := map[string]string{
		"title":         req.Title,
		"description":   req.Description,
		"document_type": req.DocumentType,
		"project_id":    req.ProjectID,
		"experiment_id": req.ExperimentID,
		"tags":          strings.Join(req.Tags, ","),
	}
	if len(req.Metadata) > 0 {
		raw, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
		fields["metadata"] = string(raw)
	}

	var resp CreateResult
	if err := s.c.upload(ctx, "/api/v1/documents", fields, file, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// List returns documents with optional filtering and pagination.
func (s *DocumentService) List(ctx context.Context, opts *DocumentListOptions) ([]Document, bool, error) {
	params := url.Values{}
	if opts != nil {
		for k, v := range map[string]string{
			"project_id":    opts.ProjectID,
			"experiment_id": opts.ExperimentID,
			"document_type": opts.DocumentType,
			"tag":           opts.Tag,
		} {
			if v != "" {
				params.Set(k, v)
			}
		}
		if opts.Limit > 0 {
			params.Set("limit", strconv.Itoa(opts.Limit))
		}
		if opts.Offset > 0 {
			params.Set("offset", strconv.Itoa(opts.Offset))
		}
	}
	var resp documentListResponse
	if err := s.c.get(ctx, "/api/v1/documents", params, &resp); err != nil {
		return nil, false, err
	}
	return resp.Documents, resp.HasMore, nil
}

// Get returns a single document.
func (s *DocumentService) Get(ctx context.Context, id string) (*Document, error) {
	var doc Document
	if err := s.c.get(ctx, documentPath(id), nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Update patches document metadata. It never creates a version.
func (s *DocumentService) Update(ctx context.Context, id string, req *UpdateDocumentRequest) (*Document, error) {
	var doc Document
	if err := s.c.patch(ctx, documentPath(id), req, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Delete removes a document and its version history.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	return s.c.del(ctx, documentPath(id), nil)
}

// Link connects the document to another graph entity. The edge appears
// once projection catches up.
func (s *DocumentService) Link(ctx context.Context, id string, req *LinkRequest) error {
	return s.c.post(ctx, documentPath(id)+"/links", req, nil)
}

// Content streams the current version's content into w.
func (s *DocumentService) Content(ctx context.Context, id string, w io.Writer) (*ContentInfo, error) {
	return s.c.download(ctx, documentPath(id)+"/content", w)
}
