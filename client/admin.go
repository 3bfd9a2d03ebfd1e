package client

import (
	"context"
	"net/url"
	"strconv"
)

// AdminService handles operational endpoints.
type AdminService struct {
	c *Client
}

// Resync replays ledger state into the graph. An empty documentID resyncs
// every document. It returns the number of documents queued.
func (s *AdminService) Resync(ctx context.Context, documentID string) (int, error) {
	var body any
	if documentID != "" {
		body = map[string]string{"document_id": documentID}
	}
	var resp struct {
		Resynced int `json:"resynced"`
	}
	if err := s.c.post(ctx, "/api/v1/admin/resync", body, &resp); err != nil {
		return 0, err
	}
	return resp.Resynced, nil
}

// CollectGarbage deletes content no version references.
func (s *AdminService) CollectGarbage(ctx context.Context, dryRun bool) (*GCResult, error) {
	path := "/api/v1/admin/gc?" + url.Values{"dry_run": {strconv.FormatBool(dryRun)}}.Encode()
	var res GCResult
	if err := s.c.post(ctx, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
