package client

import (
	"context"
	"fmt"
	"io"
)

// VersionService handles a document's version history.
type VersionService struct {
	c *Client
}

func versionPath(id string, n int) string {
	return fmt.Sprintf("%s/versions/%d", documentPath(id), n)
}

// Add uploads file as the next version of a document.
func (s *VersionService) Add(ctx context.Context, id string, file File, comment string) (*Version, error) {
	var v Version
	if err := s.c.upload(ctx, documentPath(id)+"/versions", map[string]string{"comment": comment}, file, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// List returns every version of a document, oldest first.
func (s *VersionService) List(ctx context.Context, id string) ([]Version, error) {
	var resp struct {
		Versions []Version `json:"versions"`
	}
	if err := s.c.get(ctx, documentPath(id)+"/versions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Versions, nil
}

// Get returns one version.
func (s *VersionService) Get(ctx context.Context, id string, n int) (*Version, error) {
	var v Version
	if err := s.c.get(ctx, versionPath(id, n), nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Restore appends a new version whose content is that of version n.
func (s *VersionService) Restore(ctx context.Context, id string, n int, comment string) (*Version, error) {
	var body any
	if comment != "" {
		body = map[string]string{"comment": comment}
	}
	var v Version
	if err := s.c.post(ctx, versionPath(id, n)+"/restore", body, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Content streams version n's content into w.
func (s *VersionService) Content(ctx context.Context, id string, n int, w io.Writer) (*ContentInfo, error) {
	return s.c.download(ctx, versionPath(id, n)+"/content", w)
}
