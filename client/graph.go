package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// GraphService handles read queries over the knowledge graph.
type GraphService struct {
	c *Client
}

func nodePath(kind, id string) string {
	return "/api/v1/graph/" + kind + "/" + url.PathEscape(id)
}

// GetNode returns a node by id, e.g. "document:<uuid>" or "user:alice".
func (s *GraphService) GetNode(ctx context.Context, id string) (*Node, error) {
	var n Node
	if err := s.c.get(ctx, nodePath("nodes", id), nil, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// DeleteNode removes a node and its edges.
func (s *GraphService) DeleteNode(ctx context.Context, id string) error {
	return s.c.del(ctx, nodePath("nodes", id), nil)
}

// Neighbors returns nodes and edges directly connected to a node.
func (s *GraphService) Neighbors(ctx context.Context, id string, opts *NeighborOptions) (*Subgraph, error) {
	params := url.Values{}
	if opts != nil {
		if opts.Direction != "" {
			params.Set("direction", opts.Direction)
		}
		if opts.Relation != "" {
			params.Set("relation", opts.Relation)
		}
		if opts.Limit > 0 {
			params.Set("limit", strconv.Itoa(opts.Limit))
		}
	}
	var resp Subgraph
	if err := s.c.get(ctx, nodePath("neighbors", id), params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Path finds the shortest path between two nodes. maxDepth 0 uses the server default.
func (s *GraphService) Path(ctx context.Context, fromID, toID string, maxDepth int) (*Path, error) {
	params := url.Values{}
	if maxDepth > 0 {
		params.Set("max_depth", strconv.Itoa(maxDepth))
	}
	path := fmt.Sprintf("/api/v1/graph/path/%s/%s", url.PathEscape(fromID), url.PathEscape(toID))
	var resp Path
	if err := s.c.get(ctx, path, params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Related returns everything within depth hops of a node.
func (s *GraphService) Related(ctx context.Context, id string, depth int) (*Subgraph, error) {
	params := url.Values{}
	if depth > 0 {
		params.Set("depth", strconv.Itoa(depth))
	}
	var resp Subgraph
	if err := s.c.get(ctx, nodePath("related", id), params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Search matches nodes by label and properties.
func (s *GraphService) Search(ctx context.Context, query string, opts *SearchOptions) ([]ScoredNode, error) {
	params := url.Values{}
	params.Set("q", query)
	if opts != nil {
		for _, t := range opts.Types {
			params.Add("type", t)
		}
		for k, v := range opts.Properties {
			params.Set("prop."+k, v)
		}
		if opts.Limit > 0 {
			params.Set("limit", strconv.Itoa(opts.Limit))
		}
	}
	var resp struct {
		Results []ScoredNode `json:"results"`
		Total   int          `json:"total"`
	}
	if err := s.c.get(ctx, "/api/v1/graph/search", params, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}
