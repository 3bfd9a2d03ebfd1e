package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/labweave/labweave/internal/middleware"
	"github.com/labweave/labweave/internal/models"
)

// propertyFilterPrefix marks search query parameters that filter on a node property.
const propertyFilterPrefix = "prop."

// GraphHandler serves graph query endpoints.
type GraphHandler struct {
	svc GraphQueryService
	log *logrus.Logger
}

// NewGraphHandler creates a GraphHandler with the given service and logger.
func NewGraphHandler(svc GraphQueryService, log *logrus.Logger) *GraphHandler {
	return &GraphHandler{svc: svc, log: log}
}

// nodeID reads and checks the named path parameter, writing a 400 on failure.
func nodeID(c *gin.Context, param string) (string, bool) {
	id := c.Param(param)
	if err := validatePathID(id); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, param+": "+err.Error())

		return "", false
	}

	return id, true
}

// GetNode handles GET /api/v1/graph/nodes/:id.
func (h *GraphHandler) GetNode(c *gin.Context) {
	id, ok := nodeID(c, "id")
	if !ok {
		return
	}

	node, err := h.svc.GetNode(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.log, err, "graph.node")

		return
	}

	c.JSON(http.StatusOK, node)
}

// DeleteNode handles DELETE /api/v1/graph/nodes/:id.
func (h *GraphHandler) DeleteNode(c *gin.Context) {
	id, ok := nodeID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.DeleteNode(c.Request.Context(), id); err != nil {
		respondServiceError(c, h.log, err, "graph.delete_node")

		return
	}

	h.log.WithFields(logrus.Fields{
		"action":  "graph.delete_node",
		"node_id": id,
		"user_id": middleware.UserID(c),
	}).Info("audit")

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// Neighbors handles GET /api/v1/graph/neighbors/:id.
func (h *GraphHandler) Neighbors(c *gin.Context) {
	id, ok := nodeID(c, "id")
	if !ok {
		return
	}

	dir, err := models.ParseDirection(c.Query("direction"))
	if err != nil {
		respondServiceError(c, h.log, err, "graph.neighbors")

		return
	}

	q := models.NeighborQuery{
		Direction: dir,
		Relation:  c.Query("relation"),
		Limit:     parseInt(c.DefaultQuery("limit", "100"), 100),
	}

	result, err := h.svc.Neighbors(c.Request.Context(), id, q)
	if err != nil {
		respondServiceError(c, h.log, err, "graph.neighbors")

		return
	}

	c.JSON(http.StatusOK, result)
}

// Path handles GET /api/v1/graph/path/:from/:to.
func (h *GraphHandler) Path(c *gin.Context) {
	from, ok := nodeID(c, "from")
	if !ok {
		return
	}

	to, ok := nodeID(c, "to")
	if !ok {
		return
	}

	maxDepth, err := parseDepth(c.Query("max_depth"))
	if err != nil {
		respondServiceError(c, h.log, err, "graph.path")

		return
	}

	path, err := h.svc.FindPath(c.Request.Context(), from, to, maxDepth)
	if err != nil {
		respondServiceError(c, h.log, err, "graph.path")

		return
	}

	c.JSON(http.StatusOK, path)
}

// Related handles GET /api/v1/graph/related/:id.
func (h *GraphHandler) Related(c *gin.Context) {
	id, ok := nodeID(c, "id")
	if !ok {
		return
	}

	depth, err := parseDepth(c.Query("depth"))
	if err != nil {
		respondServiceError(c, h.log, err, "graph.related")

		return
	}

	result, err := h.svc.Related(c.Request.Context(), id, depth)
	if err != nil {
		respondServiceError(c, h.log, err, "graph.related")

		return
	}

	c.JSON(http.StatusOK, result)
}

// Search handles GET /api/v1/graph/search.
func (h *GraphHandler) Search(c *gin.Context) {
	q := models.SearchQuery{
		Query:           c.Query("q"),
		NodeTypes:       nodeTypes(c.QueryArray("type")),
		PropertyFilters: propertyFilters(c.Request.URL.Query()),
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, ErrCodeValidationError, "limit: must be an integer")

			return
		}

		q.Limit = limit
	}

	results, err := h.svc.Search(c.Request.Context(), q)
	if err != nil {
		respondServiceError(c, h.log, err, "graph.search")

		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results, "total": len(results)})
}

// nodeTypes accepts both repeated and comma-separated type parameters.
func nodeTypes(values []string) []string {
	var out []string

	for _, v := range values {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				out = append(out, t)
			}
		}
	}

	return out
}

// propertyFilters collects prop.<key>=<value> parameters. Values that parse
// as JSON scalars (numbers, booleans, quoted strings) match typed
// properties; anything else matches as a plain string.
func propertyFilters(values map[string][]string) map[string]any {
	var filters map[string]any

	for key, vals := range values {
		name, ok := strings.CutPrefix(key, propertyFilterPrefix)
		if !ok || name == "" || len(vals) == 0 {
			continue
		}

		if filters == nil {
			filters = make(map[string]any)
		}

		filters[name] = filterValue(vals[0])
	}

	return filters
}

func filterValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		switch v.(type) {
		case float64, bool, string:
			return v
		}
	}

	return raw
}
