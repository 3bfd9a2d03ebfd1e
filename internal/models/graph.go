package models

import (
	"strconv"
	"strings"
	"time"
)

// Node types known to the graph.
const (
	NodeUser            = "User"
	NodeProject         = "Project"
	NodeExperiment      = "Experiment"
	NodeSample          = "Sample"
	NodeProtocol        = "Protocol"
	NodeDocument        = "Document"
	NodeDocumentVersion = "DocumentVersion"
	NodePaper           = "Paper"
	NodeGene            = "Gene"
	NodeProtein         = "Protein"
	NodeOrganism        = "Organism"
	NodeChemical        = "Chemical"
	NodeMethod          = "Method"
	NodeDataset         = "Dataset"
)

// Relation types known to the graph.
const (
	RelCreatedBy      = "CREATED_BY"
	RelOwns           = "OWNS"
	RelParticipatesIn = "PARTICIPATES_IN"
	RelContains       = "CONTAINS"
	RelBelongsTo      = "BELONGS_TO"
	RelUses           = "USES"
	RelReferences     = "REFERENCES"
	RelCites          = "CITES"
	RelDerivedFrom    = "DERIVED_FROM"
	RelAnalyzes       = "ANALYZES"
	RelProduces       = "PRODUCES"
	RelRelatedTo      = "RELATED_TO"
	RelVersionOf      = "VERSION_OF"
	RelTaggedWith     = "TAGGED_WITH"
	RelAnnotates      = "ANNOTATES"
	RelDescribes      = "DESCRIBES"
)

var nodeTypes = map[string]bool{
	NodeUser: true, NodeProject: true, NodeExperiment: true, NodeSample: true,
	NodeProtocol: true, NodeDocument: true, NodeDocumentVersion: true, NodePaper: true,
	NodeGene: true, NodeProtein: true, NodeOrganism: true, NodeChemical: true,
	NodeMethod: true, NodeDataset: true,
}

var relationTypes = map[string]bool{
	RelCreatedBy: true, RelOwns: true, RelParticipatesIn: true, RelContains: true,
	RelBelongsTo: true, RelUses: true, RelReferences: true, RelCites: true,
	RelDerivedFrom: true, RelAnalyzes: true, RelProduces: true, RelRelatedTo: true,
	RelVersionOf: true, RelTaggedWith: true, RelAnnotates: true, RelDescribes: true,
}

// IsNodeType reports whether t is a known node type.
func IsNodeType(t string) bool { return nodeTypes[t] }

// IsRelationType reports whether r is a known relation type.
func IsRelationType(r string) bool { return relationTypes[r] }

// StableNodeID derives the graph id of an entity from its type and source id.
func StableNodeID(nodeType, sourceID string) string {
	return strings.ToLower(nodeType) + ":" + sourceID
}

// DocumentNodeID is the graph id of a document.
func DocumentNodeID(documentID string) string {
	return StableNodeID(NodeDocument, documentID)
}

// VersionNodeID is the graph id of one version of a document.
func VersionNodeID(documentID string, number int) string {
	return "version:" + documentID + ":" + strconv.Itoa(number)
}

// Node is a vertex in the graph projection.
type Node struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// ScoredNode pairs a Node with its search score.
type ScoredNode struct {
	Node
	Score float64 `json:"score"`
}

// NodeUpsert creates a node or merges properties into an existing one with the same id.
// A Placeholder upsert never overwrites an existing node's label or properties;
// it only fills in keys the node does not have yet.
type NodeUpsert struct {
	ID          string
	Type        string
	Label       string
	Properties  map[string]any
	Placeholder bool
}

// Edge is a directed, typed relationship between two nodes.
type Edge struct {
	Source     string         `json:"source"`
	Target     string         `json:"target"`
	Relation   string         `json:"relation"`
	Properties map[string]any `json:"properties"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// EdgeUpsert creates an edge or merges properties into the existing (source, target, relation) edge.
type EdgeUpsert struct {
	Source     string
	Target     string
	Relation   string
	Properties map[string]any
}

// Direction selects which edges of a node a neighbor query follows.
type Direction string

// Neighbor directions.
const (
	DirectionOut  Direction = "out"
	DirectionIn   Direction = "in"
	DirectionBoth Direction = "both"
)

// ParseDirection maps a query value to a Direction; empty means both.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(s)) {
	case "", DirectionBoth:
		return DirectionBoth, nil
	case DirectionOut:
		return DirectionOut, nil
	case DirectionIn:
		return DirectionIn, nil
	default:
		return "", Invalid("direction", "must be one of: out in both")
	}
}

// NeighborQuery configures a neighbor lookup.
type NeighborQuery struct {
	Direction Direction
	Relation  string
	Limit     int
}

// NeighborResult holds nodes directly connected to a given node plus their edges.
type NeighborResult struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// TraverseResult holds a subgraph discovered by BFS traversal.
type TraverseResult struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Path is an ordered walk from a start node to an end node.
type Path struct {
	Nodes  []Node `json:"nodes"`
	Edges  []Edge `json:"edges"`
	Length int    `json:"length"`
}

// SearchQuery configures a graph search.
type SearchQuery struct {
	Query           string         `json:"query" validate:"max=1000"`
	NodeTypes       []string       `json:"node_types,omitempty" validate:"max=20"`
	PropertyFilters map[string]any `json:"property_filters,omitempty"`
	Limit           int            `json:"limit" validate:"min=0,max=100"`
}

// MaxEdgesPerQuery bounds the edges one EdgesOf call may return.
const MaxEdgesPerQuery = 200_000

// Search limits.
const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
)

// Validate normalizes and checks the query.
func (q *SearchQuery) Validate() error {
	q.Query = strings.TrimSpace(q.Query)

	if q.Limit == 0 {
		q.Limit = DefaultSearchLimit
	}

	if err := validateStruct(q); err != nil {
		return err
	}

	for _, t := range q.NodeTypes {
		if !IsNodeType(t) {
			return Invalid("node_types", "unknown node type "+strconv.Quote(t))
		}
	}

	return nil
}

// Terms splits the query into lower-cased search terms.
func (q *SearchQuery) Terms() []string {
	return strings.Fields(strings.ToLower(q.Query))
}
