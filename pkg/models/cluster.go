package models

import "time"

// Parameters is the algorithm configuration stored with the cluster state.
// It is echoed back unchanged on every rebuild unless explicitly overridden.
type Parameters struct {
	SimilarityThreshold     float64  `json:"similarity_threshold" yaml:"similarity_threshold"`
	MinGroupSize            int      `json:"min_group_size" yaml:"min_group_size"`
	MinGlobalClusters       int      `json:"min_global_clusters" yaml:"min_global_clusters"`
	MinAssignmentSimilarity float64  `json:"min_assignment_similarity" yaml:"min_assignment_similarity"`
	UseTwoPhase             bool     `json:"use_two_phase" yaml:"use_two_phase"`
	ExcludeSystemTables     bool     `json:"exclude_system_tables" yaml:"exclude_system_tables"`
	ExcludePatterns         []string `json:"exclude_patterns,omitempty" yaml:"exclude_patterns"`
}

// DefaultParameters returns the documented defaults.
func DefaultParameters() Parameters {
	return Parameters{
		SimilarityThreshold:     0.5,
		MinGroupSize:            1,
		MinGlobalClusters:       2,
		MinAssignmentSimilarity: 0.0,
		UseTwoPhase:             true,
		ExcludeSystemTables:     true,
	}
}

// ProcedureGroup is a set of procedures sharing an identical table-access set.
type ProcedureGroup struct {
	GroupID     string   `json:"group_id"`
	ClusterID   string   `json:"cluster_id"`
	DisplayName string   `json:"display_name,omitempty"`
	Procedures  []string `json:"procedures"`
	Tables      []string `json:"tables"`
	IsSingleton bool     `json:"is_singleton"`
}

// Cluster is a named container of procedure groups believed to represent one
// functional area. Tables and procedures are derived from the member groups.
type Cluster struct {
	ClusterID   string   `json:"cluster_id"`
	DisplayName string   `json:"display_name,omitempty"`
	GroupIDs    []string `json:"group_ids"`
	Procedures  []string `json:"procedures,omitempty"`
	Tables      []string `json:"tables,omitempty"`
}

// Trash item kinds.
const (
	TrashKindProcedure = "procedure"
	TrashKindTable     = "table"
)

// TrashItem is a soft-deleted record. The captured fields are the single
// authoritative source for restore; they are never re-read from live state.
type TrashItem struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	DeletedAt time.Time `json:"deleted_at"`

	// Procedure capture.
	ProcedureName     string   `json:"procedure_name,omitempty"`
	OriginalClusterID string   `json:"original_cluster_id,omitempty"`
	OriginalGroupID   string   `json:"original_group_id,omitempty"`
	Tables            []string `json:"tables,omitempty"`

	// Table capture.
	TableName         string   `json:"table_name,omitempty"`
	WasGlobal         bool     `json:"was_global,omitempty"`
	WasOrphaned       bool     `json:"was_orphaned,omitempty"`
	ReferencingGroups []string `json:"referencing_groups,omitempty"`
}

// TableNode is one entry of the derived table listing, tagged for the
// diagram layer.
type TableNode struct {
	Table      string `json:"table"`
	UsageCount int    `json:"usage_count"`
	IsGlobal   bool   `json:"is_global"`
	IsMissing  bool   `json:"is_missing"`
	IsOrphaned bool   `json:"is_orphaned"`
}

// SimilarityEdge is a diagnostic edge between two groups whose Jaccard
// similarity meets the configured threshold.
type SimilarityEdge struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Similarity float64 `json:"similarity"`
}

// Snapshot is the full persisted cluster state, rewritten on every mutation.
type Snapshot struct {
	GeneratedAt     time.Time        `json:"generated_at"`
	LastUpdated     time.Time        `json:"last_updated"`
	CatalogPath     string           `json:"catalog_path,omitempty"`
	Parameters      Parameters       `json:"parameters"`
	Clusters        []Cluster        `json:"clusters"`
	ProcedureGroups []ProcedureGroup `json:"procedure_groups"`
	KnownTables     []string         `json:"known_tables"`
	GlobalTables    []string         `json:"global_tables"`
	MissingTables   []string         `json:"missing_tables"`
	OrphanedTables  []string         `json:"orphaned_tables"`
	TableNodes      []TableNode      `json:"table_nodes"`
	SimilarityEdges []SimilarityEdge `json:"similarity_edges,omitempty"`
	Trash           []TrashItem      `json:"trash"`
	NextClusterSeq  int              `json:"next_cluster_seq"`
	NextGroupSeq    int              `json:"next_group_seq"`
}

// OpResult is the structured result every operation returns. Expected
// failures (not found, conflict, invalid state, validation) set OK=false;
// they do not surface as Go errors past the service boundary.
type OpResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}
