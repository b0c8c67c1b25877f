package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/procmap-io/procmap/pkg/apperrors"
	"github.com/procmap-io/procmap/pkg/catalog"
	"github.com/procmap-io/procmap/pkg/cluster"
	"github.com/procmap-io/procmap/pkg/models"
	"github.com/procmap-io/procmap/pkg/store"
)

// Operation names accepted by Execute. The intent layer emits these same
// identifiers.
const (
	OpRenameCluster     = "rename_cluster"
	OpRenameGroup       = "rename_group"
	OpMoveGroup         = "move_group"
	OpMoveProcedure     = "move_procedure"
	OpAddCluster        = "add_cluster"
	OpDeleteCluster     = "delete_cluster"
	OpDeleteProcedure   = "delete_procedure"
	OpDeleteTable       = "delete_table"
	OpRestoreProcedure  = "restore_procedure"
	OpRestoreTable      = "restore_table"
	OpListTrash         = "list_trash"
	OpEmptyTrash        = "empty_trash"
	OpGetClusterSummary = "get_cluster_summary"
	OpGetClusterDetail  = "get_cluster_detail"
)

// ClusterService owns the live cluster state. Mutations run single-writer
// under the lock: clone, mutate, validate, persist, then swap the live
// pointer. Reads serve the last successfully persisted state.
type ClusterService struct {
	mu     sync.Mutex
	state  *cluster.State
	store  *store.SnapshotStore
	opts   cluster.ExtractorOptions
	live   *catalog.LiveLoader
	logger *zap.Logger
}

// LiveCatalogSource is recorded as the catalog path when the state was
// built from a live SQL Server connection rather than a catalog file.
const LiveCatalogSource = "mssql:live"

func NewClusterService(st *store.SnapshotStore, opts cluster.ExtractorOptions, logger *zap.Logger) *ClusterService {
	return &ClusterService{store: st, opts: opts, logger: logger}
}

// SetLiveLoader attaches a live SQL Server catalog source. Once set,
// BuildFromLive and rebuilds of live-sourced states use it.
func (s *ClusterService) SetLiveLoader(l *catalog.LiveLoader) {
	s.live = l
}

// LoadSnapshot initializes the service from the persisted snapshot.
func (s *ClusterService) LoadSnapshot() error {
	snap, err := s.store.Load()
	if err != nil {
		return err
	}
	st := cluster.FromSnapshot(snap)
	if err := st.Validate(); err != nil {
		return fmt.Errorf("snapshot failed validation: %w", err)
	}
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.logger.Info("cluster state loaded from snapshot",
		zap.Int("clusters", len(st.ClusterOrder)),
		zap.Int("groups", len(st.GroupOrder)))
	return nil
}

// BuildFromCatalog runs the full build pipeline on a catalog file and
// replaces the live state. Any existing clustering is discarded.
func (s *ClusterService) BuildFromCatalog(catalogPath string, params models.Parameters) error {
	doc, err := catalog.Load(catalogPath, s.logger)
	if err != nil {
		return err
	}
	return s.buildFromDocument(doc, catalogPath, params)
}

// BuildFromLive runs the build pipeline against the attached live SQL
// Server catalog source.
func (s *ClusterService) BuildFromLive(ctx context.Context, params models.Parameters) error {
	if s.live == nil {
		return fmt.Errorf("no live catalog source attached: %w", apperrors.ErrInvalidState)
	}
	doc, err := s.live.Load(ctx)
	if err != nil {
		return err
	}
	return s.buildFromDocument(doc, LiveCatalogSource, params)
}

func (s *ClusterService) buildFromDocument(doc *models.CatalogDocument, source string, params models.Parameters) error {
	idx := catalog.NewIndex(doc)

	opts := s.opts
	opts.ExcludeSystemTables = params.ExcludeSystemTables
	opts.ExcludePatterns = params.ExcludePatterns
	extraction := cluster.ExtractTableAccess(idx, opts, s.logger)

	groups := cluster.BuildGroups(extraction.Access)
	clusters := cluster.AssignClusters(groups, params, s.logger)
	st := cluster.NewState(groups, clusters, idx.KnownTables(), params, source)
	if err := st.Validate(); err != nil {
		return fmt.Errorf("built state failed validation: %w", err)
	}
	if err := s.store.Save(st.ToSnapshot()); err != nil {
		return err
	}
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.logger.Info("cluster state built from catalog",
		zap.String("catalog", source),
		zap.Int("procedures", len(extraction.Access)),
		zap.Int("groups", len(groups)),
		zap.Int("clusters", len(clusters)))
	return nil
}

// Rebuild reruns the build pipeline on the recorded catalog path. This is
// destructive: manual renames, moves and trash are lost. The stored
// parameters are reused unless an override is supplied.
func (s *ClusterService) Rebuild(override *models.Parameters) error {
	s.mu.Lock()
	if s.state == nil {
		s.mu.Unlock()
		return fmt.Errorf("no live state to rebuild: %w", apperrors.ErrInvalidState)
	}
	path := s.state.CatalogPath
	params := s.state.Params
	s.mu.Unlock()
	if path == "" {
		return fmt.Errorf("state has no recorded catalog path: %w", apperrors.ErrInvalidState)
	}
	if override != nil {
		params = *override
	}
	if path == LiveCatalogSource {
		return s.BuildFromLive(context.Background(), params)
	}
	return s.BuildFromCatalog(path, params)
}

// Ready reports whether the service has live state.
func (s *ClusterService) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != nil
}

// Execute dispatches one named operation. Expected failures come back as
// OpResult with OK=false; a non-nil error means the engine itself failed
// (persist error, invariant violation) and the live state was not changed.
func (s *ClusterService) Execute(op string, args map[string]any) (models.OpResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return models.OpResult{}, fmt.Errorf("cluster state not initialized: %w", apperrors.ErrInvalidState)
	}

	switch op {
	case OpListTrash:
		items := s.state.ListTrash()
		return models.OpResult{OK: true, Message: fmt.Sprintf("%d items in trash", len(items)), Data: items}, nil
	case OpGetClusterSummary:
		return models.OpResult{OK: true, Message: "cluster summary", Data: s.summaryLocked()}, nil
	case OpGetClusterDetail:
		detail, err := s.detailLocked(argString(args, "cluster_id", "cluster", "name"))
		if err != nil {
			return models.OpResult{OK: false, Message: err.Error()}, nil
		}
		return models.OpResult{OK: true, Message: fmt.Sprintf("cluster %s", detail.Cluster.ClusterID), Data: detail}, nil
	}

	next := s.state.Clone()
	res, err := applyMutation(next, op, args)
	if err != nil {
		return models.OpResult{}, err
	}
	if !res.OK {
		s.logger.Info("operation rejected", zap.String("op", op), zap.String("reason", res.Message))
		return res, nil
	}
	if err := next.Validate(); err != nil {
		return models.OpResult{}, fmt.Errorf("operation %s broke invariants: %w", op, err)
	}
	if err := s.store.Save(next.ToSnapshot()); err != nil {
		return models.OpResult{}, fmt.Errorf("persist after %s: %w", op, err)
	}
	s.state = next
	s.logger.Info("operation applied", zap.String("op", op), zap.String("result", res.Message))
	return res, nil
}

func applyMutation(st *cluster.State, op string, args map[string]any) (models.OpResult, error) {
	switch op {
	case OpRenameCluster:
		return st.RenameCluster(argString(args, "cluster_id", "cluster", "old_name"), argString(args, "new_name", "name")), nil
	case OpRenameGroup:
		return st.RenameGroup(argString(args, "group_id", "group", "old_name"), argString(args, "new_name", "name")), nil
	case OpMoveGroup:
		return st.MoveGroup(argString(args, "group_id", "group"), argString(args, "target_cluster_id", "cluster_id", "cluster")), nil
	case OpMoveProcedure:
		return st.MoveProcedure(argString(args, "procedure_name", "procedure"), argString(args, "target_cluster_id", "cluster_id", "cluster")), nil
	case OpAddCluster:
		return st.AddCluster(argString(args, "cluster_id"), argString(args, "name", "cluster_name")), nil
	case OpDeleteCluster:
		return st.DeleteCluster(argString(args, "cluster_id", "cluster", "name")), nil
	case OpDeleteProcedure:
		return st.DeleteProcedure(argString(args, "procedure_name", "procedure", "name")), nil
	case OpDeleteTable:
		return st.DeleteTable(argString(args, "table_name", "table", "name")), nil
	case OpRestoreProcedure:
		return st.RestoreProcedure(
			argString(args, "procedure_name", "procedure", "name"),
			argString(args, "target_cluster_id", "cluster_id", "cluster"),
			argBool(args, "force_new_group")), nil
	case OpRestoreTable:
		idx, ok := argInt(args, "trash_index", "index")
		if !ok {
			return models.OpResult{OK: false, Message: "restore_table requires a trash_index argument"}, nil
		}
		return st.RestoreTable(idx), nil
	case OpEmptyTrash:
		return st.EmptyTrash(), nil
	default:
		return models.OpResult{}, fmt.Errorf("unknown operation %q: %w", op, apperrors.ErrValidation)
	}
}

// ClusterSummary is one row of the summary view.
type ClusterSummary struct {
	ClusterID      string `json:"cluster_id"`
	DisplayName    string `json:"display_name,omitempty"`
	GroupCount     int    `json:"group_count"`
	ProcedureCount int    `json:"procedure_count"`
	TableCount     int    `json:"table_count"`
}

// Summary is the top-level read model.
type Summary struct {
	Clusters       []ClusterSummary  `json:"clusters"`
	GlobalTables   []string          `json:"global_tables"`
	OrphanedTables []string          `json:"orphaned_tables"`
	MissingTables  []string          `json:"missing_tables"`
	TrashCount     int               `json:"trash_count"`
	Parameters     models.Parameters `json:"parameters"`
	LastUpdated    time.Time         `json:"last_updated"`
}

// ClusterDetail is the per-cluster read model with full group membership.
type ClusterDetail struct {
	Cluster      models.Cluster          `json:"cluster"`
	Groups       []models.ProcedureGroup `json:"groups"`
	GlobalTables []string                `json:"global_tables"`
}

// Summary returns the summary view of the live state.
func (s *ClusterService) Summary() (*Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil, fmt.Errorf("cluster state not initialized: %w", apperrors.ErrInvalidState)
	}
	return s.summaryLocked(), nil
}

func (s *ClusterService) summaryLocked() *Summary {
	st := s.state
	out := &Summary{
		GlobalTables:   setToSorted(st.GlobalTables),
		OrphanedTables: setToSorted(st.OrphanedTables),
		MissingTables:  setToSorted(st.MissingTables),
		TrashCount:     len(st.Trash),
		Parameters:     st.Params,
		LastUpdated:    st.LastUpdated,
	}
	for _, cid := range st.ClusterOrder {
		c := st.Clusters[cid]
		if c == nil {
			continue
		}
		out.Clusters = append(out.Clusters, ClusterSummary{
			ClusterID:      c.ClusterID,
			DisplayName:    c.DisplayName,
			GroupCount:     len(c.GroupIDs),
			ProcedureCount: len(c.Procedures),
			TableCount:     len(c.Tables),
		})
	}
	return out
}

// ClusterDetail returns one cluster with its member groups.
func (s *ClusterService) ClusterDetail(identifier string) (*ClusterDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil, fmt.Errorf("cluster state not initialized: %w", apperrors.ErrInvalidState)
	}
	return s.detailLocked(identifier)
}

func (s *ClusterService) detailLocked(identifier string) (*ClusterDetail, error) {
	cid, err := s.state.FindClusterID(identifier)
	if err != nil {
		return nil, err
	}
	c := s.state.Clusters[cid]
	detail := &ClusterDetail{Cluster: *c}
	for _, gid := range c.GroupIDs {
		if g := s.state.Groups[gid]; g != nil {
			detail.Groups = append(detail.Groups, *g)
		}
	}
	for _, t := range c.Tables {
		if _, ok := s.state.GlobalTables[t]; ok {
			detail.GlobalTables = append(detail.GlobalTables, t)
		}
	}
	return detail, nil
}

// Snapshot returns a full serialized copy of the live state.
func (s *ClusterService) Snapshot() (*models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil, fmt.Errorf("cluster state not initialized: %w", apperrors.ErrInvalidState)
	}
	return s.state.ToSnapshot(), nil
}

// View runs fn against the live state under the lock. The state must not
// be retained or mutated.
func (s *ClusterService) View(fn func(*cluster.State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return fmt.Errorf("cluster state not initialized: %w", apperrors.ErrInvalidState)
	}
	return fn(s.state)
}

func argString(args map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := args[k]; ok {
			if str, ok := v.(string); ok && strings.TrimSpace(str) != "" {
				return strings.TrimSpace(str)
			}
		}
	}
	return ""
}

func argBool(args map[string]any, keys ...string) bool {
	for _, k := range keys {
		switch v := args[k].(type) {
		case bool:
			return v
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				return b
			}
		}
	}
	return false
}

func argInt(args map[string]any, keys ...string) (int, bool) {
	for _, k := range keys {
		switch v := args[k].(type) {
		case int:
			return v, true
		case float64:
			return int(v), true
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func setToSorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
