package cluster

import (
	"fmt"
	"strings"
	"time"

	"github.com/procmap-io/procmap/pkg/apperrors"
	"github.com/procmap-io/procmap/pkg/catalog"
	"github.com/procmap-io/procmap/pkg/models"
)

// State is the in-memory cluster model: clusters, groups, the known-catalog
// table set, trash, and the derived views recomputed after every mutation.
// It is not safe for concurrent use; the service layer serializes access.
type State struct {
	Clusters     map[string]*models.Cluster
	Groups       map[string]*models.ProcedureGroup
	ClusterOrder []string
	GroupOrder   []string

	// KnownTables maps normalized table names to display safe names for
	// every table/view still considered part of the catalog.
	KnownTables map[string]string

	Trash       []models.TrashItem
	Params      models.Parameters
	CatalogPath string
	LastUpdated time.Time

	nextClusterSeq int
	nextGroupSeq   int

	// Derived, recomputed by Recompute.
	GlobalTables    map[string]struct{}
	MissingTables   map[string]struct{}
	OrphanedTables  map[string]struct{}
	TableUsage      map[string]int
	TableNodes      []models.TableNode
	SimilarityEdges []models.SimilarityEdge
}

// NewState assembles a state from a fresh build (grouping + clustering
// output) and recomputes the derived views.
func NewState(groups []models.ProcedureGroup, clusters []models.Cluster, knownTables map[string]string, params models.Parameters, catalogPath string) *State {
	s := &State{
		Clusters:    make(map[string]*models.Cluster, len(clusters)),
		Groups:      make(map[string]*models.ProcedureGroup, len(groups)),
		KnownTables: make(map[string]string, len(knownTables)),
		Params:      params,
		CatalogPath: catalogPath,
		LastUpdated: time.Now().UTC(),
	}
	for k, v := range knownTables {
		s.KnownTables[k] = v
	}
	for i := range clusters {
		c := clusters[i]
		s.Clusters[c.ClusterID] = &c
		s.ClusterOrder = append(s.ClusterOrder, c.ClusterID)
	}
	for i := range groups {
		g := groups[i]
		s.Groups[g.GroupID] = &g
		s.GroupOrder = append(s.GroupOrder, g.GroupID)
	}
	s.nextClusterSeq = len(clusters)
	s.nextGroupSeq = len(groups)
	s.Recompute()
	return s
}

// FromSnapshot rebuilds a state from a persisted snapshot.
func FromSnapshot(snap *models.Snapshot) *State {
	s := &State{
		Clusters:       make(map[string]*models.Cluster, len(snap.Clusters)),
		Groups:         make(map[string]*models.ProcedureGroup, len(snap.ProcedureGroups)),
		KnownTables:    make(map[string]string, len(snap.KnownTables)),
		Trash:          append([]models.TrashItem(nil), snap.Trash...),
		Params:         snap.Parameters,
		CatalogPath:    snap.CatalogPath,
		LastUpdated:    snap.LastUpdated,
		nextClusterSeq: snap.NextClusterSeq,
		nextGroupSeq:   snap.NextGroupSeq,
	}
	for i := range snap.Clusters {
		c := snap.Clusters[i]
		s.Clusters[c.ClusterID] = &c
		s.ClusterOrder = append(s.ClusterOrder, c.ClusterID)
	}
	for i := range snap.ProcedureGroups {
		g := snap.ProcedureGroups[i]
		s.Groups[g.GroupID] = &g
		s.GroupOrder = append(s.GroupOrder, g.GroupID)
	}
	for _, t := range snap.KnownTables {
		s.KnownTables[catalog.NormalizeKey(t)] = t
	}
	s.Recompute()
	return s
}

// ToSnapshot serializes the full state for persistence.
func (s *State) ToSnapshot() *models.Snapshot {
	snap := &models.Snapshot{
		GeneratedAt:     time.Now().UTC(),
		LastUpdated:     s.LastUpdated,
		CatalogPath:     s.CatalogPath,
		Parameters:      s.Params,
		KnownTables:     sortedValues(s.KnownTables),
		GlobalTables:    sortedKeys(s.GlobalTables),
		MissingTables:   sortedKeys(s.MissingTables),
		OrphanedTables:  sortedKeys(s.OrphanedTables),
		TableNodes:      append([]models.TableNode(nil), s.TableNodes...),
		SimilarityEdges: append([]models.SimilarityEdge(nil), s.SimilarityEdges...),
		Trash:           append([]models.TrashItem(nil), s.Trash...),
		NextClusterSeq:  s.nextClusterSeq,
		NextGroupSeq:    s.nextGroupSeq,
	}
	for _, cid := range s.ClusterOrder {
		if c, ok := s.Clusters[cid]; ok {
			snap.Clusters = append(snap.Clusters, *c)
		}
	}
	for _, gid := range s.GroupOrder {
		if g, ok := s.Groups[gid]; ok {
			snap.ProcedureGroups = append(snap.ProcedureGroups, *g)
		}
	}
	return snap
}

// Clone deep-copies the state so mutations can run copy-on-write.
func (s *State) Clone() *State {
	out := &State{
		Clusters:       make(map[string]*models.Cluster, len(s.Clusters)),
		Groups:         make(map[string]*models.ProcedureGroup, len(s.Groups)),
		ClusterOrder:   append([]string(nil), s.ClusterOrder...),
		GroupOrder:     append([]string(nil), s.GroupOrder...),
		KnownTables:    make(map[string]string, len(s.KnownTables)),
		Trash:          make([]models.TrashItem, len(s.Trash)),
		Params:         s.Params,
		CatalogPath:    s.CatalogPath,
		LastUpdated:    s.LastUpdated,
		nextClusterSeq: s.nextClusterSeq,
		nextGroupSeq:   s.nextGroupSeq,
	}
	for id, c := range s.Clusters {
		cc := *c
		cc.GroupIDs = append([]string(nil), c.GroupIDs...)
		cc.Procedures = append([]string(nil), c.Procedures...)
		cc.Tables = append([]string(nil), c.Tables...)
		out.Clusters[id] = &cc
	}
	for id, g := range s.Groups {
		gg := *g
		gg.Procedures = append([]string(nil), g.Procedures...)
		gg.Tables = append([]string(nil), g.Tables...)
		out.Groups[id] = &gg
	}
	for k, v := range s.KnownTables {
		out.KnownTables[k] = v
	}
	for i, t := range s.Trash {
		tt := t
		tt.Tables = append([]string(nil), t.Tables...)
		tt.ReferencingGroups = append([]string(nil), t.ReferencingGroups...)
		out.Trash[i] = tt
	}
	out.Recompute()
	return out
}

// nextClusterID mints a fresh C<n> id, skipping any ids already taken by
// user-created clusters.
func (s *State) nextClusterID() string {
	for {
		id := fmt.Sprintf("C%d", s.nextClusterSeq)
		s.nextClusterSeq++
		if _, taken := s.Clusters[id]; !taken {
			return id
		}
	}
}

// nextGroupID mints a fresh G<n> id.
func (s *State) nextGroupID() string {
	for {
		id := fmt.Sprintf("G%d", s.nextGroupSeq)
		s.nextGroupSeq++
		if _, taken := s.Groups[id]; !taken {
			return id
		}
	}
}

// FindClusterID resolves a cluster by id or display name, case-insensitive.
func (s *State) FindClusterID(identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", fmt.Errorf("empty cluster identifier: %w", apperrors.ErrValidation)
	}
	if _, ok := s.Clusters[identifier]; ok {
		return identifier, nil
	}
	lower := strings.ToLower(identifier)
	var matches []string
	for _, cid := range s.ClusterOrder {
		c := s.Clusters[cid]
		if c != nil && c.DisplayName != "" && strings.ToLower(c.DisplayName) == lower {
			matches = append(matches, cid)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("cluster %q: %w", identifier, apperrors.ErrNotFound)
	default:
		return "", fmt.Errorf("ambiguous cluster name %q matches %v: %w", identifier, matches, apperrors.ErrValidation)
	}
}

// FindGroupID resolves a group by id or display name, case-insensitive.
func (s *State) FindGroupID(identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", fmt.Errorf("empty group identifier: %w", apperrors.ErrValidation)
	}
	if _, ok := s.Groups[identifier]; ok {
		return identifier, nil
	}
	lower := strings.ToLower(identifier)
	var matches []string
	for _, gid := range s.GroupOrder {
		g := s.Groups[gid]
		if g != nil && g.DisplayName != "" && strings.ToLower(g.DisplayName) == lower {
			matches = append(matches, gid)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("group %q: %w", identifier, apperrors.ErrNotFound)
	default:
		return "", fmt.Errorf("ambiguous group name %q matches %v: %w", identifier, matches, apperrors.ErrValidation)
	}
}

// findGroupByProcedure returns the live group containing the procedure.
// Matching runs on the normalized identity key, so dotted and safe forms
// and any casing all resolve.
func (s *State) findGroupByProcedure(procedure string) (*models.ProcedureGroup, error) {
	key := catalog.NormalizeKey(procedure)
	for _, gid := range s.GroupOrder {
		g := s.Groups[gid]
		if g == nil {
			continue
		}
		for _, p := range g.Procedures {
			if catalog.NormalizeKey(p) == key {
				return g, nil
			}
		}
	}
	return nil, fmt.Errorf("procedure %q not in any live group: %w", procedure, apperrors.ErrNotFound)
}

// Validate checks the structural invariants that must hold after every
// mutation. A violation is an engine bug, not a user error.
func (s *State) Validate() error {
	owner := make(map[string]string)
	for _, cid := range s.ClusterOrder {
		c, ok := s.Clusters[cid]
		if !ok {
			return fmt.Errorf("cluster order references unknown cluster %q", cid)
		}
		for _, gid := range c.GroupIDs {
			g, ok := s.Groups[gid]
			if !ok {
				return fmt.Errorf("cluster %q references unknown group %q", cid, gid)
			}
			if g.ClusterID != cid {
				return fmt.Errorf("group %q listed in cluster %q but assigned to %q", gid, cid, g.ClusterID)
			}
			if prev, dup := owner[gid]; dup {
				return fmt.Errorf("group %q owned by clusters %q and %q", gid, prev, cid)
			}
			owner[gid] = cid
		}
	}
	seen := make(map[string]string)
	for _, gid := range s.GroupOrder {
		g, ok := s.Groups[gid]
		if !ok {
			return fmt.Errorf("group order references unknown group %q", gid)
		}
		if _, ok := owner[gid]; !ok {
			return fmt.Errorf("group %q belongs to no cluster", gid)
		}
		if len(g.Procedures) == 0 {
			return fmt.Errorf("group %q is empty", gid)
		}
		if g.IsSingleton != (len(g.Procedures) == 1) {
			return fmt.Errorf("group %q singleton flag inconsistent with %d members", gid, len(g.Procedures))
		}
		for _, p := range g.Procedures {
			key := catalog.NormalizeKey(p)
			if prev, dup := seen[key]; dup {
				return fmt.Errorf("procedure %q appears in groups %q and %q", p, prev, gid)
			}
			seen[key] = gid
		}
	}
	for _, item := range s.Trash {
		if item.Kind != models.TrashKindProcedure {
			continue
		}
		if gid, live := seen[catalog.NormalizeKey(item.ProcedureName)]; live {
			return fmt.Errorf("procedure %q is both in trash and live group %q", item.ProcedureName, gid)
		}
	}
	return nil
}
