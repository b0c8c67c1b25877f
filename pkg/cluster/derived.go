package cluster

import (
	"sort"
	"time"

	"github.com/procmap-io/procmap/pkg/models"
)

// Recompute refreshes every derived view from the live clusters and groups.
// Mutations call this after every structural change so readers always see
// consistent summaries.
func (s *State) Recompute() {
	// Cluster rollups from member groups.
	for _, cid := range s.ClusterOrder {
		c := s.Clusters[cid]
		if c == nil {
			continue
		}
		procs := make([]string, 0)
		union := make(map[string]struct{})
		sort.Slice(c.GroupIDs, func(i, j int) bool {
			return groupLess(c.GroupIDs[i], c.GroupIDs[j])
		})
		for _, gid := range c.GroupIDs {
			g := s.Groups[gid]
			if g == nil {
				continue
			}
			procs = append(procs, g.Procedures...)
			for _, t := range g.Tables {
				union[t] = struct{}{}
			}
		}
		sort.Strings(procs)
		c.Procedures = procs
		c.Tables = sortedKeys(union)
	}

	// Per-table usage across live procedures and the set of clusters
	// touching each table.
	s.TableUsage = make(map[string]int)
	tableClusters := make(map[string]map[string]struct{})
	for _, gid := range s.GroupOrder {
		g := s.Groups[gid]
		if g == nil {
			continue
		}
		for _, t := range g.Tables {
			s.TableUsage[t] += len(g.Procedures)
			set, ok := tableClusters[t]
			if !ok {
				set = make(map[string]struct{})
				tableClusters[t] = set
			}
			set[g.ClusterID] = struct{}{}
		}
	}

	s.GlobalTables = make(map[string]struct{})
	for t, clusters := range tableClusters {
		if len(clusters) >= s.Params.MinGlobalClusters {
			s.GlobalTables[t] = struct{}{}
		}
	}

	s.OrphanedTables = make(map[string]struct{})
	for t := range s.KnownTables {
		if _, used := tableClusters[t]; !used {
			s.OrphanedTables[t] = struct{}{}
		}
	}

	s.MissingTables = make(map[string]struct{})
	for t := range tableClusters {
		if _, known := s.KnownTables[t]; !known {
			s.MissingTables[t] = struct{}{}
		}
	}

	s.TableNodes = s.buildTableNodes(tableClusters)
	s.SimilarityEdges = s.buildCoreEdges()
}

// buildTableNodes produces one tagged node per referenced or known table.
func (s *State) buildTableNodes(tableClusters map[string]map[string]struct{}) []models.TableNode {
	names := make(map[string]struct{}, len(tableClusters)+len(s.KnownTables))
	for t := range tableClusters {
		names[t] = struct{}{}
	}
	for t := range s.KnownTables {
		names[t] = struct{}{}
	}
	nodes := make([]models.TableNode, 0, len(names))
	for _, t := range sortedKeys(names) {
		nodes = append(nodes, models.TableNode{
			Table:      t,
			UsageCount: s.TableUsage[t],
			IsGlobal:   containsKey(s.GlobalTables, t),
			IsMissing:  containsKey(s.MissingTables, t),
			IsOrphaned: containsKey(s.OrphanedTables, t),
		})
	}
	return nodes
}

// buildCoreEdges computes group similarity edges over core tables only,
// the access sets with global tables removed. Global tables touch many
// clusters and would drown the structure in noise.
func (s *State) buildCoreEdges() []models.SimilarityEdge {
	core := make([]models.ProcedureGroup, 0, len(s.GroupOrder))
	for _, gid := range s.GroupOrder {
		g := s.Groups[gid]
		if g == nil {
			continue
		}
		cg := models.ProcedureGroup{GroupID: g.GroupID}
		for _, t := range g.Tables {
			if !containsKey(s.GlobalTables, t) {
				cg.Tables = append(cg.Tables, t)
			}
		}
		core = append(core, cg)
	}
	edges := BuildSimilarityEdges(core, s.Params.MinGroupSize, s.Params.SimilarityThreshold)
	sort.Slice(edges, func(a, b int) bool {
		if edges[a].Source != edges[b].Source {
			return edges[a].Source < edges[b].Source
		}
		return edges[a].Target < edges[b].Target
	})
	return edges
}

func (s *State) touch() {
	s.LastUpdated = time.Now().UTC()
}

func groupLess(a, b string) bool {
	na, okA := parseSeq(a, "G")
	nb, okB := parseSeq(b, "G")
	if okA && okB {
		return na < nb
	}
	return a < b
}

func parseSeq(id, prefix string) (int, bool) {
	if len(id) <= len(prefix) || id[:len(prefix)] != prefix {
		return 0, false
	}
	n := 0
	for _, r := range id[len(prefix):] {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

func containsKey(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedValues(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
