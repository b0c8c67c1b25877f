// Package diagram renders cluster state as Graphviz DOT text. Node ids
// carry a type prefix (cluster::, pg::, table::, tableX:: for missing,
// tableO:: for orphaned) so downstream viewers can classify entities
// without parsing labels.
package diagram

import (
	"fmt"
	"sort"
	"strings"

	"github.com/procmap-io/procmap/pkg/catalog"
	"github.com/procmap-io/procmap/pkg/cluster"
)

// SummaryDOT renders the overview graph: clusters, global tables, missing
// and orphaned tables, and the cluster-to-global-table edges.
func SummaryDOT(st *cluster.State) string {
	var b strings.Builder
	b.WriteString("graph cluster_overview {\n")
	b.WriteString("  graph [layout=neato, overlap=false, splines=true];\n")
	b.WriteString("  node [fontname=\"Helvetica\"];\n\n")

	if len(st.GlobalTables) > 0 {
		b.WriteString("  // Global tables referenced by multiple clusters\n")
		for _, t := range sortedSet(st.GlobalTables) {
			writeTableNode(&b, st, t)
		}
		b.WriteString("\n")
	}

	b.WriteString("  // Cluster nodes\n")
	for _, cid := range st.ClusterOrder {
		c := st.Clusters[cid]
		if c == nil {
			continue
		}
		display := c.DisplayName
		if display == "" {
			display = c.ClusterID
		}
		nonSingleton := 0
		for _, gid := range c.GroupIDs {
			if g := st.Groups[gid]; g != nil && !g.IsSingleton {
				nonSingleton++
			}
		}
		label := strings.Join([]string{
			escapeLabel(display),
			escapeLabel("(" + c.ClusterID + ")"),
			escapeLabel(fmt.Sprintf("P:%d G:%d T:%d", len(c.Procedures), nonSingleton, len(c.Tables))),
		}, "\\n")
		fmt.Fprintf(&b, "  %q [shape=box,style=\"rounded,filled\",fillcolor=\"#E1BEE7\","+
			"id=\"cluster::%s\",URL=\"cluster://%s\",tooltip=%q,label=\"%s\"];\n",
			c.ClusterID, c.ClusterID, c.ClusterID, c.ClusterID, label)
	}

	nonGlobalMissing := make(map[string]struct{})
	for t := range st.MissingTables {
		if _, global := st.GlobalTables[t]; !global {
			nonGlobalMissing[t] = struct{}{}
		}
	}
	if len(nonGlobalMissing) > 0 {
		b.WriteString("\n  // Missing tables (not global)\n")
		for _, t := range sortedSet(nonGlobalMissing) {
			writeTableNode(&b, st, t)
		}
	}
	if len(st.OrphanedTables) > 0 {
		b.WriteString("\n  // Orphaned tables (unused)\n")
		for _, t := range sortedSet(st.OrphanedTables) {
			writeTableNode(&b, st, t)
		}
	}

	b.WriteString("\n  // Cluster-to-table edges\n")
	for _, cid := range st.ClusterOrder {
		c := st.Clusters[cid]
		if c == nil {
			continue
		}
		for _, t := range c.Tables {
			_, global := st.GlobalTables[t]
			_, missing := nonGlobalMissing[t]
			if global || missing {
				fmt.Fprintf(&b, "  %q -- %q;\n", c.ClusterID, t)
			}
		}
	}

	b.WriteString("}\n")
	return b.String()
}

// ClusterDOT renders one cluster: its tables, its groups, and the
// group-to-table access edges.
func ClusterDOT(st *cluster.State, identifier string) (string, error) {
	cid, err := st.FindClusterID(identifier)
	if err != nil {
		return "", err
	}
	c := st.Clusters[cid]

	var b strings.Builder
	fmt.Fprintf(&b, "graph %s_detail {\n", c.ClusterID)
	b.WriteString("  graph [layout=neato, overlap=false, splines=true];\n")
	b.WriteString("  node [fontname=\"Helvetica\"];\n\n")

	b.WriteString("  // Table nodes\n")
	for _, t := range c.Tables {
		writeTableNode(&b, st, t)
	}

	b.WriteString("\n  // Procedure / group nodes\n")
	for _, gid := range c.GroupIDs {
		g := st.Groups[gid]
		if g == nil {
			continue
		}
		display := g.DisplayName
		if display == "" {
			display = g.GroupID
		}
		if g.IsSingleton {
			fmt.Fprintf(&b, "  %q [shape=box,style=\"rounded,filled\",fillcolor=\"#E8F5E9\","+
				"id=\"pg::%s\",label=\"%s\"];\n", g.GroupID, g.GroupID, escapeLabel(display))
		} else {
			label := display + "\n(" + g.GroupID + ")\n---\n" + strings.Join(g.Procedures, "\n")
			fmt.Fprintf(&b, "  %q [shape=box,style=\"rounded,filled\",fillcolor=\"#F9E2E7\","+
				"id=\"pg::%s\",label=\"%s\"];\n", g.GroupID, g.GroupID, escapeLabel(label))
		}
	}

	b.WriteString("\n  // Access edges\n")
	for _, gid := range c.GroupIDs {
		g := st.Groups[gid]
		if g == nil {
			continue
		}
		for _, t := range g.Tables {
			fmt.Fprintf(&b, "  %q -- %q;\n", g.GroupID, t)
		}
	}

	b.WriteString("}\n")
	return b.String(), nil
}

// writeTableNode emits one table node styled by its tag. Global and
// missing tables are bold, orphaned tables dashed, plain tables light.
func writeTableNode(b *strings.Builder, st *cluster.State, t string) {
	label := escapeLabel(displayTable(st, t))
	switch {
	case containsSet(st.MissingTables, t):
		fmt.Fprintf(b, "  %q [shape=box,style=\"filled,bold\",fillcolor=\"#9E9E9E\",penwidth=2,"+
			"id=\"tableX::%s\",label=\"%s\\n(missing)\"];\n", t, t, label)
	case containsSet(st.OrphanedTables, t):
		fmt.Fprintf(b, "  %q [shape=box,style=\"filled,dashed\",fillcolor=\"#FF9800\",penwidth=1,"+
			"id=\"tableO::%s\",label=\"%s\\n(orphaned)\"];\n", t, t, label)
	case containsSet(st.GlobalTables, t):
		fmt.Fprintf(b, "  %q [shape=box,style=\"filled,bold\",fillcolor=\"#FFF2CC\",penwidth=2,"+
			"id=\"table::%s\",label=\"%s\\n(global)\"];\n", t, t, label)
	default:
		fmt.Fprintf(b, "  %q [shape=box,style=filled,fillcolor=\"#E0ECF8\",id=\"table::%s\",label=\"%s\"];\n", t, t, label)
	}
}

func displayTable(st *cluster.State, t string) string {
	if display, ok := st.KnownTables[t]; ok {
		return catalog.Display(display)
	}
	return catalog.Display(t)
}

func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

func containsSet(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
