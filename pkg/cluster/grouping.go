package cluster

import (
	"fmt"
	"sort"
	"strings"

	"github.com/procmap-io/procmap/pkg/models"
)

// BuildGroups partitions routines into procedure groups by exact equality
// of their table-access sets. Group ids are assigned deterministically:
// classes are ordered by descending table count, then by first procedure
// name, so identical input always yields identical ids.
func BuildGroups(access map[string][]string) []models.ProcedureGroup {
	classes := make(map[string][]string)
	tablesByKey := make(map[string][]string)

	for proc, tables := range access {
		key := strings.Join(tables, "\x00")
		classes[key] = append(classes[key], proc)
		tablesByKey[key] = tables
	}

	keys := make([]string, 0, len(classes))
	for key := range classes {
		sort.Strings(classes[key])
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		ti, tj := tablesByKey[keys[i]], tablesByKey[keys[j]]
		if len(ti) != len(tj) {
			return len(ti) > len(tj)
		}
		return classes[keys[i]][0] < classes[keys[j]][0]
	})

	groups := make([]models.ProcedureGroup, 0, len(keys))
	for n, key := range keys {
		procs := classes[key]
		group := models.ProcedureGroup{
			GroupID:     fmt.Sprintf("G%d", n),
			Procedures:  procs,
			Tables:      append([]string(nil), tablesByKey[key]...),
			IsSingleton: len(procs) == 1,
		}
		if group.IsSingleton {
			group.DisplayName = procs[0]
		}
		groups = append(groups, group)
	}
	return groups
}
