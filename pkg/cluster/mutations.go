package cluster

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/procmap-io/procmap/pkg/apperrors"
	"github.com/procmap-io/procmap/pkg/catalog"
	"github.com/procmap-io/procmap/pkg/models"
)

// Mutations are pure state transitions: they modify the receiver and report
// the outcome as an OpResult. Expected failures (not found, conflict,
// invalid state) come back with OK=false; the service layer decides whether
// to persist. Every successful mutation ends with Recompute so derived
// views stay consistent.

func okResult(format string, args ...any) models.OpResult {
	return models.OpResult{OK: true, Message: fmt.Sprintf(format, args...)}
}

func failResult(format string, args ...any) models.OpResult {
	return models.OpResult{OK: false, Message: fmt.Sprintf(format, args...)}
}

// RenameCluster sets a cluster's display name.
func (s *State) RenameCluster(identifier, name string) models.OpResult {
	cid, err := s.FindClusterID(identifier)
	if err != nil {
		return failResult("%v", err)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return failResult("new cluster name is empty: %v", apperrors.ErrValidation)
	}
	for _, other := range s.ClusterOrder {
		if other == cid {
			continue
		}
		if c := s.Clusters[other]; c != nil && strings.EqualFold(c.DisplayName, name) {
			return failResult("cluster name %q already used by %s: %v", name, other, apperrors.ErrConflict)
		}
	}
	old := s.Clusters[cid].DisplayName
	s.Clusters[cid].DisplayName = name
	s.touch()
	s.Recompute()
	res := okResult("renamed cluster %s from %q to %q", cid, old, name)
	res.Data = map[string]string{"cluster_id": cid}
	return res
}

// RenameGroup sets a group's display name.
func (s *State) RenameGroup(identifier, name string) models.OpResult {
	gid, err := s.FindGroupID(identifier)
	if err != nil {
		return failResult("%v", err)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return failResult("new group name is empty: %v", apperrors.ErrValidation)
	}
	old := s.Groups[gid].DisplayName
	s.Groups[gid].DisplayName = name
	s.touch()
	s.Recompute()
	res := okResult("renamed group %s from %q to %q", gid, old, name)
	res.Data = map[string]string{"group_id": gid}
	return res
}

// MoveGroup detaches a group from its cluster and attaches it to another.
// The source cluster stays alive even when emptied.
func (s *State) MoveGroup(groupIdent, clusterIdent string) models.OpResult {
	gid, err := s.FindGroupID(groupIdent)
	if err != nil {
		return failResult("%v", err)
	}
	cid, err := s.FindClusterID(clusterIdent)
	if err != nil {
		return failResult("%v", err)
	}
	g := s.Groups[gid]
	if g.ClusterID == cid {
		return failResult("group %s is already in cluster %s: %v", gid, cid, apperrors.ErrInvalidState)
	}
	from := g.ClusterID
	s.detachGroup(gid)
	s.attachGroup(gid, cid)
	s.touch()
	s.Recompute()
	res := okResult("moved group %s from %s to %s", gid, from, cid)
	res.Data = map[string]string{"group_id": gid, "from": from, "to": cid}
	return res
}

// MoveProcedure relocates one procedure into the target cluster. A singleton
// group moves whole; a multi-member group is split, leaving the remaining
// members' access set untouched and placing the procedure in a fresh
// singleton group.
func (s *State) MoveProcedure(procedure, clusterIdent string) models.OpResult {
	g, err := s.findGroupByProcedure(procedure)
	if err != nil {
		return failResult("%v", err)
	}
	cid, err := s.FindClusterID(clusterIdent)
	if err != nil {
		return failResult("%v", err)
	}
	if g.IsSingleton {
		// A singleton already in the target cluster is a no-op, not an error.
		if g.ClusterID == cid {
			res := okResult("procedure %q is already in cluster %s", procedure, cid)
			res.Data = map[string]string{"group_id": g.GroupID, "from": cid, "to": cid}
			return res
		}
		from := g.ClusterID
		s.detachGroup(g.GroupID)
		s.attachGroup(g.GroupID, cid)
		s.touch()
		s.Recompute()
		res := okResult("moved procedure %q (group %s) from %s to %s", procedure, g.GroupID, from, cid)
		res.Data = map[string]string{"group_id": g.GroupID, "from": from, "to": cid}
		return res
	}

	proc := removeProcedure(g, procedure)
	split := &models.ProcedureGroup{
		GroupID:     s.nextGroupID(),
		ClusterID:   cid,
		DisplayName: proc,
		Procedures:  []string{proc},
		Tables:      append([]string(nil), g.Tables...),
		IsSingleton: true,
	}
	s.Groups[split.GroupID] = split
	s.GroupOrder = append(s.GroupOrder, split.GroupID)
	s.attachGroup(split.GroupID, cid)
	s.touch()
	s.Recompute()
	res := okResult("split procedure %q out of group %s into new group %s in cluster %s", proc, g.GroupID, split.GroupID, cid)
	res.Data = map[string]string{"group_id": split.GroupID, "source_group_id": g.GroupID, "to": cid}
	return res
}

// AddCluster creates an empty cluster. With an empty id a fresh C<n> id is
// minted; an explicit id must be unused.
func (s *State) AddCluster(id, name string) models.OpResult {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if id == "" {
		id = s.nextClusterID()
	} else if _, taken := s.Clusters[id]; taken {
		return failResult("cluster id %q already exists: %v", id, apperrors.ErrConflict)
	}
	if name != "" {
		for _, cid := range s.ClusterOrder {
			if c := s.Clusters[cid]; c != nil && strings.EqualFold(c.DisplayName, name) {
				return failResult("cluster name %q already used by %s: %v", name, cid, apperrors.ErrConflict)
			}
		}
	}
	s.Clusters[id] = &models.Cluster{ClusterID: id, DisplayName: name}
	s.ClusterOrder = append(s.ClusterOrder, id)
	s.touch()
	s.Recompute()
	res := okResult("created cluster %s %q", id, name)
	res.Data = map[string]string{"cluster_id": id}
	return res
}

// DeleteCluster removes a cluster, trashing every member procedure as its
// own entry with the table set captured from its live group.
func (s *State) DeleteCluster(identifier string) models.OpResult {
	cid, err := s.FindClusterID(identifier)
	if err != nil {
		return failResult("%v", err)
	}
	c := s.Clusters[cid]
	trashed := 0
	for _, gid := range append([]string(nil), c.GroupIDs...) {
		g := s.Groups[gid]
		if g == nil {
			continue
		}
		for _, proc := range g.Procedures {
			s.Trash = append(s.Trash, models.TrashItem{
				ID:                uuid.NewString(),
				Kind:              models.TrashKindProcedure,
				DeletedAt:         time.Now().UTC(),
				ProcedureName:     proc,
				OriginalClusterID: cid,
				OriginalGroupID:   gid,
				Tables:            append([]string(nil), g.Tables...),
			})
			trashed++
		}
		delete(s.Groups, gid)
		s.GroupOrder = removeString(s.GroupOrder, gid)
	}
	delete(s.Clusters, cid)
	s.ClusterOrder = removeString(s.ClusterOrder, cid)
	s.touch()
	s.Recompute()
	res := okResult("deleted cluster %s, moved %d procedures to trash", cid, trashed)
	res.Data = map[string]any{"cluster_id": cid, "trashed_procedures": trashed}
	return res
}

// DeleteProcedure trashes one procedure, capturing its table set from the
// live group before any membership change. An emptied group is removed.
func (s *State) DeleteProcedure(procedure string) models.OpResult {
	g, err := s.findGroupByProcedure(procedure)
	if err != nil {
		return failResult("%v", err)
	}
	proc := removeProcedure(g, procedure)
	origCluster, origGroup := g.ClusterID, g.GroupID
	s.Trash = append(s.Trash, models.TrashItem{
		ID:                uuid.NewString(),
		Kind:              models.TrashKindProcedure,
		DeletedAt:         time.Now().UTC(),
		ProcedureName:     proc,
		OriginalClusterID: origCluster,
		OriginalGroupID:   origGroup,
		Tables:            append([]string(nil), g.Tables...),
	})
	if len(g.Procedures) == 0 {
		s.detachGroup(origGroup)
		delete(s.Groups, origGroup)
		s.GroupOrder = removeString(s.GroupOrder, origGroup)
	}
	s.touch()
	s.Recompute()
	res := okResult("moved procedure %q to trash", proc)
	res.Data = map[string]string{"procedure": proc, "original_cluster_id": origCluster, "original_group_id": origGroup}
	return res
}

// DeleteTable removes a table from the known-catalog set. Groups still
// referencing it keep their access sets; the table shows up as missing.
// A table that is already missing cannot be deleted again.
func (s *State) DeleteTable(table string) models.OpResult {
	key := catalog.NormalizeKey(table)
	display, known := s.KnownTables[key]
	if !known {
		if containsKey(s.MissingTables, key) {
			return failResult("table %q is already missing from the catalog: %v", table, apperrors.ErrInvalidState)
		}
		return failResult("table %q: %v", table, apperrors.ErrNotFound)
	}
	var referencing []string
	for _, gid := range s.GroupOrder {
		g := s.Groups[gid]
		if g == nil {
			continue
		}
		for _, t := range g.Tables {
			if t == key {
				referencing = append(referencing, gid)
				break
			}
		}
	}
	sort.Strings(referencing)
	s.Trash = append(s.Trash, models.TrashItem{
		ID:                uuid.NewString(),
		Kind:              models.TrashKindTable,
		DeletedAt:         time.Now().UTC(),
		TableName:         display,
		WasGlobal:         containsKey(s.GlobalTables, key),
		WasOrphaned:       containsKey(s.OrphanedTables, key),
		ReferencingGroups: referencing,
	})
	delete(s.KnownTables, key)
	s.touch()
	s.Recompute()
	res := okResult("moved table %q to trash", catalog.Display(display))
	res.Data = map[string]any{"table": display, "referencing_groups": referencing}
	return res
}

// RestoreProcedure reinstates a trashed procedure. Its table set comes
// exclusively from the trash metadata. When the target cluster holds a
// group with the identical table set the procedure joins it, otherwise a
// new singleton group is created; force_new_group skips the search.
func (s *State) RestoreProcedure(procedure, targetCluster string, forceNewGroup bool) models.OpResult {
	idx := -1
	key := catalog.NormalizeKey(procedure)
	for i, item := range s.Trash {
		if item.Kind == models.TrashKindProcedure && catalog.NormalizeKey(item.ProcedureName) == key {
			idx = i
			break
		}
	}
	if idx < 0 {
		return failResult("no trash entry for procedure %q: %v", procedure, apperrors.ErrNotFound)
	}
	item := s.Trash[idx]
	if item.Tables == nil {
		return failResult("trash entry for %q carries no table metadata, refusing to restore with an empty access set: %v", item.ProcedureName, apperrors.ErrInvalidState)
	}
	if g, err := s.findGroupByProcedure(item.ProcedureName); err == nil {
		return failResult("procedure %q is already live in group %s: %v", item.ProcedureName, g.GroupID, apperrors.ErrConflict)
	}

	cid := strings.TrimSpace(targetCluster)
	var resolveErr error
	if cid == "" {
		cid = item.OriginalClusterID
		if _, alive := s.Clusters[cid]; !alive {
			// Original home is gone, recreate an empty cluster for it.
			cid = s.nextClusterID()
			s.Clusters[cid] = &models.Cluster{ClusterID: cid}
			s.ClusterOrder = append(s.ClusterOrder, cid)
		}
	} else {
		cid, resolveErr = s.FindClusterID(cid)
		if resolveErr != nil {
			return failResult("%v", resolveErr)
		}
	}

	var target *models.ProcedureGroup
	if !forceNewGroup {
		want := append([]string(nil), item.Tables...)
		sort.Strings(want)
		for _, gid := range s.Clusters[cid].GroupIDs {
			g := s.Groups[gid]
			if g != nil && sameTables(g.Tables, want) {
				target = g
				break
			}
		}
	}
	if target != nil {
		target.Procedures = append(target.Procedures, item.ProcedureName)
		sort.Strings(target.Procedures)
		target.IsSingleton = len(target.Procedures) == 1
	} else {
		tables := append([]string(nil), item.Tables...)
		sort.Strings(tables)
		target = &models.ProcedureGroup{
			GroupID:     s.nextGroupID(),
			ClusterID:   cid,
			DisplayName: item.ProcedureName,
			Procedures:  []string{item.ProcedureName},
			Tables:      tables,
			IsSingleton: true,
		}
		s.Groups[target.GroupID] = target
		s.GroupOrder = append(s.GroupOrder, target.GroupID)
		s.attachGroup(target.GroupID, cid)
	}
	s.Trash = append(s.Trash[:idx], s.Trash[idx+1:]...)
	s.touch()
	s.Recompute()
	res := okResult("restored procedure %q into group %s of cluster %s", item.ProcedureName, target.GroupID, cid)
	res.Data = map[string]string{"procedure": item.ProcedureName, "group_id": target.GroupID, "cluster_id": cid}
	return res
}

// RestoreTable reinstates the trashed table at the given index among the
// table-kind trash entries.
func (s *State) RestoreTable(index int) models.OpResult {
	pos := -1
	seen := 0
	for i, item := range s.Trash {
		if item.Kind != models.TrashKindTable {
			continue
		}
		if seen == index {
			pos = i
			break
		}
		seen++
	}
	if index < 0 || pos < 0 {
		return failResult("trash table index %d out of range (%d entries): %v", index, seen, apperrors.ErrValidation)
	}
	item := s.Trash[pos]
	key := catalog.NormalizeKey(item.TableName)
	if _, exists := s.KnownTables[key]; exists {
		return failResult("table %q is already in the catalog: %v", item.TableName, apperrors.ErrConflict)
	}
	s.KnownTables[key] = item.TableName
	s.Trash = append(s.Trash[:pos], s.Trash[pos+1:]...)
	s.touch()
	s.Recompute()
	res := okResult("restored table %q", catalog.Display(item.TableName))
	res.Data = map[string]string{"table": item.TableName}
	return res
}

// ListTrash returns a copy of the trash list, procedures first in deletion
// order, then tables.
func (s *State) ListTrash() []models.TrashItem {
	out := make([]models.TrashItem, 0, len(s.Trash))
	for _, item := range s.Trash {
		if item.Kind == models.TrashKindProcedure {
			out = append(out, item)
		}
	}
	for _, item := range s.Trash {
		if item.Kind == models.TrashKindTable {
			out = append(out, item)
		}
	}
	return out
}

// EmptyTrash discards all trash entries. There is no undo.
func (s *State) EmptyTrash() models.OpResult {
	n := len(s.Trash)
	s.Trash = nil
	s.touch()
	s.Recompute()
	res := okResult("emptied trash, discarded %d entries", n)
	res.Data = map[string]int{"discarded": n}
	return res
}

// detachGroup removes the group from its current cluster's membership.
func (s *State) detachGroup(gid string) {
	g := s.Groups[gid]
	if g == nil {
		return
	}
	if c := s.Clusters[g.ClusterID]; c != nil {
		c.GroupIDs = removeString(c.GroupIDs, gid)
	}
	g.ClusterID = ""
}

// attachGroup adds the group to the cluster's membership.
func (s *State) attachGroup(gid, cid string) {
	g := s.Groups[gid]
	c := s.Clusters[cid]
	if g == nil || c == nil {
		return
	}
	g.ClusterID = cid
	c.GroupIDs = append(c.GroupIDs, gid)
}

// removeProcedure deletes the procedure from the group, matching on the
// normalized identity key, and returns the canonical stored name.
func removeProcedure(g *models.ProcedureGroup, procedure string) string {
	key := catalog.NormalizeKey(procedure)
	for i, p := range g.Procedures {
		if catalog.NormalizeKey(p) == key {
			g.Procedures = append(g.Procedures[:i], g.Procedures[i+1:]...)
			g.IsSingleton = len(g.Procedures) == 1
			return p
		}
	}
	return procedure
}

func removeString(list []string, target string) []string {
	out := list[:0]
	for _, v := range list {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}

func sameTables(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
