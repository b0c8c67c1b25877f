// Package cluster implements the procedure clustering engine: table-access
// extraction, grouping by identical access sets, two-phase cluster
// assignment, and the mutable cluster state with its operations.
package cluster

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/procmap-io/procmap/pkg/catalog"
	"github.com/procmap-io/procmap/pkg/models"
)

// legacySystemTables are the pre-catalog-view system table names that still
// show up in older procedure bodies. Compared against the bare object name,
// case-insensitively.
var legacySystemTables = map[string]struct{}{
	"sysobjects":          {},
	"syscolumns":          {},
	"sysindexes":          {},
	"sysindexkeys":        {},
	"sysusers":            {},
	"sysdepends":          {},
	"syscomments":         {},
	"sysconstraints":      {},
	"sysreferences":       {},
	"systypes":            {},
	"sysfiles":            {},
	"sysfilegroups":       {},
	"sysforeignkeys":      {},
	"sysfulltextcatalogs": {},
	"sysmembers":          {},
	"sysmessages":         {},
	"syspermissions":      {},
	"sysprotects":         {},
	"sysprocesses":        {},
	"sysremotelogins":     {},
	"sysservers":          {},
	"sysdatabases":        {},
	"sysconfigures":       {},
	"syscurconfigs":       {},
	"syslanguages":        {},
	"syslockinfo":         {},
	"syslogins":           {},
	"sysaltfiles":         {},
	"syscacheobjects":     {},
	"syscharsets":         {},
	"sysdevices":          {},
	"sysoledbusers":       {},
	"sysdiagrams":         {},
}

// replicationPrefixes match replication and trace artifacts.
var replicationPrefixes = []string{"msreplication", "mspub", "mssub", "msmerge", "msdistribution", "trace_xe"}

// ExtractorOptions controls table-access extraction.
type ExtractorOptions struct {
	// ExcludeSystemTables drops sys.*, INFORMATION_SCHEMA.*, legacy system
	// table names, and replication/trace artifacts.
	ExcludeSystemTables bool

	// ExcludePatterns are case-insensitive substrings matched against the
	// normalized table name (temp/staging/archive tables).
	ExcludePatterns []string

	// CandidateSchemas is the ordered list of schemas tried when a reference
	// arrives unqualified. The first schema that matches a known table wins;
	// if none match, the first candidate is assumed and the guess is logged.
	CandidateSchemas []string
}

// DefaultExtractorOptions returns extraction defaults.
func DefaultExtractorOptions() ExtractorOptions {
	return ExtractorOptions{
		ExcludeSystemTables: true,
		CandidateSchemas:    []string{"dbo"},
	}
}

// Extraction is the result of table-access extraction across the catalog.
type Extraction struct {
	// Access maps each routine's display safe name to its sorted,
	// normalized table-access set. Routines whose entire access set was
	// excluded do not appear.
	Access map[string][]string

	// DisplayNames maps normalized table names to their original safe form.
	DisplayNames map[string]string

	// ExcludedRefs counts references dropped by the exclusion rules.
	ExcludedRefs int

	// DroppedRoutines lists routines whose access set was fully excluded.
	DroppedRoutines []string
}

// ExtractTableAccess derives each routine's table-access set (reads ∪
// writes) with exclusion filters applied.
func ExtractTableAccess(idx *catalog.Index, opts ExtractorOptions, logger *zap.Logger) *Extraction {
	if logger == nil {
		logger = zap.NewNop()
	}

	out := &Extraction{
		Access:       make(map[string][]string),
		DisplayNames: make(map[string]string),
	}

	for norm, routine := range idx.Routines() {
		procName := idx.RoutineName(norm)
		seen := make(map[string]struct{})
		var tables []string
		hadRefs := false

		for _, ref := range append(append([]models.TableRef{}, routine.Reads...), routine.Writes...) {
			safe := resolveRef(ref, idx, opts, logger)
			if safe == "" {
				continue
			}
			hadRefs = true
			key := catalog.NormalizeKey(safe)
			if isLikelyAlias(key) {
				continue
			}
			if excluded(key, opts) {
				out.ExcludedRefs++
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			tables = append(tables, key)
			if _, ok := out.DisplayNames[key]; !ok {
				out.DisplayNames[key] = safe
			}
		}

		if len(tables) == 0 {
			if hadRefs {
				out.DroppedRoutines = append(out.DroppedRoutines, procName)
			}
			continue
		}
		sort.Strings(tables)
		out.Access[procName] = tables
	}

	sort.Strings(out.DroppedRoutines)
	logger.Info("table access extracted",
		zap.Int("routines", len(out.Access)),
		zap.Int("excluded_refs", out.ExcludedRefs),
		zap.Int("dropped_routines", len(out.DroppedRoutines)))

	return out
}

// resolveRef turns a raw table reference into a safe name, resolving
// unqualified references against the candidate schema list.
func resolveRef(ref models.TableRef, idx *catalog.Index, opts ExtractorOptions, logger *zap.Logger) string {
	if ref.SafeName != "" {
		return catalog.CleanIdentifier(ref.SafeName)
	}
	name := catalog.CleanIdentifier(ref.Name)
	if name == "" {
		return ""
	}
	if ref.Schema != "" {
		return catalog.SafeName(ref.Schema, name)
	}
	if strings.Contains(name, ".") || strings.Contains(name, catalog.Separator) {
		return name
	}

	for _, schema := range opts.CandidateSchemas {
		candidate := catalog.SafeName(schema, name)
		if idx.HasTable(candidate) {
			return candidate
		}
	}
	if len(opts.CandidateSchemas) > 0 {
		guess := catalog.SafeName(opts.CandidateSchemas[0], name)
		logger.Debug("unqualified table reference, assuming first candidate schema",
			zap.String("reference", name),
			zap.String("assumed", guess))
		return guess
	}
	return name
}

// isLikelyAlias reports whether a normalized name looks like a query alias
// that escaped the parser rather than a real table.
func isLikelyAlias(key string) bool {
	if key == "" || len(key) == 1 {
		return true
	}
	if schema, name := catalog.SplitSafe(key); schema != "" {
		return len(name) <= 1
	}
	return len(key) <= 2
}

// excluded applies the system-table and user-pattern filters to a
// normalized table name.
func excluded(key string, opts ExtractorOptions) bool {
	if opts.ExcludeSystemTables {
		schema, name := catalog.SplitSafe(key)
		if schema == "sys" || schema == "information_schema" {
			return true
		}
		if _, ok := legacySystemTables[name]; ok {
			return true
		}
		for _, prefix := range replicationPrefixes {
			if strings.HasPrefix(name, prefix) {
				return true
			}
		}
	}
	for _, pattern := range opts.ExcludePatterns {
		if pattern == "" {
			continue
		}
		if strings.Contains(key, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}
