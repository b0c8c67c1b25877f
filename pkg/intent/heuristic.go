package intent

import (
	"regexp"
	"strconv"
	"strings"
)

// rxName matches a quoted or backticked name, or a bare token.
var rxName = regexp.MustCompile("[`'\"]([^`'\"]+)[`'\"]|(\\S+)")

var rxDigits = regexp.MustCompile(`\b(\d+)\b`)

// ClassifyHeuristic recognizes commands by keyword, no model involved. It
// is the fallback when the LLM endpoint is unconfigured or unreachable.
func ClassifyHeuristic(prompt string) *Result {
	q := strings.TrimSpace(prompt)
	ql := strings.ToLower(q)

	switch {
	case contains(ql, "rename cluster"):
		return twoNameIntent(q, "rename_cluster", "cluster_id", "new_name")
	case contains(ql, "rename group", "rename procedure group"):
		return twoNameIntent(q, "rename_group", "group_id", "new_name")
	case contains(ql, "move group", "move procedure group") && contains(ql, "cluster", "to cluster"):
		return twoNameIntent(q, "move_group", "group_id", "target_cluster_id")
	case contains(ql, "move procedure", "move proc") && contains(ql, "cluster", "to cluster"):
		return twoNameIntent(q, "move_procedure", "procedure_name", "target_cluster_id")
	case contains(ql, "delete procedure", "delete proc", "remove procedure"):
		return oneNameIntent(q, "delete_procedure", "procedure_name")
	case contains(ql, "delete table", "remove table"):
		return oneNameIntent(q, "delete_table", "table_name")
	case contains(ql, "add cluster", "create cluster", "new cluster"):
		return twoNameIntent(q, "add_cluster", "cluster_id", "name")
	case contains(ql, "delete cluster", "remove cluster"):
		return oneNameIntent(q, "delete_cluster", "cluster_id")
	case contains(ql, "restore procedure", "restore proc"):
		r := twoNameIntent(q, "restore_procedure", "procedure_name", "target_cluster_id")
		if contains(ql, "new group", "separate group", "own group") {
			r.Arguments["force_new_group"] = true
		}
		return r
	case contains(ql, "restore table"):
		r := &Result{Operation: "restore_table", Confidence: 0.60, Source: SourceHeuristic, Arguments: map[string]any{}}
		if m := rxDigits.FindString(q); m != "" {
			if n, err := strconv.Atoi(m); err == nil {
				r.Arguments["trash_index"] = n
				r.Confidence = 0.95
			}
		}
		return r
	case contains(ql, "list trash", "show trash", "trash items", "what's in trash"):
		return &Result{Operation: "list_trash", Confidence: 0.95, Source: SourceHeuristic, Arguments: map[string]any{}}
	case contains(ql, "empty trash", "clear trash", "delete all trash"):
		return &Result{Operation: "empty_trash", Confidence: 0.95, Source: SourceHeuristic, Arguments: map[string]any{}}
	case contains(ql, "cluster summary", "show clusters", "list clusters", "overview"):
		return &Result{Operation: "get_cluster_summary", Confidence: 0.85, Source: SourceHeuristic, Arguments: map[string]any{}}
	case contains(ql, "cluster detail", "show cluster", "cluster info"):
		return oneNameIntent(q, "get_cluster_detail", "cluster_id")
	}

	return &Result{Operation: OpUnknown, Confidence: 0.3, Source: SourceFallback, Arguments: map[string]any{"query": prompt}}
}

// contains reports whether any phrase appears in text as whole words.
func contains(text string, phrases ...string) bool {
	padded := " " + text + " "
	for _, p := range phrases {
		if strings.Contains(padded, " "+p+" ") || strings.HasSuffix(text, p) {
			return true
		}
	}
	return false
}

// extractNames pulls up to count identifiers from the command text,
// skipping command vocabulary.
func extractNames(text string, count int) []string {
	stop := map[string]struct{}{
		"rename": {}, "move": {}, "delete": {}, "remove": {}, "restore": {},
		"add": {}, "create": {}, "new": {}, "cluster": {}, "group": {},
		"procedure": {}, "proc": {}, "table": {}, "to": {}, "into": {},
		"from": {}, "the": {}, "a": {}, "as": {}, "in": {}, "show": {},
		"list": {}, "trash": {}, "empty": {}, "clear": {}, "detail": {},
		"details": {}, "summary": {}, "info": {},
	}
	var names []string
	for _, m := range rxName.FindAllStringSubmatch(text, -1) {
		name := m[1]
		quoted := name != ""
		if name == "" {
			name = m[2]
		}
		if !quoted {
			if _, skip := stop[strings.ToLower(name)]; skip {
				continue
			}
		}
		name = strings.Trim(name, ".,;:")
		if name == "" {
			continue
		}
		dup := false
		for _, seen := range names {
			if strings.EqualFold(seen, name) {
				dup = true
				break
			}
		}
		if !dup {
			names = append(names, name)
		}
		if len(names) >= count {
			break
		}
	}
	return names
}

func oneNameIntent(text, op, key string) *Result {
	r := &Result{Operation: op, Confidence: 0.60, Source: SourceHeuristic, Arguments: map[string]any{}}
	if names := extractNames(text, 1); len(names) > 0 {
		r.Arguments[key] = names[0]
		r.Confidence = 0.95
	}
	return sanitize(r)
}

func twoNameIntent(text, op, firstKey, secondKey string) *Result {
	r := &Result{Operation: op, Confidence: 0.60, Source: SourceHeuristic, Arguments: map[string]any{}}
	names := extractNames(text, 2)
	if len(names) >= 1 {
		r.Arguments[firstKey] = names[0]
		r.Confidence = 0.65
	}
	if len(names) >= 2 {
		r.Arguments[secondKey] = names[1]
		r.Confidence = 0.95
	}
	return sanitize(r)
}
