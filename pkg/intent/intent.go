// Package intent turns free-text commands into structured operation calls.
// An OpenAI-compatible endpoint does the heavy lifting when configured; a
// keyword heuristic covers offline use. Classifier output is untrusted and
// is normalized and validated before it reaches the mutation engine.
package intent

import (
	"github.com/procmap-io/procmap/pkg/catalog"
)

// Result is one classified command.
type Result struct {
	Operation  string         `json:"operation"`
	Confidence float64        `json:"confidence"`
	Source     string         `json:"source"`
	Arguments  map[string]any `json:"arguments,omitempty"`
}

// Classification sources.
const (
	SourceLLM       = "llm"
	SourceHeuristic = "heuristic"
	SourceFallback  = "fallback"
)

// OpUnknown is returned when no operation could be recognized.
const OpUnknown = "unknown"

// Operations lists every operation the classifiers may emit, in the order
// they are offered to the model.
var Operations = []string{
	"rename_cluster",
	"rename_group",
	"move_group",
	"move_procedure",
	"delete_procedure",
	"delete_table",
	"add_cluster",
	"delete_cluster",
	"restore_procedure",
	"restore_table",
	"list_trash",
	"empty_trash",
	"get_cluster_summary",
	"get_cluster_detail",
}

var allowed = func() map[string]struct{} {
	m := make(map[string]struct{}, len(Operations))
	for _, op := range Operations {
		m[op] = struct{}{}
	}
	return m
}()

// nameArgs are the argument keys holding identifiers that need bracket and
// quote stripping.
var nameArgs = []string{
	"cluster_id", "group_id", "procedure", "procedure_name",
	"table_name", "new_name", "name", "display_name", "target_cluster_id",
}

// Known reports whether op is a recognized operation name.
func Known(op string) bool {
	_, ok := allowed[op]
	return ok
}

// sanitize clamps confidence and cleans identifier arguments in place.
func sanitize(r *Result) *Result {
	if r.Confidence < 0 {
		r.Confidence = 0
	}
	if r.Confidence > 1 {
		r.Confidence = 1
	}
	if !Known(r.Operation) {
		r.Operation = OpUnknown
	}
	for _, k := range nameArgs {
		if v, ok := r.Arguments[k].(string); ok {
			cleaned := catalog.CleanIdentifier(v)
			if cleaned == "" {
				delete(r.Arguments, k)
			} else {
				r.Arguments[k] = cleaned
			}
		}
	}
	return r
}
