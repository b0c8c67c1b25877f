// Package catalog loads and indexes the SQL Server catalog document that
// the clustering engine consumes.
package catalog

import "strings"

// Separator joins schema and object name inside a safe name. It is distinct
// from '.' so that safe names survive being used as map keys and DOT node
// ids; presentation boundaries convert it back via Display.
const Separator = "·"

// CleanIdentifier strips SQL quoting ([brackets], backticks, quotes) and
// collapses internal whitespace to single spaces.
func CleanIdentifier(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "`'\"")
	s = strings.ReplaceAll(s, "[", "")
	s = strings.ReplaceAll(s, "]", "")
	return strings.Join(strings.Fields(s), " ")
}

// SafeName builds the canonical schema-qualified form. An empty schema
// yields the bare object name.
func SafeName(schema, name string) string {
	schema = CleanIdentifier(schema)
	name = CleanIdentifier(name)
	if schema == "" {
		return name
	}
	return schema + Separator + name
}

// NormalizeKey folds a safe name (or a dotted schema.table form) into the
// case-insensitive identity key. Two names that normalize identically are
// the same entity.
func NormalizeKey(s string) string {
	s = CleanIdentifier(s)
	s = strings.ReplaceAll(s, ".", Separator)
	return strings.ToLower(s)
}

// Display renders a safe name for presentation, with '.' as the separator.
func Display(safe string) string {
	return strings.ReplaceAll(safe, Separator, ".")
}

// SplitSafe returns the schema and object parts of a safe name. Names
// without a separator return an empty schema.
func SplitSafe(safe string) (schema, name string) {
	if i := strings.Index(safe, Separator); i >= 0 {
		return safe[:i], safe[i+len(Separator):]
	}
	return "", safe
}
