package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/procmap-io/procmap/pkg/models"
)

// Load reads a catalog document from disk. Exports wrapped in a top-level
// {"Catalog": ...} envelope are unwrapped; a UTF-8 BOM is tolerated.
func Load(path string, logger *zap.Logger) (*models.CatalogDocument, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))

	var envelope struct {
		Catalog json.RawMessage `json:"Catalog"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Catalog) > 0 {
		raw = envelope.Catalog
	}

	var doc models.CatalogDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	logger.Info("catalog loaded",
		zap.String("path", path),
		zap.Int("tables", len(doc.Tables)),
		zap.Int("views", len(doc.Views)),
		zap.Int("procedures", len(doc.Procedures)),
		zap.Int("functions", len(doc.Functions)))

	return &doc, nil
}

// Index provides case-insensitive lookups over a catalog document.
type Index struct {
	// knownTables maps normalized keys to display safe names for every
	// table and view in the catalog.
	knownTables map[string]string

	// routines maps normalized keys to procedures and functions.
	routines map[string]*models.CatalogRoutine

	// routineNames preserves the original display name per routine key.
	routineNames map[string]string
}

// NewIndex builds lookup maps from a catalog document.
func NewIndex(doc *models.CatalogDocument) *Index {
	idx := &Index{
		knownTables:  make(map[string]string),
		routines:     make(map[string]*models.CatalogRoutine),
		routineNames: make(map[string]string),
	}

	addTable := func(key string, t *models.CatalogTable) {
		safe := entitySafeName(key, t.Schema, t.OriginalName, t.SafeName)
		idx.knownTables[NormalizeKey(safe)] = safe
	}
	for key, t := range doc.Tables {
		addTable(key, t)
	}
	for key, v := range doc.Views {
		addTable(key, v)
	}

	addRoutine := func(key string, r *models.CatalogRoutine) {
		safe := entitySafeName(key, r.Schema, r.OriginalName, r.SafeName)
		norm := NormalizeKey(safe)
		idx.routines[norm] = r
		idx.routineNames[norm] = safe
	}
	for key, p := range doc.Procedures {
		addRoutine(key, p)
	}
	for key, f := range doc.Functions {
		addRoutine(key, f)
	}

	return idx
}

// entitySafeName reconciles the map key with the entity's own name fields.
func entitySafeName(key, schema, originalName, safeName string) string {
	name := originalName
	if name == "" {
		name = safeName
	}
	if name == "" {
		name = key
	}
	return SafeName(schema, name)
}

// HasTable reports whether a table or view with the given name exists.
// The name may be in safe or dotted form.
func (idx *Index) HasTable(name string) bool {
	_, ok := idx.knownTables[NormalizeKey(name)]
	return ok
}

// KnownTables returns the display safe names of all tables and views,
// keyed by normalized identity.
func (idx *Index) KnownTables() map[string]string {
	out := make(map[string]string, len(idx.knownTables))
	for k, v := range idx.knownTables {
		out[k] = v
	}
	return out
}

// Routines returns every procedure and function keyed by normalized safe
// name, with the display name alongside.
func (idx *Index) Routines() map[string]*models.CatalogRoutine {
	out := make(map[string]*models.CatalogRoutine, len(idx.routines))
	for k, v := range idx.routines {
		out[k] = v
	}
	return out
}

// RoutineName returns the display safe name for a routine key.
func (idx *Index) RoutineName(norm string) string {
	return idx.routineNames[norm]
}
