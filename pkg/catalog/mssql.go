package catalog

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"

	"github.com/procmap-io/procmap/pkg/models"
)

// LiveLoader builds a catalog document directly from a SQL Server instance
// using the server's own dependency metadata. It produces the same document
// shape as the offline cataloger, with one caveat: expression dependencies
// do not distinguish reads from writes, so every table reference lands in
// Reads. Grouping is unaffected since the access set is reads ∪ writes.
type LiveLoader struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewLiveLoader opens a connection to SQL Server. The DSN uses the standard
// sqlserver:// URL form.
func NewLiveLoader(dsn string, logger *zap.Logger) (*LiveLoader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlserver: %w", err)
	}
	return &LiveLoader{db: db, logger: logger.Named("mssql")}, nil
}

// Close releases the underlying connection pool.
func (l *LiveLoader) Close() error {
	return l.db.Close()
}

// Load enumerates tables, views, procedures, and functions, then attaches
// table references from sys.sql_expression_dependencies.
func (l *LiveLoader) Load(ctx context.Context) (*models.CatalogDocument, error) {
	doc := &models.CatalogDocument{
		Tables:     make(map[string]*models.CatalogTable),
		Views:      make(map[string]*models.CatalogTable),
		Procedures: make(map[string]*models.CatalogRoutine),
		Functions:  make(map[string]*models.CatalogRoutine),
	}

	if err := l.loadObjects(ctx, doc); err != nil {
		return nil, err
	}
	if err := l.loadColumns(ctx, doc); err != nil {
		return nil, err
	}
	if err := l.loadDependencies(ctx, doc); err != nil {
		return nil, err
	}

	l.logger.Info("live catalog loaded",
		zap.Int("tables", len(doc.Tables)),
		zap.Int("views", len(doc.Views)),
		zap.Int("procedures", len(doc.Procedures)),
		zap.Int("functions", len(doc.Functions)))

	return doc, nil
}

func (l *LiveLoader) loadObjects(ctx context.Context, doc *models.CatalogDocument) error {
	query := `
	SET NOCOUNT ON;
	SELECT SCHEMA_NAME(o.schema_id), o.name, o.type
	FROM sys.objects o
	WHERE o.is_ms_shipped = 0
	  AND o.type IN ('U', 'V', 'P', 'FN', 'IF', 'TF')
	ORDER BY SCHEMA_NAME(o.schema_id), o.name
	`
	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("query objects: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var schema, name, objType string
		if err := rows.Scan(&schema, &name, &objType); err != nil {
			return fmt.Errorf("scan object row: %w", err)
		}
		safe := SafeName(schema, name)
		switch objType {
		case "U":
			doc.Tables[safe] = &models.CatalogTable{Schema: schema, OriginalName: name, Columns: map[string]models.CatalogColumn{}}
		case "V":
			doc.Views[safe] = &models.CatalogTable{Schema: schema, OriginalName: name}
		case "P":
			doc.Procedures[safe] = &models.CatalogRoutine{Schema: schema, OriginalName: name}
		default: // FN, IF, TF
			doc.Functions[safe] = &models.CatalogRoutine{Schema: schema, OriginalName: name}
		}
	}
	return rows.Err()
}

func (l *LiveLoader) loadColumns(ctx context.Context, doc *models.CatalogDocument) error {
	query := `
	SET NOCOUNT ON;
	SELECT SCHEMA_NAME(t.schema_id), t.name, c.name, tp.name,
	       CASE WHEN c.is_nullable = 1 THEN 1 ELSE 0 END
	FROM sys.tables t
	INNER JOIN sys.columns c ON c.object_id = t.object_id
	INNER JOIN sys.types tp ON tp.user_type_id = c.user_type_id
	WHERE t.is_ms_shipped = 0
	ORDER BY t.schema_id, t.name, c.column_id
	`
	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var schema, table, column, dataType string
		var nullable bool
		if err := rows.Scan(&schema, &table, &column, &dataType, &nullable); err != nil {
			return fmt.Errorf("scan column row: %w", err)
		}
		if t, ok := doc.Tables[SafeName(schema, table)]; ok {
			t.Columns[column] = models.CatalogColumn{Type: dataType, Nullable: nullable}
		}
	}
	return rows.Err()
}

func (l *LiveLoader) loadDependencies(ctx context.Context, doc *models.CatalogDocument) error {
	query := `
	SET NOCOUNT ON;
	SELECT SCHEMA_NAME(o.schema_id), o.name, o.type,
	       ISNULL(d.referenced_schema_name, N''), d.referenced_entity_name,
	       CASE WHEN ro.type IN ('P', 'FN', 'IF', 'TF') THEN 1 ELSE 0 END
	FROM sys.sql_expression_dependencies d
	INNER JOIN sys.objects o ON o.object_id = d.referencing_id
	LEFT JOIN sys.objects ro ON ro.object_id = d.referenced_id
	WHERE o.is_ms_shipped = 0
	  AND o.type IN ('P', 'FN', 'IF', 'TF')
	  AND d.referenced_database_name IS NULL
	`
	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("query dependencies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var schema, name, objType, refSchema, refName string
		var isRoutineRef bool
		if err := rows.Scan(&schema, &name, &objType, &refSchema, &refName, &isRoutineRef); err != nil {
			return fmt.Errorf("scan dependency row: %w", err)
		}

		var routine *models.CatalogRoutine
		safe := SafeName(schema, name)
		if objType == "P" {
			routine = doc.Procedures[safe]
		} else {
			routine = doc.Functions[safe]
		}
		if routine == nil {
			continue
		}

		ref := models.TableRef{Schema: refSchema, Name: refName}
		if isRoutineRef {
			routine.Calls = append(routine.Calls, ref)
		} else {
			routine.Reads = append(routine.Reads, ref)
		}
	}
	return rows.Err()
}
