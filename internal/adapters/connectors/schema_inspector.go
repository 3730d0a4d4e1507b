package connectors

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/rs/zerolog/log"

	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
	"github.com/zatekoja/databaseguru/backend/internal/domain/providers"
	"github.com/zatekoja/databaseguru/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/databaseguru/backend/pkg/errors"
)

// SchemaInspector reads table metadata through the connection itself: information_schema for
// PostgreSQL and MySQL, sqlite_master and pragmas for SQLite.
type SchemaInspector struct{}

// NewSchemaInspector creates a new schema inspector
func NewSchemaInspector() *SchemaInspector {
	return &SchemaInspector{}
}

// GetSchema returns the tables of conn in declaration order
func (i *SchemaInspector) GetSchema(ctx context.Context, conn providers.Connection) (*entities.Schema, error) {
	ctx, span := observability.StartSpan(ctx, "schema.inspect")
	defer span.End()

	var (
		schema *entities.Schema
		err    error
	)
	switch conn.Kind() {
	case entities.DatabaseKindPostgres:
		schema, err = i.inspectInformationSchema(ctx, conn, "postgres", goqu.Func("current_schema"))
	case entities.DatabaseKindMySQL:
		schema, err = i.inspectInformationSchema(ctx, conn, "mysql", goqu.Func("DATABASE"))
	case entities.DatabaseKindSQLite:
		schema, err = i.inspectSQLite(ctx, conn)
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("unsupported database kind %q", conn.Kind()))
	}
	if err != nil {
		observability.RecordError(span, err)
		return nil, apperrors.NewExternalError("schema introspection failed for "+conn.ID(), err)
	}

	log.Debug().
		Str("connection_id", conn.ID()).
		Int("tables", len(schema.Tables)).
		Msg("inspected schema")
	return schema, nil
}

func infoTable(name string) exp.IdentifierExpression {
	return goqu.T(name).Schema("information_schema")
}

func (i *SchemaInspector) inspectInformationSchema(ctx context.Context, conn providers.Connection, dialect string, current exp.SQLFunctionExpression) (*entities.Schema, error) {
	d := goqu.Dialect(dialect)

	columnsSQL, _, err := d.From(infoTable("columns").As("c")).
		Join(infoTable("tables").As("t"), goqu.On(
			goqu.I("t.table_schema").Eq(goqu.I("c.table_schema")),
			goqu.I("t.table_name").Eq(goqu.I("c.table_name")),
		)).
		Select(
			goqu.I("c.table_name").As("table_name"),
			goqu.I("c.column_name").As("column_name"),
			goqu.I("c.data_type").As("data_type"),
			goqu.I("c.is_nullable").As("is_nullable"),
		).
		Where(
			goqu.I("c.table_schema").Eq(current),
			goqu.I("t.table_type").Eq("BASE TABLE"),
		).
		Order(goqu.I("c.table_name").Asc(), goqu.I("c.ordinal_position").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build columns query: %w", err)
	}

	primaryKeysSQL, _, err := d.From(infoTable("table_constraints").As("tc")).
		Join(infoTable("key_column_usage").As("kcu"), goqu.On(
			goqu.I("kcu.constraint_name").Eq(goqu.I("tc.constraint_name")),
			goqu.I("kcu.table_schema").Eq(goqu.I("tc.table_schema")),
			goqu.I("kcu.table_name").Eq(goqu.I("tc.table_name")),
		)).
		Select(
			goqu.I("kcu.table_name").As("table_name"),
			goqu.I("kcu.column_name").As("column_name"),
		).
		Where(
			goqu.I("tc.constraint_type").Eq("PRIMARY KEY"),
			goqu.I("tc.table_schema").Eq(current),
		).
		Order(goqu.I("kcu.table_name").Asc(), goqu.I("kcu.ordinal_position").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build primary key query: %w", err)
	}

	foreignKeysSQL, err := foreignKeyQuery(d, dialect, current)
	if err != nil {
		return nil, err
	}

	columns, err := conn.Execute(ctx, columnsSQL, 0)
	if err != nil {
		return nil, err
	}
	builder := newSchemaBuilder()
	for _, row := range columns.Rows {
		builder.column(stringValue(row["table_name"]), entities.ColumnSchema{
			Name:     stringValue(row["column_name"]),
			Type:     stringValue(row["data_type"]),
			Nullable: strings.EqualFold(stringValue(row["is_nullable"]), "YES"),
		})
	}

	if pks, err := conn.Execute(ctx, primaryKeysSQL, 0); err == nil {
		for _, row := range pks.Rows {
			builder.primaryKey(stringValue(row["table_name"]), stringValue(row["column_name"]))
		}
	} else {
		log.Warn().Err(err).Str("connection_id", conn.ID()).Msg("failed to read primary keys")
	}

	if fks, err := conn.Execute(ctx, foreignKeysSQL, 0); err == nil {
		for _, row := range fks.Rows {
			builder.foreignKey(
				stringValue(row["table_name"]),
				stringValue(row["constraint_name"]),
				stringValue(row["column_name"]),
				stringValue(row["referenced_table_name"]),
				stringValue(row["referenced_column_name"]),
			)
		}
	} else {
		log.Warn().Err(err).Str("connection_id", conn.ID()).Msg("failed to read foreign keys")
	}

	return builder.build(), nil
}

func foreignKeyQuery(d goqu.DialectWrapper, dialect string, current exp.SQLFunctionExpression) (string, error) {
	var ds *goqu.SelectDataset
	if dialect == "mysql" {
		ds = d.From(infoTable("key_column_usage").As("kcu")).
			Select(
				goqu.I("kcu.constraint_name").As("constraint_name"),
				goqu.I("kcu.table_name").As("table_name"),
				goqu.I("kcu.column_name").As("column_name"),
				goqu.I("kcu.referenced_table_name").As("referenced_table_name"),
				goqu.I("kcu.referenced_column_name").As("referenced_column_name"),
			).
			Where(
				goqu.I("kcu.table_schema").Eq(current),
				goqu.I("kcu.referenced_table_name").IsNotNull(),
			)
	} else {
		ds = d.From(infoTable("table_constraints").As("tc")).
			Join(infoTable("key_column_usage").As("kcu"), goqu.On(
				goqu.I("kcu.constraint_name").Eq(goqu.I("tc.constraint_name")),
				goqu.I("kcu.table_schema").Eq(goqu.I("tc.table_schema")),
			)).
			Join(infoTable("constraint_column_usage").As("ccu"), goqu.On(
				goqu.I("ccu.constraint_name").Eq(goqu.I("tc.constraint_name")),
				goqu.I("ccu.constraint_schema").Eq(goqu.I("tc.constraint_schema")),
			)).
			Select(
				goqu.I("tc.constraint_name").As("constraint_name"),
				goqu.I("kcu.table_name").As("table_name"),
				goqu.I("kcu.column_name").As("column_name"),
				goqu.I("ccu.table_name").As("referenced_table_name"),
				goqu.I("ccu.column_name").As("referenced_column_name"),
			).
			Where(
				goqu.I("tc.constraint_type").Eq("FOREIGN KEY"),
				goqu.I("tc.table_schema").Eq(current),
			)
	}
	query, _, err := ds.Order(goqu.I("kcu.table_name").Asc(), goqu.I("kcu.ordinal_position").Asc()).ToSQL()
	if err != nil {
		return "", fmt.Errorf("failed to build foreign key query: %w", err)
	}
	return query, nil
}

func (i *SchemaInspector) inspectSQLite(ctx context.Context, conn providers.Connection) (*entities.Schema, error) {
	tablesSQL, _, err := goqu.Dialect("sqlite3").
		From("sqlite_master").
		Select("name").
		Where(goqu.C("type").Eq("table"), goqu.C("name").NotLike("sqlite_%")).
		Order(goqu.L("rowid").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build table query: %w", err)
	}

	tables, err := conn.Execute(ctx, tablesSQL, 0)
	if err != nil {
		return nil, err
	}

	builder := newSchemaBuilder()
	for _, t := range tables.Rows {
		name := stringValue(t["name"])
		builder.table(name)

		info, err := conn.Execute(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteSQLiteIdent(name)), 0)
		if err != nil {
			return nil, err
		}
		type pkColumn struct {
			position int
			name     string
		}
		var pks []pkColumn
		for _, c := range info.Rows {
			column := stringValue(c["name"])
			builder.column(name, entities.ColumnSchema{
				Name:     column,
				Type:     stringValue(c["type"]),
				Nullable: intValue(c["notnull"]) == 0,
			})
			if pos := intValue(c["pk"]); pos > 0 {
				pks = append(pks, pkColumn{position: pos, name: column})
			}
		}
		sort.Slice(pks, func(a, b int) bool { return pks[a].position < pks[b].position })
		for _, pk := range pks {
			builder.primaryKey(name, pk.name)
		}

		fks, err := conn.Execute(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%s)", quoteSQLiteIdent(name)), 0)
		if err != nil {
			log.Warn().Err(err).Str("table", name).Msg("failed to read sqlite foreign keys")
			continue
		}
		for _, fk := range fks.Rows {
			builder.foreignKey(name, stringValue(fk["id"]), stringValue(fk["from"]), stringValue(fk["table"]), stringValue(fk["to"]))
		}
	}
	return builder.build(), nil
}

// schemaBuilder assembles tables in first-seen order.
type schemaBuilder struct {
	order  []string
	tables map[string]*entities.TableSchema
	fks    map[string]map[string]int
}

func newSchemaBuilder() *schemaBuilder {
	return &schemaBuilder{
		tables: make(map[string]*entities.TableSchema),
		fks:    make(map[string]map[string]int),
	}
}

func (b *schemaBuilder) table(name string) *entities.TableSchema {
	if t, ok := b.tables[name]; ok {
		return t
	}
	t := &entities.TableSchema{Name: name}
	b.tables[name] = t
	b.order = append(b.order, name)
	return t
}

func (b *schemaBuilder) column(table string, c entities.ColumnSchema) {
	t := b.table(table)
	t.Columns = append(t.Columns, c)
}

func (b *schemaBuilder) primaryKey(table, column string) {
	if _, ok := b.tables[table]; !ok {
		return
	}
	t := b.tables[table]
	t.PrimaryKeys = append(t.PrimaryKeys, column)
}

// foreignKey groups the columns of one constraint into a single ForeignKey.
func (b *schemaBuilder) foreignKey(table, constraint, column, refTable, refColumn string) {
	t, ok := b.tables[table]
	if !ok {
		return
	}
	byName, ok := b.fks[table]
	if !ok {
		byName = make(map[string]int)
		b.fks[table] = byName
	}
	idx, ok := byName[constraint]
	if !ok {
		t.ForeignKeys = append(t.ForeignKeys, entities.ForeignKey{ReferencedTable: refTable})
		idx = len(t.ForeignKeys) - 1
		byName[constraint] = idx
	}
	fk := &t.ForeignKeys[idx]
	fk.Columns = append(fk.Columns, column)
	fk.ReferencedColumns = append(fk.ReferencedColumns, refColumn)
}

func (b *schemaBuilder) build() *entities.Schema {
	schema := &entities.Schema{Tables: make([]entities.TableSchema, 0, len(b.order))}
	for _, name := range b.order {
		schema.Tables = append(schema.Tables, *b.tables[name])
	}
	return schema
}

func quoteSQLiteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	}
	return fmt.Sprint(v)
}

func intValue(v any) int {
	switch val := v.(type) {
	case int:
		return val
	case int32:
		return int(val)
	case int64:
		return int(val)
	case float64:
		return int(val)
	}
	n, _ := strconv.Atoi(stringValue(v))
	return n
}
