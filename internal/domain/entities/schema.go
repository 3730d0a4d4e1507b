package entities

import (
	"fmt"
	"strings"
)

// ColumnSchema describes one column.
type ColumnSchema struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable,omitempty"`
}

// ForeignKey links columns of one table to another.
type ForeignKey struct {
	Columns           []string `json:"columns"`
	ReferencedTable   string   `json:"referenced_table"`
	ReferencedColumns []string `json:"referenced_columns"`
}

// TableSchema describes one table.
type TableSchema struct {
	Name        string         `json:"name"`
	Columns     []ColumnSchema `json:"columns"`
	PrimaryKeys []string       `json:"primary_keys,omitempty"`
	ForeignKeys []ForeignKey   `json:"foreign_keys,omitempty"`
}

// ColumnNames returns the column names in declaration order.
func (t TableSchema) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		names = append(names, c.Name)
	}
	return names
}

// Schema is the engine-agnostic description of a database. Tables keep declaration order.
type Schema struct {
	Tables []TableSchema `json:"tables"`
}

// Validate rejects schemas that the correction pipeline cannot reason about.
func (s *Schema) Validate() error {
	seen := make(map[string]struct{}, len(s.Tables))
	for i, t := range s.Tables {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return fmt.Errorf("table %d has no name", i)
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("table %q declared twice", t.Name)
		}
		seen[key] = struct{}{}
		for j, c := range t.Columns {
			if strings.TrimSpace(c.Name) == "" {
				return fmt.Errorf("column %d of table %q has no name", j, t.Name)
			}
		}
	}
	return nil
}

// TableNames returns table names in declaration order.
func (s *Schema) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for _, t := range s.Tables {
		names = append(names, t.Name)
	}
	return names
}

// Table looks a table up case-insensitively.
func (s *Schema) Table(name string) (TableSchema, bool) {
	for _, t := range s.Tables {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return TableSchema{}, false
}

// AllColumnNames returns every distinct column name, first occurrence wins.
func (s *Schema) AllColumnNames() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, t := range s.Tables {
		for _, c := range t.Columns {
			key := strings.ToLower(c.Name)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			names = append(names, c.Name)
		}
	}
	return names
}
