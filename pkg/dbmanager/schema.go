package dbmanager

import (
	"fmt"
	"strings"
	"time"
)

// SchemaInfo is the structured form of the target database's schema. It is
// what the shared cache stores; Describe renders it for prompts.
type SchemaInfo struct {
	Database      string        `json:"database"`
	Tables        []TableSchema `json:"tables"`
	Relationships []ForeignKey  `json:"relationships"`
	FetchedAt     time.Time     `json:"fetched_at"`
}

type TableSchema struct {
	Name    string         `json:"name"`
	Columns []ColumnSchema `json:"columns"`
}

type ColumnSchema struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	IsNullable   bool    `json:"is_nullable"`
	IsPrimaryKey bool    `json:"is_primary_key"`
	DefaultValue *string `json:"default_value,omitempty"`
}

type ForeignKey struct {
	FromTable  string `json:"from_table"`
	FromColumn string `json:"from_column"`
	ToTable    string `json:"to_table"`
	ToColumn   string `json:"to_column"`
}

// Describe renders the schema as the text block embedded in LLM prompts.
func (s *SchemaInfo) Describe() string {
	var b strings.Builder
	b.WriteString("Database Schema:\n\n")

	b.WriteString("Tables:\n")
	for _, table := range s.Tables {
		fmt.Fprintf(&b, "- %s:\n", table.Name)
		for _, col := range table.Columns {
			fmt.Fprintf(&b, "  - %s (%s", col.Name, col.Type)
			if col.IsPrimaryKey {
				b.WriteString(", PK")
			}
			if !col.IsNullable {
				b.WriteString(", NOT NULL")
			}
			if col.DefaultValue != nil {
				fmt.Fprintf(&b, ", DEFAULT %s", *col.DefaultValue)
			}
			// one FK per column is enough for the prompt
			if fk, ok := s.foreignKeyFor(table.Name, col.Name); ok {
				fmt.Fprintf(&b, ", FK -> %s.%s", fk.ToTable, fk.ToColumn)
			}
			b.WriteString(")\n")
		}
	}
	b.WriteString("\n")

	if len(s.Relationships) > 0 {
		b.WriteString("Relationships (Foreign Keys):\n")
		for _, fk := range s.Relationships {
			fmt.Fprintf(&b, "- %s.%s -> %s.%s\n", fk.FromTable, fk.FromColumn, fk.ToTable, fk.ToColumn)
		}
		b.WriteString("\n")
	}

	b.WriteString("---")
	return b.String()
}

func (s *SchemaInfo) foreignKeyFor(table, column string) (ForeignKey, bool) {
	for _, fk := range s.Relationships {
		if fk.FromTable == table && fk.FromColumn == column {
			return fk, true
		}
	}
	return ForeignKey{}, false
}

// columnRow is one row of an information_schema style column listing.
type columnRow struct {
	TableName     string  `gorm:"column:table_name"`
	ColumnName    string  `gorm:"column:column_name"`
	DataType      string  `gorm:"column:data_type"`
	IsNullable    string  `gorm:"column:is_nullable"`
	ColumnDefault *string `gorm:"column:column_default"`
}

type keyRow struct {
	TableName  string `gorm:"column:table_name"`
	ColumnName string `gorm:"column:column_name"`
}

type foreignKeyRow struct {
	FromTable  string `gorm:"column:from_table"`
	FromColumn string `gorm:"column:from_column"`
	ToTable    string `gorm:"column:to_table"`
	ToColumn   string `gorm:"column:to_column"`
}

// buildSchema groups column rows by table, keeping the order the rows came
// in, and marks primary keys.
func buildSchema(database string, columns []columnRow, primaryKeys []keyRow, foreignKeys []foreignKeyRow) *SchemaInfo {
	pk := make(map[string]bool, len(primaryKeys))
	for _, k := range primaryKeys {
		pk[k.TableName+"."+k.ColumnName] = true
	}

	schema := &SchemaInfo{
		Database:      database,
		Tables:        []TableSchema{},
		Relationships: []ForeignKey{},
		FetchedAt:     time.Now().UTC(),
	}
	index := make(map[string]int)
	for _, row := range columns {
		i, ok := index[row.TableName]
		if !ok {
			schema.Tables = append(schema.Tables, TableSchema{Name: row.TableName})
			i = len(schema.Tables) - 1
			index[row.TableName] = i
		}
		schema.Tables[i].Columns = append(schema.Tables[i].Columns, ColumnSchema{
			Name:         row.ColumnName,
			Type:         row.DataType,
			IsNullable:   strings.EqualFold(row.IsNullable, "YES"),
			IsPrimaryKey: pk[row.TableName+"."+row.ColumnName],
			DefaultValue: row.ColumnDefault,
		})
	}

	for _, fk := range foreignKeys {
		schema.Relationships = append(schema.Relationships, ForeignKey(fk))
	}
	return schema
}
