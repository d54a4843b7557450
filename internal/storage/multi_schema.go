// Table specs live here so multitable and the backend packages can share them
// without import cycles.
package storage

import "strings"

// Logical column types. Each backend maps them to its own DDL type.
const (
	TypeText   = "text"
	TypeBigInt = "bigint"
	TypeInt    = "int"
	TypeDouble = "double"
	TypeDate   = "date"
)

// TableSpec describes one destination table.
type TableSpec struct {
	Name string `json:"name"`

	// PrimaryKey lists the key columns; more than one makes a composite key.
	PrimaryKey  []string         `json:"primary_key,omitempty"`
	Columns     []ColumnSpec     `json:"columns"`
	Constraints []ConstraintSpec `json:"constraints,omitempty"`
	Load        LoadSpec         `json:"load"`
}

// ColumnSpec describes one column.
type ColumnSpec struct {
	Name string `json:"name"`
	Type string `json:"type"` // one of the Type* constants

	// Size bounds text columns that take part in keys (MSSQL cannot index
	// NVARCHAR(MAX)). Zero means unbounded.
	Size int `json:"size,omitempty"`

	References string `json:"references,omitempty"` // e.g. "movies(movie_id)"
	Nullable   *bool  `json:"nullable,omitempty"`
}

type ConstraintSpec struct {
	Kind    string   `json:"kind"` // "unique"
	Columns []string `json:"columns"`
}

type LoadSpec struct {
	Dedupe *DedupeSpec `json:"dedupe,omitempty"`
}

type DedupeSpec struct {
	ConflictColumns []string `json:"conflict_columns"`
	Action          string   `json:"action"` // "do_nothing"
}

// ColumnNames returns the column names in declaration order.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// ConflictColumns returns the columns that identify a row for idempotent
// inserts: the dedupe columns when set, else the primary key.
func (t TableSpec) ConflictColumns() []string {
	if t.Load.Dedupe != nil && len(t.Load.Dedupe.ConflictColumns) > 0 {
		return t.Load.Dedupe.ConflictColumns
	}
	return t.PrimaryKey
}

// IsNullable reports the column's nullability; nil means NOT NULL.
func (c ColumnSpec) IsNullable() bool {
	return c.Nullable != nil && *c.Nullable
}

// LogicalType returns the lowercased, trimmed Type.
func (c ColumnSpec) LogicalType() string {
	return strings.ToLower(strings.TrimSpace(c.Type))
}

// Nullable is a convenience for building ColumnSpec literals.
func Nullable(b bool) *bool { return &b }
