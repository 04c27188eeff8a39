package sqlconnector

import (
	"fmt"

	"github.com/syssam/qengine/dialect/sql"
	"github.com/syssam/qengine/query"
	"github.com/syssam/qengine/schema"
	"github.com/syssam/qengine/schema/field"
)

// scanRows reads every row, converting the columns to types. Columns of
// TypeInvalid are kept as returned by the driver.
func scanRows(rows *sql.Rows, types []field.Type) ([][]any, error) {
	var out [][]any
	for rows.Next() {
		values := make([]any, len(types))
		ptrs := make([]any, len(types))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("sqlconnector: scan: %w", err)
		}
		for i, t := range types {
			if !t.Valid() {
				continue
			}
			v, err := t.Normalize(values[i])
			if err != nil {
				return nil, fmt.Errorf("sqlconnector: scan column %d: %w", i, err)
			}
			values[i] = v
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlconnector: rows: %w", err)
	}
	return out, nil
}

func typesOf(fields []*schema.Field) []field.Type {
	types := make([]field.Type, len(fields))
	for i, f := range fields {
		types[i] = f.Type
	}
	return types
}

func columns(fields []*schema.Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.DBName()
	}
	return names
}

// qualified returns the columns of fields prefixed by a table name or alias.
func qualified(table string, fields []*schema.Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = table + "." + f.DBName()
	}
	return names
}

func firstRecord(sel query.FieldSelection, rows [][]any) *query.SingleRecord {
	if len(rows) == 0 {
		return nil
	}
	return &query.SingleRecord{Fields: sel, Values: rows[0]}
}

func reverse(rows [][]any) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
}
