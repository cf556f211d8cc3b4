// Package csvengine streams RFC 4180 CSV files in and out of the vault
// (spec §4.J): quoted-field read/write via the standard library's
// encoding/csv, atomic write-then-rename, a companion ".vault.json"
// schema file, and schema inference over a sample of rows.
//
// Grounded on original_source's csv/commands.rs and csv/processor.rs
// (read_csv/infer_schema/save semantics, FREE_ROW_LIMIT) and on
// internal/hostapi.ValidatePath for vault-scoped path handling.
package csvengine

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/arkanvault/corevault/internal/frontmatter"
	"github.com/arkanvault/corevault/internal/vaulterr"
)

// FreeRowLimit is the maximum row count a non-premium account may read
// or write in one call.
const FreeRowLimit = 10_000

// schemaInferenceSample caps how many rows infer_schema examines.
const schemaInferenceSample = 500

// Data is the result of reading a CSV file: headers, data rows (header
// row excluded), how many data rows were actually seen in the file, and
// whether reading stopped early because of a row limit.
type Data struct {
	Headers   []string
	Rows      [][]string
	TotalRows int
	Truncated bool
}

// Read streams path as RFC 4180 CSV. maxRows, if non-nil, caps how
// many data rows are collected into Data.Rows and sets Truncated;
// decoding still continues to the end of the file, so TotalRows counts
// every data row in it. premium accounts may pass maxRows above FreeRowLimit or
// nil for unlimited; non-premium accounts are clamped to FreeRowLimit.
func Read(path string, maxRows *int, premium bool) (Data, error) {
	limit := effectiveLimit(maxRows, premium)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Data{}, vaulterr.New(vaulterr.NotFound, "csv file not found: %s", path)
		}
		return Data{}, vaulterr.Wrap(vaulterr.IoError, err, "open csv file %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // tolerate ragged rows; callers validate shape themselves

	header, err := r.Read()
	if err == io.EOF {
		return Data{Headers: []string{}, Rows: [][]string{}}, nil
	}
	if err != nil {
		return Data{}, vaulterr.Wrap(vaulterr.Corrupted, err, "read csv header of %s", path)
	}

	var rows [][]string
	total := 0
	truncated := false
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Data{}, vaulterr.Wrap(vaulterr.Corrupted, err, "read csv row %d of %s", total+1, path)
		}
		total++
		if limit != nil && len(rows) >= *limit {
			truncated = true
			continue
		}
		rows = append(rows, rec)
	}

	return Data{
		Headers:   header,
		Rows:      rows,
		TotalRows: total,
		Truncated: truncated,
	}, nil
}

func effectiveLimit(maxRows *int, premium bool) *int {
	if premium {
		return maxRows
	}
	limit := FreeRowLimit
	if maxRows != nil && *maxRows < limit {
		limit = *maxRows
	}
	return &limit
}

// Write renders headers and rows as RFC 4180 CSV and atomically
// replaces path: the full document is built in memory, written to a
// temp file in path's directory, then renamed over path. Non-premium
// accounts are rejected if rows exceeds FreeRowLimit.
func Write(path string, headers []string, rows [][]string, premium bool) error {
	if !premium && len(rows) > FreeRowLimit {
		return vaulterr.New(vaulterr.QuotaExceeded, "free accounts are limited to %d rows, got %d", FreeRowLimit, len(rows))
	}

	var buf strings.Builder
	w := csv.NewWriter(&buf)
	if err := w.Write(headers); err != nil {
		return vaulterr.Wrap(vaulterr.IoError, err, "encode csv header for %s", path)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return vaulterr.Wrap(vaulterr.IoError, err, "encode csv row for %s", path)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return vaulterr.Wrap(vaulterr.IoError, err, "flush csv for %s", path)
	}

	if err := frontmatter.WriteFileAtomic(path, []byte(buf.String())); err != nil {
		return vaulterr.Wrap(vaulterr.IoError, err, "write csv file %s", path)
	}
	return nil
}

// SchemaPath returns the companion schema file path for a CSV file
// path, "<name>.csv" -> "<name>.vault.json".
func SchemaPath(csvPath string) string {
	ext := filepath.Ext(csvPath)
	return strings.TrimSuffix(csvPath, ext) + ".vault.json"
}

// ColumnType is the closed set of types a schema column may declare.
type ColumnType string

const (
	TypeString  ColumnType = "string"
	TypeInteger ColumnType = "integer"
	TypeNumber  ColumnType = "number"
	TypeBoolean ColumnType = "boolean"
	TypeDate    ColumnType = "date"
)

// Column describes one inferred or authored schema column.
type Column struct {
	Name        string     `json:"name"`
	Type        ColumnType `json:"type"`
	Nullable    bool       `json:"nullable"`
	Description string     `json:"description,omitempty"`
}

// Schema is the persisted shape of a CSV file's companion schema.
type Schema struct {
	Columns []Column `json:"columns"`
}

// InferSchema samples up to schemaInferenceSample rows of data and
// picks, for each column, the narrowest type that accepts every
// sampled non-empty value; a column is Nullable if any sampled value in
// it was empty.
func InferSchema(headers []string, rows [][]string) Schema {
	sample := rows
	if len(sample) > schemaInferenceSample {
		sample = sample[:schemaInferenceSample]
	}

	cols := make([]Column, len(headers))
	for i, name := range headers {
		var t ColumnType
		nullable := false
		sawValue := false
		for _, row := range sample {
			if i >= len(row) {
				continue
			}
			v := row[i]
			if v == "" {
				nullable = true
				continue
			}
			if !sawValue {
				t = classify(v)
			} else {
				t = widen(t, classify(v))
			}
			sawValue = true
		}
		if !sawValue {
			t = TypeString
		}
		cols[i] = Column{Name: name, Type: t, Nullable: nullable}
	}
	return Schema{Columns: cols}
}

// widen returns the narrowest type that accepts every value either a or b
// accepts. Integer and Number nest (every integer literal parses as a
// number); every other pairing of distinct types has no common narrower
// type, so it falls back to String.
func widen(a, b ColumnType) ColumnType {
	if a == b {
		return a
	}
	if (a == TypeInteger && b == TypeNumber) || (a == TypeNumber && b == TypeInteger) {
		return TypeNumber
	}
	return TypeString
}

func classify(v string) ColumnType {
	if v == "true" || v == "false" {
		return TypeBoolean
	}
	if _, err := strconv.ParseInt(v, 10, 64); err == nil {
		return TypeInteger
	}
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return TypeNumber
	}
	if looksLikeDate(v) {
		return TypeDate
	}
	return TypeString
}

// looksLikeDate matches YYYY-MM-DD, the only calendar-date shape the
// rest of the vault (task due dates) uses.
func looksLikeDate(v string) bool {
	if len(v) != 10 || v[4] != '-' || v[7] != '-' {
		return false
	}
	for i, r := range v {
		if i == 4 || i == 7 {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
