package local

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadRecordsCSV reads a CSV file into one map per row keyed by canonical
// column name. Header matching is case-insensitive and ignores surrounding
// whitespace. Columns in required must be present; optional columns map to ""
// when absent.
func ReadRecordsCSV(r io.Reader, required, optional []string) ([]map[string]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	// Excel exports often start with a UTF-8 BOM.
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	idx := make(map[string]int, len(required)+len(optional))
	locate := func(name string) int {
		for i, col := range header {
			if strings.EqualFold(strings.TrimSpace(col), name) {
				return i
			}
		}
		return -1
	}
	for _, name := range required {
		i := locate(name)
		if i < 0 {
			return nil, fmt.Errorf("missing required column %q", name)
		}
		idx[name] = i
	}
	for _, name := range optional {
		if i := locate(name); i >= 0 {
			idx[name] = i
		}
	}

	var out []map[string]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		row := make(map[string]string, len(required)+len(optional))
		for _, name := range optional {
			row[name] = ""
		}
		for name, i := range idx {
			if i < len(rec) {
				row[name] = strings.TrimSpace(rec[i])
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// CSVInput loads typed records from a CSV file on disk.
type CSVInput[T any] struct {
	Path     string
	Required []string
	Optional []string
	// Decode converts one row. Rows for which it returns false are skipped.
	Decode func(row map[string]string) (T, bool)
}

func (in CSVInput[T]) Load(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(in.Path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	rows, err := ReadRecordsCSV(f, in.Required, in.Optional)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", in.Path, err)
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		v, ok := in.Decode(row)
		if !ok {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}
