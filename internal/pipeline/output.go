package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shpitdev/leadfinder/pkg/pipeline/schema"
)

// WriteCSV writes rows as a CSV with the stable Header() ordering.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header()); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.Values()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSONL writes one JSON object per row with keys in contract order.
// Empty nullable fields are written as null; integer fields as numbers.
func WriteJSONL(w io.Writer, rows []Row) error {
	bw := bufio.NewWriter(w)
	for _, r := range rows {
		line, err := encodeJSONRow(Contract, r.Values())
		if err != nil {
			return err
		}
		if _, err := bw.Write(line); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func encodeJSONRow(c schema.Contract, vals []string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range c.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')

		v := vals[i]
		switch {
		case v == "" && f.Nullable:
			buf.WriteString("null")
		case f.Type == "integer":
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				buf.WriteString(strconv.Itoa(n))
				continue
			}
			fallthrough
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Write serializes rows in the given format.
func Write(w io.Writer, format schema.Format, rows []Row) error {
	if format == schema.FormatJSONL {
		return WriteJSONL(w, rows)
	}
	return WriteCSV(w, rows)
}

// ReadCSV reads rows from a CSV using the stable Header() contract.
//
// Extra columns are ignored. Non-nullable columns must exist.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, err
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	if err := Contract.CheckHeader(header); err != nil {
		return nil, err
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rowFromValues(func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return rec[i]
		}))
	}
}

// ReadJSONL reads rows written by WriteJSONL. Nulls read back as "".
func ReadJSONL(r io.Reader) ([]Row, error) {
	var rows []Row
	dec := json.NewDecoder(r)
	dec.UseNumber()
	for line := 1; ; line++ {
		var obj map[string]any
		err := dec.Decode(&obj)
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		if err := Contract.CheckHeader(keys); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, rowFromValues(func(col string) string {
			switch v := obj[col].(type) {
			case string:
				return v
			case json.Number:
				return v.String()
			case bool:
				return strconv.FormatBool(v)
			default:
				return ""
			}
		}))
	}
}

// ReadFile reads an output file written in format. A missing file yields no
// rows and no error.
func ReadFile(path string, format schema.Format) ([]Row, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	if format == schema.FormatJSONL {
		return ReadJSONL(f)
	}
	return ReadCSV(f)
}

// FileOutput stores rows to a local file, replacing it atomically.
type FileOutput struct {
	Path   string
	Format schema.Format
}

func (o FileOutput) Store(ctx context.Context, rows []Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(o.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".output-*")
	if err != nil {
		return fmt.Errorf("create output temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := Write(tmp, o.Format, rows); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), o.Path); err != nil {
		return fmt.Errorf("commit output: %w", err)
	}
	return nil
}
