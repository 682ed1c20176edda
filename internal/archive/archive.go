// Package archive remembers which leads were already harvested across runs.
package archive

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/shpitdev/leadfinder/internal/leads"
	"github.com/shpitdev/leadfinder/pkg/pipeline/io/local"
)

const (
	StatusNew       = "New"
	StatusHarvested = "Already Harvested"
)

var header = []string{"Business Name", "Phone", "Website", "Address"}

// Record is one archived lead. Identity is (Name, Phone, Website).
type Record struct {
	Name    string
	Phone   string
	Website string
	Address string
}

func (r Record) key() [3]string {
	return [3]string{r.Name, r.Phone, r.Website}
}

func fromLead(l leads.Lead) Record {
	return Record{Name: l.Name, Phone: l.Phone, Website: l.Website, Address: l.Address}
}

// Archive is an in-memory view of the archive file. Not safe for concurrent use.
type Archive struct {
	path    string
	records []Record
	index   map[[3]string]struct{}
}

// Open loads the archive at path. A missing file is an empty archive.
func Open(path string) (*Archive, error) {
	a := &Archive{path: path, index: make(map[[3]string]struct{})}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return a, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	rows, err := local.ReadRecordsCSV(f, header[:1], header[1:])
	if err != nil {
		return nil, fmt.Errorf("read archive %s: %w", path, err)
	}
	for _, row := range rows {
		a.add(Record{
			Name:    row["Business Name"],
			Phone:   row["Phone"],
			Website: row["Website"],
			Address: row["Address"],
		})
	}
	return a, nil
}

func (a *Archive) add(r Record) bool {
	k := r.key()
	if _, ok := a.index[k]; ok {
		return false
	}
	a.index[k] = struct{}{}
	a.records = append(a.records, r)
	return true
}

func (a *Archive) Len() int { return len(a.records) }

func (a *Archive) Contains(l leads.Lead) bool {
	_, ok := a.index[fromLead(l).key()]
	return ok
}

// Mark returns a copy of ls with Status set to New or Already Harvested.
func (a *Archive) Mark(ls []leads.Lead) []leads.Lead {
	out := make([]leads.Lead, len(ls))
	for i, l := range ls {
		l.Status = StatusNew
		if a.Contains(l) {
			l.Status = StatusHarvested
		}
		out[i] = l
	}
	return out
}

// Add appends leads not yet archived and reports how many were added.
func (a *Archive) Add(ls []leads.Lead) int {
	n := 0
	for _, l := range ls {
		if a.add(fromLead(l)) {
			n++
		}
	}
	return n
}

// Save rewrites the archive file.
func (a *Archive) Save() error {
	dir := filepath.Dir(a.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".archive-*.csv")
	if err != nil {
		return fmt.Errorf("create archive temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	cw := csv.NewWriter(tmp)
	if err := cw.Write(header); err != nil {
		_ = tmp.Close()
		return err
	}
	for _, r := range a.records {
		if err := cw.Write([]string{r.Name, r.Phone, r.Website, r.Address}); err != nil {
			_ = tmp.Close()
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), a.path)
}

// NewOnly keeps leads marked New.
func NewOnly(ls []leads.Lead) []leads.Lead {
	out := make([]leads.Lead, 0, len(ls))
	for _, l := range ls {
		if strings.EqualFold(l.Status, StatusNew) {
			out = append(out, l)
		}
	}
	return out
}
