package leads

import (
	"encoding/csv"
	"io"
)

// Header is the column order of a leads file. Business Name and Website are
// what the enrich command requires as input.
var Header = []string{"Business Name", "Phone", "Website", "Address", "Category", "City", "State", "Status"}

// WriteCSV writes leads with Header as the first row.
func WriteCSV(w io.Writer, ls []Lead) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, l := range ls {
		if err := cw.Write([]string{l.Name, l.Phone, l.Website, l.Address, l.Category, l.City, l.State, l.Status}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
