package output

import (
	"encoding/csv"
	"os"

	"github.com/rotisserie/eris"

	"github.com/fieldglass/needlefinder/internal/model"
	"github.com/fieldglass/needlefinder/internal/schema"
)

// writeCSV writes one row per needle with columns in schema field order.
// Null fields render as empty cells.
func (w *Writer) writeCSV(path string, s schema.Schema, needles []model.Needle) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "output: create %s", path)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	header := s.FieldNames()
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "output: write csv header")
	}
	row := make([]string, len(header))
	for _, n := range needles {
		for i, name := range header {
			row[i] = n[name].Display()
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "output: write csv row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "output: flush csv")
	}
	return f.Close()
}
