package output

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/fieldglass/needlefinder/internal/model"
	"github.com/fieldglass/needlefinder/internal/schema"
)

// writeXLSX writes a single-sheet workbook with a header row in schema
// field order.
func (w *Writer) writeXLSX(path string, s schema.Schema, needles []model.Needle) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(s.Name)
	if err != nil {
		return eris.Wrap(err, "output: add xlsx sheet")
	}

	header := sheet.AddRow()
	for _, name := range s.FieldNames() {
		header.AddCell().SetString(name)
	}

	for _, n := range needles {
		row := sheet.AddRow()
		for _, name := range s.FieldNames() {
			v := n[name]
			cell := row.AddCell()
			switch v.Kind {
			case model.KindInt:
				cell.SetInt64(v.Int)
			case model.KindFloat:
				cell.SetFloat(v.Float)
			case model.KindBool:
				cell.SetBool(v.Bool)
			default:
				cell.SetString(v.Display())
			}
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "output: save %s", path)
	}
	return nil
}
