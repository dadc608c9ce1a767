// Package output serializes a run's accepted needles to disk.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/fieldglass/needlefinder/internal/model"
	"github.com/fieldglass/needlefinder/internal/schema"
)

// timestampLayout is embedded in output filenames.
const timestampLayout = "20060102_150405"

// Writer serializes run results into a directory, one file per format.
type Writer struct {
	dir string
}

// NewWriter returns a writer rooted at dir. The directory is created on
// first write.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Filename composes the output filename from schema name, timestamp, and
// extension.
func Filename(schemaName string, ts time.Time, ext string) string {
	return fmt.Sprintf("needles_%s_%s.%s", schemaName, ts.Format(timestampLayout), ext)
}

// Write serializes the needles once per requested format and returns the
// written paths. The whole result set is materialized before any write; a
// run with zero needles still produces a valid (empty) artifact.
func (w *Writer) Write(s schema.Schema, needles []model.Needle, formats []string, ts time.Time) ([]string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "output: create dir %s", w.dir)
	}
	if len(formats) == 0 {
		formats = []string{"json"}
	}
	if needles == nil {
		needles = []model.Needle{}
	}

	var paths []string
	for _, format := range formats {
		path := filepath.Join(w.dir, Filename(s.Name, ts, format))
		var err error
		switch format {
		case "json":
			err = w.writeJSON(path, needles)
		case "csv":
			err = w.writeCSV(path, s, needles)
		case "xlsx":
			err = w.writeXLSX(path, s, needles)
		default:
			err = eris.Errorf("output: unknown format %q", format)
		}
		if err != nil {
			return paths, err
		}
		zap.L().Info("output written",
			zap.String("path", path),
			zap.String("format", format),
			zap.Int("needles", len(needles)),
		)
		paths = append(paths, path)
	}
	return paths, nil
}

// writeJSON writes the needles as a JSON array in one atomic rename.
func (w *Writer) writeJSON(path string, needles []model.Needle) error {
	data, err := json.MarshalIndent(needles, "", "  ")
	if err != nil {
		return eris.Wrap(err, "output: marshal needles")
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrapf(err, "output: write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return eris.Wrapf(err, "output: rename %s", path)
	}
	return nil
}
