package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"audio-curator/internal/db"
	"audio-curator/internal/manifest"
)

// CatalogWriter stores catalog rows; *db.DB implements it.
type CatalogWriter interface {
	EnsureSchema(ctx context.Context) error
	InsertUtterances(ctx context.Context, rows []db.Utterance, batch int, log logrus.FieldLogger) (int64, error)
}

var splits = []string{"train", "val"}

// CatalogRows reads every assembled <kind>/<split> dir under outDir and
// returns their catalog rows. Missing splits are skipped.
func CatalogRows(outDir, runID string, kinds []string) ([]db.Utterance, error) {
	var rows []db.Utterance
	for _, kind := range kinds {
		for _, split := range splits {
			path := filepath.Join(outDir, kind, split)
			if _, err := os.Stat(filepath.Join(path, manifest.WavScp)); errors.Is(err, fs.ErrNotExist) {
				continue
			}
			d, err := manifest.LoadDir(path, manifest.LoadOptions{})
			if err != nil {
				return nil, err
			}
			rows = append(rows, db.Rows(runID, kind, split, d)...)
		}
	}
	return rows, nil
}

// Export fingerprints the assembled output and writes it to the catalog
// under runID.
func Export(ctx context.Context, w CatalogWriter, outDir, runID string, kinds []string, workers int, log logrus.FieldLogger) (int64, error) {
	log = log.WithField("run_id", runID)
	rows, err := CatalogRows(outDir, runID, kinds)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, errors.New("nothing assembled to export")
	}
	log.WithField("rows", len(rows)).Info("hashing assembled audio")
	if err := db.Fingerprint(ctx, rows, workers); err != nil {
		return 0, err
	}
	if err := w.EnsureSchema(ctx); err != nil {
		return 0, err
	}
	n, err := w.InsertUtterances(ctx, rows, 500, log)
	if err != nil {
		return 0, err
	}
	log.WithField("rows", n).Info("catalog exported")
	return n, nil
}
