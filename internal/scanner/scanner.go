package scanner

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"audio-curator/internal/manifest"
)

type Options struct {
	// Extensions to pick up, lower case with the dot (".wav", ".flac").
	Extensions []string
	Strategy   Strategy
	Logger     logrus.FieldLogger
}

// Scan walks root and builds the raw manifest of a corpus, plus utt2spk and
// text when the strategy provides them. Files are visited in sorted path
// order so that ids and collision suffixes are reproducible.
func Scan(root string, opts Options) (*manifest.Dir, error) {
	if opts.Strategy == nil {
		return nil, fmt.Errorf("scan %s: no id strategy", root)
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	exts := make(map[string]bool, len(opts.Extensions))
	for _, e := range opts.Extensions {
		exts[strings.ToLower(e)] = true
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	files, err := listFiles(absRoot, exts)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}

	m := manifest.New()
	utt2spk := manifest.NewTable(manifest.Utt2Spk)
	seen := make(map[string]int, len(files))
	derived := make(map[string]string, len(files)) // final id -> id before suffixing
	var skipped int

	for _, path := range files {
		utt, spk, err := opts.Strategy.Derive(path)
		if err != nil {
			skipped++
			log.WithFields(logrus.Fields{"path": path, "error": err}).Warn("Skipping file, cannot derive id")
			continue
		}
		if manifest.HasSpace(path) || manifest.HasSpace(utt) || manifest.HasSpace(spk) {
			skipped++
			log.WithFields(logrus.Fields{"path": path, "id": utt}).Warn("Skipping file, whitespace in path or id")
			continue
		}
		orig := utt
		// same id twice inside one corpus: keep both, suffix the later ones
		if seen[utt] > 0 {
			base := utt
			for {
				candidate := base + "-" + strconv.Itoa(seen[base])
				seen[base]++
				if seen[candidate] == 0 {
					utt = candidate
					break
				}
			}
		}
		seen[utt]++
		derived[utt] = orig
		m.Append(manifest.Entry{ID: utt, Path: path})
		if spk != "" {
			utt2spk.Append(manifest.Row{Key: utt, Value: spk})
		}
	}

	d := manifest.NewDir(m)
	if utt2spk.Len() > 0 {
		d.Put(utt2spk)
	}

	if tr, ok := opts.Strategy.(Transcriber); ok {
		texts, err := tr.Transcripts(absRoot)
		if err != nil {
			return nil, fmt.Errorf("transcripts %s: %w", root, err)
		}
		text := manifest.NewTable(manifest.Text)
		for _, e := range m.Entries() {
			v, ok := texts[derived[e.ID]]
			if !ok || v == "" {
				v = manifest.NotAvailable
			}
			text.Append(manifest.Row{Key: e.ID, Value: v})
		}
		d.Put(text)
	}

	log.WithFields(logrus.Fields{
		"root":     absRoot,
		"files":    len(files),
		"entries":  m.Len(),
		"skipped":  skipped,
		"speakers": len(d.Speakers()),
	}).Info("Corpus scanned")
	return d, nil
}

func listFiles(root string, exts map[string]bool) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if len(exts) == 0 || exts[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// CountFiles counts matching files below root.
func CountFiles(root string, extensions []string) (int, error) {
	exts := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		exts[strings.ToLower(e)] = true
	}
	files, err := listFiles(root, exts)
	return len(files), err
}
