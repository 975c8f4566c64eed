package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"audio-curator/internal/config"
	"audio-curator/internal/curation"
	"audio-curator/internal/manifest"
	"audio-curator/internal/merge"
	"audio-curator/internal/split"
)

const valListFile = "val.lst"

// AssembleScope is the runner scope of the assemble stage of one kind.
func AssembleScope(kind string) string { return "assemble-" + kind }

// Assembler merges prepared corpora per kind and carves train/val.
type Assembler struct {
	Runner *Runner
	// DataDir locates the finished data dir of a corpus.
	DataDir func(corpus string) string
	OutDir  string
	Log     logrus.FieldLogger
}

// Assemble builds OutDir/<kind>/{train,val} for every kind in reg.
func (a *Assembler) Assemble(ctx context.Context, reg *config.Registry) error {
	for _, kind := range reg.Kinds() {
		corpora := reg.OfKind(kind)
		val := reg.Val[kind]
		err := a.Runner.Do(ctx, AssembleScope(kind), StageAssemble, func(ctx context.Context) error {
			return a.assembleKind(kind, corpora, val)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *Assembler) assembleKind(kind string, corpora []config.Corpus, val *config.ValSplit) error {
	log := a.Log.WithField("kind", kind)

	sources := make([]merge.Source, 0, len(corpora))
	for _, c := range corpora {
		d, err := manifest.LoadDir(a.DataDir(c.Name), manifest.LoadOptions{})
		if err != nil {
			return fmt.Errorf("corpus %s not prepared: %w", c.Name, err)
		}
		sources = append(sources, merge.Source{Name: c.Name, Dir: d})
	}
	fields, dropped := CommonTables(sources)
	if len(dropped) > 0 {
		log.WithField("tables", dropped).Warn("tables missing in some corpora are not combined")
	}

	combined, err := merge.Combine(sources, fields)
	if err != nil {
		return err
	}
	full, err := merge.Normalize(combined)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"corpora": len(sources), "utterances": full.Manifest.Len(), "tables": fields}).
		Info("corpora combined")

	out := filepath.Join(a.OutDir, kind)
	if val == nil {
		return full.Save(filepath.Join(out, "train"))
	}

	valManifest, err := Carve(full, val, log)
	if err != nil {
		return err
	}
	valDir, trainDir := split.Tables(full, valManifest)
	if err := trainDir.Save(filepath.Join(out, "train")); err != nil {
		return err
	}
	if err := valDir.Save(filepath.Join(out, "val")); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"train": trainDir.Manifest.Len(), "val": valDir.Manifest.Len()}).Info("split written")
	return WriteValList(filepath.Join(out, valListFile), valDir.Manifest)
}

// Carve picks the validation manifest of a normalized dir. A quota shortfall
// is logged and the smaller set is used.
func Carve(d *manifest.Dir, val *config.ValSplit, log logrus.FieldLogger) (*manifest.Manifest, error) {
	if val.List != "" {
		ids, err := readIDs(val.List)
		if err != nil {
			return nil, err
		}
		m, _ := split.ByList(d.Manifest, ids, log)
		return m, nil
	}

	m, _, err := split.ByQuota(d.Manifest, d.Table(manifest.Utt2Spk), split.Options{
		MinTotal:      val.MinTotal,
		MaxPerSpeaker: val.MaxPerSpeaker,
		Genders:       d.Table(manifest.Spk2Gender),
		BalanceGender: val.BalanceGender,
	})
	var short *split.InsufficientDataError
	if errors.As(err, &short) {
		log.WithFields(logrus.Fields{"want": short.Want, "got": short.Got}).Warn("validation quota not reached")
		return m, nil
	}
	return m, err
}

func readIDs(path string) ([]string, error) {
	list, err := curation.Load(path)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, list.Len())
	for _, r := range list.Records {
		if r.UID != "" {
			ids = append(ids, r.UID)
		}
	}
	return ids, nil
}

// WriteValList writes the shareable "<id> <filename>" list of a val set.
func WriteValList(path string, m *manifest.Manifest) error {
	return manifest.WriteFileAtomic(path, func(w io.Writer) error {
		for _, e := range m.Entries() {
			if _, err := fmt.Fprintf(w, "%s %s\n", e.ID, filepath.Base(e.Path)); err != nil {
				return err
			}
		}
		return nil
	})
}

// CarveList rebuilds a val manifest from a shareable id list and the master
// manifest it was drawn from. It returns the ids the master no longer has.
func CarveList(masterPath, listPath, outPath string, log logrus.FieldLogger) ([]string, error) {
	master, err := manifest.Load(masterPath, manifest.LoadOptions{})
	if err != nil {
		return nil, err
	}
	ids, err := readIDs(listPath)
	if err != nil {
		return nil, err
	}
	val, missing := split.ByList(master, ids, log)
	if err := val.Save(outPath); err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"reconstructed": val.Len(), "missing": len(missing), "out": outPath}).
		Info("validation manifest rebuilt")
	return missing, nil
}

// CommonTables returns the tables every source carries, sorted, and the
// ones only some sources have.
func CommonTables(sources []merge.Source) (common, partial []string) {
	count := make(map[string]int)
	for _, s := range sources {
		for _, name := range s.Dir.Names() {
			count[name]++
		}
	}
	for name, n := range count {
		if n == len(sources) {
			common = append(common, name)
		} else {
			partial = append(partial, name)
		}
	}
	sort.Strings(common)
	sort.Strings(partial)
	return common, partial
}
