package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"

	"audio-curator/internal/config"
	"audio-curator/internal/curation"
	"audio-curator/internal/manifest"
	"audio-curator/internal/scanner"
	"audio-curator/internal/service"
)

// Per-corpus working directories below Runner.ScopeDir(corpus).
const (
	dirScanned   = "scan"
	dirFiltered  = "filtered"
	dirResampled = "resampled"
	dirData      = "data"

	failuresFile = "resample_failures"
)

// Preparer turns one raw corpus into a finished data dir:
// scan -> filter -> resample -> finalize.
type Preparer struct {
	Runner    *Runner
	Resampler *service.Resampler
	// OutputDir receives resampled audio under a subdirectory per corpus.
	OutputDir string
	Log       logrus.FieldLogger
}

// DataDir is where the finished data dir of a corpus lives.
func (p *Preparer) DataDir(corpus string) string {
	return filepath.Join(p.Runner.ScopeDir(corpus), dirData)
}

func (p *Preparer) stageDir(corpus, name string) string {
	return filepath.Join(p.Runner.ScopeDir(corpus), name)
}

// Prepare runs every stage of c that is not done yet.
func (p *Preparer) Prepare(ctx context.Context, c config.Corpus) error {
	stages := []struct {
		name string
		fn   func(context.Context, config.Corpus) error
	}{
		{StageScan, p.scan},
		{StageFilter, p.filter},
		{StageResample, p.resample},
		{StageFinalize, p.finalize},
	}
	for _, s := range stages {
		fn := s.fn
		err := p.Runner.Do(ctx, c.Name, s.name, func(ctx context.Context) error {
			return fn(ctx, c)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Preparer) log(c config.Corpus) logrus.FieldLogger {
	return p.Log.WithField("corpus", c.Name)
}

func strategyFor(c config.Corpus) (scanner.Strategy, error) {
	prefix := c.Prefix
	if c.Strategy != "" && c.Strategy != "stem" {
		prefix = c.SpeakerPrefix
	}
	return scanner.ByName(c.Strategy, prefix)
}

func (p *Preparer) scan(_ context.Context, c config.Corpus) error {
	strat, err := strategyFor(c)
	if err != nil {
		return err
	}
	d, err := scanner.Scan(c.Root, scanner.Options{
		Extensions: c.Extensions,
		Strategy:   strat,
		Logger:     p.log(c),
	})
	if err != nil {
		return err
	}
	if d.Manifest.Len() == 0 {
		return fmt.Errorf("no %v files under %s (download incomplete?)", c.Extensions, c.Root)
	}
	return d.Save(p.stageDir(c.Name, dirScanned))
}

// keyFor maps the registry curation key onto a list column and key function.
func keyFor(c config.Corpus, d *manifest.Dir) (string, curation.KeyFunc, error) {
	cur := c.Curation
	switch cur.Key {
	case config.KeyID:
		key := curation.ByID
		if cur.StripPrefix && c.Prefix != "" {
			key = curation.StripPrefix(c.Prefix, key)
		}
		return orDefault(cur.Column, curation.ColUID), key, nil
	case config.KeyFilename:
		return orDefault(cur.Column, curation.ColFilename), curation.ByFilename, nil
	case config.KeyStem:
		return orDefault(cur.Column, curation.ColUID), curation.ByStem, nil
	case config.KeySpeakerFilename:
		u2s := d.Table(manifest.Utt2Spk)
		if u2s == nil {
			return "", nil, errors.New("speaker_filename key needs utt2spk")
		}
		return curation.SpeakerFilenameKey, curation.SpeakerFilename(u2s, c.SpeakerPrefix), nil
	}
	return "", nil, fmt.Errorf("unknown curation key %q", cur.Key)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (p *Preparer) filter(_ context.Context, c config.Corpus) error {
	d, err := manifest.LoadDir(p.stageDir(c.Name, dirScanned), manifest.LoadOptions{})
	if err != nil {
		return err
	}
	if c.Curation == nil {
		p.log(c).Info("no curation list, keeping every file")
		return d.Save(p.stageDir(c.Name, dirFiltered))
	}

	list, err := curation.Load(c.Curation.Path)
	if err != nil {
		return err
	}
	col, key, err := keyFor(c, d)
	if err != nil {
		return err
	}
	kept, err := curation.Filter(d.Manifest, list, curation.Options{
		Column:  col,
		Key:     key,
		Exclude: c.Curation.Exclude,
		Logger:  p.log(c),
	})
	if err != nil {
		return err
	}
	out := d.Restrict(kept.IDSet())

	if c.Curation.Genders {
		trusted, err := list.Genders(c.SpeakerPrefix)
		if err != nil {
			return err
		}
		merged, conflicts, err := curation.ReconcileGenders(out.Table(manifest.Spk2Gender), trusted, false)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			p.log(c).WithField("speakers", len(conflicts)).Warn("derived gender overridden by curation list")
		}
		out.Put(merged.Restrict(out.Speakers()))
	}
	return out.Save(p.stageDir(c.Name, dirFiltered))
}

func (p *Preparer) resample(ctx context.Context, c config.Corpus) error {
	d, err := manifest.LoadDir(p.stageDir(c.Name, dirFiltered), manifest.LoadOptions{})
	if err != nil {
		return err
	}
	if c.MaxFiles > 0 && d.Manifest.Len() > c.MaxFiles {
		p.log(c).WithFields(logrus.Fields{"max_files": c.MaxFiles, "dropped": d.Manifest.Len() - c.MaxFiles}).
			Warn("corpus capped to first files")
		d = d.Restrict(d.Manifest.Head(c.MaxFiles).IDSet())
	}

	dir := p.stageDir(c.Name, dirResampled)
	res, err := p.Resampler.RunTo(ctx, d, filepath.Join(p.OutputDir, c.Name))
	if res != nil {
		if werr := WriteFailures(filepath.Join(p.Runner.ScopeDir(c.Name), failuresFile), res.Failures); werr != nil {
			return werr
		}
	}
	if errors.Is(err, service.ErrNoSuccess) {
		ids := make([]string, len(res.Failures))
		for i, f := range res.Failures {
			ids[i] = f.ID
		}
		return &StageError{Stage: StageResample, Scope: c.Name, Failed: len(ids), FirstIDs: ids, Err: err}
	}
	if err != nil {
		return err
	}

	out := res.Dir
	cat := manifest.CategoryColumn
	if c.Category != "" {
		cat = manifest.ConstColumn(c.Category)
	}
	out.Put(manifest.Project(out.Manifest, manifest.Utt2Cat, cat))
	dur := manifest.NewTable(manifest.Utt2Dur)
	for _, id := range out.Manifest.IDs() {
		dur.Append(manifest.Row{Key: id, Value: strconv.FormatFloat(res.Durations[id].Seconds(), 'f', 3, 64)})
	}
	out.Put(dur)

	p.log(c).WithFields(logrus.Fields{
		"ok":      out.Manifest.Len(),
		"failed":  len(res.Failures),
		"hours":   fmt.Sprintf("%.2f", res.Stats.Total.Hours()),
		"p95_sec": fmt.Sprintf("%.2f", res.Stats.P95),
	}).Info("corpus resampled")
	return out.Save(dir)
}

// WriteFailures writes one "<id> <path> <error>" line per failed item.
func WriteFailures(path string, failures []service.ItemError) error {
	return manifest.WriteFileAtomic(path, func(w io.Writer) error {
		for _, f := range failures {
			if _, err := fmt.Fprintf(w, "%s %s %v\n", f.ID, f.Path, f.Err); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *Preparer) finalize(_ context.Context, c config.Corpus) error {
	d, err := manifest.LoadDir(p.stageDir(c.Name, dirResampled), manifest.LoadOptions{})
	if err != nil {
		return err
	}
	d.Put(manifest.Project(d.Manifest, manifest.Utt2Fs, manifest.SampleRateColumn))
	if c.Kind == config.KindSpeech && d.Table(manifest.Text) == nil {
		d.Put(manifest.Project(d.Manifest, manifest.Text, manifest.ConstColumn(manifest.NotAvailable)))
	}
	if err := d.Validate(); err != nil {
		return err
	}
	return d.Save(p.DataDir(c.Name))
}
