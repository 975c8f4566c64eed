package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// AuxTables are the tables LoadDir picks up next to wav.scp. spk2utt is not
// listed: it is always rebuilt from utt2spk.
var AuxTables = []string{Utt2Spk, Spk2Gender, Text, Utt2Fs, Utt2Cat, Utt2Dur}

// Dir is a Kaldi-style data directory held in memory.
type Dir struct {
	Manifest *Manifest
	Tables   map[string]*Table
}

func NewDir(m *Manifest) *Dir {
	return &Dir{Manifest: m, Tables: make(map[string]*Table)}
}

func (d *Dir) Put(t *Table) { d.Tables[t.Name] = t }

func (d *Dir) Table(name string) *Table { return d.Tables[name] }

// Names returns table names in sorted order.
func (d *Dir) Names() []string {
	names := make([]string, 0, len(d.Tables))
	for n := range d.Tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Speakers returns the speaker ids referenced by utt2spk.
func (d *Dir) Speakers() map[string]struct{} {
	set := make(map[string]struct{})
	if t := d.Tables[Utt2Spk]; t != nil {
		for _, r := range t.rows {
			set[r.Value] = struct{}{}
		}
	}
	return set
}

// Validate checks that every table only references known keys.
func (d *Dir) Validate() error {
	ids := d.Manifest.IDSet()
	spks := d.Speakers()
	for _, name := range d.Names() {
		t := d.Tables[name]
		ref := ids
		if t.Kind() == KeySpeaker {
			ref = spks
		}
		if err := t.CheckSubset(ref); err != nil {
			return err
		}
	}
	return nil
}

// Restrict keeps the given utterances and every row that still refers to them.
func (d *Dir) Restrict(ids map[string]struct{}) *Dir {
	out := NewDir(d.Manifest.Restrict(ids))
	for name, t := range d.Tables {
		if t.Kind() == KeyUtterance {
			out.Tables[name] = t.Restrict(ids)
		}
	}
	spks := out.Speakers()
	for name, t := range d.Tables {
		if t.Kind() == KeySpeaker {
			out.Tables[name] = t.Restrict(spks)
		}
	}
	return out
}

// LoadDir reads wav.scp and whichever AuxTables exist in path.
func LoadDir(path string, opts LoadOptions) (*Dir, error) {
	m, err := Load(filepath.Join(path, WavScp), opts)
	if err != nil {
		return nil, err
	}
	d := NewDir(m)
	for _, name := range AuxTables {
		t, err := LoadTable(filepath.Join(path, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		d.Put(t)
	}
	return d, nil
}

// Save writes wav.scp, every table, and spk2utt when utt2spk is present.
func (d *Dir) Save(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}
	if err := d.Manifest.Save(filepath.Join(path, WavScp)); err != nil {
		return err
	}
	for _, name := range d.Names() {
		if err := d.Tables[name].Save(filepath.Join(path, name)); err != nil {
			return fmt.Errorf("save %s: %w", name, err)
		}
	}
	if u2s := d.Tables[Utt2Spk]; u2s != nil {
		if err := Invert(u2s).Save(filepath.Join(path, Spk2Utt)); err != nil {
			return err
		}
	}
	return nil
}
