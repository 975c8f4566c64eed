package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Corpus kinds.
const (
	KindSpeech = "speech"
	KindNoise  = "noise"
	KindRIR    = "rir"
)

// Curation keys, i.e. what a curation list row is matched against.
const (
	KeyID              = "id"
	KeyFilename        = "filename"
	KeyStem            = "stem"
	KeySpeakerFilename = "speaker_filename"
)

type Curation struct {
	Path    string `yaml:"path"`
	Key     string `yaml:"key"`
	Column  string `yaml:"column"`
	Exclude bool   `yaml:"exclude"`
	// Genders takes spk2gender from the list instead of deriving it.
	Genders bool `yaml:"genders"`
	// StripPrefix matches list uids against ids without the corpus prefix.
	StripPrefix bool `yaml:"strip_prefix"`
}

type Corpus struct {
	Name          string    `yaml:"name"`
	Kind          string    `yaml:"kind"`
	Root          string    `yaml:"root"`
	Extensions    []string  `yaml:"extensions"`
	Strategy      string    `yaml:"strategy"`
	Prefix        string    `yaml:"prefix"`
	SpeakerPrefix string    `yaml:"speaker_prefix"`
	Curation      *Curation `yaml:"curation"`
	MaxFiles      int       `yaml:"max_files"`
	Category      string    `yaml:"category"`
}

// ValSplit describes how the validation set of one corpus kind is carved:
// from an explicit id list when List is set, by quota otherwise.
type ValSplit struct {
	MinTotal      int    `yaml:"min_total"`
	MaxPerSpeaker int    `yaml:"max_per_speaker"`
	BalanceGender bool   `yaml:"balance_gender"`
	List          string `yaml:"list"`
}

type Registry struct {
	Corpora []Corpus `yaml:"corpora"`
	// Val is keyed by corpus kind. Kinds without an entry get no validation set.
	Val map[string]*ValSplit `yaml:"val"`
}

// LoadCorpora reads and validates the corpus registry.
func LoadCorpora(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var reg Registry
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&reg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	reg.applyDefaults()
	if err := reg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &reg, nil
}

func (r *Registry) applyDefaults() {
	for i := range r.Corpora {
		c := &r.Corpora[i]
		if c.Kind == "" {
			c.Kind = KindSpeech
		}
		if len(c.Extensions) == 0 {
			c.Extensions = []string{".wav", ".flac"}
		}
		if c.Strategy == "" {
			c.Strategy = "stem"
		}
		if c.Curation != nil && c.Curation.Key == "" {
			c.Curation.Key = KeyID
		}
	}
	for _, v := range r.Val {
		if v != nil && v.MaxPerSpeaker == 0 {
			v.MaxPerSpeaker = 10
		}
	}
}

func (r *Registry) Validate() error {
	if len(r.Corpora) == 0 {
		return errors.New("no corpora configured")
	}
	seen := make(map[string]bool)
	var errs []error
	for _, c := range r.Corpora {
		if c.Name == "" {
			errs = append(errs, errors.New("corpus without name"))
			continue
		}
		if seen[c.Name] {
			errs = append(errs, fmt.Errorf("corpus %s: defined twice", c.Name))
		}
		seen[c.Name] = true
		if strings.ContainsAny(c.Name, `/\ `) {
			errs = append(errs, fmt.Errorf("corpus %s: name must not contain path separators or spaces", c.Name))
		}
		if c.Root == "" {
			errs = append(errs, fmt.Errorf("corpus %s: root is required", c.Name))
		}
		switch c.Kind {
		case KindSpeech, KindNoise, KindRIR:
		default:
			errs = append(errs, fmt.Errorf("corpus %s: unknown kind %q", c.Name, c.Kind))
		}
		switch c.Strategy {
		case "stem", "speaker_dir", "librispeech":
		default:
			errs = append(errs, fmt.Errorf("corpus %s: unknown strategy %q", c.Name, c.Strategy))
		}
		if c.Curation != nil {
			if c.Curation.Path == "" {
				errs = append(errs, fmt.Errorf("corpus %s: curation path is required", c.Name))
			}
			switch c.Curation.Key {
			case KeyID, KeyFilename, KeyStem, KeySpeakerFilename:
			default:
				errs = append(errs, fmt.Errorf("corpus %s: unknown curation key %q", c.Name, c.Curation.Key))
			}
		}
		if c.MaxFiles < 0 {
			errs = append(errs, fmt.Errorf("corpus %s: max_files must not be negative", c.Name))
		}
	}
	for kind, v := range r.Val {
		switch kind {
		case KindSpeech, KindNoise, KindRIR:
		default:
			errs = append(errs, fmt.Errorf("val: unknown kind %q", kind))
		}
		if v == nil {
			errs = append(errs, fmt.Errorf("val %s: empty", kind))
			continue
		}
		if v.List == "" && v.MinTotal <= 0 {
			errs = append(errs, fmt.Errorf("val %s: need min_total or list", kind))
		}
	}
	return errors.Join(errs...)
}

// Kinds returns the corpus kinds in use, in registry order.
func (r *Registry) Kinds() []string {
	var kinds []string
	seen := make(map[string]bool)
	for _, c := range r.Corpora {
		if !seen[c.Kind] {
			seen[c.Kind] = true
			kinds = append(kinds, c.Kind)
		}
	}
	return kinds
}

// OfKind returns the corpora of one kind, in registry order.
func (r *Registry) OfKind(kind string) []Corpus {
	var out []Corpus
	for _, c := range r.Corpora {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// Corpus returns the named corpus.
func (r *Registry) Corpus(name string) (*Corpus, bool) {
	for i := range r.Corpora {
		if r.Corpora[i].Name == name {
			return &r.Corpora[i], true
		}
	}
	return nil, false
}
