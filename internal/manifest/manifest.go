package manifest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"
)

// Canonical file names inside a Kaldi-style data directory.
const (
	WavScp       = "wav.scp"
	Utt2Spk      = "utt2spk"
	Spk2Utt      = "spk2utt"
	Spk2Gender   = "spk2gender"
	Text         = "text"
	Utt2Fs       = "utt2fs"
	Utt2Cat      = "utt2category"
	Utt2Dur      = "utt2dur"
	NotAvailable = "<not-available>"
)

// Entry is one row of a primary path table.
type Entry struct {
	ID         string
	Path       string
	SampleRate int // 0 when unknown
	Channels   int // 0 when unknown
}

// Manifest is an ordered utterance id -> audio path table.
type Manifest struct {
	entries []Entry
	index   map[string]int // id -> position of first occurrence
}

func New(entries ...Entry) *Manifest {
	m := &Manifest{index: make(map[string]int, len(entries))}
	for _, e := range entries {
		m.Append(e)
	}
	return m
}

// Append adds e at the end. Duplicate ids are kept; Normalize resolves them.
func (m *Manifest) Append(e Entry) {
	if m.index == nil {
		m.index = make(map[string]int)
	}
	if _, ok := m.index[e.ID]; !ok {
		m.index[e.ID] = len(m.entries)
	}
	m.entries = append(m.entries, e)
}

func (m *Manifest) Len() int { return len(m.entries) }

// Entries returns a copy of the rows in order.
func (m *Manifest) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m *Manifest) IDs() []string {
	ids := make([]string, len(m.entries))
	for i, e := range m.entries {
		ids[i] = e.ID
	}
	return ids
}

// IDSet returns the distinct ids of m.
func (m *Manifest) IDSet() map[string]struct{} {
	set := make(map[string]struct{}, len(m.index))
	for id := range m.index {
		set[id] = struct{}{}
	}
	return set
}

func (m *Manifest) Has(id string) bool {
	_, ok := m.index[id]
	return ok
}

// Get returns the first entry with the given id.
func (m *Manifest) Get(id string) (Entry, bool) {
	i, ok := m.index[id]
	if !ok {
		return Entry{}, false
	}
	return m.entries[i], true
}

// Filter returns a new manifest with the entries keep accepts, in order.
func (m *Manifest) Filter(keep func(Entry) bool) *Manifest {
	out := New()
	for _, e := range m.entries {
		if keep(e) {
			out.Append(e)
		}
	}
	return out
}

// Restrict keeps only the entries whose id is in ids.
func (m *Manifest) Restrict(ids map[string]struct{}) *Manifest {
	return m.Filter(func(e Entry) bool {
		_, ok := ids[e.ID]
		return ok
	})
}

// Head returns the first n entries. n <= 0 or n >= Len returns a copy of m.
func (m *Manifest) Head(n int) *Manifest {
	if n <= 0 || n >= len(m.entries) {
		n = len(m.entries)
	}
	return New(m.entries[:n]...)
}

// Duplicates lists ids that occur more than once, in first-seen order.
func (m *Manifest) Duplicates() []string {
	seen := make(map[string]int, len(m.entries))
	var dups []string
	for _, e := range m.entries {
		seen[e.ID]++
		if seen[e.ID] == 2 {
			dups = append(dups, e.ID)
		}
	}
	return dups
}

// Line renders e the way Write does.
func (e Entry) Line() string {
	if e.SampleRate > 0 {
		return e.ID + " " + strconv.Itoa(e.SampleRate) + " " + e.Path
	}
	return e.ID + " " + e.Path
}

type LoadOptions struct {
	// AllowDuplicates keeps repeated ids instead of failing the load.
	AllowDuplicates bool
}

// Load reads a wav.scp style file.
func Load(path string, opts LoadOptions) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f, path, opts)
}

// Read parses `id path` or `id fs path` rows. name is used in errors.
func Read(r io.Reader, name string, opts LoadOptions) (*Manifest, error) {
	m := New()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		var e Entry
		switch len(fields) {
		case 2:
			e = Entry{ID: fields[0], Path: fields[1]}
		case 3:
			fs, err := strconv.Atoi(fields[1])
			if err != nil || fs <= 0 {
				return nil, &ParseError{File: name, Line: lineNo, Reason: fmt.Sprintf("bad sample rate %q", fields[1])}
			}
			e = Entry{ID: fields[0], SampleRate: fs, Path: fields[2]}
		default:
			return nil, &ParseError{File: name, Line: lineNo, Reason: fmt.Sprintf("expected 2 or 3 fields, got %d", len(fields))}
		}
		if !opts.AllowDuplicates && m.Has(e.ID) {
			return nil, &ParseError{File: name, Line: lineNo, Reason: fmt.Sprintf("duplicate id %q", e.ID)}
		}
		m.Append(e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return m, nil
}

// Write emits rows in insertion order. An id or path that is empty or holds
// whitespace cannot be read back and fails with a ParseError.
func (m *Manifest) Write(w io.Writer) error {
	return m.write(w, WavScp)
}

// Save writes m to path atomically.
func (m *Manifest) Save(path string) error {
	return WriteFileAtomic(path, func(w io.Writer) error { return m.write(w, path) })
}

func (m *Manifest) write(w io.Writer, name string) error {
	for i, e := range m.entries {
		if reason := badToken("id", e.ID); reason != "" {
			return &ParseError{File: name, Line: i + 1, Reason: reason}
		}
		if reason := badToken("path", e.Path); reason != "" {
			return &ParseError{File: name, Line: i + 1, Reason: reason}
		}
	}
	bw := bufio.NewWriter(w)
	for _, e := range m.entries {
		if _, err := bw.WriteString(e.Line() + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// HasSpace reports whether s contains any whitespace.
func HasSpace(s string) bool {
	return strings.IndexFunc(s, unicode.IsSpace) >= 0
}

func badToken(what, s string) string {
	switch {
	case s == "":
		return "empty " + what
	case HasSpace(s):
		return fmt.Sprintf("%s %q contains whitespace", what, s)
	}
	return ""
}
