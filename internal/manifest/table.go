package manifest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// KeyKind says what the first column of a table identifies.
type KeyKind int

const (
	KeyUtterance KeyKind = iota
	KeySpeaker
)

// KindOf maps a canonical table name to its key kind. Unknown names are
// treated as utterance keyed.
func KindOf(name string) KeyKind {
	switch filepath.Base(name) {
	case Spk2Gender, Spk2Utt:
		return KeySpeaker
	}
	return KeyUtterance
}

// Row is one `key value...` line; Value keeps inner whitespace.
type Row struct {
	Key   string
	Value string
}

func (r Row) Line() string { return r.Key + " " + r.Value }

// Table is an auxiliary table aligned to a manifest by key.
type Table struct {
	Name  string
	rows  []Row
	index map[string]int
}

func NewTable(name string, rows ...Row) *Table {
	t := &Table{Name: name, index: make(map[string]int, len(rows))}
	for _, r := range rows {
		t.Append(r)
	}
	return t
}

func (t *Table) Kind() KeyKind { return KindOf(t.Name) }

func (t *Table) Append(r Row) {
	if t.index == nil {
		t.index = make(map[string]int)
	}
	if _, ok := t.index[r.Key]; !ok {
		t.index[r.Key] = len(t.rows)
	}
	t.rows = append(t.rows, r)
}

// Set replaces the value of an existing key or appends a new row.
func (t *Table) Set(key, value string) {
	if i, ok := t.index[key]; ok {
		t.rows[i].Value = value
		return
	}
	t.Append(Row{Key: key, Value: value})
}

func (t *Table) Len() int { return len(t.rows) }

func (t *Table) Rows() []Row {
	out := make([]Row, len(t.rows))
	copy(out, t.rows)
	return out
}

func (t *Table) Keys() []string {
	keys := make([]string, len(t.rows))
	for i, r := range t.rows {
		keys[i] = r.Key
	}
	return keys
}

func (t *Table) Lookup(key string) (string, bool) {
	i, ok := t.index[key]
	if !ok {
		return "", false
	}
	return t.rows[i].Value, true
}

// Map returns key -> value for the first occurrence of every key.
func (t *Table) Map() map[string]string {
	out := make(map[string]string, len(t.index))
	for k, i := range t.index {
		out[k] = t.rows[i].Value
	}
	return out
}

// Restrict keeps rows whose key is in keys, preserving order.
func (t *Table) Restrict(keys map[string]struct{}) *Table {
	out := NewTable(t.Name)
	for _, r := range t.rows {
		if _, ok := keys[r.Key]; ok {
			out.Append(r)
		}
	}
	return out
}

// CheckSubset fails with an OrphanError when any key is outside ids.
func (t *Table) CheckSubset(ids map[string]struct{}) error {
	var orphans []string
	for _, r := range t.rows {
		if _, ok := ids[r.Key]; !ok {
			orphans = append(orphans, r.Key)
		}
	}
	if len(orphans) > 0 {
		return &OrphanError{Table: t.Name, Keys: orphans}
	}
	return nil
}

// LoadTable reads a `key value...` file. The table is named after the file.
func LoadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadTable(f, path)
}

func ReadTable(r io.Reader, name string) (*Table, error) {
	t := NewTable(filepath.Base(name))
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		i := strings.IndexFunc(line, unicode.IsSpace)
		var key, value string
		if i > 0 {
			key, value = line[:i], strings.TrimSpace(line[i:])
		}
		if value == "" {
			return nil, &ParseError{File: name, Line: lineNo, Reason: "missing value"}
		}
		t.Append(Row{Key: key, Value: value})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return t, nil
}

// Write emits rows in insertion order. Keys must be non-empty without
// whitespace, values non-empty on a single line.
func (t *Table) Write(w io.Writer) error {
	return t.write(w, t.Name)
}

func (t *Table) write(w io.Writer, name string) error {
	for i, r := range t.rows {
		reason := badToken("key", r.Key)
		if reason == "" && strings.TrimSpace(r.Value) == "" {
			reason = fmt.Sprintf("empty value for %q", r.Key)
		}
		if reason == "" && strings.ContainsAny(r.Value, "\r\n") {
			reason = fmt.Sprintf("value for %q spans lines", r.Key)
		}
		if reason != "" {
			return &ParseError{File: name, Line: i + 1, Reason: reason}
		}
	}
	bw := bufio.NewWriter(w)
	for _, r := range t.rows {
		if _, err := bw.WriteString(r.Line() + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func (t *Table) Save(path string) error {
	return WriteFileAtomic(path, func(w io.Writer) error { return t.write(w, path) })
}
