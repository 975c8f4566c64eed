package curation

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Recognized curation list columns.
const (
	ColUID      = "uid"
	ColFilename = "filename"
	ColSpeaker  = "speaker_id"
	ColGender   = "gender"
)

// Record is one allow-list row.
type Record struct {
	UID      string
	Filename string
	Speaker  string
	Gender   string
}

// List is a read-only allow list.
type List struct {
	Name    string
	Columns map[string]bool
	Records []Record
}

func (l *List) Has(col string) bool { return l.Columns[col] }

func (l *List) Len() int { return len(l.Records) }

// Keys returns the set of canonical keys built from the given column.
// ColSpeaker+"/"+ColFilename builds composite keys "<speaker>/<filename>".
func (l *List) Keys(column string) (map[string]struct{}, error) {
	keys := make(map[string]struct{}, len(l.Records))
	for _, r := range l.Records {
		k, err := r.key(column)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", l.Name, err)
		}
		if k != "" {
			keys[k] = struct{}{}
		}
	}
	return keys, nil
}

// SpeakerFilenameKey is the composite key column used by GLOBE style lists.
const SpeakerFilenameKey = ColSpeaker + "/" + ColFilename

func (r Record) key(column string) (string, error) {
	switch column {
	case ColUID:
		return r.UID, nil
	case ColFilename:
		return r.Filename, nil
	case ColSpeaker:
		return r.Speaker, nil
	case SpeakerFilenameKey:
		if r.Speaker == "" || r.Filename == "" {
			return "", nil
		}
		return r.Speaker + "/" + r.Filename, nil
	}
	return "", fmt.Errorf("unsupported key column %q", column)
}

// DefaultKeyColumn prefers uid over filename, like the list readers upstream.
func (l *List) DefaultKeyColumn() (string, error) {
	switch {
	case l.Has(ColUID):
		return ColUID, nil
	case l.Has(ColFilename):
		return ColFilename, nil
	}
	return "", fmt.Errorf("%s: curation list must contain a %q or %q column", l.Name, ColUID, ColFilename)
}

// LoadCSV reads a curation list with a header row. Unknown columns are ignored.
func LoadCSV(path string) (*List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f, path)
}

func ReadCSV(r io.Reader, name string) (*List, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: empty curation list", name)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	pos := make(map[string]int)
	cols := make(map[string]bool)
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		switch h {
		case ColUID, ColFilename, ColSpeaker, ColGender:
			pos[h] = i
			cols[h] = true
		}
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%s: no recognized columns in header %v", name, header)
	}

	l := &List{Name: name, Columns: cols}
	get := func(row []string, col string) string {
		i, ok := pos[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		l.Records = append(l.Records, Record{
			UID:      get(row, ColUID),
			Filename: get(row, ColFilename),
			Speaker:  get(row, ColSpeaker),
			Gender:   get(row, ColGender),
		})
	}
	return l, nil
}

// LoadIDList reads a plain list: the first whitespace separated field of
// every non-empty line is a uid.
func LoadIDList(path string) (*List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadIDList(f, path)
}

func ReadIDList(r io.Reader, name string) (*List, error) {
	l := &List{Name: name, Columns: map[string]bool{ColUID: true}}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		l.Records = append(l.Records, Record{UID: fields[0]})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return l, nil
}

// Load picks the reader by extension: .csv lists are tabular, anything else
// is treated as a plain id list.
func Load(path string) (*List, error) {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return LoadCSV(path)
	}
	return LoadIDList(path)
}
