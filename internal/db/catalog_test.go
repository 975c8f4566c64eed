package db

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audio-curator/internal/manifest"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "cur:secret@tcp(db.local:3306)/curator?charset=utf8mb4&parseTime=true",
		DSN("db.local", 3306, "cur", "secret", "curator"))
}

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	assert.NoError(t, err)
	assert.Len(t, a, 36)
}

func TestRows(t *testing.T) {
	d := manifest.NewDir(manifest.New(
		manifest.Entry{ID: "u1", Path: "/a/u1.wav", SampleRate: 24000},
		manifest.Entry{ID: "u2", Path: "/a/u2.wav"},
	))
	d.Put(manifest.NewTable(manifest.Utt2Spk, manifest.Row{Key: "u1", Value: "s1"}, manifest.Row{Key: "u2", Value: "s2"}))
	d.Put(manifest.NewTable(manifest.Spk2Gender, manifest.Row{Key: "s1", Value: "f"}))
	d.Put(manifest.NewTable(manifest.Utt2Dur, manifest.Row{Key: "u1", Value: "1.250"}))
	d.Put(manifest.NewTable(manifest.Utt2Fs, manifest.Row{Key: "u2", Value: "16000"}))
	d.Put(manifest.NewTable(manifest.Utt2Cat, manifest.Row{Key: "u1", Value: "1ch_24000Hz"}))

	rows := Rows("run", "speech", "val", d)
	require.Len(t, rows, 2)
	assert.Equal(t, Utterance{
		RunID: "run", ID: "u1", Path: "/a/u1.wav", SampleRate: 24000, Speaker: "s1", Gender: "f",
		Category: "1ch_24000Hz", DurationSec: 1.25, Split: "val", Kind: "speech",
	}, rows[0])
	assert.Equal(t, 16000, rows[1].SampleRate)
	assert.Equal(t, "s2", rows[1].Speaker)
	assert.Empty(t, rows[1].Gender)
	assert.Zero(t, rows[1].DurationSec)
}

func TestRows_NoTables(t *testing.T) {
	d := manifest.NewDir(manifest.New(manifest.Entry{ID: "n1", Path: "/n/n1.wav"}))
	rows := Rows("run", "noise", "train", d)
	require.Len(t, rows, 1)
	assert.Empty(t, rows[0].Speaker)
	assert.Empty(t, rows[0].Category)
}

func TestFingerprint(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.wav")
	require.NoError(t, os.WriteFile(p, []byte("abc"), 0o644))

	rows := []Utterance{{ID: "a", Path: p}, {ID: "b", Path: p}}
	require.NoError(t, Fingerprint(context.Background(), rows, 2))
	for _, r := range rows {
		assert.Equal(t, "900150983cd24fb0d6963f7d28e17f72", r.MD5)
		assert.Equal(t, int64(3), r.Size)
	}

	rows = append(rows, Utterance{ID: "gone", Path: filepath.Join(dir, "missing.wav")})
	err := Fingerprint(context.Background(), rows, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash gone")
}

func TestSchema_KeyIncludesKind(t *testing.T) {
	// the same id may be assembled under two kinds in one run
	assert.Contains(t, schema, "PRIMARY KEY (run_id, kind, utt_id)")
}

func TestInsertSQL(t *testing.T) {
	q := insertSQL(2)
	assert.True(t, strings.HasPrefix(q, "INSERT INTO utterances (run_id, utt_id,"))
	assert.Equal(t, 2*numColumns, strings.Count(q, "?"))
	assert.Equal(t, numColumns, len(strings.Split(columns, ",")))
	assert.Contains(t, q, "ON DUPLICATE KEY UPDATE")
	assert.NotContains(t, q, "kind = VALUES(kind)")

	args := insertArgs([]Utterance{{RunID: "r", ID: "a"}, {RunID: "r", ID: "b", Size: 7}})
	require.Len(t, args, 2*numColumns)
	assert.Equal(t, "b", args[numColumns+1])
	assert.Equal(t, int64(7), args[2*numColumns-1])
}
