package db

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"audio-curator/internal/audio"
	"audio-curator/internal/manifest"
)

// Utterance is one catalog row.
type Utterance struct {
	RunID       string  `json:"run_id"`
	ID          string  `json:"id"`
	Path        string  `json:"path"`
	SampleRate  int     `json:"sample_rate"`
	Speaker     string  `json:"speaker"`
	Gender      string  `json:"gender"`
	Category    string  `json:"category"`
	DurationSec float64 `json:"duration_sec"`
	Split       string  `json:"split"`
	Kind        string  `json:"kind"`
	MD5         string  `json:"md5"`
	Size        int64   `json:"size"`
}

const columns = "run_id, utt_id, file_path, sample_rate, speaker_id, gender, category, duration_sec, split, kind, file_hash, file_size"

const numColumns = 12

func NewRunID() string { return uuid.NewString() }

// Rows flattens a data dir into catalog rows, in manifest order. Values a
// table does not carry stay empty.
func Rows(runID, kind, split string, d *manifest.Dir) []Utterance {
	lookup := func(name, key string) string {
		if t := d.Table(name); t != nil {
			v, _ := t.Lookup(key)
			return v
		}
		return ""
	}

	out := make([]Utterance, 0, d.Manifest.Len())
	for _, e := range d.Manifest.Entries() {
		u := Utterance{
			RunID:      runID,
			ID:         e.ID,
			Path:       e.Path,
			SampleRate: e.SampleRate,
			Category:   lookup(manifest.Utt2Cat, e.ID),
			Split:      split,
			Kind:       kind,
		}
		if u.SampleRate == 0 {
			u.SampleRate, _ = strconv.Atoi(lookup(manifest.Utt2Fs, e.ID))
		}
		if dur := lookup(manifest.Utt2Dur, e.ID); dur != "" {
			u.DurationSec, _ = strconv.ParseFloat(dur, 64)
		}
		if spk := lookup(manifest.Utt2Spk, e.ID); spk != "" {
			u.Speaker = spk
			u.Gender = lookup(manifest.Spk2Gender, spk)
		}
		out = append(out, u)
	}
	return out
}

// Fingerprint fills MD5 and Size of every row. Unreadable files are an error.
func Fingerprint(ctx context.Context, rows []Utterance, workers int) error {
	if workers <= 0 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range rows {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sum, size, err := audio.MD5File(rows[i].Path)
			if err != nil {
				return fmt.Errorf("hash %s: %w", rows[i].ID, err)
			}
			rows[i].MD5, rows[i].Size = sum, size
			return nil
		})
	}
	return g.Wait()
}

// insertSQL returns a multi-row INSERT for n rows. Re-exporting a run
// overwrites its rows.
func insertSQL(n int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO utterances (" + columns + ") VALUES ")
	ph := "(" + strings.TrimSuffix(strings.Repeat("?, ", numColumns), ", ") + ")"
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ph)
	}
	b.WriteString(" ON DUPLICATE KEY UPDATE file_path = VALUES(file_path), sample_rate = VALUES(sample_rate)," +
		" speaker_id = VALUES(speaker_id), gender = VALUES(gender), category = VALUES(category)," +
		" duration_sec = VALUES(duration_sec), split = VALUES(split)," +
		" file_hash = VALUES(file_hash), file_size = VALUES(file_size)")
	return b.String()
}

func insertArgs(rows []Utterance) []interface{} {
	args := make([]interface{}, 0, len(rows)*numColumns)
	for _, u := range rows {
		args = append(args, u.RunID, u.ID, u.Path, u.SampleRate, u.Speaker, u.Gender,
			u.Category, u.DurationSec, u.Split, u.Kind, u.MD5, u.Size)
	}
	return args
}

// InsertUtterances writes rows in batches inside one transaction.
func (d *DB) InsertUtterances(ctx context.Context, rows []Utterance, batch int, log logrus.FieldLogger) (int64, error) {
	if batch <= 0 {
		batch = 500
	}
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var total int64
	for start := 0; start < len(rows); start += batch {
		chunk := rows[start:min(start+batch, len(rows))]
		if _, err := tx.ExecContext(ctx, insertSQL(len(chunk)), insertArgs(chunk)...); err != nil {
			return 0, fmt.Errorf("insert rows %d-%d: %w", start, start+len(chunk), err)
		}
		total += int64(len(chunk))
		if log != nil {
			log.WithFields(logrus.Fields{"rows": total, "of": len(rows)}).Debug("catalog batch written")
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}
