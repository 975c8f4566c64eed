package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"audio-curator/internal/manifest"
	"audio-curator/internal/metrics"
)

// Stage names, in execution order for one corpus.
const (
	StageScan     = "scan"
	StageFilter   = "filter"
	StageResample = "resample"
	StageFinalize = "finalize"
	StageAssemble = "assemble"
)

// StageError reports a failed stage with enough context to act on it.
type StageError struct {
	Stage    string
	Scope    string
	OK       int
	Failed   int
	FirstIDs []string
	Err      error
}

func (e *StageError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "stage %s (%s) failed", e.Stage, e.Scope)
	if e.OK > 0 || e.Failed > 0 {
		fmt.Fprintf(&b, ": %d ok, %d failed", e.OK, e.Failed)
	}
	if len(e.FirstIDs) > 0 {
		fmt.Fprintf(&b, ", first: %s", manifest.FirstN(e.FirstIDs, 5))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *StageError) Unwrap() error { return e.Err }

// StageState is one completed stage as recorded on disk.
type StageState struct {
	Scope string    `json:"scope"`
	Stage string    `json:"stage"`
	At    time.Time `json:"at"`
}

// Runner executes stages at most once per scope, recording completion in a
// "<workdir>/<scope>/.<stage>.done" marker. A failed stage writes no marker
// and leaves the markers of earlier stages alone.
type Runner struct {
	WorkDir string
	Log     logrus.FieldLogger
}

func NewRunner(workDir string, log logrus.FieldLogger) *Runner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{WorkDir: workDir, Log: log}
}

func (r *Runner) ScopeDir(scope string) string {
	return filepath.Join(r.WorkDir, scope)
}

func (r *Runner) marker(scope, stage string) string {
	return filepath.Join(r.ScopeDir(scope), "."+stage+".done")
}

// Done reports whether stage already completed for scope.
func (r *Runner) Done(scope, stage string) bool {
	_, err := os.Stat(r.marker(scope, stage))
	return err == nil
}

// Reset removes the marker so the stage runs again.
func (r *Runner) Reset(scope, stage string) error {
	err := os.Remove(r.marker(scope, stage))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Do runs fn unless the stage is already done. Errors other than
// *StageError are wrapped into one.
func (r *Runner) Do(ctx context.Context, scope, stage string, fn func(ctx context.Context) error) error {
	log := r.Log.WithFields(logrus.Fields{"scope": scope, "stage": stage})
	if r.Done(scope, stage) {
		log.Info("stage already done, skipping")
		metrics.RecordStage(stage, metrics.StatusSkipped)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	log.Info("stage started")
	if err := fn(ctx); err != nil {
		metrics.RecordStage(stage, metrics.StatusFailed)
		var se *StageError
		if !errors.As(err, &se) {
			err = &StageError{Stage: stage, Scope: scope, Err: err}
		}
		log.WithError(err).Error("stage failed")
		return err
	}

	if err := os.MkdirAll(r.ScopeDir(scope), 0o755); err != nil {
		return err
	}
	stamp := []byte(time.Now().UTC().Format(time.RFC3339) + "\n")
	if err := os.WriteFile(r.marker(scope, stage), stamp, 0o644); err != nil {
		return fmt.Errorf("write done marker: %w", err)
	}
	metrics.RecordStage(stage, metrics.StatusDone)
	log.WithField("elapsed", time.Since(start).Round(time.Millisecond).String()).Info("stage done")
	return nil
}

// Stages lists every completed stage under WorkDir, sorted by scope then time.
func (r *Runner) Stages() ([]StageState, error) {
	paths, err := filepath.Glob(filepath.Join(r.WorkDir, "*", ".*.done"))
	if err != nil {
		return nil, err
	}
	out := make([]StageState, 0, len(paths))
	for _, p := range paths {
		name := filepath.Base(p)
		st := StageState{
			Scope: filepath.Base(filepath.Dir(p)),
			Stage: strings.TrimSuffix(strings.TrimPrefix(name, "."), ".done"),
		}
		if data, err := os.ReadFile(p); err == nil {
			st.At, _ = time.Parse(time.RFC3339, strings.TrimSpace(string(data)))
		}
		out = append(out, st)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Scope != out[j].Scope {
			return out[i].Scope < out[j].Scope
		}
		return out[i].At.Before(out[j].At)
	})
	return out, nil
}
