package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"audio-curator/internal/audio"
	"audio-curator/internal/manifest"
	"audio-curator/internal/metrics"
)

const stageResample = "resample"

// ErrNoSuccess is returned when not a single item of a run was resampled.
var ErrNoSuccess = errors.New("resample: no item succeeded")

// ItemError is one file that could not be resampled. It never aborts a run.
type ItemError struct {
	ID   string
	Path string
	Err  error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.ID, e.Path, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

type ResampleOptions struct {
	TargetRate  int
	Workers     int
	BatchSize   int
	MaxFiles    int // first N entries in manifest order; 0 means all
	OutputDir   string
	ItemTimeout time.Duration
	// MaxFilesPerDir switches from hash sharding to sequential
	// subdirectories holding at most this many files each.
	MaxFilesPerDir int
}

type ResampleStatus struct {
	Running   bool    `json:"running"`
	Total     int64   `json:"total"`
	Processed int64   `json:"processed"`
	Reused    int64   `json:"reused"`
	Failed    int64   `json:"failed"`
	Percent   float64 `json:"percent"`
	Rate      float64 `json:"rate"`
	Elapsed   string  `json:"elapsed"`
	LastError string  `json:"last_error,omitempty"`
}

// ResampleResult is the rewritten data dir plus everything that was dropped.
type ResampleResult struct {
	Dir       *manifest.Dir
	Failures  []ItemError
	Durations map[string]time.Duration
	Stats     DurationStats
}

type Resampler struct {
	transcoder audio.Transcoder
	opts       ResampleOptions
	log        logrus.FieldLogger

	running   int32
	processed int64
	reused    int64
	failed    int64
	total     int64
	startTime time.Time
	lastError string
	failures  []ItemError
	cancel    context.CancelFunc
	mu        sync.Mutex
}

func NewResampler(t audio.Transcoder, opts ResampleOptions, log logrus.FieldLogger) *Resampler {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Resampler{transcoder: t, opts: opts, log: log}
}

func (r *Resampler) recordFailure(fe ItemError) {
	r.mu.Lock()
	r.failures = append(r.failures, fe)
	r.lastError = fe.Error()
	r.mu.Unlock()
}

// Stop cancels the run in progress, if any.
func (r *Resampler) Stop() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()
}

func (r *Resampler) Status() ResampleStatus {
	p := atomic.LoadInt64(&r.processed)
	re := atomic.LoadInt64(&r.reused)
	f := atomic.LoadInt64(&r.failed)
	t := atomic.LoadInt64(&r.total)

	r.mu.Lock()
	start := r.startTime
	lastErr := r.lastError
	r.mu.Unlock()

	var pct, rate float64
	var elapsed time.Duration
	if !start.IsZero() {
		elapsed = time.Since(start)
	}
	if t > 0 {
		pct = float64(p+re+f) / float64(t) * 100
	}
	if elapsed.Seconds() > 0 {
		rate = float64(p) / elapsed.Seconds()
	}

	return ResampleStatus{
		Running:   atomic.LoadInt32(&r.running) == 1,
		Total:     t,
		Processed: p,
		Reused:    re,
		Failed:    f,
		Percent:   pct,
		Rate:      rate,
		Elapsed:   elapsed.Round(time.Second).String(),
		LastError: lastErr,
	}
}

// OutputPath is where id lands under dir. Files are spread over 256
// subdirectories keyed by the id hash. Ids with a path separator are
// rejected by the resampler before a path is built.
func OutputPath(dir, id string) string {
	h := fnv.New32a()
	h.Write([]byte(id))
	shard := fmt.Sprintf("%02x", h.Sum32()>>24)
	return filepath.Join(dir, shard, id+".wav")
}

// SequentialPath places the idx-th of n files into hex-numbered
// subdirectories of perDir files each.
func SequentialPath(dir, id string, idx, n, perDir int) string {
	digits := 1
	for span := perDir * 16; span < n; span *= 16 {
		digits++
	}
	shard := fmt.Sprintf("%0*x", digits, idx/perDir)
	return filepath.Join(dir, shard, id+".wav")
}

func (r *Resampler) outputPath(dir string, idx, n int, id string) string {
	if r.opts.MaxFilesPerDir > 0 {
		return SequentialPath(dir, id, idx, n, r.opts.MaxFilesPerDir)
	}
	return OutputPath(dir, id)
}

type outcome struct {
	ok       bool
	entry    manifest.Entry
	duration time.Duration
}

// Run resamples d into the configured output dir.
func (r *Resampler) Run(ctx context.Context, d *manifest.Dir) (*ResampleResult, error) {
	return r.RunTo(ctx, d, r.opts.OutputDir)
}

// RunTo resamples every entry of d into outDir and returns a new dir whose
// manifest points at the output files, in input order, with every table
// restricted to the surviving ids. Per-item failures are collected, not
// returned. RunTo fails if outDir cannot be created, if ctx is cancelled, or
// if nothing succeeded.
func (r *Resampler) RunTo(ctx context.Context, d *manifest.Dir, outDir string) (*ResampleResult, error) {
	if !atomic.CompareAndSwapInt32(&r.running, 0, 1) {
		return nil, errors.New("resample already running")
	}
	defer atomic.StoreInt32(&r.running, 0)

	if r.opts.TargetRate <= 0 {
		return nil, fmt.Errorf("invalid target sample rate %d", r.opts.TargetRate)
	}
	if outDir == "" {
		return nil, errors.New("no output dir")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	entries := d.Manifest.Head(r.opts.MaxFiles).Entries()
	if dropped := d.Manifest.Len() - len(entries); dropped > 0 {
		r.log.WithFields(logrus.Fields{"max_files": r.opts.MaxFiles, "dropped": dropped}).
			Warn("manifest truncated before resampling")
	}

	atomic.StoreInt64(&r.total, int64(len(entries)))
	atomic.StoreInt64(&r.processed, 0)
	atomic.StoreInt64(&r.reused, 0)
	atomic.StoreInt64(&r.failed, 0)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.mu.Lock()
	r.failures = nil
	r.lastError = ""
	r.startTime = time.Now()
	r.cancel = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.cancel = nil
		r.mu.Unlock()
	}()

	r.log.WithFields(logrus.Fields{
		"items":   len(entries),
		"rate":    r.opts.TargetRate,
		"workers": r.opts.Workers,
		"batch":   r.opts.BatchSize,
		"out":     outDir,
	}).Info("resampling")

	results := make([]outcome, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for start := 0; start < len(entries); start += r.opts.BatchSize {
		end := min(start+r.opts.BatchSize, len(entries))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				results[i] = r.process(gctx, entries[i], r.outputPath(outDir, i, len(entries), entries[i].ID))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keep := make(map[string]struct{}, len(entries))
	out := manifest.New()
	durations := make(map[string]time.Duration, len(entries))
	for _, o := range results {
		if !o.ok {
			continue
		}
		keep[o.entry.ID] = struct{}{}
		out.Append(o.entry)
		durations[o.entry.ID] = o.duration
	}

	res := &ResampleResult{
		Dir:       d.Restrict(keep),
		Durations: durations,
		Stats:     SummarizeDurations(durations),
	}
	res.Dir.Manifest = out
	r.mu.Lock()
	res.Failures = append([]ItemError(nil), r.failures...)
	r.mu.Unlock()

	fields := logrus.Fields{
		"ok":       atomic.LoadInt64(&r.processed),
		"reused":   atomic.LoadInt64(&r.reused),
		"failed":   len(res.Failures),
		"hours":    fmt.Sprintf("%.2f", res.Stats.Total.Hours()),
		"mean_sec": fmt.Sprintf("%.2f", res.Stats.Mean),
	}
	if len(res.Failures) > 0 {
		ids := make([]string, len(res.Failures))
		for i, f := range res.Failures {
			ids[i] = f.ID
		}
		fields["first_failed"] = manifest.FirstN(ids, 5)
	}
	r.log.WithFields(fields).Info("resample complete")

	if out.Len() == 0 && len(entries) > 0 {
		return res, ErrNoSuccess
	}
	return res, nil
}

func (r *Resampler) process(ctx context.Context, e manifest.Entry, dst string) outcome {
	started := time.Now()

	if strings.ContainsAny(e.ID, `/\`) {
		return r.fail(e, fmt.Errorf("id %q contains a path separator", e.ID), started)
	}

	if h, err := audio.CheckWAV(dst, r.opts.TargetRate); err == nil {
		atomic.AddInt64(&r.reused, 1)
		metrics.RecordItem(stageResample, metrics.StatusReused, 0)
		return r.success(e, dst, h)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return r.fail(e, err, started)
	}

	ictx := ctx
	if r.opts.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ictx, cancel = context.WithTimeout(ctx, r.opts.ItemTimeout)
		defer cancel()
	}

	metrics.ResampleInFlight.Inc()
	h, err := audio.TranscodeFile(ictx, r.transcoder, e.Path, dst, r.opts.TargetRate)
	metrics.ResampleInFlight.Dec()
	if err != nil {
		if ctx.Err() != nil {
			return outcome{}
		}
		if errors.Is(err, context.DeadlineExceeded) || ictx.Err() != nil {
			err = fmt.Errorf("timed out after %s: %w", r.opts.ItemTimeout, err)
		}
		return r.fail(e, err, started)
	}

	atomic.AddInt64(&r.processed, 1)
	metrics.RecordItem(stageResample, metrics.StatusOK, time.Since(started))
	return r.success(e, dst, h)
}

func (r *Resampler) success(e manifest.Entry, dst string, h *audio.Header) outcome {
	e.Path = dst
	e.SampleRate = r.opts.TargetRate
	e.Channels = h.Channels
	return outcome{ok: true, entry: e, duration: h.Duration}
}

func (r *Resampler) fail(e manifest.Entry, err error, started time.Time) outcome {
	atomic.AddInt64(&r.failed, 1)
	metrics.RecordItem(stageResample, metrics.StatusFailed, time.Since(started))
	fe := ItemError{ID: e.ID, Path: e.Path, Err: err}
	r.recordFailure(fe)
	r.log.WithFields(logrus.Fields{"id": e.ID, "path": e.Path}).WithError(err).Warn("resample failed")
	return outcome{}
}
