// Package pipeline runs one digest pass:
// FETCH, MERGE, NORMALIZE, FILTER_NEW, RENDER, PUBLISH, COMMIT.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/david/anansi/internal/digest"
	"github.com/david/anansi/internal/ingest"
	"github.com/david/anansi/internal/ledger"
	"github.com/david/anansi/internal/logger"
	"github.com/david/anansi/internal/metrics"
	"github.com/david/anansi/internal/models"
)

const (
	defaultFetchTimeout = 90 * time.Second
	defaultParallelism  = 4
)

var (
	// ErrPublish wraps a failed digest delivery. The ledger is left untouched.
	ErrPublish = errors.New("publish digest")
	// ErrLedgerSave wraps a failure to persist the ledger after delivery.
	ErrLedgerSave = errors.New("save ledger")
	// ErrLedgerLoad wraps a ledger read failure other than corruption.
	ErrLedgerLoad = errors.New("load ledger")
)

// Outcome is the terminal state of a run.
type Outcome string

const (
	OutcomeNoItems    Outcome = "no_items"
	OutcomeNoNewItems Outcome = "no_new_items"
	OutcomePublished  Outcome = "published"
	OutcomeDryRun     Outcome = "dry_run"
	OutcomeFailed     Outcome = "failed"
)

// Source pairs a registry entry with its built connector.
type Source struct {
	Config    ingest.SourceConfig
	Connector ingest.Connector
}

// SourceResult is the per-connector outcome of FETCH. Err is set when the
// connector failed, timed out or panicked; Items is then empty.
type SourceResult struct {
	Name     string
	Items    []ingest.RawOpportunity
	Err      error
	Duration time.Duration
}

// SourceSummary is the serializable view of a SourceResult.
type SourceSummary struct {
	Name       string `json:"name"`
	Items      int    `json:"items"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// Report describes a finished run.
type Report struct {
	RunID       string          `json:"run_id"`
	Outcome     Outcome         `json:"outcome"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
	Fetched     int             `json:"fetched"`
	Normalized  int             `json:"normalized"`
	New         int             `json:"new"`
	Shown       int             `json:"shown"`
	Sources     []SourceSummary `json:"sources"`
	Error       string          `json:"error,omitempty"`
}

// RunRecorder persists run reports. Recording failures are logged only.
type RunRecorder interface {
	RecordRun(ctx context.Context, r Report) error
}

// Options are the effective run knobs.
type Options struct {
	FutureOnly      bool
	RequireDeadline bool
	MaxLines        int
	FetchTimeout    time.Duration // per connector
	Parallelism     int
	DryRun          bool
	Preview         io.Writer // dry-run output, io.Discard when nil
}

// Driver wires the stages together. Sources, Ledger and Options are
// required; Publisher may be nil for dry runs or when nothing is new.
type Driver struct {
	Sources   []Source
	Ledger    ledger.Store
	Publisher digest.Publisher
	Options   Options

	Log      logger.Logger
	Metrics  *metrics.Metrics
	Recorder RunRecorder
	Now      func() time.Time
}

func New(sources []Source, store ledger.Store, pub digest.Publisher, opts Options, log logger.Logger) *Driver {
	return &Driver{Sources: sources, Ledger: store, Publisher: pub, Options: opts, Log: log}
}

func (d *Driver) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Driver) log() logger.Logger {
	if d.Log == nil {
		return logger.NewNop()
	}
	return d.Log
}

// Run executes one pass. Early exits (no items, no new items) and dry runs
// return a nil error. Publish and ledger-save failures are returned wrapped
// in ErrPublish / ErrLedgerSave; the Report is filled in either case.
func (d *Driver) Run(ctx context.Context) (Report, error) {
	rep := Report{RunID: uuid.New().String(), StartedAt: d.now()}
	log := d.log().With(logger.String("run_id", rep.RunID))

	err := d.run(ctx, log, &rep)

	rep.CompletedAt = d.now()
	if err != nil {
		rep.Outcome = OutcomeFailed
		rep.Error = err.Error()
		log.Error("Run failed", logger.Err(err))
	}
	d.Metrics.ObserveRun(string(rep.Outcome), err != nil, rep.CompletedAt.Sub(rep.StartedAt), rep.CompletedAt)

	if d.Recorder != nil && !d.Options.DryRun {
		if recErr := d.Recorder.RecordRun(context.WithoutCancel(ctx), rep); recErr != nil {
			log.Warn("Failed to record run", logger.Err(recErr))
		}
	}
	return rep, err
}

func (d *Driver) run(ctx context.Context, log logger.Logger, rep *Report) error {
	if !d.Options.DryRun {
		if locker, ok := d.Ledger.(ledger.Locker); ok {
			release, err := locker.Lock(ctx)
			if err != nil {
				return fmt.Errorf("acquire ledger lock: %w", err)
			}
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					log.Warn("Failed to release ledger lock", logger.Err(err))
				}
			}()
		}
	}

	// FETCH
	results := d.fetchAll(ctx, log)
	for _, r := range results {
		s := SourceSummary{Name: r.Name, Items: len(r.Items), DurationMS: r.Duration.Milliseconds()}
		if r.Err != nil {
			s.Error = r.Err.Error()
		}
		rep.Sources = append(rep.Sources, s)
	}

	// MERGE
	raws := d.merge(results)
	rep.Fetched = len(raws)
	d.Metrics.SetStage("fetch", rep.Fetched)
	log.Info("Fetched raw records", logger.Int("count", rep.Fetched), logger.Int("sources", len(results)))
	if len(raws) == 0 {
		rep.Outcome = OutcomeNoItems
		log.Info("No items fetched from any source")
		return nil
	}

	// NORMALIZE
	opps := ingest.Normalize(raws, ingest.NormalizeOptions{
		FutureOnly:      d.Options.FutureOnly,
		RequireDeadline: d.Options.RequireDeadline,
		Today:           d.now(),
	})
	rep.Normalized = len(opps)
	d.Metrics.SetStage("normalize", rep.Normalized)
	log.Info("Normalized records", logger.Int("count", rep.Normalized))
	if len(opps) == 0 {
		rep.Outcome = OutcomeNoItems
		log.Info("No items left after normalization")
		return nil
	}

	// FILTER_NEW
	seen, err := d.Ledger.Load(ctx)
	switch {
	case errors.Is(err, ledger.ErrCorrupt):
		log.Warn("Ledger unreadable, treating as empty", logger.Err(err))
		seen = ledger.NewSet()
	case err != nil:
		return fmt.Errorf("%w: %w", ErrLedgerLoad, err)
	}
	fresh := ledger.FilterNew(opps, seen)
	rep.New = len(fresh)
	d.Metrics.SetStage("new", rep.New)
	log.Info("Filtered against ledger", logger.Int("new", rep.New), logger.Int("seen", len(seen)))
	if len(fresh) == 0 {
		rep.Outcome = OutcomeNoNewItems
		log.Info("No new items since last run")
		return nil
	}

	// RENDER
	msg := digest.Render(fresh, d.Options.MaxLines, d.now())
	rep.Shown = msg.Shown

	if d.Options.DryRun {
		d.preview(msg, fresh)
		rep.Outcome = OutcomeDryRun
		log.Info("Dry run, digest not published", logger.Int("shown", msg.Shown))
		return nil
	}

	// PUBLISH
	if err := d.publish(ctx, msg.Text); err != nil {
		return err
	}
	log.Info("Digest published", logger.Int("shown", msg.Shown), logger.Int("total", msg.Total))

	// COMMIT: every new id is recorded, including those folded into "+N more".
	ids := make([]string, len(fresh))
	for i, o := range fresh {
		ids[i] = o.ID
	}
	if err := d.Ledger.Save(context.WithoutCancel(ctx), ledger.Commit(seen, ids)); err != nil {
		return fmt.Errorf("%w: %w", ErrLedgerSave, err)
	}
	rep.Outcome = OutcomePublished
	log.Info("Ledger committed", logger.Int("added", len(ids)))
	return nil
}

func (d *Driver) publish(ctx context.Context, text string) error {
	var err error
	if d.Publisher == nil {
		err = digest.ErrNoWebhook
	} else {
		err = d.Publisher.Publish(ctx, text)
	}
	d.Metrics.ObservePublish(err)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}
	return nil
}

func (d *Driver) preview(msg digest.Digest, fresh []models.Opportunity) {
	w := d.Options.Preview
	if w == nil {
		w = io.Discard
	}
	fmt.Fprintln(w, msg.Text)
	fmt.Fprintln(w)
	digest.PreviewTable(w, fresh)
}

// fetchAll runs every connector concurrently under its own timeout. Results
// keep the Sources order regardless of completion order.
func (d *Driver) fetchAll(ctx context.Context, log logger.Logger) []SourceResult {
	results := make([]SourceResult, len(d.Sources))
	parallel := d.Options.Parallelism
	if parallel <= 0 {
		parallel = defaultParallelism
	}

	var g errgroup.Group
	g.SetLimit(parallel)
	for i, src := range d.Sources {
		i, src := i, src
		g.Go(func() error {
			results[i] = d.fetchOne(ctx, src)
			r := results[i]
			d.Metrics.ObserveSource(r.Name, r.Err, len(r.Items), r.Duration)
			if r.Err != nil {
				log.Warn("Source fetch failed",
					logger.String("source", r.Name),
					logger.Err(r.Err),
					logger.Duration("duration", r.Duration))
				return nil
			}
			log.Info("Source fetched",
				logger.String("source", r.Name),
				logger.Int("items", len(r.Items)),
				logger.Duration("duration", r.Duration))
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (d *Driver) fetchOne(ctx context.Context, src Source) (res SourceResult) {
	res.Name = src.Config.ID
	if res.Name == "" {
		res.Name = src.Connector.Name()
	}
	timeout := d.Options.FetchTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		if p := recover(); p != nil {
			res.Items = nil
			res.Err = fmt.Errorf("connector panic: %v", p)
		}
	}()

	items, err := src.Connector.Fetch(ctx, src.Config.Options())
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		res.Err = err
		return res
	}
	res.Items = items
	return res
}

// merge concatenates successful results, stamping the source donor label
// and dropping records of require_deadline sources without a usable deadline.
func (d *Driver) merge(results []SourceResult) []ingest.RawOpportunity {
	var out []ingest.RawOpportunity
	now := d.now()
	for i, r := range results {
		if r.Err != nil {
			continue
		}
		cfg := d.Sources[i].Config
		for _, raw := range r.Items {
			if raw.Donor == "" {
				raw.Donor = cfg.Name
			}
			if cfg.RequireDeadline && ingest.ParseDate(raw.Deadline, now) == "" {
				continue
			}
			out = append(out, raw)
		}
	}
	return out
}
