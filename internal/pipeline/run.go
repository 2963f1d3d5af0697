package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shelfscout/shelfscout/internal/catalog"
	"github.com/shelfscout/shelfscout/internal/config"
	"github.com/shelfscout/shelfscout/internal/core"
	"github.com/shelfscout/shelfscout/internal/enrich"
	"github.com/shelfscout/shelfscout/internal/llm"
	"github.com/shelfscout/shelfscout/internal/metadata"
	"github.com/shelfscout/shelfscout/internal/store"
	"github.com/shelfscout/shelfscout/internal/transform"
)

// Stages are the four ingestion steps in run order. Each is optional so a
// partially configured deployment (or a test) can run a subset.
type Stages struct {
	Sync      func(ctx context.Context) (int, error)
	Enrich    func(ctx context.Context) (enrich.Stats, error)
	Transform func(ctx context.Context) (transform.Stats, error)
	Load      func(ctx context.Context) (store.LoadStats, error)
}

type Options struct {
	SkipSync      bool `json:"skip_sync"`
	SkipEnrich    bool `json:"skip_enrich"`
	SkipTransform bool `json:"skip_transform"`
	SkipLoad      bool `json:"skip_load"`
}

type Summary struct {
	RunID     string          `json:"run_id"`
	Synced    int             `json:"synced"`
	Enrich    enrich.Stats    `json:"enrich"`
	Transform transform.Stats `json:"transform"`
	Load      store.LoadStats `json:"load"`
	Started   time.Time       `json:"started"`
	Finished  time.Time       `json:"finished"`
}

// RunStatus is the orchestrator's view of the current and most recent run.
type RunStatus struct {
	Running     bool     `json:"running"`
	RunID       string   `json:"run_id,omitempty"`
	LastSummary *Summary `json:"last_summary,omitempty"`
	LastError   string   `json:"last_error,omitempty"`
}

// Orchestrator serializes ingestion runs behind one process-lifetime lock.
// A run triggered while another is in flight is rejected, never queued.
type Orchestrator struct {
	mu     sync.Mutex
	Stages Stages
	Events *Events

	stateMu sync.Mutex
	state   RunStatus
}

func NewOrchestrator(stages Stages, events *Events) *Orchestrator {
	return &Orchestrator{Stages: stages, Events: events}
}

// Run executes all stages synchronously and blocks until they finish.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (Summary, error) {
	if !o.mu.TryLock() {
		return Summary{}, core.ErrPipelineBusy
	}
	defer o.mu.Unlock()
	return o.execute(ctx, uuid.New().String(), opts)
}

// Start launches a run in the background and returns its id immediately.
// The caller supplies a context detached from any single request; progress
// is observable through Status and the stage event stream.
func (o *Orchestrator) Start(ctx context.Context, opts Options) (string, error) {
	if !o.mu.TryLock() {
		return "", core.ErrPipelineBusy
	}
	runID := uuid.New().String()
	o.setRunning(runID)
	go func() {
		defer o.mu.Unlock()
		if _, err := o.execute(ctx, runID, opts); err != nil {
			log.Printf("[Pipeline] Background run %s failed: %v", runID, err)
		}
	}()
	return runID, nil
}

// Status reports whether a run is in flight and the outcome of the last one.
func (o *Orchestrator) Status() RunStatus {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	return o.state
}

func (o *Orchestrator) setRunning(runID string) {
	o.stateMu.Lock()
	o.state.Running = true
	o.state.RunID = runID
	o.stateMu.Unlock()
}

func (o *Orchestrator) finish(summary Summary, err error) {
	o.stateMu.Lock()
	o.state.Running = false
	o.state.LastSummary = &summary
	o.state.LastError = ""
	if err != nil {
		o.state.LastError = err.Error()
	}
	o.stateMu.Unlock()
}

// execute assumes the caller holds the run lock.
func (o *Orchestrator) execute(ctx context.Context, runID string, opts Options) (Summary, error) {
	o.setRunning(runID)
	summary, err := o.runStages(ctx, runID, opts)
	o.finish(summary, err)
	return summary, err
}

func (o *Orchestrator) runStages(ctx context.Context, runID string, opts Options) (Summary, error) {
	summary := Summary{
		RunID:   runID,
		Started: time.Now().UTC(),
	}
	log.Printf("[Pipeline] Run %s starting", summary.RunID)

	if o.Stages.Sync != nil && !opts.SkipSync {
		o.Events.Publish(summary.RunID, "sync", "started", nil)
		n, err := o.Stages.Sync(ctx)
		if err != nil {
			o.Events.Publish(summary.RunID, "sync", "failed", map[string]any{"error": err.Error()})
			return summary, fmt.Errorf("sync stage: %w", err)
		}
		summary.Synced = n
		o.Events.Publish(summary.RunID, "sync", "completed", map[string]any{"appended": n})
	}

	if o.Stages.Enrich != nil && !opts.SkipEnrich {
		o.Events.Publish(summary.RunID, "enrich", "started", nil)
		stats, err := o.Stages.Enrich(ctx)
		if err != nil {
			o.Events.Publish(summary.RunID, "enrich", "failed", map[string]any{"error": err.Error()})
			return summary, fmt.Errorf("enrich stage: %w", err)
		}
		summary.Enrich = stats
		o.Events.Publish(summary.RunID, "enrich", "completed", map[string]any{
			"enriched": stats.Enriched, "found": stats.Found, "missed": stats.Missed,
		})
	}

	if o.Stages.Transform != nil && !opts.SkipTransform {
		o.Events.Publish(summary.RunID, "transform", "started", nil)
		stats, err := o.Stages.Transform(ctx)
		if err != nil {
			o.Events.Publish(summary.RunID, "transform", "failed", map[string]any{"error": err.Error()})
			return summary, fmt.Errorf("transform stage: %w", err)
		}
		summary.Transform = stats
		o.Events.Publish(summary.RunID, "transform", "completed", map[string]any{
			"kept": stats.Kept, "duplicates": stats.RemovedDuplicate,
		})
	}

	if o.Stages.Load != nil && !opts.SkipLoad {
		o.Events.Publish(summary.RunID, "load", "started", nil)
		stats, err := o.Stages.Load(ctx)
		if err != nil {
			o.Events.Publish(summary.RunID, "load", "failed", map[string]any{"error": err.Error()})
			return summary, fmt.Errorf("load stage: %w", err)
		}
		summary.Load = stats
		o.Events.Publish(summary.RunID, "load", "completed", map[string]any{
			"inserted": stats.Inserted, "skipped": stats.SkippedKnown + stats.SkippedConflict,
		})
	}

	summary.Finished = time.Now().UTC()
	log.Printf("[Pipeline] Run %s finished in %s", summary.RunID, summary.Finished.Sub(summary.Started).Round(time.Millisecond))
	return summary, nil
}

// BuildStages wires the real ingestion steps from configuration. The
// describer is optional; db may be nil when the load stage is skipped.
func BuildStages(cfg *config.Config, db store.DBExecutor, describer llm.Provider) (Stages, error) {
	client, err := metadata.NewClient(cfg.Source)
	if err != nil {
		return Stages{}, err
	}

	var stages Stages

	if cfg.OPACBaseURL != "" {
		opac := catalog.NewOPACClient(cfg.OPACBaseURL, cfg.OPACShelfID)
		stages.Sync = func(ctx context.Context) (int, error) {
			return opac.Sync(ctx, cfg.RegisterPath)
		}
	}

	stages.Enrich = func(ctx context.Context) (enrich.Stats, error) {
		rows, err := catalog.ReadRegister(cfg.RegisterPath)
		if err != nil {
			return enrich.Stats{}, err
		}
		return enrich.Run(ctx, rows, client, enrich.Options{
			OutputPath:     cfg.EnrichedPath,
			Concurrency:    cfg.Concurrency,
			CheckpointRows: cfg.CheckpointRows,
			Limit:          cfg.SampleLimit,
		})
	}

	stages.Transform = func(ctx context.Context) (transform.Stats, error) {
		rows, err := catalog.ReadRegister(cfg.RegisterPath)
		if err != nil {
			return transform.Stats{}, err
		}
		return transform.Run(ctx, catalog.SideTable(rows), transform.Options{
			InputPath:  cfg.EnrichedPath,
			OutputPath: cfg.CanonicalPath,
			Describer:  describer,
		})
	}

	if db != nil {
		loader := store.NewLoader(db, cfg.LoaderBatchSize)
		stages.Load = func(ctx context.Context) (store.LoadStats, error) {
			return loader.LoadFile(ctx, cfg.CanonicalPath)
		}
	}

	return stages, nil
}
