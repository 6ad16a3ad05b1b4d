// Package jobs schedules prediction jobs. The Dispatcher owns the job table,
// admits queued jobs into a bounded pool of isolated execution units, reaps
// them when they terminate, and releases each job's data source exactly once.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/eventpredict/internal/cache"
	"github.com/kiranshivaraju/eventpredict/internal/store"
	"github.com/kiranshivaraju/eventpredict/pkg/models"
)

const bookkeepingTimeout = 5 * time.Second

// Options bounds the dispatcher.
type Options struct {
	// MaxJobs caps how many execution units may be active at once.
	MaxJobs int
	// PollInterval bounds every wait in the dispatch loop.
	PollInterval time.Duration
	// ResultGrace is how long a terminated unit gets to deliver its result
	// before the job is declared crashed.
	ResultGrace time.Duration
	// MaxRuntime kills units that stay active longer. Zero disables it.
	MaxRuntime time.Duration
	// StatusTTL is the expiry of mirrored job statuses.
	StatusTTL time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxJobs < 1 {
		o.MaxJobs = 1
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.ResultGrace <= 0 {
		o.ResultGrace = 5 * time.Second
	}
	if o.MaxRuntime < 0 {
		o.MaxRuntime = 0
	}
	if o.StatusTTL <= 0 {
		o.StatusTTL = 30 * time.Minute
	}
	return o
}

// Stats is a point-in-time summary of the dispatcher.
type Stats struct {
	Queued  int                      `json:"queued"`
	Active  int                      `json:"active"`
	MaxJobs int                      `json:"max_jobs"`
	Jobs    map[models.JobStatus]int `json:"jobs"`
}

type activeUnit struct {
	unit     Unit
	started  time.Time
	expired  bool
	stopping bool
}

// Dispatcher is safe for concurrent use by request handlers. Run must be
// called exactly once to drive the dispatch loop.
type Dispatcher struct {
	launcher  Launcher
	artifacts ArtifactRemover
	cache     cache.Cache
	archive   store.Archive
	opts      Options

	mu     sync.Mutex
	jobs   map[string]*models.Job
	active map[string]*activeUnit
	queue  *fifo

	running atomic.Bool
}

// NewDispatcher creates a Dispatcher. A nil cache or archive disables that mirror.
func NewDispatcher(launcher Launcher, artifacts ArtifactRemover, c cache.Cache, a store.Archive, opts Options) *Dispatcher {
	if c == nil {
		c = cache.NopCache{}
	}
	if a == nil {
		a = store.NopArchive{}
	}
	return &Dispatcher{
		launcher:  launcher,
		artifacts: artifacts,
		cache:     c,
		archive:   a,
		opts:      opts.withDefaults(),
		jobs:      make(map[string]*models.Job),
		active:    make(map[string]*activeUnit),
		queue:     newFIFO(),
	}
}

// Create validates req and registers a new job in status nodata.
// Validation happens before any shared state is touched.
func (d *Dispatcher) Create(ctx context.Context, req models.CreateJobRequest) (string, error) {
	if err := validateRequest(req); err != nil {
		return "", err
	}

	job := &models.Job{
		Created:    time.Now().UTC().Format(models.CreatedLayout),
		Status:     models.JobStatusNoData,
		SortedData: req.SortedData,
		Models:     append([]models.Model(nil), req.Models...),
	}

	d.mu.Lock()
	id := newJobID()
	for d.jobs[id] != nil {
		id = newJobID()
	}
	job.ID = id
	d.jobs[id] = job
	d.mu.Unlock()

	d.mirrorStatus(ctx, id, models.JobStatusNoData)
	slog.Info("job created", "job_id", id, "models", len(job.Models))
	return id, nil
}

func validateRequest(req models.CreateJobRequest) error {
	if len(req.Models) == 0 {
		return fmt.Errorf("%w: models is required", ErrValidation)
	}
	for i, m := range req.Models {
		if !m.HasConfig() {
			return fmt.Errorf("%w: models[%d].config is required", ErrValidation, i)
		}
	}
	return nil
}

func newJobID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// AddDataSource attaches the uploaded data source at path and queues the job.
// A job accepts exactly one data source; later calls fail with ErrConflict.
func (d *Dispatcher) AddDataSource(ctx context.Context, id, path string) error {
	d.mu.Lock()
	job, ok := d.jobs[id]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if job.Status != models.JobStatusNoData || job.DataSource != nil {
		status := job.Status
		d.mu.Unlock()
		return fmt.Errorf("%w: job %s is %s", ErrConflict, id, status)
	}
	job.DataSource = &path
	job.Status = models.JobStatusPending
	d.queue.Push(id)
	d.mu.Unlock()

	d.mirrorStatus(ctx, id, models.JobStatusPending)
	slog.Info("job queued", "job_id", id)
	return nil
}

// GetJob returns a snapshot of the job without its model list.
func (d *Dispatcher) GetJob(_ context.Context, id string) (models.JobView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	job, ok := d.jobs[id]
	if !ok {
		return models.JobView{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return job.View(), nil
}

// Stats reports queue depth, active units, and job counts per status.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Stats{
		Queued:  d.queue.Len(),
		Active:  len(d.active),
		MaxJobs: d.opts.MaxJobs,
		Jobs:    make(map[models.JobStatus]int),
	}
	for _, j := range d.jobs {
		s.Jobs[j.Status]++
	}
	return s
}

// Run drives the dispatch loop until ctx is cancelled. On the way out every
// active unit is killed and reaped and queued data sources are released.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("dispatcher already running")
	}
	defer d.running.Store(false)

	slog.Info("dispatcher started",
		"max_jobs", d.opts.MaxJobs,
		"poll_interval", d.opts.PollInterval,
		"result_grace", d.opts.ResultGrace,
		"max_runtime", d.opts.MaxRuntime,
	)
	for {
		select {
		case <-ctx.Done():
			d.shutdown(ctx)
			slog.Info("dispatcher stopped")
			return ctx.Err()
		default:
		}
		d.tick(ctx)
	}
}

// tick is one admit-then-reap pass. A failure inside it is logged and the
// loop carries on.
func (d *Dispatcher) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in dispatch loop", "error", r, "stack", string(debug.Stack()))
		}
	}()

	if d.activeCount() < d.opts.MaxJobs {
		if id, ok := d.queue.Pop(ctx, d.opts.PollInterval); ok {
			d.admit(ctx, id)
		}
	} else {
		sleep(ctx, d.opts.PollInterval)
	}

	d.enforceDeadlines()
	d.reap(ctx)
}

func (d *Dispatcher) activeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.active)
}

func (d *Dispatcher) admit(ctx context.Context, id string) {
	d.mu.Lock()
	job, ok := d.jobs[id]
	if !ok || job.Status != models.JobStatusPending {
		d.mu.Unlock()
		slog.Warn("skipping queued job", "job_id", id, "known", ok)
		return
	}
	if _, busy := d.active[id]; busy {
		d.mu.Unlock()
		slog.Error("job already has an active execution unit", "job_id", id)
		return
	}
	job.Status = models.JobStatusRunning
	snapshot := job.Clone()
	d.mu.Unlock()

	d.mirrorStatus(ctx, id, models.JobStatusRunning)

	unit, err := d.launch(ctx, snapshot)
	if err != nil {
		slog.Error("launch execution unit", "job_id", id, "error", err)
		reason := fmt.Sprintf("launch execution unit: %v", err)
		d.finalize(ctx, id, models.JobStatusFailed, nil, &reason)
		return
	}

	d.mu.Lock()
	d.active[id] = &activeUnit{unit: unit, started: time.Now()}
	n := len(d.active)
	d.mu.Unlock()
	slog.Info("job admitted", "job_id", id, "active", n)
}

func (d *Dispatcher) launch(ctx context.Context, job models.Job) (u Unit, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in launcher", "job_id", job.ID, "error", r, "stack", string(debug.Stack()))
			u, err = nil, fmt.Errorf("launcher panic: %v", r)
		}
	}()
	return d.launcher.Launch(ctx, job)
}

func (d *Dispatcher) enforceDeadlines() {
	if d.opts.MaxRuntime <= 0 {
		return
	}
	now := time.Now()

	var overdue []Unit
	d.mu.Lock()
	for _, au := range d.active {
		if !au.expired && now.Sub(au.started) > d.opts.MaxRuntime {
			au.expired = true
			overdue = append(overdue, au.unit)
		}
	}
	d.mu.Unlock()

	for _, u := range overdue {
		slog.Warn("execution unit exceeded max runtime, killing", "job_id", u.JobID(), "max_runtime", d.opts.MaxRuntime)
		if err := u.Kill(); err != nil {
			slog.Error("kill execution unit", "job_id", u.JobID(), "error", err)
		}
	}
}

func (d *Dispatcher) reap(ctx context.Context) {
	var finished []*activeUnit
	d.mu.Lock()
	for _, au := range d.active {
		select {
		case <-au.unit.Done():
			finished = append(finished, au)
		default:
		}
	}
	d.mu.Unlock()

	// One grace period covers the whole sweep, so units that crash together
	// are all failed within a single poll plus grace.
	grace, cancel := context.WithTimeout(context.Background(), d.opts.ResultGrace)
	defer cancel()
	for _, au := range finished {
		d.reapUnit(ctx, au, grace.Done())
	}
}

// reapUnit collects a terminated unit's result, or declares it crashed when
// none arrives before the sweep's grace deadline, then finalizes the job.
func (d *Dispatcher) reapUnit(ctx context.Context, au *activeUnit, deadline <-chan struct{}) {
	id := au.unit.JobID()
	snap, delivered := awaitResult(au.unit, deadline)

	d.mu.Lock()
	delete(d.active, id)
	expired, stopping := au.expired, au.stopping
	d.mu.Unlock()
	au.unit.Release()

	if delivered && snap.ID == id {
		switch snap.Status {
		case models.JobStatusFinished:
			result := snap.Result
			if result == nil {
				result = models.NewResultSet()
			}
			d.finalize(ctx, id, models.JobStatusFinished, result, nil)
			return
		case models.JobStatusFailed:
			reason := snap.Reason
			if reason == nil || *reason == "" {
				r := "execution unit reported failure"
				reason = &r
			}
			d.finalize(ctx, id, models.JobStatusFailed, nil, reason)
			return
		}
		slog.Error("execution unit published a non-terminal snapshot", "job_id", id, "status", snap.Status)
	}

	reason := reasonUnitCrashed
	switch {
	case expired:
		reason = fmt.Sprintf("execution unit exceeded max runtime of %s", d.opts.MaxRuntime)
	case stopping:
		reason = reasonShutdown
	}
	slog.Error("execution unit terminated without result",
		"job_id", id,
		"exit_status", au.unit.ExitStatus(),
		"reason", reason,
	)
	d.finalize(ctx, id, models.JobStatusFailed, nil, &reason)
}

// awaitResult prefers a snapshot that is already buffered, then waits until
// deadline fires. A closed result channel means none will come.
func awaitResult(u Unit, deadline <-chan struct{}) (models.Job, bool) {
	select {
	case snap, ok := <-u.Result():
		return snap, ok
	default:
	}
	select {
	case snap, ok := <-u.Result():
		return snap, ok
	case <-deadline:
		return models.Job{}, false
	}
}

// finalize moves a running job to its terminal status and performs the
// one-time cleanup that goes with it. Calls that would not advance the job
// are refused, which is what makes the cleanup happen only once.
func (d *Dispatcher) finalize(ctx context.Context, id string, status models.JobStatus, result *models.ResultSet, reason *string) {
	d.mu.Lock()
	job, ok := d.jobs[id]
	if !ok {
		d.mu.Unlock()
		return
	}
	if !job.Status.CanTransition(status) {
		from := job.Status
		d.mu.Unlock()
		slog.Error("refusing job status regression", "job_id", id, "from", from, "to", status)
		return
	}
	job.Status = status
	job.Result = result
	job.Reason = reason
	var dataSource string
	if job.DataSource != nil {
		dataSource = *job.DataSource
	}
	outcome := &store.Outcome{
		ID:         uuid.New(),
		JobID:      id,
		Status:     string(status),
		Reason:     reason,
		ModelCount: len(job.Models),
		CreatedAt:  job.CreatedAt(),
		FinishedAt: time.Now().UTC(),
	}
	d.mu.Unlock()

	slog.Info("job completed", "job_id", id, "status", status)
	d.releaseArtifact(id, dataSource)
	d.mirrorStatus(ctx, id, status)
	d.archiveOutcome(ctx, outcome)
}

func (d *Dispatcher) releaseArtifact(id, path string) {
	if path == "" {
		return
	}
	if err := d.artifacts.Remove(path); err != nil {
		slog.Error("remove data source", "job_id", id, "path", path, "error", err)
	}
}

func (d *Dispatcher) mirrorStatus(ctx context.Context, id string, status models.JobStatus) {
	ctx, cancel := bookkeepingContext(ctx)
	defer cancel()
	if err := d.cache.SetJobStatus(ctx, id, string(status), d.opts.StatusTTL); err != nil {
		slog.Warn("mirror job status", "job_id", id, "status", status, "error", err)
	}
}

func (d *Dispatcher) archiveOutcome(ctx context.Context, o *store.Outcome) {
	ctx, cancel := bookkeepingContext(ctx)
	defer cancel()
	if err := d.archive.RecordOutcome(ctx, o); err != nil {
		slog.Warn("archive job outcome", "job_id", o.JobID, "error", err)
	}
}

// shutdown kills and reaps every active unit, then releases the data sources
// of jobs that never started. Queued jobs keep status pending.
func (d *Dispatcher) shutdown(ctx context.Context) {
	var units []*activeUnit
	d.mu.Lock()
	for _, au := range d.active {
		au.stopping = true
		units = append(units, au)
	}
	d.mu.Unlock()

	for _, au := range units {
		if err := au.unit.Kill(); err != nil {
			slog.Error("kill execution unit", "job_id", au.unit.JobID(), "error", err)
		}
	}
	grace, cancel := context.WithTimeout(context.Background(), d.opts.ResultGrace)
	defer cancel()
	for _, au := range units {
		select {
		case <-au.unit.Done():
		case <-grace.Done():
			slog.Error("execution unit ignored kill", "job_id", au.unit.JobID())
		}
		d.reapUnit(ctx, au, grace.Done())
	}

	for _, id := range d.queue.Drain() {
		d.mu.Lock()
		var path string
		if job, ok := d.jobs[id]; ok && job.DataSource != nil {
			path = *job.DataSource
		}
		d.mu.Unlock()
		slog.Warn("abandoning queued job", "job_id", id)
		d.releaseArtifact(id, path)
	}
}

// bookkeepingContext keeps mirror and archive writes alive through shutdown.
func bookkeepingContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
