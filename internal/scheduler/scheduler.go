// Package scheduler implements the ProbeRunner: timer-driven per-probe
// execution with a single-flight lock, watchdog, per-run deadline,
// graceful stop, and dynamic enable/disable/mute. One goroutine per
// job ticker; the single-flight lock map guarantees at most one run in
// flight per probe, with a watchdog recovering locks held past twice
// the probe's timeout.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"monitord/internal/alert"
	"monitord/internal/fact"
	"monitord/internal/idutil"
	"monitord/internal/probe"
	"monitord/internal/rule"
	"monitord/internal/state"
)

// Job is the scheduler's in-memory record for one armed probe.
type Job struct {
	descriptor probe.Descriptor
	instance   probe.Probe
	rules      []ruleBinding
	stop       chan struct{}
	enabled    bool
}

type ruleBinding struct {
	id   string
	rule rule.Rule
}

// Registry owns every probe's timer and the single-flight lock table.
// Both jobs and activeLocks are guarded by mu; no coordination here
// relies on cooperative single-threaded scheduling.
type Registry struct {
	mu          sync.Mutex
	jobs        map[string]*Job
	activeLocks map[string]time.Time

	store  state.Store
	alerts *alert.Manager
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRegistry(store state.Store, alerts *alert.Manager, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		jobs:        map[string]*Job{},
		activeLocks: map[string]time.Time{},
		store:       store,
		alerts:      alerts,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Schedule builds a probe's rule bindings and arms its timer, kicking off
// one immediate asynchronous run without waiting for the first tick.
// Rescheduling an already-armed id replaces the prior job.
func (r *Registry) Schedule(descriptor probe.Descriptor, instance probe.Probe) error {
	bindings := make([]ruleBinding, 0, len(descriptor.Rules))
	for _, rd := range descriptor.Rules {
		built, err := rule.Factory(rd)
		if err != nil {
			return err
		}
		bindings = append(bindings, ruleBinding{id: rd.ID, rule: built})
	}

	r.mu.Lock()
	if existing, ok := r.jobs[descriptor.ID]; ok && existing.enabled {
		close(existing.stop)
	}
	job := &Job{descriptor: descriptor, instance: instance, rules: bindings, stop: make(chan struct{}), enabled: descriptor.Enabled}
	r.jobs[descriptor.ID] = job
	r.mu.Unlock()

	if job.enabled {
		r.wg.Add(1)
		go r.runTicker(job)
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.runOnce(job)
		}()
	}
	return nil
}

// Unschedule permanently removes a probe's timer and job record.
func (r *Registry) Unschedule(probeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[probeID]; ok {
		if job.enabled {
			close(job.stop)
		}
		delete(r.jobs, probeID)
	}
}

func (r *Registry) runTicker(job *Job) {
	defer r.wg.Done()
	interval := job.descriptor.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.runOnce(job)
		case <-job.stop:
			return
		case <-r.ctx.Done():
			return
		}
	}
}

// RunOnce immediately executes the pipeline for probeId outside its
// normal timer cadence, still honoring the single-flight gate.
func (r *Registry) RunOnce(probeID string) error {
	r.mu.Lock()
	job, ok := r.jobs[probeID]
	r.mu.Unlock()
	if !ok {
		return &NotFoundError{ProbeID: probeID}
	}
	r.runOnce(job)
	return nil
}

// runOnce is the full per-tick pipeline: acquire the single-flight lock
// (firing the watchdog if the previous holder is stuck), load state,
// collect facts under a per-run deadline, evaluate every rule in
// declared order, hand any produced alerts to the alert manager, then
// save state and record the run outcome.
func (r *Registry) runOnce(job *Job) {
	probeID := job.descriptor.ID
	timeout := job.descriptor.Timeout
	if timeout <= 0 {
		timeout = probe.DefaultTimeout
	}

	acquired, watchdogFired := r.acquireLock(probeID, timeout)
	if watchdogFired {
		r.fireWatchdog(probeID)
	}
	if !acquired {
		r.logger.Debug("skipping tick: run already in flight", slog.String("probeId", probeID))
		return
	}
	myLockTime := r.lockTimeOf(probeID)

	start := time.Now()
	st, err := r.store.LoadProbeState(r.ctx, probeID)
	if err != nil {
		r.logger.Error("load probe state failed", slog.String("probeId", probeID), slog.String("error", err.Error()))
		r.releaseLockIfCurrent(probeID, myLockTime)
		return
	}

	runCtx, cancel := context.WithTimeout(r.ctx, timeout)
	facts, err, inFlight := r.collect(runCtx, probeID, myLockTime, job.instance, st)
	cancel()
	if err != nil {
		msg := err.Error()
		if err == context.DeadlineExceeded {
			msg = "Probe timeout"
		}
		r.recordRun(probeID, state.RunError, time.Since(start), msg)
		// When Collect is still in flight the lock stays held: the
		// single-flight gate refuses new runs until the watchdog window
		// elapses, and the abandoned goroutine releases the lock itself
		// if it ever completes.
		if !inFlight {
			r.releaseLockIfCurrent(probeID, myLockTime)
		}
		return
	}
	defer r.releaseLockIfCurrent(probeID, myLockTime)

	for k := range facts {
		if !fact.ValidateKey(k) {
			r.logger.Warn("fact key does not match <namespace>.<rest>", slog.String("key", k), slog.String("probeId", probeID))
		}
	}

	var produced []alert.Alert
	for _, binding := range job.rules {
		produced = append(produced, r.evaluateRule(binding, facts, probeID, st)...)
	}

	if len(produced) > 0 && r.alerts != nil {
		r.alerts.ProcessAll(r.ctx, produced, st)
	}

	if saveErr := r.saveIfLockStillCurrent(probeID, myLockTime, st); saveErr != nil {
		r.logger.Error("save probe state failed", slog.String("probeId", probeID), slog.String("error", saveErr.Error()))
	}

	r.recordRun(probeID, state.RunSuccess, time.Since(start), "")
}

// collect runs Probe.Collect on its own goroutine so a probe that ignores
// ctx cancellation cannot block the run past its deadline; the stray
// goroutine is abandoned, not killed. inFlight reports whether Collect
// was still running when collect returned; in that case a watcher
// goroutine releases the run's lock once Collect eventually completes,
// unless the watchdog already force-released it.
func (r *Registry) collect(ctx context.Context, probeID string, myLockTime time.Time, instance probe.Probe, st state.ProbeState) (facts fact.Bag, err error, inFlight bool) {
	type result struct {
		facts fact.Bag
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		facts, err := instance.Collect(ctx, st)
		ch <- result{facts: facts, err: err}
	}()
	select {
	case res := <-ch:
		return res.facts, res.err, false
	case <-ctx.Done():
		go func() {
			<-ch
			r.releaseLockIfCurrent(probeID, myLockTime)
		}()
		return nil, ctx.Err(), true
	}
}

func (r *Registry) evaluateRule(binding ruleBinding, facts fact.Bag, probeID string, st state.ProbeState) (out []alert.Alert) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("rule panicked, skipped", slog.String("ruleId", binding.id), slog.Any("panic", p))
			out = nil
		}
	}()
	slot := st.RuleSlot(binding.id)
	ruleCtx := rule.Context{ProbeID: probeID, RuleID: binding.id, Slot: slot, Timestamp: time.Now()}
	return binding.rule.Evaluate(facts, ruleCtx)
}

func (r *Registry) recordRun(probeID string, status state.RunStatus, elapsed time.Duration, errMsg string) {
	if err := r.store.RecordRun(r.ctx, probeID, status, elapsed.Milliseconds(), errMsg); err != nil {
		r.logger.Error("record run failed", slog.String("probeId", probeID), slog.String("error", err.Error()))
	}
}

// acquireLock implements the single-flight gate: if a lock is held and
// younger than 2x the probe's timeout, the tick is skipped outright; if
// older, the watchdog fires and the stale lock is force-released before
// this call re-acquires it for the current run.
func (r *Registry) acquireLock(probeID string, timeout time.Duration) (acquired, watchdogFired bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	held, ok := r.activeLocks[probeID]
	if ok {
		if time.Since(held) <= 2*timeout {
			return false, false
		}
		delete(r.activeLocks, probeID)
		watchdogFired = true
	}
	r.activeLocks[probeID] = time.Now()
	return true, watchdogFired
}

func (r *Registry) lockTimeOf(probeID string) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeLocks[probeID]
}

func (r *Registry) releaseLockIfCurrent(probeID string, myLockTime time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.activeLocks[probeID]; ok && current.Equal(myLockTime) {
		delete(r.activeLocks, probeID)
	}
}

// saveIfLockStillCurrent skips the state save when the lock it originally
// acquired has since been force-released and re-acquired by a newer run:
// writing state.ProbeState at that point would clobber the newer run's
// already-saved progress.
func (r *Registry) saveIfLockStillCurrent(probeID string, myLockTime time.Time, st state.ProbeState) error {
	r.mu.Lock()
	current, held := r.activeLocks[probeID]
	stillMine := held && current.Equal(myLockTime)
	r.mu.Unlock()
	if !stillMine {
		r.logger.Warn("stale run completed after watchdog release, skipping state save", slog.String("probeId", probeID))
		return nil
	}
	return r.store.SaveProbeState(r.ctx, probeID, st)
}

func (r *Registry) fireWatchdog(probeID string) {
	r.logger.Error("watchdog fired: force-releasing stuck lock", slog.String("probeId", probeID))
	if r.alerts == nil {
		return
	}
	a := alert.Alert{
		ID:        idutil.StuckID(probeID),
		ProbeID:   probeID,
		RuleID:    "system",
		Severity:  alert.Critical,
		Title:     "Probe Stuck",
		Message:   "probe " + probeID + " exceeded 2x its run timeout; the run was abandoned",
		Timestamp: time.Now(),
	}
	r.alerts.Process(r.ctx, a, state.NewProbeState())
}

// Enable re-arms probeId's timer using its last-scheduled descriptor.
// Idempotent.
func (r *Registry) Enable(probeID string) error {
	r.mu.Lock()
	job, ok := r.jobs[probeID]
	if ok && job.enabled {
		r.mu.Unlock()
		return nil
	}
	if ok {
		job.enabled = true
		job.stop = make(chan struct{})
	}
	r.mu.Unlock()
	if !ok {
		return &NotFoundError{ProbeID: probeID}
	}
	r.wg.Add(1)
	go r.runTicker(job)
	return nil
}

// Disable cancels probeId's timer without forgetting its job record.
// Idempotent.
func (r *Registry) Disable(probeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[probeID]
	if !ok {
		return &NotFoundError{ProbeID: probeID}
	}
	if !job.enabled {
		return nil
	}
	job.enabled = false
	close(job.stop)
	return nil
}

// Mute writes muted_until into the probe's persisted state namespace so
// the alert pipeline's mute check (which reads state, not the scheduler)
// observes it on the probe's next run.
func (r *Registry) Mute(ctx context.Context, probeID string, minutes int) error {
	if minutes <= 0 {
		return &InvalidArgumentError{Message: "minutes must be > 0"}
	}
	if !r.knows(probeID) {
		return &NotFoundError{ProbeID: probeID}
	}
	st, err := r.store.LoadProbeState(ctx, probeID)
	if err != nil {
		return err
	}
	st.Probe["muted_until"] = float64(time.Now().Add(time.Duration(minutes) * time.Minute).UnixMilli())
	return r.store.SaveProbeState(ctx, probeID, st)
}

// Unmute deletes muted_until from the probe's persisted state namespace.
func (r *Registry) Unmute(ctx context.Context, probeID string) error {
	if !r.knows(probeID) {
		return &NotFoundError{ProbeID: probeID}
	}
	st, err := r.store.LoadProbeState(ctx, probeID)
	if err != nil {
		return err
	}
	delete(st.Probe, "muted_until")
	return r.store.SaveProbeState(ctx, probeID, st)
}

func (r *Registry) knows(probeID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.jobs[probeID]
	return ok
}

// Running reports the ids of probes currently armed with a live timer.
func (r *Registry) Running() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.jobs))
	for id, job := range r.jobs {
		if job.enabled {
			out = append(out, id)
		}
	}
	return out
}

// Stop cancels every timer and clears the lock table. In-flight runs
// observe cancellation at their next suspension point; there is no hard
// kill, matching the documented best-effort completion guarantee.
func (r *Registry) Stop() {
	r.cancel()
	r.mu.Lock()
	for _, job := range r.jobs {
		if job.enabled {
			close(job.stop)
			job.enabled = false
		}
	}
	r.activeLocks = map[string]time.Time{}
	r.mu.Unlock()
	r.wg.Wait()
}

type NotFoundError struct {
	ProbeID string
}

func (e *NotFoundError) Error() string { return "probe not found: " + e.ProbeID }

type InvalidArgumentError struct {
	Message string
}

func (e *InvalidArgumentError) Error() string { return e.Message }
