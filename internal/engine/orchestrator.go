package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentraops/sentra/internal/actions"
	"github.com/sentraops/sentra/internal/expressions"
	"github.com/sentraops/sentra/internal/logging"
	"github.com/sentraops/sentra/internal/store"
	"github.com/sentraops/sentra/internal/streaming"
	"github.com/sentraops/sentra/internal/trigger"
	"github.com/sentraops/sentra/pkg/schema"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultMaxSteps         = 500
	DefaultStepTimeout      = 300 * time.Second
	DefaultExecutionTimeout = 3600 * time.Second
	DefaultConcurrency      = 8
)

// Config holds orchestrator tuning knobs.
type Config struct {
	// MaxSteps is the ceiling on steps taken per execution. Loops through
	// the graph are legal; this bounds them.
	MaxSteps int
	// StepTimeout applies to steps without an explicit timeout_seconds.
	StepTimeout time.Duration
	// ExecutionTimeout is the wall-clock budget for executions without an
	// explicit execution_timeout_seconds.
	ExecutionTimeout time.Duration
	// Concurrency caps concurrently running executions.
	Concurrency int
	Logger      *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.MaxSteps <= 0 {
		c.MaxSteps = DefaultMaxSteps
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = DefaultStepTimeout
	}
	if c.ExecutionTimeout <= 0 {
		c.ExecutionTimeout = DefaultExecutionTimeout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Orchestrator drives playbook executions: it walks the step graph, resolves
// templates, dispatches actions, and records every state change through the
// store. One pool slot is held per running execution.
type Orchestrator struct {
	cfg      Config
	store    store.Store
	registry *actions.Registry
	resolver *expressions.Resolver
	matcher  *trigger.Matcher
	fsm      *ExecutionFSM
	pool     *ExecutionPool
	hub      *streaming.MemoryHub
	history  *historyTee
	logger   *slog.Logger

	mu       sync.Mutex
	controls map[string]*control
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(cfg Config, st store.Store, registry *actions.Registry, matcher *trigger.Matcher) *Orchestrator {
	cfg = cfg.withDefaults()
	hub := streaming.NewMemoryHub()
	history := &historyTee{store: st, hub: hub}
	return &Orchestrator{
		cfg:      cfg,
		store:    st,
		registry: registry,
		resolver: expressions.NewResolver(),
		matcher:  matcher,
		fsm:      NewExecutionFSM(history),
		pool:     NewExecutionPool(cfg.Concurrency),
		hub:      hub,
		history:  history,
		logger:   cfg.Logger,
		controls: make(map[string]*control),
	}
}

// Shutdown stops accepting new executions and waits for running ones.
func (o *Orchestrator) Shutdown() {
	o.pool.Shutdown()
}

// Wait blocks until all in-flight executions finish.
func (o *Orchestrator) Wait() {
	o.pool.Wait()
}

// StartExecution creates and launches an execution of the given playbook.
// version <= 0 selects the latest version. The returned execution is in the
// pending state; the run proceeds asynchronously on the worker pool.
func (o *Orchestrator) StartExecution(ctx context.Context, playbookID string, version int, source schema.TriggerSource, seed map[string]any) (*store.Execution, error) {
	var pb *store.Playbook
	var err error
	if version > 0 {
		pb, err = o.store.GetPlaybook(ctx, playbookID, version)
	} else {
		pb, err = o.store.GetLatestPlaybook(ctx, playbookID)
	}
	if err != nil {
		return nil, err
	}
	if pb.Status != schema.PlaybookActive {
		return nil, schema.NewErrorf(schema.ErrCodeConflict,
			"playbook %q is %s, only active playbooks execute", playbookID, pb.Status)
	}

	graph, err := BuildGraph(&pb.Definition)
	if err != nil {
		return nil, err
	}

	execution := &store.Execution{
		ID:              uuid.NewString(),
		PlaybookID:      pb.ID,
		PlaybookVersion: pb.Version,
		Status:          schema.ExecutionPending,
		TriggerSource:   source,
		Context:         seedContext(source, seed),
	}
	if err := o.store.CreateExecution(ctx, execution); err != nil {
		return nil, err
	}

	ctrl := newControl()
	o.mu.Lock()
	o.controls[execution.ID] = ctrl
	o.mu.Unlock()

	// The run outlives the caller's request context; only Cancel stops it.
	runCtx := context.WithoutCancel(ctx)
	if err := o.pool.Submit(runCtx, func(ctx context.Context) error {
		return o.run(ctx, ctrl, execution.ID, pb, graph)
	}); err != nil {
		o.removeControl(execution.ID)
		return nil, err
	}
	return execution, nil
}

// HandleEvent matches an incoming event against all active playbooks and
// starts an execution for each match. It returns the started executions;
// a playbook whose conditions error is skipped and logged, not fatal.
func (o *Orchestrator) HandleEvent(ctx context.Context, event schema.Event) ([]*store.Execution, error) {
	playbooks, err := o.store.ListActivePlaybooks(ctx)
	if err != nil {
		return nil, err
	}

	var started []*store.Execution
	for _, pb := range playbooks {
		ok, err := o.matcher.Matches(ctx, &pb.Definition, event)
		if err != nil {
			o.logger.WarnContext(ctx, "trigger evaluation failed",
				slog.String("playbook_id", pb.ID), slog.String("error", err.Error()))
			continue
		}
		if !ok {
			continue
		}
		source := sourceFromEvent(event)
		ex, err := o.StartExecution(ctx, pb.ID, pb.Version, source, event.Fields)
		if err != nil {
			o.logger.WarnContext(ctx, "start execution failed",
				slog.String("playbook_id", pb.ID), slog.String("error", err.Error()))
			continue
		}
		started = append(started, ex)
	}
	return started, nil
}

// Cancel requests cooperative cancellation of a running or paused execution.
func (o *Orchestrator) Cancel(ctx context.Context, executionID string) error {
	if ctrl := o.control(executionID); ctrl != nil {
		ctrl.cancel()
		return nil
	}
	return o.notControllable(ctx, executionID)
}

// Pause requests that the execution pause before its next step.
func (o *Orchestrator) Pause(ctx context.Context, executionID string) error {
	ctrl := o.control(executionID)
	if ctrl == nil {
		return o.notControllable(ctx, executionID)
	}
	if !ctrl.pause() {
		return schema.NewErrorf(schema.ErrCodeConflict, "execution %q is not pausable", executionID)
	}
	return nil
}

// Resume releases a paused execution.
func (o *Orchestrator) Resume(ctx context.Context, executionID string) error {
	ctrl := o.control(executionID)
	if ctrl == nil {
		return o.notControllable(ctx, executionID)
	}
	if !ctrl.resume() {
		return schema.NewErrorf(schema.ErrCodeConflict, "execution %q is not paused", executionID)
	}
	return nil
}

// Status returns the current persisted state of an execution.
func (o *Orchestrator) Status(ctx context.Context, executionID string) (*store.Execution, error) {
	return o.store.GetExecution(ctx, executionID)
}

// History returns the full event history of an execution in order.
func (o *Orchestrator) History(ctx context.Context, executionID string) ([]*store.HistoryEvent, error) {
	return o.store.ListHistory(ctx, executionID, 0)
}

// StepRecords returns the ordered step history of an execution.
func (o *Orchestrator) StepRecords(ctx context.Context, executionID string) ([]*store.StepRecord, error) {
	return o.store.ListStepRecords(ctx, executionID)
}

// Watch subscribes to live events for one execution. Delivery is best
// effort; ListHistory remains the authoritative record. The returned cancel
// must be called when done.
func (o *Orchestrator) Watch(ctx context.Context, executionID string) (<-chan streaming.Event, func(), error) {
	return o.hub.Subscribe(ctx, streaming.Filter{ExecutionID: executionID})
}

func (o *Orchestrator) notControllable(ctx context.Context, executionID string) error {
	ex, err := o.store.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	return schema.NewErrorf(schema.ErrCodeConflict,
		"execution %q is %s and no longer controllable", executionID, ex.Status)
}

func (o *Orchestrator) control(executionID string) *control {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.controls[executionID]
}

func (o *Orchestrator) removeControl(executionID string) {
	o.mu.Lock()
	delete(o.controls, executionID)
	o.mu.Unlock()
}

// --- run loop ---

func (o *Orchestrator) run(ctx context.Context, ctrl *control, executionID string, pb *store.Playbook, graph *Graph) error {
	defer o.removeControl(executionID)

	ctx = logging.WithIDs(ctx, executionID, pb.ID, "")
	logger := logging.LogWith(ctx, o.logger)

	if err := o.transition(ctx, executionID, schema.ExecutionPending, schema.ExecutionRunning, store.ExecutionUpdate{
		StartedAt: timePtr(time.Now().UTC()),
	}); err != nil {
		logger.Error("start transition failed", slog.String("error", err.Error()))
		return err
	}

	execTimeout := o.cfg.ExecutionTimeout
	if pb.Definition.ExecutionTimeoutSeconds > 0 {
		execTimeout = time.Duration(pb.Definition.ExecutionTimeoutSeconds) * time.Second
	}
	deadline := time.Now().Add(execTimeout)

	execCtx := copyContext(o.currentContext(ctx, executionID))
	current := graph.Entry()
	stepsTaken := 0
	status := schema.ExecutionRunning

	for current != nil {
		cpStatus, err := o.checkpoint(ctx, ctrl, executionID, &status)
		if err != nil {
			logger.Error("checkpoint failed", slog.String("error", err.Error()))
			return o.finish(ctx, executionID, status, schema.ExecutionFailed, err.Error(), execCtx)
		}
		if cpStatus == schema.ExecutionCancelled {
			logger.Info("execution cancelled")
			return o.finish(ctx, executionID, status, schema.ExecutionCancelled, "", execCtx)
		}

		stepsTaken++
		if stepsTaken > o.cfg.MaxSteps {
			err := schema.NewErrorf(schema.ErrCodeStepLimitExceeded,
				"step ceiling of %d reached", o.cfg.MaxSteps)
			logger.Error("execution failed", slog.String("error", err.Error()))
			return o.finish(ctx, executionID, status, schema.ExecutionFailed, err.Error(), execCtx)
		}
		if time.Now().After(deadline) {
			err := schema.NewErrorf(schema.ErrCodeExecutionTimeout,
				"execution exceeded %s wall-clock budget", execTimeout)
			logger.Error("execution timed out", slog.String("error", err.Error()))
			return o.finish(ctx, executionID, status, schema.ExecutionFailed, err.Error(), execCtx)
		}

		outcome := o.executeStep(ctx, ctrl, executionID, current, execCtx, stepsTaken, deadline)

		switch {
		case outcome.cancelled:
			logger.Info("execution cancelled", slog.String("step_id", current.ID))
			return o.finish(ctx, executionID, status, schema.ExecutionCancelled, "", execCtx)

		case outcome.fatal:
			logger.Error("execution failed", slog.String("step_id", current.ID), slog.String("error", outcome.err.Error()))
			return o.finish(ctx, executionID, status, schema.ExecutionFailed, outcome.err.Error(), execCtx)

		case outcome.status == schema.StepSuccess:
			mergeOutput(execCtx, current.ID, outcome.output)
			o.persistProgress(ctx, executionID, current.ID, execCtx)
			if current.OnSuccess == "" {
				logger.Info("execution completed", slog.Int("steps", stepsTaken))
				return o.finish(ctx, executionID, status, schema.ExecutionCompleted, "", execCtx)
			}
			current = graph.Step(current.OnSuccess)

		default: // step failure
			o.persistProgress(ctx, executionID, current.ID, execCtx)
			if current.OnFailure == "" {
				logger.Warn("step failed with no failure edge",
					slog.String("step_id", current.ID), slog.String("error", outcome.err.Error()))
				return o.finish(ctx, executionID, status, schema.ExecutionFailed, outcome.err.Error(), execCtx)
			}
			current = graph.Step(current.OnFailure)
		}
	}

	// Unreachable when the graph passed validation.
	err := schema.NewError(schema.ErrCodeValidation, "step graph walked off a dangling edge")
	return o.finish(ctx, executionID, status, schema.ExecutionFailed, err.Error(), execCtx)
}

// checkpoint handles cooperative pause and cancel between steps. It returns
// the status the run should proceed in, blocking while paused.
func (o *Orchestrator) checkpoint(ctx context.Context, ctrl *control, executionID string, status *schema.ExecutionStatus) (schema.ExecutionStatus, error) {
	for {
		switch ctrl.state() {
		case ctrlCancelled:
			return schema.ExecutionCancelled, nil

		case ctrlPaused:
			if *status != schema.ExecutionPaused {
				if err := o.transition(ctx, executionID, *status, schema.ExecutionPaused, store.ExecutionUpdate{}); err != nil {
					return *status, err
				}
				*status = schema.ExecutionPaused
			}
			select {
			case <-ctrl.resumeWait():
			case <-ctrl.cancelCh:
			case <-ctx.Done():
				return *status, ctx.Err()
			}

		default:
			if *status == schema.ExecutionPaused {
				if err := o.transition(ctx, executionID, schema.ExecutionPaused, schema.ExecutionRunning, store.ExecutionUpdate{}); err != nil {
					return *status, err
				}
				*status = schema.ExecutionRunning
			}
			return schema.ExecutionRunning, nil
		}
	}
}

// stepOutcome is the result of one step attempt.
type stepOutcome struct {
	status    schema.StepStatus
	output    map[string]any
	err       error
	fatal     bool // execution-level failure, bypasses on_failure
	cancelled bool
}

func (o *Orchestrator) executeStep(ctx context.Context, ctrl *control, executionID string, step *schema.StepDefinition, execCtx map[string]any, sequence int, deadline time.Time) stepOutcome {
	ctx = logging.WithStepID(ctx, step.ID)
	logger := logging.LogWith(ctx, o.logger)
	startedAt := time.Now().UTC()

	o.appendEvent(ctx, executionID, step.ID, schema.EventStepStarted, nil)

	params, err := o.resolver.ResolveParams(step.Parameters, execCtx)
	if err != nil {
		logger.Warn("template resolution failed", slog.String("error", err.Error()))
		o.recordStep(ctx, executionID, step.ID, sequence, schema.StepFailure, nil, nil, err, startedAt)
		return stepOutcome{status: schema.StepFailure, err: err}
	}

	if step.Action == schema.ActionWait {
		return o.executeWait(ctx, ctrl, executionID, step, params, sequence, deadline, startedAt)
	}

	action, err := o.registry.Get(step.Action)
	if err != nil {
		o.recordStep(ctx, executionID, step.ID, sequence, schema.StepFailure, params, nil, err, startedAt)
		return stepOutcome{status: schema.StepFailure, err: err}
	}

	stepTimeout := o.cfg.StepTimeout
	if step.TimeoutSeconds > 0 {
		stepTimeout = time.Duration(step.TimeoutSeconds) * time.Second
	}
	stepCtx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()

	type actionResult struct {
		res *actions.Result
		err error
	}
	resCh := make(chan actionResult, 1)
	go func() {
		res, err := action.Execute(stepCtx, actions.Input{Params: params, Context: copyContext(execCtx)})
		resCh <- actionResult{res, err}
	}()

	select {
	case r := <-resCh:
		if r.err != nil {
			logger.Warn("step failed", slog.String("error", r.err.Error()))
			o.recordStep(ctx, executionID, step.ID, sequence, schema.StepFailure, params, nil, r.err, startedAt)
			return stepOutcome{status: schema.StepFailure, err: r.err}
		}
		var output map[string]any
		if r.res != nil {
			output = r.res.Output
		}
		logger.Info("step succeeded", slog.Int64("duration_ms", time.Since(startedAt).Milliseconds()))
		o.recordStep(ctx, executionID, step.ID, sequence, schema.StepSuccess, params, output, nil, startedAt)
		return stepOutcome{status: schema.StepSuccess, output: output}

	// Cancellation is deliberately absent here: an in-flight action is
	// allowed to finish (or hit its own timeout) and have its real outcome
	// recorded; the next checkpoint honors the cancel.
	case <-stepCtx.Done():
		timeoutErr := schema.NewErrorf(schema.ErrCodeStepTimeout,
			"step exceeded %s timeout", stepTimeout).WithStep(step.ID)
		logger.Warn("step timed out", slog.Duration("timeout", stepTimeout))
		o.recordStep(ctx, executionID, step.ID, sequence, schema.StepFailure, params, nil, timeoutErr, startedAt)
		return stepOutcome{status: schema.StepFailure, err: timeoutErr}
	}
}

// executeWait handles the wait action inline so cancellation and the
// execution deadline can interrupt the delay.
func (o *Orchestrator) executeWait(ctx context.Context, ctrl *control, executionID string, step *schema.StepDefinition, params map[string]any, sequence int, deadline time.Time, startedAt time.Time) stepOutcome {
	d, err := actions.WaitDuration(params)
	if err != nil {
		o.recordStep(ctx, executionID, step.ID, sequence, schema.StepFailure, params, nil, err, startedAt)
		return stepOutcome{status: schema.StepFailure, err: err}
	}

	o.appendEvent(ctx, executionID, step.ID, schema.EventWaitStarted, map[string]any{"seconds": d.Seconds()})

	timer := time.NewTimer(d)
	defer timer.Stop()
	deadlineTimer := time.NewTimer(time.Until(deadline))
	defer deadlineTimer.Stop()

	select {
	case <-timer.C:
		output := map[string]any{"waited_seconds": d.Seconds()}
		o.appendEvent(ctx, executionID, step.ID, schema.EventWaitCompleted, nil)
		o.recordStep(ctx, executionID, step.ID, sequence, schema.StepSuccess, params, output, nil, startedAt)
		return stepOutcome{status: schema.StepSuccess, output: output}

	case <-deadlineTimer.C:
		timeoutErr := schema.NewErrorf(schema.ErrCodeExecutionTimeout,
			"execution wall-clock budget elapsed during wait").WithStep(step.ID)
		o.recordStep(ctx, executionID, step.ID, sequence, schema.StepFailure, params, nil, timeoutErr, startedAt)
		return stepOutcome{fatal: true, err: timeoutErr}

	case <-ctrl.cancelCh:
		cancelErr := schema.NewError(schema.ErrCodeCancelled, "execution cancelled").WithStep(step.ID)
		o.recordStep(ctx, executionID, step.ID, sequence, schema.StepSkipped, params, nil, cancelErr, startedAt)
		o.appendEvent(ctx, executionID, step.ID, schema.EventStepSkipped, nil)
		return stepOutcome{cancelled: true}

	case <-ctx.Done():
		o.recordStep(ctx, executionID, step.ID, sequence, schema.StepSkipped, params, nil, ctx.Err(), startedAt)
		return stepOutcome{cancelled: true}
	}
}

// --- persistence helpers ---

func (o *Orchestrator) transition(ctx context.Context, executionID string, from, to schema.ExecutionStatus, update store.ExecutionUpdate) error {
	if err := o.fsm.Transition(ctx, executionID, from, to); err != nil {
		return err
	}
	update.Status = &to
	return o.store.UpdateExecution(ctx, executionID, update)
}

func (o *Orchestrator) finish(ctx context.Context, executionID string, from, to schema.ExecutionStatus, errMsg string, execCtx map[string]any) error {
	update := store.ExecutionUpdate{
		Context:       execCtx,
		CurrentStepID: strPtr(""),
		CompletedAt:   timePtr(time.Now().UTC()),
	}
	if errMsg != "" {
		update.ErrorMessage = &errMsg
	}
	if err := o.transition(ctx, executionID, from, to, update); err != nil {
		o.logger.ErrorContext(ctx, "finish transition failed",
			slog.String("execution_id", executionID), slog.String("error", err.Error()))
		return err
	}
	return nil
}

func (o *Orchestrator) persistProgress(ctx context.Context, executionID, stepID string, execCtx map[string]any) {
	if err := o.store.UpdateExecution(ctx, executionID, store.ExecutionUpdate{
		Context:       execCtx,
		CurrentStepID: &stepID,
	}); err != nil {
		o.logger.WarnContext(ctx, "persist progress failed", slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) recordStep(ctx context.Context, executionID, stepID string, sequence int, status schema.StepStatus, input, output map[string]any, stepErr error, startedAt time.Time) {
	completed := time.Now().UTC()
	rec := &store.StepRecord{
		ExecutionID: executionID,
		StepID:      stepID,
		Sequence:    sequence,
		Status:      status,
		Input:       marshalOrNil(input),
		Output:      marshalOrNil(output),
		StartedAt:   startedAt,
		CompletedAt: &completed,
		DurationMs:  completed.Sub(startedAt).Milliseconds(),
	}
	if stepErr != nil {
		rec.Error = stepErr.Error()
	}
	if err := o.store.AppendStepRecord(ctx, rec); err != nil {
		o.logger.WarnContext(ctx, "append step record failed", slog.String("error", err.Error()))
	}

	switch status {
	case schema.StepSuccess:
		o.appendEvent(ctx, executionID, stepID, schema.EventStepSucceeded, output)
	case schema.StepFailure:
		payload := map[string]any{}
		if stepErr != nil {
			payload["error"] = stepErr.Error()
		}
		o.appendEvent(ctx, executionID, stepID, schema.EventStepFailed, payload)
	}
}

func (o *Orchestrator) appendEvent(ctx context.Context, executionID, stepID, eventType string, payload map[string]any) {
	event := &store.HistoryEvent{
		ExecutionID: executionID,
		StepID:      stepID,
		Type:        eventType,
		Payload:     marshalOrNil(payload),
	}
	if err := o.history.AppendHistory(ctx, event); err != nil {
		o.logger.WarnContext(ctx, "append history failed", slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) currentContext(ctx context.Context, executionID string) map[string]any {
	ex, err := o.store.GetExecution(ctx, executionID)
	if err != nil {
		o.logger.WarnContext(ctx, "load execution context failed", slog.String("error", err.Error()))
		return map[string]any{}
	}
	return ex.Context
}

// --- context helpers ---

// seedContext builds the initial execution context: trigger event fields
// merged flat, plus the trigger source under the reserved "trigger" key.
func seedContext(source schema.TriggerSource, seed map[string]any) map[string]any {
	out := make(map[string]any, len(seed)+3)
	for k, v := range seed {
		out[k] = v
	}
	trigger := map[string]any{"kind": string(source.Kind)}
	if source.AlertID != "" {
		trigger["alert_id"] = source.AlertID
		if _, ok := out["alert_id"]; !ok {
			out["alert_id"] = source.AlertID
		}
	}
	if source.IncidentID != "" {
		trigger["incident_id"] = source.IncidentID
		if _, ok := out["incident_id"]; !ok {
			out["incident_id"] = source.IncidentID
		}
	}
	out["trigger"] = trigger
	return out
}

func sourceFromEvent(event schema.Event) schema.TriggerSource {
	source := schema.TriggerSource{Kind: event.SourceKind}
	if v, ok := event.Fields["alert_id"].(string); ok {
		source.AlertID = v
	}
	if v, ok := event.Fields["incident_id"].(string); ok {
		source.IncidentID = v
	}
	return source
}

// mergeOutput merges a step's output into the execution context: keys land
// flat for template convenience and a copy is kept under steps.<id> so later
// steps can reach a specific producer even after overwrites.
func mergeOutput(execCtx map[string]any, stepID string, output map[string]any) {
	if len(output) == 0 {
		return
	}
	for k, v := range output {
		execCtx[k] = v
	}
	steps, ok := execCtx["steps"].(map[string]any)
	if !ok {
		steps = make(map[string]any)
		execCtx["steps"] = steps
	}
	steps[stepID] = copyContext(output)
}

func copyContext(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func marshalOrNil(m map[string]any) json.RawMessage {
	if len(m) == 0 {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return b
}

func timePtr(t time.Time) *time.Time { return &t }
func strPtr(s string) *string        { return &s }
