package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/geoimporter/pkg/models"
	"github.com/dukex/geoimporter/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
)

// ResultBackend records the state of every task. It is satisfied by persistence.TaskResultRepository.
type ResultBackend interface {
	SaveResult(ctx context.Context, result *models.TaskResult) error
}

// Observer receives task outcomes, typically to export metrics.
type Observer interface {
	ObserveTask(task string, state models.TaskState, duration time.Duration)
	ObserveChordsPending(count int)
}

// Options configures a Queue. Nil collaborators get in-process defaults.
type Options struct {
	Results  ResultBackend
	Chords   ChordStore
	Limiter  Limiter
	Tracer   trace.Tracer
	Observer Observer
	Logger   *slog.Logger
	// WorkerID is recorded on every task span when set.
	WorkerID string
}

// Queue dispatches and consumes task messages.
type Queue struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	registry   *Registry
	results    ResultBackend
	chords     ChordStore
	limiter    Limiter
	tracer     trace.Tracer
	observer   Observer
	logger     *slog.Logger
	workerID   string
	now        func() time.Time
}

func NewQueue(pub message.Publisher, sub message.Subscriber, registry *Registry, opts Options) *Queue {
	q := &Queue{
		publisher:  pub,
		subscriber: sub,
		registry:   registry,
		results:    opts.Results,
		chords:     opts.Chords,
		limiter:    opts.Limiter,
		tracer:     opts.Tracer,
		observer:   opts.Observer,
		logger:     opts.Logger,
		workerID:   opts.WorkerID,
		now:        func() time.Time { return time.Now().UTC() },
	}

	if q.chords == nil {
		q.chords = NewMemoryChordStore()
	}

	if q.limiter == nil {
		q.limiter = NewLocalLimiter()
	}

	if q.tracer == nil {
		q.tracer = otelhelper.NoopTracer()
	}

	if q.logger == nil {
		q.logger = slog.Default()
	}

	q.logger = q.logger.With("module", "taskqueue")

	return q
}

// Dispatch publishes sig and records it as PENDING. The task running in ctx becomes its parent.
func (q *Queue) Dispatch(ctx context.Context, sig Signature) (string, error) {
	return q.dispatch(ctx, sig, "")
}

func (q *Queue) dispatch(ctx context.Context, sig Signature, chordID string) (string, error) {
	msg := &Message{
		ID:        watermill.NewUUID(),
		Name:      sig.Name,
		ParentID:  TaskIDFromContext(ctx),
		Args:      sig.Args,
		Kwargs:    sig.Kwargs,
		ChordID:   chordID,
		LinkError: sig.LinkError,
		Created:   q.now(),
	}

	q.record(ctx, msg, models.TaskStatePending, "")

	err := q.publish(msg)
	if err != nil {
		return "", err
	}

	q.logger.DebugContext(ctx, "Task dispatched", "task", msg.Name, "task_id", msg.ID, "execution_id", msg.ExecutionID())

	return msg.ID, nil
}

// DispatchChord initialises the join counter and then publishes every header task.
func (q *Queue) DispatchChord(ctx context.Context, chord Chord) error {
	if len(chord.Header) == 0 {
		_, err := q.Dispatch(ctx, chord.Body)

		return err
	}

	chordID := watermill.NewUUID()

	err := q.chords.Init(ctx, chordID, len(chord.Header), chord.Body)
	if err != nil {
		return err
	}

	q.observeChords(ctx)

	for _, sig := range chord.Header {
		_, err := q.dispatch(ctx, sig, chordID)
		if err != nil {
			return fmt.Errorf("failed to dispatch chord member %s: %w", sig.Name, err)
		}
	}

	return nil
}

func (q *Queue) publish(msg *Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal task %s: %w", msg.Name, err)
	}

	wm := message.NewMessage(watermill.NewUUID(), payload)
	wm.Metadata.Set(PartitionKeyMetadataKey, msg.ExecutionID())
	wm.Metadata.Set(TaskNameMetadataKey, msg.Name)
	wm.Metadata.Set(TaskIDMetadataKey, msg.ID)

	err = q.publisher.Publish(Topic, wm)
	if err != nil {
		return fmt.Errorf("failed to publish task %s: %w", msg.Name, err)
	}

	return nil
}

// Subscribe starts consuming the task topic. Messages are processed one at a time until ctx is done.
func (q *Queue) Subscribe(ctx context.Context) error {
	messages, err := q.subscriber.Subscribe(ctx, Topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", Topic, err)
	}

	q.logger.InfoContext(ctx, "Consuming tasks", "topic", Topic, "tasks", len(q.registry.Names()))

	go func() {
		for wm := range messages {
			q.handle(ctx, wm)
			wm.Ack()
		}
	}()

	return nil
}

func (q *Queue) handle(ctx context.Context, wm *message.Message) {
	var msg Message

	err := json.Unmarshal(wm.Payload, &msg)
	if err != nil {
		q.logger.ErrorContext(ctx, "Failed to unmarshal task message", "error", err, "message_id", wm.UUID)

		return
	}

	logger := q.logger.With("task", msg.Name, "task_id", msg.ID, "execution_id", msg.ExecutionID())

	spec, ok := q.registry.Get(msg.Name)
	if !ok {
		logger.ErrorContext(ctx, "Received unregistered task")
		q.record(ctx, &msg, models.TaskStateFailure, "task not registered: "+msg.Name)
		q.completeChord(ctx, &msg, true)

		return
	}

	err = q.limiter.Wait(ctx, spec.Name, spec.RateLimit)
	if err != nil {
		logger.WarnContext(ctx, "Rate limiter interrupted", "error", err)

		return
	}

	q.record(ctx, &msg, models.TaskStateStarted, "")

	runCtx, hooks := withAfterSuccess(ctx)

	started := time.Now()
	err = q.run(runCtx, spec, &msg)
	duration := time.Since(started)

	switch {
	case err == nil:
		q.record(ctx, &msg, models.TaskStateSuccess, "")
		q.observe(spec.Name, models.TaskStateSuccess, duration)
		q.completeChord(ctx, &msg, false)

		if hookErr := hooks.run(WithTaskID(ctx, msg.ID)); hookErr != nil {
			logger.ErrorContext(ctx, "After success hook failed", "error", hookErr)
		}

	case IsTransient(err) && msg.Retries < spec.MaxRetries:
		logger.WarnContext(ctx, "Task failed, retrying", "error", err, "retries", msg.Retries+1)
		q.record(ctx, &msg, models.TaskStateRetry, err.Error())
		q.observe(spec.Name, models.TaskStateRetry, duration)

		msg.Retries++

		if pubErr := q.publish(&msg); pubErr != nil {
			logger.ErrorContext(ctx, "Failed to republish task", "error", pubErr)
			q.fail(ctx, spec, &msg, errors.Join(err, pubErr))
		}

	default:
		logger.ErrorContext(ctx, "Task failed", "error", err)
		q.observe(spec.Name, models.TaskStateFailure, duration)
		q.fail(ctx, spec, &msg, err)
	}
}

func (q *Queue) run(ctx context.Context, spec Spec, msg *Message) (err error) {
	ctx = WithTaskID(ctx, msg.ID)

	attrs := []attribute.KeyValue{
		attribute.String(otelhelper.TaskNameKey, spec.Name),
		attribute.String(otelhelper.TaskIDKey, msg.ID),
		attribute.String(otelhelper.ExecutionIDKey, msg.ExecutionID()),
		attribute.Int(otelhelper.RetriesKey, msg.Retries),
	}
	if q.workerID != "" {
		attrs = append(attrs, attribute.String(otelhelper.WorkerIDKey, q.workerID))
	}

	ctx, span := otelhelper.StartSpan(ctx, q.tracer, "task."+spec.Name, attrs...)
	defer span.End()

	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("task %s panicked: %v", spec.Name, recovered)
			q.logger.ErrorContext(ctx, "Task panicked", "task", spec.Name, "stack", string(debug.Stack()))
		}

		if err != nil {
			otelhelper.SetError(span, err, attribute.String(otelhelper.TaskNameKey, spec.Name))
		}
	}()

	return spec.Run(ctx, msg)
}

// fail records the final failure, runs the failure hook, then the error callback and the chord bookkeeping.
func (q *Queue) fail(ctx context.Context, spec Spec, msg *Message, err error) {
	q.record(ctx, msg, models.TaskStateFailure, err.Error())

	taskCtx := WithTaskID(ctx, msg.ID)

	if spec.OnFailure != nil {
		q.safely(taskCtx, msg, func() { spec.OnFailure(taskCtx, msg, err) })
	}

	if msg.LinkError != nil {
		errback := Signature{Name: msg.LinkError.Name, Args: msg.Args, Kwargs: msg.LinkError.Kwargs}
		if len(msg.LinkError.Args) > 0 {
			errback.Args = msg.LinkError.Args
		}

		if _, dispatchErr := q.Dispatch(taskCtx, errback); dispatchErr != nil {
			q.logger.ErrorContext(ctx, "Failed to dispatch error callback", "task", msg.Name, "callback", errback.Name, "error", dispatchErr)
		}
	}

	q.completeChord(taskCtx, msg, true)
}

func (q *Queue) safely(ctx context.Context, msg *Message, fn func()) {
	defer func() {
		if recovered := recover(); recovered != nil {
			q.logger.ErrorContext(ctx, "Failure hook panicked", "task", msg.Name, "panic", recovered)
		}
	}()

	fn()
}

func (q *Queue) completeChord(ctx context.Context, msg *Message, failed bool) {
	if msg.ChordID == "" {
		return
	}

	body, err := q.chords.Complete(ctx, msg.ChordID, failed)
	if err != nil {
		q.logger.ErrorContext(ctx, "Failed to complete chord member", "chord_id", msg.ChordID, "task", msg.Name, "error", err)

		return
	}

	q.observeChords(ctx)

	if body == nil {
		return
	}

	_, err = q.Dispatch(WithTaskID(ctx, msg.ID), *body)
	if err != nil {
		q.logger.ErrorContext(ctx, "Failed to dispatch chord body", "chord_id", msg.ChordID, "task", body.Name, "error", err)
	}
}

func (q *Queue) record(ctx context.Context, msg *Message, state models.TaskState, errText string) {
	if q.results == nil {
		return
	}

	result := &models.TaskResult{
		TaskID:      msg.ID,
		TaskName:    msg.Name,
		ParentID:    msg.ParentID,
		ExecutionID: msg.ExecutionID(),
		Args:        msg.Args,
		Kwargs:      msg.Kwargs,
		Status:      state,
		Error:       errText,
		Retries:     msg.Retries,
		Created:     msg.Created,
	}

	if result.Created.IsZero() {
		result.Created = q.now()
	}

	if state.IsDone() {
		done := q.now()
		result.DoneAt = &done
	}

	err := q.results.SaveResult(ctx, result)
	if err != nil {
		q.logger.ErrorContext(ctx, "Failed to record task result", "task", msg.Name, "task_id", msg.ID, "state", state, "error", err)
	}
}

func (q *Queue) observe(task string, state models.TaskState, duration time.Duration) {
	if q.observer != nil {
		q.observer.ObserveTask(task, state, duration)
	}
}

func (q *Queue) observeChords(ctx context.Context) {
	if q.observer == nil {
		return
	}

	pending, err := q.chords.Pending(ctx)
	if err == nil {
		q.observer.ObserveChordsPending(pending)
	}
}

// Close closes the publisher and the subscriber.
func (q *Queue) Close() error {
	return multierr.Combine(q.publisher.Close(), q.subscriber.Close())
}
