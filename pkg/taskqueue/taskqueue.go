// Package taskqueue runs named asynchronous tasks over a watermill publisher/subscriber pair.
//
// Tasks are registered by name, dispatched as JSON messages on a single topic and executed by
// any worker consuming that topic. A chord runs a group of tasks and dispatches a callback task
// once every member has succeeded.
package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dukex/geoimporter/pkg/models"
	"github.com/google/uuid"
)

const (
	// Topic carries every task message.
	Topic = "geoimporter.tasks"

	TaskNameMetadataKey = "task_name"
	TaskIDMetadataKey   = "task_id"
	// PartitionKeyMetadataKey carries the execution id; the Kafka marshaler partitions on it.
	PartitionKeyMetadataKey = "key"
)

// Signature is a task invocation that has not been dispatched yet.
type Signature struct {
	Name      string         `json:"name"`
	Args      []string       `json:"args"`
	Kwargs    map[string]any `json:"kwargs,omitempty"`
	LinkError *Signature     `json:"link_error,omitempty"`
}

// NewSignature builds a signature from positional arguments.
func NewSignature(name string, args ...string) Signature {
	return Signature{Name: name, Args: args}
}

// WithKwargs returns a copy of the signature carrying kwargs.
func (s Signature) WithKwargs(kwargs map[string]any) Signature {
	s.Kwargs = kwargs

	return s
}

// OnError returns a copy of the signature that dispatches errback with the failed arguments on final failure.
func (s Signature) OnError(errback Signature) Signature {
	s.LinkError = &errback

	return s
}

// Chord runs Header in parallel and dispatches Body once all of them succeeded.
type Chord struct {
	Header []Signature
	Body   Signature
}

// Message is the wire envelope of a dispatched task.
type Message struct {
	ID        string         `json:"id"`
	Name      string         `json:"task"`
	ParentID  string         `json:"parent_id,omitempty"`
	Args      []string       `json:"args"`
	Kwargs    map[string]any `json:"kwargs,omitempty"`
	Retries   int            `json:"retries"`
	ChordID   string         `json:"chord_id,omitempty"`
	LinkError *Signature     `json:"link_error,omitempty"`
	Created   time.Time      `json:"created"`
}

// Arg returns the positional argument at index, or "" when absent.
func (m *Message) Arg(index int) string {
	if index < 0 || index >= len(m.Args) {
		return ""
	}

	return m.Args[index]
}

// Kwarg returns the keyword argument as a string, or "".
func (m *Message) Kwarg(key string) string {
	return models.Params(m.Kwargs).String(key)
}

// ExecutionID returns the execution this message belongs to.
func (m *Message) ExecutionID() string {
	return ExecutionIDFromArgs(m.Args)
}

// Dispatcher submits tasks for asynchronous execution.
type Dispatcher interface {
	Dispatch(ctx context.Context, sig Signature) (string, error)
	DispatchChord(ctx context.Context, chord Chord) error
}

// TaskFunc executes one task message.
type TaskFunc func(ctx context.Context, msg *Message) error

// FailureFunc runs once a task failed for the last time.
type FailureFunc func(ctx context.Context, msg *Message, err error)

// Spec declares a task.
type Spec struct {
	Name       string
	Run        TaskFunc
	MaxRetries int
	// RateLimit is the number of executions admitted per second. Zero disables it.
	RateLimit float64
	// AlternateArg is the index of the positional argument naming the layer alternate, or -1.
	AlternateArg int
	OnFailure    FailureFunc
}

// Registry holds the task specs known to a worker.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]Spec
}

func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]Spec)}
}

// Register adds a task. Registering the same name twice is an error.
func (r *Registry) Register(spec Spec) error {
	if spec.Name == "" {
		return errors.New("task name cannot be empty")
	}

	if spec.Run == nil {
		return fmt.Errorf("task %s has no run function", spec.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.specs[spec.Name]; exists {
		return fmt.Errorf("task %s is already registered", spec.Name)
	}

	r.specs[spec.Name] = spec

	return nil
}

func (r *Registry) Get(name string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.specs[name]

	return spec, ok
}

func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)

	return ok
}

// Names returns the registered task names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as retryable by the queue.
func Transient(err error) error {
	if err == nil {
		return nil
	}

	return &transientError{err: err}
}

// IsTransient reports whether err was marked with Transient.
func IsTransient(err error) bool {
	var t *transientError

	return errors.As(err, &t)
}

// ExecutionIDFromArgs returns the first argument that parses as a UUID. Argument order
// differs between tasks, so the execution id is found by its format.
func ExecutionIDFromArgs(args []string) string {
	for _, arg := range args {
		if _, err := uuid.Parse(arg); err == nil {
			return arg
		}
	}

	return ""
}

type taskIDKey struct{}

// WithTaskID returns a context carrying the id of the task being executed.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, taskIDKey{}, taskID)
}

// TaskIDFromContext returns the id of the task being executed, or "".
func TaskIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(taskIDKey{}).(string)

	return id
}

type afterSuccessKey struct{}

type afterSuccessHooks struct {
	mu  sync.Mutex
	fns []func(context.Context) error
}

// AfterSuccess defers fn until the task running in ctx has been recorded as successful. It reports
// false when ctx carries no running task; the caller then runs fn itself.
func AfterSuccess(ctx context.Context, fn func(context.Context) error) bool {
	hooks, ok := ctx.Value(afterSuccessKey{}).(*afterSuccessHooks)
	if !ok {
		return false
	}

	hooks.mu.Lock()
	defer hooks.mu.Unlock()

	hooks.fns = append(hooks.fns, fn)

	return true
}

func withAfterSuccess(ctx context.Context) (context.Context, *afterSuccessHooks) {
	hooks := &afterSuccessHooks{}

	return context.WithValue(ctx, afterSuccessKey{}, hooks), hooks
}

func (h *afterSuccessHooks) run(ctx context.Context) error {
	h.mu.Lock()
	fns := h.fns
	h.fns = nil
	h.mu.Unlock()

	var errs []error
	for _, fn := range fns {
		errs = append(errs, fn(ctx))
	}

	return errors.Join(errs...)
}
