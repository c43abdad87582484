package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/seantiz/gradbridge/internal/foreign"
	"github.com/seantiz/gradbridge/internal/model"
	"github.com/seantiz/gradbridge/internal/registry"
	"github.com/seantiz/gradbridge/internal/store"
)

// Runtime is the interpreter surface the engine drives: reference counting
// for the contexts it holds and dispatch for runners and helpers.
type Runtime interface {
	foreign.RefCounter
	foreign.Invoker
}

// Function describes one autograd function of a model.
type Function struct {
	Name string
	// Class is the autograd function class exposing apply, forward and
	// backward.
	Class foreign.Object
	// ShapeInference and InputAlias are optional helpers; foreign.Nil skips
	// them.
	ShapeInference foreign.Object
	InputAlias     foreign.Object
}

// ModelDefinition lists the autograd functions a model needs registered.
type ModelDefinition struct {
	Name      string
	Functions []Function
}

// Engine runs autograd nodes against a registry and journals its lifecycle.
type Engine struct {
	registry   *registry.Registry
	rt         Runtime
	store      store.Store
	logger     *slog.Logger
	broker     *EventBroker
	maxWorkers int

	mu      sync.Mutex
	session *model.Session
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxWorkers bounds how many nodes ForwardBatch runs at once.
func WithMaxWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxWorkers = n
		}
	}
}

// NewEngine creates an engine over reg. A nil logger discards output.
func NewEngine(reg *registry.Registry, rt Runtime, s store.Store, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	e := &Engine{
		registry:   reg,
		rt:         rt,
		store:      s,
		logger:     logger,
		broker:     NewEventBroker(),
		maxWorkers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Broker returns the engine's event broker for stream subscriptions.
func (e *Engine) Broker() *EventBroker {
	return e.broker
}

// Registry returns the registry the engine drives.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Session returns a copy of the loaded model session, or nil.
func (e *Engine) Session() *model.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	s := *e.session
	return &s
}

// LoadModel registers every function of def and opens a session for it.
// If a registration fails, the model-scoped pools are torn down again.
func (e *Engine) LoadModel(ctx context.Context, def ModelDefinition) (*model.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil {
		return nil, fmt.Errorf("load model %q: %w", def.Name, ErrModelLoaded)
	}

	from := e.registry.State()
	names := make([]string, 0, len(def.Functions))
	for _, fn := range def.Functions {
		if err := e.registerFunction(fn); err != nil {
			e.registry.UnregisterModelSpecificFunctions()
			return nil, fmt.Errorf("load model %q: %w", def.Name, err)
		}
		names = append(names, fn.Name)
	}

	sess := &model.Session{
		ID:        model.NewID(),
		Name:      def.Name,
		Status:    model.SessionLoaded,
		Functions: names,
		LoadedAt:  time.Now().UTC(),
	}
	if err := e.store.CreateSession(ctx, sess); err != nil {
		e.registry.UnregisterModelSpecificFunctions()
		return nil, fmt.Errorf("load model %q: %w", def.Name, err)
	}
	e.session = sess
	modelsLoaded.Set(1)

	ev := model.LifecycleEvent{
		ID:        model.NewID(),
		Kind:      model.EventModelLoaded,
		SessionID: sess.ID,
		FromState: from.String(),
		ToState:   e.registry.State().String(),
		CreatedAt: sess.LoadedAt,
	}
	e.journal(ctx, ev)

	e.logger.Info("engine: model loaded", "session_id", sess.ID, "model", def.Name, "functions", len(names))
	out := *sess
	return &out, nil
}

func (e *Engine) registerFunction(fn Function) error {
	if err := e.registry.RegisterAutogradFunction(fn.Name, fn.Class); err != nil {
		return err
	}
	if fn.ShapeInference != foreign.Nil {
		e.registry.RegisterShapeInferenceFunction(fn.Name, fn.ShapeInference)
	}
	if fn.InputAlias != foreign.Nil {
		e.registry.RegisterInputAliasFunction(fn.Name, fn.InputAlias)
	}
	return nil
}

// UnloadModel tears down the model-scoped registry state and closes the
// session. Outstanding forward results lose their contexts; callers still
// release them.
func (e *Engine) UnloadModel(ctx context.Context) (*model.LifecycleEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil, ErrNoModel
	}
	return e.unloadLocked(ctx)
}

// unloadLocked unloads the current session. Callers hold e.mu.
func (e *Engine) unloadLocked(ctx context.Context) (*model.LifecycleEvent, error) {
	sess := e.session
	report := e.registry.UnregisterModelSpecificFunctions()
	e.session = nil
	modelsLoaded.Set(0)

	ev := eventFromReport(model.EventModelUnloaded, sess.ID, report)
	err := e.store.MarkSessionUnloaded(ctx, sess.ID, ev.CreatedAt)
	if err != nil {
		err = fmt.Errorf("unload model %q: %w", sess.Name, err)
	}
	e.journal(ctx, ev)
	e.broker.Close(sess.ID)

	e.logger.Info("engine: model unloaded",
		"session_id", sess.ID,
		"released", report.Released,
		"contexts_dropped", report.ContextsDropped,
	)
	return &ev, err
}

// Shutdown unloads any loaded model and then tears down the global pools
// and runners, leaving the registry fully torn down. It must run before the
// interpreter finalizes.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	if e.session != nil {
		if _, err := e.unloadLocked(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	global, _ := e.registry.UnregisterFunctions()
	if !global.Noop() {
		e.journal(ctx, eventFromReport(model.EventGlobalTeardown, "", global))
	}
	e.logger.Info("engine: shut down", "registry_state", e.registry.State().String())
	return errors.Join(errs...)
}

// journal records ev and publishes it to the session's subscribers. Journal
// failures are logged; teardown has already happened and cannot be undone.
func (e *Engine) journal(ctx context.Context, ev model.LifecycleEvent) {
	if err := e.store.RecordEvent(ctx, &ev); err != nil {
		e.logger.Error("engine: failed to journal event", "kind", ev.Kind, "error", err)
	}
	if ev.SessionID != "" {
		e.broker.Publish(ev.SessionID, ev)
	}
}

func eventFromReport(kind, sessionID string, r registry.TeardownReport) model.LifecycleEvent {
	return model.LifecycleEvent{
		ID:              model.NewID(),
		Kind:            kind,
		SessionID:       sessionID,
		Phase:           string(r.Phase),
		FromState:       r.From.String(),
		ToState:         r.To.String(),
		Released:        r.Released,
		ContextsDropped: r.ContextsDropped,
		CreatedAt:       time.Now().UTC(),
	}
}
