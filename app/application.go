// Copyright (c) Microsoft. All rights reserved.

package app

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/microsoft/agents-sdk/go/activity"
	"github.com/microsoft/agents-sdk/go/agents"
	"github.com/microsoft/agents-sdk/go/state"
	"github.com/microsoft/agents-sdk/go/storage"
)

// DispatchMode controls how many exclusive routes run for a turn.
type DispatchMode int

const (
	// FirstMatch runs the first matching exclusive route and every
	// matching non-exclusive route, wherever they rank.
	FirstMatch DispatchMode = iota
	// AllMatches runs every matching route.
	AllMatches
)

// Typing indicator timing used when the typing timer is enabled.
const (
	typingDelay  = 500 * time.Millisecond
	typingPeriod = 2 * time.Second
)

// TurnHook runs before or after routing. Returning false stops the
// remaining hooks and, for before-turn hooks, skips routing. State is still
// saved.
type TurnHook func(ctx context.Context, tc *agents.TurnContext, ts *state.TurnState) (bool, error)

// TurnErrorHandler is called when a turn fails. It may send a recovery
// message. The original error is still returned from the turn.
type TurnErrorHandler func(ctx context.Context, tc *agents.TurnContext, err error) error

// AgentApplication routes each turn to the handlers registered for it and
// manages turn state around them.
//
//	agent := app.New(app.WithStorage(store))
//	agent.OnConversationUpdate(app.MembersAdded, welcome)
//	agent.OnMessage("/reset", reset)
//	agent.OnActivity(activity.TypeMessage, echo)
type AgentApplication struct {
	storage                storage.Storage
	dispatchMode           DispatchMode
	removeRecipientMention bool
	startTypingTimer       bool
	serializeTurns         bool
	logger                 *slog.Logger

	mu         sync.Mutex
	sealed     bool
	routes     []Route
	ordered    []Route
	beforeTurn []TurnHook
	afterTurn  []TurnHook
	turnError  TurnErrorHandler
	turnLocks  *turnLocks
}

var _ agents.Agent = (*AgentApplication)(nil)

// Option configures an [AgentApplication] via [New].
type Option func(*AgentApplication)

// WithStorage persists user and conversation state in store. Without it,
// state lives for one turn only.
func WithStorage(store storage.Storage) Option {
	return func(a *AgentApplication) { a.storage = store }
}

// WithDispatchMode sets how many routes run per turn.
func WithDispatchMode(mode DispatchMode) Option {
	return func(a *AgentApplication) { a.dispatchMode = mode }
}

// WithRemoveRecipientMention strips the agent's own @mention from inbound
// message text before routing.
func WithRemoveRecipientMention(remove bool) Option {
	return func(a *AgentApplication) { a.removeRecipientMention = remove }
}

// WithStartTypingTimer sends typing indicators while a message turn runs.
func WithStartTypingTimer(start bool) Option {
	return func(a *AgentApplication) { a.startTypingTimer = start }
}

// WithSerializeTurns runs turns for the same conversation one at a time
// within this process. Storage ETags still guard against other processes.
func WithSerializeTurns(serialize bool) Option {
	return func(a *AgentApplication) { a.serializeTurns = serialize }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *AgentApplication) { a.logger = logger }
}

// New creates an application.
func New(opts ...Option) *AgentApplication {
	a := &AgentApplication{
		logger:    slog.Default(),
		turnLocks: newTurnLocks(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AddRoute registers a route.
func (a *AgentApplication) AddRoute(r Route) error {
	if r.Selector == nil || r.Handler == nil {
		return fmt.Errorf("%w: selector and handler are required", ErrInvalidRoute)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sealed {
		return ErrRoutesSealed
	}
	a.routes = append(a.routes, r)
	return nil
}

func (a *AgentApplication) add(b *RouteBuilder, h RouteHandler, opts []RouteOption) error {
	b.WithHandler(h)
	for _, opt := range opts {
		opt(b)
	}
	r, err := b.Build()
	if err != nil {
		return err
	}
	return a.AddRoute(r)
}

// OnActivity routes activities of type t to h.
func (a *AgentApplication) OnActivity(t activity.Type, h RouteHandler, opts ...RouteOption) error {
	b := NewRoute().WithSelector(ActivityType(t)).WithLabel(string(t))
	if t == activity.TypeInvoke {
		b.AsInvoke()
	}
	return a.add(b, h, opts)
}

// OnMessage routes messages whose text equals text, ignoring case.
func (a *AgentApplication) OnMessage(text string, h RouteHandler, opts ...RouteOption) error {
	return a.add(NewRoute().WithSelector(MessageText(text)).WithLabel("message:"+text), h, opts)
}

// OnMessageRegexp routes messages whose text matches re.
func (a *AgentApplication) OnMessageRegexp(re *regexp.Regexp, h RouteHandler, opts ...RouteOption) error {
	return a.add(NewRoute().WithSelector(MessageRegexp(re)).WithLabel("message:"+re.String()), h, opts)
}

// OnConversationUpdate routes conversationUpdate activities reporting event.
func (a *AgentApplication) OnConversationUpdate(event ConversationUpdateEvent, h RouteHandler, opts ...RouteOption) error {
	return a.add(NewRoute().WithSelector(ConversationUpdate(event)).WithLabel("conversationUpdate:"+string(event)), h, opts)
}

// OnMessageReaction routes messageReaction activities reporting event.
func (a *AgentApplication) OnMessageReaction(event MessageReactionEvent, h RouteHandler, opts ...RouteOption) error {
	return a.add(NewRoute().WithSelector(MessageReaction(event)).WithLabel("messageReaction:"+string(event)), h, opts)
}

// OnEvent routes event activities with the given name.
func (a *AgentApplication) OnEvent(name string, h RouteHandler, opts ...RouteOption) error {
	return a.add(NewRoute().WithSelector(EventName(name)).WithLabel("event:"+name), h, opts)
}

// OnInvoke routes invoke activities with the given name. The handler sets
// the invoke response by sending an invokeResponse activity.
func (a *AgentApplication) OnInvoke(name string, h RouteHandler, opts ...RouteOption) error {
	return a.add(NewRoute().WithSelector(InvokeName(name)).WithLabel("invoke:"+name).AsInvoke(), h, opts)
}

// OnBeforeTurn registers a hook that runs after state loads and before
// routing.
func (a *AgentApplication) OnBeforeTurn(h TurnHook) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sealed {
		return ErrRoutesSealed
	}
	a.beforeTurn = append(a.beforeTurn, h)
	return nil
}

// OnAfterTurn registers a hook that runs after routing and before state is
// saved.
func (a *AgentApplication) OnAfterTurn(h TurnHook) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sealed {
		return ErrRoutesSealed
	}
	a.afterTurn = append(a.afterTurn, h)
	return nil
}

// OnTurnError sets the handler for failed turns.
func (a *AgentApplication) OnTurnError(h TurnErrorHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.turnError = h
}

// Routes returns the routes in dispatch order.
func (a *AgentApplication) Routes() []Route {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sealed {
		return append([]Route(nil), a.ordered...)
	}
	return sortRoutes(a.routes)
}

// seal freezes registration and returns the dispatch order.
func (a *AgentApplication) seal() ([]Route, []TurnHook, []TurnHook, TurnErrorHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.sealed {
		a.ordered = sortRoutes(a.routes)
		a.sealed = true
	}
	return a.ordered, a.beforeTurn, a.afterTurn, a.turnError
}

// OnTurn runs one turn: load state, before-turn hooks, routing, after-turn
// hooks, save state. A failure skips the save.
func (a *AgentApplication) OnTurn(ctx context.Context, tc *agents.TurnContext) error {
	routes, before, after, onError := a.seal()
	act := tc.Activity()

	if a.serializeTurns {
		unlock, err := a.turnLocks.acquire(ctx, act.ChannelID+"/"+act.Conversation.ID)
		if err != nil {
			return err
		}
		defer unlock()
	}

	if a.removeRecipientMention && act.IsType(activity.TypeMessage) {
		act.RemoveRecipientMention()
	}
	if a.startTypingTimer && act.IsType(activity.TypeMessage) {
		stop := agents.StartTyping(ctx, tc, typingDelay, typingPeriod)
		defer stop()
	}

	err := a.runTurn(ctx, tc, routes, before, after)
	if err == nil {
		return nil
	}
	a.logger.ErrorContext(ctx, "turn failed",
		slog.String("activity_type", string(act.Type)),
		slog.String("conversation_id", act.Conversation.ID),
		slog.String("error", err.Error()),
	)
	if onError != nil {
		if herr := onError(ctx, tc, err); herr != nil {
			a.logger.ErrorContext(ctx, "turn error handler failed", slog.String("error", herr.Error()))
		}
	}
	return err
}

func (a *AgentApplication) runTurn(ctx context.Context, tc *agents.TurnContext, routes []Route, before, after []TurnHook) error {
	ts := state.NewTurnState(a.storage).Attach(tc)
	if err := ts.LoadAll(ctx, tc, false); err != nil {
		return err
	}

	proceed, err := runHooks(ctx, tc, ts, before, "before turn")
	if err != nil {
		return err
	}
	if proceed {
		if err := a.dispatch(ctx, tc, ts, routes); err != nil {
			return err
		}
		if _, err := runHooks(ctx, tc, ts, after, "after turn"); err != nil {
			return err
		}
	}
	return ts.SaveAll(ctx, false)
}

func runHooks(ctx context.Context, tc *agents.TurnContext, ts *state.TurnState, hooks []TurnHook, name string) (bool, error) {
	for _, h := range hooks {
		ok, err := h(ctx, tc, ts)
		if err != nil {
			return false, &agents.HandlerError{Handler: name, Err: err}
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// dispatch runs the matching routes. An invoke that no route handles gets a
// 501 invoke response.
func (a *AgentApplication) dispatch(ctx context.Context, tc *agents.TurnContext, ts *state.TurnState, routes []Route) error {
	matched, exclusiveRan := false, false
	for _, r := range routes {
		if exclusiveRan && !r.NonExclusive {
			continue
		}
		ok, err := r.matches(ctx, tc)
		if err != nil {
			return fmt.Errorf("app: route %q selector: %w", r.Label, err)
		}
		if !ok {
			continue
		}
		matched = true
		a.logger.DebugContext(ctx, "route selected", slog.String("route", r.Label))
		if err := r.Handler(ctx, tc, ts); err != nil {
			return &agents.HandlerError{Handler: r.Label, Err: err}
		}
		if a.dispatchMode == FirstMatch && !r.NonExclusive {
			exclusiveRan = true
		}
	}

	act := tc.Activity()
	if !matched && act.IsType(activity.TypeInvoke) && tc.InvokeResponse() == nil {
		if _, err := tc.SendActivity(ctx, activity.NewInvokeResponseActivity(501, nil)); err != nil {
			return err
		}
	}
	return nil
}
