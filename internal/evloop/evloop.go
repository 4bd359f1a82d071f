// Package evloop applies build notification events to subscriptions.
package evloop

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/simplesurance/depflow/internal/logfields"
	"github.com/simplesurance/depflow/internal/provider"
)

const DefEventChannelBufferSize = 512
const DefRetryTimeout = 2 * time.Hour

const loggerName = "event-loop"

// Updater applies a build to a subscription.
type Updater interface {
	Update(ctx context.Context, subscriptionID uuid.UUID, buildID int) error
}

// EvLoop receives events and triggers subscription updates for the events
// that match the rules.
// Updates are executed asynchronously in go-routines and are retried until
// DefRetryTimeout expired.
type EvLoop struct {
	ch      chan *provider.Event
	logger  *zap.Logger
	rules   Rules
	updater Updater

	actionWg      sync.WaitGroup
	actionDeferFn func()
	retryer       *Retryer
}

// WithActionRoutineDeferFunc sets a function to be run when an go-routine that
// executes an update returns.
// It can be used to set a panic handler.
func WithActionRoutineDeferFunc(fn func()) func(*EvLoop) {
	return func(e *EvLoop) {
		e.actionDeferFn = fn
	}
}

// WithRetryTimeout sets the duration after which the retrying of failed
// updates is given up.
func WithRetryTimeout(d time.Duration) func(*EvLoop) {
	return func(e *EvLoop) {
		e.retryer.defTimeout = d
	}
}

// NewEventLoop returns an event loop that applies events to updater.
// When rules is empty, all events are applied.
func NewEventLoop(updater Updater, rules Rules, opts ...func(*EvLoop)) *EvLoop {
	evl := EvLoop{
		ch:      make(chan *provider.Event, DefEventChannelBufferSize),
		rules:   rules,
		updater: updater,
		retryer: NewRetryer(),
	}

	for _, opt := range opts {
		opt(&evl)
	}

	if evl.logger == nil {
		evl.logger = zap.L().Named(loggerName)
	}

	return &evl
}

// C returns the event channel.
// Events sent to this channel will be processed.
// The channel is closed when Stop() is called.
func (e *EvLoop) C() chan<- *provider.Event {
	return e.ch
}

func (e *EvLoop) Start() {
	ctx := context.Background()
	e.logger.Info("ready to process events", logfields.Event("eventloop_started"))

	for ev := range e.ch {
		logger := e.logger.With(ev.LogFields()...)

		logger.Debug("event received", logfields.Event("event_received"))

		if !e.matches(ctx, logger, ev) {
			metrics.EventsInc(eventResultSkipped)
			logger.Info(
				"event does not match any rule, ignoring it",
				logfields.Event("event_ignored"),
			)
			continue
		}

		metrics.EventsInc(eventResultScheduled)
		e.scheduleUpdate(ctx, ev)
	}

	e.logger.Info(
		"event loop terminated, event channel was closed",
		logfields.Event("eventloop_terminated"),
	)
}

func (e *EvLoop) matches(ctx context.Context, logger *zap.Logger, ev *provider.Event) bool {
	if len(e.rules) == 0 {
		return true
	}

	for _, rule := range e.rules {
		logger := logger.With(zap.String("rule_name", rule.name))

		match, err := rule.Match(ctx, ev)
		if err != nil {
			logger.Error(
				"matching rule failed",
				logfields.Event("rule_matching_failed"),
				zap.Error(err),
			)
			continue
		}

		logger.Debug(
			"evaluated result of matching event with rule",
			logfields.Event("rule_match_result_evaluated"),
			zap.Stringer("match_result", match),
		)

		switch match {
		case Match:
			return true
		case RuleMismatch:
			continue
		case MatchResultUndefined:
			logger.Error(
				"match returned invalid result",
				logfields.Event("rule_match_invalid_result"),
				zap.Stringer("match_result", match),
			)
		default:
			logger.Panic(
				"match returned undefined MatchResult enum value",
				zap.Int("match_result_int", int(match)),
			)
		}
	}

	return false
}

func (e *EvLoop) scheduleUpdate(ctx context.Context, event *provider.Event) {
	e.actionWg.Add(1)

	go func() {
		if e.actionDeferFn != nil {
			defer e.actionDeferFn()
		}

		defer e.actionWg.Done()

		err := e.retryer.Run(
			ctx,
			func(ctx context.Context) error {
				return e.updater.Update(ctx, event.SubscriptionID, event.BuildID)
			},
			event.LogFields(),
		)
		if err != nil {
			metrics.EventsInc(eventResultFailed)
		}
	}()
}

// Stop stops the event loop, and waits until all scheduled go-routines
// terminated.
// The event channel (Evloop.C()) will be closed.
func (e *EvLoop) Stop() {
	e.logger.Debug("event loop terminating", logfields.Event("eventloop_terminating"))
	close(e.ch)

	e.retryer.Stop()

	e.logger.Debug(
		"waiting for scheduled updates to terminate",
		logfields.Event("eventloop_terminating"),
	)
	e.actionWg.Wait()

	e.logger.Info("event loop terminated", logfields.Event("eventloop_terminated"))
}
