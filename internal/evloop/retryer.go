package evloop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/simplesurance/depflow/internal/flowerr"
	"github.com/simplesurance/depflow/internal/logfields"
)

// Retryer executes a function repeatedly until it was successful or cancel
// condition happened.
type Retryer struct {
	logger       *zap.Logger
	shutdownChan chan struct{}

	defTimeout                 time.Duration
	backoffInitialInterval     time.Duration
	backoffRandomizationFactor float64
}

func NewRetryer() *Retryer {
	return &Retryer{
		logger:                     zap.L().Named("retryer"),
		shutdownChan:               make(chan struct{}),
		defTimeout:                 DefRetryTimeout,
		backoffInitialInterval:     5 * time.Second,
		backoffRandomizationFactor: backoff.DefaultRandomizationFactor,
	}
}

func logFieldActionResult(val string) zap.Field {
	return zap.String("action_result", val)
}

// Run executes fn until it was successful, it returned an error that
// does not wrap flowerr.RetryableError, the retry timeout expired or the
// execution was aborted via the context.
// When the retry timeout expires an error wrapping
// context.DeadlineExceeded is returned.
func (r *Retryer) Run(ctx context.Context, fn func(context.Context) error, logF []zap.Field) error {
	var tryCnt uint

	ctx, cancelFn := context.WithTimeout(ctx, r.defTimeout)
	defer cancelFn()

	deadline, _ := ctx.Deadline()

	retryTimer := time.NewTimer(0)
	defer retryTimer.Stop()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.backoffInitialInterval
	bo.RandomizationFactor = r.backoffRandomizationFactor
	bo.MaxElapsedTime = 0
	bo.Reset()

	for {
		select {
		case <-ctx.Done():
			r.logger.With(logF...).Info(
				"action execution cancelled",
				logfields.Event("action_execution_cancelled"),
				logFieldActionResult("cancelled"),
				zap.Uint("try_count", tryCnt),
				zap.Duration("age", bo.GetElapsedTime()),
				zap.Duration("retry_timeout", r.defTimeout),
			)

			return fmt.Errorf("action not executed successfully: %w", ctx.Err())

		case <-r.shutdownChan:
			r.logger.With(logF...).Info(
				"evloop terminating, action not executed",
				logfields.Event("action_execution_cancelled_evloop_terminated"),
				logFieldActionResult("cancelled"),
			)

			return nil

		case <-retryTimer.C:
		}

		tryCnt++
		logger := r.logger.With(logF...).With(zap.Uint("try_count", tryCnt))

		logger.Debug(
			"running action",
			logfields.Event("action_running"),
			zap.Duration("age", bo.GetElapsedTime()),
			zap.Duration("retry_timeout", r.defTimeout),
		)

		err := fn(ctx)
		if err == nil {
			logger.Info(
				"action executed successfully",
				logfields.Event("action_executed_successfully"),
				logFieldActionResult("success"),
			)

			return nil
		}

		logger = logger.With(zap.Error(err))

		if errors.Is(err, context.Canceled) {
			logger.Error(
				"action cancelled",
				logfields.Event("action_cancelled"),
				logFieldActionResult("cancelled"),
			)

			return err
		}

		var retryError *flowerr.RetryableError
		if !errors.As(err, &retryError) {
			logger.Error(
				"action failed, not retryable",
				logfields.Event("action_failed"),
				logFieldActionResult("failure"),
			)

			return err
		}

		if retryError.After.After(deadline) {
			logger.Error(
				"action failed, next possible retry time is after timeout expiration",
				logfields.Event("action_failed"),
				logFieldActionResult("failure"),
				zap.Time("earliest_allowed_retry", retryError.After),
			)

			return err
		}

		// retries are never scheduled earlier than the backoff interval
		retryIn := bo.NextBackOff()
		if until := time.Until(retryError.After); until > retryIn {
			retryIn = until
		}

		retryTimer.Reset(retryIn)
		logger.Warn(
			"action failed, retry scheduled",
			logfields.Event("action_retry_scheduled"),
			zap.Duration("retry_in", retryIn),
		)
	}
}

// Stop notifies all Run() methods to terminate.
// It does not wait for their termination.
func (r *Retryer) Stop() {
	r.logger.Debug("retryer terminating", logfields.Event("retryer_terminating"))

	select {
	case <-r.shutdownChan:
		return // already closed
	default:
		close(r.shutdownChan)
	}
}
