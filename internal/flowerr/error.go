// Package flowerr defines the error types shared by the depflow packages.
package flowerr

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoAzureDevOpsCredential is returned when neither a token nor a managed
// identity is configured for an Azure DevOps account.
var ErrNoAzureDevOpsCredential = errors.New("no azure devops credential configured")

type RetryableError struct {
	// Err is the wrapped original error
	Err error
	// After is the earliest point in time that the operation can be retried
	After time.Time
}

func NewRetryableError(originalErr error, retryAfter time.Time) *RetryableError {
	return &RetryableError{
		Err:   originalErr,
		After: retryAfter,
	}
}

func NewRetryableAnytimeError(originalErr error) *RetryableError {
	return &RetryableError{
		Err: originalErr,
	}
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

func (e *RetryableError) Error() string {
	if e.After.IsZero() {
		return fmt.Sprintf("retryable error: %s", e.Err)
	}

	return fmt.Sprintf("retryable error (after %s): %s", e.After, e.Err)
}

// NoInstallationError is returned when the GitHub App is not installed for
// the organization of a repository.
// The organization has to install the app, retrying does not help.
type NoInstallationError struct {
	RepositoryURL string
}

func (e *NoInstallationError) Error() string {
	return fmt.Sprintf("no github app installation is available for repository %q", e.RepositoryURL)
}

// InvalidRepositoryURLError is returned when a repository URL does not have
// the shape a provider expects.
type InvalidRepositoryURLError struct {
	RepositoryURL string
	Reason        string
}

func (e *InvalidRepositoryURLError) Error() string {
	return fmt.Sprintf("invalid repository url %q: %s", e.RepositoryURL, e.Reason)
}

// UnsupportedRepositoryTypeError is returned for repository URLs that can
// not be classified as a GitHub, Azure DevOps or local repository.
type UnsupportedRepositoryTypeError struct {
	RepositoryURL string
}

func (e *UnsupportedRepositoryTypeError) Error() string {
	return fmt.Sprintf("unsupported repository remote %q", e.RepositoryURL)
}

// InvalidArgumentError is returned when a required argument is missing.
type InvalidArgumentError struct {
	Argument string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("argument %q must not be empty", e.Argument)
}

// IsConfigurationError returns true if err is caused by a setup problem that
// has to be fixed by an operator and is not resolved by retrying.
func IsConfigurationError(err error) bool {
	var noInstErr *NoInstallationError
	var invURLErr *InvalidRepositoryURLError
	var unsupErr *UnsupportedRepositoryTypeError

	return errors.As(err, &noInstErr) ||
		errors.As(err, &invURLErr) ||
		errors.As(err, &unsupErr) ||
		errors.Is(err, ErrNoAzureDevOpsCredential)
}
