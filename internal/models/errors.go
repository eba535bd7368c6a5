package models

import "errors"

var (
	// ErrStoreUnavailable means the queue store's backing medium failed.
	// Fatal to the current run; prior state stays intact for inspection.
	ErrStoreUnavailable = errors.New("queue store unavailable")

	// ErrNothingEnqueued is advisory: decomposition of all given inputs
	// produced zero tasks, usually an operator path mistake.
	ErrNothingEnqueued = errors.New("nothing was enqueued")

	// ErrJobAlreadyRunning guards the single-runner-per-job-root rule.
	ErrJobAlreadyRunning = errors.New("a job is already running for this root")

	// ErrBundleClaimConflict is the expected race outcome when another
	// watcher instance claimed a bundle first. Callers skip the bundle.
	ErrBundleClaimConflict = errors.New("bundle already claimed")
)
