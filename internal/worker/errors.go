package worker

import "errors"

var (
	// ErrBudgetExceeded is returned when the next batch would push spend past
	// the run or day budget.
	ErrBudgetExceeded = errors.New("quality budget exceeded")

	// ErrCheckerUnavailable is returned when the quality checker call fails.
	ErrCheckerUnavailable = errors.New("quality checker unavailable")

	// ErrAlreadyRunning is returned when a run is requested while one is active.
	ErrAlreadyRunning = errors.New("run already in progress")

	// ErrInvalidConfig is returned by constructors given zero or negative settings.
	ErrInvalidConfig = errors.New("invalid worker configuration")
)
