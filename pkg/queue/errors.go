package queue

import "errors"

var (
	// ErrInsufficientFunds means the owner could not afford the queue cost.
	// No entry is created and nothing is charged.
	ErrInsufficientFunds = errors.New("not enough money to queue command")

	// ErrRunawayHalted means the owner blew past their queue quota; all of
	// their queued commands were halted and the enqueueing object was
	// flagged HALT.
	ErrRunawayHalted = errors.New("too many commands queued, object halted")

	// ErrQueueFull means every PID slot is occupied.
	ErrQueueFull = errors.New("queue is full")

	// ErrHalted means the enqueueing object carries the HALT flag.
	ErrHalted = errors.New("object is halted")

	// ErrInvalidPid means the PID is outside [1, MaxPID].
	ErrInvalidPid = errors.New("not a valid PID")

	// ErrNotFound means no active queue entry holds that PID.
	ErrNotFound = errors.New("PID is not associated with an active queue entry")

	// ErrAlreadyHalted means the targeted entry is already a tombstone.
	ErrAlreadyHalted = errors.New("queue entry has already been halted")

	// ErrPermission means the requester neither controls the entry's
	// executor nor has the halt power.
	ErrPermission = errors.New("permission denied")

	// ErrNoTimeout means the entry has no wait time to adjust: either a
	// semaphore entry with no timeout, or an entry already on a ready list.
	ErrNoTimeout = errors.New("queue entry has no wait time")
)
