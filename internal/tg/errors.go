package tg

import (
	"errors"
	"fmt"
	"time"
)

// Error is a coded platform error. Code follows the platform's
// SCREAMING_SNAKE convention; Wait carries the mandatory pause for
// rate-limit style codes.
type Error struct {
	Code string
	Wait time.Duration
}

func (e *Error) Error() string {
	if e.Wait > 0 {
		return fmt.Sprintf("%s_%d", e.Code, int(e.Wait/time.Second))
	}
	return e.Code
}

// WaitDuration reports the remote-mandated wait, zero when none.
func (e *Error) WaitDuration() time.Duration { return e.Wait }

// FloodWait builds the platform's rate-limit error.
func FloodWait(seconds int) *Error {
	return &Error{Code: "FLOOD_WAIT", Wait: time.Duration(seconds) * time.Second}
}

// TakeoutInitDelay builds the bulk-export initialization-delay error.
func TakeoutInitDelay(seconds int) *Error {
	return &Error{Code: "TAKEOUT_INIT_DELAY", Wait: time.Duration(seconds) * time.Second}
}

// ErrTakeoutUnavailable signals that the bulk-export path cannot be used
// right now. Callers must fall back to the live strategy for the same
// request; bulk-export availability is account-global and cannot be forced.
var ErrTakeoutUnavailable = errors.New("takeout unavailable")

// IsCode reports whether err carries the given platform error code.
func IsCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
