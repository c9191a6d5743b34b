package retry

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Class buckets a failure for retry purposes.
type Class int

const (
	// Retryable errors are transient: rate limits, connection drops,
	// server hiccups, stale session keys, export-init delays.
	Retryable Class = iota
	// Auth errors are credential failures. Never retried.
	Auth
	// Permission errors mean the account may not see the resource.
	// Never retried; the offending chat or message is skipped.
	Permission
	// Unknown is everything else.
	Unknown
)

func (c Class) String() string {
	switch c {
	case Retryable:
		return "retryable"
	case Auth:
		return "auth"
	case Permission:
		return "permission"
	default:
		return "unknown"
	}
}

var retryableCodes = []string{
	"FLOOD_WAIT",
	"TAKEOUT_INIT_DELAY",
	"AUTH_KEY_UNREGISTERED",
	"AUTH_KEY_DUPLICATED",
	"SESSION_REVOKED",
	"TIMEOUT",
	"CONNECTION",
	"NETWORK",
	"INTERNAL",
	"RPC_CALL_FAIL",
	"-503",
}

var authCodes = []string{
	"PHONE_CODE_INVALID",
	"PHONE_CODE_EXPIRED",
	"PASSWORD_HASH_INVALID",
	"PHONE_NUMBER_INVALID",
	"PHONE_NUMBER_UNOCCUPIED",
}

var permissionCodes = []string{
	"CHAT_ADMIN_REQUIRED",
	"CHANNEL_PRIVATE",
	"CHAT_FORBIDDEN",
	"USER_PRIVACY_RESTRICTED",
}

// Classify buckets an error by matching known platform error-code substrings.
// Auth and permission codes win over retryable ones so a credential failure
// wrapped in a connection message is never retried.
func Classify(err error) Class {
	if err == nil {
		return Unknown
	}
	text := strings.ToUpper(err.Error())
	for _, code := range authCodes {
		if strings.Contains(text, code) {
			return Auth
		}
	}
	for _, code := range permissionCodes {
		if strings.Contains(text, code) {
			return Permission
		}
	}
	for _, code := range retryableCodes {
		if strings.Contains(text, code) {
			return Retryable
		}
	}
	return Unknown
}

// waiter is implemented by errors that carry a remote-mandated wait duration.
type waiter interface {
	WaitDuration() time.Duration
}

var waitPattern = regexp.MustCompile(`(?:FLOOD_WAIT|TAKEOUT_INIT_DELAY)_(\d+)`)

// WaitHint extracts the mandatory wait encoded in a rate-limit style error.
// Returns false when the error carries no explicit duration.
func WaitHint(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	var w waiter
	if ok := asWaiter(err, &w); ok {
		if d := w.WaitDuration(); d > 0 {
			return d, true
		}
	}
	m := waitPattern.FindStringSubmatch(strings.ToUpper(err.Error()))
	if m == nil {
		return 0, false
	}
	secs, convErr := strconv.Atoi(m[1])
	if convErr != nil || secs <= 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func asWaiter(err error, target *waiter) bool {
	for err != nil {
		if w, ok := err.(waiter); ok {
			*target = w
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
