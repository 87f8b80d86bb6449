package bot

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidRepeat = errors.New("invalid repeat interval")

var (
	errRepeatMissing   = fmt.Errorf("%w: missing argument", ErrInvalidRepeat)
	errRepeatMinutes   = fmt.Errorf("%w: minutes must be positive", ErrInvalidRepeat)
	errRepeatSeconds   = fmt.Errorf("%w: seconds must be positive", ErrInvalidRepeat)
	errRepeatMalformed = fmt.Errorf("%w: malformed argument", ErrInvalidRepeat)
)

// ParseRepeat reads a /set_repeat argument: "default" or "true" for def,
// "<secs>" for seconds or "x<N>" for minutes.
func ParseRepeat(arg string, def time.Duration) (time.Duration, error) {
	arg = strings.ToLower(strings.TrimSpace(arg))
	switch {
	case arg == "":
		return 0, errRepeatMissing
	case arg == "default" || arg == "true":
		return def, nil
	case strings.HasPrefix(arg, "x") && isDigits(arg[1:]):
		n, err := strconv.ParseInt(arg[1:], 10, 64)
		if err != nil {
			return 0, errRepeatMalformed
		}
		if n <= 0 {
			return 0, errRepeatMinutes
		}
		return scaleRepeat(n, time.Minute)
	case isDigits(arg):
		n, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return 0, errRepeatMalformed
		}
		if n <= 0 {
			return 0, errRepeatSeconds
		}
		return scaleRepeat(n, time.Second)
	}
	return 0, errRepeatMalformed
}

// scaleRepeat multiplies n by unit, rejecting values that overflow a Duration.
func scaleRepeat(n int64, unit time.Duration) (time.Duration, error) {
	if n > math.MaxInt64/int64(unit) {
		return 0, errRepeatMalformed
	}
	return time.Duration(n) * unit, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// repeatHint is the user-facing reply for a rejected argument.
func repeatHint(err error) string {
	const examples = "Example: <code>/set_repeat 300</code>, <code>/set_repeat x5</code>, or <code>/set_repeat default</code>"
	switch {
	case errors.Is(err, errRepeatMinutes):
		return "⚠️ Please provide a positive number of minutes"
	case errors.Is(err, errRepeatSeconds):
		return "⚠️ Please provide a positive number of seconds"
	case errors.Is(err, errRepeatMissing):
		return "⚠️ Please provide a number of seconds, minutes with 'x' prefix (e.g., 'x10'), or 'default'. " + examples
	}
	return "⚠️ Please provide a valid number, 'default', 'true', or use 'x' prefix for minutes (e.g., 'x10' for 10 minutes). " + examples
}
