package jwtx

import (
	"errors"
	"regexp"
	"strconv"
	"time"
)

// Default token lifetimes used when configuration is absent or unparseable.
const (
	// DefaultAccessTTL is the default lifetime for access tokens.
	DefaultAccessTTL = 15 * time.Minute

	// DefaultRefreshTTL is the default lifetime for refresh tokens, and the
	// documented fallback for TTL strings that don't match the grammar.
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// ErrInvalidTTL reports a TTL string that does not match the compact grammar.
var ErrInvalidTTL = errors.New("jwtx: invalid ttl format")

var ttlPattern = regexp.MustCompile(`^(\d+)([smhd])$`)

// ParseTTL parses a compact duration string: an integer followed by one of
// s, m, h or d ("15m", "7d"). An unrecognized format returns
// DefaultRefreshTTL together with ErrInvalidTTL so callers can log the
// fallback instead of applying it silently.
func ParseTTL(s string) (time.Duration, error) {
	m := ttlPattern.FindStringSubmatch(s)
	if m == nil {
		return DefaultRefreshTTL, ErrInvalidTTL
	}

	v, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return DefaultRefreshTTL, ErrInvalidTTL
	}

	switch m[2] {
	case "s":
		return time.Duration(v) * time.Second, nil
	case "m":
		return time.Duration(v) * time.Minute, nil
	case "h":
		return time.Duration(v) * time.Hour, nil
	default: // "d", guaranteed by the pattern
		return time.Duration(v) * 24 * time.Hour, nil
	}
}
