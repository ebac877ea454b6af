package engine

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/bellzar7/Codecan-EX-sub000/internal/exchange"
)

// Kind is the classification of a venue fetch error.
type Kind int

const (
	// KindTransient covers network failures, timeouts, and unknown venue
	// errors. Retried up to the attempt budget.
	KindTransient Kind = iota
	// KindRateLimited means the venue signalled throttling. The ban window
	// is persisted and the error propagates without further retries.
	KindRateLimited
	// KindArchivedNoFill means the venue archived a long-dead order that
	// never filled. Terminal and expected, not a failure.
	KindArchivedNoFill
	// KindNotFound means the venue no longer knows the order.
	KindNotFound
)

// Classification is the typed outcome of inspecting a venue error.
type Classification struct {
	Kind Kind
	// UnblockAt is the ban horizon in epoch ms, set when Kind is
	// KindRateLimited.
	UnblockAt int64
}

// Venue message markers. Matched case-insensitively against the raw error
// text so they survive wrapping.
var (
	rateLimitMarkers = []string{"too many requests", "rate limit", "banned until", "request weight"}
	archivedMarkers  = []string{"archived", "order is too old"}
	notFoundMarkers  = []string{"order does not exist", "order not found", "unknown order"}
)

// Classify inspects a venue error and returns its typed classification.
// When the venue message carries an explicit "banned until <epoch ms>"
// horizon that timestamp is used; otherwise rate limits default to
// now+defaultBan.
func Classify(err error, now time.Time, defaultBan time.Duration) Classification {
	msg := strings.ToLower(err.Error())

	var apiErr *exchange.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusTooManyRequests, 418: // 418: venue ban escalation
			return Classification{Kind: KindRateLimited, UnblockAt: banHorizon(msg, now, defaultBan)}
		case http.StatusNotFound:
			if containsAny(msg, archivedMarkers) {
				return Classification{Kind: KindArchivedNoFill}
			}
			return Classification{Kind: KindNotFound}
		}
	}

	switch {
	case containsAny(msg, rateLimitMarkers):
		return Classification{Kind: KindRateLimited, UnblockAt: banHorizon(msg, now, defaultBan)}
	case containsAny(msg, archivedMarkers):
		return Classification{Kind: KindArchivedNoFill}
	case containsAny(msg, notFoundMarkers):
		return Classification{Kind: KindNotFound}
	default:
		return Classification{Kind: KindTransient}
	}
}

func containsAny(msg string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// banHorizon extracts the epoch-ms timestamp following "until" in a venue
// ban message, falling back to now+defaultBan when none is present.
func banHorizon(msg string, now time.Time, defaultBan time.Duration) int64 {
	if idx := strings.Index(msg, "until"); idx >= 0 {
		rest := strings.TrimLeftFunc(msg[idx+len("until"):], unicode.IsSpace)
		end := 0
		for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
			end++
		}
		if end > 0 {
			if ts, err := strconv.ParseInt(rest[:end], 10, 64); err == nil && ts > now.UnixMilli() {
				return ts
			}
		}
	}
	return now.Add(defaultBan).UnixMilli()
}
