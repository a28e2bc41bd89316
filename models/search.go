package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidSpec is returned for search requests rejected before any job exists.
var ErrInvalidSpec = errors.New("invalid search spec")

// TimeFilter restricts auction results to a trailing window.
type TimeFilter string

const (
	TimeFilterNone     TimeFilter = ""
	TimeFilter5Months  TimeFilter = "5m"
	TimeFilter1Year    TimeFilter = "1y"
	TimeFilter2Years   TimeFilter = "2y"
	TimeFilterAllTimes TimeFilter = "all"
)

// Cutoff returns the earliest end date kept by the filter.
func (f TimeFilter) Cutoff(now time.Time) (time.Time, bool) {
	switch f {
	case TimeFilter5Months:
		return now.AddDate(0, -5, 0), true
	case TimeFilter1Year:
		return now.AddDate(-1, 0, 0), true
	case TimeFilter2Years:
		return now.AddDate(-2, 0, 0), true
	default:
		return time.Time{}, false
	}
}

func (f TimeFilter) valid() bool {
	switch f {
	case TimeFilterNone, TimeFilter5Months, TimeFilter1Year, TimeFilter2Years, TimeFilterAllTimes:
		return true
	}
	return false
}

// SearchSpec is an immutable search request. Zero years mean unbounded.
type SearchSpec struct {
	Kind       Kind       `json:"kind"`
	Make       string     `json:"make"`
	Model      string     `json:"model,omitempty"`
	YearFrom   int        `json:"year_from,omitempty"`
	YearTo     int        `json:"year_to,omitempty"`
	Keyword    string     `json:"keyword,omitempty"`
	TimeFilter TimeFilter `json:"time_filter,omitempty"`
	Platforms  []Platform `json:"platforms"`
}

// Validate rejects specs that can never be dispatched.
func (s SearchSpec) Validate() error {
	if !s.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSpec, s.Kind)
	}
	if strings.TrimSpace(s.Make) == "" {
		return fmt.Errorf("%w: make is required", ErrInvalidSpec)
	}
	if len(s.Platforms) == 0 {
		return fmt.Errorf("%w: platform set is empty", ErrInvalidSpec)
	}
	if s.YearFrom < 0 || s.YearTo < 0 {
		return fmt.Errorf("%w: years cannot be negative", ErrInvalidSpec)
	}
	if s.YearFrom > 0 && s.YearTo > 0 && s.YearFrom > s.YearTo {
		return fmt.Errorf("%w: year_from %d is after year_to %d", ErrInvalidSpec, s.YearFrom, s.YearTo)
	}
	if !s.TimeFilter.valid() {
		return fmt.Errorf("%w: unknown time filter %q", ErrInvalidSpec, s.TimeFilter)
	}
	if s.TimeFilter != TimeFilterNone && s.Kind != KindAuction {
		return fmt.Errorf("%w: time filter applies to auctions only", ErrInvalidSpec)
	}
	return nil
}

// MatchesYear reports whether year falls in the spec's range. Unknown years match.
func (s SearchSpec) MatchesYear(year int) bool {
	if year == 0 {
		return true
	}
	if s.YearFrom > 0 && year < s.YearFrom {
		return false
	}
	if s.YearTo > 0 && year > s.YearTo {
		return false
	}
	return true
}

// Query joins make, model and keyword for sites with a single text box.
func (s SearchSpec) Query() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{s.Make, s.Model, s.Keyword} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}
