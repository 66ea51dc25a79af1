package export

import (
	"fmt"
	"time"

	"github.com/tejusbharadwaj/univers/internal/ferrors"
	"github.com/tejusbharadwaj/univers/internal/models"
)

// DefaultMaxRange bounds a single export.
const DefaultMaxRange = 2 * 365 * 24 * time.Hour

// SupportedIntervals are the sampling intervals, in minutes, the raw endpoint accepts.
var SupportedIntervals = models.SupportedIntervals

type RequestValidator struct {
	validIntervals map[int]bool
	maxRange       time.Duration
}

func NewRequestValidator(maxRange time.Duration) *RequestValidator {
	if maxRange <= 0 {
		maxRange = DefaultMaxRange
	}
	v := &RequestValidator{
		validIntervals: make(map[int]bool, len(SupportedIntervals)),
		maxRange:       maxRange,
	}
	for _, i := range SupportedIntervals {
		v.validIntervals[i] = true
	}
	return v
}

// Validate checks a request before any API call is made. Every error wraps
// ferrors.ErrInvalidRequest.
func (v *RequestValidator) Validate(req Request) error {
	if err := v.validate(req); err != nil {
		return fmt.Errorf("%w: %v", ferrors.ErrInvalidRequest, err)
	}
	return nil
}

// ValidateRange checks the time range and interval alone, so callers can
// reject a request before enumerating models.
func (v *RequestValidator) ValidateRange(start, end time.Time, intervalMinutes int) error {
	if err := v.validateRange(start, end, intervalMinutes); err != nil {
		return fmt.Errorf("%w: %v", ferrors.ErrInvalidRequest, err)
	}
	return nil
}

func (v *RequestValidator) validate(req Request) error {
	if err := v.validateRange(req.Start, req.End, req.IntervalMinutes); err != nil {
		return err
	}

	if len(req.Models) == 0 {
		return fmt.Errorf("no models selected")
	}
	seen := make(map[string]bool, len(req.Models))
	for _, m := range req.Models {
		if m.ID == "" {
			return fmt.Errorf("model with empty id")
		}
		if seen[m.ID] {
			return fmt.Errorf("duplicate model: %s", m.ID)
		}
		seen[m.ID] = true
	}

	return nil
}

func (v *RequestValidator) validateRange(start, end time.Time, intervalMinutes int) error {
	// Validate timestamps are present
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("missing timestamp")
	}

	if !start.Before(end) {
		return fmt.Errorf("start time must be before end time")
	}

	if end.Sub(start) > v.maxRange {
		return fmt.Errorf("time range exceeds maximum allowed (%s)", v.maxRange)
	}

	if !v.validIntervals[intervalMinutes] {
		return fmt.Errorf("invalid interval: %d (supported: %v)", intervalMinutes, SupportedIntervals)
	}
	return nil
}
