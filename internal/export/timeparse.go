package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/tejusbharadwaj/univers/internal/ferrors"
)

// layouts accepted by ParseTime, most specific first. Layouts without an
// offset are read in the caller's location.
var layouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime reads an RFC 3339 timestamp, or a date with optional time of day
// in loc.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: missing timestamp", ferrors.ErrInvalidRequest)
	}
	if loc == nil {
		loc = time.UTC
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid timestamp %q (use RFC 3339 or YYYY-MM-DD[THH:MM])", ferrors.ErrInvalidRequest, s)
}
