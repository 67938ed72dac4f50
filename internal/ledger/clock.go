package ledger

import "time"

// Clock produces the timestamps stored on accounts and entries. A single
// injected clock keeps tests deterministic; all values are UTC truncated to
// microsecond resolution, matching the persisted precision.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// SystemClock is the production clock.
var SystemClock Clock = systemClock{}

// TimeLayout is the persisted timestamp format: fixed-width ISO-8601 UTC
// with six fractional digits. Fixed width makes lexicographic order equal
// temporal order and round-trips losslessly at microsecond resolution.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// FormatTime renders t in the persisted layout.
func FormatTime(t time.Time) string {
	return t.UTC().Truncate(time.Microsecond).Format(TimeLayout)
}

// ParseTime parses a timestamp in the persisted layout.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
