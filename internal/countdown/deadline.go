package countdown

import (
	"fmt"
	"time"
)

// realizationDateLayout is the only accepted form for a realization date.
const realizationDateLayout = "2006-01-02"

// ParseRealizationDate converts a YYYY-MM-DD realization date into the
// countdown deadline: 23:59:59 local time on that date. Any other format is
// a fatal input error, not a silently wrong countdown.
func ParseRealizationDate(date string) (time.Time, error) {
	day, err := time.ParseInLocation(realizationDateLayout, date, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid realization date %q (want YYYY-MM-DD): %w", date, err)
	}
	return day.Add(23*time.Hour + 59*time.Minute + 59*time.Second), nil
}
