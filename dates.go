package mga

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

const (
	// J2000 is the Julian date of the reference epoch of every date in this package.
	J2000         = 2451545.0
	secondsPerDay = 86400.0

	dateTimeFormat = "2006-01-02 15:04:05"
	dateFormat     = "2006-01-02"
)

// DateFromTime returns the number of seconds elapsed since J2000.
func DateFromTime(dt time.Time) float64 {
	return (julian.TimeToJD(dt) - J2000) * secondsPerDay
}

// TimeFromDate is the inverse of DateFromTime.
func TimeFromDate(date float64) time.Time {
	return julian.JDToTime(J2000 + date/secondsPerDay)
}

// ParseDate reads either a Julian date (e.g. 2460676.5) or a UTC date formatted as
// "2006-01-02 15:04:05" or "2006-01-02", and returns the seconds elapsed since J2000.
func ParseDate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if jde, err := strconv.ParseFloat(s, 64); err == nil {
		return (jde - J2000) * secondsPerDay, nil
	}
	for _, layout := range []string{dateTimeFormat, dateFormat} {
		if dt, err := time.Parse(layout, s); err == nil {
			return DateFromTime(dt), nil
		}
	}
	return 0, fmt.Errorf("could not understand date `%s`", s)
}

// FormatDate returns the date as a UTC calendar date.
func FormatDate(date float64) string {
	return TimeFromDate(date).UTC().Format(dateTimeFormat)
}
