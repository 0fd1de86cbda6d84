package gateway

import (
	"fmt"
	"time"
)

// DayLayout is the wire format of a Day.
const DayLayout = "2006-01-02"

// Day is a calendar date without a time of day or location.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf returns the calendar date of t in t's location.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return Day{Year: y, Month: m, Day: d}
}

// ParseDay parses a date in the YYYY-MM-DD layout.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return Day{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DayOf(t), nil
}

// Bounds returns the half-open interval [start, end) covering the day in loc.
func (d Day) Bounds(loc *time.Location) (time.Time, time.Time) {
	start := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// Next returns the following calendar day.
func (d Day) Next() Day {
	start, _ := d.Bounds(time.UTC)
	return DayOf(start.AddDate(0, 0, 1))
}

func (d Day) Before(other Day) bool {
	a, _ := d.Bounds(time.UTC)
	b, _ := other.Bounds(time.UTC)
	return a.Before(b)
}

func (d Day) IsZero() bool { return d == Day{} }

// Valid reports whether d names a real calendar date. time.Date would
// otherwise normalize 2024-02-31 to 2024-03-02.
func (d Day) Valid() bool {
	if d.Year < 1 {
		return false
	}
	start, _ := d.Bounds(time.UTC)
	return DayOf(start) == d
}

func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Day) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Day) UnmarshalText(b []byte) error {
	parsed, err := ParseDay(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
