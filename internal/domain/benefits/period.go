package benefits

import (
	"fmt"
	"time"
)

const monthLayout = "2006-01"

// Period is one calendar month in UTC.
type Period struct {
	Year  int
	Month time.Month
}

func NewPeriod(month, year int) (Period, error) {
	if month < 1 || month > 12 {
		return Period{}, fmt.Errorf("%w: month %d out of range", ErrInvalidPeriod, month)
	}
	if year < 2000 || year > 9999 {
		return Period{}, fmt.Errorf("%w: year %d out of range", ErrInvalidPeriod, year)
	}
	return Period{Year: year, Month: time.Month(month)}, nil
}

// ParsePeriod accepts the YYYY-MM form stored on records.
func ParsePeriod(value string) (Period, error) {
	t, err := time.Parse(monthLayout, value)
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q is not YYYY-MM", ErrInvalidPeriod, value)
	}
	return NewPeriod(int(t.Month()), t.Year())
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End is exclusive.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

func (p Period) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(p.Start()) && t.Before(p.End())
}

func (p Period) Weekdays() int {
	return p.countDays(func(d time.Weekday) bool { return d >= time.Monday && d <= time.Friday })
}

func (p Period) Saturdays() int {
	return p.countDays(func(d time.Weekday) bool { return d == time.Saturday })
}

func (p Period) countDays(match func(time.Weekday) bool) int {
	count := 0
	for d := p.Start(); d.Before(p.End()); d = d.AddDate(0, 0, 1) {
		if match(d.Weekday()) {
			count++
		}
	}
	return count
}
