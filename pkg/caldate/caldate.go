// Package caldate provides a calendar date type with no time-of-day or
// timezone component, plus parsing for the date-of-birth input shapes the
// patient verification flow accepts.
package caldate

import (
	"errors"
	"regexp"
	"strconv"
	"time"
)

// ErrUnparsable is returned by Parse when the input matches none of the
// accepted shapes.
var ErrUnparsable = errors.New("caldate: unparsable date")

// Date is a (year, month, day) triple. Equality is field-wise; there is no
// timezone semantic.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// The four accepted input shapes, in priority order. An 8-digit run carries
// no delimiter so it can never collide with the other three.
var (
	shapeDigits8  = regexp.MustCompile(`^(\d{2})(\d{2})(\d{4})$`)  // MMDDYYYY
	shapeSlashMDY = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`) // MM/DD/YYYY
	shapeISO      = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`) // YYYY-MM-DD
	shapeDashMDY  = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{4})$`) // MM-DD-YYYY
)

// Parse interprets input as a date of birth. Exactly four textual shapes are
// accepted, tried in a fixed order: eight contiguous digits as MMDDYYYY, then
// MM/DD/YYYY, then YYYY-MM-DD, then MM-DD-YYYY. The first shape that matches
// the entire input wins. Shapes are structural only: out-of-range month or
// day values are normalized by the usual calendar arithmetic rather than
// rejected. Anything else returns ErrUnparsable.
func Parse(input string) (Date, error) {
	if m := shapeDigits8.FindStringSubmatch(input); m != nil {
		return fromParts(m[3], m[1], m[2]), nil
	}
	if m := shapeSlashMDY.FindStringSubmatch(input); m != nil {
		return fromParts(m[3], m[1], m[2]), nil
	}
	if m := shapeISO.FindStringSubmatch(input); m != nil {
		return fromParts(m[1], m[2], m[3]), nil
	}
	if m := shapeDashMDY.FindStringSubmatch(input); m != nil {
		return fromParts(m[3], m[1], m[2]), nil
	}
	return Date{}, ErrUnparsable
}

// fromParts builds a Date from already shape-validated decimal strings.
// time.Date normalizes out-of-range components (month 13 rolls into the next
// year, day 32 into the next month).
func fromParts(year, month, day string) Date {
	y, _ := strconv.Atoi(year)
	mo, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	return FromTime(time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC))
}

// FromTime reduces a timestamp to its calendar date, discarding time-of-day.
func FromTime(t time.Time) Date {
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// Equal reports whether two dates name the same calendar day.
func (d Date) Equal(other Date) bool {
	return d.Year == other.Year && d.Month == other.Month && d.Day == other.Day
}

// String renders the date as YYYY-MM-DD.
func (d Date) String() string {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
}
