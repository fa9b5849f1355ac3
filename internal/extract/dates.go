package extract

import (
	"regexp"
	"strings"
	"time"
)

// DateRange is a resolved inclusive calendar range.
type DateRange struct {
	Start time.Time
	End   time.Time
}

const isoDate = "2006-01-02"

var (
	monthRangeRe = regexp.MustCompile(`(?i)\b([a-z]+)\s+(\d{1,2})\s+(?:to|through|until|-)\s+([a-z]+)\s+(\d{1,2})\b`)
	isoRangeRe   = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\s*(?:to|through|until|-)\s*(\d{4}-\d{2}-\d{2})\b`)
	isoSingleRe  = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
)

// resolveDateRange maps a date phrase in the text to a concrete range
// relative to now. Relative phrases resolve to complete days: "last week" is
// the previous 7 finished days, ending yesterday.
func resolveDateRange(text string, now time.Time) (DateRange, bool) {
	lower := strings.ToLower(text)
	today := truncateDay(now)

	switch {
	case strings.Contains(lower, "yesterday"):
		d := today.AddDate(0, 0, -1)
		return DateRange{Start: d, End: d}, true

	case strings.Contains(lower, "today"):
		return DateRange{Start: today, End: today}, true

	case strings.Contains(lower, "last week"), strings.Contains(lower, "past week"), strings.Contains(lower, "previous week"):
		end := today.AddDate(0, 0, -1)
		return DateRange{Start: today.AddDate(0, 0, -7), End: end}, true

	case strings.Contains(lower, "this week"):
		return DateRange{Start: startOfWeek(today), End: today}, true

	case strings.Contains(lower, "last month"), strings.Contains(lower, "past month"), strings.Contains(lower, "previous month"):
		firstOfThis := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		lastOfPrev := firstOfThis.AddDate(0, 0, -1)
		firstOfPrev := time.Date(lastOfPrev.Year(), lastOfPrev.Month(), 1, 0, 0, 0, 0, today.Location())
		return DateRange{Start: firstOfPrev, End: lastOfPrev}, true

	case strings.Contains(lower, "this month"):
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		return DateRange{Start: first, End: today}, true

	case strings.Contains(lower, "last year"), strings.Contains(lower, "previous year"):
		year := today.Year() - 1
		return DateRange{
			Start: time.Date(year, time.January, 1, 0, 0, 0, 0, today.Location()),
			End:   time.Date(year, time.December, 31, 0, 0, 0, 0, today.Location()),
		}, true

	case strings.Contains(lower, "this year"):
		first := time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, today.Location())
		return DateRange{Start: first, End: today}, true
	}

	if m := isoRangeRe.FindStringSubmatch(text); m != nil {
		start, err1 := time.Parse(isoDate, m[1])
		end, err2 := time.Parse(isoDate, m[2])
		if err1 == nil && err2 == nil && !end.Before(start) {
			return DateRange{Start: start, End: end}, true
		}
	}

	if m := monthRangeRe.FindStringSubmatch(text); m != nil {
		start, ok1 := parseMonthDay(m[1], m[2], today.Year())
		end, ok2 := parseMonthDay(m[3], m[4], today.Year())
		if ok1 && ok2 && !end.Before(start) {
			return DateRange{Start: start, End: end}, true
		}
	}

	if m := isoSingleRe.FindStringSubmatch(text); m != nil {
		if d, err := time.Parse(isoDate, m[1]); err == nil {
			return DateRange{Start: d, End: d}, true
		}
	}

	return DateRange{}, false
}

func parseMonthDay(month, day string, year int) (time.Time, bool) {
	for _, layout := range []string{"January 2 2006", "Jan 2 2006"} {
		if t, err := time.Parse(layout, month+" "+day+" "+itoa(year)); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func itoa(n int) string {
	return time.Date(n, 1, 1, 0, 0, 0, 0, time.UTC).Format("2006")
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// startOfWeek returns the Monday of t's week.
func startOfWeek(t time.Time) time.Time {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return t.AddDate(0, 0, -(weekday - 1))
}
