package search

import "time"

// Date buckets accepted in search and listing filters.
const (
	BucketToday       = "today"
	BucketTomorrow    = "tomorrow"
	BucketThisWeek    = "this_week"
	BucketThisWeekend = "this_weekend"
	BucketNextWeek    = "next_week"
	BucketThisMonth   = "this_month"
)

// bucketRange resolves a named bucket into a [from, to) interval anchored at
// now. Unknown or empty buckets resolve to no constraint.
func bucketRange(now time.Time, bucket string) (*time.Time, *time.Time) {
	day := now.Truncate(24 * time.Hour)

	switch bucket {
	case BucketToday:
		return span(day, day.AddDate(0, 0, 1))
	case BucketTomorrow:
		return span(day.AddDate(0, 0, 1), day.AddDate(0, 0, 2))
	case BucketThisWeek:
		start := startOfWeek(day)
		return span(start, start.AddDate(0, 0, 7))
	case BucketThisWeekend:
		sat := startOfWeek(day).AddDate(0, 0, 5)
		return span(sat, sat.AddDate(0, 0, 2))
	case BucketNextWeek:
		start := startOfWeek(day).AddDate(0, 0, 7)
		return span(start, start.AddDate(0, 0, 7))
	case BucketThisMonth:
		start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
		return span(start, start.AddDate(0, 1, 0))
	default:
		return nil, nil
	}
}

// startOfWeek returns the Monday on or before the given day.
func startOfWeek(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func span(from, to time.Time) (*time.Time, *time.Time) {
	return &from, &to
}
