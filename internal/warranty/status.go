package warranty

import (
	"fmt"
	"math"
	"time"
)

// Status is an item's temporal bucket, always recomputed from wall-clock
// time and never stored.
type Status string

const (
	// StatusActive means the coverage end lies beyond the reminder window.
	StatusActive Status = "active"
	// StatusExpiringSoon means the remaining days fall within the reminder window.
	StatusExpiringSoon Status = "expiringSoon"
	// StatusExpired means the coverage end has passed.
	StatusExpired Status = "expired"
)

// recentWindow is how long an item counts as newly created.
const recentWindow = 36 * time.Hour

// DeriveStatus computes the item's bucket at the given instant. An absent or
// unparseable end date yields StatusActive (fail-open).
func DeriveStatus(item Item, now time.Time) Status {
	days, ok := daysRemaining(item.EndDate, now)
	if !ok {
		return StatusActive
	}
	window := item.RemindDays
	if window == 0 {
		window = defaultRemindDays
	}
	switch {
	case days <= 0:
		return StatusExpired
	case days <= window:
		return StatusExpiringSoon
	default:
		return StatusActive
	}
}

// DaysRemainingLabel renders the remaining coverage as "Expired" or a
// zero-padded day count such as "07 D". An absent or unparseable end date
// yields the empty string.
func DaysRemainingLabel(item Item, now time.Time) string {
	days, ok := daysRemaining(item.EndDate, now)
	if !ok {
		return ""
	}
	if days <= 0 {
		return "Expired"
	}
	return fmt.Sprintf("%02d D", days)
}

// IsRecentlyCreated reports whether the item was created within the last
// 36 hours. Presentation only, not a lifecycle state.
func IsRecentlyCreated(item Item, now time.Time) bool {
	created, err := parseInstant(item.CreatedAt)
	if err != nil {
		return false
	}
	return now.Sub(created) < recentWindow
}

func daysRemaining(endDate string, now time.Time) (int, bool) {
	end, err := parseInstant(endDate)
	if err != nil {
		return 0, false
	}
	return int(math.Ceil(end.Sub(now).Hours() / 24)), true
}

// computeEndDate derives the inclusive coverage end: buy date plus the
// period, minus one day, clamped so the end never precedes the buy date.
func computeEndDate(buyDate time.Time, value int, unit PeriodUnit) time.Time {
	end := buyDate
	switch unit {
	case PeriodUnitDays:
		end = end.AddDate(0, 0, value-1)
	case PeriodUnitMonths:
		end = end.AddDate(0, value, -1)
	default:
		end = end.AddDate(value, 0, -1)
	}
	if end.Before(buyDate) {
		return buyDate
	}
	return end
}
