package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultStreakWindowDays = 7
	MaxStreakWindowDays     = 366
)

// ReferenceZone is the fixed UTC+7 zone calendar days are counted in.
var ReferenceZone = time.FixedZone("WIB", 7*60*60)

// Clock abstracts time for the statistics engine.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// CalendarDay returns the civil date of t in loc, as midnight UTC.
func CalendarDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// StartOfDay returns the instant a civil date begins in loc.
func StartOfDay(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// DaysBetween counts whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(CalendarDay(b, time.UTC).Sub(CalendarDay(a, time.UTC)).Hours() / 24)
}

// NextCachedStreak advances the stored streak counter for a deposit made today.
// A deposit on the same day leaves it unchanged, a deposit the day after extends it,
// anything else restarts at one.
func NextCachedStreak(current int, lastDeposit *time.Time, today time.Time) int {
	if lastDeposit == nil {
		return 1
	}
	switch DaysBetween(*lastDeposit, today) {
	case 0:
		if current < 1 {
			return 1
		}
		return current
	case 1:
		return current + 1
	default:
		return 1
	}
}

// DailyAverage divides total by the account age in days, with a minimum divisor of one.
func DailyAverage(total decimal.Decimal, accountCreated *time.Time, today time.Time) decimal.Decimal {
	days := 1
	if accountCreated != nil {
		if age := DaysBetween(*accountCreated, today); age > days {
			days = age
		}
	}
	return total.DivRound(decimal.NewFromInt(int64(days)), MoneyScale)
}

// StreakDay describes one calendar day of a streak window.
type StreakDay struct {
	Date           time.Time
	HasDeposit     bool
	DepositAmount  *decimal.Decimal
	IsToday        bool
	IsPartOfStreak bool
}

// StreakWindow is the recomputed streak view over the last N days.
type StreakWindow struct {
	CurrentStreak int
	Days          []StreakDay
}

// BuildStreakWindow recomputes the streak from raw deposits. Deposits are bucketed by
// calendar day in loc; the streak counts consecutive days with a deposit backwards from
// today and stops at the first gap. Only days inside the window are considered.
func BuildStreakWindow(deposits []Activity, now time.Time, loc *time.Location, windowDays int) StreakWindow {
	if windowDays <= 0 {
		windowDays = DefaultStreakWindowDays
	}
	if windowDays > MaxStreakWindowDays {
		windowDays = MaxStreakWindowDays
	}

	today := CalendarDay(now, loc)
	start := today.AddDate(0, 0, -(windowDays - 1))

	totals := make(map[time.Time]decimal.Decimal)
	for _, d := range deposits {
		if d.Type != ActivityDeposit {
			continue
		}
		day := CalendarDay(d.CreatedAt, loc)
		if day.Before(start) || day.After(today) {
			continue
		}
		totals[day] = totals[day].Add(d.Amount)
	}

	streak := 0
	for check := today; ; check = check.AddDate(0, 0, -1) {
		if _, ok := totals[check]; !ok {
			break
		}
		streak++
	}

	days := make([]StreakDay, 0, windowDays)
	for i := 0; i < windowDays; i++ {
		date := start.AddDate(0, 0, i)
		amount, has := totals[date]
		day := StreakDay{
			Date:           date,
			HasDeposit:     has,
			IsToday:        date.Equal(today),
			IsPartOfStreak: has && DaysBetween(date, today) < streak,
		}
		if has {
			a := amount
			day.DepositAmount = &a
		}
		days = append(days, day)
	}

	return StreakWindow{CurrentStreak: streak, Days: days}
}
