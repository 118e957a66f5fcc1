package services

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/samuelogino/taskpay/internal/models"
	"github.com/shopspring/decimal"
)

const (
	XPPerApprovedTask = 100
	XPPerLevel        = 1000
)

// Money columns hold at most 99,999,999.99.
const (
	maxAmountIntegerDigits     = 8
	maxAmountSignificantDigits = 10
	minAmountExponent          = -maxAmountSignificantDigits
)

var errAmountOutOfRange = errors.New("amount out of range")

// ApplyApproval credits one approved task to progress and rolls level XP
// over into whole levels.
func ApplyApproval(progress models.Progress, now time.Time) models.Progress {
	progress.CumulativeXP += XPPerApprovedTask
	progress.LevelXP += XPPerApprovedTask
	if progress.Level < 1 {
		progress.Level = 1
	}
	for progress.LevelXP >= XPPerLevel {
		progress.Level++
		progress.LevelXP -= XPPerLevel
	}
	approvedAt := now.UTC()
	progress.LastTaskAt = &approvedAt
	return progress
}

// LevelPercent is how far through the current level progress is, 0 to 100.
func LevelPercent(progress models.Progress) int {
	percent := progress.LevelXP * 100 / XPPerLevel
	if percent > 100 {
		return 100
	}
	if percent < 0 {
		return 0
	}
	return percent
}

type Streak struct {
	Active bool
	Days   int
}

// ComputeStreak counts consecutive UTC days with at least one approval,
// ending today or yesterday.
func ComputeStreak(approvedAt []time.Time, now time.Time) Streak {
	seen := make(map[time.Time]bool)
	var days []time.Time
	for _, moment := range approvedAt {
		day := truncateToDay(moment)
		if !seen[day] {
			seen[day] = true
			days = append(days, day)
		}
	}
	if len(days) == 0 {
		return Streak{}
	}

	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })

	today := truncateToDay(now)
	yesterday := today.AddDate(0, 0, -1)
	if !days[0].Equal(today) && !days[0].Equal(yesterday) {
		return Streak{}
	}

	count := 1
	for i := 1; i < len(days); i++ {
		if !days[i-1].AddDate(0, 0, -1).Equal(days[i]) {
			break
		}
		count++
	}
	return Streak{Active: true, Days: count}
}

func truncateToDay(moment time.Time) time.Time {
	utc := moment.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseMoney reads a form amount that may use a comma as decimal separator.
// Unparsable, negative or out of range input yields zero.
func ParseMoney(raw string) decimal.Decimal {
	amount, err := parseAmount(raw)
	if err != nil || amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}

func parseAmount(raw string) (decimal.Decimal, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	amount, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, err
	}
	// Checked on the coefficient so that huge exponents are never expanded.
	coefficient := amount.Coefficient()
	digits := len(coefficient.Abs(coefficient).String())
	exponent := int(amount.Exponent())
	if digits > maxAmountSignificantDigits || exponent < minAmountExponent || digits+exponent > maxAmountIntegerDigits {
		return decimal.Zero, errAmountOutOfRange
	}
	return amount.Round(2), nil
}
