package money

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrTooManyDecimals = errors.New("amount has too many decimal places")
)

var hundred = decimal.NewFromInt(100)

func ParseMinor(input string) (int64, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return 0, ErrInvalidAmount
	}
	sign := int64(1)
	switch trimmed[0] {
	case '-':
		sign = -1
		trimmed = trimmed[1:]
	case '+':
		trimmed = trimmed[1:]
	}
	parts := strings.SplitN(trimmed, ".", 2)
	wholePart := parts[0]
	if wholePart == "" {
		wholePart = "0"
	}
	if !isDigits(wholePart) {
		return 0, ErrInvalidAmount
	}
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if len(fracPart) > 2 {
		return 0, ErrTooManyDecimals
	}
	if fracPart != "" && !isDigits(fracPart) {
		return 0, ErrInvalidAmount
	}
	whole, err := strconv.ParseInt(wholePart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	frac := int64(0)
	if len(fracPart) == 1 {
		frac = int64(fracPart[0]-'0') * 10
	} else if len(fracPart) == 2 {
		value, err := strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return 0, ErrInvalidAmount
		}
		frac = value
	}
	minor := whole*100 + frac
	return sign * minor, nil
}

func FormatMinor(value int64) string {
	negative := value < 0
	if negative {
		value = -value
	}
	whole := value / 100
	frac := value % 100
	formatted := fmt.Sprintf("%d.%02d", whole, frac)
	if negative {
		return "-" + formatted
	}
	return formatted
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// PercentOf returns floor(amount * pct / 100).
func PercentOf(amount int64, pct decimal.Decimal) int64 {
	if amount <= 0 || pct.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	return decimal.NewFromInt(amount).Mul(pct).Div(hundred).Floor().IntPart()
}

// Split divides an entry fee into prize pool, organizer and platform shares.
// Both commission shares are floored and the prize pool takes the rest, so the
// three always sum to fee.
func Split(fee int64, organizerPct, platformPct decimal.Decimal) (prize, organizer, platform int64) {
	organizer = PercentOf(fee, organizerPct)
	platform = PercentOf(fee, platformPct)
	if organizer+platform > fee {
		platform = fee - organizer
	}
	return fee - organizer - platform, organizer, platform
}

// DivideEvenly splits amount into n floored parts; the remainder goes to the
// first part.
func DivideEvenly(amount int64, n int) []int64 {
	if n <= 0 {
		return nil
	}
	parts := make([]int64, n)
	base := amount / int64(n)
	for i := range parts {
		parts[i] = base
	}
	parts[0] += amount - base*int64(n)
	return parts
}

// ScaleDown scales every entry by limit/sum when the entries add up to more
// than limit. Entries are floored, so the result never exceeds limit.
func ScaleDown(entries map[int]int64, limit int64) map[int]int64 {
	scaled := make(map[int]int64, len(entries))
	var sum int64
	for position, amount := range entries {
		scaled[position] = amount
		sum += amount
	}
	if sum <= limit {
		return scaled
	}
	if limit <= 0 {
		for position := range scaled {
			scaled[position] = 0
		}
		return scaled
	}
	ratio := decimal.NewFromInt(limit)
	total := decimal.NewFromInt(sum)
	for position, amount := range scaled {
		scaled[position] = decimal.NewFromInt(amount).Mul(ratio).Div(total).Floor().IntPart()
	}
	return scaled
}
