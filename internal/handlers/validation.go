package handlers

import (
	"errors"
	"strings"

	"tourney/internal/money"

	"github.com/shopspring/decimal"
)

var (
	errInvalidAmount    = errors.New("invalid amount")
	errInvalidPercent   = errors.New("invalid percentage")
	errInvalidDirection = errors.New("direction must be credit or debit")
)

var hundred = decimal.NewFromInt(100)

func parseAmountMinor(raw string) (int64, error) {
	amount, err := money.ParseMinor(raw)
	if err != nil || amount <= 0 {
		return 0, errInvalidAmount
	}
	return amount, nil
}

// parseFeeMinor accepts zero; an empty string means a free tournament.
func parseFeeMinor(raw string) (int64, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	amount, err := money.ParseMinor(raw)
	if err != nil || amount < 0 {
		return 0, errInvalidAmount
	}
	return amount, nil
}

func parsePercent(raw string) (decimal.Decimal, error) {
	pct, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || pct.IsNegative() || pct.GreaterThan(hundred) {
		return decimal.Zero, errInvalidPercent
	}
	if pct.Exponent() < -2 {
		return decimal.Zero, errInvalidPercent
	}
	return pct, nil
}

// signedAdjustment turns an admin amount and direction into a signed delta.
func signedAdjustment(rawAmount, direction string) (int64, error) {
	amount, err := parseAmountMinor(rawAmount)
	if err != nil {
		return 0, err
	}
	switch strings.ToLower(strings.TrimSpace(direction)) {
	case "credit":
		return amount, nil
	case "debit":
		return -amount, nil
	}
	return 0, errInvalidDirection
}
