package validator

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	ErrInvalidUPI            = errors.New("invalid UPI id")
	ErrInvalidTeamName       = errors.New("team name must be 2-32 letters, digits, spaces, '-' or '_'")
	ErrReasonRequired        = errors.New("a reason is required")
	ErrReasonTooLong         = errors.New("reason is too long")
	ErrInvalidTournamentName = errors.New("tournament name must be 3-80 characters")
)

var (
	upiRegex      = regexp.MustCompile(`^[a-zA-Z0-9.\-_]{2,256}@[a-zA-Z]{2,64}$`)
	teamNameRegex = regexp.MustCompile(`^[\p{L}\p{N} _\-]{2,32}$`)
)

const maxReasonLength = 500

func ValidateUPI(upiID string) error {
	if !upiRegex.MatchString(strings.TrimSpace(upiID)) {
		return ErrInvalidUPI
	}
	return nil
}

func ValidateTeamName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed != name || !teamNameRegex.MatchString(trimmed) {
		return ErrInvalidTeamName
	}
	return nil
}

func ValidateReason(reason string) error {
	trimmed := strings.TrimSpace(reason)
	if trimmed == "" {
		return ErrReasonRequired
	}
	if utf8.RuneCountInString(trimmed) > maxReasonLength {
		return ErrReasonTooLong
	}
	return nil
}

func ValidateTournamentName(name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n < 3 || n > 80 {
		return ErrInvalidTournamentName
	}
	return nil
}
