package services

import (
	"errors"
	"fmt"
)

// Kind classifies an engine failure for callers. Only KindBusy is worth
// retrying unchanged.
type Kind string

const (
	KindValidation        Kind = "validation_error"
	KindPrecondition      Kind = "precondition_failed"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindCapacity          Kind = "capacity_exceeded"
	KindBusy              Kind = "busy"
	KindInconsistent      Kind = "inconsistent"
	KindNotFound          Kind = "not_found"
	KindForbidden         Kind = "forbidden"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrInvalidRequest         = newError(KindValidation, "invalid_request", "invalid request")
	ErrInvalidAmount          = newError(KindValidation, "invalid_amount", "amount must be positive")
	ErrReasonRequired         = newError(KindValidation, "reason_required", "a reason is required")
	ErrInvalidTeam            = newError(KindValidation, "invalid_team", "team members must be distinct and fill the team exactly")
	ErrInvalidTeamName        = newError(KindValidation, "invalid_team_name", "invalid team name")
	ErrInvalidSplit           = newError(KindValidation, "invalid_split", "commission percentages must be non-negative and sum to 100")
	ErrInvalidDistribution    = newError(KindValidation, "invalid_distribution", "prize distribution exceeds the prize pool")
	ErrInvalidPositions       = newError(KindValidation, "invalid_positions", "winner positions must be unique and start at 1")
	ErrUnknownParticipant     = newError(KindValidation, "unknown_participant", "winner is not registered in this tournament")
	ErrInvalidUPI             = newError(KindValidation, "invalid_upi", "invalid UPI id")
	ErrBelowMinimumWithdrawal = newError(KindValidation, "below_minimum_withdrawal", "amount is below the minimum withdrawal")
	ErrInvalidTournament      = newError(KindValidation, "invalid_tournament", "invalid tournament settings")

	ErrTournamentNotFound = newError(KindNotFound, "tournament_not_found", "tournament not found")
	ErrRequestNotFound    = newError(KindNotFound, "request_not_found", "request not found")

	ErrNotCreator = newError(KindForbidden, "not_tournament_creator", "only the tournament creator can do this")

	ErrRegistrationClosed     = newError(KindPrecondition, "registration_closed", "registration is closed")
	ErrLockWindowActive       = newError(KindPrecondition, "lock_window_active", "registration is locked shortly before the start")
	ErrAlreadyJoined          = newError(KindPrecondition, "already_joined", "already registered for this tournament")
	ErrTeamNameTaken          = newError(KindPrecondition, "team_name_taken", "team name is already used in this tournament")
	ErrWrongMode              = newError(KindPrecondition, "wrong_mode", "this join is not allowed for the tournament mode")
	ErrNotRegistered          = newError(KindPrecondition, "not_registered", "not registered for this tournament")
	ErrExitWindowClosed       = newError(KindPrecondition, "exit_window_closed", "it is too close to the start to exit")
	ErrTeamExitNotAllowed     = newError(KindPrecondition, "team_exit_not_allowed", "team registrations cannot exit")
	ErrInvalidStatus          = newError(KindPrecondition, "invalid_status", "the tournament is not in a state that allows this")
	ErrWinnersAlreadyDeclared = newError(KindPrecondition, "winners_already_declared", "winners have already been declared")
	ErrDisputeWindowActive    = newError(KindPrecondition, "dispute_window_active", "winners can be declared once the dispute window ends")
	ErrAlreadyResolved        = newError(KindPrecondition, "already_resolved", "the request has already been reviewed")

	ErrTournamentFull    = newError(KindCapacity, "tournament_full", "tournament is full")
	ErrInsufficientFunds = newError(KindInsufficientFunds, "insufficient_funds", "insufficient balance")
	ErrBusy              = newError(KindBusy, "busy", "the tournament is busy, try again")
	ErrInconsistent      = newError(KindInconsistent, "inconsistent", "stored amounts do not add up")
)

// detail wraps a sentinel with context; errors.Is still matches the sentinel.
func detail(sentinel *Error, format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...)
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func Retryable(err error) bool {
	return KindOf(err) == KindBusy
}
