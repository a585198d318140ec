package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"tourney/internal/models"
	"tourney/internal/notify"
)

func TestDeclareWinnersPaysDistributionOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.state.fund("organizer", 1000)
	tournament := h.create(t, CreateTournamentRequest{
		IsGiveaway:        true,
		GiveawayPrizePool: 1000,
		PrizeDistribution: models.PrizeDistribution{1: 500, 2: 300, 3: 200},
	})
	for _, id := range []string{"userA", "userB", "userC"} {
		h.state.fund(id, 100)
		if _, err := h.engine.JoinTournament(ctx, tournament.ID, id); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	h.finish(t, tournament.ID, "organizer")

	result, err := h.engine.DeclareWinners(ctx, DeclareRequest{
		TournamentID: tournament.ID,
		OrganizerID:  "organizer",
		Positions:    map[string]int{"userA": 1, "userB": 2},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TotalDistributed != 800 {
		t.Fatalf("expected 800 distributed, got %d", result.TotalDistributed)
	}
	if h.state.balance("userA") != 500 || h.state.balance("userB") != 300 || h.state.balance("userC") != 0 {
		t.Fatalf("unexpected balances: A=%d B=%d C=%d", h.state.balance("userA"), h.state.balance("userB"), h.state.balance("userC"))
	}
	if h.state.balance("platform") != 300 {
		t.Fatalf("expected platform credited the giveaway fees, got %d", h.state.balance("platform"))
	}
	got := h.state.tournament(tournament.ID)
	if got.WinnersDeclaredAt == nil || got.CurrentPrizePool != 200 {
		t.Fatalf("unexpected tournament after declaration: %+v", got)
	}
	if kinds := h.notifier.kinds("userA"); kinds[len(kinds)-1] != notify.KindPrizeWon {
		t.Fatalf("expected prize notification, got %v", kinds)
	}

	_, err = h.engine.DeclareWinners(ctx, DeclareRequest{
		TournamentID: tournament.ID,
		OrganizerID:  "organizer",
		Positions:    map[string]int{"userC": 1},
	})
	if !errors.Is(err, ErrWinnersAlreadyDeclared) {
		t.Fatalf("expected ErrWinnersAlreadyDeclared, got %v", err)
	}
	if h.state.balance("userC") != 0 {
		t.Fatal("second declaration must not pay")
	}
	h.assertConserved(t)
}

func TestDeclareWinnersCreditsOrganizerCommissionAsPendingDhana(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	tournament := h.create(t, CreateTournamentRequest{EntryFee: 1000})
	for _, id := range []string{"a", "b"} {
		h.state.fund(id, 1000)
		if _, err := h.engine.JoinTournament(ctx, tournament.ID, id); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	h.finish(t, tournament.ID, "organizer")

	result, err := h.engine.DeclareWinners(ctx, DeclareRequest{
		TournamentID: tournament.ID,
		OrganizerID:  "organizer",
		Positions:    map[string]int{"a": 1, "b": 2},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// No distribution configured: 50% and 30% of the 1600 pool.
	if h.state.balance("a") != 800 || h.state.balance("b") != 480 {
		t.Fatalf("unexpected default payouts: a=%d b=%d", h.state.balance("a"), h.state.balance("b"))
	}
	if result.OrganizerEarnings != 200 || result.PlatformEarnings != 200 {
		t.Fatalf("unexpected commissions: %+v", result)
	}
	balance, err := h.engine.GetDhanaBalance(ctx, "organizer")
	if err != nil {
		t.Fatalf("dhana balance: %v", err)
	}
	if balance.Pending != 200 || balance.Available != 0 || balance.TotalEarned != 200 {
		t.Fatalf("expected pending commission, got %+v", balance)
	}
	if h.state.balance("platform") != 200 {
		t.Fatalf("expected platform commission, got %d", h.state.balance("platform"))
	}
	if h.state.balance("organizer") != 0 {
		t.Fatal("organizer commission must not reach the wallet directly")
	}
	h.assertConserved(t)
}

func TestDeclareWinnersGuards(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	tournament := h.create(t, CreateTournamentRequest{EntryFee: 100})
	h.state.fund("a", 100)
	if _, err := h.engine.JoinTournament(ctx, tournament.ID, "a"); err != nil {
		t.Fatalf("join: %v", err)
	}
	declare := func(organizer string, positions map[string]int) error {
		_, err := h.engine.DeclareWinners(ctx, DeclareRequest{TournamentID: tournament.ID, OrganizerID: organizer, Positions: positions})
		return err
	}

	if err := declare("organizer", map[string]int{"a": 1}); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus before completion, got %v", err)
	}
	if _, err := h.engine.StartTournament(ctx, tournament.ID, "organizer"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := h.engine.CompleteTournament(ctx, tournament.ID, "organizer"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := declare("organizer", map[string]int{"a": 1}); !errors.Is(err, ErrDisputeWindowActive) {
		t.Fatalf("expected ErrDisputeWindowActive, got %v", err)
	}
	h.clock.Advance(30 * time.Minute)
	if err := declare("a", map[string]int{"a": 1}); !errors.Is(err, ErrNotCreator) {
		t.Fatalf("expected ErrNotCreator, got %v", err)
	}
	if err := declare("organizer", map[string]int{"ghost": 1}); !errors.Is(err, ErrUnknownParticipant) {
		t.Fatalf("expected ErrUnknownParticipant, got %v", err)
	}
	if err := declare("organizer", map[string]int{"a": 0}); !errors.Is(err, ErrInvalidPositions) {
		t.Fatalf("expected ErrInvalidPositions, got %v", err)
	}
	if err := declare("organizer", nil); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if h.state.tournament(tournament.ID).WinnersDeclaredAt != nil {
		t.Fatal("rejected declarations must not mark the tournament")
	}
}

func TestDeclareWinnersRejectsPayoutAbovePool(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	tournament := h.create(t, CreateTournamentRequest{EntryFee: 1000, PrizeDistribution: models.PrizeDistribution{1: 5000}})
	h.state.fund("a", 1000)
	if _, err := h.engine.JoinTournament(ctx, tournament.ID, "a"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := h.engine.StartTournament(ctx, tournament.ID, "organizer"); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Push the distribution back above the pool to simulate a corrupted row.
	h.state.mu.Lock()
	stored := h.state.data.tournaments[tournament.ID]
	stored.PrizeDistribution = models.PrizeDistribution{1: 5000}
	h.state.data.tournaments[tournament.ID] = stored
	h.state.mu.Unlock()
	if _, err := h.engine.CompleteTournament(ctx, tournament.ID, "organizer"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	h.clock.Advance(time.Hour)

	_, err := h.engine.DeclareWinners(ctx, DeclareRequest{TournamentID: tournament.ID, OrganizerID: "organizer", Positions: map[string]int{"a": 1}})
	if !errors.Is(err, ErrInconsistent) {
		t.Fatalf("expected ErrInconsistent, got %v", err)
	}
	if h.state.balance("a") != 0 {
		t.Fatal("nothing may be paid when the declaration fails")
	}
}

func TestDeclareTeamWinnersSplitsEvenly(t *testing.T) {
	cases := []struct {
		name   string
		prize  int64
		leader int64
		member int64
	}{
		{"even", 400, 100, 100},
		{"remainder to leader", 401, 101, 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			tournament := h.create(t, CreateTournamentRequest{
				EntryFee:          200,
				Mode:              models.ModeSquad,
				Capacity:          8,
				PrizeDistribution: models.PrizeDistribution{1: tc.prize},
			})
			squad := []string{"lead", "m1", "m2", "m3"}
			for _, id := range squad {
				h.state.fund(id, 200)
			}
			if _, err := h.engine.JoinTeamTournament(ctx, TeamJoinRequest{
				TournamentID: tournament.ID,
				LeaderID:     "lead",
				MemberIDs:    squad[1:],
				TeamName:     "Night Wolves",
			}); err != nil {
				t.Fatalf("team join: %v", err)
			}
			h.finish(t, tournament.ID, "organizer")

			result, err := h.engine.DeclareWinners(ctx, DeclareRequest{
				TournamentID: tournament.ID,
				OrganizerID:  "organizer",
				Positions:    map[string]int{"night wolves": 1},
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.TotalDistributed != tc.prize || len(result.Payouts) != 4 {
				t.Fatalf("unexpected result: %+v", result)
			}
			if h.state.balance("lead") != tc.leader {
				t.Fatalf("expected leader %d, got %d", tc.leader, h.state.balance("lead"))
			}
			var total int64
			for _, id := range squad {
				total += h.state.balance(id)
				if id != "lead" && h.state.balance(id) != tc.member {
					t.Fatalf("expected %s %d, got %d", id, tc.member, h.state.balance(id))
				}
			}
			if total != tc.prize {
				t.Fatalf("expected %d credited in total, got %d", tc.prize, total)
			}
			h.assertConserved(t)
		})
	}
}

func TestDeclareTeamWinnersRejectsCaseVariantsOfOneTeam(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	tournament := h.create(t, CreateTournamentRequest{
		EntryFee:          1000,
		Mode:              models.ModeDuo,
		Capacity:          4,
		PrizeDistribution: models.PrizeDistribution{1: 300, 2: 100},
	})
	teams := map[string][]string{"Alpha": {"a", "b"}, "Beta": {"c", "d"}}
	for name, members := range teams {
		for _, id := range members {
			h.state.fund(id, 1000)
		}
		if _, err := h.engine.JoinTeamTournament(ctx, TeamJoinRequest{
			TournamentID: tournament.ID,
			LeaderID:     members[0],
			MemberIDs:    members[1:],
			TeamName:     name,
		}); err != nil {
			t.Fatalf("team join %s: %v", name, err)
		}
	}
	h.finish(t, tournament.ID, "organizer")

	_, err := h.engine.DeclareWinners(ctx, DeclareRequest{
		TournamentID: tournament.ID,
		OrganizerID:  "organizer",
		Positions:    map[string]int{"Alpha": 1, "ALPHA": 2},
	})
	if !errors.Is(err, ErrInvalidPositions) {
		t.Fatalf("expected ErrInvalidPositions, got %v", err)
	}
	for _, id := range []string{"a", "b", "c", "d"} {
		if h.state.balance(id) != 0 {
			t.Fatalf("expected no payout to %s, got %d", id, h.state.balance(id))
		}
	}
	if h.state.tournament(tournament.ID).WinnersDeclaredAt != nil {
		t.Fatal("failed declaration must leave winners undeclared")
	}

	result, err := h.engine.DeclareWinners(ctx, DeclareRequest{
		TournamentID: tournament.ID,
		OrganizerID:  "organizer",
		Positions:    map[string]int{"Alpha": 1, "beta": 2},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TotalDistributed != 400 || h.state.balance("c") != 50 || h.state.balance("d") != 50 {
		t.Fatalf("unexpected payout: %+v c=%d d=%d", result, h.state.balance("c"), h.state.balance("d"))
	}
	h.assertConserved(t)
}
