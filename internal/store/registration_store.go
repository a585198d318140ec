package store

import (
	"context"

	"tourney/internal/models"
)

type RegistrationStore struct {
	db DB
}

func NewRegistrationStore(db DB) *RegistrationStore {
	return &RegistrationStore{db: db}
}

// Create inserts the registration and all of its members. The unique
// (tournament_id, user_id) index on members rejects double registration.
func (s *RegistrationStore) Create(ctx context.Context, tx Execer, reg models.Registration) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO registrations (id, tournament_id, leader_id, team_name)
		VALUES ($1, $2, $3, $4)
	`, reg.ID, reg.TournamentID, reg.LeaderID, reg.TeamName); err != nil {
		return err
	}
	query := `
		INSERT INTO registration_members (
			registration_id, tournament_id, user_id, member_order, amount_paid,
			prize_share, organizer_share, platform_share, is_team_leader
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for _, m := range reg.Members {
		if _, err := tx.ExecContext(ctx, query,
			reg.ID, reg.TournamentID, m.UserID, m.MemberOrder, m.AmountPaid,
			m.PrizeShare, m.OrganizerShare, m.PlatformShare, m.IsTeamLeader,
		); err != nil {
			return err
		}
	}
	return nil
}

// GetByParticipant returns the registration that holds userID, with members.
func (s *RegistrationStore) GetByParticipant(ctx context.Context, tx Reader, tournamentID, userID string) (models.Registration, error) {
	var reg models.Registration
	err := tx.GetContext(ctx, &reg, `
		SELECT r.id, r.tournament_id, r.leader_id, r.team_name, r.created_at
		FROM registrations r
		JOIN registration_members m ON m.registration_id = r.id
		WHERE r.tournament_id = $1 AND m.user_id = $2
	`, tournamentID, userID)
	if err != nil {
		return models.Registration{}, err
	}
	if err := tx.SelectContext(ctx, &reg.Members, `
		SELECT registration_id, user_id, member_order, amount_paid, prize_share,
		       organizer_share, platform_share, is_team_leader
		FROM registration_members
		WHERE registration_id = $1
		ORDER BY member_order
	`, reg.ID); err != nil {
		return models.Registration{}, err
	}
	return reg, nil
}

// ListByTournament returns registrations in join order, members in member order.
func (s *RegistrationStore) ListByTournament(ctx context.Context, tx Selecter, tournamentID string) ([]models.Registration, error) {
	var regs []models.Registration
	if err := tx.SelectContext(ctx, &regs, `
		SELECT id, tournament_id, leader_id, team_name, created_at
		FROM registrations
		WHERE tournament_id = $1
		ORDER BY created_at, id
	`, tournamentID); err != nil {
		return nil, err
	}
	var members []models.RegistrationMember
	if err := tx.SelectContext(ctx, &members, `
		SELECT registration_id, user_id, member_order, amount_paid, prize_share,
		       organizer_share, platform_share, is_team_leader
		FROM registration_members
		WHERE tournament_id = $1
		ORDER BY registration_id, member_order
	`, tournamentID); err != nil {
		return nil, err
	}
	byID := make(map[string]int, len(regs))
	for i := range regs {
		byID[regs[i].ID] = i
	}
	for _, m := range members {
		if i, ok := byID[m.RegistrationID]; ok {
			regs[i].Members = append(regs[i].Members, m)
		}
	}
	return regs, nil
}

func (s *RegistrationStore) TeamNameExists(ctx context.Context, tx Getter, tournamentID, teamName string) (bool, error) {
	var count int
	err := tx.GetContext(ctx, &count, `
		SELECT COUNT(1)
		FROM registrations
		WHERE tournament_id = $1 AND lower(team_name) = lower($2)
	`, tournamentID, teamName)
	return count > 0, err
}

func (s *RegistrationStore) Delete(ctx context.Context, tx Execer, registrationID string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM registration_members WHERE registration_id = $1`, registrationID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM registrations WHERE id = $1`, registrationID)
	return err
}
