package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/lasthand-os/lasthand-server/internal/identity"
)

// ProfileRepository stores lifetime player stats, updated once per
// match at settlement.
type ProfileRepository struct {
	db *DB
}

// NewProfileRepository creates a profile repository.
func NewProfileRepository(db *DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Get loads a player profile.
func (r *ProfileRepository) Get(ctx context.Context, playerID string) (identity.Profile, error) {
	var p identity.Profile
	err := r.db.Pool().QueryRow(ctx, `
		SELECT player_id, display_name, total_matches, wins, losses, total_earnings, total_spent, auto_fold
		FROM profiles WHERE player_id = $1`, playerID,
	).Scan(&p.PlayerID, &p.DisplayName, &p.TotalMatches, &p.Wins, &p.Losses,
		&p.TotalEarnings, &p.TotalSpent, &p.Preferences.AutoFold)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return identity.Profile{}, fmt.Errorf("profile %s: not found", playerID)
		}
		return identity.Profile{}, fmt.Errorf("load profile: %w", err)
	}
	return p, nil
}

// RecordMatch upserts a player's stats after settlement.
func (r *ProfileRepository) RecordMatch(ctx context.Context, playerID string, won bool, earnings, spent int64) error {
	wins, losses := 0, 1
	if won {
		wins, losses = 1, 0
	}

	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO profiles (player_id, display_name, total_matches, wins, losses, total_earnings, total_spent)
		VALUES ($1, '', 1, $2, $3, $4, $5)
		ON CONFLICT (player_id) DO UPDATE SET
			total_matches  = profiles.total_matches + 1,
			wins           = profiles.wins + $2,
			losses         = profiles.losses + $3,
			total_earnings = profiles.total_earnings + $4,
			total_spent    = profiles.total_spent + $5`,
		playerID, wins, losses, earnings, spent,
	)
	if err != nil {
		return fmt.Errorf("record match for %s: %w", playerID, err)
	}
	return nil
}
