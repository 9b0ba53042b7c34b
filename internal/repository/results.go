package repository

import (
	"context"
	"fmt"

	"github.com/lasthand-os/lasthand-server/internal/settlement"
)

// ResultRepository persists settled match outcomes. It is the
// append-only sink behind settlement.ResultSink: results and their
// round actions are inserted once and never updated.
type ResultRepository struct {
	db *DB
}

// NewResultRepository creates a result repository.
func NewResultRepository(db *DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// SaveResult inserts the match result and its full round history in
// one transaction.
func (r *ResultRepository) SaveResult(ctx context.Context, result settlement.MatchResult) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin result transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO match_results (match_id, winner_id, winner_payout, final_state_hash, settlement_tx_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (match_id) DO NOTHING`,
		result.MatchID, result.WinnerID, result.WinnerPayout, result.FinalStateHash, result.Receipt.TxID,
	)
	if err != nil {
		return fmt.Errorf("insert match result: %w", err)
	}

	for _, round := range result.Rounds {
		for _, a := range round.Actions {
			_, err = tx.Exec(ctx, `
				INSERT INTO round_actions (match_id, round_number, player_id, card_id, target_id, is_timeout, is_forfeit, submitted_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				result.MatchID, round.Round, a.PlayerID, nullable(a.Card.ID), nullable(a.TargetID), a.Timeout, a.Forfeit, a.SubmittedAt,
			)
			if err != nil {
				return fmt.Errorf("insert round action: %w", err)
			}
		}
	}

	return tx.Commit(ctx)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
