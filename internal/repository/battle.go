package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"battle-tracker/internal/constants"
	"battle-tracker/internal/db"
	"battle-tracker/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// BattleRepository is the durable log of merged battles. The aggregator
// writes through it and rebuilds from it after a restart.
type BattleRepository struct {
	queries *db.Queries
	db      *sql.DB
	logger  zerolog.Logger
}

func NewBattleRepository(sqlDB *sql.DB, queries *db.Queries, logger zerolog.Logger) *BattleRepository {
	return &BattleRepository{
		queries: queries,
		db:      sqlDB,
		logger:  logger,
	}
}

// SaveBattle stores a battle and its per-player contributions in one
// transaction. It returns false if the battle id was already stored.
func (r *BattleRepository) SaveBattle(ctx context.Context, record domain.BattleRecord, contributions []domain.PlayerContribution) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)

	inserted, err := qtx.InsertBattle(ctx, db.InsertBattleParams{
		BattleID:   record.ID,
		OccurredAt: record.Timestamp.Unix(),
		Location:   record.Location,
		CreatedAt:  time.Now().Unix(),
	})
	if err != nil {
		return false, fmt.Errorf("failed to insert battle %d: %w", record.ID, err)
	}
	if inserted == 0 {
		r.logger.Debug().Int64("battle_id", record.ID).Msg("battle already stored")
		return false, nil
	}

	for _, pc := range contributions {
		id, err := gonanoid.New()
		if err != nil {
			return false, fmt.Errorf("failed to generate nanoid: %w", err)
		}

		if err := qtx.InsertContribution(ctx, db.InsertContributionParams{
			ID:       id,
			BattleID: record.ID,
			Player:   pc.Player,
			Total:    pc.Contribution.Total,
		}); err != nil {
			return false, fmt.Errorf("failed to insert contribution for %s: %w", pc.Player, err)
		}

		for _, kind := range domain.ResourceCatalog {
			amount, ok := pc.Contribution.Amounts[kind]
			if !ok {
				continue
			}
			if err := qtx.InsertContributionAmount(ctx, db.InsertContributionAmountParams{
				ContributionID: id,
				Label:          string(kind),
				Classified:     true,
				Amount:         amount,
			}); err != nil {
				return false, fmt.Errorf("failed to insert amount %s: %w", kind, err)
			}
		}

		labels := make([]string, 0, len(pc.Contribution.Unclassified))
		for label := range pc.Contribution.Unclassified {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			if err := qtx.InsertContributionAmount(ctx, db.InsertContributionAmountParams{
				ContributionID: id,
				Label:          label,
				Classified:     false,
				Amount:         pc.Contribution.Unclassified[label],
			}); err != nil {
				return false, fmt.Errorf("failed to insert unclassified amount %q: %w", label, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit battle %d: %w", record.ID, err)
	}
	return true, nil
}

func (r *BattleRepository) ListBattleIDs(ctx context.Context) ([]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	ids, err := r.queries.ListBattleIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list battle ids: %w", err)
	}
	return ids, nil
}

// ListContributions returns every stored contribution ordered by battle id.
func (r *BattleRepository) ListContributions(ctx context.Context) ([]domain.PlayerContribution, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	rows, err := r.queries.ListContributions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", err)
	}
	amounts, err := r.queries.ListContributionAmounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list contribution amounts: %w", err)
	}

	byID := make(map[string][]db.ContributionAmount, len(rows))
	for _, a := range amounts {
		byID[a.ContributionID] = append(byID[a.ContributionID], a)
	}

	result := make([]domain.PlayerContribution, 0, len(rows))
	for _, row := range rows {
		c := domain.BattleContribution{
			BattleID:     row.BattleID,
			Timestamp:    time.Unix(row.OccurredAt, 0).UTC(),
			Location:     row.Location,
			Amounts:      make(map[domain.ResourceKind]int64),
			Unclassified: make(map[string]int64),
			Total:        row.Total,
		}
		for _, a := range byID[row.ID] {
			if a.Classified {
				c.Amounts[domain.ResourceKind(a.Label)] = a.Amount
			} else {
				c.Unclassified[a.Label] = a.Amount
			}
		}
		result = append(result, domain.PlayerContribution{Player: row.Player, Contribution: c})
	}

	r.logger.Debug().Int("contributions", len(result)).Msg("contributions loaded")
	return result, nil
}

// Count returns the number of stored battles.
func (r *BattleRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	n, err := r.queries.CountBattles(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count battles: %w", err)
	}
	return n, nil
}
