package db

import (
	"context"
)

const insertBattle = `
INSERT OR IGNORE INTO battles (battle_id, occurred_at, location, created_at)
VALUES (?, ?, ?, ?)
`

type InsertBattleParams struct {
	BattleID   int64
	OccurredAt int64
	Location   string
	CreatedAt  int64
}

// InsertBattle returns the number of inserted rows; 0 means the battle was
// already stored.
func (q *Queries) InsertBattle(ctx context.Context, arg InsertBattleParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, insertBattle,
		arg.BattleID,
		arg.OccurredAt,
		arg.Location,
		arg.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const insertContribution = `
INSERT INTO contributions (id, battle_id, player, total)
VALUES (?, ?, ?, ?)
`

type InsertContributionParams struct {
	ID       string
	BattleID int64
	Player   string
	Total    int64
}

func (q *Queries) InsertContribution(ctx context.Context, arg InsertContributionParams) error {
	_, err := q.db.ExecContext(ctx, insertContribution,
		arg.ID,
		arg.BattleID,
		arg.Player,
		arg.Total,
	)
	return err
}

const insertContributionAmount = `
INSERT INTO contribution_amounts (contribution_id, label, classified, amount)
VALUES (?, ?, ?, ?)
`

type InsertContributionAmountParams struct {
	ContributionID string
	Label          string
	Classified     bool
	Amount         int64
}

func (q *Queries) InsertContributionAmount(ctx context.Context, arg InsertContributionAmountParams) error {
	_, err := q.db.ExecContext(ctx, insertContributionAmount,
		arg.ContributionID,
		arg.Label,
		arg.Classified,
		arg.Amount,
	)
	return err
}

const listBattleIDs = `
SELECT battle_id FROM battles ORDER BY battle_id
`

func (q *Queries) ListBattleIDs(ctx context.Context) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx, listBattleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []int64
	for rows.Next() {
		var battleID int64
		if err := rows.Scan(&battleID); err != nil {
			return nil, err
		}
		items = append(items, battleID)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listContributions = `
SELECT c.id, c.battle_id, c.player, c.total, b.occurred_at, b.location
FROM contributions c
JOIN battles b ON b.battle_id = c.battle_id
ORDER BY c.battle_id, c.player
`

type ListContributionsRow struct {
	ID         string
	BattleID   int64
	Player     string
	Total      int64
	OccurredAt int64
	Location   string
}

func (q *Queries) ListContributions(ctx context.Context) ([]ListContributionsRow, error) {
	rows, err := q.db.QueryContext(ctx, listContributions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListContributionsRow
	for rows.Next() {
		var i ListContributionsRow
		if err := rows.Scan(
			&i.ID,
			&i.BattleID,
			&i.Player,
			&i.Total,
			&i.OccurredAt,
			&i.Location,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listContributionAmounts = `
SELECT contribution_id, label, classified, amount
FROM contribution_amounts
ORDER BY contribution_id, classified DESC, label
`

type ContributionAmount struct {
	ContributionID string
	Label          string
	Classified     bool
	Amount         int64
}

func (q *Queries) ListContributionAmounts(ctx context.Context) ([]ContributionAmount, error) {
	rows, err := q.db.QueryContext(ctx, listContributionAmounts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ContributionAmount
	for rows.Next() {
		var i ContributionAmount
		if err := rows.Scan(
			&i.ContributionID,
			&i.Label,
			&i.Classified,
			&i.Amount,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countBattles = `
SELECT COUNT(*) FROM battles
`

func (q *Queries) CountBattles(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countBattles)
	var count int64
	err := row.Scan(&count)
	return count, err
}
