// Package aggregator owns the per-player resource aggregates.
//
// The poller goroutine is the only writer. Any number of readers may call
// Snapshot concurrently; they always observe whole battles because a merge
// is applied under the write lock in one step.
package aggregator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"battle-tracker/internal/domain"

	"github.com/rs/zerolog"
)

// Store durably records merged battles. A nil Store keeps state in memory only.
type Store interface {
	SaveBattle(ctx context.Context, record domain.BattleRecord, contributions []domain.PlayerContribution) (bool, error)
	ListBattleIDs(ctx context.Context) ([]int64, error)
	ListContributions(ctx context.Context) ([]domain.PlayerContribution, error)
}

type Aggregator struct {
	mu        sync.RWMutex
	players   map[string]*domain.PlayerAggregate
	processed map[int64]struct{}
	store     Store
	now       func() time.Time
	logger    zerolog.Logger
}

func New(store Store, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		players:   make(map[string]*domain.PlayerAggregate),
		processed: make(map[int64]struct{}),
		store:     store,
		now:       time.Now,
		logger:    logger,
	}
}

// Merge applies one parsed battle. It returns false without touching state
// when battleID was merged before. The battle is persisted before memory is
// updated, so a store error leaves the aggregates unchanged.
func (a *Aggregator) Merge(ctx context.Context, battleID int64, parsed *domain.ParsedBattle, yields map[string]domain.PlayerYield) (bool, error) {
	if parsed == nil {
		return false, fmt.Errorf("battle %d: nothing to merge", battleID)
	}
	if a.Processed(battleID) {
		return false, nil
	}

	record := parsed.Record
	record.ID = battleID

	rows := make([]domain.PlayerContribution, 0, len(parsed.Participants))
	for _, player := range parsed.Participants {
		rows = append(rows, domain.PlayerContribution{
			Player:       player,
			Contribution: newContribution(record, yields[player]),
		})
	}

	if a.store != nil {
		saved, err := a.store.SaveBattle(ctx, record, rows)
		if err != nil {
			return false, fmt.Errorf("failed to persist battle %d: %w", battleID, err)
		}
		if !saved {
			a.mu.Lock()
			a.processed[battleID] = struct{}{}
			a.mu.Unlock()
			return false, nil
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, dup := a.processed[battleID]; dup {
		return false, nil
	}
	for _, row := range rows {
		a.apply(row)
	}
	a.processed[battleID] = struct{}{}
	return true, nil
}

func newContribution(record domain.BattleRecord, y domain.PlayerYield) domain.BattleContribution {
	c := domain.BattleContribution{
		BattleID:     record.ID,
		Timestamp:    record.Timestamp,
		Location:     record.Location,
		Amounts:      make(map[domain.ResourceKind]int64, len(y.Amounts)),
		Unclassified: make(map[string]int64, len(y.Unclassified)),
	}
	for kind, amount := range y.Amounts {
		if !kind.Valid() {
			continue
		}
		c.Amounts[kind] = amount
		c.Total += amount
	}
	for label, count := range y.Unclassified {
		c.Unclassified[label] = count
	}
	return c
}

// apply must be called with the write lock held.
func (a *Aggregator) apply(row domain.PlayerContribution) {
	p, ok := a.players[row.Player]
	if !ok {
		p = domain.NewPlayerAggregate()
		a.players[row.Player] = p
	}
	p.BattlesCount++
	p.History = append(p.History, row.Contribution)
	for kind, amount := range row.Contribution.Amounts {
		p.Totals[kind] += amount
	}
	for label := range row.Contribution.Unclassified {
		p.UnclassifiedLabels[label] = struct{}{}
	}
}

// Restore rebuilds state from the store. It is meant to run once before the
// poller starts and returns the number of battles known afterwards.
func (a *Aggregator) Restore(ctx context.Context) (int, error) {
	if a.store == nil {
		return 0, nil
	}

	ids, err := a.store.ListBattleIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to restore battle ids: %w", err)
	}
	rows, err := a.store.ListContributions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to restore contributions: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.players = make(map[string]*domain.PlayerAggregate)
	a.processed = make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		a.processed[id] = struct{}{}
	}
	for _, row := range rows {
		a.apply(row)
	}

	a.logger.Info().
		Int("battles", len(a.processed)).
		Int("players", len(a.players)).
		Msg("aggregates restored")
	return len(a.processed), nil
}

func (a *Aggregator) Processed(battleID int64) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.processed[battleID]
	return ok
}

// ProcessedIDs returns merged battle ids in ascending order.
func (a *Aggregator) ProcessedIDs() []int64 {
	a.mu.RLock()
	ids := make([]int64, 0, len(a.processed))
	for id := range a.processed {
		ids = append(ids, id)
	}
	a.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// GrandTotal sums the canonical kinds for player. Unclassified items never count.
func (a *Aggregator) GrandTotal(player string) int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.players[player]
	if !ok {
		return 0
	}
	return grandTotal(p.Totals)
}

func grandTotal(totals map[domain.ResourceKind]int64) int64 {
	var sum int64
	for _, kind := range domain.ResourceCatalog {
		sum += totals[kind]
	}
	return sum
}

// Snapshot returns a deep copy of the current state.
func (a *Aggregator) Snapshot() domain.Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	snap := domain.Snapshot{
		GeneratedAt:     a.now().UTC(),
		ProcessedCount:  len(a.processed),
		Players:         make(map[string]domain.PlayerView, len(a.players)),
		ResourceCatalog: append([]domain.ResourceKind(nil), domain.ResourceCatalog...),
	}
	for name, p := range a.players {
		snap.Players[name] = view(p)
	}
	return snap
}

func view(p *domain.PlayerAggregate) domain.PlayerView {
	v := domain.PlayerView{
		BattlesCount:       p.BattlesCount,
		Totals:             make(map[domain.ResourceKind]int64, len(domain.ResourceCatalog)),
		GrandTotal:         grandTotal(p.Totals),
		UnclassifiedLabels: make([]string, 0, len(p.UnclassifiedLabels)),
		History:            make([]domain.BattleContribution, len(p.History)),
	}
	for _, kind := range domain.ResourceCatalog {
		v.Totals[kind] = p.Totals[kind]
	}
	for label := range p.UnclassifiedLabels {
		v.UnclassifiedLabels = append(v.UnclassifiedLabels, label)
	}
	sort.Strings(v.UnclassifiedLabels)
	for i, c := range p.History {
		v.History[i] = copyContribution(c)
	}
	return v
}

func copyContribution(c domain.BattleContribution) domain.BattleContribution {
	out := c
	out.Amounts = make(map[domain.ResourceKind]int64, len(c.Amounts))
	for k, v := range c.Amounts {
		out.Amounts[k] = v
	}
	out.Unclassified = make(map[string]int64, len(c.Unclassified))
	for k, v := range c.Unclassified {
		out.Unclassified[k] = v
	}
	return out
}
