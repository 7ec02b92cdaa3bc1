package service

import (
	"context"
	"fmt"
	"time"

	"battle-tracker/internal/api"
	"battle-tracker/internal/classifier"
	"battle-tracker/internal/config"
	"battle-tracker/internal/domain"
	"battle-tracker/internal/parser"

	"github.com/rs/zerolog"
)

type Fetcher interface {
	Fetch(ctx context.Context, battleID int64) api.FetchResult
}

type Merger interface {
	Merge(ctx context.Context, battleID int64, parsed *domain.ParsedBattle, yields map[string]domain.PlayerYield) (bool, error)
	Processed(battleID int64) bool
}

// BattleService runs one id through fetch, parse, classify and merge.
type BattleService struct {
	fetcher Fetcher
	merger  Merger
	timeout time.Duration
	logger  zerolog.Logger
}

func NewBattleService(cfg *config.Config, fetcher Fetcher, merger Merger, logger zerolog.Logger) *BattleService {
	return &BattleService{
		fetcher: fetcher,
		merger:  merger,
		timeout: cfg.FetchTimeout,
		logger:  logger,
	}
}

// Process never panics and never returns an error on its own; every outcome
// is reported in the result.
func (s *BattleService) Process(ctx context.Context, battleID int64) (result domain.ProcessResult) {
	result.BattleID = battleID

	defer func() {
		if r := recover(); r != nil {
			result.Status = domain.StatusMergeFailed
			result.Err = fmt.Errorf("processing battle %d panicked: %v", battleID, r)
		}
	}()

	if s.merger.Processed(battleID) {
		result.Status = domain.StatusDuplicate
		result.Outcome = domain.OutcomeSuccess
		return result
	}

	fetched := s.fetch(ctx, battleID)
	result.Outcome = fetched.Outcome
	result.StatusCode = fetched.StatusCode
	if fetched.Outcome != domain.OutcomeSuccess {
		result.Status = domain.StatusFetchFailed
		result.Err = fetched.Err
		return result
	}

	parsed, err := parser.Parse(fetched.Content)
	if err != nil {
		result.Status = domain.StatusParseFailed
		result.Err = err
		return result
	}
	parsed.Record.ID = battleID

	yields := classifier.Distribute(parsed.Participants, parsed.Pickups)

	s.logger.Debug().
		Int64("battle_id", battleID).
		Int("participants", len(parsed.Participants)).
		Int("pickups", len(parsed.Pickups)).
		Str("location", parsed.Record.Location).
		Msg("battle parsed")

	merged, err := s.merger.Merge(ctx, battleID, parsed, yields)
	if err != nil {
		result.Status = domain.StatusMergeFailed
		result.Err = err
		return result
	}
	if !merged {
		result.Status = domain.StatusDuplicate
		return result
	}

	result.Status = domain.StatusMerged
	return result
}

// Probe reports whether battleID currently resolves to a battle. The content
// is dropped; nothing is parsed or merged.
func (s *BattleService) Probe(ctx context.Context, battleID int64) bool {
	fetched := s.fetch(ctx, battleID)
	s.logger.Debug().
		Int64("battle_id", battleID).
		Str("outcome", string(fetched.Outcome)).
		Msg("probe")
	return fetched.Outcome == domain.OutcomeSuccess
}

// fetch is not interrupted by ctx cancellation; a stop request takes effect
// once the in-flight request completes or times out.
func (s *BattleService) fetch(ctx context.Context, battleID int64) api.FetchResult {
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	return s.fetcher.Fetch(fetchCtx, battleID)
}
