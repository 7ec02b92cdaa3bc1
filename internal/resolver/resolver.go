// Package resolver picks the battle id a polling run starts from.
package resolver

import (
	"bufio"
	"context"
	"os"

	"battle-tracker/internal/config"
	"battle-tracker/internal/constants"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// Checkpoints is the read side of the checkpoint store.
type Checkpoints interface {
	Load() (int64, bool)
}

// ProbeFunc reports whether id currently resolves to a battle. It must not
// record anything about the battle.
type ProbeFunc func(ctx context.Context, id int64) bool

type Resolver struct {
	explicit    int64
	origin      int64
	window      int
	logFile     string
	checkpoints Checkpoints
	probe       ProbeFunc
	logger      zerolog.Logger
}

func New(cfg *config.Config, checkpoints Checkpoints, probe ProbeFunc, logger zerolog.Logger) *Resolver {
	return &Resolver{
		explicit:    cfg.StartBattleID,
		origin:      cfg.OriginBattleID,
		window:      cfg.ProbeWindow,
		logFile:     cfg.LogFile,
		checkpoints: checkpoints,
		probe:       probe,
		logger:      logger,
	}
}

// Resolve applies, in order: the configured start id, checkpoint+1, the last
// merged id found in the log file +1, and finally a forward probe from the
// origin.
func (r *Resolver) Resolve(ctx context.Context) (int64, error) {
	if r.explicit > 0 {
		r.logger.Info().Int64("battle_id", r.explicit).Str("source", "explicit").Msg("start id resolved")
		return r.explicit, nil
	}

	if r.checkpoints != nil {
		if id, ok := r.checkpoints.Load(); ok {
			r.logger.Info().Int64("battle_id", id+1).Str("source", "checkpoint").Msg("start id resolved")
			return id + 1, nil
		}
	}

	if r.logFile != "" {
		if id, ok := LastMergedFromLog(r.logFile, constants.ResumeLogLines); ok {
			r.logger.Info().Int64("battle_id", id+1).Str("source", "log").Msg("start id resolved")
			return id + 1, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	id := Probe(ctx, r.origin, r.window, r.probe)
	r.logger.Info().Int64("battle_id", id).Str("source", "probe").Int64("origin", r.origin).Msg("start id resolved")
	return id, ctx.Err()
}

// Probe walks window consecutive ids from origin. It returns the second
// confirmed id as soon as it is seen, else the only confirmed id, else origin.
func Probe(ctx context.Context, origin int64, window int, probe ProbeFunc) int64 {
	if probe == nil {
		return origin
	}

	var found []int64
	for i := 0; i < window; i++ {
		if ctx.Err() != nil {
			break
		}
		id := origin + int64(i)
		if !probe(ctx, id) {
			continue
		}
		found = append(found, id)
		if len(found) >= 2 {
			return id
		}
	}

	if len(found) == 1 {
		return found[0]
	}
	return origin
}

// LastMergedFromLog scans the trailing maxLines JSON log lines of path for
// the most recent merged battle id.
func LastMergedFromLog(path string, maxLines int) (int64, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	ring := make([]string, 0, maxLines)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(ring) == maxLines {
			ring = ring[1:]
		}
		ring = append(ring, scanner.Text())
	}

	for i := len(ring) - 1; i >= 0; i-- {
		line := ring[i]
		if !gjson.Valid(line) {
			continue
		}
		fields := gjson.GetMany(line, zerolog.MessageFieldName, "battle_id")
		if fields[0].String() != constants.LogMsgBattleMerged || fields[1].Type != gjson.Number {
			continue
		}
		if id := fields[1].Int(); id > 0 {
			return id, true
		}
	}
	return 0, false
}
