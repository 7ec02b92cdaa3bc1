// Package report publishes aggregate snapshots: a summary in the log and a
// JSON document on disk.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"battle-tracker/internal/config"
	"battle-tracker/internal/domain"

	"github.com/rs/zerolog"
)

type Reporter struct {
	path   string
	logger zerolog.Logger
}

func NewReporter(cfg *config.Config, logger zerolog.Logger) *Reporter {
	return &Reporter{path: cfg.ReportPath, logger: logger}
}

// Standing is one row of the leaderboard, ordered by grand total.
type Standing struct {
	Player     string `json:"player"`
	Battles    int    `json:"battles"`
	GrandTotal int64  `json:"grand_total"`
}

func Leaderboard(snap domain.Snapshot) []Standing {
	rows := make([]Standing, 0, len(snap.Players))
	for name, p := range snap.Players {
		rows = append(rows, Standing{Player: name, Battles: p.BattlesCount, GrandTotal: p.GrandTotal})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].GrandTotal != rows[j].GrandTotal {
			return rows[i].GrandTotal > rows[j].GrandTotal
		}
		return rows[i].Player < rows[j].Player
	})
	return rows
}

func (r *Reporter) Report(ctx context.Context, snap domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	board := Leaderboard(snap)
	evt := r.logger.Info().
		Int("processed", snap.ProcessedCount).
		Int("players", len(snap.Players))
	if len(board) > 0 {
		evt = evt.Str("top_player", board[0].Player).Int64("top_total", board[0].GrandTotal)
	}
	evt.Msg("resource report")

	if r.path == "" {
		return nil
	}
	if err := writeJSON(r.path, snap); err != nil {
		return err
	}
	r.logger.Debug().Str("path", r.path).Msg("report written")
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace report: %w", err)
	}
	return nil
}
