package server

import (
	"context"
	"encoding/json"
	"net/http"

	"battle-tracker/internal/domain"
	"battle-tracker/internal/poller"
	"battle-tracker/internal/report"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

type Snapshotter interface {
	Snapshot() domain.Snapshot
}

type StatusSource interface {
	Status() poller.Status
}

// BattleCounter reports how many battles are durably stored.
type BattleCounter interface {
	Count(ctx context.Context) (int64, error)
}

type statusResponse struct {
	poller.Status
	StoredBattles int64 `json:"stored_battles"`
}

// SnapshotServer exposes aggregate state as read-only JSON.
type SnapshotServer struct {
	ledger Snapshotter
	status StatusSource
	stored BattleCounter
	group  singleflight.Group
	logger zerolog.Logger
}

func NewSnapshotServer(ledger Snapshotter, status StatusSource, stored BattleCounter, logger zerolog.Logger) *SnapshotServer {
	return &SnapshotServer{ledger: ledger, status: status, stored: stored, logger: logger}
}

func (s *SnapshotServer) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /api/players/{name}", s.handlePlayer)
	mux.HandleFunc("GET /api/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

// snapshot coalesces concurrent copies so a burst of readers takes the read
// lock once.
func (s *SnapshotServer) snapshot() domain.Snapshot {
	v, _, _ := s.group.Do("snapshot", func() (any, error) {
		return s.ledger.Snapshot(), nil
	})
	return v.(domain.Snapshot)
}

func (s *SnapshotServer) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *SnapshotServer) handlePlayer(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	player, ok := s.snapshot().Players[name]
	if !ok {
		zerolog.Ctx(r.Context()).Debug().Str("player", name).Msg("player not found")
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "player not found"})
		return
	}
	writeJSON(w, http.StatusOK, player)
}

func (s *SnapshotServer) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, report.Leaderboard(s.snapshot()))
}

func (s *SnapshotServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Status: poller.Status{State: poller.StateIdle}}
	if s.status != nil {
		resp.Status = s.status.Status()
	}
	if s.stored != nil {
		n, err := s.stored.Count(r.Context())
		if err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to count stored battles")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "storage unavailable"})
			return
		}
		resp.StoredBattles = n
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
