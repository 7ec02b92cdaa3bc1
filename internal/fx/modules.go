package fx

import (
	"database/sql"

	"battle-tracker/internal/aggregator"
	"battle-tracker/internal/api"
	"battle-tracker/internal/checkpoint"
	"battle-tracker/internal/config"
	"battle-tracker/internal/database"
	"battle-tracker/internal/db"
	"battle-tracker/internal/logger"
	"battle-tracker/internal/poller"
	"battle-tracker/internal/report"
	"battle-tracker/internal/repository"
	"battle-tracker/internal/resolver"
	"battle-tracker/internal/server"
	"battle-tracker/internal/service"
	"battle-tracker/internal/telemetry"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func ProvideQueries(sqlDB *sql.DB) *db.Queries {
	return db.New(sqlDB)
}

func ProvideCheckpoints(cfg *config.Config, logger zerolog.Logger) *checkpoint.FileStore {
	return checkpoint.NewFileStore(cfg.CheckpointPath, logger)
}

func ProvideAggregator(repo *repository.BattleRepository, logger zerolog.Logger) *aggregator.Aggregator {
	return aggregator.New(repo, logger)
}

func ProvideBattleService(cfg *config.Config, client *api.BattleClient, agg *aggregator.Aggregator, logger zerolog.Logger) *service.BattleService {
	return service.NewBattleService(cfg, client, agg, logger)
}

func ProvideResolver(cfg *config.Config, checkpoints *checkpoint.FileStore, svc *service.BattleService, logger zerolog.Logger) *resolver.Resolver {
	return resolver.New(cfg, checkpoints, svc.Probe, logger)
}

func ProvidePoller(
	cfg *config.Config,
	svc *service.BattleService,
	res *resolver.Resolver,
	checkpoints *checkpoint.FileStore,
	reporter *report.Reporter,
	agg *aggregator.Aggregator,
	logger zerolog.Logger,
) *poller.Poller {
	return poller.New(cfg, svc, res, checkpoints, reporter, agg, logger)
}

func ProvideSnapshotServer(agg *aggregator.Aggregator, p *poller.Poller, repo *repository.BattleRepository, logger zerolog.Logger) *server.SnapshotServer {
	return server.NewSnapshotServer(agg, p, repo, logger)
}

var Module = fx.Options(
	logger.Module,
	config.Module,
	fx.Provide(database.New),
	fx.Provide(ProvideQueries),
	// storage
	fx.Provide(repository.NewBattleRepository),
	fx.Provide(ProvideCheckpoints),
	fx.Provide(ProvideAggregator),
	// remote source
	fx.Provide(api.NewBattleClient),
	// pipeline
	fx.Provide(ProvideBattleService),
	fx.Provide(ProvideResolver),
	fx.Provide(report.NewReporter),
	fx.Provide(ProvidePoller),
	// server
	fx.Provide(ProvideSnapshotServer),
	fx.Invoke(telemetry.Register),
)
