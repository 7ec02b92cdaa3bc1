package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"battle-tracker/internal/constants"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	BattleEndpoint string
	StartBattleID  int64 // 0 = resolve from checkpoint, log or probe
	OriginBattleID int64
	ProbeWindow    int
	CheckpointPath string
	LogFile        string // env only; the logger writes it, the resolver reads it back
	DBPath         string
	ServerPort     string
	ReportPath     string
	ReportEvery    int
	FetchTimeout   time.Duration
	FetchInterval  time.Duration
	PollInterval   time.Duration
	OTLPEndpoint   string
	OTLPInsecure   bool
}

// fileConfig mirrors Config for the optional TOML file named by CONFIG_FILE.
// Durations are strings ("8s").
type fileConfig struct {
	BattleEndpoint string `toml:"battle_endpoint"`
	StartBattleID  int64  `toml:"start_battle_id"`
	OriginBattleID int64  `toml:"origin_battle_id"`
	ProbeWindow    int    `toml:"probe_window"`
	CheckpointPath string `toml:"checkpoint_path"`
	DBPath         string `toml:"db_path"`
	ServerPort     string `toml:"server_port"`
	ReportPath     string `toml:"report_path"`
	ReportEvery    int    `toml:"report_every"`
	FetchTimeout   string `toml:"fetch_timeout"`
	FetchInterval  string `toml:"fetch_interval"`
	PollInterval   string `toml:"poll_interval"`
}

func Default() *Config {
	return &Config{
		BattleEndpoint: constants.DefaultBattleEndpoint,
		OriginBattleID: constants.DefaultOriginBattleID,
		ProbeWindow:    constants.ProbeWindow,
		CheckpointPath: "last_battle_id.txt",
		DBPath:         "battles.db",
		ServerPort:     "8080",
		ReportPath:     "resources_report.json",
		ReportEvery:    constants.ReportEvery,
		FetchTimeout:   constants.FetchTimeout,
		FetchInterval:  constants.FetchInterval,
		PollInterval:   constants.PollInterval,
	}
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
		logger.Debug().Str("path", path).Msg("config file applied")
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Info().
		Str("battle_endpoint", cfg.BattleEndpoint).
		Int64("start_battle_id", cfg.StartBattleID).
		Str("checkpoint_path", cfg.CheckpointPath).
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", logger.GetLevel().String()).
		Str("log_file", cfg.LogFile).
		Int("report_every", cfg.ReportEvery).
		Dur("fetch_timeout", cfg.FetchTimeout).
		Dur("poll_interval", cfg.PollInterval).
		Msg("configuration loaded")

	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// unknown keys are rejected so a setting the file cannot carry (log_file,
	// log_level) fails loudly instead of being ignored
	var fc fileConfig
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	setString(&c.BattleEndpoint, fc.BattleEndpoint)
	setString(&c.CheckpointPath, fc.CheckpointPath)
	setString(&c.DBPath, fc.DBPath)
	setString(&c.ServerPort, fc.ServerPort)
	setString(&c.ReportPath, fc.ReportPath)
	if fc.StartBattleID != 0 {
		c.StartBattleID = fc.StartBattleID
	}
	if fc.OriginBattleID != 0 {
		c.OriginBattleID = fc.OriginBattleID
	}
	if fc.ProbeWindow != 0 {
		c.ProbeWindow = fc.ProbeWindow
	}
	if fc.ReportEvery != 0 {
		c.ReportEvery = fc.ReportEvery
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"fetch_timeout", fc.FetchTimeout, &c.FetchTimeout},
		{"fetch_interval", fc.FetchInterval, &c.FetchInterval},
		{"poll_interval", fc.PollInterval, &c.PollInterval},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s=%q is not a valid duration", d.key, d.raw)
		}
		*d.dst = v
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.BattleEndpoint = getEnv("BATTLE_ENDPOINT", c.BattleEndpoint)
	c.CheckpointPath = getEnv("CHECKPOINT_PATH", c.CheckpointPath)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.ServerPort = getEnv("SERVER_PORT", c.ServerPort)
	c.ReportPath = getEnv("REPORT_PATH", c.ReportPath)
	c.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.OTLPEndpoint)

	var err error
	if c.StartBattleID, err = envInt64("START_BATTLE_ID", c.StartBattleID); err != nil {
		return err
	}
	if c.OriginBattleID, err = envInt64("ORIGIN_BATTLE_ID", c.OriginBattleID); err != nil {
		return err
	}
	if c.ProbeWindow, err = envInt("PROBE_WINDOW", c.ProbeWindow); err != nil {
		return err
	}
	if c.ReportEvery, err = envInt("REPORT_EVERY", c.ReportEvery); err != nil {
		return err
	}
	if c.FetchTimeout, err = envDuration("FETCH_TIMEOUT", c.FetchTimeout); err != nil {
		return err
	}
	if c.FetchInterval, err = envDuration("FETCH_INTERVAL", c.FetchInterval); err != nil {
		return err
	}
	if c.PollInterval, err = envDuration("POLL_INTERVAL", c.PollInterval); err != nil {
		return err
	}
	if c.OTLPInsecure, err = envBool("OTEL_EXPORTER_OTLP_INSECURE", c.OTLPInsecure); err != nil {
		return err
	}
	return nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.BattleEndpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BATTLE_ENDPOINT=%q is not a valid URL", c.BattleEndpoint)
	}
	if c.StartBattleID < 0 {
		return fmt.Errorf("START_BATTLE_ID must not be negative")
	}
	if c.OriginBattleID <= 0 {
		return fmt.Errorf("ORIGIN_BATTLE_ID must be positive")
	}
	if c.ProbeWindow <= 0 {
		return fmt.Errorf("PROBE_WINDOW must be positive")
	}
	if c.ReportEvery <= 0 {
		return fmt.Errorf("REPORT_EVERY must be positive")
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive")
	}
	if c.CheckpointPath == "" {
		return fmt.Errorf("CHECKPOINT_PATH is required")
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}

var Module = fx.Provide(Load)
