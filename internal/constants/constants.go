package constants

import "time"

const (
	ServiceName    = "battle-tracker"
	ServiceVersion = "0.1.0"
)

const (
	DefaultBattleEndpoint = "http://realm-battle.tz-game.com"
	DefaultOriginBattleID = 2785756
	BattleStartMarker     = "<BATTLE"
	BattleUserAgent       = "TimeZero Shell (v. 7.1.2.6)"
	BattleAccept          = "image/gif, image/x-xbitmap, image/jpeg, image/pjpeg, */*"
)

const (
	FetchTimeout  = 8 * time.Second
	FetchInterval = 100 * time.Millisecond
	MaxRedirects  = 10
	PollInterval  = 300 * time.Millisecond
	ProbeWindow   = 20
)

const (
	// backoff tiers are entered once the failure count is strictly above the threshold
	ShortBackoffThreshold  = 20
	ShortBackoffDelay      = 2 * time.Second
	LongBackoffThreshold   = 50
	LongBackoffDelay       = 5 * time.Second
	MaxConsecutiveFailures = 100
)

const (
	ReportEvery = 10
	// resolver reads at most this many trailing log lines
	ResumeLogLines = 100
	// must stay in sync between the poller and the resolver log scan
	LogMsgBattleMerged = "battle merged"
)

const (
	DatabaseTimeout = 5 * time.Second
	RequestTimeout  = 30 * time.Second
)

const (
	DBMaxOpenConns    = 1
	DBMaxIdleConns    = 1
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 10 * time.Second
)
