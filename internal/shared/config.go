package shared

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"asta_radar/internal/adapters/fetcher"
	"asta_radar/internal/ranking"
	"asta_radar/internal/reconcile"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string
	CacheTTL    time.Duration

	PVPBaseURL    string
	PVPSearchPath string
	PVPPageSize   int
	PVPMaxPages   int

	FallcoasteBaseURL  string
	FallcoasteMaxPages int

	Fetch                  fetcher.Config
	MaxConsecutiveFailures int
	ConnectTimeout         time.Duration
	RequestTimeout         time.Duration

	SourceCooldown time.Duration
	CycleInterval  time.Duration
	ErrorRetry     time.Duration
	BanCooldown    time.Duration

	Match reconcile.Config

	RankingWeightsFile string
	ScoreWorkers       int
}

// Load reads an optional .env file (ENV_FILE overrides the path) and then the
// process environment. Values already set in the environment win.
func Load() Config {
	envFile := env("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("file", envFile).Msg("could not read env file")
	}

	ms := func(k string, def int) time.Duration { return time.Duration(atoi(k, def)) * time.Millisecond }

	match := reconcile.DefaultConfig()
	match.MinScore = atof("MATCH_MIN_SCORE", match.MinScore)
	match.PriceTolerance = atof("MATCH_PRICE_TOLERANCE", match.PriceTolerance)
	match.DateNearDays = atoi("MATCH_DATE_NEAR_DAYS", match.DateNearDays)
	match.DateFarDays = atoi("MATCH_DATE_FAR_DAYS", match.DateFarDays)
	match.Workers = atoi("MATCH_WORKERS", match.Workers)
	match.Weights.Address = atof("MATCH_WEIGHT_ADDRESS", match.Weights.Address)
	match.Weights.Court = atof("MATCH_WEIGHT_COURT", match.Weights.Court)
	match.Weights.Date = atof("MATCH_WEIGHT_DATE", match.Weights.Date)
	match.Weights.Price = atof("MATCH_WEIGHT_PRICE", match.Weights.Price)

	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),
		MySQLDSN:    env("MYSQL_DSN", "root:root@tcp(localhost:3306)/asta?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:   env("REDIS_ADDR", "localhost:6379"),
		RedisPass:   env("REDIS_PASSWORD", ""),
		RedisDB:     atoi("REDIS_DB", 0),
		CacheTTL:    time.Duration(atoi("CACHE_TTL_SECONDS", 60)) * time.Second,

		PVPBaseURL:    env("PVP_BASE_URL", "https://pvp.giustizia.it"),
		PVPSearchPath: env("PVP_SEARCH_PATH", ""),
		PVPPageSize:   atoi("PVP_PAGE_SIZE", 50),
		PVPMaxPages:   atoi("PVP_MAX_PAGES", 100),

		FallcoasteBaseURL:  env("FALLCOASTE_BASE_URL", "https://www.fallcoaste.it"),
		FallcoasteMaxPages: atoi("FALLCOASTE_MAX_PAGES", 50),

		Fetch: fetcher.Config{
			MinInterval:       ms("FETCH_MIN_INTERVAL_MS", 1000),
			MinDelay:          ms("FETCH_MIN_DELAY_MS", 500),
			MaxDelay:          ms("FETCH_MAX_DELAY_MS", 1500),
			MaxRetries:        atoi("FETCH_MAX_RETRIES", 3),
			BackoffBase:       ms("FETCH_BACKOFF_BASE_MS", 2000),
			Max429:            atoi("FETCH_MAX_429", 2),
			RequestsPerMinute: atoi("FETCH_REQUESTS_PER_MINUTE", 0),
		},
		MaxConsecutiveFailures: atoi("FETCH_MAX_CONSECUTIVE_FAILURES", 3),
		ConnectTimeout:         time.Duration(atoi("FETCH_CONNECT_TIMEOUT_SECONDS", 10)) * time.Second,
		RequestTimeout:         time.Duration(atoi("FETCH_TIMEOUT_SECONDS", 30)) * time.Second,

		SourceCooldown: time.Duration(atoi("SOURCE_COOLDOWN_SECONDS", 10)) * time.Second,
		CycleInterval:  time.Duration(atoi("CYCLE_INTERVAL_HOURS", 6)) * time.Hour,
		ErrorRetry:     time.Duration(atoi("ERROR_RETRY_MINUTES", 30)) * time.Minute,
		BanCooldown:    time.Duration(atoi("BAN_COOLDOWN_MINUTES", 120)) * time.Minute,

		Match: match,

		RankingWeightsFile: env("RANKING_WEIGHTS_FILE", ""),
		ScoreWorkers:       atoi("SCORE_WORKERS", 4),
	}
	if c.MySQLDSN == "" {
		log.Warn().Msg("MYSQL_DSN is empty")
	}
	return c
}

// Weights returns the ranking weights: the YAML file when configured, else
// the defaults. An invalid file is an error; callers must not fall back.
func (c Config) Weights() (ranking.Weights, error) {
	if c.RankingWeightsFile == "" {
		return ranking.DefaultWeights(), nil
	}
	return ranking.LoadWeights(c.RankingWeightsFile)
}

// MatchConfig returns the reconciler settings after validation. Like Weights,
// an invalid configuration is an error and must stop startup.
func (c Config) MatchConfig() (reconcile.Config, error) {
	if err := c.Match.Validate(); err != nil {
		return reconcile.Config{}, err
	}
	return c.Match, nil
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func atoi(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Warn().Str("key", k).Str("value", v).Msg("not an integer, using default")
	}
	return def
}

func atof(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		log.Warn().Str("key", k).Str("value", v).Msg("not a number, using default")
	}
	return def
}
