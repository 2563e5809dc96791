package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type IngestCfg struct {
	Enabled    bool
	Brokers    string
	Topic      string
	GroupID    string
	DedupeSize int
}

type MetricsCfg struct {
	Enabled bool
	Addr    string
	Path    string
}

type Config struct {
	Addr           string
	LogLevel       string
	LogConsole     bool
	GeohashLength  int
	Missing        []string
	RangePolicy    string
	EvalMaxWorkers int
	EvalMaxRows    int
	IndexEnabled   bool
	IndexPrecision int
	RedisAddr      string
	CacheOpTimeout time.Duration
	Ingest         IngestCfg
	Metrics        MetricsCfg
}

func FromEnv() Config {
	length := getint("GEOHASH_LENGTH", 4)
	if length < 1 || length > 12 {
		length = 4
	}
	indexPrecision := getint("INDEX_PRECISION", 6)
	if indexPrecision < 1 || indexPrecision > 12 {
		indexPrecision = 6
	}

	return Config{
		Addr:           getenv("ADDR", ":8090"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogConsole:     getbool("LOG_CONSOLE", false),
		GeohashLength:  length,
		Missing:        parseList(os.Getenv("GEOHASH_MISSING"), []string{"", "NA"}),
		RangePolicy:    getenv("GEOHASH_RANGE_POLICY", "fail"),
		EvalMaxWorkers: getint("EVAL_MAX_WORKERS", 8),
		EvalMaxRows:    getint("EVAL_MAX_ROWS", 10000),
		IndexEnabled:   getbool("INDEX_ENABLED", false),
		IndexPrecision: indexPrecision,
		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		CacheOpTimeout: getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		Ingest: IngestCfg{
			Enabled:    getbool("INGEST_ENABLED", false),
			Brokers:    getenv("KAFKA_BROKERS", "localhost:9092"),
			Topic:      getenv("KAFKA_TOPIC", "point-updates"),
			GroupID:    getenv("KAFKA_GROUP_ID", "geohash-indexer"),
			DedupeSize: getint("INGEST_DEDUPE_SIZE", 4096),
		},
		Metrics: MetricsCfg{
			Enabled: getbool("METRICS_ENABLED", false),
			Addr:    getenv("METRICS_ADDR", ":9090"),
			Path:    getenv("METRICS_PATH", "/metrics"),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parse "NA,\N,null" into a sentinel list; a lone "-" means "only the empty string"
func parseList(s string, def []string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	out := []string{""}
	if s == "-" {
		return out
	}
	for p := range strings.SplitSeq(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
