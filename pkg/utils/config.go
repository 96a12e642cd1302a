package utils

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything read from the environment. A .env file in the
// working directory is honored when present.
type Config struct {
	Addr        string
	TCPAddr     string
	BangumiBase string
	MoegirlBase string

	// FetchDelayMin/Max bound the randomized happy-path delay applied
	// before every outbound request.
	FetchDelayMin time.Duration
	FetchDelayMax time.Duration

	// SweepInterval controls how often expired jobs are hard-deleted.
	SweepInterval time.Duration
}

func LoadConfig() Config {
	_ = godotenv.Load()

	return Config{
		Addr:          envOr("ANIMEHUB_ADDR", ":8080"),
		TCPAddr:       envOr("ANIMEHUB_TCP_ADDR", ":7070"),
		BangumiBase:   envOr("ANIMEHUB_BANGUMI_BASE", "https://bgm.tv"),
		MoegirlBase:   envOr("ANIMEHUB_MOEGIRL_BASE", "https://zh.moegirl.org.cn"),
		FetchDelayMin: envDuration("ANIMEHUB_FETCH_DELAY_MIN_MS", 3000*time.Millisecond),
		FetchDelayMax: envDuration("ANIMEHUB_FETCH_DELAY_MAX_MS", 6000*time.Millisecond),
		SweepInterval: envDuration("ANIMEHUB_SWEEP_INTERVAL_MS", time.Hour),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms < 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
