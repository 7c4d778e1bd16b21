package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Port        int
	DatabaseURL string // empty means in-memory stores (dev only)

	RPCURL          string
	OperatorAddress string // receives every charge and sponsors gas
	TokenAddress    string
	ConfirmTimeout  time.Duration

	EncryptionKey string

	SweepInterval    time.Duration
	SweepConcurrency int

	CORSOrigins []string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	port, _ := strconv.Atoi(getEnv("PORT", "3005"))

	operator := getEnv("OPERATOR_ADDRESS", "")
	if operator == "" {
		return nil, fmt.Errorf("OPERATOR_ADDRESS is required")
	}

	encKey := getEnv("ENCRYPTION_KEY", "")
	if encKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required (must be exactly 32 bytes)")
	}
	if len(encKey) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes, got %d", len(encKey))
	}

	sweepSecs, _ := strconv.Atoi(getEnv("SWEEP_INTERVAL_SECONDS", "30"))
	sweepConc, _ := strconv.Atoi(getEnv("SWEEP_CONCURRENCY", "4"))
	confirmSecs, _ := strconv.Atoi(getEnv("CONFIRM_TIMEOUT_SECONDS", "60"))

	origins := strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173"), ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	return &Config{
		Port:             port,
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		RPCURL:           getEnv("RPC_URL", "https://rpc.moderato.tempo.xyz/"),
		OperatorAddress:  strings.ToLower(operator),
		TokenAddress:     getEnv("TOKEN_ADDRESS", "0x20c0000000000000000000000000000000000001"),
		ConfirmTimeout:   time.Duration(confirmSecs) * time.Second,
		EncryptionKey:    encKey,
		SweepInterval:    time.Duration(sweepSecs) * time.Second,
		SweepConcurrency: sweepConc,
		CORSOrigins:      origins,
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
