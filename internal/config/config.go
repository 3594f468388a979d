package config

import (
	"encoding/base64"
	"fmt"
	"time"
)

const (
	DefaultRateLimitWindow = 10 * time.Second
	DefaultRateLimitMax    = 20
)

type Config struct {
	ServerAddr      string
	SigningKey      []byte
	AllowedOrigins  []string
	RateLimitWindow time.Duration
	RateLimitMax    int
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, base64Secret string, allowedOrigins []string, rateWindow time.Duration, rateMax int) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	if rateWindow <= 0 {
		rateWindow = DefaultRateLimitWindow
	}
	if rateMax <= 0 {
		rateMax = DefaultRateLimitMax
	}

	return &Config{
		ServerAddr:      serverAddr,
		SigningKey:      signingKey,
		AllowedOrigins:  allowedOrigins,
		RateLimitWindow: rateWindow,
		RateLimitMax:    rateMax,
	}, nil
}
