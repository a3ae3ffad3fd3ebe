package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variables overriding the memory tunables.
const (
	EnvSTMMaxMessages = "STM_MAX_MESSAGES"
	EnvSTMMaxTokens   = "STM_MAX_TOKENS"
	EnvSTMSessionTTL  = "STM_SESSION_TTL"
	EnvLTMTopK        = "LTM_TOP_K"
	EnvLTMThreshold   = "LTM_SIMILARITY_THRESHOLD"
	EnvDataDir        = "MEMORYD_DATA_DIR"
	EnvLogLevel       = "MEMORYD_LOG_LEVEL"
	EnvLogFormat      = "MEMORYD_LOG_FORMAT"
)

// ApplyEnv overrides file values with the environment. Unset or blank
// variables leave the file value in place; unparsable ones are reported.
func (c *Config) ApplyEnv() error {
	var errs []error
	var err error

	s := &c.Memory.STM
	if s.MaxMessages, err = intFromEnv(EnvSTMMaxMessages, s.MaxMessages); err != nil {
		errs = append(errs, err)
	}
	if s.MaxTokens, err = intFromEnv(EnvSTMMaxTokens, s.MaxTokens); err != nil {
		errs = append(errs, err)
	}
	if s.SessionTTL, err = durationFromEnv(EnvSTMSessionTTL, s.SessionTTL); err != nil {
		errs = append(errs, err)
	}

	l := &c.Memory.LTM
	if l.TopK, err = intFromEnv(EnvLTMTopK, l.TopK); err != nil {
		errs = append(errs, err)
	}
	if v, ok, err := floatFromEnv(EnvLTMThreshold); err != nil {
		errs = append(errs, err)
	} else if ok {
		l.SimilarityThreshold = &v
	}

	c.DataDir = stringFromEnv(EnvDataDir, c.DataDir)
	c.Log.Level = stringFromEnv(EnvLogLevel, c.Log.Level)
	c.Log.Format = stringFromEnv(EnvLogFormat, c.Log.Format)

	return errors.Join(errs...)
}

func stringFromEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("config: %s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("config: %s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string) (float64, bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false, fmt.Errorf("config: %s parse error: %w", key, err)
	}
	return f, true, nil
}
