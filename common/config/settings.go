package config

import (
	"sync"
	"time"
)

// Well-known settings keys consulted by the engine and handlers.
const (
	KeyExecutionTimeout     = "execution.default_timeout_sec"
	KeyExecutionMaxParallel = "execution.max_parallel"
	KeyRetryAttempts        = "retry.attempts"
	KeyRetryDelayMs         = "retry.delay_ms"
	KeyHTTPConnectTimeoutMs = "http.connect_timeout_ms"
	KeyHTTPReadTimeoutMs    = "http.read_timeout_ms"
	KeyLogLevel             = "execution.log_level"
)

// Settings is the typed key-value view handlers read through the execution
// context. It is concurrent-readable and rarely written.
type Settings struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewSettings creates an empty settings store.
func NewSettings() *Settings {
	return &Settings{values: make(map[string]any)}
}

// SettingsFromConfig seeds the settings store from the loaded configuration.
func SettingsFromConfig(cfg *Config) *Settings {
	s := NewSettings()
	s.Set(KeyExecutionTimeout, int(cfg.Engine.DefaultTimeout/time.Second))
	s.Set(KeyExecutionMaxParallel, cfg.Engine.MaxParallel)
	s.Set(KeyRetryAttempts, cfg.Engine.RetryAttempts)
	s.Set(KeyRetryDelayMs, int(cfg.Engine.RetryDelay/time.Millisecond))
	s.Set(KeyHTTPConnectTimeoutMs, int(cfg.HTTP.ConnectTimeout/time.Millisecond))
	s.Set(KeyHTTPReadTimeoutMs, int(cfg.HTTP.ReadTimeout/time.Millisecond))
	s.Set(KeyLogLevel, cfg.Service.LogLevel)
	return s
}

// Set stores a value.
func (s *Settings) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Get returns the raw value or the default when absent.
func (s *Settings) Get(key string, def any) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[key]; ok {
		return v
	}
	return def
}

// GetString returns a string setting with a default.
func (s *Settings) GetString(key, def string) string {
	if v, ok := s.Get(key, def).(string); ok {
		return v
	}
	return def
}

// GetInt returns an int setting with a default.
func (s *Settings) GetInt(key string, def int) int {
	switch v := s.Get(key, def).(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// GetInt64 returns an int64 setting with a default.
func (s *Settings) GetInt64(key string, def int64) int64 {
	switch v := s.Get(key, def).(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return def
}

// GetFloat returns a float setting with a default.
func (s *Settings) GetFloat(key string, def float64) float64 {
	switch v := s.Get(key, def).(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

// GetBool returns a bool setting with a default.
func (s *Settings) GetBool(key string, def bool) bool {
	if v, ok := s.Get(key, def).(bool); ok {
		return v
	}
	return def
}

// GetDuration returns a duration from a millisecond-valued setting.
func (s *Settings) GetDuration(key string, def time.Duration) time.Duration {
	ms := s.GetInt(key, -1)
	if ms < 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
