package main

import (
	"fmt"
	"perfsnapshot-backend/lib/configutil"
	"time"
)

type UpstreamConfig struct {
	Url            string `json:"url"`
	Timeout        string `json:"timeout"`
	SeriesVariable string `json:"series_variable"`
}

type CacheConfig struct {
	Ttl string `json:"ttl"`
}

type Config struct {
	Port     int            `json:"port"`
	Upstream UpstreamConfig `json:"upstream"`
	Cache    CacheConfig    `json:"cache"`
}

var defaultConfig = Config{
	Port: 8000,
	Upstream: UpstreamConfig{
		Timeout:        "15s",
		SeriesVariable: "growthData",
	},
	Cache: CacheConfig{
		Ttl: "24h",
	},
}

// ResolvedConfig is Config with every duration parsed.
type ResolvedConfig struct {
	Port            int
	UpstreamUrl     string
	UpstreamTimeout time.Duration
	SeriesVariable  string
	CacheTtl        time.Duration
}

func parsePositiveDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive, got %s", field, value)
	}
	return d, nil
}

func (c Config) Resolve() (ResolvedConfig, error) {
	if c.Upstream.Url == "" {
		return ResolvedConfig{}, fmt.Errorf("upstream.url is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return ResolvedConfig{}, fmt.Errorf("port: out of range %d", c.Port)
	}

	timeout, err := parsePositiveDuration("upstream.timeout", c.Upstream.Timeout)
	if err != nil {
		return ResolvedConfig{}, err
	}
	ttl, err := parsePositiveDuration("cache.ttl", c.Cache.Ttl)
	if err != nil {
		return ResolvedConfig{}, err
	}

	return ResolvedConfig{
		Port:            c.Port,
		UpstreamUrl:     c.Upstream.Url,
		UpstreamTimeout: timeout,
		SeriesVariable:  c.Upstream.SeriesVariable,
		CacheTtl:        ttl,
	}, nil
}

// LoadConfig reads `path` (and its .local override) on top of the defaults.
func LoadConfig(path string) (ResolvedConfig, error) {
	cfg, err := configutil.ReadConfigWithDefaults(path, defaultConfig)
	if err != nil {
		return ResolvedConfig{}, err
	}
	return cfg.Resolve()
}
