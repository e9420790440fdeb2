package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	API      APIConfig      `json:"api"`
	Realtime RealtimeConfig `json:"realtime"`
	Push     PushConfig     `json:"push"`
	Cache    CacheConfig    `json:"cache"`
	Profile  ProfileConfig  `json:"profile"`
}

// APIConfig describes the REST backend.
type APIConfig struct {
	BaseURL        string `json:"baseUrl"`
	TimeoutSec     int    `json:"timeoutSec"`
	UploadTimeout  int    `json:"uploadTimeoutSec"`
	MaxConcurrency int    `json:"maxConcurrency"`
	CacheTTLSec    int    `json:"cacheTtlSec"`
}

// RealtimeConfig describes the pub/sub backend.
type RealtimeConfig struct {
	AppKey           string `json:"appKey"`
	Cluster          string `json:"cluster"`
	AuthEndpoint     string `json:"authEndpoint"`
	HeartbeatSec     int    `json:"heartbeatSec"`
	MaxReconnects    int    `json:"maxReconnects"`
	OutboundQueueCap int    `json:"outboundQueueCap"`
}

// PushConfig describes the push-notification project.
type PushConfig struct {
	ProjectID string `json:"projectId"`
}

// CacheConfig describes the local relational cache location.
type CacheConfig struct {
	Path string `json:"path"`
}

// ProfileConfig toggles the pyroscope profiler.
type ProfileConfig struct {
	Enabled       bool   `json:"enabled"`
	ServerAddress string `json:"serverAddress"`
}

// Config is the resolved configuration ready for use.
type Config struct {
	APIBaseURL       string
	RequestTimeout   time.Duration
	UploadTimeout    time.Duration
	MaxConcurrency   int
	ResponseCacheTTL time.Duration

	AppKey           string
	Cluster          string
	AuthEndpoint     string
	Heartbeat        time.Duration
	MaxReconnects    int
	OutboundQueueCap int

	PushProjectID string
	CachePath     string

	ProfileEnabled bool
	ProfileServer  string
}

// Load reads a JSON config file and resolves defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return resolve(cfg)
}

func resolve(cfg FileConfig) (Config, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.API.BaseURL), "/")
	if baseURL == "" {
		return Config{}, fmt.Errorf("api.baseUrl is empty")
	}
	if cfg.Realtime.AppKey == "" {
		return Config{}, fmt.Errorf("realtime.appKey is empty")
	}

	resolved := Config{
		APIBaseURL:       baseURL,
		RequestTimeout:   15 * time.Second,
		UploadTimeout:    60 * time.Second,
		MaxConcurrency:   10,
		ResponseCacheTTL: 30 * time.Second,
		AppKey:           cfg.Realtime.AppKey,
		Cluster:          cfg.Realtime.Cluster,
		AuthEndpoint:     cfg.Realtime.AuthEndpoint,
		Heartbeat:        30 * time.Second,
		MaxReconnects:    10,
		OutboundQueueCap: 100,
		PushProjectID:    cfg.Push.ProjectID,
		CachePath:        cfg.Cache.Path,
		ProfileEnabled:   cfg.Profile.Enabled,
		ProfileServer:    cfg.Profile.ServerAddress,
	}

	if cfg.API.TimeoutSec > 0 {
		resolved.RequestTimeout = time.Duration(cfg.API.TimeoutSec) * time.Second
	}
	if cfg.API.UploadTimeout > 0 {
		resolved.UploadTimeout = time.Duration(cfg.API.UploadTimeout) * time.Second
	}
	if cfg.API.MaxConcurrency > 0 {
		resolved.MaxConcurrency = cfg.API.MaxConcurrency
	}
	if cfg.API.CacheTTLSec > 0 {
		resolved.ResponseCacheTTL = time.Duration(cfg.API.CacheTTLSec) * time.Second
	}
	if cfg.Realtime.HeartbeatSec > 0 {
		resolved.Heartbeat = time.Duration(cfg.Realtime.HeartbeatSec) * time.Second
	}
	if cfg.Realtime.MaxReconnects > 0 {
		resolved.MaxReconnects = cfg.Realtime.MaxReconnects
	}
	if cfg.Realtime.OutboundQueueCap > 0 {
		resolved.OutboundQueueCap = cfg.Realtime.OutboundQueueCap
	}
	if resolved.AuthEndpoint == "" {
		resolved.AuthEndpoint = "/api/v1/broadcasting/auth"
	}
	if resolved.CachePath == "" {
		resolved.CachePath = "amora-cache.db"
	}
	return resolved, nil
}
