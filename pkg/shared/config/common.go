package config

import (
	"crypto/tls"
	"path/filepath"
	"time"
)

// BaseHTTPConfig holds common HTTP client configuration settings.
type BaseHTTPConfig struct {
	RetryCount       int
	RetryWaitTime    time.Duration
	RetryMaxWaitTime time.Duration
	Timeout          time.Duration
	TLSClientConfig  *tls.Config
	Proxy            string
}

// RestyHttpClientConfig holds additional configuration settings for the resty http client.
type RestyHttpClientConfig struct {
	BaseHTTPConfig
	Debug bool
}

// General base configuration applicable to all HTTP clients.
func DefaultHttpConfig() BaseHTTPConfig {
	return BaseHTTPConfig{
		RetryCount:       3,
		RetryWaitTime:    1 * time.Second,
		RetryMaxWaitTime: 2 * time.Second,
		Timeout:          60 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		Proxy: "",
	}
}

// DefaultRestyConfig function returns a specific http config to Resty
func DefaultRestyConfig() RestyHttpClientConfig {
	return RestyHttpClientConfig{
		BaseHTTPConfig: DefaultHttpConfig(),
		Debug:          false,
	}
}

const (
	DefaultRegion          = "us-east-1"
	DefaultConcurrency     = 4
	DefaultCheckTimeout    = 30 * time.Second
	DefaultSimulatorOwner  = "local-user"
	DefaultTimelineWindow  = 7 * 24 * time.Hour
	DefaultTimelineLimit   = 1000
	DefaultListenAddr      = "127.0.0.1:8080"
	DefaultReadTimeout     = 15 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultProjectTag      = "cloudsentinel"
	DefaultScansTable      = "cloudsentinel-scans"
	DefaultTimelineTable   = "cloudsentinel-timeline"
	DefaultS3Prefix        = "scans/"
)

// ApplyDefaults fills every unset field with its default value.
func ApplyDefaults(cfg *Config) {
	cfg.Home = SetThen(cfg.Home, defaultHome())

	cfg.AWS.Region = SetThen(cfg.AWS.Region, DefaultRegion)

	cfg.Scan.Mode = SetThen(cfg.Scan.Mode, ModeLocal)
	cfg.Scan.Concurrency = SetThen(cfg.Scan.Concurrency, DefaultConcurrency)
	cfg.Scan.CheckTimeout = SetThen(cfg.Scan.CheckTimeout, DefaultCheckTimeout)
	cfg.Scan.TimelineWindow = SetThen(cfg.Scan.TimelineWindow, DefaultTimelineWindow)
	cfg.Scan.TimelineLimit = SetThen(cfg.Scan.TimelineLimit, DefaultTimelineLimit)

	cfg.Storage.Backend = SetThen(cfg.Storage.Backend, BackendEmbedded)
	cfg.Storage.Embedded.Path = SetThen(cfg.Storage.Embedded.Path, filepath.Join(cfg.Home, "sentinel.db"))
	cfg.Storage.Split.Index = SetThen(cfg.Storage.Split.Index, IndexDynamoDB)
	cfg.Storage.Split.Blob = SetThen(cfg.Storage.Split.Blob, BlobS3)
	cfg.Storage.Split.DynamoDB.ScansTable = SetThen(cfg.Storage.Split.DynamoDB.ScansTable, DefaultScansTable)
	cfg.Storage.Split.DynamoDB.TimelineTable = SetThen(cfg.Storage.Split.DynamoDB.TimelineTable, DefaultTimelineTable)
	cfg.Storage.Split.Postgres.MaxConns = SetThen(cfg.Storage.Split.Postgres.MaxConns, int32(4))
	cfg.Storage.Split.S3.Prefix = SetThen(cfg.Storage.Split.S3.Prefix, DefaultS3Prefix)
	cfg.Storage.Split.Filesystem.Folder = SetThen(cfg.Storage.Split.Filesystem.Folder, filepath.Join(cfg.Home, "artifacts"))

	cfg.Simulator.ProjectTag = SetThen(cfg.Simulator.ProjectTag, DefaultProjectTag)
	cfg.Simulator.Owner = SetThen(cfg.Simulator.Owner, DefaultSimulatorOwner)

	cfg.Server.ListenAddr = SetThen(cfg.Server.ListenAddr, DefaultListenAddr)
	cfg.Server.ReadTimeout = SetThen(cfg.Server.ReadTimeout, DefaultReadTimeout)
	cfg.Server.ShutdownTimeout = SetThen(cfg.Server.ShutdownTimeout, DefaultShutdownTimeout)
}

// LiveEnabled reports whether the configuration asks for the live AWS environment.
func LiveEnabled(cfg *Config) bool {
	return cfg != nil && cfg.Scan.Mode == ModeLive
}

// AllowAdminSim reports whether the admin-attach simulator scenario is permitted.
func AllowAdminSim(cfg *Config) bool {
	return GetBoolValue(cfg, "Simulator.AllowAdminSim", false)
}
