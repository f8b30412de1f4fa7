package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/scan-io-git/cloudsentinel/pkg/shared/files"
)

// ValidateConfig checks if the global configurations have valid values.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("YAML global config: configuration object is nil")
	}
	if err := updateHome(cfg); err != nil {
		return fmt.Errorf("YAML global config: home directive is invalid: %w", err)
	}
	if err := ValidateScanConfig(&cfg.Scan); err != nil {
		return fmt.Errorf("YAML global config: scan directive is invalid: %w", err)
	}
	if err := ValidateStorageConfig(&cfg.Storage); err != nil {
		return fmt.Errorf("YAML global config: storage directive is invalid: %w", err)
	}
	if err := ValidateServerConfig(&cfg.Server); err != nil {
		return fmt.Errorf("YAML global config: server directive is invalid: %w", err)
	}
	if err := ValidateHTTPConfig(&cfg.HTTPClient); err != nil {
		return fmt.Errorf("YAML global config: http_client directive is invalid: %w", err)
	}
	return nil
}

// ValidateScanConfig checks the scan section.
func ValidateScanConfig(scan *Scan) error {
	if scan == nil {
		return fmt.Errorf("scan configuration is nil")
	}
	switch scan.Mode {
	case ModeLocal, ModeLive:
	default:
		return fmt.Errorf("mode must be %q or %q, got %q", ModeLocal, ModeLive, scan.Mode)
	}
	if scan.Concurrency < 1 || scan.Concurrency > 64 {
		return fmt.Errorf("concurrency must be between 1 and 64: %d", scan.Concurrency)
	}
	if err := validateDuration(scan.CheckTimeout, "check_timeout", 10*time.Minute); err != nil {
		return err
	}
	if err := validateDuration(scan.TimelineWindow, "timeline_window", 90*24*time.Hour); err != nil {
		return err
	}
	if scan.TimelineLimit < 1 || scan.TimelineLimit > 10000 {
		return fmt.Errorf("timeline_limit must be between 1 and 10000: %d", scan.TimelineLimit)
	}
	return nil
}

// ValidateStorageConfig checks the storage section and the adapter settings it selects.
func ValidateStorageConfig(storage *Storage) error {
	if storage == nil {
		return fmt.Errorf("storage configuration is nil")
	}

	switch storage.Backend {
	case BackendEmbedded:
		if storage.Embedded.Path == "" {
			return fmt.Errorf("embedded.path is required")
		}
		expanded, err := files.ExpandPath(storage.Embedded.Path)
		if err != nil {
			return fmt.Errorf("failed to expand embedded path %q: %w", storage.Embedded.Path, err)
		}
		storage.Embedded.Path = expanded
		return nil
	case BackendSplit:
		return validateSplit(&storage.Split)
	default:
		return fmt.Errorf("backend must be %q or %q, got %q", BackendEmbedded, BackendSplit, storage.Backend)
	}
}

func validateSplit(split *Split) error {
	switch split.Index {
	case IndexDynamoDB:
		if split.DynamoDB.ScansTable == "" || split.DynamoDB.TimelineTable == "" {
			return fmt.Errorf("dynamodb.scans_table and dynamodb.timeline_table are required")
		}
	case IndexPostgres:
		if split.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required when index is %q", IndexPostgres)
		}
	default:
		return fmt.Errorf("split.index must be %q or %q, got %q", IndexDynamoDB, IndexPostgres, split.Index)
	}

	switch split.Blob {
	case BlobS3:
		if split.S3.Bucket == "" {
			return fmt.Errorf("s3.bucket is required when blob is %q", BlobS3)
		}
	case BlobFilesystem:
		expanded, err := files.ExpandPath(split.Filesystem.Folder)
		if err != nil {
			return fmt.Errorf("failed to expand artifacts folder %q: %w", split.Filesystem.Folder, err)
		}
		split.Filesystem.Folder = expanded
	default:
		return fmt.Errorf("split.blob must be %q or %q, got %q", BlobS3, BlobFilesystem, split.Blob)
	}
	return nil
}

// ValidateServerConfig checks the server section.
func ValidateServerConfig(server *Server) error {
	if server == nil {
		return fmt.Errorf("server configuration is nil")
	}
	if !strings.Contains(server.ListenAddr, ":") {
		return fmt.Errorf("listen_addr must be in host:port form: %q", server.ListenAddr)
	}
	if err := validateDuration(server.ReadTimeout, "read_timeout", 5*time.Minute); err != nil {
		return err
	}
	return validateDuration(server.ShutdownTimeout, "shutdown_timeout", 5*time.Minute)
}

// ValidateHTTPConfig checks if the HTTP configurations have valid values.
func ValidateHTTPConfig(httpConfig *HTTPClient) error {
	if httpConfig == nil {
		return fmt.Errorf("HTTP configuration is nil")
	}
	if httpConfig.RetryCount < 0 || httpConfig.RetryCount > 20 {
		return fmt.Errorf("retry_count must be between 0 and 20: %d", httpConfig.RetryCount)
	}

	durations := map[string]time.Duration{
		"RetryMaxWaitTime": httpConfig.RetryMaxWaitTime,
		"RetryWaitTime":    httpConfig.RetryWaitTime,
		"Timeout":          httpConfig.Timeout,
	}
	for name, duration := range durations {
		if err := validateDuration(duration, name, 10*time.Minute); err != nil {
			return err
		}
	}

	return validateProxy(&httpConfig.Proxy)
}

// validateDuration checks that a time.Duration is valid and within a specified maximum duration.
func validateDuration(d time.Duration, name string, max time.Duration) error {
	if d < 0 {
		return fmt.Errorf("invalid duration for %q: %v cannot be negative", name, d)
	}
	if d > max {
		return fmt.Errorf("%q duration is too long: %v exceeds maximum of %v", name, d, max)
	}
	return nil
}

// validateProxy checks if the given Proxy settings are valid.
func validateProxy(proxy *Proxy) error {
	if proxy == nil {
		return fmt.Errorf("proxy configuration is nil")
	}

	if proxy.Host == "" || proxy.Port == 0 {
		return nil
	}

	if !strings.Contains(proxy.Host, "://") {
		proxy.Host = "http://" + proxy.Host
	}
	proxy.Host = strings.TrimRight(proxy.Host, "/")
	if _, err := url.Parse(proxy.Host); err != nil {
		return fmt.Errorf("invalid host URL: %w", err)
	}

	if proxy.Port < 1 || proxy.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", proxy.Port)
	}
	return nil
}

// updateHome expands the home folder and makes sure it exists.
func updateHome(cfg *Config) error {
	expanded, err := files.ExpandPath(cfg.Home)
	if err != nil {
		return fmt.Errorf("failed to expand home path %q: %w", cfg.Home, err)
	}
	cfg.Home = expanded

	if err := files.CreateFolderIfNotExists(expanded); err != nil {
		return fmt.Errorf("failed to create home folder %q: %w", cfg.Home, err)
	}
	return nil
}
