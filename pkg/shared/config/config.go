package config

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"
)

// Scan modes.
const (
	ModeLocal = "local"
	ModeLive  = "live"
)

// Storage backends and their adapters.
const (
	BackendEmbedded = "embedded"
	BackendSplit    = "split"

	IndexDynamoDB = "dynamodb"
	IndexPostgres = "postgres"

	BlobS3         = "s3"
	BlobFilesystem = "filesystem"
)

// DefaultConfigFile is used when no --config flag is given. A missing default file is not an error.
const DefaultConfigFile = "config.yml"

type Config struct {
	Home       string     `yaml:"home"`
	Logger     Logger     `yaml:"logger"`
	AWS        AWS        `yaml:"aws"`
	Scan       Scan       `yaml:"scan"`
	Storage    Storage    `yaml:"storage"`
	Simulator  Simulator  `yaml:"simulator"`
	Server     Server     `yaml:"server"`
	HTTPClient HTTPClient `yaml:"http_client"`
}

type Logger struct {
	Level           string `yaml:"level"`
	DisableTime     *bool  `yaml:"disable_time"`
	JSONFormat      *bool  `yaml:"json_format"`
	IncludeLocation *bool  `yaml:"include_location"`
}

type AWS struct {
	Region   string `yaml:"region"`
	Profile  string `yaml:"profile"`
	Endpoint string `yaml:"endpoint"`
}

type Scan struct {
	Mode           string        `yaml:"mode"`
	Concurrency    int           `yaml:"concurrency"`
	CheckTimeout   time.Duration `yaml:"check_timeout"`
	TimelineWindow time.Duration `yaml:"timeline_window"`
	TimelineLimit  int           `yaml:"timeline_limit"`
}

type Storage struct {
	Backend  string   `yaml:"backend"`
	Embedded Embedded `yaml:"embedded"`
	Split    Split    `yaml:"split"`
}

type Embedded struct {
	Path string `yaml:"path"`
}

type Split struct {
	Index      string     `yaml:"index"`
	Blob       string     `yaml:"blob"`
	DynamoDB   DynamoDB   `yaml:"dynamodb"`
	Postgres   Postgres   `yaml:"postgres"`
	S3         S3         `yaml:"s3"`
	Filesystem Filesystem `yaml:"filesystem"`
}

type DynamoDB struct {
	ScansTable    string `yaml:"scans_table"`
	TimelineTable string `yaml:"timeline_table"`
	Endpoint      string `yaml:"endpoint"`
	CreateTables  *bool  `yaml:"create_tables"`
}

type Postgres struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`
}

type S3 struct {
	Bucket         string `yaml:"bucket"`
	Prefix         string `yaml:"prefix"`
	Endpoint       string `yaml:"endpoint"`
	ForcePathStyle bool   `yaml:"force_path_style"`
}

type Filesystem struct {
	Folder string `yaml:"folder"`
}

// Simulator configures the local event simulator. Owner is recorded as the username of
// simulated events.
type Simulator struct {
	ProjectTag    string `yaml:"project_tag"`
	Owner         string `yaml:"owner"`
	AllowAdminSim *bool  `yaml:"allow_admin_sim"`
}

type Server struct {
	ListenAddr      string        `yaml:"listen_addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type HTTPClient struct {
	Debug            *bool           `yaml:"debug"`
	RetryCount       int             `yaml:"retry_count"`
	RetryWaitTime    time.Duration   `yaml:"retry_wait_time"`
	RetryMaxWaitTime time.Duration   `yaml:"retry_max_wait_time"`
	Timeout          time.Duration   `yaml:"timeout"`
	TLSClientConfig  TLSClientConfig `yaml:"tls_client_config"`
	Proxy            Proxy           `yaml:"proxy"`
}

type TLSClientConfig struct {
	Verify *bool `yaml:"verify"`
}

type Proxy struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func ValidateConfigPath(path string) error {
	s, err := os.Stat(path)
	if err != nil {
		return err
	}
	if s.IsDir() {
		return fmt.Errorf("'%s' is a directory, not a file", path)
	}
	return nil
}

func LoadYAML(configPath string, data interface{}) error {
	if err := ValidateConfigPath(configPath); err != nil {
		return err
	}

	file, err := os.Open(configPath)
	if err != nil {
		return err
	}
	defer file.Close()

	d := yaml.NewDecoder(file)
	if err := d.Decode(data); err != nil {
		return err
	}

	return nil
}

// LoadConfig reads the YAML configuration, applies environment overrides and fills defaults.
// A missing file at the default location yields a default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := &Config{}

	if configPath == "" {
		configPath = DefaultConfigFile
	}
	if err := LoadYAML(configPath, cfg); err != nil {
		if !(os.IsNotExist(err) && configPath == DefaultConfigFile) {
			return nil, fmt.Errorf("failed to load config %q: %w", configPath, err)
		}
	}

	applyEnv(cfg)
	ApplyDefaults(cfg)
	return cfg, nil
}

// applyEnv overrides file values with SENTINEL_* and standard AWS environment variables.
func applyEnv(cfg *Config) {
	setFromEnv(&cfg.Home, "SENTINEL_HOME")
	setFromEnv(&cfg.AWS.Region, "AWS_REGION")
	setFromEnv(&cfg.AWS.Profile, "AWS_PROFILE")
	setFromEnv(&cfg.AWS.Endpoint, "SENTINEL_AWS_ENDPOINT")
	setFromEnv(&cfg.Scan.Mode, "SENTINEL_SCAN_MODE")
	setFromEnv(&cfg.Storage.Backend, "SENTINEL_STORAGE_BACKEND")
	setFromEnv(&cfg.Storage.Embedded.Path, "SENTINEL_DB_PATH")
	setFromEnv(&cfg.Storage.Split.Postgres.DSN, "SENTINEL_POSTGRES_DSN")
	setFromEnv(&cfg.Storage.Split.S3.Bucket, "SENTINEL_ARTIFACT_BUCKET")
	setFromEnv(&cfg.Storage.Split.DynamoDB.Endpoint, "SENTINEL_DDB_ENDPOINT")
	setFromEnv(&cfg.Server.ListenAddr, "SENTINEL_LISTEN_ADDR")

	if v := os.Getenv("SENTINEL_ALLOW_ADMIN_SIM"); v != "" {
		allow := v == "1" || v == "true"
		cfg.Simulator.AllowAdminSim = &allow
	}
}

func setFromEnv(field *string, key string) {
	if v := os.Getenv(key); v != "" {
		*field = v
	}
}
