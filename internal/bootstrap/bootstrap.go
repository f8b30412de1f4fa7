// Package bootstrap assembles stores and services from the loaded configuration.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/accessanalyzer"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/cloudsentinel/internal/awsenv"
	"github.com/scan-io-git/cloudsentinel/internal/policy"
	"github.com/scan-io-git/cloudsentinel/internal/scanner"
	"github.com/scan-io-git/cloudsentinel/internal/storage"
	"github.com/scan-io-git/cloudsentinel/internal/storage/split"
	"github.com/scan-io-git/cloudsentinel/internal/storage/sqlite"
	"github.com/scan-io-git/cloudsentinel/internal/timeline"
	"github.com/scan-io-git/cloudsentinel/pkg/shared/config"
)

// OpenStore opens the backend selected by storage.backend.
func OpenStore(ctx context.Context, cfg *config.Config, logger hclog.Logger) (storage.Store, error) {
	logger = logger.Named("storage")
	switch cfg.Storage.Backend {
	case config.BackendEmbedded:
		return sqlite.Open(ctx, cfg.Storage.Embedded.Path, logger)
	case config.BackendSplit:
		return openSplit(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}
}

func openSplit(ctx context.Context, cfg *config.Config, logger hclog.Logger) (storage.Store, error) {
	sc := cfg.Storage.Split

	blobs, err := openBlobs(cfg)
	if err != nil {
		return nil, err
	}

	var index split.Index
	switch sc.Index {
	case config.IndexDynamoDB:
		sess, err := awsenv.NewSession(cfg.AWS, cfg.AWS.Region)
		if err != nil {
			return nil, err
		}
		client := dynamodb.New(sess, endpointConfig(sc.DynamoDB.Endpoint))
		idx := split.NewDynamoIndex(client, sc.DynamoDB.ScansTable, sc.DynamoDB.TimelineTable, logger)
		if config.GetBoolValue(cfg, "Storage.Split.DynamoDB.CreateTables", false) {
			if err := idx.EnsureTables(ctx); err != nil {
				return nil, err
			}
		}
		index = idx
	case config.IndexPostgres:
		idx, err := split.ConnectPostgres(ctx, sc.Postgres.DSN, sc.Postgres.MaxConns, logger)
		if err != nil {
			return nil, err
		}
		index = idx
	default:
		return nil, fmt.Errorf("unsupported split index %q", sc.Index)
	}

	st := split.New(index, blobs, logger)
	logger.Debug("split store opened", "layout", st.Describe())
	return st, nil
}

func openBlobs(cfg *config.Config) (split.BlobStore, error) {
	sc := cfg.Storage.Split
	switch sc.Blob {
	case config.BlobS3:
		sess, err := awsenv.NewSession(cfg.AWS, cfg.AWS.Region)
		if err != nil {
			return nil, err
		}
		s3Cfg := endpointConfig(sc.S3.Endpoint).WithS3ForcePathStyle(sc.S3.ForcePathStyle)
		return split.NewS3Blobs(s3.New(sess, s3Cfg), sc.S3.Bucket, sc.S3.Prefix), nil
	case config.BlobFilesystem:
		return split.NewFilesystemBlobs(sc.Filesystem.Folder)
	default:
		return nil, fmt.Errorf("unsupported split blob store %q", sc.Blob)
	}
}

func endpointConfig(endpoint string) *aws.Config {
	c := aws.NewConfig()
	if endpoint != "" {
		c = c.WithEndpoint(endpoint)
	}
	return c
}

// NewDoctor returns a policy doctor. In live mode it is backed by IAM Access Analyzer,
// otherwise it only applies the local rules.
func NewDoctor(cfg *config.Config, logger hclog.Logger) *policy.Doctor {
	logger = logger.Named("policy")
	if !config.LiveEnabled(cfg) {
		return policy.NewDoctor(nil, logger)
	}
	sess, err := awsenv.NewSession(cfg.AWS, cfg.AWS.Region)
	if err != nil {
		logger.Warn("unable to create aws session, using local policy rules", "error", err)
		return policy.NewDoctor(nil, logger)
	}
	return policy.NewDoctor(accessanalyzer.New(sess), logger)
}

// NewScanner wires the scanner with the live environment factory.
func NewScanner(cfg *config.Config, store storage.Store, logger hclog.Logger) *scanner.Scanner {
	return scanner.New(cfg, scanner.EnvFactory(awsenv.Factory(cfg.AWS)), store, logger.Named("scanner"))
}

func NewSimulator(cfg *config.Config, store storage.Store, logger hclog.Logger) *timeline.Simulator {
	return timeline.NewSimulator(store, cfg.Simulator, logger.Named("simulator"))
}

// NewCloudTrailSource reads the live audit log of the configured account.
func NewCloudTrailSource(cfg *config.Config) (*timeline.CloudTrailSource, error) {
	sess, err := awsenv.NewSession(cfg.AWS, cfg.AWS.Region)
	if err != nil {
		return nil, err
	}
	return timeline.NewCloudTrailSource(awsenv.New(sess).CloudTrail(), cfg.Simulator.ProjectTag), nil
}
