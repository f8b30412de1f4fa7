// Package awsenv builds aws-sdk-go sessions and the live check environment.
package awsenv

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudtrail"
	"github.com/aws/aws-sdk-go/service/cloudtrail/cloudtrailiface"
	"github.com/aws/aws-sdk-go/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go/service/cloudwatchlogs/cloudwatchlogsiface"
	"github.com/aws/aws-sdk-go/service/configservice"
	"github.com/aws/aws-sdk-go/service/configservice/configserviceiface"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/aws/aws-sdk-go/service/iam"
	"github.com/aws/aws-sdk-go/service/iam/iamiface"
	"github.com/aws/aws-sdk-go/service/kms"
	"github.com/aws/aws-sdk-go/service/kms/kmsiface"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/sts"
	"github.com/aws/aws-sdk-go/service/sts/stsiface"

	"github.com/scan-io-git/cloudsentinel/internal/checks"
	"github.com/scan-io-git/cloudsentinel/pkg/shared/config"
)

// NewSession creates a session for region using the configured profile and endpoint.
// Credentials are resolved lazily by the SDK, so a missing credential chain only shows up
// on the first call.
func NewSession(cfg config.AWS, region string) (*session.Session, error) {
	awsCfg := aws.Config{Region: aws.String(region)}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            awsCfg,
		Profile:           cfg.Profile,
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create aws session: %w", err)
	}
	return sess, nil
}

// Env implements checks.Environment on top of a session. Clients are created on first use.
type Env struct {
	sess *session.Session

	once   sync.Once
	sts    stsiface.STSAPI
	iam    iamiface.IAMAPI
	ct     cloudtrailiface.CloudTrailAPI
	logs   cloudwatchlogsiface.CloudWatchLogsAPI
	s3     s3iface.S3API
	kms    kmsiface.KMSAPI
	ec2    ec2iface.EC2API
	config configserviceiface.ConfigServiceAPI
}

var _ checks.Environment = (*Env)(nil)

func New(sess *session.Session) *Env {
	return &Env{sess: sess}
}

// Factory returns a scanner environment factory bound to the AWS config section.
func Factory(cfg config.AWS) func(region string) (checks.Environment, error) {
	return func(region string) (checks.Environment, error) {
		sess, err := NewSession(cfg, region)
		if err != nil {
			return nil, err
		}
		return New(sess), nil
	}
}

func (e *Env) init() {
	e.once.Do(func() {
		e.sts = sts.New(e.sess)
		e.iam = iam.New(e.sess)
		e.ct = cloudtrail.New(e.sess)
		e.logs = cloudwatchlogs.New(e.sess)
		e.s3 = s3.New(e.sess)
		e.kms = kms.New(e.sess)
		e.ec2 = ec2.New(e.sess)
		e.config = configservice.New(e.sess)
	})
}

// ResolveIdentity calls sts:GetCallerIdentity and returns the account id.
func (e *Env) ResolveIdentity(ctx context.Context) (string, error) {
	e.init()
	return ResolveAccount(ctx, e.sts)
}

// ResolveAccount returns the account id behind the client's credentials.
func ResolveAccount(ctx context.Context, client stsiface.STSAPI) (string, error) {
	out, err := client.GetCallerIdentityWithContext(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("unable to resolve caller identity: %w", err)
	}
	account := aws.StringValue(out.Account)
	if account == "" {
		return "", fmt.Errorf("caller identity returned no account")
	}
	return account, nil
}

func (e *Env) IAM() iamiface.IAMAPI {
	e.init()
	return e.iam
}

func (e *Env) CloudTrail() cloudtrailiface.CloudTrailAPI {
	e.init()
	return e.ct
}

func (e *Env) CloudWatchLogs() cloudwatchlogsiface.CloudWatchLogsAPI {
	e.init()
	return e.logs
}

func (e *Env) S3() s3iface.S3API {
	e.init()
	return e.s3
}

func (e *Env) KMS() kmsiface.KMSAPI {
	e.init()
	return e.kms
}

func (e *Env) EC2() ec2iface.EC2API {
	e.init()
	return e.ec2
}

func (e *Env) ConfigService() configserviceiface.ConfigServiceAPI {
	e.init()
	return e.config
}
