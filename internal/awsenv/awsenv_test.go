package awsenv

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/sts"
	"github.com/aws/aws-sdk-go/service/sts/stsiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/cloudsentinel/pkg/shared/config"
)

type fakeSTS struct {
	stsiface.STSAPI
	account string
	err     error
}

func (f *fakeSTS) GetCallerIdentityWithContext(aws.Context, *sts.GetCallerIdentityInput, ...request.Option) (*sts.GetCallerIdentityOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &sts.GetCallerIdentityOutput{Account: aws.String(f.account)}, nil
}

func TestResolveAccount(t *testing.T) {
	account, err := ResolveAccount(context.Background(), &fakeSTS{account: "123456789012"})
	require.NoError(t, err)
	assert.Equal(t, "123456789012", account)

	_, err = ResolveAccount(context.Background(), &fakeSTS{err: errors.New("NoCredentialProviders")})
	assert.EqualError(t, err, "unable to resolve caller identity: NoCredentialProviders")

	_, err = ResolveAccount(context.Background(), &fakeSTS{})
	assert.EqualError(t, err, "caller identity returned no account")
}

func TestNewSessionRegion(t *testing.T) {
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_CONFIG_FILE", t.TempDir()+"/config")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", t.TempDir()+"/credentials")

	sess, err := NewSession(config.AWS{Endpoint: "http://localhost:4566"}, "eu-west-1")
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", aws.StringValue(sess.Config.Region))
	assert.Equal(t, "http://localhost:4566", aws.StringValue(sess.Config.Endpoint))

	env := New(sess)
	assert.NotNil(t, env.IAM())
	assert.NotNil(t, env.S3())
}
