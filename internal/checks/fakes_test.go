package checks

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
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
)

// fakeEnv wires per-service fakes. A nil client panics when used, which the check
// wrapper turns into an error result.
type fakeEnv struct {
	account string
	iam     iamiface.IAMAPI
	ct      cloudtrailiface.CloudTrailAPI
	logs    cloudwatchlogsiface.CloudWatchLogsAPI
	s3      s3iface.S3API
	kms     kmsiface.KMSAPI
	ec2     ec2iface.EC2API
	config  configserviceiface.ConfigServiceAPI
}

func (f *fakeEnv) ResolveIdentity(context.Context) (string, error) {
	if f.account == "" {
		return "", errors.New("no credentials")
	}
	return f.account, nil
}

func (f *fakeEnv) IAM() iamiface.IAMAPI { return f.iam }
func (f *fakeEnv) CloudTrail() cloudtrailiface.CloudTrailAPI { return f.ct }
func (f *fakeEnv) CloudWatchLogs() cloudwatchlogsiface.CloudWatchLogsAPI { return f.logs }
func (f *fakeEnv) S3() s3iface.S3API { return f.s3 }
func (f *fakeEnv) KMS() kmsiface.KMSAPI { return f.kms }
func (f *fakeEnv) EC2() ec2iface.EC2API { return f.ec2 }
func (f *fakeEnv) ConfigService() configserviceiface.ConfigServiceAPI { return f.config }

type fakeIAM struct {
	iamiface.IAMAPI
	mfa        int64
	policy     *iam.PasswordPolicy
	users      []string
	roles      []string
	keyAge     time.Duration
	adminUser  string
	summaryErr error
}

func (f *fakeIAM) GetAccountSummaryWithContext(aws.Context, *iam.GetAccountSummaryInput, ...request.Option) (*iam.GetAccountSummaryOutput, error) {
	if f.summaryErr != nil {
		return nil, f.summaryErr
	}
	return &iam.GetAccountSummaryOutput{SummaryMap: map[string]*int64{"AccountMFAEnabled": aws.Int64(f.mfa)}}, nil
}

func (f *fakeIAM) GetAccountPasswordPolicyWithContext(aws.Context, *iam.GetAccountPasswordPolicyInput, ...request.Option) (*iam.GetAccountPasswordPolicyOutput, error) {
	if f.policy == nil {
		return nil, awserr.New(iam.ErrCodeNoSuchEntityException, "The Password Policy with domain name 1 cannot be found.", nil)
	}
	return &iam.GetAccountPasswordPolicyOutput{PasswordPolicy: f.policy}, nil
}

func (f *fakeIAM) ListUsersPagesWithContext(_ aws.Context, _ *iam.ListUsersInput, fn func(*iam.ListUsersOutput, bool) bool, _ ...request.Option) error {
	page := &iam.ListUsersOutput{}
	for _, u := range f.users {
		page.Users = append(page.Users, &iam.User{UserName: aws.String(u)})
	}
	fn(page, true)
	return nil
}

func (f *fakeIAM) ListAccessKeysWithContext(_ aws.Context, in *iam.ListAccessKeysInput, _ ...request.Option) (*iam.ListAccessKeysOutput, error) {
	return &iam.ListAccessKeysOutput{AccessKeyMetadata: []*iam.AccessKeyMetadata{{
		UserName:    in.UserName,
		AccessKeyId: aws.String("AKIA" + aws.StringValue(in.UserName)),
		CreateDate:  aws.Time(time.Now().Add(-f.keyAge)),
	}}}, nil
}

func (f *fakeIAM) ListAttachedUserPoliciesWithContext(_ aws.Context, in *iam.ListAttachedUserPoliciesInput, _ ...request.Option) (*iam.ListAttachedUserPoliciesOutput, error) {
	out := &iam.ListAttachedUserPoliciesOutput{}
	if aws.StringValue(in.UserName) == f.adminUser {
		out.AttachedPolicies = []*iam.AttachedPolicy{{PolicyArn: aws.String("arn:aws:iam::aws:policy/AdministratorAccess")}}
	}
	return out, nil
}

func (f *fakeIAM) ListRolesPagesWithContext(_ aws.Context, _ *iam.ListRolesInput, fn func(*iam.ListRolesOutput, bool) bool, _ ...request.Option) error {
	page := &iam.ListRolesOutput{}
	for _, r := range f.roles {
		page.Roles = append(page.Roles, &iam.Role{RoleName: aws.String(r)})
	}
	fn(page, true)
	return nil
}

func (f *fakeIAM) ListAttachedRolePoliciesWithContext(aws.Context, *iam.ListAttachedRolePoliciesInput, ...request.Option) (*iam.ListAttachedRolePoliciesOutput, error) {
	return &iam.ListAttachedRolePoliciesOutput{AttachedPolicies: []*iam.AttachedPolicy{{PolicyArn: aws.String("arn:aws:iam::aws:policy/ReadOnlyAccess")}}}, nil
}

type fakeCloudTrail struct {
	cloudtrailiface.CloudTrailAPI
	trails  []*cloudtrail.Trail
	logging bool
}

func (f *fakeCloudTrail) DescribeTrailsWithContext(aws.Context, *cloudtrail.DescribeTrailsInput, ...request.Option) (*cloudtrail.DescribeTrailsOutput, error) {
	return &cloudtrail.DescribeTrailsOutput{TrailList: f.trails}, nil
}

func (f *fakeCloudTrail) GetTrailStatusWithContext(aws.Context, *cloudtrail.GetTrailStatusInput, ...request.Option) (*cloudtrail.GetTrailStatusOutput, error) {
	return &cloudtrail.GetTrailStatusOutput{IsLogging: aws.Bool(f.logging)}, nil
}

type fakeLogs struct {
	cloudwatchlogsiface.CloudWatchLogsAPI
	groups []*cloudwatchlogs.LogGroup
}

func (f *fakeLogs) DescribeLogGroupsWithContext(aws.Context, *cloudwatchlogs.DescribeLogGroupsInput, ...request.Option) (*cloudwatchlogs.DescribeLogGroupsOutput, error) {
	return &cloudwatchlogs.DescribeLogGroupsOutput{LogGroups: f.groups}, nil
}

type fakeS3 struct {
	s3iface.S3API
	buckets   []string
	blocked   bool
	encrypted bool
	logged    bool
}

func (f *fakeS3) ListBucketsWithContext(aws.Context, *s3.ListBucketsInput, ...request.Option) (*s3.ListBucketsOutput, error) {
	out := &s3.ListBucketsOutput{}
	for _, b := range f.buckets {
		out.Buckets = append(out.Buckets, &s3.Bucket{Name: aws.String(b)})
	}
	return out, nil
}

func (f *fakeS3) GetPublicAccessBlockWithContext(aws.Context, *s3.GetPublicAccessBlockInput, ...request.Option) (*s3.GetPublicAccessBlockOutput, error) {
	return &s3.GetPublicAccessBlockOutput{PublicAccessBlockConfiguration: &s3.PublicAccessBlockConfiguration{
		BlockPublicAcls:       aws.Bool(f.blocked),
		IgnorePublicAcls:      aws.Bool(true),
		BlockPublicPolicy:     aws.Bool(true),
		RestrictPublicBuckets: aws.Bool(true),
	}}, nil
}

func (f *fakeS3) GetBucketEncryptionWithContext(aws.Context, *s3.GetBucketEncryptionInput, ...request.Option) (*s3.GetBucketEncryptionOutput, error) {
	if !f.encrypted {
		return nil, awserr.New("ServerSideEncryptionConfigurationNotFoundError", "not found", nil)
	}
	return &s3.GetBucketEncryptionOutput{ServerSideEncryptionConfiguration: &s3.ServerSideEncryptionConfiguration{
		Rules: []*s3.ServerSideEncryptionRule{{}},
	}}, nil
}

func (f *fakeS3) GetBucketLoggingWithContext(aws.Context, *s3.GetBucketLoggingInput, ...request.Option) (*s3.GetBucketLoggingOutput, error) {
	out := &s3.GetBucketLoggingOutput{}
	if f.logged {
		out.LoggingEnabled = &s3.LoggingEnabled{TargetBucket: aws.String("logs")}
	}
	return out, nil
}

type fakeKMS struct {
	kmsiface.KMSAPI
	policies map[string]string
}

func (f *fakeKMS) ListKeysWithContext(aws.Context, *kms.ListKeysInput, ...request.Option) (*kms.ListKeysOutput, error) {
	out := &kms.ListKeysOutput{}
	for id := range f.policies {
		out.Keys = append(out.Keys, &kms.KeyListEntry{KeyId: aws.String(id)})
	}
	return out, nil
}

func (f *fakeKMS) GetKeyPolicyWithContext(_ aws.Context, in *kms.GetKeyPolicyInput, _ ...request.Option) (*kms.GetKeyPolicyOutput, error) {
	return &kms.GetKeyPolicyOutput{Policy: aws.String(f.policies[aws.StringValue(in.KeyId)])}, nil
}

type fakeEC2 struct {
	ec2iface.EC2API
	groups []*ec2.SecurityGroup
}

func (f *fakeEC2) DescribeSecurityGroupsWithContext(aws.Context, *ec2.DescribeSecurityGroupsInput, ...request.Option) (*ec2.DescribeSecurityGroupsOutput, error) {
	return &ec2.DescribeSecurityGroupsOutput{SecurityGroups: f.groups}, nil
}

type fakeConfig struct {
	configserviceiface.ConfigServiceAPI
	recorders []string
}

func (f *fakeConfig) DescribeConfigurationRecordersWithContext(aws.Context, *configservice.DescribeConfigurationRecordersInput, ...request.Option) (*configservice.DescribeConfigurationRecordersOutput, error) {
	out := &configservice.DescribeConfigurationRecordersOutput{}
	for _, r := range f.recorders {
		out.ConfigurationRecorders = append(out.ConfigurationRecorders, &configservice.ConfigurationRecorder{Name: aws.String(r)})
	}
	return out, nil
}

// hardenedEnv is an account where every live check passes.
func hardenedEnv() *fakeEnv {
	return &fakeEnv{
		account: "123456789012",
		iam: &fakeIAM{
			mfa:    1,
			policy: &iam.PasswordPolicy{MinimumPasswordLength: aws.Int64(14), RequireSymbols: aws.Bool(true), RequireNumbers: aws.Bool(true)},
			users:  []string{"alice"},
			roles:  []string{"deploy"},
			keyAge: 24 * time.Hour,
		},
		ct: &fakeCloudTrail{
			trails:  []*cloudtrail.Trail{{Name: aws.String("main"), IsMultiRegionTrail: aws.Bool(true), HomeRegion: aws.String("us-east-1")}},
			logging: true,
		},
		logs: &fakeLogs{groups: []*cloudwatchlogs.LogGroup{{LogGroupName: aws.String("/app"), RetentionInDays: aws.Int64(30)}}},
		s3:   &fakeS3{buckets: []string{"a", "b"}, blocked: true, encrypted: true, logged: true},
		kms: &fakeKMS{policies: map[string]string{
			"k1": `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":"arn:aws:iam::123456789012:role/app"},"Action":["kms:Decrypt"],"Resource":"*"}]}`,
		}},
		ec2: &fakeEC2{groups: []*ec2.SecurityGroup{{
			GroupId: aws.String("sg-1"),
			IpPermissions: []*ec2.IpPermission{{
				FromPort: aws.Int64(443), ToPort: aws.Int64(443),
				IpRanges: []*ec2.IpRange{{CidrIp: aws.String("0.0.0.0/0")}},
			}},
		}}},
		config: &fakeConfig{recorders: []string{"default"}},
	}
}
