package checks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/cloudsentinel/internal/model"
	"github.com/scan-io-git/cloudsentinel/internal/scoring"
)

func testDef(id string) Definition {
	return Definition{
		ID:        id,
		Title:     "Test " + id,
		Domain:    "Testing",
		Severity:  model.SeverityLow,
		Weight:    5,
		ErrorHint: "Grant test:Read.",
	}
}

func passing(id string) Check[struct{}] {
	return New(testDef(id), func(context.Context, struct{}, string) (Outcome, error) {
		return Outcome{Status: model.StatusPass, Evidence: map[string]interface{}{"ok": true}}, nil
	})
}

func byID(results []model.Result) map[string]model.Result {
	out := make(map[string]model.Result, len(results))
	for _, r := range results {
		out[r.ID] = r
	}
	return out
}

func TestNewRegistryValidation(t *testing.T) {
	_, err := NewRegistry(passing("a"), passing("a"))
	assert.EqualError(t, err, `duplicate check id "a"`)

	bad := testDef("b")
	bad.Severity = "severe"
	_, err = NewRegistry(New(bad, func(context.Context, struct{}, string) (Outcome, error) { return Outcome{}, nil }))
	assert.Error(t, err)

	noDomain := testDef("c")
	noDomain.Domain = ""
	_, err = NewRegistry(New(noDomain, func(context.Context, struct{}, string) (Outcome, error) { return Outcome{}, nil }))
	assert.EqualError(t, err, `check "c": title and domain are required`)
}

func TestRunSelfQuarantine(t *testing.T) {
	reg, err := NewRegistry(
		passing("ok"),
		New(testDef("call-fails"), func(context.Context, struct{}, string) (Outcome, error) {
			return Outcome{}, awserr.New("AccessDenied", "not authorized", nil)
		}),
		New(testDef("panics"), func(context.Context, struct{}, string) (Outcome, error) {
			var m map[string]int
			m["boom"] = 1
			return Outcome{}, nil
		}),
		New(testDef("bad-status"), func(context.Context, struct{}, string) (Outcome, error) {
			return Outcome{Status: "great"}, nil
		}),
		New(testDef("hangs"), func(ctx context.Context, _ struct{}, _ string) (Outcome, error) {
			<-ctx.Done()
			time.Sleep(10 * time.Millisecond)
			return Outcome{Status: model.StatusPass}, nil
		}),
	)
	require.NoError(t, err)

	results := reg.Run(context.Background(), struct{}{}, "us-east-1", RunOptions{Concurrency: 2, Timeout: 50 * time.Millisecond})
	require.Len(t, results, 5)

	got := byID(results)
	assert.Equal(t, model.StatusPass, got["ok"].Status)

	failed := got["call-fails"]
	assert.Equal(t, model.StatusError, failed.Status)
	assert.Equal(t, "AccessDenied: not authorized", failed.Evidence["error"])
	assert.Equal(t, "AccessDenied", failed.Evidence["error_code"])
	assert.Equal(t, "Grant test:Read.", failed.Recommendation)
	assert.Equal(t, 5, failed.Weight)

	assert.Equal(t, model.StatusError, got["panics"].Status)
	assert.Contains(t, got["panics"].Evidence["error"], "check panicked")

	assert.Equal(t, model.StatusError, got["bad-status"].Status)
	assert.Contains(t, got["bad-status"].Evidence["error"], "invalid result")

	assert.Equal(t, model.StatusError, got["hangs"].Status)
	assert.Equal(t, "check timed out after 50ms", got["hangs"].Evidence["error"])

	for _, r := range results {
		assert.NoError(t, r.Validate())
	}
}

func TestRunKeepsRegistryOrder(t *testing.T) {
	var list []Check[struct{}]
	ids := []string{"a", "b", "c", "d", "e", "f"}
	for i, id := range ids {
		delay := time.Duration(len(ids)-i) * 5 * time.Millisecond
		list = append(list, New(testDef(id), func(context.Context, struct{}, string) (Outcome, error) {
			time.Sleep(delay)
			return Outcome{Status: model.StatusPass}, nil
		}))
	}
	reg, err := NewRegistry(list...)
	require.NoError(t, err)

	results := reg.Run(context.Background(), struct{}{}, "", RunOptions{Concurrency: 6})
	for i, r := range results {
		assert.Equal(t, ids[i], r.ID)
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	var running, peak int32
	var list []Check[struct{}]
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		list = append(list, New(testDef(id), func(context.Context, struct{}, string) (Outcome, error) {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return Outcome{Status: model.StatusPass}, nil
		}))
	}
	reg, err := NewRegistry(list...)
	require.NoError(t, err)

	reg.Run(context.Background(), struct{}{}, "", RunOptions{Concurrency: 3})
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestLiveRegistryDefinitions(t *testing.T) {
	reg := LiveRegistry()
	want := map[string]int{
		"iam.root_mfa":                   15,
		"iam.password_policy":            10,
		"iam.old_access_keys":            10,
		"iam.admin_attachments":          12,
		"logging.cloudtrail_enabled":     15,
		"logging.cloudtrail_multiregion": 10,
		"logging.log_group_retention":    8,
		"s3.public_access_block":         12,
		"s3.default_encryption":          10,
		"s3.access_logging":              8,
		"kms.key_policy_sanity":          10,
		"net.sg_open_sensitive_ports":    15,
		"ir.aws_config_recorder":         8,
	}
	require.Equal(t, len(want), reg.Len())
	for _, d := range reg.Definitions() {
		assert.Equal(t, want[d.ID], d.Weight, d.ID)
		assert.NotEmpty(t, d.ErrorHint, d.ID)
	}
}

func TestLiveChecksHardenedAccount(t *testing.T) {
	results := LiveRegistry().Run(context.Background(), hardenedEnv(), "us-east-1", RunOptions{Concurrency: 4, Timeout: time.Second})
	for _, r := range results {
		assert.Equal(t, model.StatusPass, r.Status, "%s: %v", r.ID, r.Evidence)
	}
	score, _ := scoring.Compute(results)
	assert.Equal(t, 100, score)
}

func TestLiveChecksWeakAccount(t *testing.T) {
	env := hardenedEnv()
	weakIAM := env.iam.(*fakeIAM)
	weakIAM.mfa = 0
	weakIAM.policy = nil
	weakIAM.keyAge = 120 * 24 * time.Hour
	weakIAM.adminUser = "alice"
	env.ct.(*fakeCloudTrail).logging = false
	env.ct.(*fakeCloudTrail).trails[0].IsMultiRegionTrail = aws.Bool(false)
	env.logs.(*fakeLogs).groups[0].RetentionInDays = nil
	env.s3 = &fakeS3{buckets: []string{"a"}}
	env.kms.(*fakeKMS).policies["k1"] = `{"Statement":{"Effect":"Allow","Principal":"*","Action":"kms:*","Resource":"*"}}`
	env.ec2.(*fakeEC2).groups[0].IpPermissions = append(env.ec2.(*fakeEC2).groups[0].IpPermissions, &ec2.IpPermission{
		FromPort: aws.Int64(0), ToPort: aws.Int64(65535),
		Ipv6Ranges: []*ec2.Ipv6Range{{CidrIpv6: aws.String("::/0")}},
	})
	env.config = &fakeConfig{}

	got := byID(LiveRegistry().Run(context.Background(), env, "us-east-1", RunOptions{Concurrency: 4, Timeout: time.Second}))

	assert.Equal(t, model.StatusFail, got["iam.root_mfa"].Status)
	assert.Equal(t, model.StatusWarn, got["iam.password_policy"].Status)
	assert.Equal(t, model.StatusWarn, got["iam.old_access_keys"].Status)
	assert.Equal(t, 1, got["iam.old_access_keys"].Evidence["count"])
	assert.Equal(t, model.StatusWarn, got["iam.admin_attachments"].Status)
	assert.Equal(t, model.StatusFail, got["logging.cloudtrail_enabled"].Status)
	assert.Equal(t, model.StatusWarn, got["logging.cloudtrail_multiregion"].Status)
	assert.Equal(t, model.StatusWarn, got["logging.log_group_retention"].Status)
	assert.Equal(t, model.StatusWarn, got["s3.public_access_block"].Status)
	assert.Equal(t, model.StatusWarn, got["s3.default_encryption"].Status)
	assert.Equal(t, model.StatusWarn, got["s3.access_logging"].Status)
	assert.Equal(t, model.StatusWarn, got["kms.key_policy_sanity"].Status)
	assert.Equal(t, model.StatusFail, got["net.sg_open_sensitive_ports"].Status)
	assert.Equal(t, 1, got["net.sg_open_sensitive_ports"].Evidence["count"])
	assert.Equal(t, model.StatusWarn, got["ir.aws_config_recorder"].Status)
}

func TestLiveChecksQuarantineMissingClients(t *testing.T) {
	env := &fakeEnv{account: "1", iam: &fakeIAM{summaryErr: errors.New("dial tcp: timeout")}}

	results := LiveRegistry().Run(context.Background(), env, "us-east-1", RunOptions{Concurrency: 4, Timeout: time.Second})
	require.Len(t, results, 13)

	got := byID(results)
	assert.Equal(t, "dial tcp: timeout", got["iam.root_mfa"].Evidence["error"])
	assert.Equal(t, "Ensure the scanning role can call iam:GetAccountSummary.", got["iam.root_mfa"].Recommendation)
	for _, id := range []string{"logging.cloudtrail_enabled", "s3.default_encryption", "kms.key_policy_sanity", "ir.aws_config_recorder"} {
		assert.Equal(t, model.StatusError, got[id].Status, id)
	}

	// only the password policy, access key and admin checks could be counted
	_, b := scoring.Compute(results)
	assert.Equal(t, 32, b.TotalWeight)
	assert.Equal(t, 10, b.StatusCounts[model.StatusError])
}

func TestLocalRegistry(t *testing.T) {
	reg := LocalRegistry()
	require.Equal(t, 10, reg.Len())

	quiet := byID(reg.Run(context.Background(), Timeline{Backend: "embedded"}, "us-east-1", RunOptions{Concurrency: 1}))
	assert.Equal(t, model.StatusPass, quiet["iam.old_access_keys"].Status)
	assert.Equal(t, model.StatusPass, quiet["data.s3_public_access_block"].Status)
	assert.Equal(t, model.StatusFail, quiet["log.alerting_baseline"].Status)
	assert.Equal(t, "embedded", quiet["log.cloudtrail_enabled"].Evidence["store"])
	for _, r := range quiet {
		assert.Equal(t, "local", r.Evidence["mode"], r.ID)
	}

	busy := byID(reg.Run(context.Background(), Timeline{Events: []model.TimelineEvent{
		{EventName: "CreateBucket"},
		{EventName: "PutBucketAcl"},
		{EventName: "AttachUserPolicy"},
	}}, "us-east-1", RunOptions{Concurrency: 1}))
	assert.Equal(t, model.StatusPass, busy["iam.old_access_keys"].Status)
	assert.Equal(t, model.StatusWarn, busy["iam.admin_attachments"].Status)
	assert.Equal(t, model.StatusWarn, busy["data.s3_public_access_block"].Status)
	assert.Equal(t, model.StatusWarn, busy["log.alerting_baseline"].Status)
	assert.Equal(t, 3, busy["log.alerting_baseline"].Evidence["events_last_7d"])
}
