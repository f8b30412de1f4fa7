package checks

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/kms"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/scan-io-git/cloudsentinel/internal/model"
	"github.com/scan-io-git/cloudsentinel/internal/policy"
	sentinelerrors "github.com/scan-io-git/cloudsentinel/pkg/shared/errors"
)

const (
	DomainDataProtection = "Data Protection"

	bucketSampleSize = 10
	kmsKeySampleSize = 5
)

// sampleBuckets returns at most bucketSampleSize bucket names.
func sampleBuckets(ctx context.Context, client s3iface.S3API) ([]string, error) {
	out, err := client.ListBucketsWithContext(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, bucketSampleSize)
	for _, b := range out.Buckets {
		if len(names) == bucketSampleSize {
			break
		}
		names = append(names, aws.StringValue(b.Name))
	}
	return names, nil
}

// bucketOutcome maps the noncompliant samples of a per-bucket probe onto pass or warn.
func bucketOutcome(bad []map[string]interface{}, sampled int, recommendation string) Outcome {
	status := model.StatusPass
	if len(bad) > 0 {
		status = model.StatusWarn
	}
	return Outcome{
		Status:         status,
		Evidence:       map[string]interface{}{"noncompliant_samples": sample(bad, bucketSampleSize), "sampled": sampled},
		Recommendation: recommendation,
	}
}

var publicAccessBlockDef = Definition{
	ID:         "s3.public_access_block",
	Title:      "S3 public access block enabled (sampled buckets)",
	Domain:     DomainDataProtection,
	Severity:   model.SeverityHigh,
	Weight:     12,
	References: []string{"https://docs.aws.amazon.com/AmazonS3/latest/userguide/access-control-block-public-access.html"},
	ErrorHint:  "Ensure the scanning role can call s3:ListAllMyBuckets and s3:GetBucketPublicAccessBlock.",
}

func publicAccessBlock(ctx context.Context, env Environment, _ string) (Outcome, error) {
	client := env.S3()
	buckets, err := sampleBuckets(ctx, client)
	if err != nil {
		return Outcome{}, err
	}

	var bad []map[string]interface{}
	for _, name := range buckets {
		out, err := client.GetPublicAccessBlockWithContext(ctx, &s3.GetPublicAccessBlockInput{Bucket: aws.String(name)})
		if err != nil {
			bad = append(bad, map[string]interface{}{"bucket": name, "error": sentinelerrors.DescribeAWSError(err)})
			continue
		}
		pab := out.PublicAccessBlockConfiguration
		if pab == nil {
			pab = &s3.PublicAccessBlockConfiguration{}
		}
		if !(aws.BoolValue(pab.BlockPublicAcls) && aws.BoolValue(pab.IgnorePublicAcls) &&
			aws.BoolValue(pab.BlockPublicPolicy) && aws.BoolValue(pab.RestrictPublicBuckets)) {
			bad = append(bad, map[string]interface{}{
				"bucket": name,
				"public_access_block": map[string]interface{}{
					"BlockPublicAcls":       aws.BoolValue(pab.BlockPublicAcls),
					"IgnorePublicAcls":      aws.BoolValue(pab.IgnorePublicAcls),
					"BlockPublicPolicy":     aws.BoolValue(pab.BlockPublicPolicy),
					"RestrictPublicBuckets": aws.BoolValue(pab.RestrictPublicBuckets),
				},
			})
		}
	}

	return bucketOutcome(bad, len(buckets),
		"Enable S3 Public Access Block at account and bucket level; avoid public ACLs/policies."), nil
}

var defaultEncryptionDef = Definition{
	ID:         "s3.default_encryption",
	Title:      "S3 default encryption enabled (sampled buckets)",
	Domain:     DomainDataProtection,
	Severity:   model.SeverityHigh,
	Weight:     10,
	References: []string{"https://docs.aws.amazon.com/AmazonS3/latest/userguide/bucket-encryption.html"},
	ErrorHint:  "Ensure the scanning role can call s3:GetEncryptionConfiguration and s3:ListAllMyBuckets.",
}

func defaultEncryption(ctx context.Context, env Environment, _ string) (Outcome, error) {
	client := env.S3()
	buckets, err := sampleBuckets(ctx, client)
	if err != nil {
		return Outcome{}, err
	}

	var missing []map[string]interface{}
	for _, name := range buckets {
		out, err := client.GetBucketEncryptionWithContext(ctx, &s3.GetBucketEncryptionInput{Bucket: aws.String(name)})
		if err != nil {
			// buckets without an encryption configuration answer with an error
			missing = append(missing, map[string]interface{}{"bucket": name, "error": sentinelerrors.DescribeAWSError(err)})
			continue
		}
		if out.ServerSideEncryptionConfiguration == nil || len(out.ServerSideEncryptionConfiguration.Rules) == 0 {
			missing = append(missing, map[string]interface{}{"bucket": name, "encryption": "no rules"})
		}
	}

	return bucketOutcome(missing, len(buckets),
		"Enable default encryption (SSE-S3 or SSE-KMS) for all buckets storing sensitive data."), nil
}

var accessLoggingDef = Definition{
	ID:         "s3.access_logging",
	Title:      "S3 server access logging enabled (sampled buckets)",
	Domain:     DomainLogging,
	Severity:   model.SeverityMedium,
	Weight:     8,
	References: []string{"https://docs.aws.amazon.com/AmazonS3/latest/userguide/ServerLogs.html"},
	ErrorHint:  "Ensure the scanning role can call s3:GetBucketLogging and s3:ListAllMyBuckets.",
}

func accessLogging(ctx context.Context, env Environment, _ string) (Outcome, error) {
	client := env.S3()
	buckets, err := sampleBuckets(ctx, client)
	if err != nil {
		return Outcome{}, err
	}

	var noLogging []map[string]interface{}
	for _, name := range buckets {
		out, err := client.GetBucketLoggingWithContext(ctx, &s3.GetBucketLoggingInput{Bucket: aws.String(name)})
		if err != nil {
			noLogging = append(noLogging, map[string]interface{}{"bucket": name, "error": sentinelerrors.DescribeAWSError(err)})
			continue
		}
		if out.LoggingEnabled == nil {
			noLogging = append(noLogging, map[string]interface{}{"bucket": name})
		}
	}

	return bucketOutcome(noLogging, len(buckets),
		"Enable S3 server access logging (or CloudTrail data events) for high-value buckets."), nil
}

var kmsKeyPolicyDef = Definition{
	ID:         "kms.key_policy_sanity",
	Title:      "KMS key policy sanity (sampled keys)",
	Domain:     DomainDataProtection,
	Severity:   model.SeverityHigh,
	Weight:     10,
	References: []string{"https://docs.aws.amazon.com/kms/latest/developerguide/key-policies.html"},
	ErrorHint:  "Ensure the scanning role can call kms:ListKeys and kms:GetKeyPolicy.",
}

func kmsKeyPolicy(ctx context.Context, env Environment, _ string) (Outcome, error) {
	client := env.KMS()
	keys, err := client.ListKeysWithContext(ctx, &kms.ListKeysInput{Limit: aws.Int64(kmsKeySampleSize)})
	if err != nil {
		return Outcome{}, err
	}

	var findings []map[string]interface{}
	for _, k := range keys.Keys {
		keyID := aws.StringValue(k.KeyId)
		out, err := client.GetKeyPolicyWithContext(ctx, &kms.GetKeyPolicyInput{KeyId: k.KeyId, PolicyName: aws.String("default")})
		if err != nil {
			continue
		}
		findings = append(findings, keyPolicyFindings(keyID, aws.StringValue(out.Policy))...)
	}

	status := model.StatusPass
	if len(findings) > 0 {
		status = model.StatusWarn
	}
	return Outcome{
		Status:         status,
		Evidence:       map[string]interface{}{"findings": sample(findings, 10), "sampled": len(keys.Keys)},
		Recommendation: "Avoid wildcard principals and overly broad KMS permissions; scope keys to workloads and roles.",
	}, nil
}

func keyPolicyFindings(keyID, raw string) []map[string]interface{} {
	doc, err := policy.ParseDocument(raw)
	if err != nil {
		return nil
	}

	var findings []map[string]interface{}
	for _, s := range doc.Statement {
		if s.Effect != "Allow" || !s.Action.Contains("*", "kms:*") {
			continue
		}
		if s.Principal.IsPublic() {
			findings = append(findings, map[string]interface{}{"key_id": keyID, "issue": "Wildcard principal with broad KMS actions", "sid": s.Sid})
		}
		if s.Resource.Contains("*") {
			findings = append(findings, map[string]interface{}{"key_id": keyID, "issue": "Resource '*' with broad KMS actions", "sid": s.Sid})
		}
	}
	return findings
}
