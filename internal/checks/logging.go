package checks

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/cloudtrail"
	"github.com/aws/aws-sdk-go/service/cloudwatchlogs"

	"github.com/scan-io-git/cloudsentinel/internal/model"
)

const (
	DomainLogging     = "Logging & Traceability"
	DomainIRReadiness = "IR Readiness"

	maxLogRetentionDays = 90
)

var cloudTrailEnabledDef = Definition{
	ID:         "logging.cloudtrail_enabled",
	Title:      "CloudTrail enabled (logging)",
	Domain:     DomainLogging,
	Severity:   model.SeverityCritical,
	Weight:     15,
	References: []string{"https://docs.aws.amazon.com/awscloudtrail/latest/userguide/cloudtrail-create-and-update-a-trail.html"},
	ErrorHint:  "Ensure the scanning role can call cloudtrail:DescribeTrails and cloudtrail:GetTrailStatus.",
}

func cloudTrailEnabled(ctx context.Context, env Environment, _ string) (Outcome, error) {
	client := env.CloudTrail()
	trails, err := client.DescribeTrailsWithContext(ctx, &cloudtrail.DescribeTrailsInput{IncludeShadowTrails: aws.Bool(false)})
	if err != nil {
		return Outcome{}, err
	}

	logging := []map[string]interface{}{}
	for _, t := range trails.TrailList {
		st, err := client.GetTrailStatusWithContext(ctx, &cloudtrail.GetTrailStatusInput{Name: t.Name})
		if err != nil {
			return Outcome{}, err
		}
		if aws.BoolValue(st.IsLogging) {
			logging = append(logging, map[string]interface{}{
				"name":        aws.StringValue(t.Name),
				"arn":         aws.StringValue(t.TrailARN),
				"home_region": aws.StringValue(t.HomeRegion),
			})
		}
	}

	status := model.StatusFail
	if len(logging) > 0 {
		status = model.StatusPass
	}
	return Outcome{
		Status:         status,
		Evidence:       map[string]interface{}{"logging_trails": logging, "count": len(logging)},
		Recommendation: "Enable CloudTrail and ensure it is logging to an S3 bucket (and optionally CloudWatch Logs).",
	}, nil
}

var cloudTrailMultiRegionDef = Definition{
	ID:         "logging.cloudtrail_multiregion",
	Title:      "CloudTrail multi-region trail recommended",
	Domain:     DomainIRReadiness,
	Severity:   model.SeverityHigh,
	Weight:     10,
	References: []string{"https://docs.aws.amazon.com/awscloudtrail/latest/userguide/cloudtrail-concepts.html#cloudtrail-concepts-management-events"},
	ErrorHint:  "Ensure the scanning role can call cloudtrail:DescribeTrails.",
}

func cloudTrailMultiRegion(ctx context.Context, env Environment, _ string) (Outcome, error) {
	trails, err := env.CloudTrail().DescribeTrailsWithContext(ctx, &cloudtrail.DescribeTrailsInput{IncludeShadowTrails: aws.Bool(false)})
	if err != nil {
		return Outcome{}, err
	}

	multi := []map[string]interface{}{}
	for _, t := range trails.TrailList {
		if aws.BoolValue(t.IsMultiRegionTrail) {
			multi = append(multi, map[string]interface{}{
				"name":        aws.StringValue(t.Name),
				"home_region": aws.StringValue(t.HomeRegion),
			})
		}
	}

	status := model.StatusWarn
	if len(multi) > 0 {
		status = model.StatusPass
	}
	return Outcome{
		Status:         status,
		Evidence:       map[string]interface{}{"multi_region_trails": multi},
		Recommendation: "Use a multi-region trail to capture management events across regions.",
	}, nil
}

var logGroupRetentionDef = Definition{
	ID:         "logging.log_group_retention",
	Title:      "CloudWatch Logs retention set (avoid infinite retention)",
	Domain:     DomainLogging,
	Severity:   model.SeverityLow,
	Weight:     8,
	References: []string{"https://docs.aws.amazon.com/AmazonCloudWatch/latest/logs/Working-with-log-groups-and-streams.html"},
	ErrorHint:  "Ensure the scanning role can call logs:DescribeLogGroups.",
}

// logGroupRetention only inspects the first page of log groups.
func logGroupRetention(ctx context.Context, env Environment, _ string) (Outcome, error) {
	out, err := env.CloudWatchLogs().DescribeLogGroupsWithContext(ctx, &cloudwatchlogs.DescribeLogGroupsInput{Limit: aws.Int64(10)})
	if err != nil {
		return Outcome{}, err
	}

	var groups []map[string]interface{}
	for _, g := range out.LogGroups {
		if g.RetentionInDays == nil || *g.RetentionInDays > maxLogRetentionDays {
			var retention interface{}
			if g.RetentionInDays != nil {
				retention = *g.RetentionInDays
			}
			groups = append(groups, map[string]interface{}{
				"logGroupName":    aws.StringValue(g.LogGroupName),
				"retentionInDays": retention,
			})
		}
	}

	status := model.StatusPass
	if len(groups) > 0 {
		status = model.StatusWarn
	}
	return Outcome{
		Status:         status,
		Evidence:       map[string]interface{}{"noncompliant_samples": sample(groups, 20), "count": len(groups)},
		Recommendation: "Set log retention to a reasonable period (e.g., 7-90 days) to control cost and exposure.",
	}, nil
}
