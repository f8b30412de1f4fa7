package checks

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/configservice"

	"github.com/scan-io-git/cloudsentinel/internal/model"
)

var configRecorderDef = Definition{
	ID:         "ir.aws_config_recorder",
	Title:      "AWS Config presence (configuration recorder)",
	Domain:     DomainIRReadiness,
	Severity:   model.SeverityMedium,
	Weight:     8,
	References: []string{"https://docs.aws.amazon.com/config/latest/developerguide/WhatIsConfig.html"},
	ErrorHint:  "Ensure the scanning role can call config:DescribeConfigurationRecorders.",
}

func configRecorder(ctx context.Context, env Environment, _ string) (Outcome, error) {
	out, err := env.ConfigService().DescribeConfigurationRecordersWithContext(ctx, &configservice.DescribeConfigurationRecordersInput{})
	if err != nil {
		return Outcome{}, err
	}

	recorders := []map[string]interface{}{}
	for _, r := range out.ConfigurationRecorders {
		recorders = append(recorders, map[string]interface{}{
			"name":    aws.StringValue(r.Name),
			"roleARN": aws.StringValue(r.RoleARN),
		})
	}

	status := model.StatusWarn
	if len(recorders) > 0 {
		status = model.StatusPass
	}
	return Outcome{
		Status:         status,
		Evidence:       map[string]interface{}{"recorders": recorders},
		Recommendation: "Enable AWS Config (at least in key regions) to support forensics and drift detection.",
	}, nil
}
