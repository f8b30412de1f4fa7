package checks

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/iam"

	"github.com/scan-io-git/cloudsentinel/internal/model"
	sentinelerrors "github.com/scan-io-git/cloudsentinel/pkg/shared/errors"
)

const (
	DomainIdentity = "Identity & Access"

	accessKeyMaxAgeDays = 90
	evidenceSampleLimit = 50
)

var adminPolicyARNs = map[string]bool{
	"arn:aws:iam::aws:policy/AdministratorAccess": true,
	"arn:aws:iam::aws:policy/PowerUserAccess":     true,
}

var rootMFADef = Definition{
	ID:         "iam.root_mfa",
	Title:      "Root account MFA enabled",
	Domain:     DomainIdentity,
	Severity:   model.SeverityCritical,
	Weight:     15,
	References: []string{"https://docs.aws.amazon.com/IAM/latest/UserGuide/id_credentials_mfa_enable_virtual.html"},
	ErrorHint:  "Ensure the scanning role can call iam:GetAccountSummary.",
}

func rootMFA(ctx context.Context, env Environment, _ string) (Outcome, error) {
	out, err := env.IAM().GetAccountSummaryWithContext(ctx, &iam.GetAccountSummaryInput{})
	if err != nil {
		return Outcome{}, err
	}
	enabled := aws.Int64Value(out.SummaryMap["AccountMFAEnabled"])
	status := model.StatusFail
	if enabled == 1 {
		status = model.StatusPass
	}
	return Outcome{
		Status:         status,
		Evidence:       map[string]interface{}{"AccountMFAEnabled": enabled},
		Recommendation: "Enable MFA on the root account and lock root credentials away.",
	}, nil
}

var passwordPolicyDef = Definition{
	ID:         "iam.password_policy",
	Title:      "IAM account password policy strength",
	Domain:     DomainIdentity,
	Severity:   model.SeverityHigh,
	Weight:     10,
	References: []string{"https://docs.aws.amazon.com/IAM/latest/UserGuide/id_credentials_passwords_account-policy.html"},
	ErrorHint:  "Ensure the scanning role can call iam:GetAccountPasswordPolicy.",
}

func passwordPolicy(ctx context.Context, env Environment, _ string) (Outcome, error) {
	out, err := env.IAM().GetAccountPasswordPolicyWithContext(ctx, &iam.GetAccountPasswordPolicyInput{})
	if sentinelerrors.IsAWSErrorCode(err, iam.ErrCodeNoSuchEntityException) {
		return Outcome{
			Status:         model.StatusWarn,
			Evidence:       map[string]interface{}{"PasswordPolicy": nil},
			Recommendation: "Define an account password policy (even if you prefer SSO).",
		}, nil
	}
	if err != nil {
		return Outcome{}, err
	}

	p := out.PasswordPolicy
	if p == nil {
		p = &iam.PasswordPolicy{}
	}
	strong := aws.BoolValue(p.RequireSymbols) && aws.BoolValue(p.RequireNumbers) && aws.Int64Value(p.MinimumPasswordLength) >= 12
	status := model.StatusWarn
	if strong {
		status = model.StatusPass
	}
	return Outcome{
		Status: status,
		Evidence: map[string]interface{}{
			"MinimumPasswordLength":      aws.Int64Value(p.MinimumPasswordLength),
			"RequireSymbols":             aws.BoolValue(p.RequireSymbols),
			"RequireNumbers":             aws.BoolValue(p.RequireNumbers),
			"RequireUppercaseCharacters": aws.BoolValue(p.RequireUppercaseCharacters),
			"RequireLowercaseCharacters": aws.BoolValue(p.RequireLowercaseCharacters),
		},
		Recommendation: "Set a strong password policy (>=12 chars, numbers+symbols, rotation where appropriate).",
	}, nil
}

var oldAccessKeysDef = Definition{
	ID:         "iam.old_access_keys",
	Title:      "Access keys older than 90 days",
	Domain:     DomainIdentity,
	Severity:   model.SeverityMedium,
	Weight:     10,
	References: []string{"https://docs.aws.amazon.com/IAM/latest/UserGuide/best-practices.html#best-practices-credentials"},
	ErrorHint:  "Ensure the scanning role can call iam:ListUsers and iam:ListAccessKeys.",
}

func oldAccessKeys(ctx context.Context, env Environment, _ string) (Outcome, error) {
	client := env.IAM()
	now := time.Now().UTC()

	var users []string
	err := client.ListUsersPagesWithContext(ctx, &iam.ListUsersInput{}, func(page *iam.ListUsersOutput, _ bool) bool {
		for _, u := range page.Users {
			users = append(users, aws.StringValue(u.UserName))
		}
		return true
	})
	if err != nil {
		return Outcome{}, err
	}

	var stale []map[string]interface{}
	for _, user := range users {
		keys, err := client.ListAccessKeysWithContext(ctx, &iam.ListAccessKeysInput{UserName: aws.String(user)})
		if err != nil {
			return Outcome{}, err
		}
		for _, k := range keys.AccessKeyMetadata {
			age := int(now.Sub(aws.TimeValue(k.CreateDate)).Hours() / 24)
			if age >= accessKeyMaxAgeDays {
				stale = append(stale, map[string]interface{}{
					"user":          user,
					"access_key_id": aws.StringValue(k.AccessKeyId),
					"age_days":      age,
				})
			}
		}
	}

	status := model.StatusPass
	if len(stale) > 0 {
		status = model.StatusWarn
	}
	return Outcome{
		Status: status,
		Evidence: map[string]interface{}{
			"stale_keys":     sample(stale, evidenceSampleLimit),
			"count":          len(stale),
			"threshold_days": accessKeyMaxAgeDays,
		},
		Recommendation: "Rotate or remove old access keys; prefer short-lived credentials (SSO/STS).",
	}, nil
}

var adminAttachmentsDef = Definition{
	ID:         "iam.admin_attachments",
	Title:      "AdministratorAccess/PowerUserAccess attachments",
	Domain:     DomainIdentity,
	Severity:   model.SeverityHigh,
	Weight:     12,
	References: []string{"https://docs.aws.amazon.com/IAM/latest/UserGuide/best-practices.html#lock-away-credentials"},
	ErrorHint:  "Ensure the scanning role can list users/roles and attached policies.",
}

func adminAttachments(ctx context.Context, env Environment, _ string) (Outcome, error) {
	client := env.IAM()
	var attached []map[string]interface{}

	var users []string
	err := client.ListUsersPagesWithContext(ctx, &iam.ListUsersInput{}, func(page *iam.ListUsersOutput, _ bool) bool {
		for _, u := range page.Users {
			users = append(users, aws.StringValue(u.UserName))
		}
		return true
	})
	if err != nil {
		return Outcome{}, err
	}
	for _, user := range users {
		out, err := client.ListAttachedUserPoliciesWithContext(ctx, &iam.ListAttachedUserPoliciesInput{UserName: aws.String(user)})
		if err != nil {
			return Outcome{}, err
		}
		for _, p := range out.AttachedPolicies {
			if adminPolicyARNs[aws.StringValue(p.PolicyArn)] {
				attached = append(attached, map[string]interface{}{"type": "user", "name": user, "policy_arn": aws.StringValue(p.PolicyArn)})
			}
		}
	}

	var roles []string
	err = client.ListRolesPagesWithContext(ctx, &iam.ListRolesInput{}, func(page *iam.ListRolesOutput, _ bool) bool {
		for _, r := range page.Roles {
			roles = append(roles, aws.StringValue(r.RoleName))
		}
		return true
	})
	if err != nil {
		return Outcome{}, err
	}
	for _, role := range roles {
		out, err := client.ListAttachedRolePoliciesWithContext(ctx, &iam.ListAttachedRolePoliciesInput{RoleName: aws.String(role)})
		if err != nil {
			return Outcome{}, err
		}
		for _, p := range out.AttachedPolicies {
			if adminPolicyARNs[aws.StringValue(p.PolicyArn)] {
				attached = append(attached, map[string]interface{}{"type": "role", "name": role, "policy_arn": aws.StringValue(p.PolicyArn)})
			}
		}
	}

	status := model.StatusPass
	if len(attached) > 0 {
		status = model.StatusWarn
	}
	return Outcome{
		Status: status,
		Evidence: map[string]interface{}{
			"attachments": sample(attached, evidenceSampleLimit),
			"count":       len(attached),
		},
		Recommendation: "Minimize broad admin policies; use least privilege and scoped roles with MFA/conditions.",
	}, nil
}

func sample[T any](items []T, limit int) []T {
	if items == nil {
		return []T{}
	}
	if len(items) > limit {
		return items[:limit]
	}
	return items
}
