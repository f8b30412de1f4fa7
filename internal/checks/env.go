package checks

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go/service/cloudtrail/cloudtrailiface"
	"github.com/aws/aws-sdk-go/service/cloudwatchlogs/cloudwatchlogsiface"
	"github.com/aws/aws-sdk-go/service/configservice/configserviceiface"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/aws/aws-sdk-go/service/iam/iamiface"
	"github.com/aws/aws-sdk-go/service/kms/kmsiface"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/scan-io-git/cloudsentinel/internal/model"
)

// Environment is the live handle the AWS checks read from. Every accessor returns a
// read-only capable client; the checks never call mutating APIs.
type Environment interface {
	// ResolveIdentity returns the account id of the active credentials.
	ResolveIdentity(ctx context.Context) (string, error)

	IAM() iamiface.IAMAPI
	CloudTrail() cloudtrailiface.CloudTrailAPI
	CloudWatchLogs() cloudwatchlogsiface.CloudWatchLogsAPI
	S3() s3iface.S3API
	KMS() kmsiface.KMSAPI
	EC2() ec2iface.EC2API
	ConfigService() configserviceiface.ConfigServiceAPI
}

// Timeline is the offline environment: the timeline window read once before the offline
// checks run.
type Timeline struct {
	Events  []model.TimelineEvent
	Since   time.Time
	Backend string
}

// Seen reports whether an event with the given name is in the window.
func (t Timeline) Seen(eventName string) bool {
	for _, e := range t.Events {
		if e.EventName == eventName {
			return true
		}
	}
	return false
}
