package timeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/cloudtrail"
	"github.com/aws/aws-sdk-go/service/cloudtrail/cloudtrailiface"

	"github.com/scan-io-git/cloudsentinel/internal/model"
)

// lookupMaxResults is the CloudTrail page cap for LookupEvents.
const lookupMaxResults = 50

// CloudTrailSource reads recent management events that touched simulator resources.
type CloudTrailSource struct {
	client cloudtrailiface.CloudTrailAPI
	prefix string
}

func NewCloudTrailSource(client cloudtrailiface.CloudTrailAPI, projectTag string) *CloudTrailSource {
	return &CloudTrailSource{client: client, prefix: Prefix(projectTag)}
}

// Lookup returns one page of events since the given time (zero for no bound), keeping
// those with at least one resource under the simulator prefix. Events come back oldest
// first.
func (c *CloudTrailSource) Lookup(ctx context.Context, since time.Time) ([]model.TimelineEvent, error) {
	input := &cloudtrail.LookupEventsInput{MaxResults: aws.Int64(lookupMaxResults)}
	if !since.IsZero() {
		input.StartTime = aws.Time(since)
	}
	out, err := c.client.LookupEventsWithContext(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to look up cloudtrail events: %w", err)
	}

	events := []model.TimelineEvent{}
	for _, e := range out.Events {
		if !c.matches(e.Resources) {
			continue
		}
		resources := make([]model.Resource, 0, len(e.Resources))
		for _, r := range e.Resources {
			resources = append(resources, model.Resource{
				ResourceName: aws.StringValue(r.ResourceName),
				ResourceType: aws.StringValue(r.ResourceType),
			})
		}
		events = append(events, model.TimelineEvent{
			EventTime:   aws.TimeValue(e.EventTime).UTC(),
			EventName:   aws.StringValue(e.EventName),
			EventSource: aws.StringValue(e.EventSource),
			Username:    aws.StringValue(e.Username),
			Resources:   resources,
			OperationID: aws.StringValue(e.EventId),
		})
	}

	// LookupEvents returns newest first.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

func (c *CloudTrailSource) matches(resources []*cloudtrail.Resource) bool {
	for _, r := range resources {
		if strings.HasPrefix(aws.StringValue(r.ResourceName), c.prefix) {
			return true
		}
	}
	return false
}
