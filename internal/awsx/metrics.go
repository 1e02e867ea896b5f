package awsx

import (
	"context"
	"log"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// MetricNamespace is the CloudWatch namespace all completion metrics go under.
const MetricNamespace = "CartCompletion"

// Metrics emits completion counters to CloudWatch. A nil *Metrics is a no-op,
// so callers can leave it unset in tests.
type Metrics struct {
	CloudWatch CloudWatchAPI
	nowFunc    func() time.Time
}

// NewMetrics returns a Metrics emitter bound to a CloudWatch client.
func NewMetrics(cw CloudWatchAPI) *Metrics {
	return &Metrics{
		CloudWatch: cw,
		nowFunc:    time.Now,
	}
}

// CountCompletion increments the Completions metric with an outcome dimension
// (e.g. "order", "cart", "swap", "replay", "conflict", "failed").
// Emission is best-effort: a PutMetricData failure is logged, never propagated.
func (m *Metrics) CountCompletion(ctx context.Context, outcome string) {
	if m == nil || m.CloudWatch == nil {
		return
	}
	now := m.nowFunc()
	input := &cloudwatch.PutMetricDataInput{
		Namespace: awsString(MetricNamespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: awsString("Completions"),
				Timestamp:  &now,
				Value:      sdkaws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{Name: awsString("Outcome"), Value: awsString(outcome)},
				},
			},
		},
	}
	if _, err := m.CloudWatch.PutMetricData(ctx, input); err != nil {
		log.Printf("put metric data: %v", err)
	}
}
