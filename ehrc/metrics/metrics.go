package metrics

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"

	"github.com/carenexus/ehrc-app/conf"
	"github.com/carenexus/ehrc-app/ehrc/client"
)

type Dimension struct {
	Name  string
	Value string
}

type Sampler struct {
	Namespace string
	Unit      string
	Service   *cloudwatch.CloudWatch
}

func NewSampler(ns, unit string) (*Sampler, error) {
	region := conf.GetEnv("AWS_DEFAULT_REGION")
	if region == "" {
		region = "us-east-1"
	}

	s := session.Must(session.NewSession(&aws.Config{
		Region: aws.String(region),
	}))
	svc := cloudwatch.New(s)
	return &Sampler{ns, unit, svc}, nil
}

func (s *Sampler) PutSample(name string, value float64, dimensions []Dimension) error {
	var d []*cloudwatch.Dimension

	for _, v := range dimensions {
		def := &cloudwatch.Dimension{
			Name:  aws.String(v.Name),
			Value: aws.String(v.Value),
		}
		d = append(d, def)
	}

	data := &cloudwatch.MetricDatum{
		Dimensions: d,
		MetricName: &name,
		Unit:       &s.Unit,
		Value:      &value,
	}

	input := &cloudwatch.PutMetricDataInput{
		MetricData: []*cloudwatch.MetricDatum{data},
		Namespace:  &s.Namespace,
	}
	_, err := s.Service.PutMetricData(input)
	return err
}

// PutClientStats publishes a protocol client snapshot as individual samples.
func (s *Sampler) PutClientStats(snapshot client.StatsSnapshot, dimensions []Dimension) error {
	samples := []struct {
		name  string
		value float64
	}{
		{"RequestAttempts", float64(snapshot.TotalAttempts)},
		{"RequestErrors", float64(snapshot.ErrorCount)},
		{"ErrorRate", snapshot.ErrorRate},
		{"TokenValid", boolSample(snapshot.TokenValid)},
	}

	for _, sample := range samples {
		if err := s.PutSample(sample.name, sample.value, dimensions); err != nil {
			return err
		}
	}
	return nil
}

func boolSample(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
