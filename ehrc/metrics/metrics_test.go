package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/carenexus/ehrc-app/ehrc/client"
)

const putMetricDataOK = `<PutMetricDataResponse xmlns="http://monitoring.amazonaws.com/doc/2010-08-01/"><ResponseMetadata><RequestId>00000000-0000-0000-0000-000000000000</RequestId></ResponseMetadata></PutMetricDataResponse>`

const putMetricDataErr = `<ErrorResponse xmlns="http://monitoring.amazonaws.com/doc/2010-08-01/"><Error><Type>Sender</Type><Code>ValidationError</Code><Message>rejected</Message></Error><RequestId>00000000-0000-0000-0000-000000000000</RequestId></ErrorResponse>`

type MetricsTestSuite struct {
	suite.Suite

	mu    sync.Mutex
	calls []url.Values
}

func (s *MetricsTestSuite) SetupTest() {
	s.calls = nil
}

func (s *MetricsTestSuite) record(r *http.Request) {
	_ = r.ParseForm()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, r.PostForm)
}

func (s *MetricsTestSuite) recorded() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.calls...)
}

// newLocalSampler targets the supplied endpoint instead of the real CloudWatch API.
func newLocalSampler(endpoint, namespace, unit string) *Sampler {
	sess := session.Must(session.NewSession(&aws.Config{
		Region:      aws.String("us-east-1"),
		Endpoint:    aws.String(endpoint),
		Credentials: credentials.NewStaticCredentials("test", "test", ""),
		MaxRetries:  aws.Int(0),
	}))
	return &Sampler{Namespace: namespace, Unit: unit, Service: cloudwatch.New(sess)}
}

func (s *MetricsTestSuite) TestNewSampler() {
	sampler, err := NewSampler("EHRC", "Count")
	assert.Nil(s.T(), err)
	assert.Equal(s.T(), "EHRC", sampler.Namespace)
	assert.Equal(s.T(), "Count", sampler.Unit)
	assert.NotNil(s.T(), sampler.Service)
}

func (s *MetricsTestSuite) TestPutSample() {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		w.Header().Set("Content-Type", "text/xml")
		fmt.Fprint(w, putMetricDataOK)
	}))
	defer ts.Close()

	sampler := newLocalSampler(ts.URL, "EHRC", "Count")
	err := sampler.PutSample("RequestAttempts", 3, []Dimension{
		{Name: "Source", Value: "integration"},
		{Name: "Environment", Value: "test"},
	})
	assert.Nil(s.T(), err)

	calls := s.recorded()
	if assert.Len(s.T(), calls, 1) {
		form := calls[0]
		assert.Equal(s.T(), "PutMetricData", form.Get("Action"))
		assert.Equal(s.T(), "EHRC", form.Get("Namespace"))
		assert.Equal(s.T(), "RequestAttempts", form.Get("MetricData.member.1.MetricName"))
		assert.Equal(s.T(), "Count", form.Get("MetricData.member.1.Unit"))
		assert.Equal(s.T(), "3", form.Get("MetricData.member.1.Value"))
		assert.Equal(s.T(), "Source", form.Get("MetricData.member.1.Dimensions.member.1.Name"))
		assert.Equal(s.T(), "integration", form.Get("MetricData.member.1.Dimensions.member.1.Value"))
		assert.Equal(s.T(), "Environment", form.Get("MetricData.member.1.Dimensions.member.2.Name"))
		assert.Equal(s.T(), "test", form.Get("MetricData.member.1.Dimensions.member.2.Value"))
	}
}

func (s *MetricsTestSuite) TestPutSampleServerRejection() {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		w.Header().Set("Content-Type", "text/xml")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, putMetricDataErr)
	}))
	defer ts.Close()

	sampler := newLocalSampler(ts.URL, "EHRC", "Count")
	err := sampler.PutSample("RequestAttempts", 1, nil)
	assert.NotNil(s.T(), err)
	assert.Contains(s.T(), err.Error(), "ValidationError")
}

func (s *MetricsTestSuite) TestPutClientStats() {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		w.Header().Set("Content-Type", "text/xml")
		fmt.Fprint(w, putMetricDataOK)
	}))
	defer ts.Close()

	sampler := newLocalSampler(ts.URL, "EHRC", "Count")
	snapshot := client.StatsSnapshot{
		TotalAttempts: 4,
		ErrorCount:    1,
		ErrorRate:     0.25,
		TokenValid:    true,
	}
	err := sampler.PutClientStats(snapshot, []Dimension{{Name: "Source", Value: "cli"}})
	assert.Nil(s.T(), err)

	values := map[string]string{}
	for _, form := range s.recorded() {
		values[form.Get("MetricData.member.1.MetricName")] = form.Get("MetricData.member.1.Value")
	}
	assert.Equal(s.T(), map[string]string{
		"RequestAttempts": "4",
		"RequestErrors":   "1",
		"ErrorRate":       "0.25",
		"TokenValid":      "1",
	}, values)
}

func TestMetricsTestSuite(t *testing.T) {
	suite.Run(t, new(MetricsTestSuite))
}
