package cloudwatch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLogs struct {
	mu sync.Mutex

	groups      []types.LogGroup
	events      []types.FilteredLogEvent
	pageSize    int
	statuses    []types.QueryStatus // returned in order; the last one repeats
	results     [][]types.ResultField
	stats       *types.QueryStatistics
	startErr    error
	stopSuccess bool

	startInputs  []cloudwatchlogs.StartQueryInput
	filterInputs []cloudwatchlogs.FilterLogEventsInput
	resultCalls  int
	stopCalls    int
}

func (f *fakeLogs) DescribeLogGroups(_ context.Context, in *cloudwatchlogs.DescribeLogGroupsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DescribeLogGroupsOutput, error) {
	start := 0
	if in.NextToken != nil {
		start, _ = strconv.Atoi(*in.NextToken)
	}
	end := min(start+1, len(f.groups))
	out := &cloudwatchlogs.DescribeLogGroupsOutput{LogGroups: f.groups[start:end]}
	if end < len(f.groups) {
		out.NextToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

func (f *fakeLogs) FilterLogEvents(_ context.Context, in *cloudwatchlogs.FilterLogEventsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.FilterLogEventsOutput, error) {
	f.filterInputs = append(f.filterInputs, *in)
	size := f.pageSize
	if size == 0 {
		size = 100
	}
	start := 0
	if in.NextToken != nil {
		start, _ = strconv.Atoi(*in.NextToken)
	}
	end := min(start+size, len(f.events))
	out := &cloudwatchlogs.FilterLogEventsOutput{Events: f.events[start:end]}
	if end < len(f.events) {
		out.NextToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

func (f *fakeLogs) StartQuery(_ context.Context, in *cloudwatchlogs.StartQueryInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.StartQueryOutput, error) {
	f.startInputs = append(f.startInputs, *in)
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &cloudwatchlogs.StartQueryOutput{QueryId: aws.String("q-1")}, nil
}

func (f *fakeLogs) GetQueryResults(_ context.Context, in *cloudwatchlogs.GetQueryResultsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetQueryResultsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := min(f.resultCalls, len(f.statuses)-1)
	f.resultCalls++
	return &cloudwatchlogs.GetQueryResultsOutput{
		Status:     f.statuses[i],
		Results:    f.results,
		Statistics: f.stats,
	}, nil
}

func (f *fakeLogs) StopQuery(_ context.Context, _ *cloudwatchlogs.StopQueryInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.StopQueryOutput, error) {
	f.stopCalls++
	return &cloudwatchlogs.StopQueryOutput{Success: f.stopSuccess}, nil
}

// newTestLogs wires f for every region and records requested sleeps
// instead of sleeping.
func newTestLogs(f *fakeLogs) (*Logs, *[]time.Duration, *[]string) {
	var sleeps []time.Duration
	var regions []string
	l := New(func(_ context.Context, region string) (LogsAPI, error) {
		regions = append(regions, region)
		return f, nil
	}, WithSleep(func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}))
	return l, &sleeps, &regions
}

func field(name, value string) types.ResultField {
	return types.ResultField{Field: aws.String(name), Value: aws.String(value)}
}

func insightsParams() QueryParams {
	return QueryParams{
		LogGroupNames: []string{"/aws/lambda/orders"},
		QueryString:   "fields @timestamp, @message | limit 5",
		StartTime:     "2025-03-10T10:00:00",
		EndTime:       "2025-03-10T11:00:00+00:00",
	}
}

// ─── Insights ───────────────────────────────────────────────────────────────

func TestExecuteInsightsQuery_TimesOutAfterThirtyPolls(t *testing.T) {
	f := &fakeLogs{statuses: []types.QueryStatus{types.QueryStatusRunning}}
	l, sleeps, _ := newTestLogs(f)

	got, err := l.ExecuteInsightsQuery(t.Context(), insightsParams())
	require.NoError(t, err)

	assert.Equal(t, "q-1", got.QueryID)
	assert.Equal(t, StatusTimeout, got.Status)
	assert.Equal(t, "Query did not complete within 30 seconds. Use get_logs_insight_query_results to retry.", got.Message)
	assert.NotNil(t, got.Results)
	assert.Empty(t, got.Results)
	assert.Nil(t, got.Statistics)

	assert.Equal(t, 30, f.resultCalls)
	require.Len(t, *sleeps, 30)
	for _, d := range *sleeps {
		assert.Equal(t, time.Second, d)
	}
}

func TestExecuteInsightsQuery_TerminalStatuses(t *testing.T) {
	for _, status := range []types.QueryStatus{types.QueryStatusComplete, types.QueryStatusFailed, types.QueryStatusCancelled} {
		t.Run(string(status), func(t *testing.T) {
			f := &fakeLogs{
				statuses: []types.QueryStatus{types.QueryStatusScheduled, types.QueryStatusRunning, status},
				results: [][]types.ResultField{
					{field("@timestamp", "2025-03-10 10:01:00.000"), field("@message", "ERROR boom")},
					{field("@timestamp", "2025-03-10 10:02:00.000"), field("@message", "ok")},
				},
				stats: &types.QueryStatistics{RecordsMatched: 2, RecordsScanned: 10, BytesScanned: 512},
			}
			l, sleeps, _ := newTestLogs(f)

			got, err := l.ExecuteInsightsQuery(t.Context(), insightsParams())
			require.NoError(t, err)

			assert.Equal(t, string(status), got.Status)
			assert.Equal(t, 3, f.resultCalls)
			assert.Len(t, *sleeps, 3)
			assert.Equal(t, &QueryStatistics{BytesScanned: 512, RecordsMatched: 2, RecordsScanned: 10}, got.Statistics)
			assert.Equal(t, []map[string]string{
				{"@timestamp": "2025-03-10 10:01:00.000", "@message": "ERROR boom"},
				{"@timestamp": "2025-03-10 10:02:00.000", "@message": "ok"},
			}, got.Results)
		})
	}
}

func TestExecuteInsightsQuery_StartInput(t *testing.T) {
	f := &fakeLogs{statuses: []types.QueryStatus{types.QueryStatusComplete}}
	l, _, regions := newTestLogs(f)

	p := insightsParams()
	p.Region = "eu-central-1"
	_, err := l.ExecuteInsightsQuery(t.Context(), p)
	require.NoError(t, err)

	require.Len(t, f.startInputs, 1)
	in := f.startInputs[0]
	assert.Equal(t, int64(1741600800), aws.ToInt64(in.StartTime), "zone-less time is UTC")
	assert.Equal(t, int64(1741604400), aws.ToInt64(in.EndTime))
	assert.Equal(t, int32(DefaultQueryLimit), aws.ToInt32(in.Limit))
	assert.Equal(t, []string{"/aws/lambda/orders"}, in.LogGroupNames)
	assert.Equal(t, []string{"eu-central-1"}, *regions)
}


func TestExecuteInsightsQuery_LimitIsCapped(t *testing.T) {
	for _, limit := range []int{MaxQueryLimit + 1, math.MaxInt} {
		f := &fakeLogs{statuses: []types.QueryStatus{types.QueryStatusComplete}}
		l, _, _ := newTestLogs(f)

		p := insightsParams()
		p.Limit = limit
		_, err := l.ExecuteInsightsQuery(t.Context(), p)
		require.NoError(t, err)

		require.Len(t, f.startInputs, 1)
		assert.Equal(t, int32(MaxQueryLimit), aws.ToInt32(f.startInputs[0].Limit), "limit %d", limit)
	}
}
func TestExecuteInsightsQuery_ContextCancelled(t *testing.T) {
	f := &fakeLogs{statuses: []types.QueryStatus{types.QueryStatusRunning}}
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	l := New(func(context.Context, string) (LogsAPI, error) { return f, nil })

	_, err := l.ExecuteInsightsQuery(ctx, insightsParams())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.resultCalls)
}

func TestExecuteInsightsQuery_InvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*QueryParams)
	}{
		{"no log groups", func(p *QueryParams) { p.LogGroupNames = nil }},
		{"no query", func(p *QueryParams) { p.QueryString = " " }},
		{"bad start", func(p *QueryParams) { p.StartTime = "yesterday" }},
		{"bad end", func(p *QueryParams) { p.EndTime = "10/03/2025" }},
		{"reversed window", func(p *QueryParams) { p.StartTime, p.EndTime = p.EndTime, p.StartTime }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeLogs{statuses: []types.QueryStatus{types.QueryStatusComplete}}
			l, _, _ := newTestLogs(f)
			p := insightsParams()
			tt.mutate(&p)

			_, err := l.ExecuteInsightsQuery(t.Context(), p)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Empty(t, f.startInputs)
		})
	}
}

func TestExecuteInsightsQuery_StartFailure(t *testing.T) {
	f := &fakeLogs{startErr: errors.New("MalformedQueryException"), statuses: []types.QueryStatus{types.QueryStatusComplete}}
	l, _, _ := newTestLogs(f)

	_, err := l.ExecuteInsightsQuery(t.Context(), insightsParams())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MalformedQueryException")
}

func TestGetQueryResults_SinglePoll(t *testing.T) {
	f := &fakeLogs{statuses: []types.QueryStatus{types.QueryStatusRunning}}
	l, sleeps, _ := newTestLogs(f)

	got, err := l.GetQueryResults(t.Context(), "q-1", "")
	require.NoError(t, err)
	assert.Equal(t, "Running", got.Status)
	assert.Equal(t, 1, f.resultCalls)
	assert.Empty(t, *sleeps)

	_, err = l.GetQueryResults(t.Context(), "", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCancelQuery(t *testing.T) {
	f := &fakeLogs{stopSuccess: true}
	l, _, _ := newTestLogs(f)

	ok, err := l.CancelQuery(t.Context(), "q-1", "")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, f.stopCalls)
}

// ─── Log groups ─────────────────────────────────────────────────────────────

func TestDescribeLogGroups_PaginatesAndCachesClients(t *testing.T) {
	f := &fakeLogs{groups: []types.LogGroup{
		{LogGroupName: aws.String("/aws/lambda/a"), Arn: aws.String("arn:a:*"), CreationTime: aws.Int64(1700000000000), StoredBytes: aws.Int64(42), LogGroupClass: types.LogGroupClassStandard},
		{LogGroupName: aws.String("/aws/lambda/b"), RetentionInDays: aws.Int32(14), MetricFilterCount: aws.Int32(0)},
	}}
	l, _, regions := newTestLogs(f)

	got, err := l.DescribeLogGroups(t.Context(), "/aws/lambda/", "")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, map[string]any{
		"logGroupName":  "/aws/lambda/a",
		"arn":           "arn:a:*",
		"creationTime":  int64(1700000000000),
		"storedBytes":   int64(42),
		"logGroupClass": "STANDARD",
	}, got[0])
	assert.Equal(t, int32(14), got[1]["retentionInDays"])
	assert.Equal(t, int32(0), got[1]["metricFilterCount"])

	_, err = l.DescribeLogGroups(t.Context(), "", "")
	require.NoError(t, err)
	assert.Equal(t, []string{""}, *regions, "client created once per region")
}

func TestClientFactoryError(t *testing.T) {
	l := New(func(context.Context, string) (LogsAPI, error) { return nil, errors.New("no credentials") })

	_, err := l.DescribeLogGroups(t.Context(), "", "ap-south-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "region ap-south-1")
}

// ─── Analysis ───────────────────────────────────────────────────────────────

func TestNormalizeMessage(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"request 123 took 45ms", "request <num> took <num>ms"},
		{"user 0b7e4c5a-1f2d-4c3b-9a8e-7d6c5b4a3f2e logged in", "user <uuid> logged in"},
		{"trace 5f3a9c1e2b7d4a60 done", "trace <hex> done"},
		{"ptr 0xdeadbeef", "ptr <hex>"},
		{"ts 1700000000000", "ts <num>"},
		{"  spaced\t\tout  ", "spaced out"},
		{"deadbeef is a word here", "deadbeef is a word here"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeMessage(tt.in))
		})
	}
}

func TestAnalyzeLogGroup(t *testing.T) {
	base := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC).UnixMilli()
	msgs := []string{
		"ERROR order 1 failed: timeout",
		"ERROR order 2 failed: timeout",
		"WARN retrying order 3",
		"INFO order 4 shipped",
		"INFO order 5 shipped",
		"INFO order 6 shipped",
		"Exception in thread main",
	}
	f := &fakeLogs{pageSize: 3}
	for i, m := range msgs {
		f.events = append(f.events, types.FilteredLogEvent{Message: aws.String(m), Timestamp: aws.Int64(base + int64(i)*1000)})
	}
	l, _, _ := newTestLogs(f)

	a, err := l.AnalyzeLogGroup(t.Context(), AnalyzeParams{
		LogGroupName:  "/aws/lambda/orders",
		StartTime:     "2025-03-10T10:00:00Z",
		EndTime:       "2025-03-10T11:00:00Z",
		FilterPattern: "order",
	})
	require.NoError(t, err)

	assert.Equal(t, 7, a.EventsAnalyzed)
	assert.False(t, a.Truncated)
	assert.Equal(t, 3, a.ErrorCount)
	assert.Equal(t, 1, a.WarningCount)
	assert.Equal(t, "2025-03-10T10:00:00Z", a.FirstEvent)
	assert.Equal(t, "2025-03-10T10:00:06Z", a.LastEvent)

	require.NotEmpty(t, a.TopPatterns)
	assert.Equal(t, Pattern{Pattern: "INFO order <num> shipped", Count: 3, Sample: "INFO order 4 shipped"}, a.TopPatterns[0])
	assert.Equal(t, Pattern{Pattern: "ERROR order <num> failed: timeout", Count: 2, Sample: "ERROR order 1 failed: timeout"}, a.TopErrorPatterns[0])
	assert.Len(t, a.TopErrorPatterns, 2)

	require.Len(t, f.filterInputs, 3)
	assert.Equal(t, "order", aws.ToString(f.filterInputs[0].FilterPattern))
	assert.Equal(t, base, aws.ToInt64(f.filterInputs[0].StartTime))
}

func TestAnalyzeLogGroup_Truncates(t *testing.T) {
	f := &fakeLogs{pageSize: 400}
	for i := 0; i < MaxAnalyzedEvents+50; i++ {
		f.events = append(f.events, types.FilteredLogEvent{Message: aws.String(fmt.Sprintf("line %d", i)), Timestamp: aws.Int64(int64(i + 1))})
	}
	l, _, _ := newTestLogs(f)

	a, err := l.AnalyzeLogGroup(t.Context(), AnalyzeParams{LogGroupName: "g", StartTime: "2025-01-01", EndTime: "2025-01-02"})
	require.NoError(t, err)
	assert.Equal(t, MaxAnalyzedEvents, a.EventsAnalyzed)
	assert.True(t, a.Truncated)
	assert.Len(t, a.TopPatterns, 1)
	assert.Equal(t, MaxAnalyzedEvents, a.TopPatterns[0].Count)
}

func TestAnalyzeLogGroup_Empty(t *testing.T) {
	l, _, _ := newTestLogs(&fakeLogs{})

	a, err := l.AnalyzeLogGroup(t.Context(), AnalyzeParams{LogGroupName: "g", StartTime: "2025-01-01", EndTime: "2025-01-02"})
	require.NoError(t, err)
	assert.Zero(t, a.EventsAnalyzed)
	assert.Empty(t, a.FirstEvent)
	assert.NotNil(t, a.TopPatterns)

	_, err = l.AnalyzeLogGroup(t.Context(), AnalyzeParams{StartTime: "2025-01-01", EndTime: "2025-01-02"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseISOTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-03-10T10:00:00Z", time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)},
		{"2025-03-10T10:00:00+02:00", time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)},
		{"2025-03-10T10:00:00", time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)},
		{"2025-03-10T10:00:00.250", time.Date(2025, 3, 10, 10, 0, 0, 250e6, time.UTC)},
		{"2025-03-10 10:00:00", time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)},
		{"2025-03-10T10:00", time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)},
		{"2025-03-10", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseISOTime(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}

	_, err := ParseISOTime("March 10")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
