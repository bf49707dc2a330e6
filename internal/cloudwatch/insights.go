package cloudwatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"go.uber.org/zap"
)

// StatusTimeout is reported when a query is still running after the last
// poll. It is not an AWS query status.
const StatusTimeout = "Timeout"

// QueryStatistics mirrors the Insights query statistics.
type QueryStatistics struct {
	BytesScanned   float64 `json:"bytesScanned"`
	RecordsMatched float64 `json:"recordsMatched"`
	RecordsScanned float64 `json:"recordsScanned"`
}

// QueryResult is the outcome of an Insights query. Each result row maps
// field names to values.
type QueryResult struct {
	QueryID    string              `json:"queryId"`
	Status     string              `json:"status"`
	Statistics *QueryStatistics    `json:"statistics,omitempty"`
	Message    string              `json:"message,omitempty"`
	Results    []map[string]string `json:"results"`
}

// QueryParams describes an Insights query.
type QueryParams struct {
	LogGroupNames []string
	QueryString   string
	StartTime     string
	EndTime       string
	Limit         int
	Region        string
}

func isTerminal(s types.QueryStatus) bool {
	switch s {
	case types.QueryStatusComplete, types.QueryStatusFailed, types.QueryStatusCancelled:
		return true
	}
	return false
}

// ExecuteInsightsQuery starts a query and polls for its results, waiting
// the poll interval before each poll. If no terminal status arrives within
// the poll budget it returns a Timeout result instead of an error.
func (l *Logs) ExecuteInsightsQuery(ctx context.Context, p QueryParams) (*QueryResult, error) {
	if len(p.LogGroupNames) == 0 {
		return nil, fmt.Errorf("%w: log_group_names must not be empty", ErrInvalidInput)
	}
	if strings.TrimSpace(p.QueryString) == "" {
		return nil, fmt.Errorf("%w: query_string is required", ErrInvalidInput)
	}
	start, end, err := parseWindow(p.StartTime, p.EndTime)
	if err != nil {
		return nil, err
	}
	if p.Limit <= 0 {
		p.Limit = DefaultQueryLimit
	}
	p.Limit = min(p.Limit, MaxQueryLimit)

	c, err := l.client(ctx, p.Region)
	if err != nil {
		return nil, err
	}

	started, err := c.StartQuery(ctx, &cloudwatchlogs.StartQueryInput{
		LogGroupNames: p.LogGroupNames,
		QueryString:   aws.String(p.QueryString),
		StartTime:     aws.Int64(start.Unix()),
		EndTime:       aws.Int64(end.Unix()),
		Limit:         aws.Int32(int32(p.Limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("start Logs Insights query: %w", err)
	}
	queryID := aws.ToString(started.QueryId)

	for poll := 1; poll <= l.maxPolls; poll++ {
		if err := l.sleep(ctx, l.pollInterval); err != nil {
			return nil, fmt.Errorf("poll query %s: %w", queryID, err)
		}

		out, err := c.GetQueryResults(ctx, &cloudwatchlogs.GetQueryResultsInput{QueryId: aws.String(queryID)})
		if err != nil {
			return nil, fmt.Errorf("get query results %s: %w", queryID, err)
		}
		if isTerminal(out.Status) {
			l.logger.Debug("insights query finished",
				zap.String("query_id", queryID), zap.String("status", string(out.Status)), zap.Int("polls", poll))
			return queryResult(queryID, out), nil
		}
	}

	l.logger.Info("insights query still running after poll budget",
		zap.String("query_id", queryID), zap.Int("polls", l.maxPolls))
	return &QueryResult{
		QueryID: queryID,
		Status:  StatusTimeout,
		Message: fmt.Sprintf("Query did not complete within %d seconds. Use get_logs_insight_query_results to retry.",
			int(l.pollInterval.Seconds()*float64(l.maxPolls))),
		Results: []map[string]string{},
	}, nil
}

// GetQueryResults fetches the current state of a query once.
func (l *Logs) GetQueryResults(ctx context.Context, queryID, region string) (*QueryResult, error) {
	if strings.TrimSpace(queryID) == "" {
		return nil, fmt.Errorf("%w: query_id is required", ErrInvalidInput)
	}
	c, err := l.client(ctx, region)
	if err != nil {
		return nil, err
	}
	out, err := c.GetQueryResults(ctx, &cloudwatchlogs.GetQueryResultsInput{QueryId: aws.String(queryID)})
	if err != nil {
		return nil, fmt.Errorf("get query results %s: %w", queryID, err)
	}
	return queryResult(queryID, out), nil
}

// CancelQuery stops a running query.
func (l *Logs) CancelQuery(ctx context.Context, queryID, region string) (bool, error) {
	if strings.TrimSpace(queryID) == "" {
		return false, fmt.Errorf("%w: query_id is required", ErrInvalidInput)
	}
	c, err := l.client(ctx, region)
	if err != nil {
		return false, err
	}
	out, err := c.StopQuery(ctx, &cloudwatchlogs.StopQueryInput{QueryId: aws.String(queryID)})
	if err != nil {
		return false, fmt.Errorf("cancel query %s: %w", queryID, err)
	}
	return out.Success, nil
}

func queryResult(queryID string, out *cloudwatchlogs.GetQueryResultsOutput) *QueryResult {
	stats := &QueryStatistics{}
	if out.Statistics != nil {
		stats.BytesScanned = out.Statistics.BytesScanned
		stats.RecordsMatched = out.Statistics.RecordsMatched
		stats.RecordsScanned = out.Statistics.RecordsScanned
	}

	rows := make([]map[string]string, 0, len(out.Results))
	for _, line := range out.Results {
		row := make(map[string]string, len(line))
		for _, f := range line {
			row[aws.ToString(f.Field)] = aws.ToString(f.Value)
		}
		rows = append(rows, row)
	}

	return &QueryResult{
		QueryID:    queryID,
		Status:     string(out.Status),
		Statistics: stats,
		Results:    rows,
	}
}
