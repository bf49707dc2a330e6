// Package cloudwatch wraps CloudWatch Logs: log group discovery, event
// analysis and Logs Insights queries with bounded polling.
package cloudwatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"go.uber.org/zap"

	"github.com/Coykto/debug-mcp/internal/awsclient"
)

// ErrInvalidInput marks caller mistakes detected before any AWS call.
var ErrInvalidInput = errors.New("invalid input")

// Polling defaults for Logs Insights queries.
const (
	DefaultPollInterval = time.Second
	DefaultMaxPolls     = 30
	DefaultQueryLimit   = 100
	// MaxQueryLimit is the largest limit StartQuery accepts.
	MaxQueryLimit       = 10000
)

// LogsAPI is the subset of the CloudWatch Logs client used here.
type LogsAPI interface {
	DescribeLogGroups(ctx context.Context, in *cloudwatchlogs.DescribeLogGroupsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DescribeLogGroupsOutput, error)
	FilterLogEvents(ctx context.Context, in *cloudwatchlogs.FilterLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.FilterLogEventsOutput, error)
	StartQuery(ctx context.Context, in *cloudwatchlogs.StartQueryInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.StartQueryOutput, error)
	GetQueryResults(ctx context.Context, in *cloudwatchlogs.GetQueryResultsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetQueryResultsOutput, error)
	StopQuery(ctx context.Context, in *cloudwatchlogs.StopQueryInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.StopQueryOutput, error)
}

// ClientFactory returns a client for region; "" means the default region.
type ClientFactory func(ctx context.Context, region string) (LogsAPI, error)

// FromLoader builds clients from the shared AWS configuration.
func FromLoader(l *awsclient.Loader) ClientFactory {
	return func(ctx context.Context, region string) (LogsAPI, error) {
		cfg, err := l.Config(ctx, region)
		if err != nil {
			return nil, err
		}
		return cloudwatchlogs.NewFromConfig(cfg), nil
	}
}

// Logs serves the CloudWatch Logs operations. Clients are cached per
// region.
type Logs struct {
	factory      ClientFactory
	logger       *zap.Logger
	pollInterval time.Duration
	maxPolls     int
	sleep        func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	clients map[string]LogsAPI
}

type Option func(*Logs)

// WithPolling overrides the Insights poll interval and poll count.
func WithPolling(interval time.Duration, maxPolls int) Option {
	return func(l *Logs) {
		l.pollInterval = interval
		if maxPolls > 0 {
			l.maxPolls = maxPolls
		}
	}
}

// WithSleep replaces the wait between polls, for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Logs) { l.sleep = fn }
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Logs) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func New(factory ClientFactory, opts ...Option) *Logs {
	l := &Logs{
		factory:      factory,
		logger:       zap.NewNop(),
		pollInterval: DefaultPollInterval,
		maxPolls:     DefaultMaxPolls,
		sleep:        sleepCtx,
		clients:      make(map[string]LogsAPI),
	}
	for _, o := range opts {
		o(l)
	}
	l.logger = l.logger.Named("cloudwatch")
	return l
}

func (l *Logs) client(ctx context.Context, region string) (LogsAPI, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.clients[region]; ok {
		return c, nil
	}
	c, err := l.factory(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("create CloudWatch Logs client for region %s: %w", regionLabel(region), err)
	}
	l.clients[region] = c
	return c, nil
}

func regionLabel(region string) string {
	if region == "" {
		return "(default)"
	}
	return region
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ─── Log groups ─────────────────────────────────────────────────────────────

// DescribeLogGroups lists every log group, optionally by name prefix.
func (l *Logs) DescribeLogGroups(ctx context.Context, prefix, region string) ([]map[string]any, error) {
	c, err := l.client(ctx, region)
	if err != nil {
		return nil, err
	}

	in := &cloudwatchlogs.DescribeLogGroupsInput{}
	if prefix != "" {
		in.LogGroupNamePrefix = aws.String(prefix)
	}

	groups := []map[string]any{}
	p := cloudwatchlogs.NewDescribeLogGroupsPaginator(c, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe log groups: %w", err)
		}
		for _, g := range page.LogGroups {
			groups = append(groups, logGroup(g))
		}
	}
	return groups, nil
}

func logGroup(g types.LogGroup) map[string]any {
	m := map[string]any{}
	set := func(k string, present bool, v any) {
		if present {
			m[k] = v
		}
	}
	set("logGroupName", g.LogGroupName != nil, aws.ToString(g.LogGroupName))
	set("arn", g.Arn != nil, aws.ToString(g.Arn))
	set("creationTime", g.CreationTime != nil, aws.ToInt64(g.CreationTime))
	set("retentionInDays", g.RetentionInDays != nil, aws.ToInt32(g.RetentionInDays))
	set("storedBytes", g.StoredBytes != nil, aws.ToInt64(g.StoredBytes))
	set("metricFilterCount", g.MetricFilterCount != nil, aws.ToInt32(g.MetricFilterCount))
	set("logGroupClass", g.LogGroupClass != "", string(g.LogGroupClass))
	set("kmsKeyId", g.KmsKeyId != nil, aws.ToString(g.KmsKeyId))
	return m
}

// ─── Time parsing ───────────────────────────────────────────────────────────

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseISOTime accepts ISO-8601 timestamps. A timestamp without a zone is
// taken as UTC.
func ParseISOTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q is not an ISO-8601 timestamp", ErrInvalidInput, s)
}

func parseWindow(start, end string) (time.Time, time.Time, error) {
	st, err := ParseISOTime(start)
	if err != nil {
		return st, st, fmt.Errorf("start_time: %w", err)
	}
	et, err := ParseISOTime(end)
	if err != nil {
		return st, et, fmt.Errorf("end_time: %w", err)
	}
	if et.Before(st) {
		return st, et, fmt.Errorf("%w: end_time %s is before start_time %s", ErrInvalidInput, end, start)
	}
	return st, et, nil
}
