package cloudwatch

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
)

// Analysis limits.
const (
	MaxAnalyzedEvents = 1000
	topPatterns       = 10
	topErrorPatterns  = 5
	maxPatternLength  = 200
)

// Pattern is a normalised message shape with its frequency.
type Pattern struct {
	Pattern string `json:"pattern"`
	Count   int    `json:"count"`
	Sample  string `json:"sample"`
}

// Analysis summarises the events of a log group in a time window.
type Analysis struct {
	LogGroupName     string    `json:"log_group_name"`
	StartTime        string    `json:"start_time"`
	EndTime          string    `json:"end_time"`
	FilterPattern    string    `json:"filter_pattern"`
	EventsAnalyzed   int       `json:"events_analyzed"`
	Truncated        bool      `json:"truncated"`
	ErrorCount       int       `json:"error_count"`
	WarningCount     int       `json:"warning_count"`
	FirstEvent       string    `json:"first_event,omitempty"`
	LastEvent        string    `json:"last_event,omitempty"`
	TopPatterns      []Pattern `json:"top_patterns"`
	TopErrorPatterns []Pattern `json:"top_error_patterns"`
}

// AnalyzeParams selects the events to analyse.
type AnalyzeParams struct {
	LogGroupName  string
	StartTime     string
	EndTime       string
	FilterPattern string
	Region        string
}

var (
	errorLike   = regexp.MustCompile(`(?i)\b(error|exception|fatal|panic|traceback|failed|failure)\b`)
	warningLike = regexp.MustCompile(`(?i)\bwarn(ing)?\b`)

	uuidRe   = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`)
	hexRe    = regexp.MustCompile(`(?i)\b(0x[0-9a-f]+|[0-9a-f]{8,})\b`)
	numberRe = regexp.MustCompile(`\d+`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// NormalizeMessage replaces UUIDs, hex ids and numbers with placeholders
// so messages that differ only in identifiers group together.
func NormalizeMessage(msg string) string {
	s := uuidRe.ReplaceAllString(msg, "<uuid>")
	s = hexRe.ReplaceAllStringFunc(s, func(m string) string {
		lower := strings.ToLower(m)
		if strings.HasPrefix(lower, "0x") || (strings.ContainsAny(lower, "abcdef") && strings.ContainsAny(lower, "0123456789")) {
			return "<hex>"
		}
		return m
	})
	s = numberRe.ReplaceAllString(s, "<num>")
	s = strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
	if r := []rune(s); len(r) > maxPatternLength {
		s = string(r[:maxPatternLength])
	}
	return s
}

// AnalyzeLogGroup reads up to MaxAnalyzedEvents events in the window and
// reports error and warning counts and the most frequent message shapes.
func (l *Logs) AnalyzeLogGroup(ctx context.Context, p AnalyzeParams) (*Analysis, error) {
	if strings.TrimSpace(p.LogGroupName) == "" {
		return nil, fmt.Errorf("%w: log_group_name is required", ErrInvalidInput)
	}
	start, end, err := parseWindow(p.StartTime, p.EndTime)
	if err != nil {
		return nil, err
	}

	c, err := l.client(ctx, p.Region)
	if err != nil {
		return nil, err
	}

	in := &cloudwatchlogs.FilterLogEventsInput{
		LogGroupName: aws.String(p.LogGroupName),
		StartTime:    aws.Int64(start.UnixMilli()),
		EndTime:      aws.Int64(end.UnixMilli()),
	}
	if p.FilterPattern != "" {
		in.FilterPattern = aws.String(p.FilterPattern)
	}

	a := &Analysis{
		LogGroupName:     p.LogGroupName,
		StartTime:        p.StartTime,
		EndTime:          p.EndTime,
		FilterPattern:    p.FilterPattern,
		TopPatterns:      []Pattern{},
		TopErrorPatterns: []Pattern{},
	}
	all := newPatternCounter()
	errs := newPatternCounter()
	var first, last int64

	pager := cloudwatchlogs.NewFilterLogEventsPaginator(c, in)
	for pager.HasMorePages() && !a.Truncated {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("filter log events %s: %w", p.LogGroupName, err)
		}
		for _, ev := range page.Events {
			if a.EventsAnalyzed >= MaxAnalyzedEvents {
				a.Truncated = true
				break
			}
			a.EventsAnalyzed++

			ts := aws.ToInt64(ev.Timestamp)
			if first == 0 || ts < first {
				first = ts
			}
			if ts > last {
				last = ts
			}

			msg := aws.ToString(ev.Message)
			shape := NormalizeMessage(msg)
			all.add(shape, msg)
			switch {
			case errorLike.MatchString(msg):
				a.ErrorCount++
				errs.add(shape, msg)
			case warningLike.MatchString(msg):
				a.WarningCount++
			}
		}
		if a.EventsAnalyzed >= MaxAnalyzedEvents && pager.HasMorePages() {
			a.Truncated = true
		}
	}

	if a.EventsAnalyzed > 0 {
		a.FirstEvent = time.UnixMilli(first).UTC().Format(time.RFC3339Nano)
		a.LastEvent = time.UnixMilli(last).UTC().Format(time.RFC3339Nano)
	}
	a.TopPatterns = all.top(topPatterns)
	a.TopErrorPatterns = errs.top(topErrorPatterns)
	return a, nil
}

type patternCounter struct {
	order  []string
	counts map[string]*Pattern
}

func newPatternCounter() *patternCounter {
	return &patternCounter{counts: map[string]*Pattern{}}
}

func (c *patternCounter) add(shape, sample string) {
	p, ok := c.counts[shape]
	if !ok {
		p = &Pattern{Pattern: shape, Sample: truncateRunes(sample, maxPatternLength)}
		c.counts[shape] = p
		c.order = append(c.order, shape)
	}
	p.Count++
}

// top returns the n most frequent patterns; ties keep first-seen order.
func (c *patternCounter) top(n int) []Pattern {
	out := make([]Pattern, 0, len(c.order))
	for _, shape := range c.order {
		out = append(out, *c.counts[shape])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func truncateRunes(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}
