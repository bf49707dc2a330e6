package langsmith

import (
	"math"
	"sort"
	"time"

	"github.com/Coykto/debug-mcp/internal/memory"
)

// responsePreviewChars bounds response_preview in a run summary.
const responsePreviewChars = 500

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

// parseTimestamp reads LangSmith timestamps, which usually carry no zone
// and are UTC.
func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isoOrNil(s string) any {
	if s == "" {
		return nil
	}
	if t, ok := parseTimestamp(s); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return s
}

// Serialize flattens a run into the tool output shape. full adds inputs,
// outputs, the error message, metadata and the serialized definition.
func (c *Client) Serialize(r *Run, full bool) map[string]any {
	data := map[string]any{
		"id":         r.ID,
		"name":       r.Name,
		"run_type":   r.RunType,
		"status":     r.Status,
		"start_time": isoOrNil(r.StartTime),
		"end_time":   isoOrNil(r.EndTime),
		"error":      r.Error != nil,
	}

	start, okStart := parseTimestamp(r.StartTime)
	end, okEnd := parseTimestamp(r.EndTime)
	if okStart && okEnd {
		data["latency_seconds"] = math.Round(end.Sub(start).Seconds()*1000) / 1000
	}
	if r.ParentRunID != "" {
		data["parent_run_id"] = r.ParentRunID
	}
	if r.TraceID != "" {
		data["trace_id"] = r.TraceID
	}
	if len(r.Tags) > 0 {
		data["tags"] = r.Tags
	}
	if r.TotalTokens != 0 {
		data["total_tokens"] = r.TotalTokens
	}
	if r.PromptTokens != 0 {
		data["prompt_tokens"] = r.PromptTokens
	}
	if r.CompletionTokens != 0 {
		data["completion_tokens"] = r.CompletionTokens
	}
	if link := c.RunURL(r); link != "" {
		data["link"] = link
	}

	if !full {
		return data
	}
	if len(r.Inputs) > 0 {
		data["inputs"] = r.Inputs
	}
	if len(r.Outputs) > 0 {
		data["outputs"] = r.Outputs
	}
	if r.Error != nil && *r.Error != "" {
		data["error_message"] = *r.Error
	}
	if md := r.Metadata(); len(md) > 0 {
		data["metadata"] = md
	}
	if len(r.Serialized) > 0 {
		data["serialized"] = r.Serialized
	}
	return data
}

// Summarize extracts the headline of serialized run details: status,
// latency, token counts, the tools called, the user query and a preview
// of the final response.
func Summarize(details map[string]any) map[string]any {
	summary := map[string]any{}
	for _, k := range []string{
		"id", "name", "status", "run_type", "latency_seconds",
		"total_tokens", "prompt_tokens", "completion_tokens", "error", "link",
	} {
		summary[k] = details[k]
	}

	outputs, _ := details["outputs"].(map[string]any)
	history, isList := outputs["chat_history"].([]any)

	tools := map[string]struct{}{}
	for _, item := range history {
		msg, ok := item.(map[string]any)
		if !ok {
			continue
		}
		calls, _ := msg["tool_calls"].([]any)
		for _, c := range calls {
			if tc, ok := c.(map[string]any); ok {
				if name, ok := tc["name"].(string); ok {
					tools[name] = struct{}{}
				}
			}
		}
		if msg["type"] == "tool" {
			name, ok := msg["name"].(string)
			if !ok {
				name = "unknown_tool"
			}
			tools[name] = struct{}{}
		}
	}
	called := make([]string, 0, len(tools))
	for name := range tools {
		called = append(called, name)
	}
	sort.Strings(called)
	summary["tools_called"] = called

	summary["message_count"] = 0
	if isList {
		summary["message_count"] = len(history)
	}

	if inputs, ok := details["inputs"].(map[string]any); ok {
		if input, ok := inputs["input"].(map[string]any); ok {
			summary["user_query"] = input["user_query"]
		}
	}

	if response, ok := outputs["response"].(map[string]any); ok {
		if text, _ := response["final_text"].(string); text != "" {
			summary["response_preview"] = memory.Ellipsize(text, responsePreviewChars)
		}
	}

	children, _ := details["children"].([]any)
	if kids, ok := details["children"].([]map[string]any); ok {
		summary["child_count"] = len(kids)
	} else {
		summary["child_count"] = len(children)
	}
	return summary
}
