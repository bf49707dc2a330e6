package stepfunctions

import (
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sfn/types"
)

// StateIO holds the payloads observed for one state, each list in the
// order its events arrived.
type StateIO struct {
	Inputs  []string `json:"inputs"`
	Outputs []string `json:"outputs"`
}

// StateHistory maps state names to their observed payloads.
type StateHistory map[string]*StateIO

func (h StateHistory) entry(name string) *StateIO {
	io, ok := h[name]
	if !ok {
		io = &StateIO{Inputs: []string{}, Outputs: []string{}}
		h[name] = io
	}
	return io
}

// Names returns the state names, sorted.
func (h StateHistory) Names() []string {
	names := make([]string, 0, len(h))
	for n := range h {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ParseStateHistory rebuilds per-state inputs and outputs from execution
// history events. Only state entered and exited events count; task,
// lambda and other events are ignored, as are events without a state name
// or payload.
func ParseStateHistory(events []types.HistoryEvent) StateHistory {
	h := StateHistory{}
	for _, ev := range events {
		t := string(ev.Type)
		switch {
		case strings.Contains(t, "StateEntered"):
			d := ev.StateEnteredEventDetails
			if d == nil || d.Name == nil || d.Input == nil || *d.Name == "" || *d.Input == "" {
				continue
			}
			io := h.entry(*d.Name)
			io.Inputs = append(io.Inputs, *d.Input)
		case strings.Contains(t, "StateExited"):
			d := ev.StateExitedEventDetails
			if d == nil || d.Name == nil || d.Output == nil || *d.Name == "" || *d.Output == "" {
				continue
			}
			io := h.entry(*d.Name)
			io.Outputs = append(io.Outputs, *d.Output)
		}
	}
	return h
}
