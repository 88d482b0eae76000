// Package session holds the append-only transcript for a single run: the
// ordered messages exchanged with the oracle and the events recorded by the
// step loop. A State is owned by exactly one run and is not safe for
// concurrent use on its own; the run manager serializes access.
package session

import (
	"encoding/json"
	"time"
)

// Message is one transcript entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	TS      string `json:"ts"`
}

// Event is one recorded occurrence (policy verdict, approval outcome, tool
// result, terminal event, ...).
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
	TS   string         `json:"ts"`
}

// State is the session transcript. Goal is immutable after construction;
// messages and events are strictly append-only.
type State struct {
	Goal     string
	Cwd      string
	Messages []Message
	Events   []Event
}

// New creates an empty session for the given goal and working directory.
func New(goal, cwd string) *State {
	return &State{Goal: goal, Cwd: cwd}
}

func utcNow() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// AddMessage appends a transcript message with the current timestamp.
func (s *State) AddMessage(role, content string) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content, TS: utcNow()})
}

// AddEvent appends an event with the current timestamp.
func (s *State) AddEvent(eventType string, data map[string]any) {
	s.Events = append(s.Events, Event{Type: eventType, Data: data, TS: utcNow()})
}

// contextWindow bounds how much history is rendered for the oracle. The
// oracle sees a recency window, never the full transcript.
const contextWindow = 10

// PromptContext renders the goal, cwd, and the most recent messages and
// events as indented JSON for inclusion in the oracle prompt.
func (s *State) PromptContext() string {
	ctx := map[string]any{
		"goal":            s.Goal,
		"cwd":             s.Cwd,
		"recent_messages": tail(s.Messages, contextWindow),
		"recent_events":   tail(s.Events, contextWindow),
	}
	data, err := json.MarshalIndent(ctx, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

func tail[T any](items []T, n int) []T {
	if len(items) <= n {
		if items == nil {
			return []T{}
		}
		return items
	}
	return items[len(items)-n:]
}
