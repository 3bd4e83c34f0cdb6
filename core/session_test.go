package core

import (
	"testing"
	"time"
)

func TestSession_MergeDataAndClone(t *testing.T) {
	s := NewSession("agent-1", "user-1")

	s.MergeData(map[string]any{"a": 1, "b": "x"})
	if v, ok := s.Data["a"]; !ok || v.(int) != 1 {
		t.Fatalf("data not merged: %+v", s.Data)
	}

	clone := s.Clone()
	if clone == s {
		t.Error("Clone should be a different pointer")
	}

	clone.Data["c"] = 2
	if _, exists := s.Data["c"]; exists {
		t.Error("original should not have clone's new key")
	}

	s.MergeData(map[string]any{"a": 42})
	if s.Data["a"].(int) != 42 {
		t.Error("merge should overwrite existing keys")
	}
}

func TestSession_MessagesFlattenChronologically(t *testing.T) {
	s := NewSession("agent-1", "user-1")

	first := Run{
		ID:       NewID(),
		Messages: []Message{NewUserMessage("one"), NewAssistantMessage("two")},
	}
	second := Run{
		ID:       NewID(),
		Messages: []Message{NewUserMessage("three"), NewAssistantMessage("four")},
	}
	s.Runs = append(s.Runs, first, second)

	msgs := s.Messages()
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}

	want := []string{"one", "two", "three", "four"}
	for i, m := range msgs {
		if m.Content != want[i] {
			t.Errorf("message %d: expected %q, got %q", i, want[i], m.Content)
		}
	}
}

func TestRun_CloneIsDeep(t *testing.T) {
	usage := Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}
	run := &Run{
		ID:       NewID(),
		Messages: []Message{NewToolCallMessage(ToolCall{ID: "c1", Name: "echo", Arguments: "{}"})},
		Content:  []byte("hello"),
		Status:   RunStatusCompleted,
		Usage:    &usage,
	}

	clone := run.Clone()
	clone.Messages[0].ToolCalls[0].Name = "changed"
	clone.Content[0] = 'X'
	clone.Usage.TotalTokens = 99

	if run.Messages[0].ToolCalls[0].Name != "echo" {
		t.Error("tool calls should be copied")
	}

	if run.Content[0] != 'h' {
		t.Error("content bytes should be copied")
	}

	if run.Usage.TotalTokens != 3 {
		t.Error("usage should be copied")
	}
}

func TestUsage_Add(t *testing.T) {
	a := Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15, CachedTokens: 2}
	b := Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2}

	sum := a.Add(b)
	if sum.PromptTokens != 11 || sum.CompletionTokens != 6 || sum.TotalTokens != 17 || sum.CachedTokens != 2 {
		t.Fatalf("unexpected sum: %+v", sum)
	}
}

func TestNewSession_Defaults(t *testing.T) {
	before := time.Now().UTC()
	s := NewSession("agent-1", "user-1")

	if s.ID == "" {
		t.Error("session id should be generated")
	}

	if s.AgentID != "agent-1" || s.UserID != "user-1" {
		t.Errorf("unexpected ownership: %s/%s", s.AgentID, s.UserID)
	}

	if s.CreatedAt.Before(before) || !s.CreatedAt.Equal(s.UpdatedAt) {
		t.Error("timestamps should be initialized together")
	}
}
