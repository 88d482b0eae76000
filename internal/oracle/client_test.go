package oracle

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sghr/warden/internal/model"
)

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name string
		text string
		kind model.DecisionKind
	}{
		{
			"final",
			`{"kind":"final","final_response":"done"}`,
			model.DecisionFinal,
		},
		{
			"action",
			`{"kind":"action","action":{"tool_name":"shell","reason":"list","args":{"command":"ls"},"risk_level":"low"}}`,
			model.DecisionAction,
		},
		{
			"fenced json",
			"```json\n{\"kind\":\"final\",\"final_response\":\"ok\"}\n```",
			model.DecisionFinal,
		},
		{
			"bare fence",
			"```\n{\"kind\":\"final\",\"final_response\":\"ok\"}\n```",
			model.DecisionFinal,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseDecision(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, d.Kind)
		})
	}
}

func TestParseDecisionDefaults(t *testing.T) {
	d, err := ParseDecision(`{"kind":"final"}`)
	require.NoError(t, err)
	assert.Equal(t, "No final response.", d.FinalResponse)

	// Risk defaults to medium through proposal validation.
	d, err = ParseDecision(`{"kind":"action","action":{"tool_name":"web","reason":"search","args":{"query":"go"}}}`)
	require.NoError(t, err)
	assert.Equal(t, model.RiskMedium, d.Action.Risk)
}

func TestParseDecisionRejects(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"not json", "I think we should run ls"},
		{"unknown kind", `{"kind":"plan"}`},
		{"bad tool", `{"kind":"action","action":{"tool_name":"db","reason":"x"}}`},
		{"empty reason", `{"kind":"action","action":{"tool_name":"shell","reason":""}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDecision(tt.text)
			assert.Error(t, err)
		})
	}
}

func TestParseDecisionActionWithoutPayloadPassesThrough(t *testing.T) {
	// The step loop treats a missing payload as a fatal protocol violation;
	// the parser must hand it through rather than mask it.
	d, err := ParseDecision(`{"kind":"action"}`)
	require.NoError(t, err)
	assert.Equal(t, model.DecisionAction, d.Kind)
	assert.Nil(t, d.Action)
}

func newAnthropicTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	c, err := NewClient(ProviderAnthropic, "claude-test", WithBaseURL(srv.URL))
	require.NoError(t, err)
	return c
}

func TestClientDecide(t *testing.T) {
	c := newAnthropicTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claude-test", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Contains(t, req.Messages[0].Content, "Goal:\nwrite a haiku")

		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": `{"kind":"final","final_response":"done"}`}},
			"usage":   map[string]int{"input_tokens": 12, "output_tokens": 7},
		})
	})

	d, metrics := c.Decide("write a haiku", "{}", false)
	assert.Equal(t, model.DecisionFinal, d.Kind)
	assert.Equal(t, "done", d.FinalResponse)
	assert.Equal(t, 12, metrics["input_tokens"])
	assert.Equal(t, 7, metrics["output_tokens"])
	assert.Equal(t, ProviderAnthropic, metrics["provider"])
}

func TestClientDecideTeamModeChangesPromptOnly(t *testing.T) {
	var prompt string
	c := newAnthropicTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req anthropicRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		prompt = req.Messages[0].Content
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": `{"kind":"final","final_response":"x"}`}},
		})
	})

	c.Decide("goal", "{}", true)
	assert.Contains(t, prompt, "planner/executor/reviewer")
}

func TestClientDecideAbsorbsTransportFailure(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	c, err := NewClient(ProviderAnthropic, "claude-test", WithBaseURL("http://127.0.0.1:1"))
	require.NoError(t, err)

	d, metrics := c.Decide("goal", "{}", false)
	assert.Equal(t, model.DecisionFinal, d.Kind)
	assert.Contains(t, d.FinalResponse, "Model request failed")
	assert.NotNil(t, metrics["latency_ms"])
}

func TestClientDecideAbsorbsParseFailure(t *testing.T) {
	c := newAnthropicTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": "sure, running ls now!"}},
		})
	})

	d, _ := c.Decide("goal", "{}", false)
	assert.Equal(t, model.DecisionFinal, d.Kind)
	assert.Contains(t, d.FinalResponse, "unparseable")
}

func TestClientDecideOpenAI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer openai-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": `{"kind":"final","final_response":"hi"}`}}},
			"usage":   map[string]int{"prompt_tokens": 3, "completion_tokens": 2},
		})
	}))
	defer srv.Close()

	t.Setenv("OPENAI_API_KEY", "openai-key")
	c, err := NewClient(ProviderOpenAI, "", WithBaseURL(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, DefaultModelFor(ProviderOpenAI), c.modelName)

	d, metrics := c.Decide("goal", "{}", false)
	assert.Equal(t, "hi", d.FinalResponse)
	assert.Equal(t, 3, metrics["input_tokens"])
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient("gemini", ""); err == nil {
		t.Error("expected error for unsupported provider")
	}

	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := NewClient(ProviderAnthropic, ""); err == nil {
		t.Error("expected error when API key is missing")
	}
}
