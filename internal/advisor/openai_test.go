package advisor_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/myrjola/fitcoach/internal/advisor"
	"github.com/myrjola/fitcoach/internal/testhelpers"
	"github.com/openai/openai-go/v3/option"
)

func completion(content string) map[string]any {
	choices := []map[string]any{}
	if content != "" {
		choices = append(choices, map[string]any{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		})
	}
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1741600000,
		"model":   "gpt-4o",
		"choices": choices,
		"usage":   map[string]any{"prompt_tokens": 120, "completion_tokens": 40, "total_tokens": 160},
	}
}

func TestOpenAI_Evaluate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		status         int
		response       map[string]any
		wantErr        error
		wantAssessment advisor.Assessment
	}{
		{
			name:           "evaluation",
			status:         http.StatusOK,
			response:       completion(`{"overall_assessment": "on_track", "modifications": [], "confidence": 0.9}`),
			wantAssessment: advisor.AssessmentOnTrack,
		},
		{
			name:     "upstream failure",
			status:   http.StatusInternalServerError,
			response: map[string]any{"error": map[string]any{"message": "boom", "type": "server_error"}},
			wantErr:  advisor.ErrUnavailable,
		},
		{
			name:     "no choices",
			status:   http.StatusOK,
			response: completion(""),
			wantErr:  advisor.ErrMalformedResponse,
		},
		{
			name:     "prose reply",
			status:   http.StatusOK,
			response: completion("Keep going!"),
			wantErr:  advisor.ErrMalformedResponse,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var mu sync.Mutex
			var request struct {
				Model          string `json:"model"`
				ResponseFormat struct {
					Type string `json:"type"`
				} `json:"response_format"`
				Messages []struct {
					Role string `json:"role"`
				} `json:"messages"`
			}
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/chat/completions" {
					http.NotFound(w, r)
					return
				}
				mu.Lock()
				defer mu.Unlock()
				if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(tt.response)
			}))
			t.Cleanup(server.Close)

			logger := testhelpers.NewLogger(testhelpers.NewWriter(t))
			evaluator := advisor.NewOpenAI("test-key", "", logger,
				option.WithBaseURL(server.URL+"/"), option.WithMaxRetries(0))

			got, err := evaluator.Evaluate(t.Context(), advisor.Payload{Date: "2025-03-10", UserNotes: "tired legs"})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Evaluate() error = %v, want %v", err, tt.wantErr)
			}
			if got.Assessment != tt.wantAssessment {
				t.Errorf("Assessment = %q, want %q", got.Assessment, tt.wantAssessment)
			}
			mu.Lock()
			defer mu.Unlock()
			if request.Model != advisor.DefaultModel || request.ResponseFormat.Type != "json_object" {
				t.Errorf("request model = %q, response format = %q", request.Model, request.ResponseFormat.Type)
			}
			if len(request.Messages) != 2 || request.Messages[0].Role != "system" {
				t.Errorf("request messages = %+v, want system and user message", request.Messages)
			}
		})
	}
}

func TestUnavailable_Evaluate(t *testing.T) {
	t.Parallel()
	if _, err := (advisor.Unavailable{}).Evaluate(t.Context(), advisor.Payload{}); !errors.Is(err, advisor.ErrUnavailable) {
		t.Errorf("Evaluate() error = %v, want %v", err, advisor.ErrUnavailable)
	}
}
