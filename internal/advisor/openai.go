package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o"

const systemPrompt = `You are an endurance and strength coach reviewing an athlete's training plan.
You receive a JSON payload with the current plan week, 7 day wellness averages, a 14 day activity summary,
recent and upcoming workouts, goal progress, rule based recommendations, and a rule based adjustment.

Reply with a single JSON object with these fields:
- overall_assessment: one of "on_track", "needs_adjustment", "concerning"
- progress_summary: two or three sentences
- modifications: array of objects with
  type (one of "intensity", "volume", "add_rest", "skip", "reschedule", "swap_workout"),
  week, day (1 is the first day of the plan week), date (YYYY-MM-DD), workout_type, description, reason,
  priority ("high", "medium", "low"), intensity_modifier or volume_modifier (0.5 to 1.2) for intensity and volume,
  new_date for reschedule, new_workout_type for swap_workout
- next_week_focus: one sentence
- warnings: array of strings
- confidence: number between 0 and 1

Only propose modifications to upcoming workouts. Use priority "high" only for changes that protect the athlete
from injury or overtraining.`

// OpenAI evaluates payloads with an OpenAI chat model.
type OpenAI struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAI creates an evaluator. Extra request options are passed to the client, e.g. a base URL in tests.
func NewOpenAI(apiKey string, model string, logger *slog.Logger, opts ...option.RequestOption) *OpenAI {
	if model == "" {
		model = DefaultModel
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  model,
		logger: logger,
	}
}

// Evaluate sends the payload to the model and parses the reply.
func (o *OpenAI) Evaluate(ctx context.Context, payload Payload) (Evaluation, error) {
	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return Evaluation{}, fmt.Errorf("marshal payload: %w", err)
	}

	var prompt strings.Builder
	prompt.WriteString("Training review for ")
	prompt.WriteString(payload.Date)
	prompt.WriteString(".\n\n")
	if payload.UserNotes != "" {
		prompt.WriteString("Athlete notes: ")
		prompt.WriteString(payload.UserNotes)
		prompt.WriteString("\n\n")
	}
	prompt.Write(body)

	params := openai.ChatCompletionNewParams{ //nolint:exhaustruct // only need to set a few fields.
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt.String()),
		},
		Model: shared.ChatModel(o.model),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{ //nolint:exhaustruct // union.
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{}, //nolint:exhaustruct // constant type.
		},
	}

	o.logger.LogAttrs(ctx, slog.LevelDebug, "sending evaluation request",
		slog.String("model", o.model), slog.Int("payload_bytes", len(body)))

	completion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Evaluation{}, fmt.Errorf("%w: chat completion: %w", ErrUnavailable, err)
	}
	if len(completion.Choices) == 0 {
		return Evaluation{}, fmt.Errorf("%w: no choices in completion", ErrMalformedResponse)
	}

	o.logger.LogAttrs(ctx, slog.LevelDebug, "received evaluation response",
		slog.Int64("prompt_tokens", completion.Usage.PromptTokens),
		slog.Int64("completion_tokens", completion.Usage.CompletionTokens))

	evaluation, err := Parse(completion.Choices[0].Message.Content)
	if err != nil {
		return Evaluation{}, fmt.Errorf("parse evaluation: %w", err)
	}
	return evaluation, nil
}
