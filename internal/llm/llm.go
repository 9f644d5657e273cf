package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/ieltsprep/internal/llm/prompts"
	"github.com/pavelanni/ieltsprep/internal/model"
)

// Client wraps an OpenAI-compatible API client. It grades writing essays and
// plays the speaking examiner.
type Client struct {
	api     *openai.Client
	model   string
	variant prompts.PromptVariant
}

// New creates a new LLM client. Prompt templates must be loaded with
// prompts.Load before the client is used.
func New(baseURL, apiKey, modelName string, variant prompts.PromptVariant) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		variant: variant,
	}
}

// GradeWriting sends the essay to the model and parses its band assessment.
func (c *Client) GradeWriting(ctx context.Context, essay, prompt string, task model.TaskType) (model.WritingFeedback, error) {
	systemPrompt, err := prompts.BuildGradePrompt(c.variant, task, prompt, essay)
	if err != nil {
		return model.WritingFeedback{}, fmt.Errorf("build grading prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.3,
	})
	if err != nil {
		return model.WritingFeedback{}, fmt.Errorf("LLM grading API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return model.WritingFeedback{}, errors.New("LLM returned no choices for grading")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM grading response", "raw", raw)
	return parseFeedback(raw)
}

func parseFeedback(raw string) (model.WritingFeedback, error) {
	var fb model.WritingFeedback
	if err := json.Unmarshal([]byte(stripFence(raw)), &fb); err != nil {
		return model.WritingFeedback{}, fmt.Errorf("parse grading response: %w (raw: %s)", err, raw)
	}
	return fb, nil
}

// Reply continues a speaking test: the transcript so far, then the
// candidate's new utterance, and returns the examiner's next line.
func (c *Client) Reply(ctx context.Context, transcript []model.SpeakingMessage, utterance string, material *model.SpeakingModule) (string, error) {
	systemPrompt, err := prompts.BuildExaminerPrompt(material)
	if err != nil {
		return "", fmt.Errorf("build examiner prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    conversation(systemPrompt, transcript, utterance),
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("LLM examiner API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("LLM returned no choices")
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", errors.New("LLM returned an empty reply")
	}
	return reply, nil
}

// conversation maps the transcript to chat messages: the examiner speaks as
// the assistant and the candidate as the user.
func conversation(system string, transcript []model.SpeakingMessage, utterance string) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(transcript)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	for _, m := range transcript {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: chatRole(m.Role), Content: m.Text})
	}
	return append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: utterance})
}

func chatRole(r model.SpeakerRole) string {
	if r == model.SpeakerExaminer {
		return openai.ChatMessageRoleAssistant
	}
	return openai.ChatMessageRoleUser
}

// stripFence removes a Markdown code fence some models wrap JSON in.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
