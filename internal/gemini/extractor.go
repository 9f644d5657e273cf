// Package gemini extracts practice tests from uploaded documents with the
// Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/pavelanni/ieltsprep/internal/llm/prompts"
	"github.com/pavelanni/ieltsprep/internal/model"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gemini-2.5-flash"

// Extractor sends a document inline and asks for the tests it contains.
type Extractor struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// New creates an Extractor. Prompt templates must be loaded with
// prompts.Load before the extractor is used.
func New(ctx context.Context, apiKey, modelName string) (*Extractor, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is not set")
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	m := client.GenerativeModel(modelName)
	m.ResponseMIMEType = "application/json"
	m.SetTemperature(0)
	return &Extractor{client: client, model: m}, nil
}

func (e *Extractor) Close() error {
	return e.client.Close()
}

// ExtractTests returns the tests for module found in the document. The
// returned tests carry no ids; callers assign them.
func (e *Extractor) ExtractTests(ctx context.Context, data []byte, mimeType string, module model.TestModule) ([]model.PracticeTest, error) {
	prompt, err := prompts.BuildExtractPrompt(module)
	if err != nil {
		return nil, err
	}
	resp, err := e.model.GenerateContent(ctx,
		genai.Blob{MIMEType: mimeType, Data: data},
		genai.Text(prompt),
	)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, errors.New("gemini returned no content")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	slog.Debug("gemini extraction response", "module", module, "bytes", sb.Len())
	return ParseTests(sb.String(), module)
}

// ParseTests decodes an extraction response and keeps only the content of the
// requested module on each test.
func ParseTests(raw string, module model.TestModule) ([]model.PracticeTest, error) {
	var parsed struct {
		Tests []model.PracticeTest `json:"tests"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("parse extraction response: %w", err)
	}
	tests := make([]model.PracticeTest, 0, len(parsed.Tests))
	for _, t := range parsed.Tests {
		only := model.PracticeTest{Name: strings.TrimSpace(t.Name)}
		switch module {
		case model.ModuleReading:
			only.Reading = t.Reading
		case model.ModuleWriting:
			only.Writing = t.Writing
		case model.ModuleSpeaking:
			only.Speaking = t.Speaking
		}
		tests = append(tests, only)
	}
	return tests, nil
}
