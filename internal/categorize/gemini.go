package categorize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/dvloznov/bank-sync/internal/domain"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

// contentGenerator is the part of genai.Models the classifier calls.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClassifier classifies descriptions with a Gemini model constrained
// to a JSON array of enum strings.
type GeminiClassifier struct {
	models contentGenerator
	model  string
}

// NewGeminiClassifier creates a Gemini API client. An empty apiKey makes
// the SDK fall back to GEMINI_API_KEY / GOOGLE_API_KEY.
func NewGeminiClassifier(ctx context.Context, apiKey, model string) (*GeminiClassifier, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiClassifier: create genai client: %w", err)
	}
	return newGeminiClassifier(client.Models, model), nil
}

func newGeminiClassifier(models contentGenerator, model string) *GeminiClassifier {
	if model == "" {
		model = DefaultModel
	}
	return &GeminiClassifier{models: models, model: model}
}

// Classify implements Classifier.
func (g *GeminiClassifier) Classify(ctx context.Context, descriptions []string, labels []string) (*Classification, error) {
	if len(descriptions) == 0 {
		return &Classification{Usage: Usage{Model: g.model}}, nil
	}

	temperature := float32(0)
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: SystemInstruction(labels)}},
		},
		Temperature:      &temperature,
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString, Enum: labels},
		},
	}

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: BatchPrompt(descriptions)}},
		},
	}

	resp, err := g.models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("GeminiClassifier.Classify: generate content: %w", err)
	}

	out := &Classification{Usage: usageOf(g.model, resp)}

	rawText := resp.Text()
	if rawText == "" {
		return out, fmt.Errorf("GeminiClassifier.Classify: %w: empty response from model", domain.ErrClassificationContract)
	}

	var got []string
	if err := json.Unmarshal([]byte(cleanModelJSON(rawText)), &got); err != nil {
		return out, fmt.Errorf("GeminiClassifier.Classify: %w: %v\nraw response: %s",
			domain.ErrClassificationContract, err, rawText)
	}
	out.Labels = got
	return out, nil
}

func usageOf(model string, resp *genai.GenerateContentResponse) Usage {
	u := Usage{Model: model}
	if resp.ModelVersion != "" {
		u.Model = resp.ModelVersion
	}
	if md := resp.UsageMetadata; md != nil {
		u.InputTokens = int64(md.PromptTokenCount)
		u.OutputTokens = int64(md.CandidatesTokenCount)
		u.TotalTokens = int64(md.TotalTokenCount)
	}
	return u
}

// IsContractViolation reports whether err means the classifier answered
// but the answer was unusable.
func IsContractViolation(err error) bool {
	return errors.Is(err, domain.ErrClassificationContract)
}

var _ Classifier = (*GeminiClassifier)(nil)
