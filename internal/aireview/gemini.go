package aireview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Analyzer produces a review from the free-text notes recorded during
// an outreach conversation.
type Analyzer interface {
	Analyze(ctx context.Context, notes string) (Review, error)
}

// GeminiAnalyzer implements Analyzer using Google's Gemini API with a
// structured-output schema, so responses arrive as JSON matching the
// Review shape rather than free prose.
type GeminiAnalyzer struct {
	client  *genai.Client
	modelID string
}

var _ Analyzer = (*GeminiAnalyzer)(nil)

// NewGeminiAnalyzer creates a Gemini-backed analyzer.
func NewGeminiAnalyzer(ctx context.Context, apiKey, modelID string) (*GeminiAnalyzer, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("aireview: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("aireview: failed to create gemini client: %w", err)
	}

	return &GeminiAnalyzer{client: client, modelID: modelID}, nil
}

const systemPrompt = `You help church outreach volunteers assess conversations.
Given the volunteer's notes about a person they spoke with, estimate the
person's spiritual hunger, suggest one Bible verse to share next, suggest a
concrete next action for the volunteer, and summarize the conversation in one
or two sentences. Be practical and encouraging.`

func reviewSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"hungerLevel": {
				Type:        genai.TypeString,
				Enum:        []string{string(HungerLow), string(HungerMedium), string(HungerHigh)},
				Description: "Estimated spiritual receptiveness of the person.",
			},
			"suggestedVerse": {
				Type:        genai.TypeString,
				Description: "A single Bible verse reference to share, e.g. John 3:16.",
			},
			"nextAction": {
				Type:        genai.TypeString,
				Description: "One concrete next step for the volunteer.",
			},
			"summary": {
				Type:        genai.TypeString,
				Description: "One or two sentence summary of the conversation.",
			},
		},
		Required: []string{"hungerLevel", "suggestedVerse", "nextAction", "summary"},
	}
}

// Analyze sends the notes to Gemini and decodes the structured
// response. Malformed responses are an error here; the service wrapper
// converts every error into the default review.
func (a *GeminiAnalyzer) Analyze(ctx context.Context, notes string) (Review, error) {
	model := a.client.GenerativeModel(a.modelID)
	model.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = reviewSchema()

	resp, err := model.GenerateContent(ctx, genai.Text(notes))
	if err != nil {
		return Review{}, fmt.Errorf("aireview: gemini request failed: %w", err)
	}

	text, err := extractText(resp)
	if err != nil {
		return Review{}, err
	}
	return ParseReview(text)
}

// Close releases the underlying API client.
func (a *GeminiAnalyzer) Close() error {
	return a.client.Close()
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("aireview: gemini returned no candidates")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", errors.New("aireview: gemini returned empty content")
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String(), nil
}

// ParseReview decodes model output into a Review, rejecting anything
// that does not satisfy the schema it was asked for.
func ParseReview(text string) (Review, error) {
	text = strings.TrimSpace(text)
	// Some models wrap JSON in a code fence despite the MIME type.
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var review Review
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &review); err != nil {
		return Review{}, fmt.Errorf("aireview: unparsable model response: %w", err)
	}
	if !validLevel(review.HungerLevel) {
		return Review{}, fmt.Errorf("aireview: unknown hunger level %q", review.HungerLevel)
	}
	if review.SuggestedVerse == "" || review.NextAction == "" || review.Summary == "" {
		return Review{}, errors.New("aireview: model response missing required fields")
	}
	return review, nil
}
