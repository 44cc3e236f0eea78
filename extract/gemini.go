package extract

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

// Model turns a prompt made of text and documents into a text answer.
type Model interface {
	Generate(ctx context.Context, parts ...*genai.Part) (string, error)
}

// Gemini is a Model backed by the Gemini API, asked to answer in JSON.
type Gemini struct {
	Client    *genai.Client
	ModelName string
	Config    *genai.GenerateContentConfig
}

// NewGemini creates a client. An empty apiKey lets the SDK read GEMINI_API_KEY
// or GOOGLE_API_KEY from the environment.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("cannot initialize Gemini's client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	return &Gemini{
		Client:    client,
		ModelName: model,
		Config: &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
			ResponseMIMEType:  "application/json",
			Temperature:       genai.Ptr[float32](0),
		},
	}, nil
}

func (g *Gemini) Generate(ctx context.Context, parts ...*genai.Part) (string, error) {
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := g.Client.Models.GenerateContent(ctx, g.ModelName, contents, g.Config)
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("no response from the model")
	}
	return resp.Text(), nil
}

const systemPrompt = `You extract cash and positions from broker account statements.

Stock codes and numbers must be copied exactly as shown in the document:
carefully distinguish similar characters such as 6 and 8, 0 and O.
Extract every visible cash balance and position, considering table pagination.

Answer with JSON only, all amounts as numbers, null for missing values:
{
  "Cash": {"CNY": 123.4, "HKD": 123.4, "USD": 123.4},
  "Positions": [
    {
      "StockCode": "AAPL",
      "Description": "Apple Inc",
      "Holding": 750000,
      "Price": 150.50,
      "PriceCurrency": "USD"
    }
  ]
}

For options, StockCode is the full contract description as printed.
Short positions have a negative Holding.`
