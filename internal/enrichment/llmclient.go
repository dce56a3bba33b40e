package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"neoalexandria/internal/apperr"
)

// GenAIClient wraps a *genai.Client and implements every LLM-backed stage
// interface (Summarizer, Tagger, Classifier, DenseEmbedder,
// ScholarlyExtractor), mirroring the teacher's internal/llm.Client and
// internal/tags.Classifier: one genai.Client, structured-output schemas
// for anything that needs parseable fields, plain text generation
// otherwise.
type GenAIClient struct {
	client         *genai.Client
	model          string
	embeddingModel string
	embeddingDims  int32
	temperature    float32
}

// NewGenAIClient builds a GenAIClient. apiKey resolution (env vars, then
// viper config) happens one layer up in internal/config, unlike the
// teacher's internal/llm.NewClient which resolves it inline; by the time
// apiKey reaches here it is already final.
func NewGenAIClient(ctx context.Context, apiKey, model, embeddingModel string, embeddingDims int, temperature float32) (*GenAIClient, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GenAIClient{
		client:         gc,
		model:          model,
		embeddingModel: embeddingModel,
		embeddingDims:  int32(embeddingDims),
		temperature:    temperature,
	}, nil
}

func (c *GenAIClient) generateText(ctx context.Context, prompt string, schema *genai.Schema) (string, error) {
	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}
	var cfg *genai.GenerateContentConfig
	if schema != nil {
		cfg = &genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   schema,
			Temperature:      &c.temperature,
		}
	} else {
		cfg = &genai.GenerateContentConfig{Temperature: &c.temperature}
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", apperr.Degradable("model generation failed", err)
	}
	text := resp.Text()
	if text == "" {
		return "", apperr.Degradable("empty response from model", nil)
	}
	return text, nil
}

// Summarize implements Summarizer.
func (c *GenAIClient) Summarize(ctx context.Context, title, text string) (string, error) {
	prompt := fmt.Sprintf("Write a concise one-paragraph abstract (2-4 sentences) for the following document titled %q. Write only the abstract, no preamble.\n\n%s", title, truncate(text, 12000))
	out, err := c.generateText(ctx, prompt, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

var tagSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"subjects": {
			Type:        genai.TypeArray,
			Description: "3-8 concise subject keywords or short phrases describing the document",
			Items:       &genai.Schema{Type: genai.TypeString},
		},
	},
	Required: []string{"subjects"},
}

// Tag implements Tagger.
func (c *GenAIClient) Tag(ctx context.Context, title, text string) ([]string, error) {
	prompt := fmt.Sprintf("List 3-8 subject keywords describing the document titled %q.\n\n%s", title, truncate(text, 8000))
	out, err := c.generateText(ctx, prompt, tagSchema)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Subjects []string `json:"subjects"`
	}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		return nil, apperr.Degradable("failed to parse tag response", err)
	}
	return parsed.Subjects, nil
}

var classificationSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"code": {
			Type:        genai.TypeString,
			Description: "A single hierarchical classification path, e.g. 004.6",
		},
		"confidence": {
			Type:        genai.TypeNumber,
			Description: "Confidence in the classification, 0.0 to 1.0",
		},
	},
	Required: []string{"code", "confidence"},
}

// Classify implements Classifier.
func (c *GenAIClient) Classify(ctx context.Context, title, text string) (string, float64, error) {
	prompt := fmt.Sprintf("Assign a single hierarchical subject-classification code (Dewey-Decimal-like, e.g. 004.6) to the document titled %q, with a confidence score.\n\n%s", title, truncate(text, 8000))
	out, err := c.generateText(ctx, prompt, classificationSchema)
	if err != nil {
		return "", 0, err
	}
	var parsed struct {
		Code       string  `json:"code"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		return "", 0, apperr.Degradable("failed to parse classification response", err)
	}
	return parsed.Code, parsed.Confidence, nil
}

// Embed implements DenseEmbedder. Grounded on the teacher's
// internal/llm.Client.GenerateEmbedding, including its Matryoshka
// OutputDimensionality configuration.
func (c *GenAIClient) Embed(ctx context.Context, text string) ([]float64, error) {
	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: truncate(text, 8000)}},
		Role:  "user",
	}}
	dims := c.embeddingDims
	cfg := &genai.EmbedContentConfig{OutputDimensionality: &dims}

	resp, err := c.client.Models.EmbedContent(ctx, c.embeddingModel, contents, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperr.Degradable("embedding request failed", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, apperr.Degradable("no embedding values returned", nil)
	}
	values := resp.Embeddings[0].Values
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out, nil
}

var scholarlySchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"is_academic": {Type: genai.TypeBoolean, Description: "Whether the text resembles an academic paper"},
		"authors":     {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"doi":         {Type: genai.TypeString, Description: "DOI if present, empty string otherwise"},
		"equations":   {Type: genai.TypeInteger, Description: "Approximate count of mathematical equations"},
		"tables":      {Type: genai.TypeInteger, Description: "Approximate count of tables"},
	},
	Required: []string{"is_academic", "authors", "doi", "equations", "tables"},
}

// ExtractScholarly implements ScholarlyExtractor.
func (c *GenAIClient) ExtractScholarly(ctx context.Context, text string) (*ScholarlyResult, bool, error) {
	prompt := "Determine whether the following text is from an academic paper. If so, extract its authors, DOI (if any), and approximate counts of equations and tables.\n\n" + truncate(text, 10000)
	out, err := c.generateText(ctx, prompt, scholarlySchema)
	if err != nil {
		return nil, false, err
	}
	var parsed struct {
		IsAcademic bool     `json:"is_academic"`
		Authors    []string `json:"authors"`
		DOI        string   `json:"doi"`
		Equations  int      `json:"equations"`
		Tables     int      `json:"tables"`
	}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		return nil, false, apperr.Degradable("failed to parse scholarly response", err)
	}
	if !parsed.IsAcademic {
		return nil, false, nil
	}
	return &ScholarlyResult{
		Authors:   parsed.Authors,
		DOI:       parsed.DOI,
		Equations: parsed.Equations,
		Tables:    parsed.Tables,
	}, true, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
