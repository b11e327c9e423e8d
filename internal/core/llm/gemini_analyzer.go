package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"studyvault/internal/core"
	"studyvault/internal/models"
)

// maxAnalysisChars caps the text sent to the model; outline quality does not
// improve past this and the request would blow the context window.
const maxAnalysisChars = 60000

const analysisPrompt = `You are a document analyst. Given the document text, respond with JSON only:
{
  "title": "concise document title",
  "summary": "2-3 sentence summary of the whole document",
  "outline": [
    {
      "title": "section title",
      "summary": "1 sentence",
      "node_type": "SECTION" or "TOPIC",
      "keywords": ["k1", "k2"],
      "page_start": page number the section starts on, or 0 if unknown,
      "line_start": 0,
      "children": [same shape, at most 2 levels below this one]
    }
  ]
}
Keep the outline at most 3 levels deep and under 150 total nodes.`

type GeminiAnalyzer struct {
	client    *genai.Client
	modelName string
}

func NewGeminiAnalyzer(ctx context.Context, apiKey, modelName string) (*GeminiAnalyzer, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &GeminiAnalyzer{client: cl, modelName: modelName}, nil
}

func (g *GeminiAnalyzer) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiAnalyzer) Analyze(ctx context.Context, fullText, mimeType string) (*models.DocumentAnalysis, error) {
	if len(fullText) > maxAnalysisChars {
		fullText = fullText[:maxAnalysisChars]
	}

	m := g.client.GenerativeModel(g.modelName)
	m.ResponseMIMEType = "application/json"
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(analysisPrompt)},
	}

	prompt := fmt.Sprintf("MIME type: %s\n\nDocument text:\n%s", mimeType, fullText)
	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("gemini analyze: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini analyze: empty response")
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}

	var analysis models.DocumentAnalysis
	if err := json.Unmarshal([]byte(ExtractJSON(b.String())), &analysis); err != nil {
		return nil, fmt.Errorf("gemini analyze: decode response: %w", err)
	}
	return &analysis, nil
}

// ExtractJSON strips markdown code fences and surrounding prose from a model
// response, leaving the outermost JSON object.
func ExtractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

var _ core.AnalysisProvider = (*GeminiAnalyzer)(nil)
