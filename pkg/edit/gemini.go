package edit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"resume-editor/pkg/remote"

	"github.com/google/generative-ai-go/genai"
	"github.com/tidwall/gjson"
	"google.golang.org/api/option"
)

// GeminiService asks a Gemini model to rewrite the document directly
type GeminiService struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGeminiService(ctx context.Context, apiKey, modelName string) (*GeminiService, error) {
	if apiKey == "" {
		return nil, errors.New("GOOGLE_API_KEY is not set")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.7)
	model.ResponseMIMEType = "application/json"
	return &GeminiService{client: client, model: model}, nil
}

func (s *GeminiService) Apply(ctx context.Context, instruction, source string) (string, error) {
	resp, err := s.model.GenerateContent(ctx, genai.Text(editPrompt(source, instruction)))
	if err != nil {
		return "", &remote.TransportError{Op: "gemini generate", Err: err}
	}
	latex, ok := extractLatex(responseText(resp))
	if !ok {
		return "", &Rejection{Message: "The model did not return a LaTeX document."}
	}
	return latex, nil
}

func (s *GeminiService) Close() error {
	return s.client.Close()
}

func editPrompt(source, instruction string) string {
	var b strings.Builder
	b.WriteString("You are an expert resume editor working in LaTeX.\n")
	b.WriteString("Apply the instruction to the document below and return the complete document.\n\n")
	b.WriteString("CURRENT LATEX:\n")
	b.WriteString(source)
	b.WriteString("\n\nINSTRUCTION:\n")
	b.WriteString(instruction)
	b.WriteString("\n\nRULES:\n")
	b.WriteString("1. Change only what the instruction asks for.\n")
	b.WriteString("2. The result must be valid LaTeX that compiles.\n")
	b.WriteString("3. Keep the template structure unless told otherwise.\n")
	b.WriteString(`4. Answer with a JSON object {"latex_code": "<the full document>"} and nothing else.`)
	b.WriteString("\n")
	return b.String()
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
		// first usable candidate only
		if b.Len() > 0 {
			break
		}
	}
	return b.String()
}

// extractLatex pulls the document out of a model reply: the latex_code field
// of a JSON object, optionally fenced, or a bare LaTeX document.
func extractLatex(reply string) (string, bool) {
	text := strings.TrimSpace(reply)
	if strings.HasPrefix(text, "```") {
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:]
		}
		text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
	}
	if gjson.Valid(text) {
		code := gjson.Get(text, "latex_code").String()
		if strings.TrimSpace(code) == "" {
			return "", false
		}
		return code, true
	}
	if strings.Contains(text, `\documentclass`) || strings.Contains(text, `\begin{document}`) {
		return text, true
	}
	return "", false
}

var _ Service = (*GeminiService)(nil)
