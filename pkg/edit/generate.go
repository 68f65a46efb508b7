package edit

import (
	"context"
	"errors"
	"strings"
	"time"

	"resume-editor/pkg/remote"

	"github.com/google/generative-ai-go/genai"
	"github.com/tidwall/sjson"
)

// ErrEmptyProfile rejects a generation request without a target role
var ErrEmptyProfile = errors.New("profile needs a role")

const generationFailure = "Failed to generate resume. Please try again."

// Profile is what a first draft is written from
type Profile struct {
	Role       string   `json:"role"`
	Skills     []string `json:"skills"`
	Experience string   `json:"experience"`
	TemplateID string   `json:"template_id,omitempty"`
}

func (p Profile) Validate() error {
	if strings.TrimSpace(p.Role) == "" {
		return ErrEmptyProfile
	}
	return nil
}

// Generator fills a template with a profile and returns the full document
type Generator interface {
	Generate(ctx context.Context, profile Profile, template string) (string, error)
}

// Generate runs g with a deadline and maps failures to a ServiceError.
// A zero timeout means no deadline.
func Generate(ctx context.Context, g Generator, profile Profile, template string, timeout time.Duration) (string, error) {
	if err := profile.Validate(); err != nil {
		return "", err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	text, err := g.Generate(ctx, profile, template)
	if err == nil && strings.TrimSpace(text) == "" {
		err = &Rejection{Message: "The model returned an empty document."}
	}
	if err != nil {
		var rejection *Rejection
		if errors.As(err, &rejection) && rejection.Message != "" {
			return "", &ServiceError{Message: rejection.Message, Err: err}
		}
		return "", &ServiceError{Message: generationFailure, Err: err}
	}
	return text, nil
}

// Generate posts the profile to the backend's /generate route, which replies
// {"latex_content"}
func (s *HTTPService) Generate(ctx context.Context, profile Profile, template string) (string, error) {
	body := []byte(`{}`)
	var err error
	for _, kv := range []struct {
		path  string
		value interface{}
	}{
		{"role", profile.Role},
		{"skills", skillsOrEmpty(profile.Skills)},
		{"experience", profile.Experience},
		{"template_id", templateID(profile)},
	} {
		if body, err = sjson.SetBytes(body, kv.path, kv.value); err != nil {
			return "", err
		}
	}
	reply, err := s.client.PostJSON(ctx, "/generate", body)
	if err != nil {
		return "", err
	}
	latex := reply.Get("latex_content").String()
	if latex == "" {
		if msg := reply.Get("detail").String(); msg != "" {
			return "", &Rejection{Message: msg}
		}
	}
	return latex, nil
}

// Generate asks the model to fill template with the profile
func (s *GeminiService) Generate(ctx context.Context, profile Profile, template string) (string, error) {
	resp, err := s.model.GenerateContent(ctx, genai.Text(generatePrompt(profile, template)))
	if err != nil {
		return "", &remote.TransportError{Op: "gemini generate", Err: err}
	}
	latex, ok := extractLatex(responseText(resp))
	if !ok {
		return "", &Rejection{Message: "The model did not return a LaTeX document."}
	}
	return latex, nil
}

func generatePrompt(profile Profile, template string) string {
	var b strings.Builder
	b.WriteString("You are an expert resume writer and LaTeX author.\n")
	b.WriteString("Fill the template below with the user's information and return the complete document.\n\n")
	b.WriteString("USER INFORMATION:\n")
	b.WriteString("Role: " + profile.Role + "\n")
	b.WriteString("Skills: " + strings.Join(profile.Skills, ", ") + "\n")
	b.WriteString("Experience: " + profile.Experience + "\n\n")
	b.WriteString("TEMPLATE:\n")
	b.WriteString(template)
	b.WriteString("\n\nRULES:\n")
	b.WriteString("1. Keep the template's commands and layout.\n")
	b.WriteString("2. Replace placeholder text with content written for the role.\n")
	b.WriteString("3. The result must be valid LaTeX that compiles.\n")
	b.WriteString(`4. Answer with a JSON object {"latex_code": "<the full document>"} and nothing else.`)
	b.WriteString("\n")
	return b.String()
}

func skillsOrEmpty(skills []string) []string {
	if skills == nil {
		return []string{}
	}
	return skills
}

func templateID(profile Profile) string {
	if profile.TemplateID == "" {
		return "modern"
	}
	return profile.TemplateID
}

var (
	_ Generator = (*HTTPService)(nil)
	_ Generator = (*GeminiService)(nil)
)
