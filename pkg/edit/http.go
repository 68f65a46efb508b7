package edit

import (
	"context"
	"net/http"

	"resume-editor/pkg/remote"
)

// HTTPService calls an edit backend that speaks the chat-edit contract:
// {"message","latex_content"} in, {"latex_content","success","error"} out.
type HTTPService struct {
	client *remote.Client
	path   string
}

func NewHTTPService(baseURL string, httpClient *http.Client) *HTTPService {
	return &HTTPService{
		client: remote.NewClient(baseURL, httpClient),
		path:   "/chat-edit",
	}
}

func (s *HTTPService) Apply(ctx context.Context, instruction, source string) (string, error) {
	body, err := remote.Body("message", instruction, "latex_content", source)
	if err != nil {
		return "", err
	}
	reply, err := s.client.PostJSON(ctx, s.path, body)
	if err != nil {
		return "", err
	}
	if !reply.Get("success").Bool() {
		msg := reply.Get("error").String()
		if msg == "" {
			msg = transportFailure
		}
		return "", &Rejection{Message: msg}
	}
	return reply.Get("latex_content").String(), nil
}

var _ Service = (*HTTPService)(nil)
