package compile

import (
	"context"
	"net/http"

	"resume-editor/pkg/remote"
)

// HTTPService calls a rendering backend that speaks the compile-pdf-base64 contract:
// {"latex_content"} in, {"success","pdf","error"} out.
type HTTPService struct {
	client *remote.Client
	path   string
}

func NewHTTPService(baseURL string, httpClient *http.Client) *HTTPService {
	return &HTTPService{
		client: remote.NewClient(baseURL, httpClient),
		path:   "/compile-pdf-base64",
	}
}

func (s *HTTPService) Compile(ctx context.Context, source string) (Result, error) {
	body, err := remote.Body("latex_content", source)
	if err != nil {
		return Result{}, err
	}
	reply, err := s.client.PostJSON(ctx, s.path, body)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Success:  reply.Get("success").Bool(),
		Artifact: reply.Get("pdf").String(),
		Error:    reply.Get("error").String(),
	}, nil
}

var _ Service = (*HTTPService)(nil)
