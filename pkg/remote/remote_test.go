package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/tidwall/gjson"
)

func TestBody(t *testing.T) {
	body, err := Body("latex_content", "a \"quoted\" \\ line\n", "message", "x")
	assert.Equal(t, err, nil)
	assert.Equal(t, gjson.GetBytes(body, "latex_content").String(), "a \"quoted\" \\ line\n")
	assert.Equal(t, gjson.GetBytes(body, "message").String(), "x")

	_, err = Body("odd")
	assert.NotEqual(t, err, nil)
}

func TestPostJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, r.Method, http.MethodPost)
		assert.Equal(t, r.URL.Path, "/echo")
		assert.Equal(t, r.Header.Get("Content-Type"), "application/json")
		data, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"got":` + gjson.GetBytes(data, "v").Raw + `}`))
	}))
	defer server.Close()

	c := NewClient(server.URL+"/", nil)
	body, _ := Body("v", "hello")
	reply, err := c.PostJSON(context.Background(), "/echo", body)
	assert.Equal(t, err, nil)
	assert.Equal(t, reply.Get("got").String(), "hello")
}

func TestPostJSONTransportErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/html":
			w.Write([]byte("<html>bad gateway</html>"))
		case "/500":
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"detail":"pdflatex exploded"}`))
		}
	}))
	defer server.Close()

	c := NewClient(server.URL, nil)

	_, err := c.PostJSON(context.Background(), "/html", []byte(`{}`))
	var te *TransportError
	assert.Equal(t, errors.As(err, &te), true)

	_, err = c.PostJSON(context.Background(), "/500", []byte(`{}`))
	assert.Equal(t, errors.As(err, &te), true)
	assert.Equal(t, te.Op, "POST /500")
	assert.MatchRegex(t, err.Error(), "pdflatex exploded")

	down := NewClient("http://127.0.0.1:1", nil)
	_, err = down.PostJSON(context.Background(), "/x", []byte(`{}`))
	assert.Equal(t, errors.As(err, &te), true)
}
