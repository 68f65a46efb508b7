package app

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"resume-editor/pkg/config"
	"resume-editor/pkg/session"

	"github.com/go-playground/assert/v2"
	"github.com/gorilla/websocket"
)

func init() {
	flag.Set("logtostderr", "true")
	flag.Set("v", "0")
}

var pdfBytes = []byte("%PDF-1.4 rendered resume")

// backend speaks the rendering and edit contracts
func backend(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/compile-pdf-base64", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"pdf":     "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(pdfBytes),
		})
	})
	mux.HandleFunc("/chat-edit", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Message      string `json:"message"`
			LatexContent string `json:"latex_content"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":       true,
			"latex_content": req.LatexContent + "\n% " + req.Message,
		})
	})
	mux.HandleFunc("/generate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Role       string   `json:"role"`
			Skills     []string `json:"skills"`
			Experience string   `json:"experience"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"latex_content": "\\documentclass{resume}\n% " + req.Role + ": " + strings.Join(req.Skills, ", "),
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T, debounceMs int) (*Server, *httptest.Server) {
	b := backend(t)
	cfg := config.Default()
	cfg.CompileServiceURL = b.URL
	cfg.EditServiceURL = b.URL
	cfg.DebounceMs = debounceMs
	cfg.ExportDir = t.TempDir()

	srv, err := NewServer(context.Background(), cfg)
	assert.Equal(t, err, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return srv, ts
}

type sessionReply struct {
	ID    string `json:"id"`
	State struct {
		SourceText    string `json:"source_text"`
		Revision      int64  `json:"revision"`
		CompileStatus string `json:"compile_status"`
		HasArtifact   bool   `json:"has_artifact"`
	} `json:"state"`
}

type mutationReply struct {
	Revision int64  `json:"revision"`
	Origin   string `json:"origin"`
}

func do(t *testing.T, method, url string, body string) *http.Response {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	assert.Equal(t, err, nil)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	assert.Equal(t, err, nil)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	assert.Equal(t, json.NewDecoder(resp.Body).Decode(v), nil)
}

func createSession(t *testing.T, ts *httptest.Server, body string) sessionReply {
	resp := do(t, "POST", ts.URL+"/api/sessions", body)
	assert.Equal(t, resp.StatusCode, http.StatusCreated)
	var reply sessionReply
	decode(t, resp, &reply)
	return reply
}

func settle(t *testing.T, srv *Server, id string) {
	s, err := srv.Manager().Get(id)
	assert.Equal(t, err, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.Equal(t, s.WaitSettled(ctx), nil)
}

func TestSessionLifecycle(t *testing.T) {
	srv, ts := newTestServer(t, 20)

	created := createSession(t, ts, `{"content":"\\documentclass{article}"}`)
	assert.NotEqual(t, created.ID, "")
	assert.Equal(t, created.State.SourceText, `\documentclass{article}`)
	assert.Equal(t, created.State.Revision, int64(0))

	resp := do(t, "PUT", ts.URL+"/api/sessions/"+created.ID+"/source", `{"content":"\\documentclass{letter}"}`)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	var m mutationReply
	decode(t, resp, &m)
	assert.Equal(t, m.Revision, int64(1))
	assert.Equal(t, m.Origin, "user")

	resp = do(t, "POST", ts.URL+"/api/sessions/"+created.ID+"/instructions", `{"text":"   "}`)
	assert.Equal(t, resp.StatusCode, http.StatusBadRequest)

	resp = do(t, "POST", ts.URL+"/api/sessions/"+created.ID+"/instructions", `{"text":"make it formal"}`)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	decode(t, resp, &m)
	assert.Equal(t, m.Revision, int64(2))
	assert.Equal(t, m.Origin, "ai")

	settle(t, srv, created.ID)

	resp = do(t, "GET", ts.URL+"/api/sessions/"+created.ID, "")
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	var got sessionReply
	decode(t, resp, &got)
	assert.Equal(t, got.State.Revision, int64(2))
	assert.Equal(t, got.State.SourceText, "\\documentclass{letter}\n% make it formal")
	assert.Equal(t, got.State.CompileStatus, "idle")
	assert.Equal(t, got.State.HasArtifact, true)

	resp = do(t, "GET", ts.URL+"/api/sessions/"+created.ID+"/export", "")
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.Equal(t, resp.Header.Get("Content-Type"), "application/pdf")
	assert.Equal(t, resp.Header.Get("Content-Disposition"), `attachment; filename="resume.pdf"`)
	assert.Equal(t, resp.Header.Get("X-Artifact-Revision"), "2")
	data, err := io.ReadAll(resp.Body)
	assert.Equal(t, err, nil)
	assert.Equal(t, data, pdfBytes)

	resp = do(t, "POST", ts.URL+"/api/sessions/"+created.ID+"/recompile", "")
	assert.Equal(t, resp.StatusCode, http.StatusAccepted)

	resp = do(t, "GET", ts.URL+"/api/sessions/"+created.ID+"/events", "")
	assert.Equal(t, resp.StatusCode, http.StatusNotFound)

	resp = do(t, "DELETE", ts.URL+"/api/sessions/"+created.ID, "")
	assert.Equal(t, resp.StatusCode, http.StatusNoContent)
	resp = do(t, "GET", ts.URL+"/api/sessions/"+created.ID, "")
	assert.Equal(t, resp.StatusCode, http.StatusNotFound)
}

func TestExportBeforeCompileConflicts(t *testing.T) {
	_, ts := newTestServer(t, 60000)

	created := createSession(t, ts, "")
	assert.Equal(t, strings.Contains(created.State.SourceText, `\documentclass`), true)

	resp := do(t, "GET", ts.URL+"/api/sessions/"+created.ID+"/export", "")
	assert.Equal(t, resp.StatusCode, http.StatusConflict)
}

func TestCreateSessionFromProfile(t *testing.T) {
	srv, ts := newTestServer(t, 20)

	created := createSession(t, ts, `{"profile":{"role":"SRE","skills":["Go","Kubernetes"],"experience":"4 years"}}`)
	assert.Equal(t, created.State.SourceText, "\\documentclass{resume}\n% SRE: Go, Kubernetes")
	assert.Equal(t, created.State.Revision, int64(0))

	// a generated draft compiles like any other seed
	settle(t, srv, created.ID)
	resp := do(t, "GET", ts.URL+"/api/sessions/"+created.ID, "")
	var got sessionReply
	decode(t, resp, &got)
	assert.Equal(t, got.State.HasArtifact, true)

	before := srv.Manager().Len()
	resp = do(t, "POST", ts.URL+"/api/sessions", `{"profile":{"role":" ","skills":[]}}`)
	assert.Equal(t, resp.StatusCode, http.StatusBadRequest)
	assert.Equal(t, srv.Manager().Len(), before)
}

func TestUnknownSession(t *testing.T) {
	_, ts := newTestServer(t, 20)

	for _, tc := range []struct{ method, path, body string }{
		{"GET", "/api/sessions/nope", ""},
		{"DELETE", "/api/sessions/nope", ""},
		{"PUT", "/api/sessions/nope/source", `{"content":"x"}`},
		{"POST", "/api/sessions/nope/instructions", `{"text":"x"}`},
		{"GET", "/api/sessions/nope/export", ""},
		{"GET", "/ws/nope", ""},
	} {
		resp := do(t, tc.method, ts.URL+tc.path, tc.body)
		assert.Equal(t, resp.StatusCode, http.StatusNotFound)
	}
}

func TestBadJSON(t *testing.T) {
	_, ts := newTestServer(t, 60000)
	created := createSession(t, ts, "")

	resp := do(t, "PUT", ts.URL+"/api/sessions/"+created.ID+"/source", `{"content":`)
	assert.Equal(t, resp.StatusCode, http.StatusBadRequest)
	resp = do(t, "PUT", ts.URL+"/api/sessions/"+created.ID+"/source", `{}`)
	assert.Equal(t, resp.StatusCode, http.StatusBadRequest)
	resp = do(t, "POST", ts.URL+"/api/sessions", `not json`)
	assert.Equal(t, resp.StatusCode, http.StatusBadRequest)
}

func TestCORSPreflight(t *testing.T) {
	_, ts := newTestServer(t, 60000)

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/sessions/abc/source", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	resp, err := http.DefaultClient.Do(req)
	assert.Equal(t, err, nil)
	defer resp.Body.Close()

	assert.Equal(t, resp.StatusCode, http.StatusNoContent)
	assert.Equal(t, resp.Header.Get("Access-Control-Allow-Origin"), "http://localhost:5173")
	assert.Equal(t, resp.Header.Get("Access-Control-Allow-Headers"), "content-type")
}

func TestCORSSimpleRequest(t *testing.T) {
	_, ts := newTestServer(t, 60000)

	resp := do(t, "GET", ts.URL+"/api/sessions/nope", "")
	assert.Equal(t, resp.StatusCode, http.StatusNotFound)
	assert.Equal(t, resp.Header.Get("Access-Control-Allow-Origin"), "*")
	assert.Equal(t, resp.Header.Get("Access-Control-Allow-Headers"), "Content-Type")
	assert.Equal(t, strings.Contains(resp.Header.Get("Access-Control-Expose-Headers"), "X-Artifact-Revision"), true)
}

func readWS(t *testing.T, conn *websocket.Conn, want string) session.Message {
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		assert.Equal(t, err, nil)
		if err != nil {
			return session.Message{}
		}
		var msg session.Message
		assert.Equal(t, json.Unmarshal(data, &msg), nil)
		if msg.Type == want {
			return msg
		}
	}
}

func TestWebSocket(t *testing.T) {
	_, ts := newTestServer(t, 20)
	created := createSession(t, ts, "")

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/" + created.ID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	assert.Equal(t, err, nil)
	defer conn.Close()

	msg := readWS(t, conn, "state")
	assert.Equal(t, msg.State.Revision, int64(0))

	msg = readWS(t, conn, "artifact")
	assert.Equal(t, strings.HasPrefix(msg.PDF, "data:application/pdf;base64,"), true)

	send := func(v interface{}) {
		data, err := json.Marshal(v)
		assert.Equal(t, err, nil)
		assert.Equal(t, conn.WriteMessage(websocket.TextMessage, data), nil)
	}

	send(map[string]interface{}{"type": "ping", "seq": 7})
	msg = readWS(t, conn, "pong")
	assert.Equal(t, msg.Seq, uint64(7))

	send(map[string]interface{}{"type": "edit", "content": "edited over the socket"})
	for {
		msg = readWS(t, conn, "state")
		if msg.State.Revision == 1 {
			break
		}
	}
	assert.Equal(t, msg.State.SourceText, "edited over the socket")

	send(map[string]interface{}{"type": "instruction", "text": "add a summary", "seq": 9})
	msg = readWS(t, conn, "instruction_result")
	assert.Equal(t, msg.Seq, uint64(9))
	assert.Equal(t, msg.Error, "")
	assert.Equal(t, msg.Revision, int64(2))

	send(map[string]interface{}{"type": "bogus"})
	msg = readWS(t, conn, "error")
	assert.Equal(t, msg.Error, "Unknown message type")

	assert.Equal(t, conn.WriteMessage(websocket.TextMessage, bytes.Repeat([]byte("x"), 10)), nil)
	msg = readWS(t, conn, "error")
	assert.Equal(t, msg.Error, "Invalid JSON")
}
