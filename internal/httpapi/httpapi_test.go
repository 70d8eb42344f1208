package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arung-agamani/turntable/config"
	"github.com/arung-agamani/turntable/internal/audio/input"
	"github.com/arung-agamani/turntable/internal/audio/loadable"
	"github.com/arung-agamani/turntable/internal/audio/pipeline"
	"github.com/arung-agamani/turntable/internal/collab"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// pendingInput does not finish resolving until the pipeline shuts down, so
// an ingested item stays queued instead of being activated (or, having no
// decodable bytes, skipped) by the pipeline's queue sync before a test
// inspects the queue.
type pendingInput struct{}

func (pendingInput) Kind() string { return "Pending" }

func (pendingInput) Resolve(ctx context.Context) (loadable.Loadable, input.ProbeResult, error) {
	<-ctx.Done()
	return nil, input.ProbeResult{}, ctx.Err()
}

type stubResolver struct{}

func (stubResolver) Resolve(ctx context.Context, rawURL string) (input.Input, error) {
	return pendingInput{}, nil
}

func newTestHandlers(t *testing.T) (*Handlers, *httptest.Server) {
	t.Helper()
	p := pipeline.New(config.Default())
	t.Cleanup(p.Shutdown)

	h := NewHandlers(p, stubResolver{}, collab.NewMemoryRoomStore(), collab.NewMemoryUserStore(), collab.NewMemorySessionStore(), collab.NewTokenIssuer("test-secret", time.Hour))

	r := gin.New()
	h.Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return h, srv
}

func postJSON(t *testing.T, url string, body any, bearer string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))

	req, err := http.NewRequest(http.MethodPost, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestHealthReturnsOK(t *testing.T) {
	_, srv := newTestHandlers(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func registerAndLogin(t *testing.T, srv *httptest.Server, username, password string) string {
	t.Helper()

	resp := postJSON(t, srv.URL+"/api/auth/register", map[string]string{"username": username, "password": password}, "")
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/api/auth/login", map[string]string{"username": username, "password": password}, "")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func TestRegisterAndLoginIssuesBearerToken(t *testing.T) {
	_, srv := newTestHandlers(t)
	token := registerAndLogin(t, srv, "alice", "hunter2")
	assert.NotEmpty(t, token)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	_, srv := newTestHandlers(t)

	resp := postJSON(t, srv.URL+"/api/auth/register", map[string]string{"username": "bob", "password": "correct"}, "")
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/api/auth/login", map[string]string{"username": "bob", "password": "wrong"}, "")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProtectedRouteRejectsMissingSession(t *testing.T) {
	_, srv := newTestHandlers(t)

	resp := postJSON(t, srv.URL+"/api/rooms/lobby/play", map[string]string{}, "")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProtectedRouteAcceptsValidSession(t *testing.T) {
	_, srv := newTestHandlers(t)
	token := registerAndLogin(t, srv, "carol", "password123")

	resp := postJSON(t, srv.URL+"/api/rooms/lobby/play", map[string]string{}, token)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIngestAddsItemToRoomQueue(t *testing.T) {
	h, srv := newTestHandlers(t)
	token := registerAndLogin(t, srv, "dave", "password123")

	resp := postJSON(t, srv.URL+"/api/rooms/lobby/ingest", map[string]string{"url": "file:///tmp/x.mp3", "submitter": "dave"}, token)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	h.roomsMu.Lock()
	b := h.byName["lobby"]
	h.roomsMu.Unlock()
	require.NotNil(t, b.queue)

	peeked := b.queue.Peek()
	require.Len(t, peeked, 1)
	assert.Equal(t, "dave", peeked[0].Submitter)
}

func TestSeekRejectsNonIntegerPosition(t *testing.T) {
	_, srv := newTestHandlers(t)
	token := registerAndLogin(t, srv, "erin", "password123")

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/rooms/lobby/seek?position_samples=nope", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
