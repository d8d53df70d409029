package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeLLM(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/models":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"object": "list",
				"data":   []map[string]string{{"id": "test-model", "object": "model"}},
			})
		case "/v1/chat/completions":
			var req struct {
				Model    string `json:"model"`
				Messages []struct {
					Role    string `json:"role"`
					Content string `json:"content"`
				} `json:"messages"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "test-model", req.Model)

			json.NewEncoder(w).Encode(map[string]interface{}{
				"choices": []map[string]interface{}{
					{"message": map[string]string{"role": "assistant", "content": reply}},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestGenerate(t *testing.T) {
	srv := newFakeLLM(t, "```bash\ngrep PasswordAuthentication /etc/ssh/sshd_config\n```")
	defer srv.Close()

	// Base URL without the /v1 suffix: the client appends it.
	client := NewClient(srv.URL, "lm-studio", "test-model")
	text, err := client.Generate(context.Background(), "check ssh config", "you are a defensive agent")
	require.NoError(t, err)
	assert.Contains(t, text, "grep PasswordAuthentication")
}

func TestGenerateKeepsExistingSuffix(t *testing.T) {
	srv := newFakeLLM(t, "ok")
	defer srv.Close()

	client := NewClient(srv.URL+"/v1", "lm-studio", "test-model")
	text, err := client.Generate(context.Background(), "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}

func TestGenerateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "lm-studio", "test-model")
	text, err := client.Generate(context.Background(), "hello", "")
	assert.Error(t, err)
	assert.Empty(t, text)
}

func TestPing(t *testing.T) {
	srv := newFakeLLM(t, "")
	defer srv.Close()

	assert.NoError(t, NewClient(srv.URL, "lm-studio", "test-model").Ping(context.Background()))
	srv.Close()
	assert.Error(t, NewClient(srv.URL, "lm-studio", "test-model").Ping(context.Background()))
}
