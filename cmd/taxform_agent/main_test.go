package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/taxform-extractor/internal/testpdf"
)

// TestMain runs before all tests and loads .env if available
func TestMain(m *testing.M) {
	_ = godotenv.Load()
	os.Exit(m.Run())
}

// execute runs the CLI in-process and returns what it wrote to stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	t.Log(stderr.String())
	return stdout.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "taxform.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func w9PDF(t *testing.T, name string) string {
	t.Helper()
	return testpdf.WriteFile(t, t.TempDir(), name, testpdf.Page{
		Texts: []testpdf.Text{
			{X: 72, Y: 720, S: "Form W-9 Request for Taxpayer Identification Number"},
			{X: 72, Y: 690, S: "1 Name (as shown on your income tax return)"},
			{X: 72, Y: 675, S: "Acme LLC"},
		},
	})
}

// fakeGateway serves the token endpoint and the chat-completions endpoint.
func fakeGateway(t *testing.T, content string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"tok","token_type":"Bearer","expires_in":3600}`) //nolint:errcheck
	})
	mux.HandleFunc("POST /openai/deployments/{deployment}/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": content}}},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestExtractCommand_EndToEnd(t *testing.T) {
	gateway := fakeGateway(t, "Here you go:\n```json\n{\"Name\": \"Acme LLC\", \"user_signed\": \"yes\"}\n```")
	cfgPath := writeConfig(t, fmt.Sprintf(`
analyzer:
  provider: local
llm:
  provider: azure
  endpoint: %s
  token_url: %s/token
  client_id: id
  client_secret: secret
`, gateway.URL, gateway.URL))
	input := w9PDF(t, "acme.pdf")
	outPath := filepath.Join(t.TempDir(), "out", "batch.json")

	_, err := execute(t, "extract", "--config", cfgPath, "--out", outPath, input)
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)

	var batch struct {
		Results []struct {
			File     string         `json:"file"`
			Filename string         `json:"filename"`
			Response map[string]any `json:"response"`
		} `json:"results"`
		Skipped []any `json:"skipped"`
	}
	require.NoError(t, json.Unmarshal(data, &batch))
	require.Len(t, batch.Results, 1)
	assert.Empty(t, batch.Skipped)
	assert.Equal(t, "acme.pdf", batch.Results[0].Filename)
	assert.Equal(t, input, batch.Results[0].File)
	assert.Equal(t, "Acme LLC", batch.Results[0].Response["name"])
	assert.Equal(t, "Y", batch.Results[0].Response["user_signed"])
}

func TestExtractCommand_UpstreamFailureIsPerDocument(t *testing.T) {
	gateway := fakeGateway(t, "I could not read the form.")
	cfgPath := writeConfig(t, fmt.Sprintf(`
analyzer:
  provider: local
llm:
  endpoint: %s
  token_url: %s/token
  client_id: id
  client_secret: secret
`, gateway.URL, gateway.URL))

	out, err := execute(t, "extract", "--config", cfgPath, w9PDF(t, "a.pdf"), w9PDF(t, "b.pdf"))
	require.NoError(t, err)

	var batch struct {
		Results []struct {
			Response map[string]any `json:"response"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &batch))
	require.Len(t, batch.Results, 2)
	for _, r := range batch.Results {
		assert.Contains(t, r.Response, "error")
	}
}

func TestExtractCommand_Errors(t *testing.T) {
	t.Run("no files", func(t *testing.T) {
		_, err := execute(t, "extract")
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := execute(t, "extract", filepath.Join(t.TempDir(), "absent.pdf"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "input file")
	})

	t.Run("missing credentials", func(t *testing.T) {
		cfgPath := writeConfig(t, "analyzer:\n  provider: local\nllm:\n  provider: gemini\n")
		t.Setenv("GEMINI_API_KEY", "")
		t.Setenv("GOOGLE_API_KEY", "")
		t.Setenv("TAXFORM_LLM_API_KEY", "")

		_, err := execute(t, "extract", "--config", cfgPath, w9PDF(t, "a.pdf"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})
}

func TestSweepCommand(t *testing.T) {
	root := t.TempDir()
	stale := filepath.Join(root, "stale")
	fresh := filepath.Join(root, "fresh")
	require.NoError(t, os.Mkdir(stale, 0o750))
	require.NoError(t, os.Mkdir(fresh, 0o750))
	old := time.Now().Add(-3 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	out, err := execute(t, "sweep", "--upload-dir", root, "--session-ttl", "1h")
	require.NoError(t, err)
	assert.Equal(t, "Scanned 2 sessions, removed 1, failed 0\n", out)

	assert.NoDirExists(t, stale)
	assert.DirExists(t, fresh)
}

func TestSweepCommand_Root(t *testing.T) {
	uploads := t.TempDir()
	kept := filepath.Join(uploads, "kept")
	require.NoError(t, os.Mkdir(kept, 0o750))
	old := time.Now().Add(-3 * time.Hour)
	require.NoError(t, os.Chtimes(kept, old, old))

	root := t.TempDir()
	stale := filepath.Join(root, "stale")
	require.NoError(t, os.Mkdir(stale, 0o750))
	require.NoError(t, os.Chtimes(stale, old, old))

	out, err := execute(t, "sweep", "--upload-dir", uploads, "--session-ttl", "1h", "--root", root)
	require.NoError(t, err)
	assert.Equal(t, "Scanned 1 sessions, removed 1, failed 0\n", out)

	assert.NoDirExists(t, stale)
	assert.DirExists(t, kept, "upload dir untouched when --root is given")
}

func TestServeCommand_InvalidConfig(t *testing.T) {
	_, err := execute(t, "serve", "--port", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port must be between")
}
