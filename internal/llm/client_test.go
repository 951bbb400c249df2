package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAzureOpenAIClient_Invoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/deployments/gpt-4.1-2025-04-14/chat/completions", r.URL.Path)
		assert.Equal(t, "2025-01-01-preview", r.URL.Query().Get("api-version"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "proj-7", r.Header.Get("projectId"))

		var body struct {
			Messages []Message `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []Message{
			{Role: RoleSystem, Content: "be helpful"},
			{Role: RoleUser, Content: "extract"},
		}, body.Messages)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"name\":\"Acme\"}"}}]}`))
	}))
	defer srv.Close()

	config := DefaultConfig()
	config.Endpoint = srv.URL + "/"
	config.ProjectID = "proj-7"

	client, err := NewClient(context.Background(), config, "tok", nil)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	out, err := client.Invoke(context.Background(), []Message{
		{Role: RoleSystem, Content: "be helpful"},
		{Role: RoleUser, Content: "extract"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Acme"}`, out)
}

func TestAzureOpenAIClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`rate limited`))
	}))
	defer srv.Close()

	config := DefaultConfig()
	config.Endpoint = srv.URL

	client, err := NewAzureOpenAIClient(config, "tok", nil)
	require.NoError(t, err)

	_, err = client.Invoke(context.Background(), []Message{{Role: RoleUser, Content: "x"}})
	require.Error(t, err)

	var callErr *APICallError
	require.True(t, errors.As(err, &callErr))
	assert.Equal(t, http.StatusTooManyRequests, callErr.StatusCode)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestAzureOpenAIClient_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	config := DefaultConfig()
	config.Endpoint = srv.URL

	client, err := NewAzureOpenAIClient(config, "tok", nil)
	require.NoError(t, err)

	_, err = client.Invoke(context.Background(), []Message{{Role: RoleUser, Content: "x"}})
	assert.ErrorContains(t, err, "no choices")
}

func TestNewAzureOpenAIClient_RequiresToken(t *testing.T) {
	config := DefaultConfig()
	config.Endpoint = "https://gw"

	_, err := NewAzureOpenAIClient(config, "", nil)
	assert.Error(t, err)
}

func TestNewClient_UnknownProvider(t *testing.T) {
	_, err := NewClient(context.Background(), &Config{Provider: "other"}, "", nil)
	assert.Error(t, err)
}

func TestSplitMessages(t *testing.T) {
	system, turns := splitMessages([]Message{
		{Role: RoleSystem, Content: "a"},
		{Role: RoleUser, Content: "q"},
		{Role: RoleSystem, Content: "b"},
	})

	assert.Equal(t, "a\n\nb", system)
	assert.Equal(t, []Message{{Role: RoleUser, Content: "q"}}, turns)
}
