package imagegen

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSupplier(t *testing.T, handler http.HandlerFunc) *OpenAISupplier {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return NewOpenAISupplierWithConfig(cfg, "", "")
}

func TestOpenAISupplier_RequestImage(t *testing.T) {
	var got openai.ImageRequest
	s := newTestSupplier(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/generations", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"created": 1760700000, "data": [{"url": "https://cdn.test/lighthouse.png"}]}`))
	})

	url, err := s.RequestImage(context.Background(), "a lighthouse")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/lighthouse.png", url)
	assert.Equal(t, "a lighthouse", got.Prompt)
	assert.Equal(t, openai.CreateImageModelDallE3, got.Model)
	assert.Equal(t, openai.CreateImageSize1024x1024, got.Size)
	assert.Equal(t, 1, got.N)
}

func TestOpenAISupplier_Errors(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		s := newTestSupplier(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error": {"message": "quota exceeded", "type": "rate_limit"}}`))
		})
		_, err := s.RequestImage(context.Background(), "x")
		assert.Error(t, err)
	})

	t.Run("empty data", func(t *testing.T) {
		s := newTestSupplier(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"created": 1, "data": []}`))
		})
		_, err := s.RequestImage(context.Background(), "x")
		assert.ErrorIs(t, err, ErrEmptyImage)
	})
}

func TestStaticPrompts(t *testing.T) {
	sp := NewStaticPrompts([]string{
		"Moon cat|a cat astronaut on the moon",
		"  a fox reading a map ",
		"",
		"broken|",
	}, rand.New(rand.NewSource(7)))

	got, err := sp.Prompts(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, got, 2)

	byText := map[string]string{}
	for _, p := range got {
		byText[p.Text] = p.Caption
	}
	assert.Equal(t, "Moon cat", byText["a cat astronaut on the moon"])
	assert.Equal(t, "a fox reading a map", byText["a fox reading a map"])

	one, err := sp.Prompts(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)

	_, err = NewStaticPrompts(nil, nil).Prompts(context.Background(), 3)
	assert.ErrorIs(t, err, ErrNoPrompts)
}
