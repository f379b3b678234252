package embeddings

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestEmbed_ReturnsVectorOnSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		w.Write([]byte(`{"embedding":[0.1,0.2,0.3]}`))
	}))
	defer server.Close()

	svc := NewService(server.URL, "nomic-embed-text", 3, arbor.NewLogger())
	vec, err := svc.Embed(context.Background(), "go engineer resume")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestEmbed_RejectsEmptyText(t *testing.T) {
	svc := NewService("http://unused", "model", 3, arbor.NewLogger())
	_, err := svc.Embed(context.Background(), "")
	assert.Error(t, err)
}

func TestEmbed_NonOKStatusIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	svc := NewService(server.URL, "model", 3, arbor.NewLogger())
	_, err := svc.Embed(context.Background(), "text")
	assert.Error(t, err)
}

func TestEmbed_EmptyEmbeddingIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embedding":[]}`))
	}))
	defer server.Close()

	svc := NewService(server.URL, "model", 3, arbor.NewLogger())
	_, err := svc.Embed(context.Background(), "text")
	assert.Error(t, err)
}

func TestDimension_ReturnsConfiguredValue(t *testing.T) {
	svc := NewService("http://unused", "model", 768, arbor.NewLogger())
	assert.Equal(t, 768, svc.Dimension())
}

func TestIsAvailable_TrueOn200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc := NewService(server.URL, "model", 3, arbor.NewLogger())
	assert.True(t, svc.IsAvailable(context.Background()))
}

func TestIsAvailable_FalseWhenUnreachable(t *testing.T) {
	svc := NewService("http://127.0.0.1:1", "model", 3, arbor.NewLogger())
	assert.False(t, svc.IsAvailable(context.Background()))
}
