package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEmbedQuerySendsModelAndParsesVector(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"embeddings": [[0.1, 0.2, 0.3]]}`))
	}))
	defer server.Close()

	client := New(server.URL, "nomic-embed-text")
	vector, err := client.EmbedQuery(context.Background(), "oil change interval")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}

	if gotBody["model"] != "nomic-embed-text" {
		t.Fatalf("unexpected model %v", gotBody["model"])
	}
	input, _ := gotBody["input"].([]any)
	if len(input) != 1 || input[0] != "oil change interval" {
		t.Fatalf("unexpected input %v", input)
	}
	if len(vector) != 3 || vector[0] != 0.1 {
		t.Fatalf("unexpected vector %v", vector)
	}
}

func TestEmbedQueryRejectsEmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings": []}`))
	}))
	defer server.Close()

	client := New(server.URL, "nomic-embed-text")
	if _, err := client.EmbedQuery(context.Background(), "q"); err == nil {
		t.Fatalf("expected error for empty embedding result")
	}
}

func TestEmbedQueryReturnsErrorOnBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := New(server.URL, "missing-model")
	if _, err := client.EmbedQuery(context.Background(), "q"); err == nil {
		t.Fatalf("expected error for non-2xx response")
	}
}
