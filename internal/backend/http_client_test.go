package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shaiso/Relay/internal/domain"
)

// chatHandler отвечает фиксированным текстом и сохраняет тело запроса.
func chatHandler(t *testing.T, reply string, received *chatRequest) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != chatPath {
			t.Errorf("expected path %s, got %s", chatPath, r.URL.Path)
		}
		if received != nil {
			if err := json.NewDecoder(r.Body).Decode(received); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{
				"role": "assistant",
				"content": map[string]any{
					"parts": []map[string]any{{"type": "text", "text": reply}},
				},
			},
			"model": "llama3:latest",
			"usage": map[string]any{"total_tokens": 12},
		})
	}
}

func httpBackend(url string) domain.BackendDescriptor {
	return domain.BackendDescriptor{ID: "local", Kind: domain.BackendKindLocal, Endpoint: url}
}

func TestHTTPClient_Invoke(t *testing.T) {
	var received chatRequest
	server := httptest.NewServer(chatHandler(t, "hello back", &received))
	defer server.Close()

	client := NewHTTPClient(HTTPClientConfig{DefaultModel: "llama3:latest"})

	resp, err := client.Invoke(context.Background(), httpBackend(server.URL), &Request{
		Role:       domain.RoleUser,
		Content:    "hello",
		Messages:   []domain.Message{{Role: domain.RoleSystem, Content: "be brief"}},
		Parameters: map[string]any{"temperature": 0.2},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Text != "hello back" {
		t.Errorf("expected 'hello back', got %q", resp.Text)
	}
	if resp.Metadata["status_code"] != http.StatusOK {
		t.Errorf("expected status_code 200, got %v", resp.Metadata["status_code"])
	}
	if resp.Metadata["usage"] == nil {
		t.Error("metadata should contain usage")
	}

	// Предзаданные сообщения идут перед сообщением шага
	if len(received.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(received.Messages))
	}
	if received.Messages[0].Role != "system" {
		t.Errorf("expected system message first, got %s", received.Messages[0].Role)
	}
	last := received.Messages[1]
	if last.Role != "user" || last.Content.Parts[0].Text != "hello" {
		t.Errorf("unexpected step message: %+v", last)
	}
	if last.Content.ContentType != defaultContentType {
		t.Errorf("expected content type %s, got %s", defaultContentType, last.Content.ContentType)
	}
	if received.Model != "llama3:latest" {
		t.Errorf("expected default model, got %q", received.Model)
	}
	if received.Parameters["temperature"] != 0.2 {
		t.Errorf("expected temperature 0.2, got %v", received.Parameters["temperature"])
	}
}

func TestHTTPClient_Errors(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		wantKind domain.ErrorKind
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("boom"))
			},
			wantKind: domain.KindProtocol,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("{not json"))
			},
			wantKind: domain.KindProtocol,
		},
		{
			name: "no message",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"usage": {}}`))
			},
			wantKind: domain.KindProtocol,
		},
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
			wantKind: domain.KindProtocol,
		},
		{
			name: "forbidden",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			},
			wantKind: domain.KindProtocol,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := NewHTTPClient(HTTPClientConfig{})
			_, err := client.Invoke(context.Background(), httpBackend(server.URL), &Request{Content: "hi"})

			if !errors.Is(err, domain.ErrBackend) {
				t.Fatalf("expected backend error, got %v", err)
			}
			if KindOf(err) != tt.wantKind {
				t.Errorf("expected kind %s, got %s", tt.wantKind, KindOf(err))
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{"short", "boom", 10, "boom"},
		{"ascii", "abcdef", 3, "abc..."},
		// "п" занимает два байта: граница внутри символа сдвигается назад
		{"cyrillic", "привет", 3, "п..."},
		{"exact rune boundary", "привет", 4, "пр..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.limit)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("result is not valid UTF-8: %q", got)
			}
		})
	}
}

func TestHTTPClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(chatHandler(t, "unused", nil))
	url := server.URL
	server.Close()

	client := NewHTTPClient(HTTPClientConfig{})
	_, err := client.Invoke(context.Background(), httpBackend(url), &Request{Content: "hi"})

	if KindOf(err) != domain.KindUnreachable {
		t.Errorf("expected unreachable, got %v", err)
	}
	if !IsRetryable(err) {
		t.Error("unreachable should be retryable")
	}
}

func TestHTTPClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := NewHTTPClient(HTTPClientConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Invoke(ctx, httpBackend(server.URL), &Request{Content: "hi"})
	if KindOf(err) != domain.KindTimeout {
		t.Errorf("expected timeout, got %v", err)
	}
}

func TestHTTPClient_BearerOnlyForRegistryHost(t *testing.T) {
	var authHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		chatHandler(t, "ok", nil)(w, r)
	}))
	defer server.Close()

	t.Run("registry host", func(t *testing.T) {
		client := NewHTTPClient(HTTPClientConfig{AuthURL: server.URL, APIKey: "secret"})
		if _, err := client.Invoke(context.Background(), httpBackend(server.URL), &Request{Content: "hi"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if authHeader != "Bearer secret" {
			t.Errorf("expected bearer header, got %q", authHeader)
		}
	})

	t.Run("other host", func(t *testing.T) {
		client := NewHTTPClient(HTTPClientConfig{AuthURL: "https://registry.example.com", APIKey: "secret"})
		if _, err := client.Invoke(context.Background(), httpBackend(server.URL), &Request{Content: "hi"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if authHeader != "" {
			t.Errorf("credential leaked to %s: %q", server.URL, authHeader)
		}
	})
}

func TestJoinText(t *testing.T) {
	parts := []chatPart{
		{Type: "text", Text: "a"},
		{Type: "image", Text: "ignored"},
		{Text: "b"},
	}
	if got := joinText(parts); got != "ab" {
		t.Errorf("expected 'ab', got %q", got)
	}
}
