package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func staticToken(tok string) TokenFunc {
	return func() (string, error) { return tok, nil }
}

func TestChatRequestShape(t *testing.T) {
	var got ChatRequest
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/email-tools/chat" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(ChatResponse{Success: true, Message: "ok"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, staticToken("tok-123"), nil)
	resp, err := c.Chat(context.Background(), []ChatMessage{
		{Text: "hello", IsUser: true, Time: "2026-01-01T00:00:00Z"},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if !resp.Success || resp.Message != "ok" {
		t.Errorf("response not decoded: %+v", resp)
	}
	if got.ToolType != "email" {
		t.Errorf("tool_type = %q, want email", got.ToolType)
	}
	if len(got.Messages) != 1 || !got.Messages[0].IsUser {
		t.Errorf("messages not projected: %+v", got.Messages)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("authorization = %q", gotAuth)
	}
}

func TestUnauthorizedStatusesMapToSentinel(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}))

		c := NewClient(srv.URL, nil, nil)
		_, err := c.Chat(context.Background(), nil)
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("status %d: expected ErrUnauthorized, got %v", status, err)
		}
		srv.Close()
	}
}

func TestServerErrorCarriesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	_, err := c.Chat(context.Background(), nil)

	if !IsServerError(err) {
		t.Fatalf("expected a server error, got %v", err)
	}
	var serr *ServerError
	errors.As(err, &serr)
	if serr.Status != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", serr.Status)
	}
}

func TestSlowServerClassifiesAsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	c.SetTimeout(20 * time.Millisecond)

	_, err := c.Chat(context.Background(), nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !IsTimeout(err) {
		t.Errorf("expected a timeout classification, got %v", err)
	}
}

func TestLoginIsFormEncoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("content type = %q", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parsing form: %v", err)
		}
		if r.PostFormValue("username") != "me@example.com" || r.PostFormValue("password") != "hunter2" {
			t.Errorf("credentials not form-encoded: %v", r.PostForm)
		}
		json.NewEncoder(w).Encode(LoginResponse{AccessToken: "tok-9", UserName: "Me"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	resp, err := c.Login(context.Background(), "me@example.com", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.AccessToken != "tok-9" {
		t.Errorf("token = %q", resp.AccessToken)
	}
}

func TestArchiveEmailPostsID(t *testing.T) {
	var got ArchiveRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/email-tools/archive" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(ArchiveResponse{Success: true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	resp, err := c.ArchiveEmail(context.Background(), "msg-7")
	if err != nil {
		t.Fatalf("ArchiveEmail: %v", err)
	}
	if !resp.Success {
		t.Error("expected success")
	}
	if got.EmailID != "msg-7" {
		t.Errorf("email_id = %q", got.EmailID)
	}
}

func TestOAuthChallengeScansToolResults(t *testing.T) {
	raw := json.RawMessage(`{"auth_url":"https://auth.example/start","button_text":"Authorize Gmail Access"}`)
	resp := &ChatResponse{
		Success: false,
		ToolResults: []ToolResult{
			{Type: "gmail_stats", Result: json.RawMessage(`{}`)},
			{Type: "oauth_required", Result: raw},
		},
	}

	req := resp.OAuthChallenge()
	if req == nil {
		t.Fatal("expected a challenge")
	}
	if req.AuthURL != "https://auth.example/start" {
		t.Errorf("auth_url = %q", req.AuthURL)
	}

	none := &ChatResponse{Success: true}
	if none.OAuthChallenge() != nil {
		t.Error("expected no challenge")
	}

	// An oauth_required entry without a URL is not actionable.
	empty := &ChatResponse{ToolResults: []ToolResult{
		{Type: "oauth_required", Result: json.RawMessage(`{}`)},
	}}
	if empty.OAuthChallenge() != nil {
		t.Error("expected no challenge for an empty blob")
	}
}
