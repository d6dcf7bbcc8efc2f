// Package consent provides the default out-of-band consent transport:
// it opens the authorization URL in the system browser and captures the
// completion signal on a loopback HTTP listener. Any other mechanism
// satisfying chat.ConsentTransport (device code, deep link) can be
// substituted by the embedding host.
package consent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/dhowell/mailpilot/internal/chat"
)

// completionPage is shown in the browser once the signal is captured.
const completionPage = `<html><body style="font-family: sans-serif; text-align: center; padding-top: 4em;">
<h2>All done.</h2><p>You can close this window and return to mailpilot.</p>
</body></html>`

// Browser opens consent flows in the system browser. The authorization
// URL is given a redirect_uri query parameter pointing at a loopback
// listener; the consent flow's completion page redirects there with
// type=OAUTH_SUCCESS&service=... or type=OAUTH_ERROR&error=....
type Browser struct {
	logger *slog.Logger

	// openURL launches the browser. Swappable in tests.
	openURL func(url string) error
}

// NewBrowser creates the default browser transport.
func NewBrowser(logger *slog.Logger) *Browser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Browser{logger: logger, openURL: openInBrowser}
}

// Open implements chat.ConsentTransport. The returned release function
// shuts the loopback listener down; it is safe to call more than once.
func (b *Browser) Open(ctx context.Context, authURL string) (<-chan chat.Signal, func(), error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, nil, fmt.Errorf("listening on loopback: %w", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	redirect := fmt.Sprintf("http://127.0.0.1:%d/callback", port)

	signals := make(chan chat.Signal, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		sig := signalFromQuery(r.URL.Query())
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, completionPage)

		// Only the first signal counts; late ones are dropped.
		select {
		case signals <- sig:
		default:
		}
	})

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() { _ = srv.Serve(ln) }()

	var once sync.Once
	release := func() {
		once.Do(func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		})
	}

	full, err := withRedirect(authURL, redirect)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("building consent url: %w", err)
	}

	if err := b.openURL(full); err != nil {
		release()
		return nil, nil, fmt.Errorf("opening browser: %w", err)
	}

	b.logger.Info("consent flow opened", "redirect", redirect)
	return signals, release, nil
}

// signalFromQuery decodes the completion parameters.
func signalFromQuery(q url.Values) chat.Signal {
	switch q.Get("type") {
	case "OAUTH_SUCCESS":
		return chat.Signal{Service: q.Get("service")}
	case "OAUTH_ERROR":
		reason := q.Get("error")
		if reason == "" {
			reason = "unknown error"
		}
		return chat.Signal{Err: errors.New(reason)}
	default:
		return chat.Signal{Err: errors.New("malformed completion signal")}
	}
}

// withRedirect appends the loopback redirect to the authorization URL.
func withRedirect(authURL, redirect string) (string, error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("redirect_uri", redirect)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// openInBrowser launches the platform browser.
func openInBrowser(target string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", target).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", target).Start()
	default:
		return exec.Command("xdg-open", target).Start()
	}
}
