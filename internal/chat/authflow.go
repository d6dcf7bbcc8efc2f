package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultAuthTimeout is how long the controller waits for the
// out-of-band consent flow to report back.
const DefaultAuthTimeout = 30 * time.Second

const (
	authBlockedText = "I couldn't open the authorization page. Please allow your browser to open it and try again."
	authSuccessText = "Authorization complete. You can retry your request now."
	authTimeoutText = "I haven't heard back from the authorization page. If you finished authorizing, just retry your request."
)

// Signal is the completion message reported by a consent flow. A nil
// Err is a success; otherwise Err carries the reported reason.
type Signal struct {
	Service string
	Err     error
}

// ConsentTransport abstracts the out-of-band consent mechanism (a
// browser plus a loopback listener, a device code prompt, ...). Open
// launches the flow at authURL and returns a channel that delivers the
// correlated completion signal plus a release function that
// deregisters the listener. A non-nil error means the flow could not
// be opened at all; no listener is registered in that case.
type ConsentTransport interface {
	Open(ctx context.Context, authURL string) (<-chan Signal, func(), error)
}

// AuthFlow correlates an asynchronous consent flow back into the
// conversation log without blocking it. Its attempts move
// Idle → Opened → {Resolved, TimedOut}; exactly one log entry is
// appended per attempt and the listener and timer are always released
// on the way out. A Begin while another attempt is still Opened is
// ignored, so a stale flow can never consume a fresh flow's signal.
type AuthFlow struct {
	log       *Log
	transport ConsentTransport
	timeout   time.Duration
	logger    *slog.Logger

	mu     sync.Mutex
	active bool
}

// NewAuthFlow wires the controller with the default timeout.
func NewAuthFlow(log *Log, transport ConsentTransport, logger *slog.Logger) *AuthFlow {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthFlow{
		log:       log,
		transport: transport,
		timeout:   DefaultAuthTimeout,
		logger:    logger,
	}
}

// SetTimeout overrides the completion deadline. Tests shrink it.
func (a *AuthFlow) SetTimeout(d time.Duration) {
	a.timeout = d
}

// Begin starts an authorization attempt for authURL and returns
// immediately; the attempt's single outcome surfaces later as a log
// entry. Returns false if another attempt is already running.
func (a *AuthFlow) Begin(ctx context.Context, authURL string) bool {
	a.mu.Lock()
	if a.active {
		a.mu.Unlock()
		a.logger.Info("authorization already in progress, ignoring", "url", authURL)
		return false
	}
	a.active = true
	a.mu.Unlock()

	go a.run(ctx, authURL)
	return true
}

// Active reports whether an attempt is currently open.
func (a *AuthFlow) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

func (a *AuthFlow) run(ctx context.Context, authURL string) {
	defer func() {
		a.mu.Lock()
		a.active = false
		a.mu.Unlock()
	}()

	signals, release, err := a.transport.Open(ctx, authURL)
	if err != nil {
		a.logger.Warn("consent flow could not be opened", "error", err)
		a.log.AppendText(OriginAssistant, authBlockedText)
		return
	}
	defer release()

	timer := time.NewTimer(a.timeout)
	defer timer.Stop()

	select {
	case sig := <-signals:
		if sig.Err != nil {
			a.logger.Warn("authorization failed", "error", sig.Err)
			a.log.AppendText(OriginAssistant,
				fmt.Sprintf("Authorization failed: %v. Please try again.", sig.Err))
			return
		}
		a.logger.Info("authorization complete", "service", sig.Service)
		a.log.AppendText(OriginAssistant, authSuccessText)

	case <-timer.C:
		// Optimistic: the consent flow may have finished out of band.
		a.logger.Info("authorization timed out", "timeout", a.timeout)
		a.log.AppendText(OriginAssistant, authTimeoutText)

	case <-ctx.Done():
		a.logger.Info("authorization cancelled", "error", ctx.Err())
	}
}
