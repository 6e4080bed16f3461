// Package connectivity decides when the client may carry on without the
// backend, and serves task data from a local replica when it does.
package connectivity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"taskboard/internal/service"
)

// Mode selects how network failures are handled.
type Mode string

const (
	// ModeOff surfaces network failures as errors.
	ModeOff Mode = "off"

	// ModeFallback answers from local data when the backend cannot be reached.
	ModeFallback Mode = "fallback"

	// ModeOffline never contacts the backend.
	ModeOffline Mode = "offline"
)

// OfflineTokenPrefix marks tokens minted locally instead of issued by the backend.
const OfflineTokenPrefix = "offline-"

// ErrUnreachable is reported for backend calls skipped in offline mode.
var ErrUnreachable = errors.New("backend unreachable")

// ParseMode parses a mode name. Empty means ModeFallback.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeOff:
		return ModeOff, nil
	case "", ModeFallback:
		return ModeFallback, nil
	case ModeOffline:
		return ModeOffline, nil
	}
	return "", fmt.Errorf("invalid offline mode: %s (want off, fallback or offline)", s)
}

// IsNetworkError reports whether err means the request never reached the
// server, as opposed to the server answering with an error.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnreachable) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return true
	}
	// EOF only counts when the transport hit it, not a body decoder.
	var urlErr *url.Error
	if errors.As(err, &urlErr) && (errors.Is(urlErr.Err, io.EOF) || errors.Is(urlErr.Err, io.ErrUnexpectedEOF)) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// Policy applies a Mode. The zero value behaves as ModeOff.
type Policy struct {
	Mode  Mode
	Now   func() time.Time
	NewID func() string
}

// NewPolicy returns a policy with the real clock and random ids.
func NewPolicy(mode Mode) Policy {
	return Policy{Mode: mode, Now: time.Now, NewID: uuid.NewString}
}

// Reachable reports whether the backend may be contacted at all.
func (p Policy) Reachable() bool {
	return p.Mode != ModeOffline
}

// Fallback reports whether err may be answered with local data.
func (p Policy) Fallback(err error) bool {
	switch p.Mode {
	case ModeFallback, ModeOffline:
		return IsNetworkError(err)
	default:
		return false
	}
}

// MintSession creates a local session for when the backend cannot be reached.
// An empty name falls back to the local part of the email.
func (p Policy) MintSession(email, name string) service.Session {
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	return service.Session{
		Token: OfflineTokenPrefix + p.newID(),
		User: service.User{
			ID:    "user-" + p.newID(),
			Email: email,
			Name:  name,
		},
	}
}

func (p Policy) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

func (p Policy) newID() string {
	if p.NewID == nil {
		return uuid.NewString()
	}
	return p.NewID()
}
