// Package callback runs the short-lived local HTTP listener that receives
// the provider's form_post redirect during the authorization-code flow.
//
// The receiver exposes a resolve-once future: a well-formed callback with
// a code completes it, a provider error rejects it. The owning flow tears
// the listener down once the future settles or the flow is cancelled.
package callback

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wintermelt/minecraft_session_keeper/internal/future"
)

// DefaultPort is the local port the login URL's redirect must point at.
// A mismatch between this and the provider app registration is a
// configuration error, not a runtime one.
const DefaultPort = 46521

const callbackPath = "/auth"

// Error is the provider-reported failure delivered through the redirect,
// e.g. "access_denied". The reason is preserved verbatim.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return "authentication callback reported: " + e.Reason
}

// Receiver listens for exactly one authorization code.
type Receiver struct {
	listener net.Listener
	server   *http.Server
	code     *future.Future[string]
	logger   *slog.Logger
}

// Listen binds the receiver on 127.0.0.1:port. Port 0 picks a free port
// (used by tests); production flows use DefaultPort so the redirect URI
// matches the provider app registration.
func Listen(port int, logger *slog.Logger) (*Receiver, error) {
	if logger == nil {
		logger = slog.Default()
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind callback listener: %w", err)
	}

	r := &Receiver{
		listener: listener,
		code:     future.New[string](),
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.Handle(callbackPath, r)

	r.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := r.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Error("callback listener failed", "error", err)
		}
	}()

	return r, nil
}

// RedirectURI is the address the provider must be told to POST back to.
func (r *Receiver) RedirectURI() string {
	return fmt.Sprintf("http://%s%s", r.listener.Addr().String(), callbackPath)
}

// Code settles with the authorization code, or with *Error when the
// provider reported a failure.
func (r *Receiver) Code() *future.Future[string] {
	return r.code
}

// Close shuts the listener down. Safe to call after the future settled
// or on flow cancellation.
func (r *Receiver) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return r.server.Shutdown(ctx)
}

// ServeHTTP implements the callback contract: POST with a
// form-url-encoded body only.
func (r *Receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	switch strings.ToUpper(req.Method) {
	case http.MethodPost:
		r.handlePost(w, req)
	case http.MethodGet, http.MethodHead:
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func (r *Receiver) handlePost(w http.ResponseWriter, req *http.Request) {
	contentType := req.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		return
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, 1<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	fields := parseFormFields(string(body))

	if code, ok := fields["code"]; ok {
		r.logger.Info("received authentication code")
		r.code.Complete(code)
		writeHTML(w, http.StatusOK, successPage())
		return
	}

	reason, ok := fields["error"]
	if !ok || reason == "" {
		reason = "unknown"
	}
	r.logger.Error("authentication callback reported error", "error", reason)
	r.code.Fail(&Error{Reason: reason})
	writeHTML(w, http.StatusBadRequest, errorPage(reason))
}

// parseFormFields decodes an application/x-www-form-urlencoded body.
// Duplicate field names keep the first occurrence; undecodable fields are
// dropped.
func parseFormFields(body string) map[string]string {
	fields := make(map[string]string)

	for _, field := range strings.Split(body, "&") {
		if field == "" {
			continue
		}

		key := field
		value := ""
		if i := strings.IndexByte(field, '='); i != -1 {
			key = field[:i]
			value = field[i+1:]
		}

		decodedKey, err := url.QueryUnescape(key)
		if err != nil {
			continue
		}
		decodedValue, err := url.QueryUnescape(value)
		if err != nil {
			continue
		}

		if _, exists := fields[decodedKey]; !exists {
			fields[decodedKey] = decodedValue
		}
	}

	return fields
}

func writeHTML(w http.ResponseWriter, status int, page string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, page)
}
