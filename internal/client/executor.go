// Package client is the gateway's Go client: a retrying request executor for
// JSON endpoints and a connector for the event stream.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand/v2"
	"mime"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/davidbz/studygate/internal/domain"
	"github.com/davidbz/studygate/internal/observability"
	"github.com/davidbz/studygate/internal/protocol"
)

const maxResponseBytes = 8 << 20

var errAttemptTimeout = errors.New("attempt timed out")

// TokenSource supplies credentials and forgets them when the server rejects them.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	SignOut(ctx context.Context)
}

// Request describes one call. Body is sent as JSON; Raw is sent as is with
// ContentType (multipart uploads).
type Request struct {
	Method            string
	Path              string
	Body              any
	Raw               []byte
	ContentType       string
	IdempotencyKey    string
	IfUnmodifiedSince string
}

func (r Request) encode() ([]byte, string, error) {
	switch {
	case r.Raw != nil:
		return r.Raw, r.ContentType, nil
	case r.Body != nil:
		payload, err := json.Marshal(r.Body)
		if err != nil {
			return nil, "", &Error{Code: domain.CodeValidation, Method: r.Method, Path: r.Path, Message: "encode body", Cause: err}
		}
		return payload, "application/json", nil
	default:
		return nil, "", nil
	}
}

// Response is a successful, fully read response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// HasValue reports whether the response carries a JSON document.
// 204 and non-JSON responses carry no value.
func (r *Response) HasValue() bool {
	if r.Status == http.StatusNoContent || len(bytes.TrimSpace(r.Body)) == 0 {
		return false
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// Executor sends requests with bounded retries. Each call runs its own
// sequential loop; nothing is shared between calls except the HTTP client.
type Executor struct {
	baseURL string
	client  *http.Client
	tokens  TokenSource
	policy  RetryPolicy
	timeout time.Duration
	random  func() float64
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Executor) { e.client = c }
}

// WithRetryPolicy sets the retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(e *Executor) { e.policy = p }
}

// WithTimeout bounds each attempt. For streams it bounds the wait for headers.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) { e.timeout = d }
}

// WithRandom replaces the jitter source.
func WithRandom(random func() float64) Option {
	return func(e *Executor) { e.random = random }
}

// WithSleep replaces the backoff wait.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = sleep }
}

// New creates an executor for the gateway at baseURL.
func New(baseURL string, tokens TokenSource, opts ...Option) *Executor {
	e := &Executor{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  http.DefaultClient,
		tokens:  tokens,
		policy:  DefaultRetryPolicy(),
		timeout: 30 * time.Second,
		random:  rand.Float64,
		sleep:   sleep,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Do runs req and returns the read response.
func (e *Executor) Do(ctx context.Context, req Request) (*Response, error) {
	resp, body, err := e.execute(ctx, req, false)
	if err != nil {
		return nil, err
	}

	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// Fetch runs req and decodes the JSON answer. It returns nil without error
// when the response carries no value.
func Fetch[T any](ctx context.Context, e *Executor, req Request) (*T, error) {
	resp, err := e.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	if !resp.HasValue() {
		return nil, nil //nolint:nilnil // no value is a valid outcome
	}

	var v T
	if err = json.Unmarshal(resp.Body, &v); err != nil {
		return nil, &Error{Code: domain.CodeParse, Method: req.Method, Path: req.Path, Status: resp.Status,
			Message: "decode response", Cause: err}
	}

	return &v, nil
}

// EventStream reads stream events from an open response. Close releases the connection.
type EventStream struct {
	*protocol.Decoder
	body io.ReadCloser
}

// Close closes the underlying response.
func (s *EventStream) Close() error {
	return s.body.Close()
}

// Stream opens an event stream. Connecting is retried under the same policy;
// once the stream is open nothing is retried.
func (e *Executor) Stream(ctx context.Context, req Request) (*EventStream, error) {
	resp, _, err := e.execute(ctx, req, true)
	if err != nil {
		return nil, err
	}

	return &EventStream{Decoder: protocol.NewDecoder(resp.Body), body: resp.Body}, nil
}

func (e *Executor) execute(ctx context.Context, req Request, stream bool) (*http.Response, []byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, aborted(req, err)
	}

	payload, contentType, err := req.encode()
	if err != nil {
		return nil, nil, err
	}

	logger := observability.FromContext(ctx)
	attempts := e.policy.attempts()

	var lastErr *Error
	for attempt := range attempts {
		if attempt > 0 {
			wait := e.policy.Delay(attempt-1, e.random)
			if hint := lastErr.RetryAfter; hint > wait && hint <= e.policy.MaxDelay {
				wait = hint
			}

			logger.Debug("retrying request",
				observability.String("path", req.Path),
				observability.Int("attempt", attempt),
				observability.Duration("wait", wait),
				observability.String("code", string(lastErr.Code)))

			if err = e.sleep(ctx, wait); err != nil {
				return nil, nil, aborted(req, err)
			}
		}

		resp, body, err := e.attempt(ctx, req, payload, contentType, stream)
		if err == nil {
			return resp, body, nil
		}

		ce, ok := AsError(err)
		if !ok || !e.retryable(ce) {
			return nil, nil, err
		}
		lastErr = ce
	}

	return nil, nil, lastErr
}

func (e *Executor) retryable(ce *Error) bool {
	if !e.policy.Enabled {
		return false
	}

	switch {
	case ce.Code == domain.CodeAborted, ce.Code == domain.CodeConflict, ce.Code == domain.CodeAuth:
		return false
	case ce.Status == 0:
		return ce.Code == domain.CodeTimeout || ce.Code == domain.CodeNetwork
	default:
		return e.policy.RetryableStatuses[ce.Status]
	}
}

// attempt sends one request. The attempt is canceled outright when its timer
// fires; for streams the timer stops once headers arrive.
func (e *Executor) attempt(
	ctx context.Context,
	req Request,
	payload []byte,
	contentType string,
	stream bool,
) (*http.Response, []byte, error) {
	token, err := e.tokens.AccessToken(ctx)
	if err != nil {
		return nil, nil, &Error{Code: domain.CodeAuth, Method: req.Method, Path: req.Path, Message: "no valid access token", Cause: err}
	}

	attemptCtx, cancel := context.WithCancelCause(ctx)
	var timer *time.Timer
	if e.timeout > 0 {
		timer = time.AfterFunc(e.timeout, func() { cancel(errAttemptTimeout) })
	}
	release := func() {
		if timer != nil {
			timer.Stop()
		}
		cancel(nil)
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, e.baseURL+req.Path, body)
	if err != nil {
		release()
		return nil, nil, &Error{Code: domain.CodeValidation, Method: req.Method, Path: req.Path, Message: "build request", Cause: err}
	}

	httpReq.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}
	if req.IfUnmodifiedSince != "" {
		httpReq.Header.Set("If-Unmodified-Since", req.IfUnmodifiedSince)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		release()
		return nil, nil, transportError(ctx, attemptCtx, req, err)
	}

	if stream && resp.StatusCode == http.StatusOK {
		if timer != nil && !timer.Stop() {
			resp.Body.Close()
			cancel(nil)
			return nil, nil, &Error{Code: domain.CodeTimeout, Method: req.Method, Path: req.Path, Cause: errAttemptTimeout}
		}
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: func() { cancel(nil) }}
		return resp, nil, nil
	}

	defer release()
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, transportError(ctx, attemptCtx, req, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if stream {
			return nil, nil, &Error{Code: domain.CodeParse, Method: req.Method, Path: req.Path, Status: resp.StatusCode,
				Message: "expected an event stream"}
		}
		return resp, data, nil
	}

	return nil, nil, e.statusError(ctx, req, resp, data)
}

func (e *Executor) statusError(ctx context.Context, req Request, resp *http.Response, data []byte) error {
	var body errorBody
	_ = json.Unmarshal(data, &body)

	ce := &Error{
		Code:    domain.CodeForStatus(resp.StatusCode),
		Method:  req.Method,
		Path:    req.Path,
		Status:  resp.StatusCode,
		Message: statusMessage(resp.StatusCode, body),
	}

	switch resp.StatusCode {
	case http.StatusConflict:
		ce.ServerVersion = body.version()
	case http.StatusUnauthorized, http.StatusForbidden:
		observability.FromContext(ctx).Info("credentials rejected, signing out",
			observability.Int("status", resp.StatusCode))
		e.tokens.SignOut(ctx)
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		ce.RetryAfter = parseRetryAfter(resp.Header, e.now())
	}

	return ce
}

func transportError(parent, attemptCtx context.Context, req Request, err error) error {
	if parent.Err() != nil {
		return aborted(req, parent.Err())
	}

	ce := &Error{Code: domain.CodeNetwork, Method: req.Method, Path: req.Path, Cause: err}

	var netErr net.Error
	if errors.Is(context.Cause(attemptCtx), errAttemptTimeout) || (errors.As(err, &netErr) && netErr.Timeout()) {
		ce.Code = domain.CodeTimeout
	}

	return ce
}

func aborted(req Request, cause error) error {
	return &Error{Code: domain.CodeAborted, Method: req.Method, Path: req.Path, Message: "request aborted", Cause: cause}
}

type cancelOnClose struct {
	io.ReadCloser
	cancel func()
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// StaticToken serves one fixed token until SignOut forgets it.
type StaticToken struct {
	mu        sync.Mutex
	token     string
	onSignOut func()
}

// NewStaticToken creates a token source. onSignOut may be nil.
func NewStaticToken(token string, onSignOut func()) *StaticToken {
	return &StaticToken{token: token, onSignOut: onSignOut}
}

// AccessToken returns the token or an error after sign-out.
func (s *StaticToken) AccessToken(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == "" {
		return "", errors.New("signed out")
	}
	return s.token, nil
}

// SignOut forgets the token.
func (s *StaticToken) SignOut(_ context.Context) {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()

	if s.onSignOut != nil {
		s.onSignOut()
	}
}
