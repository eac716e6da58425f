package handle

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"label-reader/api/internal/apperr"
	"label-reader/api/internal/label"
)

const (
	DefaultTimeout  = 180 * time.Second
	DefaultMaxBytes = 20 << 20
)

// Runner is the part of the pipeline the handlers need.
type Runner interface {
	Run(ctx context.Context, img []byte, llmName string) (label.Outcome, error)
	Last(ctx context.Context) (json.RawMessage, error)
}

type Handle struct {
	runner      Runner
	log         *zap.Logger
	errorStatus bool
	timeout     time.Duration
	maxBytes    int64
}

type Option func(*Handle)

// WithErrorStatus makes failures use conventional HTTP status codes instead
// of 200 with an error body.
func WithErrorStatus(on bool) Option { return func(h *Handle) { h.errorStatus = on } }

func WithTimeout(d time.Duration) Option {
	return func(h *Handle) {
		if d > 0 {
			h.timeout = d
		}
	}
}

func WithMaxBytes(n int64) Option {
	return func(h *Handle) {
		if n > 0 {
			h.maxBytes = n
		}
	}
}

func New(r Runner, log *zap.Logger, opts ...Option) *Handle {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handle{
		runner:   r,
		log:      log.Named("http"),
		timeout:  DefaultTimeout,
		maxBytes: DefaultMaxBytes,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// deadline honours X-Request-Timeout or ?timeoutSec= (seconds).
func (h *Handle) deadline(r *http.Request) time.Duration {
	for _, ts := range []string{r.Header.Get("X-Request-Timeout"), r.URL.Query().Get("timeoutSec")} {
		if ts == "" {
			continue
		}
		if v, _ := strconv.Atoi(ts); v > 0 {
			return time.Duration(v) * time.Second
		}
	}
	return h.timeout
}

// failStatus is 200 unless conventional codes were asked for.
func (h *Handle) failStatus(err error) int {
	if !h.errorStatus {
		return http.StatusOK
	}
	return apperr.HTTPStatus(err)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}
