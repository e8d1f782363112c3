package httpapi

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/jetlinks-ai/aistaff/internal/apierr"
	"github.com/jetlinks-ai/aistaff/internal/events"
	"github.com/jetlinks-ai/aistaff/pkg/protocol"
)

// sseEncoder frames turn events as server-sent events:
// `event:<type>\ndata:<json>\n\n`, terminated by `event:done`.
type sseEncoder struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEEncoder(w http.ResponseWriter) (*sseEncoder, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, apierr.New(apierr.KindValidation, "streaming not supported by transport")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseEncoder{w: w, flusher: flusher}, nil
}

func (e *sseEncoder) emit(ev events.Event) {
	data, err := events.Marshal(ev)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", ev.Type(), data)
	e.flusher.Flush()
}

func (e *sseEncoder) done(success bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fmt.Fprintf(e.w, "event: %s\ndata: {\"success\":%t}\n\n", protocol.EventDone, success)
	e.flusher.Flush()
}
