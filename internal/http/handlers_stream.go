package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
	"expensetracker/internal/ports"
	"expensetracker/internal/services"
)

// Stream event names.
const (
	eventSnapshot = "snapshot"
	eventWarning  = "warning"
	eventEnd      = "end"
)

// handleStream serves a Server-Sent Events feed of the signed-in owner's
// ledger. Every push is a full snapshot; a failed refresh additionally emits
// a warning and the snapshot it carries is the last good one. The stream ends
// when the client goes away, the owner signs out, or the server shuts down.
//
// format=html sends the rendered "ledger" partial instead of JSON.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	mode, err := core.ParseViewMode(r.URL.Query().Get("filter"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	asHTML := r.URL.Query().Get("format") == "html"

	rc := http.NewResponseController(w)
	// The server write timeout would cut the stream.
	_ = rc.SetWriteDeadline(time.Time{})

	sub, err := s.ledger.Subscribe(r.Context(), sess)
	if err != nil {
		status, msg, kind := statusFor(err)
		writeJSON(w, status, errorBody{Error: msg, Kind: kind})
		return
	}
	defer sub.Close()
	stop := context.AfterFunc(s.streamsCtx, sub.Close)
	defer stop()

	atomic.AddInt64(&s.appMetrics.activeStreams, 1)
	defer atomic.AddInt64(&s.appMetrics.activeStreams, -1)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.ErrorContext(r.Context(), "Streaming unsupported by response writer", applog.FieldError, err)
		return
	}

	logger := s.logger.WithComponent(applog.ComponentStream)
	logger.DebugContext(r.Context(), "Ledger stream opened",
		applog.FieldOwnerID, sess.OwnerID, "filter", mode.String())

	keepAlive := time.NewTicker(s.streamKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case u, ok := <-sub.Updates():
			if !ok {
				_ = writeEvent(w, eventEnd, []byte(`{"reason":"session ended"}`))
				_ = rc.Flush()
				logger.DebugContext(r.Context(), "Ledger stream ended", applog.FieldOwnerID, sess.OwnerID)
				return
			}
			if err := s.sendUpdate(w, mode, u, asHTML); err != nil {
				logger.DebugContext(r.Context(), "Ledger stream write failed", applog.FieldError, err)
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-keepAlive.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func (s *Server) sendUpdate(w io.Writer, mode core.ViewMode, u services.Update, asHTML bool) error {
	warning := ""
	if u.Err != nil {
		warning = streamWarning(u.Err)
		payload, _ := json.Marshal(map[string]string{"message": warning})
		if err := writeEvent(w, eventWarning, payload); err != nil {
			return err
		}
	}

	if asHTML {
		var buf bytes.Buffer
		if err := s.templates.ExecuteTemplate(&buf, "ledger", newLedgerData(mode, u.Ledger, warning)); err != nil {
			return fmt.Errorf("render ledger: %w", err)
		}
		return writeEvent(w, eventSnapshot, buf.Bytes())
	}

	body := newLedgerJSON(mode, u.Ledger)
	body.Stale = u.Stale()
	body.Warning = warning
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return writeEvent(w, eventSnapshot, payload)
}

func streamWarning(err error) string {
	if kind, ok := ports.PersistenceKindOf(err); ok && kind == ports.Unreachable {
		return "Storage is unreachable, showing the last loaded transactions"
	}
	return "Live updates are delayed, showing the last loaded transactions"
}

// writeEvent writes one SSE event. Multi-line data is split over several
// data fields as the format requires.
func writeEvent(w io.Writer, event string, data []byte) error {
	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(event)
	b.WriteByte('\n')
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		b.WriteString("data: ")
		b.WriteString(strings.TrimRight(line, "\r"))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}
