package http

import (
	"encoding/json"
	"html/template"
	"net/http"
	"time"

	"expensetracker/internal/core"
)

// Events the page listens for.
const (
	EventTransactionCreated = "transaction:created"
	EventFormReset          = "form:reset"
	EventNotification       = "show-notification"
	EventSignedOut          = "session:ended"
)

// NotifyLevel picks the toast style in app.js.
type NotifyLevel string

const (
	NotifySuccess NotifyLevel = "success"
	NotifyError   NotifyLevel = "error"
)

// Fragment is a reply to an htmx request: a status, an optional HTML body
// and the client events fired through HX-Trigger once it is swapped in.
type Fragment struct {
	status int
	header http.Header
	body   []byte
	events map[string]any
}

func NewFragment(status int) *Fragment {
	return &Fragment{status: status, header: http.Header{}, events: map[string]any{}}
}

// ErrorFragment renders message in an error box.
func ErrorFragment(status int, message string) *Fragment {
	return NewFragment(status).Message("error", message)
}

// HTML sets an already rendered body.
func (f *Fragment) HTML(body []byte) *Fragment {
	f.header.Set("Content-Type", "text/html; charset=utf-8")
	f.body = body
	return f
}

// Message sets the body to a single escaped div of the given class.
func (f *Fragment) Message(class, text string) *Fragment {
	return f.HTML([]byte(`<div class="` + class + `">` + template.HTMLEscapeString(text) + `</div>`))
}

// Event fires name on the client with detail as event.detail.
func (f *Fragment) Event(name string, detail any) *Fragment {
	if detail == nil {
		detail = struct{}{}
	}
	f.events[name] = detail
	return f
}

// TransactionCreated tells the page which entry was added, so it can reload
// the ledger itself when the live stream is down.
func (f *Fragment) TransactionCreated(t core.Transaction) *Fragment {
	return f.Event(EventTransactionCreated, map[string]string{"id": t.ID, "kind": t.Kind.String()})
}

// FormReset restores the add form defaults.
func (f *Fragment) FormReset() *Fragment {
	return f.Event(EventFormReset, nil)
}

// Notify shows a toast. Errors stay up longer.
func (f *Fragment) Notify(level NotifyLevel, text string) *Fragment {
	d := 3 * time.Second
	if level == NotifyError {
		d = 5 * time.Second
	}
	return f.Event(EventNotification, map[string]any{
		"type":     level,
		"message":  text,
		"duration": d.Milliseconds(),
	})
}

// Redirect makes htmx navigate to location instead of swapping.
func (f *Fragment) Redirect(location string) *Fragment {
	f.header.Set("HX-Redirect", location)
	return f
}

func (f *Fragment) Write(w http.ResponseWriter) {
	h := w.Header()
	for name, values := range f.header {
		h[name] = values
	}
	if len(f.events) > 0 {
		if trigger, err := json.Marshal(f.events); err == nil {
			h.Set("HX-Trigger", string(trigger))
		}
	}
	w.WriteHeader(f.status)
	if len(f.body) > 0 {
		_, _ = w.Write(f.body)
	}
}
