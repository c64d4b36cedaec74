package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"expensetracker/internal/auth"
	"expensetracker/internal/core"
)

const maxBodyBytes = 64 << 10

// fields looks up a sanitized body field; missing keys read as "".
type fields func(key string) string

// readFields decodes a JSON object or a urlencoded form. The HTMX form and
// the JSON API post the same field names, so handlers never care which
// arrived. A body starting with '{' is JSON whatever its Content-Type.
func readFields(w http.ResponseWriter, r *http.Request) (fields, error) {
	if r.Body == nil {
		return func(string) string { return "" }, nil
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)

	if len(raw) > 0 && (raw[0] == '{' || strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")) {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return nil, fmt.Errorf("invalid JSON body: %w", err)
		}
		return func(key string) string { return sanitizeInput(scalar(obj[key])) }, nil
	}

	form, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid form body: %w", err)
	}
	return func(key string) string { return sanitizeInput(form.Get(key)) }, nil
}

// scalar renders JSON strings, numbers and booleans; objects and arrays read
// as empty.
func scalar(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// ParseDraft reads a transaction draft. Only the amount and date are checked
// here; core.NewTransaction owns every other rule.
func ParseDraft(w http.ResponseWriter, r *http.Request) (core.Draft, error) {
	get, err := readFields(w, r)
	if err != nil {
		return core.Draft{}, err
	}

	amount, err := core.ParseDecimal(get("amount"))
	if err != nil {
		return core.Draft{}, err
	}
	d := core.Draft{
		Description: get("description"),
		Amount:      amount,
		Kind:        firstNonEmpty(get("transactionType"), get("kind")),
		Category:    get("category"),
	}
	if s := get("date"); s != "" {
		if d.Date, err = core.ParseDate(s); err != nil {
			return core.Draft{}, err
		}
	}
	return d, nil
}

var errNoCredentials = errors.New("missing credentials")

// ParseCredentials reads a Google id token (id_token, or credential as posted
// by the sign-in button) or a development user id.
func ParseCredentials(w http.ResponseWriter, r *http.Request) (auth.Credentials, error) {
	get, err := readFields(w, r)
	if err != nil {
		return auth.Credentials{}, err
	}
	c := auth.Credentials{
		IDToken: firstNonEmpty(get("id_token"), get("credential")),
		UserID:  get("user_id"),
		Name:    get("name"),
	}
	if c.IDToken == "" && c.UserID == "" {
		return c, errNoCredentials
	}
	return c, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
