// Package http provides the JSON API over the ledger service.
//
// This file implements utilities for parsing and validating request data:
// JSON bodies, path ids, date ranges and list filters.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ledger/internal/model"
	"ledger/internal/storage"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 64 << 10

const dateLayout = "2006-01-02"

// DecodeJSON reads a single JSON object from the request body into dst.
// Unknown fields are rejected.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return errors.New("request body is empty")
		case errors.As(err, &maxErr):
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		default:
			return fmt.Errorf("invalid JSON body: %w", err)
		}
	}
	if dec.More() {
		return errors.New("request body must hold a single JSON object")
	}
	return nil
}

// ParseID reads the {id} path value.
func ParseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", r.PathValue("id"))
	}
	return id, nil
}

// ParseTime accepts a calendar date (start of day in loc) or an RFC 3339 instant.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: use YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}

// ParseRange resolves the inclusive period of a request. Explicit from/to
// win; otherwise year/month select a calendar month, defaulting to the
// month of now. A bare "to" date covers that whole day.
func ParseRange(query url.Values, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	fromStr := strings.TrimSpace(query.Get("from"))
	toStr := strings.TrimSpace(query.Get("to"))
	if fromStr != "" || toStr != "" {
		if fromStr == "" || toStr == "" {
			return time.Time{}, time.Time{}, errors.New("from and to must be given together")
		}
		from, err := ParseTime(fromStr, loc)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to, err := ParseTime(toStr, loc)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		if len(toStr) == len(dateLayout) {
			to = to.AddDate(0, 0, 1).Add(-time.Millisecond)
		}
		if to.Before(from) {
			return time.Time{}, time.Time{}, errors.New("to is before from")
		}
		return from, to, nil
	}

	year, month := now.In(loc).Year(), int(now.In(loc).Month())
	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1 {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid year %q", v)
		}
		year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid month %q", v)
		}
		month = m
	}
	from, to := model.MonthRange(time.Date(year, time.Month(month), 1, 12, 0, 0, 0, loc), loc)
	return from, to, nil
}

// ParseKind reads an optional kind parameter.
func ParseKind(query url.Values) (model.Kind, error) {
	v := strings.TrimSpace(query.Get("kind"))
	if v == "" {
		return "", nil
	}
	k := model.Kind(strings.ToLower(v))
	if !k.Valid() {
		return "", fmt.Errorf("invalid kind %q", v)
	}
	return k, nil
}

// ParseFilter builds a transaction filter from the query string. The owner
// is left empty; the ledger scopes every query to the current actor.
func ParseFilter(query url.Values, loc *time.Location) (storage.Filter, error) {
	var f storage.Filter
	var err error
	if f.Kind, err = ParseKind(query); err != nil {
		return f, err
	}
	f.Category = sanitizeInput(query.Get("category"))

	if v := strings.TrimSpace(query.Get("from")); v != "" {
		if f.From, err = ParseTime(v, loc); err != nil {
			return f, err
		}
	}
	if v := strings.TrimSpace(query.Get("to")); v != "" {
		if f.To, err = ParseTime(v, loc); err != nil {
			return f, err
		}
		if len(v) == len(dateLayout) {
			f.To = f.To.AddDate(0, 0, 1).Add(-time.Millisecond)
		}
	}
	if v := strings.TrimSpace(query.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			return f, fmt.Errorf("invalid limit %q: use 1..1000", v)
		}
		f.Limit = n
	}
	return f, nil
}

func filterRange(from, to time.Time) storage.Filter {
	return storage.Filter{From: from, To: to}
}

// sanitizeInput removes control characters other than tab and newlines and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
