package controller

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"todo-scheduler/internal/models"
	"todo-scheduler/internal/service"
)

var null = []byte("null")

type createTodoRequest struct {
	Title       string  `json:"title" binding:"required"`
	Description *string `json:"description"`
}

// updateTodoRequest keeps raw values so absent, null and malformed fields can
// be told apart.
type updateTodoRequest struct {
	Title       json.RawMessage `json:"title"`
	Description json.RawMessage `json:"description"`
	ScheduledAt json.RawMessage `json:"scheduledAt"`
	Duration    json.RawMessage `json:"duration"`
	Status      json.RawMessage `json:"status"`
}

type scheduleRequest struct {
	ID          json.RawMessage `json:"id"`
	ScheduledAt json.RawMessage `json:"scheduledAt"`
	Duration    json.RawMessage `json:"duration"`
}

func (r updateTodoRequest) toInput() (service.UpdateInput, error) {
	var (
		in  service.UpdateInput
		err error
	)
	if in.Title, err = stringField(r.Title, "Invalid title"); err != nil {
		return in, err
	}
	if in.Description, err = stringField(r.Description, "Invalid description"); err != nil {
		return in, err
	}
	if len(r.ScheduledAt) > 0 {
		in.ScheduledAt.Set = true
		if !isNull(r.ScheduledAt) {
			at, err := parseTimestampJSON(r.ScheduledAt)
			if err != nil {
				return in, err
			}
			in.ScheduledAt.Value = &at
		}
	}
	if len(r.Duration) > 0 {
		in.Duration.Set = true
		if in.Duration.Value, err = parseDuration(r.Duration); err != nil {
			return in, err
		}
	}
	status, err := stringField(r.Status, "Invalid status")
	if err != nil {
		return in, err
	}
	if status.Set {
		in.Status.Set = true
		if status.Value != nil {
			s := models.Status(*status.Value)
			in.Status.Value = &s
		}
	}
	return in, nil
}

func stringField(raw json.RawMessage, msg string) (service.Field[string], error) {
	var f service.Field[string]
	if len(raw) == 0 {
		return f, nil
	}
	f.Set = true
	if isNull(raw) {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return f, service.Invalid("%s", msg)
	}
	f.Value = &s
	return f, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), null)
}

// parseID accepts a positive integer given as a JSON number or numeric string.
func parseID(raw json.RawMessage) (int64, error) {
	n, err := parseWholeNumber(raw)
	if err != nil || n <= 0 {
		return 0, service.Invalid("Invalid ID")
	}
	return n, nil
}

// parsePathID parses the {id} path segment.
func parsePathID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, service.Invalid("Invalid ID")
	}
	return id, nil
}

// parseDuration coerces minutes from a JSON number or numeric string. Null,
// zero and a blank string all mean no duration.
func parseDuration(raw json.RawMessage) (*int, error) {
	text, err := numberText(raw)
	if err != nil {
		return nil, service.Invalid("Invalid duration")
	}
	if text == "" {
		return nil, nil
	}
	n, err := wholeNumber(text)
	if err != nil || n < 0 || n > math.MaxInt32 {
		return nil, service.Invalid("Invalid duration")
	}
	if n == 0 {
		return nil, nil
	}
	d := int(n)
	return &d, nil
}

func parseWholeNumber(raw json.RawMessage) (int64, error) {
	text, err := numberText(raw)
	if err != nil {
		return 0, err
	}
	if text == "" {
		return 0, fmt.Errorf("missing number")
	}
	return wholeNumber(text)
}

// numberText unwraps a JSON number or string; null and absent give "".
func numberText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || isNull(raw) {
		return "", nil
	}
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return "", err
		}
		return strings.TrimSpace(text), nil
	}
	if raw[0] != '-' && (raw[0] < '0' || raw[0] > '9') {
		return "", fmt.Errorf("not a number: %s", text)
	}
	return text, nil
}

// Above 2^53 a float64 no longer holds every integer, so decimal forms such
// as 5.0 are only accepted below it.
const maxExactFloat = 1 << 53

func wholeNumber(text string) (int64, error) {
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) >= maxExactFloat {
		return 0, fmt.Errorf("not a whole number: %s", text)
	}
	return int64(f), nil
}

func parseTimestampJSON(raw json.RawMessage) (time.Time, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, service.Invalid("Invalid scheduledAt value")
	}
	return parseTimestamp(s)
}

// Timestamps without an offset are read as UTC; a bare date is UTC midnight.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, service.Invalid("Invalid scheduledAt value")
}

// parseDate reads a calendar day in YYYY-MM-DD form.
func parseDate(s string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, service.Invalid("Invalid date, expected YYYY-MM-DD")
	}
	return d, nil
}

// parseLocation accepts an IANA zone name, "Z"/"UTC", or a fixed offset such
// as +02:00, -0530 or +2. Empty means UTC.
func parseLocation(s string) (*time.Location, error) {
	s = strings.TrimSpace(s)
	switch strings.ToUpper(s) {
	case "", "Z", "UTC":
		return time.UTC, nil
	}
	if s[0] == '+' || s[0] == '-' {
		if offset, ok := parseOffset(s[1:]); ok {
			if s[0] == '-' {
				offset = -offset
			}
			return time.FixedZone(s, offset), nil
		}
		return nil, service.Invalid("Invalid tz %q", s)
	}
	loc, err := time.LoadLocation(s)
	if err != nil {
		return nil, service.Invalid("Invalid tz %q", s)
	}
	return loc, nil
}

func parseOffset(s string) (seconds int, ok bool) {
	s = strings.ReplaceAll(s, ":", "")
	var hh, mm string
	switch len(s) {
	case 1, 2:
		hh = s
	case 4:
		hh, mm = s[:2], s[2:]
	default:
		return 0, false
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h > 14 {
		return 0, false
	}
	m := 0
	if mm != "" {
		if m, err = strconv.Atoi(mm); err != nil || m > 59 {
			return 0, false
		}
	}
	return h*3600 + m*60, true
}
