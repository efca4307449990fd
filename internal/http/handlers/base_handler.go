// README: Base handler utilities (JSON helpers, error mapping, caller identity).
package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"opsconsole/internal/http/middleware"
	"opsconsole/internal/modules/lifecycle"
	"opsconsole/internal/modules/notify"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// isValidID accepts generated ids and legacy Firestore auto ids.
func isValidID(v string) bool {
	if v == "" || len(v) > 128 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeLifecycleError(c *gin.Context, err error) {
	var verr *lifecycle.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(c, http.StatusUnprocessableEntity, errorResponse{Error: verr.Error(), Field: verr.Field})
	case errors.Is(err, lifecycle.ErrValidationFailed), errors.Is(err, notify.ErrInvalidRequest):
		writeError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, lifecycle.ErrNotFound), errors.Is(err, lifecycle.ErrUnknownDomain):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, lifecycle.ErrInvalidStatus):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, lifecycle.ErrConflict), errors.Is(err, lifecycle.ErrInFlight):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, lifecycle.ErrStoreUnavailable), errors.Is(err, notify.ErrDisabled):
		c.Header("Retry-After", "1")
		writeError(c, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func actor(c *gin.Context) lifecycle.Actor {
	return lifecycle.Actor{
		UID:   middleware.CallerUID(c),
		Name:  middleware.CallerName(c),
		Image: middleware.CallerPicture(c),
	}
}

func domainParam(c *gin.Context) (lifecycle.Domain, bool) {
	cfg, err := lifecycle.LookupDomain(c.Param("domain"))
	if err != nil {
		writeLifecycleError(c, err)
		return "", false
	}
	return cfg.Domain, true
}

func idParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid record id")
		return "", false
	}
	return id, true
}

func pageQuery(c *gin.Context) lifecycle.PageRequest {
	limit, _ := strconv.Atoi(c.Query("limit"))
	return lifecycle.PageRequest{Limit: limit, Cursor: c.Query("cursor")}
}

// decodeObject reads a JSON object keeping integers as int64 so they are
// stored as numbers rather than strings or lossy floats.
func decodeObject(c *gin.Context) (map[string]any, error) {
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("body must be a JSON object")
	}
	return normalizeNumbers(raw).(map[string]any), nil
}

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeNumbers(e)
		}
		return t
	case []any:
		for i := range t {
			t[i] = normalizeNumbers(t[i])
		}
		return t
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		f, _ := t.Float64()
		return f
	}
	return v
}

// flexCode accepts a confirmation code sent as a JSON number or string.
type flexCode string

func (f *flexCode) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexCode(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexCode(n.String())
	return nil
}

// flexNumber accepts a JSON number or a numeric string. Null and "" read as
// absent; other text is kept so the caller can reject it by field name.
type flexNumber struct {
	raw string
}

func (f *flexNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		f.raw = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		f.raw = strings.TrimSpace(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	f.raw = n.String()
	return nil
}

func (f flexNumber) float(field string) (*float64, error) {
	if f.raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(f.raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, &lifecycle.ValidationError{Field: field, Reason: "must be a number"}
	}
	return &v, nil
}

// int returns 0 when absent.
func (f flexNumber) int(field string) (int, error) {
	v, err := f.float(field)
	if err != nil || v == nil {
		return 0, err
	}
	if *v != math.Trunc(*v) || math.Abs(*v) > math.MaxInt32 {
		return 0, &lifecycle.ValidationError{Field: field, Reason: "must be a whole number"}
	}
	return int(*v), nil
}
