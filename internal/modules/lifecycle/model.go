// README: Request record, actor stamp, completion draft and command types.
package lifecycle

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Document field names shared by all three domains.
const (
	FieldStatus       = "status"
	FieldCreatedAt    = "createdAt"
	FieldUpdatedAt    = "updatedAt"
	FieldDeliveredAt  = "deliveredAt"
	FieldCancelledAt  = "cancelledAt"
	FieldVersion      = "version"
	FieldDeliveryCode = "deliveryCode"
	FieldActor        = "actor"
	FieldCreatedBy    = "createdBy"
)

// reserved fields are owned by the lifecycle and never taken from client input.
var reservedFields = []string{
	"id", FieldStatus, FieldCreatedAt, FieldUpdatedAt, FieldDeliveredAt, FieldCancelledAt,
	FieldVersion, FieldDeliveryCode, FieldActor, FieldCreatedBy,
}

type serverTimestamp struct{}

// ServerTimestamp is replaced by the store's own clock when the write commits.
var ServerTimestamp = serverTimestamp{}

// Record is one request document together with its id.
type Record struct {
	ID     string
	Fields map[string]any
}

func (r *Record) Status() string {
	s, _ := r.Fields[FieldStatus].(string)
	return s
}

func (r *Record) CreatedAt() time.Time {
	return asTime(r.Fields[FieldCreatedAt])
}

func (r *Record) DeliveredAt() time.Time {
	return asTime(r.Fields[FieldDeliveredAt])
}

func (r *Record) CancelledAt() time.Time {
	return asTime(r.Fields[FieldCancelledAt])
}

func (r *Record) Version() int64 {
	n, _ := asInt64(r.Fields[FieldVersion])
	return n
}

// DeliveryCode returns the stored confirmation code as a number.
func (r *Record) DeliveryCode() (int64, bool) {
	return asInt64(r.Fields[FieldDeliveryCode])
}

// MarshalJSON flattens the record so the id sits next to its fields.
func (r *Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		if _, ok := v.(serverTimestamp); ok {
			continue
		}
		out[k] = v
	}
	out["id"] = r.ID
	return json.Marshal(out)
}

// Actor identifies whoever performed a terminal transition.
type Actor struct {
	UID   string `json:"uid,omitempty"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

func (a Actor) fields() map[string]any {
	return map[string]any{"uid": a.UID, "name": a.Name, "image": a.Image}
}

// Completion is the operator-entered draft for one record's completion.
type Completion struct {
	ConfirmationCode string   `json:"confirmationCode"`
	PlatformFee      *float64 `json:"platformFee"`
	WorkerEarning    *float64 `json:"workerEarning"`
	WorkerName       string   `json:"workerName"`
	WorkerContact    string   `json:"workerContact"`
	LocalNonLocal    string   `json:"localNonLocal"`
	Remark           string   `json:"remark"`
	WorkerRating     int      `json:"workerRating"`
	DriverName       string   `json:"driverName"`
	DriverContact    string   `json:"driverContact"`
}

// fields returns the completion metadata merged into the relocated document.
// The confirmation code itself is not persisted.
func (c Completion) fields() map[string]any {
	out := map[string]any{}
	if c.PlatformFee != nil {
		out["fee"] = *c.PlatformFee
	}
	if c.WorkerEarning != nil {
		out["workerEarning"] = *c.WorkerEarning
	}
	setIfNotEmpty(out, "workerName", c.WorkerName)
	setIfNotEmpty(out, "workerContact", c.WorkerContact)
	setIfNotEmpty(out, "localNonLocal", NormalizeStatus(c.LocalNonLocal))
	setIfNotEmpty(out, "remark", c.Remark)
	setIfNotEmpty(out, "driverName", c.DriverName)
	setIfNotEmpty(out, "driverContact", c.DriverContact)
	if c.WorkerRating != 0 {
		out["workerRating"] = int64(c.WorkerRating)
	}
	return out
}

type CreateCommand struct {
	Domain Domain
	Fields map[string]any
	Actor  Actor
}

type TransitionCommand struct {
	Domain   Domain
	RecordID string
	Status   string
	Actor    Actor
}

type NoteCommand struct {
	Domain   Domain
	RecordID string
	Note     string
	Actor    Actor
}

type CompleteCommand struct {
	Domain     Domain
	RecordID   string
	Completion Completion
	Actor      Actor
}

// Result reports where a record lives after an operation.
type Result struct {
	Record     *Record `json:"record"`
	Collection string  `json:"collection"`
	Relocated  bool    `json:"relocated"`
	// Resumed is set when the destination already held the record and only
	// the leftover source document was removed.
	Resumed bool `json:"resumed,omitempty"`
}

type PageRequest struct {
	Limit  int
	Cursor string
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (p PageRequest) limit() int {
	switch {
	case p.Limit <= 0:
		return defaultPageSize
	case p.Limit > maxPageSize:
		return maxPageSize
	}
	return p.Limit
}

func setIfNotEmpty(m map[string]any, key, v string) {
	if v = strings.TrimSpace(v); v != "" {
		m[key] = v
	}
}

func cloneFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneFields(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	}
	return v
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case *time.Time:
		if t != nil {
			return *t
		}
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// asInt64 accepts the numeric shapes a document field can arrive in:
// Firestore integers, JSON floats, json.Number and digit strings.
func asInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case float64:
		if t != float64(int64(t)) {
			return 0, false
		}
		return int64(t), true
	case json.Number:
		n, err := t.Int64()
		return n, err == nil
	case string:
		return parseCode(t)
	}
	return 0, false
}

func parseCode(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func asFloat64(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}
