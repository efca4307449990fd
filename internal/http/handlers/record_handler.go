// README: Record handlers for create/list/get, status transitions, notes and completion.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"opsconsole/internal/modules/events"
	"opsconsole/internal/modules/lifecycle"
)

// EventReader lists a record's audit trail.
type EventReader interface {
	ListByRecord(ctx context.Context, domain, recordID string) ([]events.Event, error)
}

type RecordHandler struct {
	lifecycle *lifecycle.Service
	events    EventReader
}

func NewRecordHandler(svc *lifecycle.Service, events EventReader) *RecordHandler {
	return &RecordHandler{lifecycle: svc, events: events}
}

type statusReq struct {
	Status string `json:"status"`
}

type noteReq struct {
	Note string `json:"note"`
}

type completeReq struct {
	ConfirmationCode flexCode   `json:"confirmationCode"`
	PlatformFee      flexNumber `json:"platformFee"`
	WorkerEarning    flexNumber `json:"workerEarning"`
	WorkerName       string     `json:"workerName"`
	WorkerContact    string     `json:"workerContact"`
	LocalNonLocal    string     `json:"localNonLocal"`
	Remark           string     `json:"remark"`
	WorkerRating     flexNumber `json:"workerRating"`
	DriverName       string     `json:"driverName"`
	DriverContact    string     `json:"driverContact"`
}

func (r completeReq) completion() (lifecycle.Completion, error) {
	fee, err := r.PlatformFee.float("platformFee")
	if err != nil {
		return lifecycle.Completion{}, err
	}
	earning, err := r.WorkerEarning.float("workerEarning")
	if err != nil {
		return lifecycle.Completion{}, err
	}
	rating, err := r.WorkerRating.int("workerRating")
	if err != nil {
		return lifecycle.Completion{}, err
	}
	return lifecycle.Completion{
		ConfirmationCode: string(r.ConfirmationCode),
		PlatformFee:      fee,
		WorkerEarning:    earning,
		WorkerName:       r.WorkerName,
		WorkerContact:    r.WorkerContact,
		LocalNonLocal:    r.LocalNonLocal,
		Remark:           r.Remark,
		WorkerRating:     rating,
		DriverName:       r.DriverName,
		DriverContact:    r.DriverContact,
	}, nil
}

func (h *RecordHandler) Create(c *gin.Context) {
	domain, ok := domainParam(c)
	if !ok {
		return
	}
	fields, err := decodeObject(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	rec, err := h.lifecycle.Create(c.Request.Context(), lifecycle.CreateCommand{
		Domain: domain,
		Fields: fields,
		Actor:  actor(c),
	})
	if err != nil {
		writeLifecycleError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, rec)
}

func (h *RecordHandler) List(c *gin.Context) {
	domain, ok := domainParam(c)
	if !ok {
		return
	}
	page, err := h.lifecycle.ListOngoing(c.Request.Context(), domain, pageQuery(c))
	if err != nil {
		writeLifecycleError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, page)
}

func (h *RecordHandler) Get(c *gin.Context) {
	domain, ok := domainParam(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	rec, err := h.lifecycle.Get(c.Request.Context(), domain, id)
	if err != nil {
		writeLifecycleError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, rec)
}

func (h *RecordHandler) Transition(c *gin.Context) {
	domain, ok := domainParam(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req statusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	res, err := h.lifecycle.TransitionStatus(c.Request.Context(), lifecycle.TransitionCommand{
		Domain:   domain,
		RecordID: id,
		Status:   req.Status,
		Actor:    actor(c),
	})
	if err != nil {
		writeLifecycleError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

func (h *RecordHandler) Note(c *gin.Context) {
	domain, ok := domainParam(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req noteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	res, err := h.lifecycle.PatchStatus(c.Request.Context(), lifecycle.NoteCommand{
		Domain:   domain,
		RecordID: id,
		Note:     req.Note,
		Actor:    actor(c),
	})
	if err != nil {
		writeLifecycleError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

func (h *RecordHandler) Complete(c *gin.Context) {
	domain, ok := domainParam(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req completeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	completion, err := req.completion()
	if err != nil {
		writeLifecycleError(c, err)
		return
	}
	res, err := h.lifecycle.Complete(c.Request.Context(), lifecycle.CompleteCommand{
		Domain:     domain,
		RecordID:   id,
		Completion: completion,
		Actor:      actor(c),
	})
	if err != nil {
		writeLifecycleError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

func (h *RecordHandler) History(c *gin.Context) {
	domain, ok := domainParam(c)
	if !ok {
		return
	}
	page, err := h.lifecycle.History(c.Request.Context(), domain, lifecycle.TerminalKind(c.Param("kind")), pageQuery(c))
	if err != nil {
		writeLifecycleError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, page)
}

func (h *RecordHandler) Events(c *gin.Context) {
	domain, ok := domainParam(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	if h.events == nil {
		writeError(c, http.StatusServiceUnavailable, "audit trail not configured")
		return
	}
	list, err := h.events.ListByRecord(c.Request.Context(), string(domain), id)
	if err != nil {
		writeError(c, http.StatusServiceUnavailable, "audit trail unavailable")
		return
	}
	if list == nil {
		list = []events.Event{}
	}
	writeJSON(c, http.StatusOK, gin.H{"events": list})
}
