// README: Transition audit event recorded after every committed lifecycle change.
package events

import "time"

type Kind string

const (
	KindCreate   Kind = "create"
	KindPatch    Kind = "patch"
	KindNote     Kind = "note"
	KindComplete Kind = "complete"
	KindCancel   Kind = "cancel"
	KindResume   Kind = "resume"
)

type Event struct {
	ID         int64     `json:"id"`
	Domain     string    `json:"domain"`
	RecordID   string    `json:"recordId"`
	Kind       Kind      `json:"kind"`
	FromStatus string    `json:"fromStatus"`
	ToStatus   string    `json:"toStatus"`
	Collection string    `json:"collection"`
	ActorUID   string    `json:"actorUid,omitempty"`
	ActorName  string    `json:"actorName,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}
