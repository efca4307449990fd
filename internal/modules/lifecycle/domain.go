// README: Domain configuration (collections, statuses, completion rules) and status normalisation.
package lifecycle

import (
	"sort"
	"strings"
)

type Domain string

const (
	DomainEstoreOrders Domain = "estore-orders"
	DomainHireSkills   Domain = "hire-skills"
	DomainPickDrop     Domain = "pick-drop"
)

// Canonical terminal values. Stored terminal statuses always use these.
const (
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

const StatusPending = "Pending"

type TerminalKind string

const (
	KindCompleted TerminalKind = "completed"
	KindCancelled TerminalKind = "cancelled"
)

// DomainConfig is the static collection mapping and status allowlist of one domain.
type DomainConfig struct {
	Domain        Domain
	Name          string
	Ongoing       string
	Completed     string
	Cancelled     string
	InitialStatus string
	// ActiveStatuses holds the display casing of every non-terminal status.
	ActiveStatuses []string
	// RequiredFields must be present on creation.
	RequiredFields []string
	// RequiresDeliveryCode gates completion on the stored deliveryCode.
	RequiresDeliveryCode bool
	// RequiresEarnings gates completion on platform fee and worker earning.
	RequiresEarnings bool
}

var domains = map[Domain]DomainConfig{
	DomainEstoreOrders: {
		Domain:               DomainEstoreOrders,
		Name:                 "Estore Orders",
		Ongoing:              "ongoingOrders",
		Completed:            "orderHistory",
		Cancelled:            "cancelledOrders",
		InitialStatus:        StatusPending,
		ActiveStatuses:       []string{StatusPending, "Processing", "Out for Delivery", "Delivering Today"},
		RequiredFields:       []string{"customer"},
		RequiresDeliveryCode: true,
	},
	DomainHireSkills: {
		Domain:           DomainHireSkills,
		Name:             "Hire Skills",
		Ongoing:          "hireSkillsRequests",
		Completed:        "hireSkillsHistory",
		Cancelled:        "hireSkillsCancelled",
		InitialStatus:    StatusPending,
		ActiveStatuses:   []string{StatusPending, "Worker Assigned", "Worker Coming Today", "In Progress"},
		RequiredFields:   []string{"customer", "skill"},
		RequiresEarnings: true,
	},
	DomainPickDrop: {
		Domain:               DomainPickDrop,
		Name:                 "Pick & Drop",
		Ongoing:              "pickDropRequests",
		Completed:            "pickDropHistory",
		Cancelled:            "pickDropCancelled",
		InitialStatus:        StatusPending,
		ActiveStatuses:       []string{StatusPending, "Out for Delivery", "Delivering Today"},
		RequiredFields:       []string{"senderLocation", "receiverLocation"},
		RequiresDeliveryCode: true,
	},
}

// LookupDomain resolves a URL slug to its configuration.
func LookupDomain(slug string) (DomainConfig, error) {
	cfg, ok := domains[Domain(strings.ToLower(strings.TrimSpace(slug)))]
	if !ok {
		return DomainConfig{}, ErrUnknownDomain
	}
	return cfg, nil
}

// Domains returns every configured domain in a stable order.
func Domains() []DomainConfig {
	out := make([]DomainConfig, 0, len(domains))
	for _, cfg := range domains {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out
}

// NormalizeStatus lower-cases and trims a status for comparison only.
func NormalizeStatus(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// IsTerminal reports whether a status names one of the terminal intents.
func IsTerminal(raw string) bool {
	s := NormalizeStatus(raw)
	return s == StatusCompleted || s == StatusCancelled
}

// ActiveStatus returns the display casing of a configured non-terminal status.
func (c DomainConfig) ActiveStatus(raw string) (string, bool) {
	want := NormalizeStatus(raw)
	for _, s := range c.ActiveStatuses {
		if NormalizeStatus(s) == want {
			return s, true
		}
	}
	return "", false
}

// TerminalCollection maps a terminal kind to its destination collection.
func (c DomainConfig) TerminalCollection(kind TerminalKind) (string, bool) {
	switch kind {
	case KindCompleted:
		return c.Completed, true
	case KindCancelled:
		return c.Cancelled, true
	}
	return "", false
}
