package lease

import "github.com/flowdns/flowdns/internal/model"

// EventType classifies a lease lifecycle transition. internal/dnsupdate
// subscribes to exactly this set to keep DNS in sync with the lease table.
type EventType string

const (
	EventCreated  EventType = "created"
	EventRenewed  EventType = "renewed"
	EventReleased EventType = "released"
	EventExpired  EventType = "expired"
)

// Event is published on Manager.Events whenever a lease transitions in a
// way that requires a DNS update. Declined leases are not published here:
// a decline only opens an allocation cooldown, it does not by itself
// affect DNS, which still points at whatever record the prior Created or
// Renewed event installed.
type Event struct {
	Type       EventType
	Lease      model.Lease
	DomainName string
}
