package tenant

import "time"

// Status is the lifecycle state of a tenant.
type Status string

const (
	StatusActive          Status = "active"
	StatusSuspended       Status = "suspended"
	StatusPendingDeletion Status = "pending_deletion"
	StatusDeleted         Status = "deleted"
)

func (s Status) String() string {
	return string(s)
}

// Record is the control-plane view of a tenant.
type Record struct {
	ID        ID
	Name      string
	Tier      Tier
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsOperational reports whether requests may be served for the tenant.
// Only active tenants are operational.
func (r *Record) IsOperational() bool {
	return r.Status == StatusActive
}
