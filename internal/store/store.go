package store

import (
	"context"
	"strings"

	"stealthcompany.com/complaints/internal/cfpb"
)

// Store is the analytical database the pipeline appends complaints into.
// Writes are insert-or-ignore keyed on complaint_id, so overlapping fetches
// and re-run date ranges can never produce duplicate records.
type Store interface {
	// EnsureEntity prepares the namespaced destination for an entity's
	// complaints. Safe to call repeatedly.
	EnsureEntity(ctx context.Context, entity string) error

	// InsertComplaints appends records, ignoring any complaint_id already
	// present. Records without a complaint_id are counted as ignored.
	InsertComplaints(ctx context.Context, entity string, records []cfpb.Record) (inserted, ignored int, err error)

	// CountComplaints reports how many complaints are stored for an entity.
	CountComplaints(ctx context.Context, entity string) (int64, error)

	Close() error
}

// EntityKey normalizes a company name into an identifier usable in table and
// document names ("U.S. Bank" -> "u_s_bank").
func EntityKey(entity string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(strings.TrimSpace(entity)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
		default:
			pending = true
		}
	}
	return b.String()
}
