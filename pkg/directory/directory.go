// Package directory defines the read-only customer directory the engine targets against.
package directory

import (
	"context"
	"time"
)

// Directory answers customer segment questions for a shop. Results are customer IDs
// in no particular order.
type Directory interface {
	// FindCustomersByGradeOrTag returns active customers with any of the grades or any of the tags.
	FindCustomersByGradeOrTag(ctx context.Context, shopID string, grades, tags []string) ([]string, error)
	// FindDormantCustomers returns active customers with no visit in the last months, including
	// customers who never visited.
	FindDormantCustomers(ctx context.Context, shopID string, months int) ([]string, error)
	// FindRecentMessageRecipients returns customers sent a marketing message in the last days.
	FindRecentMessageRecipients(ctx context.Context, shopID string, days int) ([]string, error)
	FindActiveCustomers(ctx context.Context, shopID string) ([]string, error)
	// FindCustomersLastVisitedBetween returns active customers whose latest visit is in [from, to).
	FindCustomersLastVisitedBetween(ctx context.Context, shopID string, from, to time.Time) ([]string, error)
}
