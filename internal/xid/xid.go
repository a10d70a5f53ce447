package xid

import (
	"fmt"

	"github.com/google/uuid"
)

// New returns a prefixed document id, e.g. "sale-6ba7b810-...". The prefix
// keeps ids self-describing in logs and snapshot files.
func New(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}
