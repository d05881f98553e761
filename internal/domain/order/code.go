package order

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// maxCodeAttempts bounds order code regeneration on collisions.
const maxCodeAttempts = 5

// NewCode returns a human-readable order code ORD-YYMMDD-NNNN. Codes are
// not unique by construction; the store enforces uniqueness.
func NewCode(now time.Time) string {
	return fmt.Sprintf("ORD-%s-%04d", now.UTC().Format("060102"), rand.IntN(10000))
}
