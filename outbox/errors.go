package outbox

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/kbukum/resilience-core/database"
)

var (
	// ErrNotFound is returned when no item matches the tenant and id.
	ErrNotFound = errors.New("outbox item not found")

	// ErrInvalidState is returned when a transition's expected state does not
	// hold: replaying a non-dead item, or marking an item whose claim was lost.
	ErrInvalidState = errors.New("outbox item in invalid state")

	// ErrInvalidItem is returned by Enqueue for malformed input.
	ErrInvalidItem = errors.New("invalid outbox item")
)

// storeError converts a database error into a retryable AppError so callers
// can tell store unavailability apart from domain errors.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("outbox %s: %w", op, database.FromDatabase(err, "outbox item"))
}
