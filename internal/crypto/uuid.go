package crypto

import (
	"github.com/google/uuid"
)

// NewUUIDv7 generates a time-ordered UUID v7, used for peer and relay ids.
func NewUUIDv7() (uuid.UUID, error) {
	return uuid.NewV7()
}
