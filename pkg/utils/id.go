package utils

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateID returns an opaque prefixed identifier, e.g. "bid_2c61a7de...".
func GenerateID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
}
