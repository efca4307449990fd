// README: Opaque record identifiers.
package types

import (
	"strings"

	"github.com/google/uuid"
)

type ID string

// NewID returns a 32-char hex identifier, the same shape the HTTP layer accepts.
func NewID() ID {
	return ID(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

func (id ID) String() string {
	return string(id)
}
