package models

import (
	"strings"

	"github.com/gofrs/uuid"

	"github.com/Etesie/fauna-typed/pkg/constants"
)

// NewTempID returns a client-assigned identity for a document the service
// has not confirmed yet.
func NewTempID() string {
	return constants.TempIDPrefix + uuid.Must(uuid.NewV4()).String()
}

// IsTempID reports whether id was assigned by NewTempID.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, constants.TempIDPrefix)
}
