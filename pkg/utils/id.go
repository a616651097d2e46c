package utils

import (
	"github.com/google/uuid"

	"scenefeed/pkg/models"
)

// GenLocalID returns a client-generated id. The local prefix marks the
// row as not-yet-synced so merges never delete it and server-scoped
// views never show it.
func GenLocalID() string {
	return models.LocalIDPrefix + uuid.NewString()
}
