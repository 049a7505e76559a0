package models

import uuid "github.com/satori/go.uuid"

// ID is the opaque UUID type used for every entity key.
type ID = uuid.UUID

// NewID mints a fresh random entity identifier.
func NewID() ID {
	id, err := uuid.NewV4()
	if err != nil {
		// satori/go.uuid only fails to read crypto/rand, which we treat as
		// fatal: there is no sane degraded mode for duplicate entity ids.
		panic("models: failed to generate uuid: " + err.Error())
	}
	return id
}

// ZeroID is the nil UUID, used as a sentinel for "no reference".
var ZeroID ID

// IDFromString parses the canonical UUID text form used on the wire.
func IDFromString(s string) (ID, error) {
	return uuid.FromString(s)
}
