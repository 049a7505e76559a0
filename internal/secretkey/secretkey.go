// Package secretkey holds the process-wide key used to seal and open
// custodial secret keys (models.SealedSecret). Custodial secret keys are
// stored encrypted at rest and decrypted only into transient memory for
// signing; this package holds the key that does the decrypting, kept only
// in memory, never on disk.
package secretkey

import (
	"encoding/hex"
	"sync"

	"github.com/klaytn/kale-pool/internal/errkind"
)

var (
	mu  sync.RWMutex
	key [32]byte
	set bool
)

// Set installs the process-wide sealing key, decoded from a 64-character
// hex string (KALE_CUSTODY_KEY_HEX). Call once at process startup.
func Set(hexKey string) error {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return errkind.Wrap(errkind.KindPermanentBadRequest, err, "secretkey: decode hex")
	}
	if len(raw) != 32 {
		return errkind.New(errkind.KindPermanentBadRequest, "secretkey: key must be 32 bytes")
	}
	mu.Lock()
	defer mu.Unlock()
	copy(key[:], raw)
	set = true
	return nil
}

// Current returns the installed key. Panics if Set was never called, since
// there is no safe degraded mode for signing with a zero key.
func Current() *[32]byte {
	mu.RLock()
	defer mu.RUnlock()
	if !set {
		panic("secretkey: process custody key not configured")
	}
	out := key
	return &out
}
