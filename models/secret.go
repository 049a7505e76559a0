package models

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/nacl/secretbox"
)

// SealedSecret is a custodial secret key encrypted at rest using
// nacl/secretbox, under a process-wide key held only in memory and never
// persisted alongside the ciphertext.
type SealedSecret struct {
	Nonce      [24]byte
	Ciphertext []byte
}

// SealSecret encrypts plaintext (the raw custodial secret key bytes) under
// key. The nonce is generated fresh per call so the same plaintext never
// produces the same ciphertext twice.
func SealSecret(key *[32]byte, plaintext []byte) (SealedSecret, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return SealedSecret{}, err
	}
	ct := secretbox.Seal(nil, plaintext, &nonce, key)
	return SealedSecret{Nonce: nonce, Ciphertext: ct}, nil
}

// Open decrypts the secret back into its plaintext custodial key bytes. The
// result must be zeroed by the caller as soon as signing is done; it is
// never written back to persistence.
func (s SealedSecret) Open(key *[32]byte) ([]byte, error) {
	plain, ok := secretbox.Open(nil, s.Ciphertext, &s.Nonce, key)
	if !ok {
		return nil, errors.New("models: secret decryption failed (wrong key or corrupt ciphertext)")
	}
	return plain, nil
}

// Marshal packs the sealed secret into a single column-friendly blob
// (nonce || ciphertext) for the Farmer.CustodialSecretKey database column.
func (s SealedSecret) Marshal() []byte {
	out := make([]byte, 24+len(s.Ciphertext))
	copy(out, s.Nonce[:])
	copy(out[24:], s.Ciphertext)
	return out
}

// UnmarshalSealedSecret is the inverse of Marshal.
func UnmarshalSealedSecret(blob []byte) (SealedSecret, error) {
	if len(blob) < 24 {
		return SealedSecret{}, errors.New("models: sealed secret blob too short")
	}
	var s SealedSecret
	copy(s.Nonce[:], blob[:24])
	s.Ciphertext = append([]byte(nil), blob[24:]...)
	return s, nil
}
