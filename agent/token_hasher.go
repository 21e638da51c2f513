package main

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
)

// tokenHasher digests bearer tokens with a per-process key so the admin token
// is compared as fixed-length MACs and only its digest is kept in memory.
type tokenHasher struct {
	key []byte
}

func newTokenHasher() (tokenHasher, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return tokenHasher{}, err
	}
	return tokenHasher{key: key}, nil
}

func (h tokenHasher) sum(token string) []byte {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(token))
	return mac.Sum(nil)
}
