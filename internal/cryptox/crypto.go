// Package cryptox holds the credential codec: one-way password hashing and
// the timestamp-based salt source used when a credential is (re)generated.
package cryptox

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/argon2"
)

// HashLength is the length of every encoded digest produced by this package.
const HashLength = 64

// Hasher derives a hex-encoded digest from a password and a salt.
type Hasher interface {
	DeriveHash(password string, salt int64) string
}

// SHA256Hasher computes hex(sha256(password + "+" + salt)).
type SHA256Hasher struct{}

func (SHA256Hasher) DeriveHash(password string, salt int64) string {
	sum := sha256.Sum256([]byte(password + "+" + strconv.FormatInt(salt, 10)))
	return hex.EncodeToString(sum[:])
}

// Argon2Hasher derives a 32 byte argon2id key, using the decimal salt as the
// argon2 salt.
type Argon2Hasher struct {
	Time    uint32
	Memory  uint32
	Threads uint8
}

// DefaultArgon2 mirrors the parameters used for key derivation elsewhere.
var DefaultArgon2 = Argon2Hasher{Time: 1, Memory: 64 * 1024, Threads: 4}

func (h Argon2Hasher) DeriveHash(password string, salt int64) string {
	key := argon2.IDKey([]byte(password), []byte(strconv.FormatInt(salt, 10)), h.Time, h.Memory, h.Threads, 32)
	return hex.EncodeToString(key)
}

// NewHasher returns the hasher registered under name.
func NewHasher(name string) (Hasher, error) {
	switch name {
	case "", "sha256":
		return SHA256Hasher{}, nil
	case "argon2id":
		return DefaultArgon2, nil
	default:
		return nil, fmt.Errorf("unknown password hasher %q", name)
	}
}

// SaltSource hands out microsecond timestamps that never repeat within the
// process, even when called faster than the clock advances.
type SaltSource struct {
	last atomic.Int64
	now  func() time.Time
}

func NewSaltSource(now func() time.Time) *SaltSource {
	if now == nil {
		now = time.Now
	}
	return &SaltSource{now: now}
}

func (s *SaltSource) Next() int64 {
	for {
		last := s.last.Load()
		next := s.now().UTC().UnixMicro()
		if next <= last {
			next = last + 1
		}
		if s.last.CompareAndSwap(last, next) {
			return next
		}
	}
}

// Codec pairs a Hasher with a SaltSource.
type Codec struct {
	hasher Hasher
	salts  *SaltSource
}

func NewCodec(h Hasher, salts *SaltSource) *Codec {
	if h == nil {
		h = SHA256Hasher{}
	}
	if salts == nil {
		salts = NewSaltSource(nil)
	}
	return &Codec{hasher: h, salts: salts}
}

func (c *Codec) DeriveHash(password string, salt int64) string {
	return c.hasher.DeriveHash(password, salt)
}

func (c *Codec) NewSalt() int64 {
	return c.salts.Next()
}
