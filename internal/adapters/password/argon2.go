// Package password hashes account passwords with argon2id in PHC string form.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/medibook/clinic-gate/internal/errors"
	"golang.org/x/crypto/argon2"
)

const (
	algorithmID   = "argon2id"
	minPassLength = 8
	minSaltLength = 16
)

// ErrTooShort is returned by Hash for passwords under the minimum length.
var ErrTooShort error = apperrors.ValidationField("password", fmt.Sprintf("password must be at least %d characters", minPassLength))

// Params are the argon2id cost parameters.
type Params struct {
	MemoryKB    uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams follow the RFC 9106 second recommended option.
func DefaultParams() Params {
	return Params{MemoryKB: 64 * 1024, Time: 3, Parallelism: 4, SaltLength: 16, KeyLength: 32}
}

// Argon2Hasher implements ports.PasswordHasher.
type Argon2Hasher struct {
	params Params
	dummy  string
}

// NewArgon2Hasher validates params and returns a hasher.
func NewArgon2Hasher(p Params) (*Argon2Hasher, error) {
	if p.MemoryKB < 8*1024 {
		return nil, errors.New("argon2 memory must be at least 8 MiB")
	}
	if p.Time < 1 || p.Parallelism < 1 {
		return nil, errors.New("argon2 time and parallelism must be positive")
	}
	if p.SaltLength < minSaltLength || p.KeyLength < 16 {
		return nil, errors.New("argon2 salt and key length must be at least 16 bytes")
	}
	h := &Argon2Hasher{params: p}
	dummy, err := h.encode(make([]byte, p.SaltLength), "clinic-gate-dummy-password")
	if err != nil {
		return nil, err
	}
	h.dummy = dummy
	return h, nil
}

// Hash returns a PHC-encoded argon2id hash of password.
func (h *Argon2Hasher) Hash(password string) (string, error) {
	if len([]rune(password)) < minPassLength {
		return "", ErrTooShort
	}
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return h.encode(salt, password)
}

func (h *Argon2Hasher) encode(salt []byte, password string) (string, error) {
	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.MemoryKB, h.params.Parallelism, h.params.KeyLength)
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version,
		h.params.MemoryKB, h.params.Time, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encoded. Malformed hashes are errors.
func (h *Argon2Hasher) Verify(password, encoded string) (bool, error) {
	ph, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	key := argon2.IDKey([]byte(password), ph.salt, ph.time, ph.memory, ph.parallelism, uint32(len(ph.key)))
	return subtle.ConstantTimeCompare(key, ph.key) == 1, nil
}

// Burn spends the same work as a real Verify. Login calls it for unknown
// accounts so response timing does not reveal which emails exist.
func (h *Argon2Hasher) Burn(password string) {
	_, _ = h.Verify(password, h.dummy)
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func parsePHC(encoded string) (phc, error) {
	var out phc
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return out, errors.New("invalid argon2id hash format")
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return out, errors.New("unsupported argon2 version")
	}
	for _, kv := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return out, errors.New("invalid argon2 parameters")
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return out, fmt.Errorf("invalid argon2 parameter %q", k)
		}
		switch k {
		case "m":
			out.memory = uint32(n)
		case "t":
			out.time = uint32(n)
		case "p":
			if n > 255 {
				return out, errors.New("invalid argon2 parallelism")
			}
			out.parallelism = uint8(n)
		default:
			return out, fmt.Errorf("unknown argon2 parameter %q", k)
		}
	}
	if out.memory == 0 || out.time == 0 || out.parallelism == 0 {
		return out, errors.New("missing argon2 parameters")
	}
	var err error
	if out.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(out.salt) < minSaltLength {
		return out, errors.New("invalid argon2 salt")
	}
	if out.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(out.key) < 16 {
		return out, errors.New("invalid argon2 key")
	}
	return out, nil
}
