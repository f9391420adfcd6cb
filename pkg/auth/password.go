package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/crypto/argon2"
	"golang.org/x/sync/semaphore"
)

const (
	MinPasswordLen = 8
	MaxPasswordLen = 128

	algorithmID = "argon2id"

	minTimeCost    = 1
	maxTimeCost    = 100
	minMemoryKiB   = 1024
	maxMemoryKiB   = 1 << 24
	minParallelism = 1
	maxParallelism = 255
	minKeyLength   = 16
	maxKeyLength   = 512
	minSaltLength  = 16
)

// ErrEmptyPassword is returned by Hash for an empty plaintext
var ErrEmptyPassword = errors.New("password cannot be empty")

// Policy is the argon2id cost policy. MemoryKiB is expressed in kibibytes.
type Policy struct {
	TimeCost    uint32
	MemoryKiB   uint32
	Parallelism uint8
	KeyLength   uint32
	SaltLength  uint32
}

// DefaultPolicy returns the policy used when no overrides are configured
func DefaultPolicy() Policy {
	return Policy{
		TimeCost:    3,
		MemoryKiB:   64 * 1024,
		Parallelism: 2,
		KeyLength:   32,
		SaltLength:  16,
	}
}

// Validate checks every cost parameter against its allowed range
func (p Policy) Validate() error {
	if p.TimeCost < minTimeCost || p.TimeCost > maxTimeCost {
		return fmt.Errorf("password time cost must be in [%d,%d], got %d", minTimeCost, maxTimeCost, p.TimeCost)
	}
	if p.MemoryKiB < minMemoryKiB || p.MemoryKiB > maxMemoryKiB {
		return fmt.Errorf("password memory cost must be in [%d,%d] KiB, got %d", minMemoryKiB, maxMemoryKiB, p.MemoryKiB)
	}
	// uint8 caps the upper bound at 255
	if p.Parallelism < minParallelism {
		return fmt.Errorf("password parallelism must be in [%d,%d], got %d", minParallelism, maxParallelism, p.Parallelism)
	}
	if p.KeyLength < minKeyLength || p.KeyLength > maxKeyLength {
		return fmt.Errorf("password key length must be in [%d,%d], got %d", minKeyLength, maxKeyLength, p.KeyLength)
	}
	if p.SaltLength < minSaltLength {
		return fmt.Errorf("password salt length must be >= %d, got %d", minSaltLength, p.SaltLength)
	}
	return nil
}

// Hasher derives and verifies argon2id credentials. Derivations run behind a
// weighted semaphore so a burst of logins cannot occupy every CPU.
type Hasher struct {
	policy Policy
	slots  *semaphore.Weighted
}

// NewHasher validates the policy and sizes the worker pool. workers <= 0 means
// half the available CPUs, at least one.
func NewHasher(policy Policy, workers int) (*Hasher, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = runtime.NumCPU() / 2
		if workers < 1 {
			workers = 1
		}
	}
	return &Hasher{
		policy: policy,
		slots:  semaphore.NewWeighted(int64(workers)),
	}, nil
}

// Policy returns the active cost policy
func (h *Hasher) Policy() Policy {
	return h.policy
}

// Hash derives a PHC-encoded argon2id credential from plaintext
func (h *Hasher) Hash(ctx context.Context, plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.policy.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	if err := h.slots.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("hasher unavailable: %w", err)
	}
	key := argon2.IDKey([]byte(plaintext), salt, h.policy.TimeCost, h.policy.MemoryKiB, h.policy.Parallelism, h.policy.KeyLength)
	h.slots.Release(1)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.policy.MemoryKiB,
		h.policy.TimeCost,
		h.policy.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether plaintext matches the encoded credential. Empty input,
// a foreign algorithm tag, malformed encoding and a cancelled context all
// resolve to false.
func (h *Hasher) Verify(ctx context.Context, plaintext, encoded string) bool {
	if plaintext == "" || encoded == "" {
		return false
	}

	parsed, err := parsePHC(encoded)
	if err != nil {
		return false
	}

	if err := h.slots.Acquire(ctx, 1); err != nil {
		return false
	}
	computed := argon2.IDKey([]byte(plaintext), parsed.salt, parsed.time, parsed.memory, parsed.parallelism, uint32(len(parsed.key)))
	h.slots.Release(1)

	return subtle.ConstantTimeCompare(computed, parsed.key) == 1
}

// NeedsRehash reports whether encoded was produced under a weaker policy
func (h *Hasher) NeedsRehash(encoded string) bool {
	parsed, err := parsePHC(encoded)
	if err != nil {
		return true
	}
	return parsed.memory < h.policy.MemoryKiB ||
		parsed.time < h.policy.TimeCost ||
		parsed.parallelism < h.policy.Parallelism ||
		uint32(len(parsed.key)) != h.policy.KeyLength
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func parsePHC(encoded string) (*phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, errors.New("invalid PHC format")
	}
	if parts[1] != algorithmID {
		return nil, errors.New("unsupported algorithm")
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || !strings.HasPrefix(parts[2], "v=") || version != argon2.Version {
		return nil, errors.New("unsupported argon2 version")
	}

	var out phc
	var seen int
	for _, pair := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, errors.New("invalid parameter entry")
		}
		switch k {
		case "m":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || n < minMemoryKiB || n > maxMemoryKiB {
				return nil, errors.New("invalid memory parameter")
			}
			out.memory = uint32(n)
		case "t":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || n < minTimeCost || n > maxTimeCost {
				return nil, errors.New("invalid time parameter")
			}
			out.time = uint32(n)
		case "p":
			n, err := strconv.ParseUint(v, 10, 8)
			if err != nil || n < minParallelism {
				return nil, errors.New("invalid parallelism parameter")
			}
			out.parallelism = uint8(n)
		default:
			return nil, errors.New("unsupported parameter")
		}
		seen++
	}
	if seen != 3 || out.memory == 0 || out.time == 0 || out.parallelism == 0 {
		return nil, errors.New("missing parameters")
	}

	out.salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(out.salt) < minSaltLength {
		return nil, errors.New("invalid salt")
	}
	out.key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(out.key) < minKeyLength || len(out.key) > maxKeyLength {
		return nil, errors.New("invalid hash")
	}

	return &out, nil
}

// PasswordValidationError holds validation error details (internal use only)
type PasswordValidationError struct {
	Errors []string
}

func (e *PasswordValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "password validation failed"
	}
	return "invalid password"
}

// Common weak passwords to reject
var commonPasswords = map[string]bool{
	"password":    true,
	"password1":   true,
	"password123": true,
	"12345678":    true,
	"123456789":   true,
	"qwerty123":   true,
	"qwertyuiop":  true,
	"abcd1234":    true,
	"letmein1":    true,
	"welcome1":    true,
	"welcome123":  true,
	"passw0rd":    true,
	"iloveyou1":   true,
	"trustno1":    true,
	"admin123":    true,
	"sunshine1":   true,
	"football1":   true,
	"monkey123":   true,
	"dragon123":   true,
}

// ValidatePassword enforces length bounds, at least one letter and one digit,
// and rejects common passwords case-insensitively.
func ValidatePassword(password string) error {
	errs := make([]string, 0)

	length := len([]rune(password))
	if length < MinPasswordLen {
		errs = append(errs, fmt.Sprintf("must be at least %d characters", MinPasswordLen))
	}
	if length > MaxPasswordLen {
		errs = append(errs, fmt.Sprintf("must be at most %d characters", MaxPasswordLen))
	}

	hasLetter := false
	hasDigit := false
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter {
		errs = append(errs, "must contain at least one letter")
	}
	if !hasDigit {
		errs = append(errs, "must contain at least one digit")
	}

	if commonPasswords[strings.ToLower(password)] {
		errs = append(errs, "is too common, please choose a more unique password")
	}

	if len(errs) > 0 {
		return &PasswordValidationError{Errors: errs}
	}
	return nil
}
