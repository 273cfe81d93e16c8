package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Algorithm tags a stored password digest with the routine that produced it.
// The tag travels with the digest so verification keeps working after the
// process-wide default changes.
type Algorithm string

const (
	AlgoArgon2id Algorithm = "argon2id"
	AlgoBcrypt   Algorithm = "bcrypt"
)

// Configuration for Argon2id hashing.
const (
	argonMemory      = 19 * 1024 // Memory usage in KiB (19 MiB)
	argonIterations  = 2         // Iteration count
	argonParallelism = 1         // Number of threads
	argonKeyLength   = 32        // Length of the generated hash
	argonSaltLength  = 16        // Length of the salt
)

// DefaultBcryptCost is used when Hasher.BcryptCost is unset.
const DefaultBcryptCost = 12

// ErrUnknownAlgorithm reports a digest tagged with an algorithm this build
// does not support.
var ErrUnknownAlgorithm = errors.New("cryptox: unknown password algorithm")

// Hasher produces and verifies tagged password digests. The zero value
// defaults to Argon2id with no pepper.
type Hasher struct {
	// Default selects the algorithm used for new digests.
	Default Algorithm

	// BcryptCost is the bcrypt work factor for new bcrypt digests.
	BcryptCost int

	// Pepper is appended to the password before hashing. Optional; it is
	// injected from configuration rather than read from ambient state so the
	// same Hasher can be constructed in tests without touching the filesystem.
	Pepper string
}

// Hash digests the plaintext under the default algorithm and returns the
// digest together with its algorithm tag.
func (h *Hasher) Hash(password string) (string, Algorithm, error) {
	algo := h.Default
	if algo == "" {
		algo = AlgoArgon2id
	}

	switch algo {
	case AlgoArgon2id:
		digest, err := h.hashArgon2id(password)
		return digest, AlgoArgon2id, err
	case AlgoBcrypt:
		digest, err := h.hashBcrypt(password)
		return digest, AlgoBcrypt, err
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algo)
	}
}

// Verify reports whether the plaintext matches the digest. The stored tag
// selects the verification routine. A non-matching password returns
// (false, nil); an error means the digest could not be evaluated at all.
func (h *Hasher) Verify(password, digest string, algo Algorithm) (bool, error) {
	switch algo {
	case AlgoArgon2id:
		return h.verifyArgon2id(password, digest)
	case AlgoBcrypt:
		err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(password+h.Pepper))
		if err == nil {
			return true, nil
		}
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, fmt.Errorf("cryptox: bcrypt verify: %w", err)
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algo)
	}
}

func (h *Hasher) hashArgon2id(password string) (string, error) {
	salt := make([]byte, argonSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey(
		[]byte(password+h.Pepper),
		salt,
		argonIterations,
		argonMemory,
		argonParallelism,
		argonKeyLength,
	)
	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	// PHC-style encoded string
	return fmt.Sprintf(
		"$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		argonMemory,
		argonIterations,
		argonParallelism,
		b64Salt,
		b64Hash,
	), nil
}

func (h *Hasher) hashBcrypt(password string) (string, error) {
	cost := h.BcryptCost
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password+h.Pepper), cost)
	if err != nil {
		return "", fmt.Errorf("cryptox: bcrypt hash: %w", err)
	}
	return string(out), nil
}

func (h *Hasher) verifyArgon2id(password, encodedHash string) (bool, error) {
	// Parse PHC format: $argon2id$v=19$m=X,t=Y,p=Z$salt$hash
	parts := make([]string, 0, 6)
	start := 0
	for i := range len(encodedHash) {
		if encodedHash[i] == '$' {
			parts = append(parts, encodedHash[start:i])
			start = i + 1
		}
	}
	parts = append(parts, encodedHash[start:])

	// Validate structure: ["", "argon2id", "v=19", "m=X,t=Y,p=Z", "salt", "hash"]
	if len(parts) != 6 {
		return false, errors.New("cryptox: invalid argon2id hash: expected 6 parts")
	}
	if parts[1] != "argon2id" {
		return false, errors.New("cryptox: invalid argon2id hash: wrong prefix")
	}
	if parts[2] != "v=19" {
		return false, errors.New("cryptox: invalid argon2id hash: wrong version")
	}

	var mem, iters uint32
	var par uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iters, &par); err != nil {
		return false, fmt.Errorf("cryptox: invalid argon2id hash parameters: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("cryptox: invalid argon2id hash salt: %w", err)
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("cryptox: invalid argon2id hash digest: %w", err)
	}

	computed := argon2.IDKey(
		[]byte(password+h.Pepper),
		salt,
		iters,
		mem,
		par,
		uint32(len(expected)), // #nosec G115 - digest lengths are bounded by the encoding above
	)

	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// GeneratePassword returns a random alphanumeric password suitable for
// temporary credentials issued with an invitation.
func GeneratePassword() (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 12
	password := make([]byte, length)
	for i := range password {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", fmt.Errorf("failed to generate random password: %w", err)
		}
		password[i] = charset[n.Int64()]
	}
	return string(password), nil
}
