package credential

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinPasswordLength is the platform-wide floor for new passwords.
	MinPasswordLength = 8

	temporaryLength = 12
)

const (
	lowerAlphabet   = "abcdefghijklmnopqrstuvwxyz"
	upperAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitAlphabet   = "0123456789"
	specialAlphabet = "!@#$%^&*()-_=+[]{}<>?"
)

// Strength violation reasons, returned all at once so callers can render
// complete feedback instead of one rule per round trip.
const (
	ViolationTooShort       = "password must be at least 8 characters"
	ViolationMissingLower   = "password must contain a lowercase letter"
	ViolationMissingUpper   = "password must contain an uppercase letter"
	ViolationMissingDigit   = "password must contain a digit"
	ViolationMissingSpecial = "password must contain a special character"
)

// Manager hashes, verifies and generates passwords.
type Manager struct {
	cost int
}

// NewManager creates a credential manager with the given bcrypt cost.
func NewManager(cost int) *Manager {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Manager{cost: cost}
}

// Hash applies a salted adaptive hash to the password.
func (m *Manager) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), m.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether password matches the stored hash. Mismatched or
// malformed input never produces an error, only false.
func (m *Manager) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidateStrength checks the password against the credential policy and
// returns every violated rule, not just the first.
func (m *Manager) ValidateStrength(password string) []string {
	var violations []string
	if len(password) < MinPasswordLength {
		violations = append(violations, ViolationTooShort)
	}

	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSpecial = true
		}
	}

	if !hasLower {
		violations = append(violations, ViolationMissingLower)
	}
	if !hasUpper {
		violations = append(violations, ViolationMissingUpper)
	}
	if !hasDigit {
		violations = append(violations, ViolationMissingDigit)
	}
	if !hasSpecial {
		violations = append(violations, ViolationMissingSpecial)
	}
	return violations
}

// GenerateTemporary produces a random password that satisfies
// ValidateStrength by construction: one character forced from each class,
// the remainder drawn from the combined alphabet, then the whole string
// permuted. All randomness comes from crypto/rand.
func (m *Manager) GenerateTemporary() (string, error) {
	combined := lowerAlphabet + upperAlphabet + digitAlphabet + specialAlphabet

	chars := make([]byte, 0, temporaryLength)
	for _, alphabet := range []string{lowerAlphabet, upperAlphabet, digitAlphabet, specialAlphabet} {
		c, err := randomByte(alphabet)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}
	for len(chars) < temporaryLength {
		c, err := randomByte(combined)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}

	// Fisher-Yates so the forced class characters do not sit at fixed positions.
	for i := len(chars) - 1; i > 0; i-- {
		j, err := randomIndex(i + 1)
		if err != nil {
			return "", err
		}
		chars[i], chars[j] = chars[j], chars[i]
	}

	return string(chars), nil
}

func randomByte(alphabet string) (byte, error) {
	i, err := randomIndex(len(alphabet))
	if err != nil {
		return 0, err
	}
	return alphabet[i], nil
}

func randomIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("read random: %w", err)
	}
	return int(v.Int64()), nil
}
