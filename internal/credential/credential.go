// Package credential handles card numbers and PINs: generation, format
// policy and how PINs are stored and compared.
package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// CardNumberLength is the number of digits in a generated card number.
	CardNumberLength = 16
	// PINLength is the number of digits in a generated PIN.
	PINLength = 4

	SchemePlain  = "plain"
	SchemeBcrypt = "bcrypt"
)

var (
	// ErrPINFormat is returned when a PIN does not satisfy the Policy.
	ErrPINFormat = errors.New("PIN does not meet format requirements")

	// ErrUnknownScheme is returned by SchemeFor for unsupported names.
	ErrUnknownScheme = errors.New("unknown PIN scheme")
)

// Scheme turns a PIN into its stored form and checks candidates against it.
type Scheme interface {
	Seal(pin string) (string, error)
	Match(stored, candidate string) bool
}

// PlainScheme stores PINs as entered. Comparison runs in constant time.
type PlainScheme struct{}

func (PlainScheme) Seal(pin string) (string, error) {
	return pin, nil
}

func (PlainScheme) Match(stored, candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1
}

// BcryptScheme stores bcrypt hashes of PINs.
type BcryptScheme struct {
	Cost int
}

func (s BcryptScheme) Seal(pin string) (string, error) {
	cost := s.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (BcryptScheme) Match(stored, candidate string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(candidate)) == nil
}

// SchemeFor resolves a scheme by its configuration name.
func SchemeFor(name string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", SchemePlain:
		return PlainScheme{}, nil
	case SchemeBcrypt:
		return BcryptScheme{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, name)
	}
}

// Policy constrains the format of PINs chosen by account holders. The zero
// value only requires a non-empty PIN.
type Policy struct {
	MinLength  int
	DigitsOnly bool
}

// Validate reports whether pin is acceptable.
func (p Policy) Validate(pin string) error {
	if pin == "" {
		return fmt.Errorf("%w: empty", ErrPINFormat)
	}
	if len(pin) < p.MinLength {
		return fmt.Errorf("%w: at least %d characters", ErrPINFormat, p.MinLength)
	}
	if p.DigitsOnly && !allDigits(pin) {
		return fmt.Errorf("%w: digits only", ErrPINFormat)
	}
	return nil
}

// GenerateCardNumber returns a random 16 digit card number.
func GenerateCardNumber() (string, error) {
	return randomDigits(CardNumberLength)
}

// GeneratePIN returns a random 4 digit PIN.
func GeneratePIN() (string, error) {
	return randomDigits(PINLength)
}

func randomDigits(n int) (string, error) {
	var b strings.Builder
	b.Grow(n)
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
