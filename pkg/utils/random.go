package utils

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
)

const (
	charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	ReferralCodePrefix = "REF_"
	referralCodeLength = 12
)

// CodeGenerator produces candidate referral codes. Uniqueness is the store's
// job; generators only need to make collisions unlikely.
type CodeGenerator interface {
	Generate() string
}

// CodeGeneratorFunc adapts a plain function, mostly for tests.
type CodeGeneratorFunc func() string

func (f CodeGeneratorFunc) Generate() string { return f() }

type RandomCodeGenerator struct{}

// Generate returns "REF_" followed by 12 upper-case alphanumerics.
func (RandomCodeGenerator) Generate() string {
	return ReferralCodePrefix + GenerateShortCode(referralCodeLength)
}

// GenerateShortCode generates a random string of fixed length
func GenerateShortCode(length int) string {
	b := make([]byte, length)
	max := big.NewInt(int64(len(charset)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		b[i] = charset[n.Int64()]
	}
	return string(b)
}

// NewEventID returns a UUID string identifying one published event.
func NewEventID() string {
	return uuid.NewString()
}
