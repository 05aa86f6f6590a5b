// Package otp generates the one-time passcodes used for email verification
// and password recovery.
package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Digits is the fixed passcode length shared by every issuance point.
const Digits = 6

var codeSpace = big.NewInt(1_000_000)

// NewCode returns a uniformly distributed 6-digit decimal code drawn from
// crypto/rand. Leading zeros are preserved.
func NewCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("failed to generate passcode: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
