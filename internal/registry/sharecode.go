package registry

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// shareCodeAlphabet is the character set for share codes. Upper-case
// letters and digits only, matching what devices print on labels.
const shareCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// shareCodeLength is the number of characters in a share code.
const shareCodeLength = 6

// NewShareCode returns a fresh cryptographically random share code.
func NewShareCode() (string, error) {
	max := big.NewInt(int64(len(shareCodeAlphabet)))
	code := make([]byte, shareCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generating share code: %w", err)
		}
		code[i] = shareCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}
