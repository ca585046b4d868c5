package deletion

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

const (
	undoTokenBytes = 32
	// UndoTokenLength is the length of an encoded undo token.
	UndoTokenLength = undoTokenBytes * 2
)

// GenerateUndoToken returns 256 bits from crypto/rand, hex encoded.
func GenerateUndoToken() (string, error) {
	b := make([]byte, undoTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating undo token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// wellFormedToken rejects values that could never have been issued, before
// they reach the store.
func wellFormedToken(token string) bool {
	if len(token) != UndoTokenLength {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}

func tokensEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
