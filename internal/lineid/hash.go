package lineid

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/conorfennell/openingdrill/internal/domain"
)

// Normalize joins the parts that make up a line's identity after cleaning each one.
// Deck and opening names are trimmed and lowercased; SAN moves are only trimmed
// because case is significant in SAN (b4 vs B4).
func Normalize(deck, opening string, side domain.Side, moves []string) string {
	normalizeName := func(part string) string {
		p := strings.ToLower(part)
		p = strings.TrimSpace(p)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return p
	}

	cleaned := make([]string, 0, len(moves))
	for _, m := range moves {
		cleaned = append(cleaned, strings.TrimSpace(m))
	}

	return strings.Join([]string{
		normalizeName(deck),
		normalizeName(opening),
		normalizeName(string(side)),
		strings.Join(cleaned, " "),
	}, "\n")
}

// Hash returns the SHA-256 of the normalized line as a hex string.
func Hash(deck, opening string, side domain.Side, moves []string) string {
	normalized := Normalize(deck, opening, side, moves)
	hashBytes := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", hashBytes)
}
