package services

import (
	"strconv"
	"strings"
	"unicode/utf16"
)

// ParticipantIDPrefix tags generated research IDs. The format follows the
// CANDIDATE-ID scheme used for tagging subjects without storing their names.
const ParticipantIDPrefix = "CANDIDATE"

// NormalizeName trims, lowercases and collapses internal whitespace runs so
// that casing and spacing variants of the same name hash identically.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// GenerateParticipantID derives a deterministic research ID from a name.
// The name itself is never persisted; only the ID is. Returns ok=false for
// empty or whitespace-only input. The hash is a 32-bit rolling hash, not
// collision-resistant; it only needs to be stable and well spread.
func GenerateParticipantID(name string) (string, bool) {
	normalized := NormalizeName(name)
	if normalized == "" {
		return "", false
	}

	var h int32
	for _, c := range utf16.Encode([]rune(normalized)) {
		h = (h << 5) - h + int32(c)
	}

	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	encoded := strings.ToUpper(strconv.FormatInt(abs, 36))
	if pad := 8 - len(encoded); pad > 0 {
		encoded = strings.Repeat("0", pad) + encoded
	}
	return ParticipantIDPrefix + "-" + encoded[:4] + "-" + encoded[4:8], true
}

// VerifyParticipantID recomputes the ID for name and compares it with a
// previously stored one. Callers keep the normalized name locally to make
// this check possible, which is equivalent to storing the name in plain
// text on the client; a known privacy caveat of the scheme.
func VerifyParticipantID(name, storedID string) bool {
	if storedID == "" {
		return false
	}
	generated, ok := GenerateParticipantID(name)
	return ok && generated == storedID
}
