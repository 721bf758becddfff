package identity

import (
	"errors"
	"strings"
	"unicode/utf16"
)

var ErrEmptyDisplayName = errors.New("display name is required")

// Participant is fixed at form submission and never changes for the lifetime of a session.
type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
}

func New(displayName string) (Participant, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return Participant{}, ErrEmptyDisplayName
	}
	return Participant{ID: Normalize(name), DisplayName: name}, nil
}

// Normalize lower-cases [A-Za-z0-9] and writes one '_' per UTF-16 code unit of
// anything else, so a character outside the BMP becomes "__". IDs then match
// those derived by web clients from the same display name.
func Normalize(displayName string) string {
	var b strings.Builder
	b.Grow(len(displayName))
	for _, r := range displayName {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			for range max(utf16.RuneLen(r), 1) {
				b.WriteByte('_')
			}
		}
	}
	return b.String()
}
