package models

import "strings"

// UID is a normalized RFID tag identifier. Values built with NormalizeUID
// compare equal regardless of the case or padding the reader reported.
type UID string

// NormalizeUID trims surrounding whitespace and lower-cases s.
func NormalizeUID(s string) UID {
	return UID(strings.ToLower(strings.TrimSpace(s)))
}

// String returns the UID as a plain string.
func (u UID) String() string { return string(u) }

// NormalizeName applies the user-name normalization used by the backend.
func NormalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
