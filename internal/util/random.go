// Package util provides utility functions shared across the assistant.
package util

import (
	"math/rand/v2"
	"strings"
)

// GenerateRandomID generates a random ID with the specified prefix and length.
// The returned ID will be in the format: "{prefix}{random_string}".
func GenerateRandomID(prefix string, length int) string {
	return prefix + GenerateRandomUpperAlphaNumeric(length)
}

// GenerateRandomUpperAlphaNumeric generates a random string of uppercase
// letters and digits. Uses math/rand/v2; these IDs are shareable identifiers,
// not secrets.
func GenerateRandomUpperAlphaNumeric(length int) string {
	if length <= 0 {
		return ""
	}

	const chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		builder.WriteByte(chars[rand.IntN(len(chars))])
	}

	return builder.String()
}

// GenerateBookingCode generates a human-shareable booking code with the IVX
// prefix followed by 6 uppercase alphanumerics, e.g. "IVX7F3K9Q".
func GenerateBookingCode() string {
	return GenerateRandomID("IVX", 6)
}
