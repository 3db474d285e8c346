package util

import (
	"math/rand"
	"strings"
)

// GenerateRandomHex generates a random hexadecimal string of the given
// length. Uses math/rand; not for cryptographic purposes.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}
	const hexChars = "0123456789abcdef"
	var builder strings.Builder
	builder.Grow(length)
	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[rand.Intn(16)])
	}
	return builder.String()
}

// GenerateRandomAlphaNumeric generates a random alphanumeric string of the
// given length.
func GenerateRandomAlphaNumeric(length int) string {
	if length <= 0 {
		return ""
	}
	const chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	var builder strings.Builder
	builder.Grow(length)
	for i := 0; i < length; i++ {
		builder.WriteByte(chars[rand.Intn(len(chars))])
	}
	return builder.String()
}

// GenerateAccessCode generates a short alphanumeric code used to admit
// respondents to the questionnaire.
func GenerateAccessCode() string {
	return GenerateRandomAlphaNumeric(8)
}
