package libsys

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"unicode"
)

const scaLength = 62

// ValidateSca checks that the scramble alphabet is exactly 62 distinct ASCII
// alphanumeric characters.
func ValidateSca(sca string) error {
	if len(sca) != scaLength {
		return fmt.Errorf("scramble alphabet has %d characters, expected %d", len(sca), scaLength)
	}
	var seen [128]bool
	for i := 0; i < len(sca); i++ {
		c := sca[i]
		if c >= 128 || !(unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c))) {
			return fmt.Errorf("scramble alphabet contains %q at %d", c, i)
		}
		if seen[c] {
			return fmt.Errorf("scramble alphabet repeats %q", c)
		}
		seen[c] = true
	}
	return nil
}

// EncodePassword obfuscates the password with the scramble alphabet of the
// login attempt it will be submitted with. sca must pass ValidateSca.
//
// Every character becomes a triplet: a random alphabet character, the hex code
// point of the character three places further in the alphabet (or of the
// character itself when it is not in the alphabet), another random alphabet character.
func EncodePassword(sca, password string) string {
	return encodePassword(sca, password, func() byte {
		return sca[rand.IntN(scaLength)]
	})
}

func encodePassword(sca, password string, pad func() byte) string {
	var out strings.Builder
	for _, c := range password {
		code := c
		if k := strings.IndexRune(sca, c); k >= 0 {
			code = rune(sca[(k+3)%scaLength])
		}
		out.WriteByte(pad())
		out.WriteString(strconv.FormatInt(int64(code), 16))
		out.WriteByte(pad())
	}
	return out.String()
}

const (
	minPasswordLength = 8
	maxPasswordLength = 12
)

// CheckPasswordPolicy reports whether a new password is acceptable to the
// portal: 8 to 12 characters with at least one digit, one upper-case and one
// lower-case letter.
func CheckPasswordPolicy(password string) bool {
	length := len([]rune(password))
	if length < minPasswordLength || length > maxPasswordLength {
		return false
	}

	var digit, upper, lower bool
	for _, c := range password {
		switch {
		case unicode.IsDigit(c):
			digit = true
		case unicode.IsUpper(c):
			upper = true
		case unicode.IsLower(c):
			lower = true
		}
	}
	return digit && upper && lower
}
