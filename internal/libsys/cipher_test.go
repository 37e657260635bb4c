package libsys

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// codesOf splits an encoding of an alphanumeric password back into the
// code points between the padding characters.
func codesOf(t testing.TB, encoded string) []rune {
	require.Zero(t, len(encoded)%4, "encoded %q", encoded)
	var out []rune
	for i := 0; i < len(encoded); i += 4 {
		code, err := strconv.ParseInt(encoded[i+1:i+3], 16, 32)
		require.NoError(t, err)
		out = append(out, rune(code))
	}
	return out
}

func TestValidateSca(t *testing.T) {
	require.NoError(t, ValidateSca(testSca))

	cases := []string{
		"",
		testSca[:61],
		testSca + "a",
		"a" + testSca[1:61] + "a",
		"-" + testSca[1:],
		"中" + testSca[3:],
	}
	for _, sca := range cases {
		require.Error(t, ValidateSca(sca), "%q", sca)
	}
}

func TestEncodePasswordShape(t *testing.T) {
	encoded := encodePassword(testSca, "aZ9", func() byte { return 'P' })

	// a is at index 25, three places further is X
	// Z is at index 26, three places further is W
	// 9 is at index 52, three places further is 6
	require.Equal(t, "P58PP57PP36P", encoded)
}

func TestEncodePasswordTripletPerCharacter(t *testing.T) {
	for _, password := range []string{"a", "Passw0rd", "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"} {
		encoded := EncodePassword(testSca, password)
		require.Len(t, encoded, 4*len(password))

		codes := codesOf(t, encoded)
		require.Len(t, codes, len(password))
		for i, c := range password {
			k := strings.IndexRune(testSca, c)
			require.Equal(t, rune(testSca[(k+3)%scaLength]), codes[i])
		}
		for i := 0; i < len(encoded); i += 4 {
			require.Contains(t, testSca, string(encoded[i]))
			require.Contains(t, testSca, string(encoded[i+3]))
		}
	}
}

func TestEncodePasswordWrapsAround(t *testing.T) {
	last := rune(testSca[scaLength-1])
	encoded := encodePassword(testSca, string(last), func() byte { return '_' })
	require.Equal(t, "_"+strconv.FormatInt(int64(testSca[2]), 16)+"_", encoded)
}

func TestEncodePasswordPaddingIsRandom(t *testing.T) {
	first := EncodePassword(testSca, testPassword)
	second := EncodePassword(testSca, testPassword)
	require.NotEqual(t, first, second)
	require.Equal(t, codesOf(t, first), codesOf(t, second))
}

func TestEncodePasswordOutsideAlphabet(t *testing.T) {
	encoded := encodePassword(testSca, "!图", func() byte { return '_' })
	require.Equal(t, "_21__56fe_", encoded)
}

func TestCheckPasswordPolicy(t *testing.T) {
	cases := []struct {
		password string
		ok       bool
	}{
		{password: "Abcdef12", ok: true},
		{password: "Abcdefgh1234", ok: true},
		{password: "Abcdef1", ok: false},
		{password: "Abcdefgh12345", ok: false},
		{password: "abcdefg1", ok: false},
		{password: "ABCDEFG1", ok: false},
		{password: "Abcdefgh", ok: false},
		{password: "", ok: false},
	}
	for _, test := range cases {
		require.Equal(t, test.ok, CheckPasswordPolicy(test.password), test.password)
	}
}
