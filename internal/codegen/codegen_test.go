package codegen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCode(t *testing.T) {
	code, err := Code(InvitationCodeLength)
	require.NoError(t, err)
	require.Len(t, code, InvitationCodeLength)
	for _, c := range code {
		assert.Contains(t, alphanumerics, string(c))
	}

	_, err = Code(0)
	require.Error(t, err)
}

func TestCode_Distinct(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := Code(InvitationCodeLength)
		require.NoError(t, err)
		require.False(t, seen[code], "generated a duplicate invitation code")
		seen[code] = true
	}
}

func TestPIN(t *testing.T) {
	pin, err := PIN(PINDigits)
	require.NoError(t, err)
	require.Len(t, pin, PINDigits)
	for _, c := range pin {
		assert.True(t, c >= '0' && c <= '9', "pin must be numeric, got %q", pin)
	}
}

func TestMembershipCode(t *testing.T) {
	code, err := MembershipCode()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(code, "MEMBER-"))
	suffix := strings.TrimPrefix(code, "MEMBER-")
	require.Len(t, suffix, membershipCodeHexBytes*2)
	assert.Equal(t, strings.ToUpper(suffix), suffix)
}

func TestMembershipKey(t *testing.T) {
	key, err := MembershipKey()
	require.NoError(t, err)
	require.Len(t, key, membershipKeyBytes*2)

	other, err := MembershipKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}
