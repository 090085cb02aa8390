package auth

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var recoveryCodePattern = regexp.MustCompile(`^[23456789ABCDEFGHJKMNPQRSTUVWXYZ]{5}-[23456789ABCDEFGHJKMNPQRSTUVWXYZ]{5}$`)

func TestGenerateRecoveryCodes_FormatAndUniqueness(t *testing.T) {
	codes, err := GenerateRecoveryCodes(10)
	require.NoError(t, err)
	require.Len(t, codes, 10)

	seen := make(map[string]bool)
	for _, code := range codes {
		assert.Regexp(t, recoveryCodePattern, code)
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
}

func TestNormalizeRecoveryCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ABCDE-FGHJK", "ABCDEFGHJK"},
		{"abcde-fghjk", "ABCDEFGHJK"},
		{" AB CD E--FG HJK ", "ABCDEFGHJK"},
		{"a.b,c!d?e", "ABCDE"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeRecoveryCode(tt.in))
	}
}

func TestHashRecoveryCode_FormattingInsensitive(t *testing.T) {
	// Punctuation and case differences at entry time hash identically
	assert.Equal(t, HashRecoveryCode("ABCDE-FGHJK"), HashRecoveryCode("abcde fghjk"))
	assert.Equal(t, HashRecoveryCode("ABCDEFGHJK"), HashRecoveryCode("ABCDE-FGHJK"))
	assert.NotEqual(t, HashRecoveryCode("ABCDE-FGHJK"), HashRecoveryCode("ABCDE-FGHJM"))
	assert.Len(t, HashRecoveryCode("ABCDE-FGHJK"), 64)
}
