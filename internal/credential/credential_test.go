package credential_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ihsankeskin/multitenant-qr-menu-system-sub000/internal/credential"
)

func TestHashAndVerify(t *testing.T) {
	m := credential.NewManager(bcrypt.MinCost)

	hash, err := m.Hash("Sup3r$ecret")
	require.NoError(t, err)
	require.NotEqual(t, "Sup3r$ecret", hash)

	require.True(t, m.Verify("Sup3r$ecret", hash))
	require.False(t, m.Verify("Sup3r$ecrett", hash))
	require.False(t, m.Verify("", hash))
	require.False(t, m.Verify("Sup3r$ecret", "not-a-hash"))
}

func TestHashIsSalted(t *testing.T) {
	m := credential.NewManager(bcrypt.MinCost)

	first, err := m.Hash("Sup3r$ecret")
	require.NoError(t, err)
	second, err := m.Hash("Sup3r$ecret")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestValidateStrengthReportsAllViolations(t *testing.T) {
	m := credential.NewManager(bcrypt.MinCost)

	violations := m.ValidateStrength("short")
	require.Contains(t, violations, credential.ViolationTooShort)
	require.Contains(t, violations, credential.ViolationMissingUpper)
	require.Contains(t, violations, credential.ViolationMissingDigit)
	require.Contains(t, violations, credential.ViolationMissingSpecial)
	require.NotContains(t, violations, credential.ViolationMissingLower)
}

func TestValidateStrengthAccepts(t *testing.T) {
	m := credential.NewManager(bcrypt.MinCost)
	require.Empty(t, m.ValidateStrength("Abcdef1!"))
	require.Empty(t, m.ValidateStrength("longer-Passw0rd#with-more"))
}

func TestValidateStrengthSingleMissingClass(t *testing.T) {
	m := credential.NewManager(bcrypt.MinCost)

	violations := m.ValidateStrength("Abcdefg1")
	require.Equal(t, []string{credential.ViolationMissingSpecial}, violations)
}

func TestGenerateTemporaryAlwaysValid(t *testing.T) {
	m := credential.NewManager(bcrypt.MinCost)

	seen := make(map[string]struct{})
	for i := 0; i < 10000; i++ {
		password, err := m.GenerateTemporary()
		require.NoError(t, err)
		require.Empty(t, m.ValidateStrength(password), "generated password %q failed policy", password)
		seen[password] = struct{}{}
	}
	// With a crypto source, collisions across 10k draws are implausible.
	require.Greater(t, len(seen), 9990)
}
