package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"correspondence/pkg/domain"
	dErrors "correspondence/pkg/domain-errors"
)

func TestDeriveUsername(t *testing.T) {
	cases := []struct {
		fullName string
		id       domain.UserID
		want     string
	}{
		{"Juan Derry", 1, "juanderry1"},
		{"Budi", 2, "budi2"},
		{"Siti Nur Aisyah", 15, "sitiaisyah15"},
		{"  ANDI   Wijaya  ", 7, "andiwijaya7"},
	}
	for _, tc := range cases {
		t.Run(tc.fullName, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveUsername(tc.fullName, tc.id))
		})
	}
}

func TestProvisionalUsername_Unique(t *testing.T) {
	a := ProvisionalUsername("Juan Derry")
	b := ProvisionalUsername("Juan Derry")
	assert.True(t, strings.HasPrefix(a, "pending_juan_derry_"))
	assert.NotEqual(t, a, b)
}

func TestValidateAssignment(t *testing.T) {
	valid := []struct {
		role     domain.Role
		division domain.Division
	}{
		{domain.RoleSecretary, domain.DivisionNone},
		{domain.RoleSubDivisionHead, domain.DivisionTechnicalAndLegal},
		{domain.RoleStaff, domain.DivisionHumanResourcesAndCommunity},
	}
	for _, v := range valid {
		assert.NoError(t, ValidateAssignment(v.role, v.division), "%s/%s", v.role, v.division)
	}

	err := ValidateAssignment(domain.RoleStaff, domain.DivisionNone)
	require.Error(t, err)
	assert.Equal(t, ReasonDivisionRequired, dErrors.ReasonOf(err))

	err = ValidateAssignment(domain.RoleSubDivisionHead, domain.DivisionNone)
	assert.Equal(t, ReasonDivisionRequired, dErrors.ReasonOf(err))

	err = ValidateAssignment(domain.RoleSecretary, domain.DivisionDataAndInformation)
	assert.Equal(t, ReasonDivisionForbidden, dErrors.ReasonOf(err))

	err = ValidateAssignment(domain.Role("admin"), domain.DivisionNone)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestNewUser(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	u, err := NewUser("  Juan   Derry ", domain.RoleSecretary, domain.DivisionNone, now)
	require.NoError(t, err)
	assert.Equal(t, "Juan Derry", u.FullName)
	assert.True(t, u.IsProvisional())
	assert.Equal(t, now, u.CreatedAt)
	assert.Equal(t, domain.DivisionNone, u.Visibility())

	_, err = NewUser("   ", domain.RoleStaff, domain.DivisionDataAndInformation, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = NewUser(strings.Repeat("a", 256), domain.RoleStaff, domain.DivisionDataAndInformation, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestNormalizeFullName_UsernameBound(t *testing.T) {
	cases := []struct {
		name  string
		input string
		ok    bool
	}{
		{"first and last at the limit", "A " + strings.Repeat("b", 52), true},
		{"one byte over", "A " + strings.Repeat("b", 53), false},
		{"single token over", strings.Repeat("c", 54), false},
		{"long middle names are not part of the username", "Budi " + strings.Repeat("x", 200) + " Santoso", true},
		{"multibyte letters count in bytes", "Ö " + strings.Repeat("é", 26), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NormalizeFullName(tc.input)
			if tc.ok {
				assert.NoError(t, err)
				assert.LessOrEqual(t, len(DeriveUsername(tc.input, domain.UserID(1<<62))), 72)
				return
			}
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		})
	}
}

func TestUserPatch_Apply(t *testing.T) {
	u := &User{FullName: "Budi Santoso", Role: domain.RoleStaff, Division: domain.DivisionDataAndInformation}
	role := domain.RoleSecretary
	none := domain.DivisionNone

	name, r, d := UserPatch{Role: &role, Division: &none}.Apply(u)
	assert.Equal(t, "Budi Santoso", name)
	assert.Equal(t, domain.RoleSecretary, r)
	assert.True(t, d.IsNone())
	assert.True(t, UserPatch{}.IsEmpty())
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("s3cret!"))
	assert.Equal(t, ReasonPasswordPolicy, dErrors.ReasonOf(ValidatePassword("abc")))
	assert.Equal(t, ReasonPasswordPolicy, dErrors.ReasonOf(ValidatePassword(strings.Repeat("x", 73))))
}
