package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUserHashesPassword(t *testing.T) {
	user, err := CreateUser("Ana Torres", "ana@example.com", "secret-password")
	require.NoError(t, err)

	assert.NotEqual(t, "secret-password", user.Password)
	assert.True(t, user.CheckPassword("secret-password"))
	assert.False(t, user.CheckPassword("wrong"))
	assert.Equal(t, ROLE_GUARDIAN, user.Role)
}

func TestUserValidate(t *testing.T) {
	user := &User{Name: "Al", Email: "not-an-email", Password: "x", Role: ROLE_GUARDIAN, Status: "active"}
	assert.Error(t, user.Validate())

	user = &User{Name: "Ana Torres", Email: "ana@example.com", Password: "secret-password", Role: ROLE_STAFF, Status: "active"}
	assert.NoError(t, user.Validate())
}
