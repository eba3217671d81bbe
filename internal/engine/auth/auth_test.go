package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequire(t *testing.T) {
	off := Service{}
	assert.NoError(t, off.Require(nil, "staff:add"))

	on := Service{Enforce: true}
	assert.NoError(t, on.Require([]string{"*"}, "staff:add"))
	assert.NoError(t, on.Require([]string{"staff:add"}, "staff:add"))
	assert.NoError(t, on.Require([]string{"project:*"}, "project:statistics"))

	err := on.Require([]string{"staff:list", "project:*"}, Permission("staff", "delete"))
	var fe ForbiddenError
	assert.True(t, errors.As(err, &fe))
	assert.Equal(t, "staff:delete", fe.Permission)
	assert.EqualError(t, err, "permission staff:delete required")
}
