package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentlightning/promptctl/pkg/models"
)

func TestCanDeployOrApprove(t *testing.T) {
	tests := []struct {
		role models.Role
		want bool
	}{
		{models.RoleReviewer, false},
		{models.RoleDeveloper, true},
		{models.RoleAdmin, true},
		{models.Role("unknown"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanDeployOrApprove(tt.role), "role=%s", tt.role)
	}
}

func TestIsAdmin(t *testing.T) {
	assert.True(t, IsAdmin(models.RoleAdmin))
	assert.False(t, IsAdmin(models.RoleDeveloper))
	assert.False(t, IsAdmin(models.RoleReviewer))
}
