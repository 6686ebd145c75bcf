package auth

import (
	"errors"
	"testing"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleViewer, PermBoardRead, true},
		{RoleViewer, PermBoardConfigure, false},
		{RoleViewer, PermSystemAdmin, false},
		{RoleOperator, PermBoardRead, true},
		{RoleOperator, PermBoardConfigure, true},
		{RoleOperator, PermSystemAdmin, false},
		{RoleAdmin, PermBoardRead, true},
		{RoleAdmin, PermBoardConfigure, true},
		{RoleAdmin, PermSystemAdmin, true},
		{Role("unknown"), PermBoardRead, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.perm), func(t *testing.T) {
			if got := HasPermission(tt.role, tt.perm); got != tt.want {
				t.Errorf("HasPermission(%s, %s) = %v, want %v", tt.role, tt.perm, got, tt.want)
			}
		})
	}
}

func TestPermissionsForRole(t *testing.T) {
	perms := PermissionsForRole(RoleOperator)
	if len(perms) != 2 {
		t.Fatalf("operator permissions = %v, want 2", perms)
	}

	// Returned slice is a copy.
	perms[0] = PermSystemAdmin
	if HasPermission(RoleOperator, PermSystemAdmin) {
		t.Error("mutating the result changed the role model")
	}

	if PermissionsForRole(Role("unknown")) != nil {
		t.Error("unknown role should have nil permissions")
	}
}

func TestParseRole(t *testing.T) {
	for _, r := range ValidRoles {
		got, err := ParseRole(string(r))
		if err != nil || got != r {
			t.Errorf("ParseRole(%q) = %q, %v", r, got, err)
		}
	}
	if _, err := ParseRole("owner"); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("ParseRole(owner) error = %v, want %v", err, ErrInvalidRole)
	}
}
