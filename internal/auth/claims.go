package auth

import "github.com/golang-jwt/jwt/v5"

// Claims is the only supported JWT claims shape for this service.
// Multi-pool invariant: WorkspaceID must be present; every authenticated
// request operates inside exactly one workspace.
type Claims struct {
	jwt.RegisteredClaims

	UserID      string `json:"user_id"`
	WorkspaceID string `json:"workspace_id"`
	Role        string `json:"role"`
}
