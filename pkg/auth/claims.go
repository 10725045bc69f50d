package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tablyhq/tably-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID       uuid.UUID
	RestaurantID uuid.UUID
	Role         enums.StaffRole
	JTI          string
}

// AccessTokenClaims represents the typed JWT presented by staff clients and
// POS agents. Token issuance itself lives with the identity provider; this
// service only verifies and reads.
type AccessTokenClaims struct {
	UserID       uuid.UUID       `json:"user_id"`
	RestaurantID uuid.UUID       `json:"restaurant_id"`
	Role         enums.StaffRole `json:"role"`
	jwt.RegisteredClaims
}
