package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTypeBearer is the only access token type issued.
const TokenTypeBearer = "Bearer"

// LoginRequest carries staff credentials. IP and UserAgent are filled from the request for auditing.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        UserInfo  `json:"user"`
}

// UserInfo is the staff profile shown to clients, including what the account may do.
type UserInfo struct {
	ID          string       `json:"id"`
	Email       string       `json:"email"`
	FullName    string       `json:"full_name"`
	Role        UserRole     `json:"role"`
	Permissions []Permission `json:"permissions"`
	LastLogin   *time.Time   `json:"last_login,omitempty"`
}

// JWTClaims is the access token payload. Permissions are not embedded; they follow the role at request time.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}
