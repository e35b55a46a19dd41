package models

import "github.com/golang-jwt/jwt/v5"

// LoginRequest holds credentials for authenticating a host. The
// username field also accepts an email address.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse returns the issued token and host info.
type LoginResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	ExpiresIn   int64    `json:"expires_in"`
	Approver    Approver `json:"approver"`
}

// ForgotPasswordRequest resets a password by username or email.
type ForgotPasswordRequest struct {
	Username    string `json:"username" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// ForgotPasswordResponse confirms the reset.
type ForgotPasswordResponse struct {
	Message  string `json:"message"`
	Username string `json:"username"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	ApproverID int  `json:"approver_id"`
	Admin      bool `json:"admin"`
	jwt.RegisteredClaims
}
