package auth

// LoginRequest is the input for signing in, accepted as JSON or as a form post.
type LoginRequest struct {
	Email    string `json:"email" form:"email" binding:"required,email"`
	Password string `json:"password" form:"password" binding:"required,min=8,max=72"`
	Next     string `json:"-" form:"next"`
}

// TokenResponse is returned by the API login endpoint.
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}
