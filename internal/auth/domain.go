package auth

// RegisterInput is the payload of POST /register.
type RegisterInput struct {
	Name     string `json:"name" validate:"required,max=200"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

// LoginInput is the payload of POST /login. It carries no format rules: any
// pair that does not match a stored account is rejected as invalid credentials.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse is returned by register and login.
type TokenResponse struct {
	Token string `json:"token"`
}
