package packets

// body for requesting an operator token
type TokenRequest struct {
	PIN      string `json:"pin" binding:"required"`
	Operator string `json:"operator"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}
