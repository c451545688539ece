package endpoints

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Nixie-Tech-LLC/muezzin/internal/http/api"
	"github.com/Nixie-Tech-LLC/muezzin/internal/http/api/auth/packets"
	"github.com/Nixie-Tech-LLC/muezzin/internal/http/middleware"
)

const defaultOperator = "operator"

type TokenIssuer struct {
	jwtSecret string
	pinHash   string
	ttl       time.Duration
	// guesses against a four-digit PIN
	attempts *rate.Limiter
}

func newTokenIssuer(secret, pinHash string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{
		jwtSecret: secret,
		pinHash:   pinHash,
		ttl:       ttl,
		attempts:  rate.NewLimiter(rate.Every(2*time.Second), 5),
	}
}

// AuthPublicModule mounts the token endpoint (/auth/token). pinHash is the
// bcrypt hash of the command PIN.
func AuthPublicModule(jwtSecret, pinHash string, ttl time.Duration) api.Module {
	ctl := newTokenIssuer(jwtSecret, pinHash, ttl)
	return api.ModuleFunc(func(c *api.Controller) {
		c.PUBLIC_POST("/auth/token", ctl.issueToken)
	})
}

// AuthSessionModule mounts /auth/whoami (JWT required).
func AuthSessionModule() api.Module {
	return api.ModuleFunc(func(c *api.Controller) {
		c.GET("/auth/whoami", whoami)
	})
}

// POST /api/auth/token
func (t *TokenIssuer) issueToken(ctx *gin.Context) (any, *api.APIError) {
	if !t.attempts.Allow() {
		return nil, &api.APIError{Code: http.StatusTooManyRequests, Message: "too many attempts"}
	}

	var request packets.TokenRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		return nil, api.BadRequest(err.Error())
	}

	if !middleware.CheckPIN(t.pinHash, request.PIN) {
		log.Warn().Str("client", ctx.ClientIP()).Msg("token request with wrong pin")
		return nil, &api.APIError{Code: http.StatusUnauthorized, Message: middleware.ErrInvalidCredentials.Error()}
	}

	operator := strings.TrimSpace(request.Operator)
	if operator == "" {
		operator = defaultOperator
	}
	token, exp, err := middleware.GenerateJWT(operator, t.jwtSecret, t.ttl)
	if err != nil {
		log.Error().Err(err).Msg("could not sign token")
		return nil, &api.APIError{Code: http.StatusInternalServerError, Message: "could not sign token"}
	}

	log.Info().Str("operator", operator).Msg("operator token issued")
	return packets.TokenResponse{Token: token, ExpiresAt: exp.UTC().Format(time.RFC3339)}, nil
}

// GET /api/auth/whoami
func whoami(ctx *gin.Context, operator string) (any, *api.APIError) {
	return gin.H{"operator": operator}, nil
}
