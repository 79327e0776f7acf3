package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Abraxas-365/jobrunner/pkg/kernel"
)

const (
	DefaultTokenTTL = 24 * time.Hour
	DefaultIssuer   = "jobrunner"
	tokenAudience   = "jobrunner-api"
)

// JWTService implements TokenService with HS256 signed JWTs
type JWTService struct {
	secretKey      []byte
	accessTokenTTL time.Duration
	issuer         string
	now            func() time.Time
}

var _ TokenService = (*JWTService)(nil)

// NewJWTService creates the token service. Zero ttl and empty issuer select
// the defaults.
func NewJWTService(secretKey string, accessTokenTTL time.Duration, issuer string) *JWTService {
	if accessTokenTTL == 0 {
		accessTokenTTL = DefaultTokenTTL
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}

	return &JWTService{
		secretKey:      []byte(secretKey),
		accessTokenTTL: accessTokenTTL,
		issuer:         issuer,
		now:            time.Now,
	}
}

// WithClock replaces the time source used for issuing and validating tokens.
func (j *JWTService) WithClock(now func() time.Time) *JWTService {
	j.now = now
	return j
}

// JWTClaims is the signed token body
type JWTClaims struct {
	ClientID kernel.ClientID `json:"client_id"`
	Scopes   []string        `json:"scopes"`
	jwt.RegisteredClaims
}

// GenerateAccessToken signs a token for clientID carrying scopes
func (j *JWTService) GenerateAccessToken(clientID kernel.ClientID, scopes []string) (string, error) {
	now := j.now()
	if scopes == nil {
		scopes = []string{}
	}

	claims := JWTClaims{
		ClientID: clientID,
		Scopes:   scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   clientID.String(),
			Audience:  []string{tokenAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(j.accessTokenTTL)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", ErrTokenGenerationFailed().WithDetail("error", err.Error())
	}

	return tokenString, nil
}

// ValidateAccessToken verifies signature, issuer, audience and expiry
func (j *JWTService) ValidateAccessToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	},
		jwt.WithIssuer(j.issuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return nil, ErrTokenValidationFailed().WithDetail("error", err.Error())
	}

	if !token.Valid {
		return nil, ErrTokenValidationFailed().WithDetail("error", "token is invalid")
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok {
		return nil, ErrTokenValidationFailed().WithDetail("error", "invalid claims type")
	}
	if claims.ClientID.IsEmpty() {
		return nil, ErrTokenValidationFailed().WithDetail("error", "missing client_id")
	}

	return &TokenClaims{
		ClientID:  claims.ClientID,
		Scopes:    claims.Scopes,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
