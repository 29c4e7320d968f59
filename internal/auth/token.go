package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/usermgmt/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType returned to clients alongside every access token.
const BearerTokenType = "bearer"

// TokenConfig is the immutable signing configuration of a TokenManager.
type TokenConfig struct {
	Secret          string
	Algorithm       string // HS256, HS384 or HS512
	AccessTTL       time.Duration
	VerificationTTL time.Duration
	Issuer          string
}

// TokenManager issues and validates HMAC-signed JWTs. It holds no per-token
// state, so validation needs nothing but the shared secret.
type TokenManager struct {
	secret          []byte
	method          *jwt.SigningMethodHMAC
	accessTTL       time.Duration
	verificationTTL time.Duration
	issuer          string
	now             func() time.Time
}

// NewTokenManager creates a TokenManager from cfg.
func NewTokenManager(cfg TokenConfig) (*TokenManager, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("token secret is required")
	}
	if cfg.AccessTTL <= 0 {
		return nil, fmt.Errorf("access token lifetime must be positive")
	}

	var method *jwt.SigningMethodHMAC
	switch cfg.Algorithm {
	case "", "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("unsupported signing algorithm %q", cfg.Algorithm)
	}

	verificationTTL := cfg.VerificationTTL
	if verificationTTL <= 0 {
		verificationTTL = 24 * time.Hour
	}

	return &TokenManager{
		secret:          []byte(cfg.Secret),
		method:          method,
		accessTTL:       cfg.AccessTTL,
		verificationTTL: verificationTTL,
		issuer:          cfg.Issuer,
		now:             time.Now,
	}, nil
}

// IssueAccessToken signs an access token bound to accountID and role.
func (tm *TokenManager) IssueAccessToken(accountID string, role models.Role) (*models.AccessToken, error) {
	now := tm.now()
	expiresAt := now.Add(tm.accessTTL)

	claims := &models.TokenClaims{
		Type: models.TokenTypeAccess,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   accountID,
			Issuer:    tm.issuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := tm.sign(claims)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	return &models.AccessToken{
		Token:     signed,
		TokenType: BearerTokenType,
		ExpiresAt: expiresAt,
	}, nil
}

// ValidateAccessToken verifies signature, expiry and type of an access token.
func (tm *TokenManager) ValidateAccessToken(tokenString string) (*models.TokenClaims, error) {
	return tm.validate(tokenString, models.TokenTypeAccess)
}

// IssueVerificationToken signs a single-purpose token proving control of email.
func (tm *TokenManager) IssueVerificationToken(accountID, email string) (string, time.Time, error) {
	now := tm.now()
	expiresAt := now.Add(tm.verificationTTL)

	claims := &models.TokenClaims{
		Type:  models.TokenTypeEmailVerification,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   accountID,
			Issuer:    tm.issuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := tm.sign(claims)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign verification token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateVerificationToken verifies an email verification token.
func (tm *TokenManager) ValidateVerificationToken(tokenString string) (*models.TokenClaims, error) {
	return tm.validate(tokenString, models.TokenTypeEmailVerification)
}

func (tm *TokenManager) sign(claims *models.TokenClaims) (string, error) {
	return jwt.NewWithClaims(tm.method, claims).SignedString(tm.secret)
}

func (tm *TokenManager) validate(tokenString, tokenType string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{tm.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	}
	if tm.issuer != "" {
		opts = append(opts, jwt.WithIssuer(tm.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return tm.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, models.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", models.ErrTokenInvalid, err)
	}

	if !token.Valid {
		return nil, models.ErrTokenInvalid
	}

	if claims.Type != tokenType {
		return nil, fmt.Errorf("%w: unexpected token type %q", models.ErrTokenInvalid, claims.Type)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", models.ErrTokenInvalid)
	}
	if tokenType == models.TokenTypeAccess && !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role", models.ErrTokenInvalid)
	}

	return claims, nil
}
