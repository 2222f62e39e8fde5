package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTypeEmailConfirmation tags tokens that prove email ownership.
const TokenTypeEmailConfirmation = "email_confirmation"

// DefaultVerificationExpiry is the fallback lifetime for verification tokens.
const DefaultVerificationExpiry = 72 * time.Hour

var (
	// ErrTokenExpired marks a verification token past its expiry.
	ErrTokenExpired = errors.New("verification: token expired")
	// ErrTokenInvalid marks a malformed, tampered, or wrongly typed token.
	ErrTokenInvalid = errors.New("verification: token invalid")
)

// VerificationConfig bundles the settings required to build a VerificationService.
type VerificationConfig struct {
	Secret string
	Expiry time.Duration
	Clock  func() time.Time
}

// VerificationClaims is the signed payload of an email-confirmation token.
type VerificationClaims struct {
	Username string `json:"user"`
	Type     string `json:"type"`
	jwt.RegisteredClaims
}

// VerificationService issues and validates signed, time-boxed email-confirmation tokens.
type VerificationService struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// NewVerificationService constructs a VerificationService from an explicit configuration.
func NewVerificationService(cfg VerificationConfig) (*VerificationService, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("verification: secret must be provided")
	}

	expiry := cfg.Expiry
	if expiry <= 0 {
		expiry = DefaultVerificationExpiry
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &VerificationService{
		secret: []byte(cfg.Secret),
		expiry: expiry,
		now:    now,
	}, nil
}

// GenerateToken issues a signed token asserting ownership of the given username's email.
func (s *VerificationService) GenerateToken(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", errors.New("verification: username is required")
	}

	claims := &VerificationClaims{
		Username: username,
		Type:     TokenTypeEmailConfirmation,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(s.now().Add(s.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("verification: sign token: %w", err)
	}

	return signed, nil
}

// ValidateToken checks signature, expiry, and the email_confirmation type tag,
// returning the username the token was issued for.
func (s *VerificationService) ValidateToken(tokenString string) (string, error) {
	if strings.TrimSpace(tokenString) == "" {
		return "", ErrTokenInvalid
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)

	var claims VerificationClaims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrTokenInvalid
	}

	if claims.Type != TokenTypeEmailConfirmation {
		return "", ErrTokenInvalid
	}
	if claims.Username == "" {
		return "", ErrTokenInvalid
	}

	return claims.Username, nil
}
