package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type TokenKind string

const (
	AccessToken  TokenKind = "access"
	RefreshToken TokenKind = "refresh"
)

var ErrInvalidToken = errors.New("invalid token")

// Identity is the caller as described by a verified access token.
type Identity struct {
	UserID       string
	TokenVersion int
	AuthMethod   string
	Roles        []string
}

// JWTManager verifies RS256 tokens issued by the identity service. The
// private key is only present when the manager also signs (tests, local
// tooling).
type JWTManager struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
}

// NewJWTVerifier loads the identity service's public key.
func NewJWTVerifier(publicPath, issuer string) (*JWTManager, error) {
	pubPem, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	pubKey, err := jwt.ParseRSAPublicKeyFromPEM(pubPem)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return &JWTManager{publicKey: pubKey, issuer: issuer}, nil
}

// NewJWTManager builds a manager from an in-memory key pair.
func NewJWTManager(privateKey *rsa.PrivateKey, issuer string) *JWTManager {
	return &JWTManager{
		privateKey: privateKey,
		publicKey:  &privateKey.PublicKey,
		issuer:     issuer,
	}
}

// Sign issues a token with the identity service's claim layout.
func (m *JWTManager) Sign(id Identity, kind TokenKind, ttl time.Duration) (string, error) {
	if m.privateKey == nil {
		return "", errors.New("jwt manager has no signing key")
	}

	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"iss":         m.issuer,
		"sub":         id.UserID,
		"iat":         now.Unix(),
		"exp":         now.Add(ttl).Unix(),
		"jti":         uuid.New().String(),
		"typ":         string(kind),
		"ver":         id.TokenVersion,
		"auth_method": id.AuthMethod,
	}
	if len(id.Roles) > 0 {
		claims["roles"] = id.Roles
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(m.privateKey)
}

// VerifyAccessToken checks signature, expiry, issuer and token type and
// returns the caller identity.
func (m *JWTManager) VerifyAccessToken(tokenStr string) (*Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithLeeway(5 * time.Second),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		return m.publicKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if typ, _ := claims["typ"].(string); typ != string(AccessToken) {
		return nil, fmt.Errorf("%w: not an access token", ErrInvalidToken)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	id := &Identity{UserID: sub}
	id.AuthMethod, _ = claims["auth_method"].(string)
	if ver, ok := claims["ver"].(float64); ok {
		id.TokenVersion = int(ver)
	}
	if roles, ok := claims["roles"].([]interface{}); ok {
		for _, r := range roles {
			if s, ok := r.(string); ok {
				id.Roles = append(id.Roles, s)
			}
		}
	}
	return id, nil
}
