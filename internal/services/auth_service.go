package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prudhvinik1/lansync/internal/utils"
)

var (
	ErrInvalidCredentials = errors.New("invalid password")
	ErrInvalidToken       = errors.New("invalid token")
)

// OperatorSubject is the only principal the read API knows about.
const OperatorSubject = "operator"

type AuthService struct {
	passwordHash string
	jwtSecret    string
	jwtExpiry    time.Duration
	now          func() time.Time
}

type LoginResponse struct {
	Token     string
	ExpiresAt time.Time
}

type TokenClaims struct {
	Subject string
	TokenID string
}

func NewAuthService(passwordHash, jwtSecret string, jwtExpiry time.Duration) *AuthService {
	return &AuthService{
		passwordHash: passwordHash,
		jwtSecret:    jwtSecret,
		jwtExpiry:    jwtExpiry,
		now:          time.Now,
	}
}

func (s *AuthService) Login(password string) (*LoginResponse, error) {
	if !utils.CheckPassword(s.passwordHash, password) {
		return nil, ErrInvalidCredentials
	}

	expiresAt := s.now().Add(s.jwtExpiry)
	token, err := s.generateToken(uuid.New().String(), expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *AuthService) generateToken(tokenID string, expiresAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub": OperatorSubject,
		"jti": tokenID,
		"exp": expiresAt.Unix(),
		"iat": s.now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

func (s *AuthService) VerifyToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	subject, ok := claims["sub"].(string)
	if !ok || subject != OperatorSubject {
		return nil, ErrInvalidToken
	}
	tokenID, ok := claims["jti"].(string)
	if !ok {
		return nil, ErrInvalidToken
	}

	return &TokenClaims{
		Subject: subject,
		TokenID: tokenID,
	}, nil
}
