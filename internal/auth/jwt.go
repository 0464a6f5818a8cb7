package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims son las reclamaciones del token de acceso emitido por la plataforma
// anfitriona. El sujeto es el identificador de usuario del directorio.
type Claims struct {
	DisplayName string `json:"displayName,omitempty"`
	jwt.RegisteredClaims
}

// JWTManager valida los tokens de acceso. La emisión corresponde a la
// plataforma anfitriona; aquí solo se generan tokens para pruebas y
// herramientas internas.
type JWTManager struct {
	secret    []byte
	accessTTL time.Duration
}

// NewJWTManager crea el gestor con el secreto compartido y el TTL.
func NewJWTManager(secret string, accessTTL time.Duration) *JWTManager {
	return &JWTManager{secret: []byte(secret), accessTTL: accessTTL}
}

// GenerateAccessToken crea un JWT HS256 con las reclamaciones estándar.
func (m *JWTManager) GenerateAccessToken(subject, displayName string) (string, string, error) {
	now := time.Now().UTC()
	jti := uuid.NewString()

	claims := Claims{
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        jti,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", "", err
	}

	return signed, jti, nil
}

// ParseAndValidate verifica firma y caducidad.
func (m *JWTManager) ParseAndValidate(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("token inválido")
	}
	if claims.Subject == "" {
		return nil, errors.New("token sin sujeto")
	}

	return claims, nil
}
