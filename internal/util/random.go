package util

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const alphanumeric = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// RandomString genera una cadena aleatoria alfanumérica de la longitud
// indicada. Los caracteres adicionales se suman al alfabeto base.
func RandomString(length int, additional string) string {
	alphabet := alphanumeric + additional
	var sb strings.Builder
	sb.Grow(length)
	for i := 0; i < length; i++ {
		sb.WriteByte(alphabet[randomIndex(len(alphabet))])
	}
	return sb.String()
}

// RandomPIN genera un PIN numérico de la longitud indicada sin ceros a la
// izquierda; se usa como contraseña de los enlaces compartidos.
func RandomPIN(digits int) string {
	if digits < 1 {
		digits = 1
	}
	var sb strings.Builder
	sb.Grow(digits)
	sb.WriteByte(byte('1' + randomIndex(9)))
	for i := 1; i < digits; i++ {
		sb.WriteByte(byte('0' + randomIndex(10)))
	}
	return sb.String()
}

// RandomPhone genera un número de teléfono sintético de nueve cifras para la
// anonimización.
func RandomPhone() string {
	return RandomPIN(9)
}

func randomIndex(n int) int {
	idx, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand solo falla si el sistema no tiene entropía disponible
		return 0
	}
	return int(idx.Int64())
}
