package util

import (
	"net/mail"
	"regexp"
	"strings"
)

var externalIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// IsValidEmail indica si el correo tiene un formato aceptable.
func IsValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	_, err := mail.ParseAddress(email)
	return err == nil
}

// IsValidExternalID valida el identificador de cita aportado por el sistema
// externo: solo letras, números, guiones y guiones bajos.
func IsValidExternalID(externalID string) bool {
	return externalIDPattern.MatchString(externalID)
}
