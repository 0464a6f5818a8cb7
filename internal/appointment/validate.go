package appointment

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/videotramites/vtramit/internal/util"
)

// Input recoge los datos de cita aportados por el sistema externo o por el
// panel.
type Input struct {
	ExternalID string    `json:"externalId" validate:"required"`
	CitizenID  string    `json:"citizenId" validate:"required"`
	Department string    `json:"department" validate:"required"`
	Date       time.Time `json:"date" validate:"required"`
	Comments   string    `json:"comments"`
	Name       string    `json:"name" validate:"required"`
	Phone      string    `json:"phone"`
	Email      string    `json:"email" validate:"required"`
	Topic      string    `json:"topic"`
	AssignedTo string    `json:"assignedTo"`
}

type operation int

const (
	opCreate operation = iota
	opUpdate
)

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// validateInput acumula todos los fallos de la entrada en una lista de
// mensajes; nunca corta en el primero. El formato del identificador externo
// solo se exige al crear: las citas ya registradas pueden arrastrar
// identificadores antiguos.
func (s *Service) validateInput(op operation, in Input) []string {
	var messages []string

	if op == opCreate && !util.IsValidExternalID(in.ExternalID) {
		messages = append(messages, "El identificador de la cita solo puede contener letras, números, guiones y guiones bajos")
	}

	if !util.IsValidEmail(in.Email) {
		messages = append(messages, "El correo electrónico no es válido")
	}

	if err := s.validate.Struct(in); err != nil {
		if fieldErrors, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range fieldErrors {
				if msg := fieldMessage(fe.Field()); msg != "" {
					messages = append(messages, msg)
				}
			}
		}
	}

	return messages
}

func fieldMessage(field string) string {
	switch field {
	case "Department":
		return "Seleccione un departamento"
	case "Date":
		return "Seleccione una fecha"
	case "Name":
		return "Indique el nombre de la persona"
	case "ExternalID":
		return "El identificador de la cita es obligatorio"
	case "CitizenID":
		return "El identificador personal es obligatorio"
	}
	// El correo ya se valida aparte con su propio mensaje.
	return ""
}
