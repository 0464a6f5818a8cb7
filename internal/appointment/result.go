package appointment

import "encoding/json"

// Outcome clasifica el desenlace de una operación de negocio.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeKO
	OutcomeError
)

// String devuelve la representación histórica del desenlace.
func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "OK"
	case OutcomeKO:
		return "KO"
	default:
		return "ERROR"
	}
}

// MarshalJSON serializa el desenlace como cadena.
func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

// Result es la respuesta estructurada de las operaciones sobre citas. Los
// fallos de validación y las transiciones ilegales se comunican aquí, nunca
// como errores de infraestructura.
type Result struct {
	Outcome     Outcome      `json:"result"`
	Message     string       `json:"message,omitempty"`
	Messages    []string     `json:"messages,omitempty"`
	Appointment *Appointment `json:"appointment,omitempty"`
	Redirect    string       `json:"redirect,omitempty"`
}

// IsOK indica si la operación terminó bien.
func (r *Result) IsOK() bool {
	return r != nil && r.Outcome == OutcomeOK
}

func okResult(message string, ap *Appointment) *Result {
	return &Result{Outcome: OutcomeOK, Message: message, Appointment: ap}
}

func koResult(message string, ap *Appointment) *Result {
	return &Result{Outcome: OutcomeKO, Message: message, Appointment: ap}
}

func errorResult(message string, ap *Appointment) *Result {
	return &Result{Outcome: OutcomeError, Message: message, Appointment: ap}
}
