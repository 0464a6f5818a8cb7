package queue

import "errors"

// ErrNotFound se devuelve cuando la entrada de la cola no existe.
var ErrNotFound = errors.New("mensaje de cola no encontrado")

// Entry representa un correo pendiente de envío. El proceso externo de
// despacho consume y borra las entradas.
type Entry struct {
	ID            int64  `json:"id"`
	AppointmentID int64  `json:"appointmentId"`
	MailTo        string `json:"mailTo"`
	MailCc        string `json:"mailCc"`
	MailCco       string `json:"mailCco"`
	Subject       string `json:"subject"`
	Body          string `json:"body"`
}
