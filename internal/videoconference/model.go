package videoconference

import (
	"errors"
	"time"
)

// ErrNotFound se devuelve cuando no existe notificación de conexión.
var ErrNotFound = errors.New("notificación de videoconferencia no encontrada")

// FreshnessWindow delimita cuándo una sesión se considera viva: el ciudadano
// notifica periódicamente y damos la sesión por perdida pasados diez
// segundos sin noticias.
const FreshnessWindow = 10 * time.Second

// Heartbeat representa una sesión de presencia del ciudadano en la sala de
// espera. Cada fila es una sesión; una sesión caducada no se revive, se crea
// una nueva.
type Heartbeat struct {
	ID              int64     `json:"id"`
	AppointmentID   int64     `json:"appointmentId"`
	FirstConnection time.Time `json:"firstConnection"`
	LastConnection  time.Time `json:"lastConnection"`
}

// IsLive indica si la sesión sigue viva respecto del instante indicado.
func (h *Heartbeat) IsLive(now time.Time) bool {
	if h.LastConnection.IsZero() {
		return false
	}
	return now.Sub(h.LastConnection) < FreshnessWindow
}
