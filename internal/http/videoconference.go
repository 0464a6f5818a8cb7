package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// VideoconferenceNotify registra una señal de presencia del ciudadano en la
// sala de espera. La respuesta es deliberadamente pobre: la página anónima
// solo necesita saber que la señal llegó.
func (h *Handler) VideoconferenceNotify(w http.ResponseWriter, r *http.Request) {
	roomCode, ok := roomCodeParam(w, r)
	if !ok {
		return
	}

	registered := h.videoconference.ConnectionNotified(r.Context(), roomCode)
	WriteJSON(w, http.StatusOK, map[string]bool{"registered": registered})
}

// VideoconferenceWaiting indica si hay un ciudadano esperando al moderador en
// la sala. Lectura orientativa, sin garantía al instante siguiente.
func (h *Handler) VideoconferenceWaiting(w http.ResponseWriter, r *http.Request) {
	roomCode, ok := roomCodeParam(w, r)
	if !ok {
		return
	}

	result, err := h.appointments.VideoconferenceLinks(r.Context(), roomCode)
	if err != nil {
		h.writeInternal(w, err, "no se pudo consultar la sala")
		return
	}
	if !result.IsOK() || result.Appointment == nil {
		WriteJSON(w, http.StatusOK, map[string]bool{"waiting": false})
		return
	}

	waiting := h.videoconference.IsWaitingForModerator(r.Context(), result.Appointment)
	WriteJSON(w, http.StatusOK, map[string]bool{"waiting": waiting})
}

// VideoconferenceFinished marca como Finalizadas las citas de hoy en la sala
// notificada y devuelve la redirección al formulario de confirmación si el
// departamento lo tiene.
func (h *Handler) VideoconferenceFinished(w http.ResponseWriter, r *http.Request) {
	roomCode, ok := roomCodeParam(w, r)
	if !ok {
		return
	}

	result, err := h.appointments.VideoconferenceFinished(r.Context(), roomCode, "")
	if err != nil {
		h.writeInternal(w, err, "no se pudo cerrar la videoconferencia")
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// VideoconferenceLinks devuelve los enlaces de videollamada de la última cita
// asociada a la sala.
func (h *Handler) VideoconferenceLinks(w http.ResponseWriter, r *http.Request) {
	roomCode, ok := roomCodeParam(w, r)
	if !ok {
		return
	}

	result, err := h.appointments.VideoconferenceLinks(r.Context(), roomCode)
	if err != nil {
		h.writeInternal(w, err, "no se pudo consultar la sala")
		return
	}
	if !result.IsOK() || result.Appointment == nil {
		WriteJSON(w, http.StatusOK, result)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"roomCode":       result.Appointment.RoomCode,
		"staffRoomUrl":   result.Appointment.StaffRoomURL,
		"citizenRoomUrl": result.Appointment.CitizenRoomURL,
	})
}

func roomCodeParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	roomCode := strings.TrimSpace(chi.URLParam(r, "roomCode"))
	if roomCode == "" {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "código de sala ausente", nil)
		return "", false
	}
	return roomCode, true
}
