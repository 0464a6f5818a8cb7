package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/videotramites/vtramit/internal/appointment"
	httpmiddleware "github.com/videotramites/vtramit/internal/http/middleware"
)

// appointmentPayload es el cuerpo de alta y modificación de citas. La fecha
// viaja en segundos de época, como la envía el sistema externo.
type appointmentPayload struct {
	ExternalID string `json:"externalId"`
	CitizenID  string `json:"citizenId"`
	Department string `json:"department"`
	Date       int64  `json:"date"`
	Comments   string `json:"comments"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	Topic      string `json:"topic"`
	AssignedTo string `json:"assignedTo"`
}

func (p appointmentPayload) toInput() appointment.Input {
	in := appointment.Input{
		ExternalID: strings.TrimSpace(p.ExternalID),
		CitizenID:  strings.TrimSpace(p.CitizenID),
		Department: strings.TrimSpace(p.Department),
		Comments:   p.Comments,
		Name:       strings.TrimSpace(p.Name),
		Phone:      strings.TrimSpace(p.Phone),
		Email:      strings.TrimSpace(p.Email),
		Topic:      p.Topic,
		AssignedTo: strings.TrimSpace(p.AssignedTo),
	}
	if p.Date > 0 {
		in.Date = time.Unix(p.Date, 0)
	}
	return in
}

// SearchAppointments devuelve las citas visibles según los filtros del panel.
func (h *Handler) SearchAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := appointment.SearchFilter{
		Departments: splitParam(q.Get("departments")),
		IDPrefix:    q.Get("id"),
		Assignees:   splitParam(q.Get("users")),
		Unassigned:  q.Get("unassigned") == "true",
	}

	if raw := q.Get("minDate"); raw != "" {
		if epoch, err := strconv.ParseInt(raw, 10, 64); err == nil {
			t := time.Unix(epoch, 0)
			filter.MinDate = &t
		}
	}
	if raw := q.Get("maxDate"); raw != "" {
		if epoch, err := strconv.ParseInt(raw, 10, 64); err == nil {
			t := time.Unix(epoch, 0)
			filter.MaxDate = &t
		}
	}
	for _, name := range splitParam(q.Get("states")) {
		if state, ok := appointment.ParseState(name); ok {
			filter.States = append(filter.States, state)
		}
	}

	userID := httpmiddleware.GetSubject(r.Context())
	appointments, err := h.appointments.Search(r.Context(), userID, filter)
	if err != nil {
		h.writeInternal(w, err, "no se pudieron consultar las citas")
		return
	}
	WriteJSON(w, http.StatusOK, appointments)
}

// CreateAppointment registra una cita desde el panel.
func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var payload appointmentPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	result, err := h.appointments.Create(r.Context(), payload.toInput(), httpmiddleware.GetSubject(r.Context()))
	if err != nil {
		h.writeInternal(w, err, "no se pudo registrar la cita")
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// GetAppointment devuelve una cita preparada para el panel.
func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	ap, err := h.appointments.Find(r.Context(), id)
	if err != nil {
		if errors.Is(err, appointment.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "NOT_FOUND", "no existe ninguna cita con el identificador indicado", nil)
			return
		}
		h.writeInternal(w, err, "no se pudo consultar la cita")
		return
	}
	WriteJSON(w, http.StatusOK, ap)
}

// UpdateAppointment modifica una cita desde el panel.
func (h *Handler) UpdateAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var payload appointmentPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	result, err := h.appointments.Update(r.Context(), id, payload.toInput(), httpmiddleware.GetSubject(r.Context()))
	if err != nil {
		h.writeInternal(w, err, "no se pudo modificar la cita")
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// DeleteAppointment elimina físicamente una cita. Restringido al
// administrador.
func (h *Handler) DeleteAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	result, err := h.appointments.DeleteByID(r.Context(), id)
	if err != nil {
		h.writeInternal(w, err, "no se pudo eliminar la cita")
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// ChangeAppointmentState aplica una transición del ciclo de vida.
func (h *Handler) ChangeAppointmentState(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	state, ok := appointment.ParseState(chi.URLParam(r, "state"))
	if !ok {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "estado desconocido", nil)
		return
	}

	result, err := h.appointments.ChangeStateByID(r.Context(), id, state, httpmiddleware.GetSubject(r.Context()))
	if err != nil {
		h.writeInternal(w, err, "no se pudo cambiar el estado de la cita")
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// SendAppointmentMail reencola la convocatoria de la cita con enlaces
// compartidos nuevos.
func (h *Handler) SendAppointmentMail(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	result, err := h.appointments.SendMailByAppointmentID(r.Context(), id)
	if err != nil {
		h.writeInternal(w, err, "no se pudo encolar la convocatoria")
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// CreateOrUpdateAppointment es la entrada del sistema externo de citas:
// decide entre alta y modificación por identificador externo e identificación
// personal.
func (h *Handler) CreateOrUpdateAppointment(w http.ResponseWriter, r *http.Request) {
	var payload appointmentPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	result, err := h.appointments.CreateOrUpdate(r.Context(), payload.toInput(), httpmiddleware.GetSubject(r.Context()))
	if err != nil {
		h.writeInternal(w, err, "no se pudo registrar la cita")
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// CancelAppointmentByExternalID cancela la cita por su identificador externo.
func (h *Handler) CancelAppointmentByExternalID(w http.ResponseWriter, r *http.Request) {
	externalID := strings.TrimSpace(chi.URLParam(r, "externalId"))
	if externalID == "" {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "identificador externo ausente", nil)
		return
	}

	result, err := h.appointments.CancelByExternalID(r.Context(), externalID, httpmiddleware.GetSubject(r.Context()))
	if err != nil {
		h.writeInternal(w, err, "no se pudo cancelar la cita")
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// UserContext devuelve la vista del directorio para el usuario: sus
// departamentos y, si puede asignar, los usuarios asignables.
func (h *Handler) UserContext(w http.ResponseWriter, r *http.Request) {
	uc, err := h.policy.ContextFor(r.Context(), httpmiddleware.GetSubject(r.Context()))
	if err != nil {
		h.writeInternal(w, err, "no se pudo consultar el directorio")
		return
	}
	WriteJSON(w, http.StatusOK, uc)
}

// Departments devuelve los departamentos visibles para el usuario.
func (h *Handler) Departments(w http.ResponseWriter, r *http.Request) {
	allowed, err := h.policy.AllowedDepartmentsFor(r.Context(), httpmiddleware.GetSubject(r.Context()))
	if err != nil {
		h.writeInternal(w, err, "no se pudo consultar el directorio")
		return
	}
	WriteJSON(w, http.StatusOK, allowed)
}

// CronPurge dispara la purga de datos caducados.
func (h *Handler) CronPurge(w http.ResponseWriter, r *http.Request) {
	if err := h.appointments.Purge(r.Context(), h.notifier); err != nil {
		h.writeInternal(w, err, "la purga no pudo completarse")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CronPrepareToday pasa a Pendiente las citas Creadas de hoy.
func (h *Handler) CronPrepareToday(w http.ResponseWriter, r *http.Request) {
	result, err := h.appointments.PrepareWorkForToday(r.Context())
	if err != nil {
		h.writeInternal(w, err, "no se pudieron preparar las citas de hoy")
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) writeInternal(w http.ResponseWriter, err error, message string) {
	log.Error().Err(err).Msg(message)
	WriteError(w, http.StatusInternalServerError, "INTERNAL", message, nil)
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "identificador inválido", nil)
		return 0, false
	}
	return id, true
}

func splitParam(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
