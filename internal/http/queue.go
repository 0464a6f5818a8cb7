package http

import (
	"errors"
	"net/http"

	"github.com/videotramites/vtramit/internal/queue"
)

// ListQueue devuelve todas las entradas pendientes de la cola de correo.
func (h *Handler) ListQueue(w http.ResponseWriter, r *http.Request) {
	entries, err := h.queue.FindAll(r.Context())
	if err != nil {
		h.writeInternal(w, err, "no se pudo consultar la cola de correo")
		return
	}
	WriteJSON(w, http.StatusOK, entries)
}

// NextQueueEntry devuelve la siguiente entrada a despachar. El despachador
// externo la recoge, envía el correo y la borra.
func (h *Handler) NextQueueEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.queue.Next(r.Context())
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			WriteJSON(w, http.StatusOK, nil)
			return
		}
		h.writeInternal(w, err, "no se pudo consultar la cola de correo")
		return
	}
	WriteJSON(w, http.StatusOK, entry)
}

// GetQueueEntry devuelve una entrada concreta de la cola.
func (h *Handler) GetQueueEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	entry, err := h.queue.Find(r.Context(), id)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "NOT_FOUND", "no existe la entrada indicada", nil)
			return
		}
		h.writeInternal(w, err, "no se pudo consultar la cola de correo")
		return
	}
	WriteJSON(w, http.StatusOK, entry)
}

// DeleteQueueEntry elimina una entrada ya despachada.
func (h *Handler) DeleteQueueEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := h.queue.Delete(r.Context(), id); err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "NOT_FOUND", "no existe la entrada indicada", nil)
			return
		}
		h.writeInternal(w, err, "no se pudo eliminar la entrada")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ListAppointmentQueue devuelve los correos pendientes de una cita.
func (h *Handler) ListAppointmentQueue(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	entries, err := h.queue.FindByAppointmentID(r.Context(), id)
	if err != nil {
		h.writeInternal(w, err, "no se pudo consultar la cola de correo")
		return
	}
	WriteJSON(w, http.StatusOK, entries)
}
