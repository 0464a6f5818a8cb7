package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/videotramites/vtramit/internal/config"
	httpmiddleware "github.com/videotramites/vtramit/internal/http/middleware"
)

// moduleConfigView es la configuración que consume el panel: ajustes por
// departamento visibles para el usuario y constantes de presentación. Nunca
// expone credenciales.
type moduleConfigView struct {
	Departments     map[string]config.DepartmentSettings `json:"departments"`
	FolderUploads   string                               `json:"folderUploads"`
	FolderDownloads string                               `json:"folderDownloads"`
	DateFormat      string                               `json:"dateFormat"`
	TimeFormat      string                               `json:"timeFormat"`
	MailsAllowed    bool                                 `json:"mailsAllowed"`
	GroupLimit      []string                             `json:"groupLimit"`
}

// ModuleConfig devuelve la configuración visible para el usuario.
func (h *Handler) ModuleConfig(w http.ResponseWriter, r *http.Request) {
	allowed, err := h.policy.AllowedDepartmentsFor(r.Context(), httpmiddleware.GetSubject(r.Context()))
	if err != nil {
		h.writeInternal(w, err, "no se pudo consultar el directorio")
		return
	}

	view := moduleConfigView{
		Departments:     make(map[string]config.DepartmentSettings, len(allowed)),
		FolderUploads:   h.cfg.FolderUploads,
		FolderDownloads: h.cfg.FolderDownloads,
		DateFormat:      h.cfg.DateFormat,
		TimeFormat:      h.cfg.TimeFormat,
		MailsAllowed:    h.cfg.MailsAllowed,
		GroupLimit:      h.policy.GroupLimit(),
	}
	for _, d := range allowed {
		view.Departments[d] = h.cfg.GroupSettings(d)
	}

	WriteJSON(w, http.StatusOK, view)
}

// UpdateGroupLimit sustituye la lista de grupos con permiso de asignación.
// Solo el administrador puede tocarla; surte efecto de inmediato.
func (h *Handler) UpdateGroupLimit(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		GroupLimit []string `json:"groupLimit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "cuerpo inválido", nil)
		return
	}

	groups := make([]string, 0, len(payload.GroupLimit))
	for _, g := range payload.GroupLimit {
		if g = strings.TrimSpace(g); g != "" {
			groups = append(groups, g)
		}
	}
	h.policy.SetGroupLimit(groups)

	WriteJSON(w, http.StatusOK, map[string]any{"groupLimit": groups})
}
