package appointment

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound se devuelve cuando la cita no existe.
	ErrNotFound = errors.New("cita no encontrada")
)

// State representa el estado del ciclo de vida de una cita.
type State int

const (
	StateInitializing State = iota
	StateCreated
	StatePendant
	StateOnCourse
	StateFinished
	StateCompleted
	StateCancelled
)

var stateDescriptions = map[State]string{
	StateInitializing: "Inicializando",
	StateCreated:      "Creada",
	StatePendant:      "Pendiente",
	StateOnCourse:     "En curso",
	StateFinished:     "Finalizada",
	StateCompleted:    "Completada",
	StateCancelled:    "Cancelada",
}

var stateNames = map[string]State{
	"initializing": StateInitializing,
	"created":      StateCreated,
	"pendant":      StatePendant,
	"oncourse":     StateOnCourse,
	"finished":     StateFinished,
	"completed":    StateCompleted,
	"cancelled":    StateCancelled,
}

// IsValid indica si el valor corresponde a un estado conocido.
func (s State) IsValid() bool {
	return s >= StateInitializing && s <= StateCancelled
}

// IsTerminal indica si el estado no admite más transiciones (salvo la
// anonimización, que no es una transición).
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// Description devuelve la descripción del estado para el panel.
func (s State) Description() string {
	if desc, ok := stateDescriptions[s]; ok {
		return desc
	}
	return ""
}

// ParseState resuelve un nombre de estado de la API ("oncourse", "finished"...).
func ParseState(name string) (State, bool) {
	state, ok := stateNames[strings.ToLower(strings.TrimSpace(name))]
	return state, ok
}

// Appointment representa una cita de atención por videollamada.
type Appointment struct {
	ID         int64     `json:"id"`
	ExternalID string    `json:"externalId"`
	CitizenID  string    `json:"citizenId"`
	Department string    `json:"department"`
	Date       time.Time `json:"date"`
	Comments   string    `json:"comments"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone"`
	Email      string    `json:"email"`
	Topic      string    `json:"topic"`
	AssignedTo string    `json:"assignedTo"`
	State      State     `json:"state"`
	StateDate  time.Time `json:"stateDate"`
	UserID     string    `json:"userId"`

	RoomCode       string `json:"roomCode"`
	StaffRoomURL   string `json:"staffRoomUrl"`
	CitizenRoomURL string `json:"citizenRoomUrl"`

	SharedURLUploads   string `json:"sharedUrlUploads"`
	SharedURLDownloads string `json:"sharedUrlDownloads"`

	// Campos calculados para el panel; nunca se persisten.
	StateDesc             string `json:"stateDesc,omitempty"`
	URLUploads            string `json:"urlUploads,omitempty"`
	URLDownloads          string `json:"urlDownloads,omitempty"`
	AllowedForConference  bool   `json:"allowedForConference"`
	AllowStatePendant     bool   `json:"allowStatePendant"`
	AllowStateFinished    bool   `json:"allowStateFinished"`
	AllowStateCompleted   bool   `json:"allowStateCompleted"`
	AllowStateCancelled   bool   `json:"allowStateCancelled"`
	AllowSendEmail        bool   `json:"allowSendEmail"`
	IsWaitingForModerator bool   `json:"isWaitingForModerator"`
}

// ChangeState aplica el nuevo estado. La fecha de estado solo cambia cuando
// cambia el estado.
func (a *Appointment) ChangeState(state State, now time.Time) {
	if state == a.State {
		return
	}
	a.State = state
	a.StateDate = now
}

// CanInitialize indica si la cita puede quedarse en el estado inicial: solo
// cuando aún no ha avanzado.
func (a *Appointment) CanInitialize() bool {
	return a.State == StateInitializing
}

// CanCreate indica si la cita puede pasar a Creada.
func (a *Appointment) CanCreate() bool {
	return a.ID != 0 && a.State == StateInitializing
}

// CanPend indica si la cita puede pasar a Pendiente: además de venir de
// Creada, la cita debe ser para hoy.
func (a *Appointment) CanPend(now time.Time, loc *time.Location) bool {
	return a.ID != 0 && a.State == StateCreated && a.IsDateToday(now, loc)
}

// CanStart indica si la cita puede pasar a En curso.
func (a *Appointment) CanStart() bool {
	return a.ID != 0 && a.State == StatePendant
}

// CanFinish indica si la cita puede pasar a Finalizada.
func (a *Appointment) CanFinish() bool {
	return a.ID != 0 && (a.State == StatePendant || a.State == StateOnCourse)
}

// CanComplete indica si la cita puede pasar a Completada.
func (a *Appointment) CanComplete() bool {
	return a.ID != 0 && (a.State == StatePendant || a.State == StateOnCourse || a.State == StateFinished)
}

// CanCancel indica si la cita puede pasar a Cancelada. Los estados
// terminales quedan fuera.
func (a *Appointment) CanCancel() bool {
	if a.ID == 0 {
		return false
	}
	switch a.State {
	case StateInitializing, StateCreated, StatePendant, StateOnCourse, StateFinished:
		return true
	}
	return false
}

// CanJoinConference indica si la cita tiene sala y un estado que admite
// entrar en videollamada.
func (a *Appointment) CanJoinConference() bool {
	if a.RoomCode == "" || a.StaffRoomURL == "" || a.CitizenRoomURL == "" {
		return false
	}
	switch a.State {
	case StateCreated, StatePendant, StateOnCourse, StateFinished, StateCompleted:
		return true
	}
	return false
}

// IsDateToday indica si la cita está programada para el día natural actual
// en la zona horaria configurada. Una cita sin fecha nunca es "de hoy".
func (a *Appointment) IsDateToday(now time.Time, loc *time.Location) bool {
	if a.Date.IsZero() {
		return false
	}
	y1, m1, d1 := a.Date.In(loc).Date()
	y2, m2, d2 := now.In(loc).Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// IsAnonymized indica si la cita ya pasó por la anonimización, detectada por
// el sufijo del dominio anónimo en el correo.
func (a *Appointment) IsAnonymized(anonymousDomain string) bool {
	return strings.HasSuffix(a.Email, "@"+anonymousDomain)
}

// DateAsString formatea la fecha de la cita en la zona horaria indicada.
func (a *Appointment) DateAsString(layout string, loc *time.Location) string {
	if a.Date.IsZero() {
		return ""
	}
	return a.Date.In(loc).Format(layout)
}

// RefreshPanelFlags recalcula los campos derivados que consume el panel.
func (a *Appointment) RefreshPanelFlags(now time.Time, loc *time.Location) {
	a.StateDesc = a.State.Description()
	a.AllowedForConference = a.CanJoinConference()
	a.AllowStatePendant = a.CanPend(now, loc)
	a.AllowStateFinished = a.CanFinish()
	a.AllowStateCompleted = a.CanComplete()
	a.AllowStateCancelled = a.CanCancel()
}
