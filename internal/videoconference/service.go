package videoconference

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/videotramites/vtramit/internal/appointment"
	"github.com/videotramites/vtramit/internal/util"
)

// heartbeatRepository abstrae el acceso a datos para poder fijarlo en tests.
type heartbeatRepository interface {
	FindLastByAppointmentID(ctx context.Context, appointmentID int64) (*Heartbeat, error)
	Insert(ctx context.Context, hb *Heartbeat) error
	Update(ctx context.Context, hb *Heartbeat) error
}

// appointmentSource resuelve citas por código de sala.
type appointmentSource interface {
	FindByRoomCodeAndState(ctx context.Context, roomCode string, states []appointment.State) ([]appointment.Appointment, error)
}

// Service deriva la señal de "ciudadano esperando al moderador" a partir de
// las notificaciones de conexión.
type Service struct {
	repo         heartbeatRepository
	appointments appointmentSource
	clock        util.Clock
	loc          *time.Location
}

// NewService crea una instancia del servicio.
func NewService(repo heartbeatRepository, appointments appointmentSource, clock util.Clock, loc *time.Location) *Service {
	return &Service{repo: repo, appointments: appointments, clock: clock, loc: loc}
}

// ConnectionNotified registra una notificación de presencia para la sala
// indicada. Si la sesión más reciente sigue viva solo se actualiza la última
// conexión; si caducó, o no existe, se abre una sesión nueva. Devuelve un
// indicador grueso de éxito: la llamada interesa por su efecto, no por su
// respuesta.
func (s *Service) ConnectionNotified(ctx context.Context, roomCode string) bool {
	appointments, err := s.appointments.FindByRoomCodeAndState(ctx, roomCode,
		[]appointment.State{appointment.StatePendant, appointment.StateOnCourse})
	if err != nil {
		log.Error().Err(err).Str("room_code", roomCode).Msg("no se pudo resolver la sala notificada")
		return false
	}

	now := s.clock.Now()
	for i := range appointments {
		ap := &appointments[i]
		if !ap.IsDateToday(now, s.loc) {
			continue
		}

		last, err := s.repo.FindLastByAppointmentID(ctx, ap.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			log.Error().Err(err).Int64("appointment_id", ap.ID).Msg("no se pudo leer la última sesión")
			return false
		}

		// Una sesión caducada no se actualiza: se fuerza una sesión nueva.
		if last != nil && last.IsLive(now) {
			last.LastConnection = now
			if err := s.repo.Update(ctx, last); err != nil {
				log.Error().Err(err).Int64("appointment_id", ap.ID).Msg("no se pudo actualizar la sesión")
				return false
			}
			return true
		}

		hb := &Heartbeat{AppointmentID: ap.ID, FirstConnection: now, LastConnection: now}
		if err := s.repo.Insert(ctx, hb); err != nil {
			log.Error().Err(err).Int64("appointment_id", ap.ID).Msg("no se pudo abrir la sesión")
			return false
		}
		return true
	}

	return false
}

// IsWaitingForModerator indica si hay una conexión del ciudadano esperando
// al moderador. Es una lectura puntual sin bloqueo: el valor puede cambiar
// justo después de leerlo y los consumidores deben tratarlo como orientativo.
func (s *Service) IsWaitingForModerator(ctx context.Context, ap *appointment.Appointment) bool {
	now := s.clock.Now()
	if !ap.IsDateToday(now, s.loc) {
		return false
	}

	last, err := s.repo.FindLastByAppointmentID(ctx, ap.ID)
	if err != nil {
		return false
	}
	return last.IsLive(now)
}
