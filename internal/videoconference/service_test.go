package videoconference

import (
	"context"
	"testing"
	"time"

	"github.com/videotramites/vtramit/internal/appointment"
	"github.com/videotramites/vtramit/internal/util"
)

type stubHeartbeatRepo struct {
	last        *Heartbeat
	inserted    []*Heartbeat
	updateCalls int
	nextID      int64
}

func (r *stubHeartbeatRepo) FindLastByAppointmentID(ctx context.Context, appointmentID int64) (*Heartbeat, error) {
	if r.last == nil || r.last.AppointmentID != appointmentID {
		return nil, ErrNotFound
	}
	cpy := *r.last
	return &cpy, nil
}

func (r *stubHeartbeatRepo) Insert(ctx context.Context, hb *Heartbeat) error {
	r.nextID++
	hb.ID = r.nextID
	r.inserted = append(r.inserted, hb)
	r.last = hb
	return nil
}

func (r *stubHeartbeatRepo) Update(ctx context.Context, hb *Heartbeat) error {
	r.updateCalls++
	r.last = hb
	return nil
}

type stubAppointments struct {
	appointments []appointment.Appointment
}

func (s *stubAppointments) FindByRoomCodeAndState(ctx context.Context, roomCode string, states []appointment.State) ([]appointment.Appointment, error) {
	var out []appointment.Appointment
	for _, ap := range s.appointments {
		if ap.RoomCode != roomCode {
			continue
		}
		for _, state := range states {
			if ap.State == state {
				out = append(out, ap)
				break
			}
		}
	}
	return out, nil
}

func testService(t *testing.T, repo *stubHeartbeatRepo, source *stubAppointments, now time.Time) *Service {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Madrid")
	if err != nil {
		t.Fatalf("no se pudo cargar la zona horaria: %v", err)
	}
	return NewService(repo, source, util.FixedClock{Instant: now}, loc)
}

func madridTime(t *testing.T) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Madrid")
	if err != nil {
		t.Fatalf("no se pudo cargar la zona horaria: %v", err)
	}
	return time.Date(2026, 3, 10, 10, 0, 0, 0, loc)
}

func todayAppointment(now time.Time) appointment.Appointment {
	return appointment.Appointment{
		ID:       7,
		RoomCode: "exp-1-abcdefgh12345678",
		Date:     now.Add(time.Hour),
		State:    appointment.StatePendant,
	}
}

func TestConnectionNotifiedExtendsLiveSession(t *testing.T) {
	now := madridTime(t)
	repo := &stubHeartbeatRepo{
		last: &Heartbeat{ID: 1, AppointmentID: 7, FirstConnection: now.Add(-time.Minute), LastConnection: now.Add(-5 * time.Second)},
	}
	source := &stubAppointments{appointments: []appointment.Appointment{todayAppointment(now)}}
	svc := testService(t, repo, source, now)

	if !svc.ConnectionNotified(context.Background(), "exp-1-abcdefgh12345678") {
		t.Fatalf("la notificación sobre una sala válida debe registrarse")
	}
	if repo.updateCalls != 1 || len(repo.inserted) != 0 {
		t.Fatalf("una sesión viva se prorroga, no se duplica: updates=%d inserts=%d", repo.updateCalls, len(repo.inserted))
	}
	if !repo.last.LastConnection.Equal(now) {
		t.Fatalf("la última conexión debe avanzar al instante actual")
	}
}

func TestConnectionNotifiedOpensNewSessionWhenStale(t *testing.T) {
	now := madridTime(t)
	repo := &stubHeartbeatRepo{
		last: &Heartbeat{ID: 1, AppointmentID: 7, FirstConnection: now.Add(-time.Minute), LastConnection: now.Add(-11 * time.Second)},
	}
	source := &stubAppointments{appointments: []appointment.Appointment{todayAppointment(now)}}
	svc := testService(t, repo, source, now)

	if !svc.ConnectionNotified(context.Background(), "exp-1-abcdefgh12345678") {
		t.Fatalf("la notificación debe registrarse")
	}
	if repo.updateCalls != 0 || len(repo.inserted) != 1 {
		t.Fatalf("una sesión caducada fuerza sesión nueva: updates=%d inserts=%d", repo.updateCalls, len(repo.inserted))
	}
	hb := repo.inserted[0]
	if !hb.FirstConnection.Equal(now) || !hb.LastConnection.Equal(now) {
		t.Fatalf("la sesión nueva arranca en el instante actual: %+v", hb)
	}
}

func TestConnectionNotifiedIgnoresOtherDays(t *testing.T) {
	now := madridTime(t)
	ap := todayAppointment(now)
	ap.Date = now.Add(-48 * time.Hour)
	repo := &stubHeartbeatRepo{}
	source := &stubAppointments{appointments: []appointment.Appointment{ap}}
	svc := testService(t, repo, source, now)

	if svc.ConnectionNotified(context.Background(), ap.RoomCode) {
		t.Fatalf("las citas de otros días no registran presencia")
	}
	if len(repo.inserted) != 0 || repo.updateCalls != 0 {
		t.Fatalf("no debe tocarse el repositorio")
	}
}

func TestConnectionNotifiedUnknownRoom(t *testing.T) {
	now := madridTime(t)
	repo := &stubHeartbeatRepo{}
	svc := testService(t, repo, &stubAppointments{}, now)

	if svc.ConnectionNotified(context.Background(), "sala-desconocida") {
		t.Fatalf("una sala sin citas no registra nada")
	}
}

func TestIsWaitingForModerator(t *testing.T) {
	now := madridTime(t)
	ap := todayAppointment(now)

	repo := &stubHeartbeatRepo{
		last: &Heartbeat{ID: 1, AppointmentID: ap.ID, FirstConnection: now.Add(-time.Minute), LastConnection: now.Add(-3 * time.Second)},
	}
	svc := testService(t, repo, &stubAppointments{}, now)
	if !svc.IsWaitingForModerator(context.Background(), &ap) {
		t.Fatalf("una sesión viva de hoy marca al ciudadano como esperando")
	}

	repo.last.LastConnection = now.Add(-FreshnessWindow)
	if svc.IsWaitingForModerator(context.Background(), &ap) {
		t.Fatalf("una sesión caducada ya no cuenta como espera")
	}

	other := ap
	other.Date = now.Add(-48 * time.Hour)
	repo.last.LastConnection = now
	if svc.IsWaitingForModerator(context.Background(), &other) {
		t.Fatalf("una cita de otro día nunca está en espera")
	}
}
