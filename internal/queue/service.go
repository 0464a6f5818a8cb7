package queue

import "context"

// repository abstrae el acceso a datos para poder fijarlo en tests.
type repository interface {
	Find(ctx context.Context, id int64) (*Entry, error)
	FindAll(ctx context.Context) ([]Entry, error)
	FindByAppointmentID(ctx context.Context, appointmentID int64) ([]Entry, error)
	Next(ctx context.Context) (*Entry, error)
	Insert(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, id int64) error
	DeleteByAppointmentID(ctx context.Context, appointmentID int64) error
}

// Service gestiona la cola de correo saliente.
type Service struct {
	repo repository
}

// NewService crea una instancia del servicio.
func NewService(repo repository) *Service {
	return &Service{repo: repo}
}

// Enqueue registra un correo pendiente de envío para una cita.
func (s *Service) Enqueue(ctx context.Context, appointmentID int64, mailTo, mailCc, mailCco, subject, body string) (*Entry, error) {
	entry := &Entry{
		AppointmentID: appointmentID,
		MailTo:        mailTo,
		MailCc:        mailCc,
		MailCco:       mailCco,
		Subject:       subject,
		Body:          body,
	}
	if err := s.repo.Insert(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Find busca una entrada por identificador.
func (s *Service) Find(ctx context.Context, id int64) (*Entry, error) {
	return s.repo.Find(ctx, id)
}

// FindAll devuelve todas las entradas pendientes.
func (s *Service) FindAll(ctx context.Context) ([]Entry, error) {
	return s.repo.FindAll(ctx)
}

// FindByAppointmentID devuelve las entradas pendientes de una cita.
func (s *Service) FindByAppointmentID(ctx context.Context, appointmentID int64) ([]Entry, error) {
	return s.repo.FindByAppointmentID(ctx, appointmentID)
}

// Next devuelve la siguiente entrada a despachar, si existe.
func (s *Service) Next(ctx context.Context) (*Entry, error) {
	return s.repo.Next(ctx)
}

// Delete elimina una entrada ya despachada.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

// DeleteByAppointmentID descarta los correos pendientes de una cita; se usa
// al cancelar o eliminar la cita.
func (s *Service) DeleteByAppointmentID(ctx context.Context, appointmentID int64) error {
	return s.repo.DeleteByAppointmentID(ctx, appointmentID)
}
