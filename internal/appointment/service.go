package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/videotramites/vtramit/internal/config"
	"github.com/videotramites/vtramit/internal/docstore"
	"github.com/videotramites/vtramit/internal/queue"
	"github.com/videotramites/vtramit/internal/util"
)

// repository abstrae el acceso a datos para poder fijarlo en tests.
type repository interface {
	Find(ctx context.Context, id int64) (*Appointment, error)
	FindByExternalID(ctx context.Context, externalID string) ([]Appointment, error)
	FindByRoomCode(ctx context.Context, roomCode string) ([]Appointment, error)
	FindByRoomCodeAndState(ctx context.Context, roomCode string, states []State) ([]Appointment, error)
	Search(ctx context.Context, filter SearchFilter) ([]Appointment, error)
	FindNotAnonymizedOlderThan(ctx context.Context, cutoff time.Time, anonymousDomain string) ([]Appointment, error)
	FindNotAnonymizedByStateOlderThan(ctx context.Context, state State, cutoff time.Time, anonymousDomain string) ([]Appointment, error)
	Insert(ctx context.Context, ap *Appointment) error
	Update(ctx context.Context, ap *Appointment) error
	Delete(ctx context.Context, id int64) error
	CancelPendingByExternalID(ctx context.Context, externalID string, exclude []int64, now time.Time) ([]Appointment, error)
	PromoteCreatedToPendant(ctx context.Context, minDate, maxDate, now time.Time) (int64, error)
}

// mailQueue abstrae la cola de correo saliente.
type mailQueue interface {
	Enqueue(ctx context.Context, appointmentID int64, mailTo, mailCc, mailCco, subject, body string) (*queue.Entry, error)
	DeleteByAppointmentID(ctx context.Context, appointmentID int64) error
}

// PresenceChecker consulta si el ciudadano está esperando en la sala. Lo
// implementa el servicio de videoconferencia; se declara aquí para romper la
// dependencia circular entre paquetes.
type PresenceChecker interface {
	IsWaitingForModerator(ctx context.Context, ap *Appointment) bool
}

// DepartmentResolver devuelve los departamentos visibles para un usuario. Lo
// implementa la política del directorio.
type DepartmentResolver interface {
	AllowedDepartmentsFor(ctx context.Context, userID string) ([]string, error)
}

// Service orquesta el ciclo de vida de las citas: alta, modificación,
// transiciones de estado, cancelación, convocatoria por correo y estructura
// documental.
type Service struct {
	repo     repository
	mails    mailQueue
	store    docstore.Store
	presence PresenceChecker
	resolver DepartmentResolver
	clock    util.Clock
	cfg      *config.Config
	validate *validator.Validate
}

// NewService crea el servicio de citas.
func NewService(repo repository, mails mailQueue, store docstore.Store, presence PresenceChecker, resolver DepartmentResolver, clock util.Clock, cfg *config.Config) *Service {
	return &Service{
		repo:     repo,
		mails:    mails,
		store:    store,
		presence: presence,
		resolver: resolver,
		clock:    clock,
		cfg:      cfg,
		validate: newValidator(),
	}
}

// Create registra una cita nueva. La cita nace Inicializando, recibe sala de
// videollamada propia y estructura documental, y termina Pendiente si es para
// hoy o Creada en caso contrario. Una cita con fecha de más de un día en el
// pasado se registra y se elimina acto seguido.
func (s *Service) Create(ctx context.Context, in Input, userID string) (*Result, error) {
	if msgs := s.validateInput(opCreate, in); len(msgs) > 0 {
		return &Result{Outcome: OutcomeKO, Messages: msgs}, nil
	}

	now := s.clock.Now()
	ap := &Appointment{
		ExternalID: in.ExternalID,
		CitizenID:  in.CitizenID,
		Department: in.Department,
		Date:       in.Date,
		Comments:   in.Comments,
		Name:       in.Name,
		Phone:      in.Phone,
		Email:      in.Email,
		Topic:      in.Topic,
		AssignedTo: in.AssignedTo,
		State:      StateInitializing,
		StateDate:  now,
		UserID:     userID,
	}
	ap.RoomCode = strings.ToLower(ap.ExternalID + "-" + util.RandomString(16, ""))
	ap.StaffRoomURL = s.cfg.StaffVideoURL + "/" + ap.RoomCode
	ap.CitizenRoomURL = s.cfg.CitizenVideoURL + "/" + ap.RoomCode

	if err := s.repo.Insert(ctx, ap); err != nil {
		return nil, err
	}

	// Solo puede llegar por la API: una cita con más de un día de
	// antigüedad no tiene sentido atenderla.
	if ap.Date.Before(now.Add(-24 * time.Hour)) {
		if _, err := s.Delete(ctx, ap); err != nil {
			return nil, err
		}
		return okResult("Cita eliminada por antigüedad", ap), nil
	}

	message, err := s.createStructure(ctx, ap, true, userID)
	if err != nil {
		return nil, err
	}

	if ap.IsDateToday(now, s.cfg.Timezone) {
		ap.ChangeState(StatePendant, now)
	} else {
		ap.ChangeState(StateCreated, now)
	}
	if err := s.repo.Update(ctx, ap); err != nil {
		return nil, err
	}

	s.prepareForPanel(ctx, ap)
	return okResult(message, ap), nil
}

// Update modifica una cita existente. Si nada cambia la operación es neutra.
// Un cambio de identificador externo o de identificación personal reinicia el
// ciclo de la cita; un cambio de correo o de fecha reenvía la convocatoria.
func (s *Service) Update(ctx context.Context, id int64, in Input, userID string) (*Result, error) {
	if msgs := s.validateInput(opUpdate, in); len(msgs) > 0 {
		return &Result{Outcome: OutcomeKO, Messages: msgs}, nil
	}

	ap, err := s.repo.Find(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return koResult("No existe ninguna cita con el identificador indicado", nil), nil
		}
		return nil, err
	}

	if ap.ExternalID == in.ExternalID &&
		ap.CitizenID == in.CitizenID &&
		ap.Department == in.Department &&
		ap.Comments == in.Comments &&
		ap.Date.Equal(in.Date) &&
		ap.Name == in.Name &&
		ap.Phone == in.Phone &&
		ap.Email == in.Email &&
		ap.Topic == in.Topic &&
		(in.AssignedTo == "" || in.AssignedTo == ap.AssignedTo) {
		s.prepareForPanel(ctx, ap)
		msg := fmt.Sprintf("La cita %s ya está registrada para la persona con identificación %s", ap.ExternalID, ap.CitizenID)
		return okResult(msg, ap), nil
	}

	now := s.clock.Now()

	restart := ap.ExternalID != in.ExternalID || ap.CitizenID != in.CitizenID
	if restart {
		ap.ChangeState(StateInitializing, now)
		ap.UserID = userID
	}
	sendMail := ap.Email != in.Email || !ap.Date.Equal(in.Date)

	ap.ExternalID = in.ExternalID
	ap.CitizenID = in.CitizenID
	ap.Department = in.Department
	ap.Comments = in.Comments
	ap.Date = in.Date
	ap.Name = in.Name
	ap.Phone = in.Phone
	ap.Email = in.Email
	ap.Topic = in.Topic
	if in.AssignedTo != "" {
		ap.AssignedTo = in.AssignedTo
	}

	message, err := s.createStructure(ctx, ap, sendMail, userID)
	if err != nil {
		return nil, err
	}

	if restart {
		ap.ChangeState(StateCreated, now)
	}
	if ap.State == StateCreated && ap.IsDateToday(now, s.cfg.Timezone) {
		ap.ChangeState(StatePendant, now)
	}
	if err := s.repo.Update(ctx, ap); err != nil {
		return nil, err
	}

	s.prepareForPanel(ctx, ap)
	return okResult(message, ap), nil
}

// CreateOrUpdate decide entre alta y modificación según el par identificador
// externo e identificación personal. Una cita terminal con el mismo par se
// devuelve tal cual, sin tocarla.
func (s *Service) CreateOrUpdate(ctx context.Context, in Input, userID string) (*Result, error) {
	found, err := s.repo.FindByExternalID(ctx, in.ExternalID)
	if err != nil {
		return nil, err
	}

	for i := range found {
		existing := &found[i]
		if existing.CitizenID != in.CitizenID {
			continue
		}
		if existing.State.IsTerminal() {
			s.prepareForPanel(ctx, existing)
			msg := fmt.Sprintf("La cita %s ya está registrada para la persona con identificación %s", existing.ExternalID, existing.CitizenID)
			return okResult(msg, existing), nil
		}
		in.AssignedTo = ""
		return s.Update(ctx, existing.ID, in, userID)
	}

	return s.Create(ctx, in, userID)
}

// Cancel cancela y anonimiza la cita. La condición de cancelable se captura
// antes de mutar nada: tras el primer paso el estado ya es Cancelada y la
// anonimización no se decidiría nunca. Las carpetas se eliminan siempre,
// también para citas que ya no son cancelables.
func (s *Service) Cancel(ctx context.Context, ap *Appointment, userID string) (*Result, error) {
	cancellable := ap.CanCancel()

	now := s.clock.Now()
	if cancellable {
		ap.ChangeState(StateCancelled, now)
		if err := s.repo.Update(ctx, ap); err != nil {
			return nil, err
		}
	}

	if err := s.store.DeletePath(ctx, s.appointmentPath(ap)); err != nil {
		log.Error().Err(err).Str("external_id", ap.ExternalID).Msg("no se pudieron eliminar las carpetas de la cita")
	}

	if cancellable {
		if err := s.anonymize(ctx, ap); err != nil {
			return nil, err
		}
	}
	if ap.ID != 0 {
		if err := s.mails.DeleteByAppointmentID(ctx, ap.ID); err != nil {
			return nil, err
		}
	}

	s.prepareForPanel(ctx, ap)
	return okResult("Cita cancelada", ap), nil
}

// CancelByID cancela la cita con el identificador interno indicado.
func (s *Service) CancelByID(ctx context.Context, id int64, userID string) (*Result, error) {
	ap, err := s.repo.Find(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return koResult("No existe ninguna cita con el identificador indicado", nil), nil
		}
		return nil, err
	}
	return s.Cancel(ctx, ap, userID)
}

// CancelByExternalID cancela la primera cita registrada con el identificador
// externo indicado.
func (s *Service) CancelByExternalID(ctx context.Context, externalID, userID string) (*Result, error) {
	appointments, err := s.repo.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if len(appointments) == 0 {
		return koResult("No existe ninguna cita con el identificador externo indicado", nil), nil
	}
	return s.Cancel(ctx, &appointments[0], userID)
}

// Delete elimina físicamente la cita, su cola de correo y sus carpetas.
// Admite citas sin fila en base de datos pero con carpetas creadas.
func (s *Service) Delete(ctx context.Context, ap *Appointment) (*Result, error) {
	if ap.ID != 0 {
		if err := s.mails.DeleteByAppointmentID(ctx, ap.ID); err != nil {
			return nil, err
		}
		if err := s.repo.Delete(ctx, ap.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	if err := s.store.DeletePath(ctx, s.appointmentPath(ap)); err != nil {
		log.Error().Err(err).Str("external_id", ap.ExternalID).Msg("no se pudieron eliminar las carpetas de la cita")
	}
	return okResult("Cita eliminada", ap), nil
}

// DeleteByID elimina la cita con el identificador interno indicado.
func (s *Service) DeleteByID(ctx context.Context, id int64) (*Result, error) {
	ap, err := s.repo.Find(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return koResult("No existe ninguna cita con el identificador indicado", nil), nil
		}
		return nil, err
	}
	return s.Delete(ctx, ap)
}

// ChangeState aplica la transición solicitada si las reglas del ciclo de vida
// la permiten. Pedir el estado actual es neutro y la cancelación delega en su
// flujo propio.
func (s *Service) ChangeState(ctx context.Context, ap *Appointment, newState State, userID string) (*Result, error) {
	if ap.State == newState {
		s.prepareForPanel(ctx, ap)
		return okResult("La cita ya está en el estado solicitado", ap), nil
	}

	if newState == StateCancelled {
		return s.Cancel(ctx, ap, userID)
	}

	now := s.clock.Now()
	allowed := false
	switch newState {
	case StateInitializing:
		allowed = ap.CanInitialize()
	case StateCreated:
		allowed = ap.CanCreate()
	case StatePendant:
		allowed = ap.CanPend(now, s.cfg.Timezone)
	case StateOnCourse:
		allowed = ap.CanStart()
	case StateFinished:
		allowed = ap.CanFinish()
	case StateCompleted:
		allowed = ap.CanComplete()
	}

	if !allowed {
		s.prepareForPanel(ctx, ap)
		return koResult("El nuevo estado no está permitido para la cita", ap), nil
	}

	ap.ChangeState(newState, now)
	if err := s.repo.Update(ctx, ap); err != nil {
		return nil, err
	}
	s.prepareForPanel(ctx, ap)
	return okResult("Cita actualizada", ap), nil
}

// ChangeStateByID aplica la transición sobre la cita con el identificador
// interno indicado.
func (s *Service) ChangeStateByID(ctx context.Context, id int64, newState State, userID string) (*Result, error) {
	ap, err := s.repo.Find(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return koResult("No existe ninguna cita con el identificador indicado", nil), nil
		}
		return nil, err
	}
	return s.ChangeState(ctx, ap, newState, userID)
}

// Find devuelve la cita preparada para el panel.
func (s *Service) Find(ctx context.Context, id int64) (*Appointment, error) {
	ap, err := s.repo.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	s.prepareForPanel(ctx, ap)
	return ap, nil
}

// Search devuelve las citas visibles para el usuario según los filtros del
// panel. Sin departamentos explícitos se usan los visibles para el usuario;
// sin rango de fechas se consulta el día de hoy.
func (s *Service) Search(ctx context.Context, userID string, filter SearchFilter) ([]Appointment, error) {
	if len(filter.Departments) == 0 {
		allowed, err := s.resolver.AllowedDepartmentsFor(ctx, userID)
		if err != nil {
			return nil, err
		}
		filter.Departments = allowed
	}

	if filter.MinDate == nil && filter.MaxDate == nil {
		now := s.clock.Now().In(s.cfg.Timezone)
		min := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.cfg.Timezone)
		max := min.Add(24 * time.Hour)
		filter.MinDate = &min
		filter.MaxDate = &max
	}

	appointments, err := s.repo.Search(ctx, filter)
	if err != nil {
		return nil, err
	}
	for i := range appointments {
		s.prepareForPanel(ctx, &appointments[i])
	}
	return appointments, nil
}

// PrepareWorkForToday pasa en bloque a Pendiente las citas Creadas con fecha
// de hoy. Pensado para ejecutarse a primera hora desde el planificador.
func (s *Service) PrepareWorkForToday(ctx context.Context) (*Result, error) {
	now := s.clock.Now().In(s.cfg.Timezone)
	min := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.cfg.Timezone)
	max := min.Add(24 * time.Hour)

	count, err := s.repo.PromoteCreatedToPendant(ctx, min, max, s.clock.Now())
	if err != nil {
		return nil, err
	}
	return okResult(fmt.Sprintf("%d citas preparadas para ser atendidas hoy", count), nil), nil
}

// SendMailByAppointment comparte las carpetas de la cita con una contraseña
// nueva y encola el correo de convocatoria. Con save la cita se persiste con
// los enlaces compartidos actualizados.
func (s *Service) SendMailByAppointment(ctx context.Context, ap *Appointment, save bool) (*Result, error) {
	if ap.Email == "" {
		return koResult("No hay correo al que dirigir el mensaje", nil), nil
	}

	pin := util.RandomPIN(8)
	if err := s.shareCitizenFolders(ctx, ap, pin); err != nil {
		return nil, err
	}
	if save {
		if err := s.repo.Update(ctx, ap); err != nil {
			return nil, err
		}
	}

	subject := s.cfg.GroupMailSubject(ap.Department)
	body, err := s.mailBody(ap, pin)
	if err != nil {
		return nil, err
	}
	if _, err := s.mails.Enqueue(ctx, ap.ID, ap.Email, "", "", subject, body); err != nil {
		return nil, err
	}

	return okResult("Mensaje registrado para envío", ap), nil
}

// SendMailByAppointmentID encola la convocatoria de la cita indicada y
// persiste los enlaces compartidos nuevos.
func (s *Service) SendMailByAppointmentID(ctx context.Context, id int64) (*Result, error) {
	ap, err := s.repo.Find(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return koResult("No existe ninguna cita con el identificador indicado", nil), nil
		}
		return nil, err
	}
	return s.SendMailByAppointment(ctx, ap, true)
}

// VideoconferenceFinished marca como Finalizadas las citas de hoy en espera o
// en curso de la sala indicada. Si el departamento tiene formulario de
// confirmación, la respuesta incluye la redirección.
func (s *Service) VideoconferenceFinished(ctx context.Context, roomCode, userID string) (*Result, error) {
	appointments, err := s.repo.FindByRoomCodeAndState(ctx, roomCode, []State{StatePendant, StateOnCourse})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var current *Appointment
	for i := range appointments {
		ap := &appointments[i]
		if !ap.IsDateToday(now, s.cfg.Timezone) {
			continue
		}
		ap.ChangeState(StateFinished, now)
		if err := s.repo.Update(ctx, ap); err != nil {
			return nil, err
		}
		current = ap
	}

	if current == nil {
		return errorResult("No hay citas de hoy en curso para la videoconferencia notificada", nil), nil
	}

	s.prepareForPanel(ctx, current)
	result := okResult("Cita finalizada", current)
	result.Redirect = s.cfg.GroupConfirmationForm(current.Department)
	return result, nil
}

// VideoconferenceLinks devuelve la última cita asociada al código de sala,
// con sus enlaces de videollamada.
func (s *Service) VideoconferenceLinks(ctx context.Context, roomCode string) (*Result, error) {
	appointments, err := s.repo.FindByRoomCode(ctx, roomCode)
	if err != nil {
		return nil, err
	}
	if len(appointments) == 0 {
		return errorResult("No se ha encontrado ninguna cita para la videoconferencia notificada", nil), nil
	}
	current := &appointments[len(appointments)-1]
	s.prepareForPanel(ctx, current)
	return okResult("", current), nil
}

// createStructure deja la cita lista para ser atendida: cancela duplicados
// con el mismo identificador externo, crea las carpetas del ciudadano con su
// Readme y, si procede, encola la convocatoria. Devuelve el mensaje para el
// resultado final.
func (s *Service) createStructure(ctx context.Context, ap *Appointment, sendEmail bool, userID string) (string, error) {
	cancelled, err := s.repo.CancelPendingByExternalID(ctx, ap.ExternalID, []int64{ap.ID}, s.clock.Now())
	if err != nil {
		return "", err
	}
	for i := range cancelled {
		dup := &cancelled[i]
		// El duplicado ya quedó Cancelado en base de datos: solo falta
		// retirar sus carpetas y su correo pendiente. La anonimización
		// llegará con la purga.
		if err := s.store.DeletePath(ctx, s.appointmentPath(dup)); err != nil {
			log.Error().Err(err).Str("external_id", dup.ExternalID).Msg("no se pudieron eliminar las carpetas del duplicado")
		}
		if err := s.mails.DeleteByAppointmentID(ctx, dup.ID); err != nil {
			return "", err
		}
	}

	if err := s.store.EnsureFolder(ctx, s.documentsPath(ap, s.cfg.FolderUploads)); err != nil {
		return "", err
	}
	if err := s.store.EnsureFolder(ctx, s.documentsPath(ap, s.cfg.FolderDownloads)); err != nil {
		return "", err
	}
	if err := s.store.WriteFile(ctx, s.readmePath(ap), strings.NewReader(s.readmeContent(ap))); err != nil {
		return "", err
	}

	if !sendEmail {
		return "Cita registrada", nil
	}
	if !s.cfg.MailsAllowed {
		return "Cita registrada sin envío de correo (servicio desactivado)", nil
	}

	result, err := s.SendMailByAppointment(ctx, ap, false)
	if err != nil {
		return "", err
	}
	if !result.IsOK() {
		return "Cita registrada sin envío de correo (destinatario no informado)", nil
	}
	return "Cita registrada", nil
}

// shareCitizenFolders publica las carpetas de entrada y salida con la misma
// contraseña y deja los enlaces en la cita. La carpeta de entrada admite
// subida de documentos.
func (s *Service) shareCitizenFolders(ctx context.Context, ap *Appointment, password string) error {
	uploads, err := s.store.ShareFolder(ctx, s.documentsPath(ap, s.cfg.FolderUploads), password, true)
	if err != nil {
		return err
	}
	ap.SharedURLUploads = uploads.URL

	downloads, err := s.store.ShareFolder(ctx, s.documentsPath(ap, s.cfg.FolderDownloads), password, false)
	if err != nil {
		return err
	}
	ap.SharedURLDownloads = downloads.URL
	return nil
}

// anonymize sustituye los datos personales por valores sintéticos. El correo
// queda bajo el dominio anónimo, que es también la marca de cita ya
// anonimizada.
func (s *Service) anonymize(ctx context.Context, ap *Appointment) error {
	ap.Name = util.RandomString(100, " ")
	ap.CitizenID = util.RandomString(12, "")
	ap.Phone = util.RandomPhone()
	ap.Email = util.RandomString(15, "") + "@" + s.cfg.AnonymousDomain
	ap.Comments = util.RandomString(200, " ")
	return s.repo.Update(ctx, ap)
}

// prepareForPanel completa los campos derivados que consume el panel. Las
// consultas auxiliares nunca tumban la respuesta: ante un fallo el campo
// queda con su valor neutro.
func (s *Service) prepareForPanel(ctx context.Context, ap *Appointment) {
	ap.RefreshPanelFlags(s.clock.Now(), s.cfg.Timezone)
	ap.AllowSendEmail = true

	if s.presence != nil {
		ap.IsWaitingForModerator = s.presence.IsWaitingForModerator(ctx, ap)
	}

	if s.store != nil {
		if ok, err := s.store.Exists(ctx, s.documentsPath(ap, s.cfg.FolderUploads)); err == nil && ok {
			ap.URLUploads = s.webDocumentsURL(ap, s.cfg.FolderUploads)
		}
		if ok, err := s.store.Exists(ctx, s.documentsPath(ap, s.cfg.FolderDownloads)); err == nil && ok {
			ap.URLDownloads = s.webDocumentsURL(ap, s.cfg.FolderDownloads)
		}
	}
}

func (s *Service) appointmentPath(ap *Appointment) string {
	return ap.Department + "/" + ap.CitizenID + "/" + ap.ExternalID
}

func (s *Service) documentsPath(ap *Appointment, folder string) string {
	return s.appointmentPath(ap) + "/" + folder
}

func (s *Service) readmePath(ap *Appointment) string {
	return s.appointmentPath(ap) + "/Readme.md"
}

func (s *Service) webDocumentsURL(ap *Appointment, folder string) string {
	return s.cfg.Nextcloud.BaseURL + "/apps/files/?dir=/" + s.documentsPath(ap, folder)
}
