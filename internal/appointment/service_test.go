package appointment

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/videotramites/vtramit/internal/config"
	"github.com/videotramites/vtramit/internal/docstore"
	"github.com/videotramites/vtramit/internal/queue"
	"github.com/videotramites/vtramit/internal/util"
)

type stubRepo struct {
	items  []*Appointment
	nextID int64

	lastFilter  SearchFilter
	promoteMin  time.Time
	promoteMax  time.Time
	updateCalls int
}

func (r *stubRepo) seed(ap Appointment) *Appointment {
	r.nextID++
	if ap.ID == 0 {
		ap.ID = r.nextID
	}
	cpy := ap
	r.items = append(r.items, &cpy)
	return &cpy
}

func (r *stubRepo) byID(id int64) *Appointment {
	for _, item := range r.items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

func (r *stubRepo) Find(ctx context.Context, id int64) (*Appointment, error) {
	if item := r.byID(id); item != nil {
		cpy := *item
		return &cpy, nil
	}
	return nil, ErrNotFound
}

func (r *stubRepo) FindByExternalID(ctx context.Context, externalID string) ([]Appointment, error) {
	var out []Appointment
	for _, item := range r.items {
		if item.ExternalID == externalID {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (r *stubRepo) FindByRoomCode(ctx context.Context, roomCode string) ([]Appointment, error) {
	var out []Appointment
	for _, item := range r.items {
		if item.RoomCode == roomCode {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (r *stubRepo) FindByRoomCodeAndState(ctx context.Context, roomCode string, states []State) ([]Appointment, error) {
	var out []Appointment
	for _, item := range r.items {
		if item.RoomCode != roomCode {
			continue
		}
		for _, state := range states {
			if item.State == state {
				out = append(out, *item)
				break
			}
		}
	}
	return out, nil
}

func (r *stubRepo) Search(ctx context.Context, filter SearchFilter) ([]Appointment, error) {
	r.lastFilter = filter
	var out []Appointment
	for _, item := range r.items {
		out = append(out, *item)
	}
	return out, nil
}

func (r *stubRepo) FindNotAnonymizedOlderThan(ctx context.Context, cutoff time.Time, anonymousDomain string) ([]Appointment, error) {
	var out []Appointment
	for _, item := range r.items {
		if !item.StateDate.After(cutoff) && !item.IsAnonymized(anonymousDomain) {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (r *stubRepo) FindNotAnonymizedByStateOlderThan(ctx context.Context, state State, cutoff time.Time, anonymousDomain string) ([]Appointment, error) {
	var out []Appointment
	for _, item := range r.items {
		if item.State == state && !item.StateDate.After(cutoff) && !item.IsAnonymized(anonymousDomain) {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (r *stubRepo) Insert(ctx context.Context, ap *Appointment) error {
	r.nextID++
	ap.ID = r.nextID
	cpy := *ap
	r.items = append(r.items, &cpy)
	return nil
}

func (r *stubRepo) Update(ctx context.Context, ap *Appointment) error {
	r.updateCalls++
	item := r.byID(ap.ID)
	if item == nil {
		return ErrNotFound
	}
	*item = *ap
	return nil
}

func (r *stubRepo) Delete(ctx context.Context, id int64) error {
	for i, item := range r.items {
		if item.ID == id {
			r.items = append(r.items[:i], r.items[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (r *stubRepo) CancelPendingByExternalID(ctx context.Context, externalID string, exclude []int64, now time.Time) ([]Appointment, error) {
	excluded := func(id int64) bool {
		for _, e := range exclude {
			if e == id {
				return true
			}
		}
		return false
	}
	var out []Appointment
	for _, item := range r.items {
		if item.ExternalID != externalID || excluded(item.ID) || item.State == StateCancelled {
			continue
		}
		item.ChangeState(StateCancelled, now)
		out = append(out, *item)
	}
	return out, nil
}

func (r *stubRepo) PromoteCreatedToPendant(ctx context.Context, minDate, maxDate, now time.Time) (int64, error) {
	r.promoteMin = minDate
	r.promoteMax = maxDate
	var count int64
	for _, item := range r.items {
		if item.State != StateCreated {
			continue
		}
		if item.Date.Before(minDate) || !item.Date.Before(maxDate) {
			continue
		}
		item.ChangeState(StatePendant, now)
		count++
	}
	return count, nil
}

type stubQueue struct {
	entries []queue.Entry
	nextID  int64
}

func (q *stubQueue) Enqueue(ctx context.Context, appointmentID int64, mailTo, mailCc, mailCco, subject, body string) (*queue.Entry, error) {
	q.nextID++
	entry := queue.Entry{
		ID:            q.nextID,
		AppointmentID: appointmentID,
		MailTo:        mailTo,
		MailCc:        mailCc,
		MailCco:       mailCco,
		Subject:       subject,
		Body:          body,
	}
	q.entries = append(q.entries, entry)
	return &entry, nil
}

func (q *stubQueue) DeleteByAppointmentID(ctx context.Context, appointmentID int64) error {
	kept := q.entries[:0]
	for _, entry := range q.entries {
		if entry.AppointmentID != appointmentID {
			kept = append(kept, entry)
		}
	}
	q.entries = kept
	return nil
}

func (q *stubQueue) entriesFor(appointmentID int64) []queue.Entry {
	var out []queue.Entry
	for _, entry := range q.entries {
		if entry.AppointmentID == appointmentID {
			out = append(out, entry)
		}
	}
	return out
}

type stubStore struct {
	folders map[string]bool
	files   map[string]string
	deleted []string
	shares  int
}

func newStubStore() *stubStore {
	return &stubStore{folders: map[string]bool{}, files: map[string]string{}}
}

func (s *stubStore) EnsureFolder(ctx context.Context, path string) error {
	s.folders[path] = true
	return nil
}

func (s *stubStore) WriteFile(ctx context.Context, path string, content io.Reader) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	s.files[path] = string(data)
	return nil
}

func (s *stubStore) DeletePath(ctx context.Context, path string) error {
	s.deleted = append(s.deleted, path)
	for folder := range s.folders {
		if folder == path || strings.HasPrefix(folder, path+"/") {
			delete(s.folders, folder)
		}
	}
	for file := range s.files {
		if file == path || strings.HasPrefix(file, path+"/") {
			delete(s.files, file)
		}
	}
	return nil
}

func (s *stubStore) Exists(ctx context.Context, path string) (bool, error) {
	if s.folders[path] {
		return true, nil
	}
	_, ok := s.files[path]
	return ok, nil
}

func (s *stubStore) ShareFolder(ctx context.Context, path, password string, allowUpload bool) (*docstore.Share, error) {
	s.shares++
	return &docstore.Share{
		URL:         fmt.Sprintf("https://cloud.example/s/%d", s.shares),
		AllowUpload: allowUpload,
	}, nil
}

func (s *stubStore) deletedContains(path string) bool {
	for _, p := range s.deleted {
		if p == path {
			return true
		}
	}
	return false
}

type stubPresence struct {
	waiting bool
}

func (p *stubPresence) IsWaitingForModerator(ctx context.Context, ap *Appointment) bool {
	return p.waiting
}

type stubResolver struct {
	departments []string
}

func (r *stubResolver) AllowedDepartmentsFor(ctx context.Context, userID string) ([]string, error) {
	return r.departments, nil
}

func testConfig(t *testing.T) *config.Config {
	loc := madrid(t)
	return &config.Config{
		Timezone:        loc,
		Departments:     []string{"padron", "urbanismo"},
		MailsAllowed:    true,
		StaffVideoURL:   "https://video.example/staff",
		CitizenVideoURL: "https://video.example/citizen",
		FolderUploads:   "Entrada",
		FolderDownloads: "Sortida",
		AdminUser:       "admin",
		AnonymousDomain: "anonymous.com",
		PhoneLink:       "ciscotel",
		PhonePrefix:     "+34",
		DateFormat:      "02/01/2006",
		TimeFormat:      "15:04",
		PurgeAge:        72 * time.Hour,
		PurgeCompletedAge: 24 * time.Hour,
		DepartmentSettings: map[string]config.DepartmentSettings{
			"default": {
				FullName:    "Oficina de Atención Ciudadana",
				MailSubject: "Su cita de videollamada",
			},
			"padron": {
				ConfirmationForm: "https://forms.example/confirm",
			},
		},
		Nextcloud: config.NextcloudConfig{BaseURL: "https://cloud.example"},
	}
}

type testEnv struct {
	svc      *Service
	repo     *stubRepo
	mails    *stubQueue
	store    *stubStore
	presence *stubPresence
	cfg      *config.Config
	now      time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := testConfig(t)
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, cfg.Timezone)
	repo := &stubRepo{}
	mails := &stubQueue{}
	store := newStubStore()
	presence := &stubPresence{}
	resolver := &stubResolver{departments: []string{"padron"}}
	svc := NewService(repo, mails, store, presence, resolver, util.FixedClock{Instant: now}, cfg)
	return &testEnv{svc: svc, repo: repo, mails: mails, store: store, presence: presence, cfg: cfg, now: now}
}

func validInput(date time.Time) Input {
	return Input{
		ExternalID: "EXP-2026-001",
		CitizenID:  "12345678Z",
		Department: "padron",
		Date:       date,
		Comments:   "Renovación de empadronamiento",
		Name:       "María García",
		Phone:      "600123456",
		Email:      "maria@example.org",
		Topic:      "Padrón",
	}
}

func TestCreateForTodayEndsPendant(t *testing.T) {
	env := newTestEnv(t)
	in := validInput(env.now.Add(2 * time.Hour))

	result, err := env.svc.Create(context.Background(), in, "operador1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !result.IsOK() {
		t.Fatalf("resultado = %v (%s), se esperaba OK", result.Outcome, result.Message)
	}
	if result.Message != "Cita registrada" {
		t.Fatalf("mensaje = %q", result.Message)
	}

	ap := result.Appointment
	if ap.State != StatePendant {
		t.Fatalf("una cita para hoy debe quedar Pendiente, estado = %v", ap.State)
	}
	if !strings.HasPrefix(ap.RoomCode, "exp-2026-001-") {
		t.Fatalf("código de sala = %q", ap.RoomCode)
	}
	if len(ap.RoomCode) != len("exp-2026-001-")+16 {
		t.Fatalf("el sufijo aleatorio de la sala debe tener 16 caracteres: %q", ap.RoomCode)
	}
	if ap.StaffRoomURL != "https://video.example/staff/"+ap.RoomCode {
		t.Fatalf("url de sala del personal = %q", ap.StaffRoomURL)
	}

	base := "padron/12345678Z/EXP-2026-001"
	if !env.store.folders[base+"/Entrada"] || !env.store.folders[base+"/Sortida"] {
		t.Fatalf("faltan carpetas del ciudadano: %v", env.store.folders)
	}
	readme, ok := env.store.files[base+"/Readme.md"]
	if !ok {
		t.Fatalf("falta el Readme de la cita")
	}
	if !strings.Contains(readme, "María García") || !strings.Contains(readme, ap.StaffRoomURL) {
		t.Fatalf("el Readme debe incluir el nombre y el enlace de la videollamada:\n%s", readme)
	}

	entries := env.mails.entriesFor(ap.ID)
	if len(entries) != 1 {
		t.Fatalf("se esperaba un correo encolado, hay %d", len(entries))
	}
	if entries[0].MailTo != "maria@example.org" || entries[0].Subject != "Su cita de videollamada" {
		t.Fatalf("convocatoria inesperada: %+v", entries[0])
	}
	if ap.SharedURLUploads == "" || ap.SharedURLDownloads == "" {
		t.Fatalf("los enlaces compartidos deben quedar en la cita")
	}

	stored := env.repo.byID(ap.ID)
	if stored == nil || stored.State != StatePendant {
		t.Fatalf("la cita persistida debe quedar Pendiente: %+v", stored)
	}
}

func TestCreateForTomorrowEndsCreated(t *testing.T) {
	env := newTestEnv(t)
	in := validInput(env.now.Add(26 * time.Hour))

	result, err := env.svc.Create(context.Background(), in, "operador1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if result.Appointment.State != StateCreated {
		t.Fatalf("una cita para otro día debe quedar Creada, estado = %v", result.Appointment.State)
	}
}

func TestCreateCollectsEveryValidationFailure(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.svc.Create(context.Background(), Input{}, "operador1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if result.Outcome != OutcomeKO {
		t.Fatalf("resultado = %v, se esperaba KO", result.Outcome)
	}
	if len(result.Messages) < 5 {
		t.Fatalf("deben acumularse todos los fallos de validación, hay %d: %v", len(result.Messages), result.Messages)
	}
	if len(env.repo.items) != 0 {
		t.Fatalf("una entrada inválida no debe persistirse")
	}
}

func TestCreateDeletesAppointmentsOlderThanOneDay(t *testing.T) {
	env := newTestEnv(t)
	in := validInput(env.now.Add(-48 * time.Hour))

	result, err := env.svc.Create(context.Background(), in, "operador1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !result.IsOK() || result.Message != "Cita eliminada por antigüedad" {
		t.Fatalf("resultado = %v %q", result.Outcome, result.Message)
	}
	if len(env.repo.items) != 0 {
		t.Fatalf("la cita antigua debe eliminarse tras registrarse")
	}
	if !env.store.deletedContains("padron/12345678Z/EXP-2026-001") {
		t.Fatalf("deben retirarse las carpetas de la cita antigua")
	}
	if len(env.mails.entries) != 0 {
		t.Fatalf("una cita antigua no debe encolar convocatoria")
	}
}

func TestCreateCancelsDuplicatesWithoutAnonymizing(t *testing.T) {
	env := newTestEnv(t)

	old := env.repo.seed(Appointment{
		ExternalID: "EXP-2026-001",
		CitizenID:  "99999999R",
		Department: "padron",
		Date:       env.now.Add(-time.Hour),
		Name:       "Juan Pérez",
		Email:      "juan@example.org",
		State:      StatePendant,
		StateDate:  env.now.Add(-time.Hour),
	})
	if _, err := env.mails.Enqueue(context.Background(), old.ID, old.Email, "", "", "asunto", "cuerpo"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	result, err := env.svc.Create(context.Background(), validInput(env.now.Add(2*time.Hour)), "operador1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !result.IsOK() {
		t.Fatalf("resultado = %v (%s)", result.Outcome, result.Message)
	}

	dup := env.repo.byID(old.ID)
	if dup.State != StateCancelled {
		t.Fatalf("el duplicado debe quedar Cancelado, estado = %v", dup.State)
	}
	if dup.Email != "juan@example.org" {
		t.Fatalf("el duplicado no se anonimiza al cancelarse; la purga lo hará más tarde")
	}
	if !env.store.deletedContains("padron/99999999R/EXP-2026-001") {
		t.Fatalf("deben retirarse las carpetas del duplicado")
	}
	if len(env.mails.entriesFor(old.ID)) != 0 {
		t.Fatalf("debe vaciarse la cola de correo del duplicado")
	}
}

func TestCancelPendantAnonymizes(t *testing.T) {
	env := newTestEnv(t)
	ap := env.repo.seed(Appointment{
		ExternalID: "EXP-2026-002",
		CitizenID:  "11111111H",
		Department: "padron",
		Date:       env.now.Add(time.Hour),
		Name:       "Ana López",
		Phone:      "600111222",
		Email:      "ana@example.org",
		Comments:   "comentario",
		State:      StatePendant,
		StateDate:  env.now,
	})

	result, err := env.svc.CancelByID(context.Background(), ap.ID, "operador1")
	if err != nil {
		t.Fatalf("CancelByID: %v", err)
	}
	if !result.IsOK() || result.Message != "Cita cancelada" {
		t.Fatalf("resultado = %v %q", result.Outcome, result.Message)
	}

	stored := env.repo.byID(ap.ID)
	if stored.State != StateCancelled {
		t.Fatalf("estado = %v, se esperaba Cancelada", stored.State)
	}
	if !strings.HasSuffix(stored.Email, "@anonymous.com") {
		t.Fatalf("el correo debe quedar bajo el dominio anónimo: %q", stored.Email)
	}
	if stored.Name == "Ana López" || stored.CitizenID == "11111111H" || stored.Phone == "600111222" {
		t.Fatalf("los datos personales deben sustituirse: %+v", stored)
	}
	if !env.store.deletedContains("padron/11111111H/EXP-2026-002") {
		t.Fatalf("deben retirarse las carpetas de la cita cancelada")
	}
}

func TestCancelCompletedDeletesFoldersButKeepsData(t *testing.T) {
	env := newTestEnv(t)
	ap := env.repo.seed(Appointment{
		ExternalID: "EXP-2026-003",
		CitizenID:  "22222222J",
		Department: "padron",
		Date:       env.now.Add(-time.Hour),
		Email:      "cerrada@example.org",
		State:      StateCompleted,
		StateDate:  env.now,
	})

	result, err := env.svc.CancelByID(context.Background(), ap.ID, "operador1")
	if err != nil {
		t.Fatalf("CancelByID: %v", err)
	}
	if !result.IsOK() {
		t.Fatalf("resultado = %v (%s)", result.Outcome, result.Message)
	}

	stored := env.repo.byID(ap.ID)
	if stored.State != StateCompleted {
		t.Fatalf("una cita Completada no cambia de estado al cancelar, estado = %v", stored.State)
	}
	if stored.Email != "cerrada@example.org" {
		t.Fatalf("una cita no cancelable no se anonimiza: %q", stored.Email)
	}
	if !env.store.deletedContains("padron/22222222J/EXP-2026-003") {
		t.Fatalf("las carpetas se retiran siempre")
	}
}

func TestChangeStateRejectsIllegalTransition(t *testing.T) {
	env := newTestEnv(t)
	ap := env.repo.seed(Appointment{
		ExternalID: "EXP-2026-004",
		CitizenID:  "33333333P",
		Department: "padron",
		Date:       env.now.Add(26 * time.Hour),
		State:      StateCreated,
		StateDate:  env.now,
	})

	result, err := env.svc.ChangeStateByID(context.Background(), ap.ID, StateOnCourse, "operador1")
	if err != nil {
		t.Fatalf("ChangeStateByID: %v", err)
	}
	if result.Outcome != OutcomeKO || result.Message != "El nuevo estado no está permitido para la cita" {
		t.Fatalf("resultado = %v %q", result.Outcome, result.Message)
	}
	if env.repo.byID(ap.ID).State != StateCreated {
		t.Fatalf("una transición rechazada no debe persistir cambios")
	}
}

func TestChangeStateAppliesAllowedTransition(t *testing.T) {
	env := newTestEnv(t)
	ap := env.repo.seed(Appointment{
		ExternalID: "EXP-2026-005",
		CitizenID:  "44444444A",
		Department: "padron",
		Date:       env.now.Add(time.Hour),
		State:      StatePendant,
		StateDate:  env.now.Add(-time.Hour),
	})

	result, err := env.svc.ChangeStateByID(context.Background(), ap.ID, StateOnCourse, "operador1")
	if err != nil {
		t.Fatalf("ChangeStateByID: %v", err)
	}
	if !result.IsOK() || result.Message != "Cita actualizada" {
		t.Fatalf("resultado = %v %q", result.Outcome, result.Message)
	}
	stored := env.repo.byID(ap.ID)
	if stored.State != StateOnCourse || !stored.StateDate.Equal(env.now) {
		t.Fatalf("estado = %v fecha = %v", stored.State, stored.StateDate)
	}
}

func TestChangeStateSameStateIsNeutral(t *testing.T) {
	env := newTestEnv(t)
	ap := env.repo.seed(Appointment{
		ExternalID: "EXP-2026-006",
		CitizenID:  "55555555B",
		Department: "padron",
		Date:       env.now.Add(time.Hour),
		State:      StatePendant,
		StateDate:  env.now.Add(-time.Hour),
	})

	result, err := env.svc.ChangeStateByID(context.Background(), ap.ID, StatePendant, "operador1")
	if err != nil {
		t.Fatalf("ChangeStateByID: %v", err)
	}
	if !result.IsOK() || result.Message != "La cita ya está en el estado solicitado" {
		t.Fatalf("resultado = %v %q", result.Outcome, result.Message)
	}
}

func TestUpdateWithoutChangesIsNeutral(t *testing.T) {
	env := newTestEnv(t)
	in := validInput(env.now.Add(26 * time.Hour))
	ap := env.repo.seed(Appointment{
		ExternalID: in.ExternalID,
		CitizenID:  in.CitizenID,
		Department: in.Department,
		Date:       in.Date,
		Comments:   in.Comments,
		Name:       in.Name,
		Phone:      in.Phone,
		Email:      in.Email,
		Topic:      in.Topic,
		State:      StateCreated,
		StateDate:  env.now,
	})

	result, err := env.svc.Update(context.Background(), ap.ID, in, "operador1")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !result.IsOK() || !strings.Contains(result.Message, "ya está registrada") {
		t.Fatalf("resultado = %v %q", result.Outcome, result.Message)
	}
	if len(env.mails.entries) != 0 {
		t.Fatalf("una modificación neutra no reenvía la convocatoria")
	}
}

func TestUpdateEmailChangeResendsMail(t *testing.T) {
	env := newTestEnv(t)
	in := validInput(env.now.Add(26 * time.Hour))
	ap := env.repo.seed(Appointment{
		ExternalID: in.ExternalID,
		CitizenID:  in.CitizenID,
		Department: in.Department,
		Date:       in.Date,
		Comments:   in.Comments,
		Name:       in.Name,
		Phone:      in.Phone,
		Email:      "antiguo@example.org",
		Topic:      in.Topic,
		State:      StateCreated,
		StateDate:  env.now,
	})

	result, err := env.svc.Update(context.Background(), ap.ID, in, "operador1")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !result.IsOK() {
		t.Fatalf("resultado = %v (%s)", result.Outcome, result.Message)
	}

	entries := env.mails.entriesFor(ap.ID)
	if len(entries) != 1 || entries[0].MailTo != in.Email {
		t.Fatalf("debe reenviarse la convocatoria al correo nuevo: %+v", entries)
	}
	if env.repo.byID(ap.ID).Email != in.Email {
		t.Fatalf("el correo debe actualizarse en la cita")
	}
}

func TestUpdateCitizenChangeRestartsCycle(t *testing.T) {
	env := newTestEnv(t)
	in := validInput(env.now.Add(26 * time.Hour))
	ap := env.repo.seed(Appointment{
		ExternalID: in.ExternalID,
		CitizenID:  "99999999R",
		Department: in.Department,
		Date:       in.Date,
		Comments:   in.Comments,
		Name:       in.Name,
		Phone:      in.Phone,
		Email:      in.Email,
		Topic:      in.Topic,
		State:      StateFinished,
		StateDate:  env.now.Add(-time.Hour),
		UserID:     "otro",
	})

	result, err := env.svc.Update(context.Background(), ap.ID, in, "operador1")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !result.IsOK() {
		t.Fatalf("resultado = %v (%s)", result.Outcome, result.Message)
	}

	stored := env.repo.byID(ap.ID)
	if stored.State != StateCreated {
		t.Fatalf("el cambio de identificación reinicia el ciclo, estado = %v", stored.State)
	}
	if stored.UserID != "operador1" {
		t.Fatalf("el reinicio registra al usuario que lo provoca: %q", stored.UserID)
	}
	if stored.CitizenID != in.CitizenID {
		t.Fatalf("la identificación debe actualizarse")
	}
	if !env.store.folders["padron/12345678Z/EXP-2026-001/Entrada"] {
		t.Fatalf("la estructura documental debe crearse para la identificación nueva")
	}
}

func TestCreateOrUpdateTerminalMatchReturnsExisting(t *testing.T) {
	env := newTestEnv(t)
	in := validInput(env.now.Add(26 * time.Hour))
	env.repo.seed(Appointment{
		ExternalID: in.ExternalID,
		CitizenID:  in.CitizenID,
		Department: in.Department,
		Date:       in.Date.Add(-48 * time.Hour),
		Email:      "terminada@example.org",
		State:      StateCancelled,
		StateDate:  env.now.Add(-72 * time.Hour),
	})

	result, err := env.svc.CreateOrUpdate(context.Background(), in, "sistema")
	if err != nil {
		t.Fatalf("CreateOrUpdate: %v", err)
	}
	if !result.IsOK() || !strings.Contains(result.Message, "ya está registrada") {
		t.Fatalf("resultado = %v %q", result.Outcome, result.Message)
	}
	if len(env.repo.items) != 1 {
		t.Fatalf("una cita terminal con el mismo par no debe generar alta nueva")
	}
	if len(env.mails.entries) != 0 {
		t.Fatalf("no debe encolarse correo alguno")
	}
}

func TestCreateOrUpdateIgnoresAssignmentFromExternalSystem(t *testing.T) {
	env := newTestEnv(t)
	in := validInput(env.now.Add(26 * time.Hour))
	ap := env.repo.seed(Appointment{
		ExternalID: in.ExternalID,
		CitizenID:  in.CitizenID,
		Department: in.Department,
		Date:       in.Date,
		Comments:   "anterior",
		Name:       in.Name,
		Phone:      in.Phone,
		Email:      in.Email,
		Topic:      in.Topic,
		AssignedTo: "agente1",
		State:      StateCreated,
		StateDate:  env.now,
	})

	in.AssignedTo = "intruso"
	result, err := env.svc.CreateOrUpdate(context.Background(), in, "sistema")
	if err != nil {
		t.Fatalf("CreateOrUpdate: %v", err)
	}
	if !result.IsOK() {
		t.Fatalf("resultado = %v (%s)", result.Outcome, result.Message)
	}
	if env.repo.byID(ap.ID).AssignedTo != "agente1" {
		t.Fatalf("el sistema externo no puede cambiar la asignación: %q", env.repo.byID(ap.ID).AssignedTo)
	}
}

func TestSendMailWithoutRecipientIsKO(t *testing.T) {
	env := newTestEnv(t)
	ap := env.repo.seed(Appointment{
		ExternalID: "EXP-2026-007",
		CitizenID:  "66666666C",
		Department: "padron",
		Date:       env.now.Add(time.Hour),
		State:      StatePendant,
		StateDate:  env.now,
	})

	result, err := env.svc.SendMailByAppointmentID(context.Background(), ap.ID)
	if err != nil {
		t.Fatalf("SendMailByAppointmentID: %v", err)
	}
	if result.Outcome != OutcomeKO || result.Message != "No hay correo al que dirigir el mensaje" {
		t.Fatalf("resultado = %v %q", result.Outcome, result.Message)
	}
	if len(env.mails.entries) != 0 {
		t.Fatalf("sin destinatario no se encola nada")
	}
}

func TestSendMailSharesFoldersAndEnqueues(t *testing.T) {
	env := newTestEnv(t)
	ap := env.repo.seed(Appointment{
		ExternalID: "EXP-2026-008",
		CitizenID:  "77777777D",
		Department: "padron",
		Date:       env.now.Add(time.Hour),
		Email:      "destino@example.org",
		State:      StatePendant,
		StateDate:  env.now,
	})

	result, err := env.svc.SendMailByAppointmentID(context.Background(), ap.ID)
	if err != nil {
		t.Fatalf("SendMailByAppointmentID: %v", err)
	}
	if !result.IsOK() || result.Message != "Mensaje registrado para envío" {
		t.Fatalf("resultado = %v %q", result.Outcome, result.Message)
	}

	stored := env.repo.byID(ap.ID)
	if stored.SharedURLUploads == "" || stored.SharedURLDownloads == "" {
		t.Fatalf("los enlaces compartidos deben persistirse")
	}
	entries := env.mails.entriesFor(ap.ID)
	if len(entries) != 1 || entries[0].MailTo != "destino@example.org" {
		t.Fatalf("convocatoria inesperada: %+v", entries)
	}
}

func TestVideoconferenceFinishedRedirectsToConfirmationForm(t *testing.T) {
	env := newTestEnv(t)
	ap := env.repo.seed(Appointment{
		ExternalID: "EXP-2026-009",
		CitizenID:  "88888888E",
		Department: "padron",
		Date:       env.now.Add(-time.Hour),
		RoomCode:   "exp-2026-009-abcdefgh12345678",
		State:      StateOnCourse,
		StateDate:  env.now.Add(-time.Hour),
	})

	result, err := env.svc.VideoconferenceFinished(context.Background(), ap.RoomCode, "")
	if err != nil {
		t.Fatalf("VideoconferenceFinished: %v", err)
	}
	if !result.IsOK() || result.Message != "Cita finalizada" {
		t.Fatalf("resultado = %v %q", result.Outcome, result.Message)
	}
	if result.Redirect != "https://forms.example/confirm" {
		t.Fatalf("redirección = %q", result.Redirect)
	}
	if env.repo.byID(ap.ID).State != StateFinished {
		t.Fatalf("la cita debe quedar Finalizada")
	}
}

func TestVideoconferenceFinishedIgnoresOtherDays(t *testing.T) {
	env := newTestEnv(t)
	ap := env.repo.seed(Appointment{
		ExternalID: "EXP-2026-010",
		CitizenID:  "99999999F",
		Department: "padron",
		Date:       env.now.Add(-48 * time.Hour),
		RoomCode:   "exp-2026-010-abcdefgh12345678",
		State:      StatePendant,
		StateDate:  env.now.Add(-48 * time.Hour),
	})

	result, err := env.svc.VideoconferenceFinished(context.Background(), ap.RoomCode, "")
	if err != nil {
		t.Fatalf("VideoconferenceFinished: %v", err)
	}
	if result.Outcome != OutcomeError {
		t.Fatalf("sin citas de hoy el desenlace es ERROR, resultado = %v", result.Outcome)
	}
	if env.repo.byID(ap.ID).State != StatePendant {
		t.Fatalf("las citas de otros días no se tocan")
	}
}

func TestSearchDefaultsToAllowedDepartmentsAndToday(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.svc.Search(context.Background(), "operador1", SearchFilter{}); err != nil {
		t.Fatalf("Search: %v", err)
	}

	filter := env.repo.lastFilter
	if len(filter.Departments) != 1 || filter.Departments[0] != "padron" {
		t.Fatalf("departamentos = %v, se esperaban los visibles para el usuario", filter.Departments)
	}
	wantMin := time.Date(2026, 3, 10, 0, 0, 0, 0, env.cfg.Timezone)
	if filter.MinDate == nil || !filter.MinDate.Equal(wantMin) {
		t.Fatalf("fecha mínima = %v, se esperaba la medianoche de hoy", filter.MinDate)
	}
	if filter.MaxDate == nil || !filter.MaxDate.Equal(wantMin.Add(24*time.Hour)) {
		t.Fatalf("fecha máxima = %v", filter.MaxDate)
	}
}

func TestPrepareWorkForTodayPromotesCreated(t *testing.T) {
	env := newTestEnv(t)
	today := env.repo.seed(Appointment{
		ExternalID: "EXP-HOY-1",
		CitizenID:  "10101010G",
		Department: "padron",
		Date:       env.now.Add(3 * time.Hour),
		State:      StateCreated,
		StateDate:  env.now.Add(-12 * time.Hour),
	})
	tomorrow := env.repo.seed(Appointment{
		ExternalID: "EXP-MANANA-1",
		CitizenID:  "20202020H",
		Department: "padron",
		Date:       env.now.Add(26 * time.Hour),
		State:      StateCreated,
		StateDate:  env.now.Add(-12 * time.Hour),
	})

	result, err := env.svc.PrepareWorkForToday(context.Background())
	if err != nil {
		t.Fatalf("PrepareWorkForToday: %v", err)
	}
	if !result.IsOK() || result.Message != "1 citas preparadas para ser atendidas hoy" {
		t.Fatalf("resultado = %v %q", result.Outcome, result.Message)
	}
	if env.repo.byID(today.ID).State != StatePendant {
		t.Fatalf("la cita de hoy debe pasar a Pendiente")
	}
	if env.repo.byID(tomorrow.ID).State != StateCreated {
		t.Fatalf("la cita de mañana no debe tocarse")
	}
	wantMin := time.Date(2026, 3, 10, 0, 0, 0, 0, env.cfg.Timezone)
	if !env.repo.promoteMin.Equal(wantMin) || !env.repo.promoteMax.Equal(wantMin.Add(24*time.Hour)) {
		t.Fatalf("ventana de promoción = [%v, %v)", env.repo.promoteMin, env.repo.promoteMax)
	}
}
