package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/videotramites/vtramit/internal/db"
)

const appointmentColumns = `id, external_id, citizen_id, department, date, comments, name, phone, email, topic,
        assigned_to, state, state_date, user_id, room_code, staff_room_url, citizen_room_url,
        shared_url_uploads, shared_url_downloads`

// Repository provee acceso a la tabla de citas.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository crea una instancia del repositorio.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SearchFilter recoge los filtros de la consulta del panel. El prefijo de
// identificador externo es excluyente con el resto de filtros; la lista de
// asignados gana al indicador de "sin asignar".
type SearchFilter struct {
	Departments []string
	IDPrefix    string
	MinDate     *time.Time
	MaxDate     *time.Time
	States      []State
	Assignees   []string
	Unassigned  bool
}

// Find busca una cita por su identificador interno.
func (r *Repository) Find(ctx context.Context, id int64) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM vtramit_appointment WHERE id = $1`
	return scanAppointment(r.pool.QueryRow(ctx, query, id))
}

// FindAll devuelve todas las citas.
func (r *Repository) FindAll(ctx context.Context) ([]Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM vtramit_appointment ORDER BY id`
	return r.queryMany(ctx, r.pool, query)
}

// FindByExternalID devuelve todas las citas con el identificador externo
// indicado, duplicados incluidos.
func (r *Repository) FindByExternalID(ctx context.Context, externalID string) ([]Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM vtramit_appointment WHERE external_id = $1 ORDER BY id`
	return r.queryMany(ctx, r.pool, query, externalID)
}

// FindByRoomCode devuelve las citas asociadas al código de sala.
func (r *Repository) FindByRoomCode(ctx context.Context, roomCode string) ([]Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM vtramit_appointment WHERE room_code = $1 ORDER BY id`
	return r.queryMany(ctx, r.pool, query, roomCode)
}

// FindByRoomCodeAndState devuelve las citas del código de sala que están en
// alguno de los estados indicados.
func (r *Repository) FindByRoomCodeAndState(ctx context.Context, roomCode string, states []State) ([]Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM vtramit_appointment
        WHERE room_code = $1 AND state = ANY($2) ORDER BY id`
	return r.queryMany(ctx, r.pool, query, roomCode, stateInts(states))
}

// Search aplica los filtros del panel. Una lista de departamentos vacía
// devuelve siempre una lista vacía, nunca "todo".
func (r *Repository) Search(ctx context.Context, filter SearchFilter) ([]Appointment, error) {
	if len(filter.Departments) == 0 {
		return []Appointment{}, nil
	}

	var (
		clauses = []string{"department = ANY($1)"}
		args    = []any{filter.Departments}
		idx     = 2
	)

	if prefix := strings.TrimSpace(filter.IDPrefix); prefix != "" {
		// El prefijo de identificador tiene prioridad y anula el resto de
		// filtros.
		clauses = append(clauses, fmt.Sprintf("external_id LIKE $%d", idx))
		args = append(args, escapeLikePrefix(prefix)+"%")
	} else {
		if filter.MinDate != nil {
			clauses = append(clauses, fmt.Sprintf("date >= $%d", idx))
			args = append(args, *filter.MinDate)
			idx++
		}
		if filter.MaxDate != nil {
			clauses = append(clauses, fmt.Sprintf("date <= $%d", idx))
			args = append(args, *filter.MaxDate)
			idx++
		}
		if len(filter.States) > 0 {
			clauses = append(clauses, fmt.Sprintf("state = ANY($%d)", idx))
			args = append(args, stateInts(filter.States))
			idx++
		}
		if len(filter.Assignees) > 0 {
			clauses = append(clauses, fmt.Sprintf("assigned_to = ANY($%d)", idx))
			args = append(args, filter.Assignees)
		} else if filter.Unassigned {
			clauses = append(clauses, "(assigned_to IS NULL OR assigned_to = '')")
		}
	}

	query := `SELECT ` + appointmentColumns + ` FROM vtramit_appointment WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY date`

	return r.queryMany(ctx, r.pool, query, args...)
}

// FindNotAnonymizedOlderThan devuelve las citas sin anonimizar cuyo último
// cambio de estado es anterior al corte.
func (r *Repository) FindNotAnonymizedOlderThan(ctx context.Context, cutoff time.Time, anonymousDomain string) ([]Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM vtramit_appointment
        WHERE state_date <= $1 AND email NOT LIKE $2 ORDER BY id`
	return r.queryMany(ctx, r.pool, query, cutoff, "%@"+anonymousDomain)
}

// FindNotAnonymizedByStateOlderThan devuelve las citas sin anonimizar en el
// estado indicado y con el último cambio de estado anterior al corte.
func (r *Repository) FindNotAnonymizedByStateOlderThan(ctx context.Context, state State, cutoff time.Time, anonymousDomain string) ([]Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM vtramit_appointment
        WHERE state = $1 AND state_date <= $2 AND email NOT LIKE $3 ORDER BY id`
	return r.queryMany(ctx, r.pool, query, int(state), cutoff, "%@"+anonymousDomain)
}

// Insert persiste una cita nueva y asigna su identificador.
func (r *Repository) Insert(ctx context.Context, ap *Appointment) error {
	const query = `
        INSERT INTO vtramit_appointment (external_id, citizen_id, department, date, comments, name, phone, email,
            topic, assigned_to, state, state_date, user_id, room_code, staff_room_url, citizen_room_url,
            shared_url_uploads, shared_url_downloads)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
        RETURNING id
    `
	return r.pool.QueryRow(ctx, query,
		ap.ExternalID, ap.CitizenID, ap.Department, ap.Date, ap.Comments, ap.Name, ap.Phone, ap.Email,
		ap.Topic, ap.AssignedTo, int(ap.State), ap.StateDate, ap.UserID, ap.RoomCode, ap.StaffRoomURL,
		ap.CitizenRoomURL, ap.SharedURLUploads, ap.SharedURLDownloads,
	).Scan(&ap.ID)
}

// Update persiste los campos de la cita.
func (r *Repository) Update(ctx context.Context, ap *Appointment) error {
	return r.update(ctx, r.pool, ap)
}

func (r *Repository) update(ctx context.Context, q db.Querier, ap *Appointment) error {
	const query = `
        UPDATE vtramit_appointment
        SET external_id = $1, citizen_id = $2, department = $3, date = $4, comments = $5, name = $6,
            phone = $7, email = $8, topic = $9, assigned_to = $10, state = $11, state_date = $12,
            user_id = $13, room_code = $14, staff_room_url = $15, citizen_room_url = $16,
            shared_url_uploads = $17, shared_url_downloads = $18
        WHERE id = $19
    `
	tag, err := q.Exec(ctx, query,
		ap.ExternalID, ap.CitizenID, ap.Department, ap.Date, ap.Comments, ap.Name, ap.Phone, ap.Email,
		ap.Topic, ap.AssignedTo, int(ap.State), ap.StateDate, ap.UserID, ap.RoomCode, ap.StaffRoomURL,
		ap.CitizenRoomURL, ap.SharedURLUploads, ap.SharedURLDownloads, ap.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete elimina físicamente la fila de la cita.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM vtramit_appointment WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CancelPendingByExternalID marca como canceladas, en una única transacción,
// todas las citas aún no canceladas con el identificador externo indicado
// salvo las excluidas; las Finalizadas y Completadas también caen. Devuelve
// las citas canceladas.
func (r *Repository) CancelPendingByExternalID(ctx context.Context, externalID string, exclude []int64, now time.Time) ([]Appointment, error) {
	var cancelled []Appointment

	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		query := `SELECT ` + appointmentColumns + ` FROM vtramit_appointment
            WHERE external_id = $1 AND NOT (id = ANY($2)) ORDER BY id FOR UPDATE`
		found, err := r.queryMany(ctx, tx, query, externalID, excludeIDs(exclude))
		if err != nil {
			return err
		}

		for i := range found {
			ap := &found[i]
			if ap.State == StateCancelled {
				continue
			}
			ap.ChangeState(StateCancelled, now)
			if err := r.update(ctx, tx, ap); err != nil {
				return err
			}
			cancelled = append(cancelled, *ap)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return cancelled, nil
}

// PromoteCreatedToPendant pasa en bloque de Creada a Pendiente las citas
// dentro del rango de fechas. El cambio en bloque también actualiza la fecha
// de estado.
func (r *Repository) PromoteCreatedToPendant(ctx context.Context, minDate, maxDate, now time.Time) (int64, error) {
	const query = `
        UPDATE vtramit_appointment
        SET state = $1, state_date = $2
        WHERE state = $3 AND date >= $4 AND date <= $5
    `
	tag, err := r.pool.Exec(ctx, query, int(StatePendant), now, int(StateCreated), minDate, maxDate)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) queryMany(ctx context.Context, q db.Querier, query string, args ...any) ([]Appointment, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	appointments := []Appointment{}
	for rows.Next() {
		ap, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appointments = append(appointments, *ap)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appointments, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		ap    Appointment
		state int
	)
	err := row.Scan(&ap.ID, &ap.ExternalID, &ap.CitizenID, &ap.Department, &ap.Date, &ap.Comments,
		&ap.Name, &ap.Phone, &ap.Email, &ap.Topic, &ap.AssignedTo, &state, &ap.StateDate, &ap.UserID,
		&ap.RoomCode, &ap.StaffRoomURL, &ap.CitizenRoomURL, &ap.SharedURLUploads, &ap.SharedURLDownloads)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	ap.State = State(state)
	return &ap, nil
}

func stateInts(states []State) []int {
	ints := make([]int, len(states))
	for i, s := range states {
		ints[i] = int(s)
	}
	return ints
}

func excludeIDs(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

// escapeLikePrefix neutraliza los comodines de LIKE para que el prefijo se
// compare de forma literal.
func escapeLikePrefix(prefix string) string {
	return likeEscaper.Replace(prefix)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
