package videoconference

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const heartbeatColumns = `id, appointment_id, first_connection, last_connection`

// Repository provee acceso a la tabla de notificaciones de conexión.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository crea una instancia del repositorio.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Find busca una notificación por identificador.
func (r *Repository) Find(ctx context.Context, id int64) (*Heartbeat, error) {
	query := `SELECT ` + heartbeatColumns + ` FROM vtramit_videoconference WHERE id = $1`
	return scanHeartbeat(r.pool.QueryRow(ctx, query, id))
}

// FindByAppointmentID devuelve todas las sesiones de una cita.
func (r *Repository) FindByAppointmentID(ctx context.Context, appointmentID int64) ([]Heartbeat, error) {
	query := `SELECT ` + heartbeatColumns + ` FROM vtramit_videoconference
        WHERE appointment_id = $1 ORDER BY id`
	rows, err := r.pool.Query(ctx, query, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	heartbeats := []Heartbeat{}
	for rows.Next() {
		hb, err := scanHeartbeat(rows)
		if err != nil {
			return nil, err
		}
		heartbeats = append(heartbeats, *hb)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return heartbeats, nil
}

// FindLastByAppointmentID devuelve la sesión más reciente de una cita.
func (r *Repository) FindLastByAppointmentID(ctx context.Context, appointmentID int64) (*Heartbeat, error) {
	query := `SELECT ` + heartbeatColumns + ` FROM vtramit_videoconference
        WHERE appointment_id = $1 ORDER BY last_connection DESC LIMIT 1`
	return scanHeartbeat(r.pool.QueryRow(ctx, query, appointmentID))
}

// Insert persiste una sesión nueva.
func (r *Repository) Insert(ctx context.Context, hb *Heartbeat) error {
	const query = `
        INSERT INTO vtramit_videoconference (appointment_id, first_connection, last_connection)
        VALUES ($1, $2, $3)
        RETURNING id
    `
	return r.pool.QueryRow(ctx, query, hb.AppointmentID, hb.FirstConnection, hb.LastConnection).Scan(&hb.ID)
}

// Update persiste la última conexión de la sesión.
func (r *Repository) Update(ctx context.Context, hb *Heartbeat) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE vtramit_videoconference SET last_connection = $1 WHERE id = $2`,
		hb.LastConnection, hb.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanHeartbeat(row pgx.Row) (*Heartbeat, error) {
	var hb Heartbeat
	err := row.Scan(&hb.ID, &hb.AppointmentID, &hb.FirstConnection, &hb.LastConnection)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &hb, nil
}
