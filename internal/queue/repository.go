package queue

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const entryColumns = `id, appointment_id, mail_to, mail_cc, mail_cco, subject, body`

// Repository provee acceso a la tabla de la cola de correo.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository crea una instancia del repositorio.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Find busca una entrada por identificador.
func (r *Repository) Find(ctx context.Context, id int64) (*Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM vtramit_mail_queue WHERE id = $1`
	return scanEntry(r.pool.QueryRow(ctx, query, id))
}

// FindAll devuelve todas las entradas pendientes.
func (r *Repository) FindAll(ctx context.Context) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM vtramit_mail_queue ORDER BY id`
	return r.queryMany(ctx, query)
}

// FindByAppointmentID devuelve las entradas pendientes de una cita.
func (r *Repository) FindByAppointmentID(ctx context.Context, appointmentID int64) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM vtramit_mail_queue WHERE appointment_id = $1 ORDER BY id`
	return r.queryMany(ctx, query, appointmentID)
}

// Next devuelve la entrada más antigua pendiente de despacho, si existe.
func (r *Repository) Next(ctx context.Context) (*Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM vtramit_mail_queue ORDER BY id LIMIT 1`
	return scanEntry(r.pool.QueryRow(ctx, query))
}

// Insert persiste una entrada nueva.
func (r *Repository) Insert(ctx context.Context, entry *Entry) error {
	const query = `
        INSERT INTO vtramit_mail_queue (appointment_id, mail_to, mail_cc, mail_cco, subject, body)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id
    `
	return r.pool.QueryRow(ctx, query,
		entry.AppointmentID, entry.MailTo, entry.MailCc, entry.MailCco, entry.Subject, entry.Body,
	).Scan(&entry.ID)
}

// Delete elimina una entrada por identificador.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM vtramit_mail_queue WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByAppointmentID elimina todas las entradas de una cita.
func (r *Repository) DeleteByAppointmentID(ctx context.Context, appointmentID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM vtramit_mail_queue WHERE appointment_id = $1`, appointmentID)
	return err
}

func (r *Repository) queryMany(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.AppointmentID, &e.MailTo, &e.MailCc, &e.MailCco, &e.Subject, &e.Body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}
