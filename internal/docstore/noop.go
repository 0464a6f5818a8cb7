package docstore

import (
	"context"
	"io"

	"github.com/rs/zerolog/log"
)

// NoopStore descarta toda operación documental. Se usa cuando el almacén no
// está configurado, para no bloquear el resto del flujo de citas.
type NoopStore struct{}

// NewNoopStore crea el almacén nulo.
func NewNoopStore() *NoopStore {
	log.Warn().Msg("almacén documental sin configurar, las carpetas de cita no se crearán")
	return &NoopStore{}
}

func (NoopStore) EnsureFolder(ctx context.Context, path string) error { return nil }

func (NoopStore) WriteFile(ctx context.Context, path string, content io.Reader) error { return nil }

func (NoopStore) DeletePath(ctx context.Context, path string) error { return nil }

func (NoopStore) Exists(ctx context.Context, path string) (bool, error) { return false, nil }

func (NoopStore) ShareFolder(ctx context.Context, path, password string, allowUpload bool) (*Share, error) {
	return &Share{AllowUpload: allowUpload}, nil
}
