package docstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound se devuelve cuando la ruta no existe en el almacén.
var ErrNotFound = errors.New("ruta no encontrada en el almacén documental")

// Share describe un enlace compartido de una carpeta.
type Share struct {
	URL         string
	AllowUpload bool
}

// Store abstrae el almacén documental de las citas: carpetas de entrada y
// salida por cita, artefactos de texto y enlaces compartidos protegidos.
type Store interface {
	// EnsureFolder crea la carpeta (y las intermedias) si no existe.
	EnsureFolder(ctx context.Context, path string) error
	// WriteFile escribe el contenido en la ruta, sobrescribiendo si existe.
	WriteFile(ctx context.Context, path string, content io.Reader) error
	// DeletePath elimina la ruta y todo su contenido. Una ruta inexistente
	// no es un error.
	DeletePath(ctx context.Context, path string) error
	// Exists indica si la ruta existe.
	Exists(ctx context.Context, path string) (bool, error)
	// ShareFolder publica la carpeta con un enlace protegido por contraseña.
	// Con allowUpload el ciudadano puede subir documentos.
	ShareFolder(ctx context.Context, path, password string, allowUpload bool) (*Share, error)
}
