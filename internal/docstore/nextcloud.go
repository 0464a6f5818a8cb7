package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Permisos OCS de un enlace compartido.
const (
	ocsShareTypeLink    = 3
	ocsPermissionRead   = 1
	ocsPermissionUpload = 15
)

// NextcloudStore implementa Store contra WebDAV y la API OCS de Nextcloud.
type NextcloudStore struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
}

// NextcloudConfig describe las credenciales del almacén.
type NextcloudConfig struct {
	BaseURL  string
	Username string
	Password string
}

// NewNextcloudStore crea un cliente del almacén documental.
func NewNextcloudStore(cfg NextcloudConfig) (*NextcloudStore, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("nextcloud: base url obligatoria")
	}
	if strings.TrimSpace(cfg.Username) == "" {
		return nil, errors.New("nextcloud: usuario obligatorio")
	}
	return &NextcloudStore{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		username:   cfg.Username,
		password:   cfg.Password,
	}, nil
}

// EnsureFolder crea la carpeta segmento a segmento. MKCOL sobre una carpeta
// existente responde 405 y se ignora.
func (s *NextcloudStore) EnsureFolder(ctx context.Context, path string) error {
	segments := splitPath(path)
	current := ""
	for _, segment := range segments {
		current += "/" + segment
		req, err := s.newDavRequest(ctx, "MKCOL", current, nil)
		if err != nil {
			return err
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 400 && resp.StatusCode != http.StatusMethodNotAllowed {
			return fmt.Errorf("nextcloud mkcol %s: status %d", current, resp.StatusCode)
		}
	}
	return nil
}

// WriteFile sube el contenido a la ruta indicada.
func (s *NextcloudStore) WriteFile(ctx context.Context, path string, content io.Reader) error {
	req, err := s.newDavRequest(ctx, http.MethodPut, path, content)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("nextcloud put %s: status %d", path, resp.StatusCode)
	}
	return nil
}

// DeletePath elimina la ruta. Un 404 no es un error: el resultado buscado es
// que la ruta no exista.
func (s *NextcloudStore) DeletePath(ctx context.Context, path string) error {
	req, err := s.newDavRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("nextcloud delete %s: status %d", path, resp.StatusCode)
	}
	return nil
}

// Exists consulta la ruta con PROPFIND de profundidad cero.
func (s *NextcloudStore) Exists(ctx context.Context, path string) (bool, error) {
	req, err := s.newDavRequest(ctx, "PROPFIND", path, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Depth", "0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 400:
		return false, fmt.Errorf("nextcloud propfind %s: status %d", path, resp.StatusCode)
	}
	return true, nil
}

// ShareFolder crea un enlace compartido protegido por contraseña sobre la
// carpeta. Con allowUpload el enlace admite subida de documentos.
func (s *NextcloudStore) ShareFolder(ctx context.Context, path, password string, allowUpload bool) (*Share, error) {
	permissions := ocsPermissionRead
	if allowUpload {
		permissions = ocsPermissionUpload
	}

	form := url.Values{}
	form.Set("path", "/"+strings.Trim(path, "/"))
	form.Set("shareType", fmt.Sprintf("%d", ocsShareTypeLink))
	form.Set("permissions", fmt.Sprintf("%d", permissions))
	if password != "" {
		form.Set("password", password)
	}

	endpoint := s.baseURL + "/ocs/v2.php/apps/files_sharing/api/v1/shares"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(s.username, s.password)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("OCS-APIRequest", "true")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("nextcloud share %s: status %d", path, resp.StatusCode)
	}

	var payload struct {
		OCS struct {
			Meta struct {
				Status     string `json:"status"`
				StatusCode int    `json:"statuscode"`
				Message    string `json:"message"`
			} `json:"meta"`
			Data struct {
				URL string `json:"url"`
			} `json:"data"`
		} `json:"ocs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if payload.OCS.Meta.Status != "ok" {
		return nil, fmt.Errorf("nextcloud share %s: %s", path, payload.OCS.Meta.Message)
	}
	if payload.OCS.Data.URL == "" {
		return nil, errors.New("nextcloud share: respuesta sin url")
	}

	return &Share{URL: payload.OCS.Data.URL, AllowUpload: allowUpload}, nil
}

func (s *NextcloudStore) newDavRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	endpoint := s.baseURL + "/remote.php/dav/files/" + url.PathEscape(s.username) + "/" + escapePath(path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(s.username, s.password)
	return req, nil
}

func splitPath(path string) []string {
	var segments []string
	for _, segment := range strings.Split(strings.Trim(path, "/"), "/") {
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	return segments
}

func escapePath(path string) string {
	segments := splitPath(path)
	escaped := make([]string, len(segments))
	for i, segment := range segments {
		escaped[i] = url.PathEscape(segment)
	}
	return strings.Join(escaped, "/")
}
