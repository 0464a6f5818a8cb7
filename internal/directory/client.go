package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// User es un miembro del directorio corporativo.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Client resuelve pertenencias a grupos contra el directorio corporativo.
type Client interface {
	// UserGroups devuelve los grupos a los que pertenece el usuario.
	UserGroups(ctx context.Context, userID string) ([]string, error)
	// GroupMembers devuelve los miembros del grupo con su nombre visible.
	GroupMembers(ctx context.Context, group string) ([]User, error)
}

// EmptyClient es un directorio vacío: sin pertenencias ni miembros. Se usa
// cuando el directorio no está configurado; el administrador sigue viendo
// todos los departamentos.
type EmptyClient struct{}

func (EmptyClient) UserGroups(ctx context.Context, userID string) ([]string, error) {
	return []string{}, nil
}

func (EmptyClient) GroupMembers(ctx context.Context, group string) ([]User, error) {
	return []User{}, nil
}

// OCSClient implementa Client contra la API de aprovisionamiento OCS.
type OCSClient struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
}

// OCSConfig describe las credenciales del directorio.
type OCSConfig struct {
	BaseURL  string
	Username string
	Password string
}

// NewOCSClient crea un cliente del directorio.
func NewOCSClient(cfg OCSConfig) (*OCSClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("directorio: base url obligatoria")
	}
	return &OCSClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		username:   cfg.Username,
		password:   cfg.Password,
	}, nil
}

// UserGroups consulta los grupos del usuario.
func (c *OCSClient) UserGroups(ctx context.Context, userID string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/ocs/v2.php/cloud/users/%s/groups", c.baseURL, url.PathEscape(userID))

	var payload struct {
		OCS struct {
			Data struct {
				Groups []string `json:"groups"`
			} `json:"data"`
		} `json:"ocs"`
	}
	if err := c.get(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	return payload.OCS.Data.Groups, nil
}

// GroupMembers consulta los miembros del grupo y resuelve sus nombres
// visibles.
func (c *OCSClient) GroupMembers(ctx context.Context, group string) ([]User, error) {
	endpoint := fmt.Sprintf("%s/ocs/v2.php/cloud/groups/%s", c.baseURL, url.PathEscape(group))

	var payload struct {
		OCS struct {
			Data struct {
				Users []string `json:"users"`
			} `json:"data"`
		} `json:"ocs"`
	}
	if err := c.get(ctx, endpoint, &payload); err != nil {
		return nil, err
	}

	users := make([]User, 0, len(payload.OCS.Data.Users))
	for _, id := range payload.OCS.Data.Users {
		name, err := c.userDisplayName(ctx, id)
		if err != nil {
			// Un usuario sin ficha no bloquea el listado del grupo.
			name = id
		}
		users = append(users, User{ID: id, DisplayName: name})
	}
	return users, nil
}

func (c *OCSClient) userDisplayName(ctx context.Context, userID string) (string, error) {
	endpoint := fmt.Sprintf("%s/ocs/v2.php/cloud/users/%s", c.baseURL, url.PathEscape(userID))

	var payload struct {
		OCS struct {
			Data struct {
				DisplayName string `json:"displayname"`
			} `json:"data"`
		} `json:"ocs"`
	}
	if err := c.get(ctx, endpoint, &payload); err != nil {
		return "", err
	}
	if payload.OCS.Data.DisplayName == "" {
		return userID, nil
	}
	return payload.OCS.Data.DisplayName, nil
}

func (c *OCSClient) get(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("OCS-APIRequest", "true")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("directorio: status %d en %s", resp.StatusCode, endpoint)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
