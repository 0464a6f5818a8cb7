package directory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// cacheTTL limita cuánto tiempo vale una pertenencia cacheada. El directorio
// cambia poco y la consulta OCS es cara.
const cacheTTL = 5 * time.Minute

// CachedClient envuelve un Client con una caché corta en Redis. Cualquier
// fallo de la caché degrada a consulta directa.
type CachedClient struct {
	inner Client
	rdb   *redis.Client
}

// NewCachedClient crea la caché sobre el cliente del directorio.
func NewCachedClient(inner Client, rdb *redis.Client) *CachedClient {
	return &CachedClient{inner: inner, rdb: rdb}
}

// UserGroups devuelve los grupos del usuario, cacheados.
func (c *CachedClient) UserGroups(ctx context.Context, userID string) ([]string, error) {
	key := "vtramit:dir:usergroups:" + userID

	var groups []string
	if c.lookup(ctx, key, &groups) {
		return groups, nil
	}

	groups, err := c.inner.UserGroups(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, groups)
	return groups, nil
}

// GroupMembers devuelve los miembros del grupo, cacheados.
func (c *CachedClient) GroupMembers(ctx context.Context, group string) ([]User, error) {
	key := "vtramit:dir:groupmembers:" + group

	var users []User
	if c.lookup(ctx, key, &users) {
		return users, nil
	}

	users, err := c.inner.GroupMembers(ctx, group)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, users)
	return users, nil
}

func (c *CachedClient) lookup(ctx context.Context, key string, v any) bool {
	if c.rdb == nil {
		return false
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false
	}
	return true
}

func (c *CachedClient) store(ctx context.Context, key string, v any) {
	if c.rdb == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, cacheTTL).Err(); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("no se pudo cachear la consulta del directorio")
	}
}
