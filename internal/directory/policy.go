package directory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Policy aplica las reglas de visibilidad y asignación sobre el directorio:
// qué departamentos ve cada usuario y a quién puede asignar citas. El grupo
// limitador puede cambiarse en caliente desde el panel de administración.
type Policy struct {
	client      Client
	departments []string
	adminUser   string

	mu         sync.RWMutex
	groupLimit []string
}

// NewPolicy crea la política con los departamentos habilitados y el grupo
// limitador de asignación.
func NewPolicy(client Client, departments, groupLimit []string, adminUser string) *Policy {
	return &Policy{
		client:      client,
		departments: departments,
		groupLimit:  groupLimit,
		adminUser:   adminUser,
	}
}

// IsAdmin indica si el usuario es el administrador del módulo. El
// administrador ve todos los departamentos habilitados sin pertenecer a
// ellos.
func (p *Policy) IsAdmin(userID string) bool {
	return p.adminUser != "" && userID == p.adminUser
}

// AllowedDepartmentsFor devuelve la intersección entre los departamentos
// habilitados y la pertenencia del usuario. Un usuario sin grupos obtiene la
// lista vacía, nunca un error.
func (p *Policy) AllowedDepartmentsFor(ctx context.Context, userID string) ([]string, error) {
	if p.IsAdmin(userID) {
		return append([]string{}, p.departments...), nil
	}

	membership, err := p.client.UserGroups(ctx, userID)
	if err != nil {
		return nil, err
	}

	member := map[string]bool{}
	for _, g := range membership {
		member[g] = true
	}

	allowed := []string{}
	for _, d := range p.departments {
		if member[d] {
			allowed = append(allowed, d)
		}
	}
	return allowed, nil
}

// CanAssign indica si el usuario puede asignar citas a otras personas. Sin
// grupo limitador configurado, todo el mundo puede.
func (p *Policy) CanAssign(ctx context.Context, userID string) (bool, error) {
	limit := p.GroupLimit()
	if len(limit) == 0 || p.IsAdmin(userID) {
		return true, nil
	}

	membership, err := p.client.UserGroups(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, g := range membership {
		for _, l := range limit {
			if g == l {
				return true, nil
			}
		}
	}
	return false, nil
}

// GroupLimit devuelve una copia del grupo limitador vigente.
func (p *Policy) GroupLimit() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string{}, p.groupLimit...)
}

// SetGroupLimit sustituye el grupo limitador de asignación.
func (p *Policy) SetGroupLimit(groups []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.groupLimit = append([]string{}, groups...)
}

// AssignableUsersInDepartment devuelve los miembros del departamento
// ordenados por nombre visible, con orden natural e insensible a mayúsculas.
func (p *Policy) AssignableUsersInDepartment(ctx context.Context, department string) ([]User, error) {
	users, err := p.client.GroupMembers(ctx, department)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(users, func(i, j int) bool {
		return naturalLess(users[i].DisplayName, users[j].DisplayName)
	})
	return users, nil
}

// DepartmentContext agrupa un departamento con sus usuarios asignables.
type DepartmentContext struct {
	Name  string `json:"name"`
	Users []User `json:"users"`
}

// UserContext es la vista del directorio que consume el panel. Users es la
// lista global de personas de los departamentos habilitados, para que el
// panel pueda resolver nombres de asignaciones ajenas.
type UserContext struct {
	UserID      string              `json:"userId"`
	IsAdmin     bool                `json:"isAdmin"`
	CanAssign   bool                `json:"canAssign"`
	Users       []User              `json:"users"`
	Departments []DepartmentContext `json:"departments"`
}

// ContextFor agrega la política completa para un usuario: departamentos
// visibles, usuarios asignables de cada uno y la lista global de personas.
// Quien no puede asignar se ve solo a sí mismo en cada departamento al que
// pertenece.
func (p *Policy) ContextFor(ctx context.Context, userID string) (*UserContext, error) {
	allowed, err := p.AllowedDepartmentsFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	canAssign, err := p.CanAssign(ctx, userID)
	if err != nil {
		return nil, err
	}

	uc := &UserContext{
		UserID:      userID,
		IsAdmin:     p.IsAdmin(userID),
		CanAssign:   canAssign,
		Users:       []User{},
		Departments: []DepartmentContext{},
	}

	self := User{ID: userID, DisplayName: userID}
	membersByDepartment := map[string][]User{}
	seen := map[string]bool{}
	for _, d := range p.departments {
		members, err := p.client.GroupMembers(ctx, d)
		if err != nil {
			return nil, err
		}
		membersByDepartment[d] = members
		for _, u := range members {
			if u.ID == userID {
				self = u
			}
			if !seen[u.ID] {
				seen[u.ID] = true
				uc.Users = append(uc.Users, u)
			}
		}
	}
	sort.SliceStable(uc.Users, func(i, j int) bool {
		return naturalLess(uc.Users[i].DisplayName, uc.Users[j].DisplayName)
	})

	for _, d := range allowed {
		dc := DepartmentContext{Name: d, Users: []User{self}}
		if canAssign {
			users := append([]User{}, membersByDepartment[d]...)
			sort.SliceStable(users, func(i, j int) bool {
				return naturalLess(users[i].DisplayName, users[j].DisplayName)
			})
			dc.Users = users
		}
		uc.Departments = append(uc.Departments, dc)
	}
	return uc, nil
}

// naturalLess compara nombres tratando las secuencias de dígitos como
// números, al estilo del orden natural de los exploradores de archivos.
func naturalLess(a, b string) bool {
	ra, rb := []rune(strings.ToLower(a)), []rune(strings.ToLower(b))
	i, j := 0, 0
	for i < len(ra) && j < len(rb) {
		ca, cb := ra[i], rb[j]
		if unicode.IsDigit(ca) && unicode.IsDigit(cb) {
			si, sj := i, j
			for i < len(ra) && unicode.IsDigit(ra[i]) {
				i++
			}
			for j < len(rb) && unicode.IsDigit(rb[j]) {
				j++
			}
			na := strings.TrimLeft(string(ra[si:i]), "0")
			nb := strings.TrimLeft(string(rb[sj:j]), "0")
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			if na != nb {
				return na < nb
			}
			continue
		}
		if ca != cb {
			return ca < cb
		}
		i++
		j++
	}
	return len(ra)-i < len(rb)-j
}
