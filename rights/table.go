package rights

import (
	"errors"
	"fmt"
	"sort"
)

// MaxRights is the number of distinct rights a Table can hold.
const MaxRights = 64

const (
	// GetUsers allows listing and reading other principals.
	GetUsers = "getUsers"
	// ManageUsers allows modifying other principals.
	ManageUsers = "manageUsers"

	// RoleUser is the default role with no rights.
	RoleUser = "user"
	// RoleAdmin holds every built-in right.
	RoleAdmin = "admin"
)

// Table is an immutable role to rights mapping.
type Table struct {
	bits  map[string]int
	names []string
	roles map[string]Mask
}

// New builds a Table. Every right named in roles must appear in rights.
func New(rightNames []string, roles map[string][]string) (*Table, error) {
	if len(rightNames) > MaxRights {
		return nil, errors.New("rights limit exceeded")
	}

	t := &Table{
		bits:  make(map[string]int, len(rightNames)),
		names: make([]string, 0, len(rightNames)),
		roles: make(map[string]Mask, len(roles)),
	}
	for _, name := range rightNames {
		if name == "" {
			return nil, errors.New("right name cannot be empty")
		}
		if _, exists := t.bits[name]; exists {
			return nil, fmt.Errorf("right %q already registered", name)
		}
		t.bits[name] = len(t.names)
		t.names = append(t.names, name)
	}

	for role, granted := range roles {
		if role == "" {
			return nil, errors.New("role name empty")
		}
		var m Mask
		for _, name := range granted {
			bit, ok := t.bits[name]
			if !ok {
				return nil, fmt.Errorf("role %q: right not registered: %s", role, name)
			}
			m = m.Set(bit)
		}
		t.roles[role] = m
	}

	return t, nil
}

// Default returns the built-in table: user has no rights, admin has
// getUsers and manageUsers.
func Default() *Table {
	t, err := New(
		[]string{GetUsers, ManageUsers},
		map[string][]string{
			RoleUser:  {},
			RoleAdmin: {GetUsers, ManageUsers},
		},
	)
	if err != nil {
		panic(err)
	}
	return t
}

// HasRole reports whether role is known to the table.
func (t *Table) HasRole(role string) bool {
	_, ok := t.roles[role]
	return ok
}

// Mask returns the rights mask for role. Unknown roles hold no rights.
func (t *Table) Mask(role string) Mask {
	return t.roles[role]
}

// Granted returns the names of the rights held by role, in registration order.
func (t *Table) Granted(role string) []string {
	m := t.roles[role]
	out := make([]string, 0, len(t.names))
	for bit, name := range t.names {
		if m.Has(bit) {
			out = append(out, name)
		}
	}
	return out
}

// HasAll reports whether role holds every right in required. An empty
// requirement is always satisfied; an unknown right never is.
func (t *Table) HasAll(role string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	var want Mask
	for _, name := range required {
		bit, ok := t.bits[name]
		if !ok {
			return false
		}
		want = want.Set(bit)
	}
	return t.roles[role].Contains(want)
}

// Roles returns the sorted role names.
func (t *Table) Roles() []string {
	out := make([]string, 0, len(t.roles))
	for role := range t.roles {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}

// Rights returns the registered right names in registration order.
func (t *Table) Rights() []string {
	return append([]string(nil), t.names...)
}
