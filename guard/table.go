package guard

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/upb/ticketing-shell/internal/shared"
	"github.com/upb/ticketing-shell/session"
	"github.com/upb/ticketing-shell/utils"
	"gopkg.in/yaml.v3"
)

//go:embed routes.yaml
var defaultRoutes []byte

// Route is one entry of the route table
type Route struct {
	Path       string `yaml:"path" json:"path" validate:"required,startswith=/"`
	Name       string `yaml:"name" json:"name,omitempty"`
	EntryPoint bool   `yaml:"entry_point" json:"entry_point"`
	Policy     `yaml:",inline"`
}

// Guarded reports whether the route carries any access rule
func (r Route) Guarded() bool {
	return r.RequireAuth || len(r.AllowedRoles) > 0
}

// Table is the declarative route policy table of the shell
type Table struct {
	LoginPath string                  `yaml:"login_path" json:"login_path" validate:"required,startswith=/"`
	Fallback  string                  `yaml:"fallback" json:"fallback" validate:"omitempty,startswith=/"`
	Homes     map[session.Role]string `yaml:"homes" json:"homes" validate:"dive,keys,oneof=admin organizer user,endkeys,startswith=/"`
	Routes    []Route                 `yaml:"routes" json:"routes" validate:"required,min=1,dive"`

	byPath map[string]int
}

// DefaultTable returns the embedded route table
func DefaultTable() (*Table, error) {
	return ParseTable(defaultRoutes)
}

// LoadTable reads a route table from path, or the embedded default when
// path is empty
func LoadTable(path string) (*Table, error) {
	if path == "" {
		return DefaultTable()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read route table: %w", err)
	}
	return ParseTable(data)
}

// ParseTable decodes and validates a YAML route table
func ParseTable(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, shared.WrapError(shared.ErrorTypeGuardMisconfiguration, "invalid route table", err)
	}
	if t.Fallback == "" {
		t.Fallback = "/"
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks field constraints and cross-route consistency: unique
// paths, every role home allowed for its role, and fallbacks that cannot
// bounce a role between denied routes.
func (t *Table) Validate() error {
	if err := utils.ValidateStruct(t); err != nil {
		return shared.NewDomainError(shared.ErrorTypeGuardMisconfiguration, "invalid route table", err).
			WithDetail("fields", utils.GetValidationFields(err))
	}

	t.byPath = make(map[string]int, len(t.Routes))
	for i, r := range t.Routes {
		if _, dup := t.byPath[r.Path]; dup {
			return misconfigured("duplicate route", r.Path)
		}
		t.byPath[r.Path] = i
	}

	if _, ok := t.byPath[t.LoginPath]; !ok {
		return misconfigured("login path is not a route", t.LoginPath)
	}
	if login := t.Routes[t.byPath[t.LoginPath]]; login.ExcludesGuest() {
		return misconfigured("login route excludes guests", t.LoginPath)
	}

	for role, home := range t.Homes {
		if r, ok := t.Lookup(home); ok && r.Evaluate(role) != StateAllowed {
			return misconfigured(fmt.Sprintf("home of %s denies that role", role), home)
		}
	}

	for _, role := range []session.Role{session.RoleAdmin, session.RoleOrganizer, session.RoleUser} {
		for _, r := range t.Routes {
			if err := t.checkFallbackChain(r, role); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Table) checkFallbackChain(start Route, role session.Role) error {
	seen := map[string]bool{}
	r := start
	for r.Evaluate(role) == StateDeniedRole {
		if seen[r.Path] {
			return misconfigured(fmt.Sprintf("fallback loop for role %s", role), start.Path)
		}
		seen[r.Path] = true

		next := r.FallbackPath
		if next == "" {
			next = t.Fallback
		}
		nr, ok := t.Lookup(next)
		if !ok {
			return nil
		}
		r = nr
	}
	return nil
}

func misconfigured(msg, path string) error {
	return shared.NewDomainError(shared.ErrorTypeGuardMisconfiguration, msg, nil).WithDetail("path", path)
}

// Lookup returns the route registered for path
func (t *Table) Lookup(path string) (Route, bool) {
	if t.byPath == nil {
		t.byPath = make(map[string]int, len(t.Routes))
		for i, r := range t.Routes {
			t.byPath[r.Path] = i
		}
	}
	i, ok := t.byPath[path]
	if !ok {
		return Route{}, false
	}
	return t.Routes[i], true
}

// IsEntryPoint reports whether path is a neutral entry point
func (t *Table) IsEntryPoint(path string) bool {
	r, ok := t.Lookup(path)
	return ok && r.EntryPoint
}

// EntryPoints returns the neutral entry point paths, sorted
func (t *Table) EntryPoints() []string {
	var out []string
	for _, r := range t.Routes {
		if r.EntryPoint {
			out = append(out, r.Path)
		}
	}
	sort.Strings(out)
	return out
}

// Home returns the landing page for role, or the table fallback
func (t *Table) Home(role session.Role) string {
	if home, ok := t.HomeFor(role); ok {
		return home
	}
	return t.Fallback
}

// HomeFor returns the landing page declared for role
func (t *Table) HomeFor(role session.Role) (string, bool) {
	home, ok := t.Homes[role]
	return home, ok
}

// Misconfigurations lists routes that exclude guests only through their
// allowed roles. Such routes still deny guests with an auth redirect.
func (t *Table) Misconfigurations() []string {
	var out []string
	for _, r := range t.Routes {
		if r.ImplicitGuestExclusion() {
			out = append(out, r.Path)
		}
	}
	return out
}
