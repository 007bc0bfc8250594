package guard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/ticketing-shell/internal/shared"
	"github.com/upb/ticketing-shell/session"
)

func TestDefaultTable(t *testing.T) {
	table, err := DefaultTable()
	require.NoError(t, err)

	assert.Equal(t, "/login", table.LoginPath)
	assert.Equal(t, []string{"/", "/login"}, table.EntryPoints())
	assert.True(t, table.IsEntryPoint("/"))
	assert.False(t, table.IsEntryPoint("/checkout"))

	assert.Equal(t, "/admin", table.Home(session.RoleAdmin))
	assert.Equal(t, "/organizer", table.Home(session.RoleOrganizer))
	assert.Equal(t, "/dashboard", table.Home(session.RoleUser))
	assert.Equal(t, "/", table.Home(session.RoleGuest))

	checkout, ok := table.Lookup("/checkout")
	require.True(t, ok)
	assert.True(t, checkout.RequireAuth)
	assert.Equal(t, "/events", checkout.FallbackPath)
	assert.True(t, checkout.Guarded())

	_, ok = table.Lookup("/nowhere")
	assert.False(t, ok)
	assert.Empty(t, table.Misconfigurations())
}

func TestParseTable_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "malformed yaml",
			yaml: "routes: [",
		},
		{
			name: "unknown role",
			yaml: `
login_path: /login
routes:
  - path: /login
  - path: /x
    allowed_roles: [superuser]
`,
		},
		{
			name: "relative path",
			yaml: `
login_path: /login
routes:
  - path: /login
  - path: relative
`,
		},
		{
			name: "duplicate route",
			yaml: `
login_path: /login
routes:
  - path: /login
  - path: /login
`,
		},
		{
			name: "login not registered",
			yaml: `
login_path: /signin
routes:
  - path: /
`,
		},
		{
			name: "login excludes guests",
			yaml: `
login_path: /login
routes:
  - path: /login
    require_auth: true
`,
		},
		{
			name: "home denies its role",
			yaml: `
login_path: /login
homes:
  user: /admin
routes:
  - path: /login
  - path: /admin
    require_auth: true
    allowed_roles: [admin]
`,
		},
		{
			name: "fallback loop",
			yaml: `
login_path: /login
routes:
  - path: /login
  - path: /a
    require_auth: true
    allowed_roles: [admin]
    fallback_path: /b
  - path: /b
    require_auth: true
    allowed_roles: [admin]
    fallback_path: /a
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTable([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, shared.IsGuardMisconfigurationError(err), "got %v", err)
		})
	}
}

func TestParseTable_ReportsImplicitGuestExclusion(t *testing.T) {
	table, err := ParseTable([]byte(`
login_path: /login
routes:
  - path: /login
  - path: /staff
    allowed_roles: [organizer]
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"/staff"}, table.Misconfigurations())
	assert.Equal(t, "/", table.Fallback)
}

func TestLoadTable(t *testing.T) {
	t.Run("empty path uses embedded table", func(t *testing.T) {
		table, err := LoadTable("")
		require.NoError(t, err)
		assert.NotEmpty(t, table.Routes)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "routes.yaml")
		require.NoError(t, os.WriteFile(path, []byte("login_path: /login\nroutes:\n  - path: /login\n    entry_point: true\n"), 0o600))

		table, err := LoadTable(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"/login"}, table.EntryPoints())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadTable(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}
