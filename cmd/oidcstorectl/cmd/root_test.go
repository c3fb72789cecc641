package cmd

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	adminecho "go.pilab.hu/oidcstore/api/echo"
	"go.pilab.hu/oidcstore/domain"
	mock_domain "go.pilab.hu/oidcstore/domain/mocks"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestScopesGet(t *testing.T) {
	ctrl := gomock.NewController(t)
	scopes := mock_domain.NewMockScopeStore(ctrl)
	scopes.EXPECT().FindByName(gomock.Any(), "email").
		Return(&domain.Scope{ID: "s1", Name: "email", Resources: []string{"api"}}, nil).Times(2)

	e := echo.New()
	adminecho.NewAdminAPI(&adminecho.AdminAPIOptions{Scopes: scopes, Gatherer: prometheus.NewRegistry()}).RegisterRoutes(e)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	out, err := run(t, "--server", srv.URL, "scopes", "get", "email")
	require.NoError(t, err)
	assert.Contains(t, out, "name: email")
	assert.Contains(t, out, "- api")

	out, err = run(t, "--server", srv.URL, "-o", "json", "scopes", "get", "email")
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "email"`)
}

func TestRender_UnknownFormat(t *testing.T) {
	settings.Set("output", "xml")
	t.Cleanup(func() { settings.Set("output", "yaml") })

	assert.Error(t, render(&bytes.Buffer{}, map[string]string{"a": "b"}))
}

func TestAuthorizationsFindRequiresFlags(t *testing.T) {
	_, err := run(t, "--server", "http://127.0.0.1:1", "authorizations", "find", "--subject", "alice")
	assert.ErrorContains(t, err, "client")
}
