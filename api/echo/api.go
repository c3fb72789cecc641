//nolint:varnamelen
package echo

import (
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.pilab.hu/oidcstore/domain"
	"go.pilab.hu/oidcstore/log"
	"go.pilab.hu/oidcstore/query"
)

// Positioner reports how far the local replica has caught up.
type Positioner interface {
	Position() string
}

// AdminAPIOptions holds the dependencies of the admin API. Gatherer and
// Replica are optional.
type AdminAPIOptions struct {
	Applications   domain.ApplicationStore
	Authorizations domain.AuthorizationStore
	Scopes         domain.ScopeStore
	Tokens         domain.TokenStore

	Gatherer prometheus.Gatherer
	Replica  Positioner
	Logger   log.Logger
}

// AdminAPI is a read-only HTTP view over the stores.
type AdminAPI struct {
	applications   domain.ApplicationStore
	authorizations domain.AuthorizationStore
	scopes         domain.ScopeStore
	tokens         domain.TokenStore

	gatherer prometheus.Gatherer
	replica  Positioner
	logger   log.Logger
}

// NewAdminAPI initializes the admin API.
func NewAdminAPI(opts *AdminAPIOptions) *AdminAPI {
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &AdminAPI{
		applications:   opts.Applications,
		authorizations: opts.Authorizations,
		scopes:         opts.Scopes,
		tokens:         opts.Tokens,
		gatherer:       gatherer,
		replica:        opts.Replica,
		logger:         log.OrNop(opts.Logger).With(map[string]interface{}{"component": "admin_api"}),
	}
}

// RegisterRoutes registers the admin routes.
func (a *AdminAPI) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", a.HealthHandler)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})))

	e.GET("/applications", a.ListApplicationsHandler)
	e.GET("/applications/:client_id", a.GetApplicationHandler)
	e.GET("/scopes", a.ListScopesHandler)
	e.GET("/scopes/:name", a.GetScopeHandler)
	e.GET("/authorizations", a.FindAuthorizationsHandler)
	e.GET("/tokens/:id", a.GetTokenHandler)
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// statusOf maps store errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicate),
		errors.Is(err, domain.ErrConcurrency),
		errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnsupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func (a *AdminAPI) fail(c echo.Context, err error) error {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		a.logger.Error(c.Request().Context(), "admin request failed", err, map[string]interface{}{
			"path": c.Path(),
		})
		return c.JSON(status, ErrorResponse{Error: "internal error"})
	}
	return c.JSON(status, ErrorResponse{Error: err.Error()})
}

// page reads the count and offset query parameters.
func page(c echo.Context) (count, offset int, err error) {
	err = echo.QueryParamsBinder(c).
		Int("count", &count).
		Int("offset", &offset).
		BindError()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return count, offset, nil
}

func list[T any](seq iter.Seq2[T, error]) ([]T, error) {
	items, err := query.Collect(seq)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// HealthHandler reports liveness and the replica position.
func (a *AdminAPI) HealthHandler(c echo.Context) error {
	resp := map[string]string{"status": "ok"}
	if a.replica != nil {
		resp["position"] = a.replica.Position()
	}
	return c.JSON(http.StatusOK, resp)
}

// ListApplicationsHandler pages through the active applications.
func (a *AdminAPI) ListApplicationsHandler(c echo.Context) error {
	count, offset, err := page(c)
	if err != nil {
		return a.fail(c, err)
	}
	apps, err := list(a.applications.List(c.Request().Context(), count, offset))
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(http.StatusOK, apps)
}

func (a *AdminAPI) GetApplicationHandler(c echo.Context) error {
	app, err := a.applications.FindByClientID(c.Request().Context(), c.Param("client_id"))
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(http.StatusOK, app)
}

func (a *AdminAPI) ListScopesHandler(c echo.Context) error {
	count, offset, err := page(c)
	if err != nil {
		return a.fail(c, err)
	}
	scopes, err := list(a.scopes.List(c.Request().Context(), count, offset))
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(http.StatusOK, scopes)
}

func (a *AdminAPI) GetScopeHandler(c echo.Context) error {
	scope, err := a.scopes.FindByName(c.Request().Context(), c.Param("name"))
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(http.StatusOK, scope)
}

// FindAuthorizationsHandler looks up the authorizations of a subject on a
// client. Scopes may be repeated or space separated, as in an OAuth2 request.
func (a *AdminAPI) FindAuthorizationsHandler(c echo.Context) error {
	var scopes []string
	for _, s := range c.QueryParams()["scope"] {
		scopes = append(scopes, strings.Fields(s)...)
	}
	filter := domain.AuthorizationFilter{
		Subject:  c.QueryParam("subject"),
		ClientID: c.QueryParam("client"),
		Status:   domain.AuthorizationStatus(c.QueryParam("status")),
		Scopes:   scopes,
	}

	auths, err := list(a.authorizations.Find(c.Request().Context(), filter))
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(http.StatusOK, auths)
}

// GetTokenHandler returns a token's metadata. The payload is never rendered.
func (a *AdminAPI) GetTokenHandler(c echo.Context) error {
	token, err := a.tokens.FindByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(http.StatusOK, token)
}
