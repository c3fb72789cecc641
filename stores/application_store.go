package stores

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"

	"go.opentelemetry.io/otel/attribute"

	"go.pilab.hu/oidcstore/codec"
	"go.pilab.hu/oidcstore/domain"
	"go.pilab.hu/oidcstore/identity"
	"go.pilab.hu/oidcstore/log"
	"go.pilab.hu/oidcstore/query"
	"go.pilab.hu/oidcstore/reactive"
)

// ApplicationStore implements domain.ApplicationStore. Revoked applications
// stay in the table but are invisible to every read.
type ApplicationStore struct {
	base
}

var _ domain.ApplicationStore = (*ApplicationStore)(nil)

func NewApplicationStore(store reactive.Store, ids *identity.Mapper, c *codec.Codec, logger log.Logger) *ApplicationStore {
	return &ApplicationStore{base: newBase(store, ids, c, logger, "application_store")}
}

func (s *ApplicationStore) toRow(app *domain.Application) reactive.ApplicationRow {
	return reactive.ApplicationRow{
		ID:                     app.InternalID,
		ExternalID:             app.ID,
		ClientID:               app.ClientID,
		ClientSecret:           app.ClientSecret,
		ClientType:             string(app.ClientType),
		ConsentType:            string(app.ConsentType),
		ApplicationType:        string(app.ApplicationType),
		DisplayName:            app.DisplayName,
		DisplayNames:           s.codec.EncodeLocalized(app.DisplayNames),
		Permissions:            s.codec.EncodeSet(app.Permissions),
		PostLogoutRedirectURIs: s.codec.EncodeStrings(app.PostLogoutRedirectURIs),
		RedirectURIs:           s.codec.EncodeStrings(app.RedirectURIs),
		Requirements:           s.codec.EncodeSet(app.Requirements),
		Settings:               s.codec.EncodeSettings(app.Settings),
		Properties:             s.codec.EncodeProperties(app.Properties),
		Active:                 app.Active,
		CreatedAt:              toMillis(app.CreatedAt),
		ConcurrencyToken:       app.ConcurrencyToken,
	}
}

func (s *ApplicationStore) fromRow(r reactive.ApplicationRow) *domain.Application {
	return &domain.Application{
		ID:                     r.ExternalID,
		InternalID:             r.ID,
		ApplicationType:        domain.ApplicationType(r.ApplicationType),
		ClientID:               r.ClientID,
		ClientSecret:           r.ClientSecret,
		ClientType:             domain.ClientType(r.ClientType),
		ConsentType:            domain.ConsentType(r.ConsentType),
		DisplayName:            r.DisplayName,
		DisplayNames:           s.codec.DecodeLocalized(r.DisplayNames),
		Permissions:            s.codec.DecodeStrings(r.Permissions),
		PostLogoutRedirectURIs: s.codec.DecodeStrings(r.PostLogoutRedirectURIs),
		RedirectURIs:           s.codec.DecodeStrings(r.RedirectURIs),
		Requirements:           s.codec.DecodeStrings(r.Requirements),
		Settings:               s.codec.DecodeSettings(r.Settings),
		Properties:             s.codec.DecodeProperties(r.Properties),
		Active:                 r.Active,
		CreatedAt:              fromMillis(r.CreatedAt),
		ConcurrencyToken:       r.ConcurrencyToken,
	}
}

func (s *ApplicationStore) rows() *query.Query[reactive.ApplicationRow] {
	return materialize(reactive.TableApplications, s.store.Applications()).
		Where("active", func(r reactive.ApplicationRow) bool { return r.Active })
}

func (s *ApplicationStore) all() *query.Query[*domain.Application] {
	return query.From(query.Map(s.rows().Seq(), s.fromRow))
}

// resolve finds the active row of a descriptor, by external id when it has
// one and by client id otherwise.
func (s *ApplicationStore) resolve(app *domain.Application) (reactive.ApplicationRow, bool) {
	var (
		row reactive.ApplicationRow
		ok  bool
	)
	switch {
	case app.ID != "":
		row, ok = s.store.Applications().Find(reactive.IndexExternalID, app.ID)
	case app.ClientID != "":
		row, ok = s.store.Applications().Find(reactive.IndexClientID, app.ClientID)
	}
	return row, ok && row.Active
}

func (s *ApplicationStore) Count(_ context.Context) (int64, error) {
	return int64(s.rows().Count()), nil
}

func (s *ApplicationStore) CountWith(_ context.Context, q query.Projection[*domain.Application]) (int64, error) {
	return countWith(s.all(), q)
}

// Create registers app. It mints the external id when app has none and
// fills in the fields the store owns on the descriptor.
func (s *ApplicationStore) Create(ctx context.Context, app *domain.Application) (err error) {
	ctx, span := startSpan(ctx, "ApplicationStore.Create")
	defer func() { finish(span, err) }()

	if app == nil {
		return fmt.Errorf("%w: application is required", domain.ErrValidation)
	}
	if err := required("client id", app.ClientID); err != nil {
		return err
	}
	span.SetAttributes(attribute.String("client_id", app.ClientID))

	if _, exists := s.store.Applications().Find(reactive.IndexClientID, app.ClientID); exists {
		return fmt.Errorf("%w: client id %q", domain.ErrDuplicate, app.ClientID)
	}
	if app.ID == "" {
		app.ID = s.ids.NewExternalID()
	} else if reactive.Exists(s.store, reactive.TableApplications, app.ID) {
		return fmt.Errorf("%w: application id %q", domain.ErrDuplicate, app.ID)
	}
	if app.CreatedAt.IsZero() {
		app.CreatedAt = s.now().UTC()
	}
	app.InternalID = 0
	app.Active = true
	app.ConcurrencyToken = s.ids.NewConcurrencyToken()

	if err := s.store.Submit(ctx, reactive.RegisterApplication, s.toRow(app)); err != nil {
		return fmt.Errorf("failed to submit application registration: %w", err)
	}
	s.ids.Track(reactive.TableApplications, app.ID)

	s.logger.Debug(ctx, "application registration submitted", map[string]interface{}{
		"id":        app.ID,
		"client_id": app.ClientID,
	})
	return nil
}

// Delete revokes the application together with its authorizations and tokens.
func (s *ApplicationStore) Delete(ctx context.Context, app *domain.Application) (err error) {
	ctx, span := startSpan(ctx, "ApplicationStore.Delete")
	defer func() { finish(span, err) }()

	if app == nil {
		return fmt.Errorf("%w: application is required", domain.ErrValidation)
	}
	row, ok := s.resolve(app)
	if !ok {
		return nil
	}
	if err := checkToken("application", row.ExternalID, row.ConcurrencyToken, app.ConcurrencyToken); err != nil {
		return err
	}
	return s.revoke(ctx, row)
}

func (s *ApplicationStore) DeleteByClientID(ctx context.Context, clientID string) (err error) {
	ctx, span := startSpan(ctx, "ApplicationStore.DeleteByClientID", attribute.String("client_id", clientID))
	defer func() { finish(span, err) }()

	if err := required("client id", clientID); err != nil {
		return err
	}
	row, ok := s.store.Applications().Find(reactive.IndexClientID, clientID)
	if !ok {
		return nil
	}
	return s.revoke(ctx, row)
}

func (s *ApplicationStore) revoke(ctx context.Context, row reactive.ApplicationRow) error {
	err := s.store.Submit(ctx, reactive.RevokeApplication, reactive.IDArgs{ID: row.ID})
	s.audit(ctx, "revoke", row.ClientID, err)
	if err != nil {
		return fmt.Errorf("failed to submit application revocation: %w", err)
	}

	cascade := reactive.RevokeFilter{ClientID: row.ClientID}
	err = errors.Join(
		s.store.Submit(ctx, reactive.RevokeAuthorizations, cascade),
		s.store.Submit(ctx, reactive.RevokeTokens, cascade),
	)
	if err != nil {
		s.logger.Error(ctx, "application revoked but cascade could not be submitted", err, map[string]interface{}{
			"client_id": row.ClientID,
		})
		return fmt.Errorf("failed to submit revocation cascade for %q: %w", row.ClientID, err)
	}

	s.logger.Info(ctx, "application revocation submitted", map[string]interface{}{
		"id":        row.ExternalID,
		"client_id": row.ClientID,
	})
	return nil
}

func (s *ApplicationStore) FindByID(ctx context.Context, id string) (app *domain.Application, err error) {
	_, span := startSpan(ctx, "ApplicationStore.FindByID", attribute.String("id", id))
	defer func() { finish(span, err) }()

	if err := required("id", id); err != nil {
		return nil, err
	}
	row, ok := s.store.Applications().Find(reactive.IndexExternalID, id)
	if !ok || !row.Active {
		return nil, fmt.Errorf("application %q: %w", id, domain.ErrNotFound)
	}
	return s.fromRow(row), nil
}

func (s *ApplicationStore) FindByClientID(ctx context.Context, clientID string) (app *domain.Application, err error) {
	_, span := startSpan(ctx, "ApplicationStore.FindByClientID", attribute.String("client_id", clientID))
	defer func() { finish(span, err) }()

	if err := required("client id", clientID); err != nil {
		return nil, err
	}
	row, ok := s.store.Applications().Find(reactive.IndexClientID, clientID)
	if !ok {
		return nil, fmt.Errorf("application with client id %q: %w", clientID, domain.ErrNotFound)
	}
	return s.fromRow(row), nil
}

func (s *ApplicationStore) FindByPostLogoutRedirectURI(ctx context.Context, uri string) iter.Seq2[*domain.Application, error] {
	if err := required("uri", uri); err != nil {
		return query.Fail[*domain.Application](err)
	}
	q := s.all().Where("post_logout_redirect_uri", func(app *domain.Application) bool {
		return slices.Contains(app.PostLogoutRedirectURIs, uri)
	})
	return query.Stream(ctx, q.Seq())
}

func (s *ApplicationStore) FindByRedirectURI(ctx context.Context, uri string) iter.Seq2[*domain.Application, error] {
	if err := required("uri", uri); err != nil {
		return query.Fail[*domain.Application](err)
	}
	q := s.all().Where("redirect_uri", func(app *domain.Application) bool {
		return slices.Contains(app.RedirectURIs, uri)
	})
	return query.Stream(ctx, q.Seq())
}

func (s *ApplicationStore) GetWith(_ context.Context, q query.Projection[*domain.Application]) (any, error) {
	return getWith(s.all(), q)
}

// Instantiate returns an active application with explicit consent.
func (s *ApplicationStore) Instantiate() *domain.Application {
	return &domain.Application{
		Active:      true,
		ConsentType: domain.ConsentTypeExplicit,
	}
}

func (s *ApplicationStore) List(ctx context.Context, count, offset int) iter.Seq2[*domain.Application, error] {
	return page(ctx, s.all(), count, offset)
}

func (s *ApplicationStore) ListWith(ctx context.Context, q query.Projection[*domain.Application]) iter.Seq2[any, error] {
	return listWith(ctx, s.all(), q)
}

// Update replaces the stored application with app. The client id may change
// as long as no other active application holds it.
func (s *ApplicationStore) Update(ctx context.Context, app *domain.Application) (err error) {
	ctx, span := startSpan(ctx, "ApplicationStore.Update")
	defer func() { finish(span, err) }()

	if app == nil {
		return fmt.Errorf("%w: application is required", domain.ErrValidation)
	}
	if err := required("client id", app.ClientID); err != nil {
		return err
	}
	row, ok := s.resolve(app)
	if !ok {
		return staleErr("application", app.ID)
	}
	if err := checkToken("application", row.ExternalID, row.ConcurrencyToken, app.ConcurrencyToken); err != nil {
		return err
	}
	if app.ClientID != row.ClientID {
		if other, taken := s.store.Applications().Find(reactive.IndexClientID, app.ClientID); taken && other.ID != row.ID {
			return fmt.Errorf("%w: client id %q", domain.ErrDuplicate, app.ClientID)
		}
	}

	next := s.toRow(app)
	next.ID = row.ID
	next.ExternalID = row.ExternalID
	next.Active = row.Active
	next.ConcurrencyToken = s.ids.NewConcurrencyToken()
	if err := s.store.Submit(ctx, reactive.UpdateApplication, next); err != nil {
		return fmt.Errorf("failed to submit application update: %w", err)
	}
	app.ID = next.ExternalID
	app.InternalID = next.ID
	app.Active = next.Active
	app.ConcurrencyToken = next.ConcurrencyToken
	return nil
}

func (s *ApplicationStore) WaitVisible(ctx context.Context, id string) error {
	return s.ids.WaitVisible(ctx, reactive.TableApplications, id)
}
