package stores

import (
	"context"
	"fmt"
	"iter"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"go.pilab.hu/oidcstore/codec"
	"go.pilab.hu/oidcstore/domain"
	"go.pilab.hu/oidcstore/identity"
	"go.pilab.hu/oidcstore/log"
	"go.pilab.hu/oidcstore/query"
	"go.pilab.hu/oidcstore/reactive"
)

// AuthorizationStore implements domain.AuthorizationStore.
type AuthorizationStore struct {
	base
}

var _ domain.AuthorizationStore = (*AuthorizationStore)(nil)

func NewAuthorizationStore(store reactive.Store, ids *identity.Mapper, c *codec.Codec, logger log.Logger) *AuthorizationStore {
	return &AuthorizationStore{base: newBase(store, ids, c, logger, "authorization_store")}
}

func (s *AuthorizationStore) toRow(a *domain.Authorization) reactive.AuthorizationRow {
	return reactive.AuthorizationRow{
		ID:               a.InternalID,
		ExternalID:       a.ID,
		ClientID:         a.ClientID,
		Subject:          a.Subject,
		Type:             string(a.Type),
		Status:           string(a.Status),
		Scopes:           s.codec.EncodeSet(a.Scopes),
		Properties:       s.codec.EncodeProperties(a.Properties),
		CreationDate:     toMillis(a.CreationDate),
		ConcurrencyToken: a.ConcurrencyToken,
	}
}

func (s *AuthorizationStore) fromRow(r reactive.AuthorizationRow) *domain.Authorization {
	return &domain.Authorization{
		ID:               r.ExternalID,
		InternalID:       r.ID,
		ClientID:         r.ClientID,
		Subject:          r.Subject,
		Type:             domain.AuthorizationType(r.Type),
		Status:           domain.AuthorizationStatus(r.Status),
		Scopes:           s.codec.DecodeStrings(r.Scopes),
		Properties:       s.codec.DecodeProperties(r.Properties),
		CreationDate:     fromMillis(r.CreationDate),
		ConcurrencyToken: r.ConcurrencyToken,
	}
}

func (s *AuthorizationStore) all() *query.Query[*domain.Authorization] {
	rows := materialize(reactive.TableAuthorizations, s.store.Authorizations())
	return query.From(query.Map(rows.Seq(), s.fromRow))
}

// filtered applies filter to every authorization. Subject and client are
// matched first so that scopes are only compared on the remaining rows.
func (s *AuthorizationStore) filtered(filter domain.AuthorizationFilter) *query.Query[*domain.Authorization] {
	q := s.all().
		Where("subject", func(a *domain.Authorization) bool { return a.Subject == filter.Subject }).
		Where("client", func(a *domain.Authorization) bool { return a.ClientID == filter.ClientID })
	if filter.Status != "" {
		q = q.Where("status", func(a *domain.Authorization) bool { return a.Status == filter.Status })
	}
	if filter.Type != "" {
		q = q.Where("type", func(a *domain.Authorization) bool { return a.Type == filter.Type })
	}
	if len(filter.Scopes) > 0 {
		q = q.Where("scopes", func(a *domain.Authorization) bool { return a.HasScopes(filter.Scopes) })
	}
	return q
}

func validateFilter(subject, clientID string) error {
	if err := required("subject", subject); err != nil {
		return err
	}
	return required("client id", clientID)
}

func (s *AuthorizationStore) resolve(a *domain.Authorization) (reactive.AuthorizationRow, bool) {
	if a.ID == "" {
		return reactive.AuthorizationRow{}, false
	}
	return s.store.Authorizations().Find(reactive.IndexExternalID, a.ID)
}

func (s *AuthorizationStore) Count(_ context.Context) (int64, error) {
	return int64(s.store.Authorizations().Len()), nil
}

func (s *AuthorizationStore) CountWith(_ context.Context, q query.Projection[*domain.Authorization]) (int64, error) {
	return countWith(s.all(), q)
}

// Create records a new authorization. Status defaults to valid.
func (s *AuthorizationStore) Create(ctx context.Context, a *domain.Authorization) (err error) {
	ctx, span := startSpan(ctx, "AuthorizationStore.Create")
	defer func() { finish(span, err) }()

	if a == nil {
		return fmt.Errorf("%w: authorization is required", domain.ErrValidation)
	}
	if err := required("client id", a.ClientID); err != nil {
		return err
	}
	span.SetAttributes(attribute.String("client_id", a.ClientID))

	if a.ID == "" {
		a.ID = s.ids.NewExternalID()
	} else if reactive.Exists(s.store, reactive.TableAuthorizations, a.ID) {
		return fmt.Errorf("%w: authorization id %q", domain.ErrDuplicate, a.ID)
	}
	if a.Status == "" {
		a.Status = domain.AuthorizationStatusValid
	}
	if a.CreationDate.IsZero() {
		a.CreationDate = s.now().UTC()
	}
	a.InternalID = 0
	a.ConcurrencyToken = s.ids.NewConcurrencyToken()

	if err := s.store.Submit(ctx, reactive.CreateAuthorization, s.toRow(a)); err != nil {
		return fmt.Errorf("failed to submit authorization creation: %w", err)
	}
	s.ids.Track(reactive.TableAuthorizations, a.ID)
	return nil
}

// Delete removes the authorization and revokes the tokens issued under it.
func (s *AuthorizationStore) Delete(ctx context.Context, a *domain.Authorization) (err error) {
	ctx, span := startSpan(ctx, "AuthorizationStore.Delete")
	defer func() { finish(span, err) }()

	if a == nil {
		return fmt.Errorf("%w: authorization is required", domain.ErrValidation)
	}
	row, ok := s.resolve(a)
	if !ok {
		return nil
	}
	if err := checkToken("authorization", row.ExternalID, row.ConcurrencyToken, a.ConcurrencyToken); err != nil {
		return err
	}

	err = s.store.Submit(ctx, reactive.DeleteAuthorization, reactive.IDArgs{ID: row.ID})
	s.audit(ctx, "delete", row.ExternalID, err)
	if err != nil {
		return fmt.Errorf("failed to submit authorization deletion: %w", err)
	}
	if err := s.store.Submit(ctx, reactive.RevokeTokens, reactive.RevokeFilter{AuthorizationID: row.ExternalID}); err != nil {
		return fmt.Errorf("failed to submit token revocation for authorization %q: %w", row.ExternalID, err)
	}
	return nil
}

func (s *AuthorizationStore) Find(ctx context.Context, filter domain.AuthorizationFilter) iter.Seq2[*domain.Authorization, error] {
	if err := validateFilter(filter.Subject, filter.ClientID); err != nil {
		return query.Fail[*domain.Authorization](err)
	}
	return query.Stream(ctx, s.filtered(filter).Seq())
}

func (s *AuthorizationStore) FindFirst(ctx context.Context, filter domain.AuthorizationFilter) (a *domain.Authorization, err error) {
	_, span := startSpan(ctx, "AuthorizationStore.FindFirst")
	defer func() { finish(span, err) }()

	if err := validateFilter(filter.Subject, filter.ClientID); err != nil {
		return nil, err
	}
	a, ok := s.filtered(filter).First()
	if !ok {
		return nil, fmt.Errorf("authorization for %q on %q: %w", filter.Subject, filter.ClientID, domain.ErrNotFound)
	}
	return a, nil
}

func (s *AuthorizationStore) FindByClientID(ctx context.Context, clientID string) iter.Seq2[*domain.Authorization, error] {
	if err := required("client id", clientID); err != nil {
		return query.Fail[*domain.Authorization](err)
	}
	q := s.all().Where("client", func(a *domain.Authorization) bool { return a.ClientID == clientID })
	return query.Stream(ctx, q.Seq())
}

func (s *AuthorizationStore) FindByID(ctx context.Context, id string) (a *domain.Authorization, err error) {
	_, span := startSpan(ctx, "AuthorizationStore.FindByID", attribute.String("id", id))
	defer func() { finish(span, err) }()

	if err := required("id", id); err != nil {
		return nil, err
	}
	row, ok := s.store.Authorizations().Find(reactive.IndexExternalID, id)
	if !ok {
		return nil, fmt.Errorf("authorization %q: %w", id, domain.ErrNotFound)
	}
	return s.fromRow(row), nil
}

func (s *AuthorizationStore) FindBySubject(ctx context.Context, subject string) iter.Seq2[*domain.Authorization, error] {
	if err := required("subject", subject); err != nil {
		return query.Fail[*domain.Authorization](err)
	}
	q := s.all().Where("subject", func(a *domain.Authorization) bool { return a.Subject == subject })
	return query.Stream(ctx, q.Seq())
}

func (s *AuthorizationStore) GetWith(_ context.Context, q query.Projection[*domain.Authorization]) (any, error) {
	return getWith(s.all(), q)
}

func (s *AuthorizationStore) Instantiate() *domain.Authorization {
	return &domain.Authorization{
		Status: domain.AuthorizationStatusValid,
		Type:   domain.AuthorizationTypePermanent,
	}
}

func (s *AuthorizationStore) List(ctx context.Context, count, offset int) iter.Seq2[*domain.Authorization, error] {
	return page(ctx, s.all(), count, offset)
}

func (s *AuthorizationStore) ListWith(ctx context.Context, q query.Projection[*domain.Authorization]) iter.Seq2[any, error] {
	return listWith(ctx, s.all(), q)
}

func (s *AuthorizationStore) Prune(ctx context.Context, threshold time.Time) (err error) {
	ctx, span := startSpan(ctx, "AuthorizationStore.Prune")
	defer func() { finish(span, err) }()

	if threshold.IsZero() {
		return fmt.Errorf("%w: prune threshold is required", domain.ErrValidation)
	}
	err = s.store.Submit(ctx, reactive.PruneAuthorizations, reactive.PruneArgs{Threshold: threshold.UnixMilli()})
	s.audit(ctx, "prune", threshold.UTC().Format(time.RFC3339), err)
	if err != nil {
		return fmt.Errorf("failed to submit authorization pruning: %w", err)
	}
	return nil
}

// Revoke revokes every valid authorization matching filter. At least one of
// subject and client id is required; filter.Status is ignored.
func (s *AuthorizationStore) Revoke(ctx context.Context, filter domain.AuthorizationFilter) (n int64, err error) {
	ctx, span := startSpan(ctx, "AuthorizationStore.Revoke")
	defer func() { finish(span, err) }()

	if filter.Subject == "" && filter.ClientID == "" {
		return 0, fmt.Errorf("%w: subject or client id is required", domain.ErrValidation)
	}

	args := reactive.RevokeFilter{
		Subject:  filter.Subject,
		ClientID: filter.ClientID,
		Type:     string(filter.Type),
		Scopes:   filter.Scopes,
	}
	for a := range s.all().Seq() {
		if a.Status != domain.AuthorizationStatusValid {
			continue
		}
		if args.Subject != "" && a.Subject != args.Subject {
			continue
		}
		if args.ClientID != "" && a.ClientID != args.ClientID {
			continue
		}
		if filter.Type != "" && a.Type != filter.Type {
			continue
		}
		if a.HasScopes(filter.Scopes) {
			n++
		}
	}

	err = s.store.Submit(ctx, reactive.RevokeAuthorizations, args)
	s.audit(ctx, "revoke", filter.Subject+"@"+filter.ClientID, err)
	if err != nil {
		return 0, fmt.Errorf("failed to submit authorization revocation: %w", err)
	}
	span.SetAttributes(attribute.Int64("estimated", n))
	return n, nil
}

// TryRevoke moves a valid authorization to revoked. Revoking an authorization
// that is already revoked succeeds without submitting anything.
func (s *AuthorizationStore) TryRevoke(ctx context.Context, a *domain.Authorization) (err error) {
	ctx, span := startSpan(ctx, "AuthorizationStore.TryRevoke")
	defer func() { finish(span, err) }()

	if a == nil {
		return fmt.Errorf("%w: authorization is required", domain.ErrValidation)
	}
	row, ok := s.resolve(a)
	if !ok {
		return staleErr("authorization", a.ID)
	}
	if err := checkToken("authorization", row.ExternalID, row.ConcurrencyToken, a.ConcurrencyToken); err != nil {
		return err
	}
	switch domain.AuthorizationStatus(row.Status) {
	case domain.AuthorizationStatusRevoked:
		return nil
	case domain.AuthorizationStatusValid:
	default:
		return fmt.Errorf("%w: authorization %q is %s", domain.ErrInvalidTransition, row.ExternalID, row.Status)
	}

	row.Status = string(domain.AuthorizationStatusRevoked)
	row.ConcurrencyToken = s.ids.NewConcurrencyToken()
	err = s.store.Submit(ctx, reactive.UpdateAuthorization, row)
	s.audit(ctx, "revoke", row.ExternalID, err)
	if err != nil {
		return fmt.Errorf("failed to submit authorization revocation: %w", err)
	}
	a.Status = domain.AuthorizationStatusRevoked
	a.ConcurrencyToken = row.ConcurrencyToken
	return nil
}

// Update replaces the stored authorization. The only status change accepted
// is valid to revoked.
func (s *AuthorizationStore) Update(ctx context.Context, a *domain.Authorization) (err error) {
	ctx, span := startSpan(ctx, "AuthorizationStore.Update")
	defer func() { finish(span, err) }()

	if a == nil {
		return fmt.Errorf("%w: authorization is required", domain.ErrValidation)
	}
	if err := required("client id", a.ClientID); err != nil {
		return err
	}
	row, ok := s.resolve(a)
	if !ok {
		return staleErr("authorization", a.ID)
	}
	if err := checkToken("authorization", row.ExternalID, row.ConcurrencyToken, a.ConcurrencyToken); err != nil {
		return err
	}
	if from, to := domain.AuthorizationStatus(row.Status), a.Status; from != to &&
		(from != domain.AuthorizationStatusValid || to != domain.AuthorizationStatusRevoked) {
		return fmt.Errorf("%w: authorization %q from %q to %q", domain.ErrInvalidTransition, row.ExternalID, from, to)
	}

	next := s.toRow(a)
	next.ID = row.ID
	next.ConcurrencyToken = s.ids.NewConcurrencyToken()
	if err := s.store.Submit(ctx, reactive.UpdateAuthorization, next); err != nil {
		return fmt.Errorf("failed to submit authorization update: %w", err)
	}
	a.InternalID = next.ID
	a.ConcurrencyToken = next.ConcurrencyToken
	return nil
}

func (s *AuthorizationStore) WaitVisible(ctx context.Context, id string) error {
	return s.ids.WaitVisible(ctx, reactive.TableAuthorizations, id)
}
