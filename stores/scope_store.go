package stores

import (
	"context"
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

// ScopeStore implements domain.ScopeStore. Scope names are unique.
type ScopeStore struct {
	base
}

var _ domain.ScopeStore = (*ScopeStore)(nil)

func NewScopeStore(store reactive.Store, ids *identity.Mapper, c *codec.Codec, logger log.Logger) *ScopeStore {
	return &ScopeStore{base: newBase(store, ids, c, logger, "scope_store")}
}

func (s *ScopeStore) toRow(sc *domain.Scope) reactive.ScopeRow {
	return reactive.ScopeRow{
		ID:               sc.InternalID,
		ExternalID:       sc.ID,
		Name:             sc.Name,
		Description:      sc.Description,
		Descriptions:     s.codec.EncodeLocalized(sc.Descriptions),
		DisplayName:      sc.DisplayName,
		DisplayNames:     s.codec.EncodeLocalized(sc.DisplayNames),
		Resources:        s.codec.EncodeSet(sc.Resources),
		Properties:       s.codec.EncodeProperties(sc.Properties),
		ConcurrencyToken: sc.ConcurrencyToken,
	}
}

func (s *ScopeStore) fromRow(r reactive.ScopeRow) *domain.Scope {
	return &domain.Scope{
		ID:               r.ExternalID,
		InternalID:       r.ID,
		Name:             r.Name,
		Description:      r.Description,
		Descriptions:     s.codec.DecodeLocalized(r.Descriptions),
		DisplayName:      r.DisplayName,
		DisplayNames:     s.codec.DecodeLocalized(r.DisplayNames),
		Resources:        s.codec.DecodeStrings(r.Resources),
		Properties:       s.codec.DecodeProperties(r.Properties),
		ConcurrencyToken: r.ConcurrencyToken,
	}
}

func (s *ScopeStore) all() *query.Query[*domain.Scope] {
	rows := materialize(reactive.TableScopes, s.store.Scopes())
	return query.From(query.Map(rows.Seq(), s.fromRow))
}

func (s *ScopeStore) resolve(sc *domain.Scope) (reactive.ScopeRow, bool) {
	switch {
	case sc.ID != "":
		return s.store.Scopes().Find(reactive.IndexExternalID, sc.ID)
	case sc.Name != "":
		return s.store.Scopes().Find(reactive.IndexName, sc.Name)
	default:
		return reactive.ScopeRow{}, false
	}
}

func (s *ScopeStore) Count(_ context.Context) (int64, error) {
	return int64(s.store.Scopes().Len()), nil
}

func (s *ScopeStore) CountWith(_ context.Context, q query.Projection[*domain.Scope]) (int64, error) {
	return countWith(s.all(), q)
}

func (s *ScopeStore) Create(ctx context.Context, sc *domain.Scope) (err error) {
	ctx, span := startSpan(ctx, "ScopeStore.Create")
	defer func() { finish(span, err) }()

	if sc == nil {
		return fmt.Errorf("%w: scope is required", domain.ErrValidation)
	}
	if err := required("scope name", sc.Name); err != nil {
		return err
	}
	span.SetAttributes(attribute.String("name", sc.Name))

	if _, exists := s.store.Scopes().Find(reactive.IndexName, sc.Name); exists {
		return fmt.Errorf("%w: scope %q", domain.ErrDuplicate, sc.Name)
	}
	if sc.ID == "" {
		sc.ID = s.ids.NewExternalID()
	} else if reactive.Exists(s.store, reactive.TableScopes, sc.ID) {
		return fmt.Errorf("%w: scope id %q", domain.ErrDuplicate, sc.ID)
	}
	sc.InternalID = 0
	sc.ConcurrencyToken = s.ids.NewConcurrencyToken()

	if err := s.store.Submit(ctx, reactive.CreateScope, s.toRow(sc)); err != nil {
		return fmt.Errorf("failed to submit scope creation: %w", err)
	}
	s.ids.Track(reactive.TableScopes, sc.ID)
	return nil
}

func (s *ScopeStore) Delete(ctx context.Context, sc *domain.Scope) (err error) {
	ctx, span := startSpan(ctx, "ScopeStore.Delete")
	defer func() { finish(span, err) }()

	if sc == nil {
		return fmt.Errorf("%w: scope is required", domain.ErrValidation)
	}
	row, ok := s.resolve(sc)
	if !ok {
		return nil
	}
	if err := checkToken("scope", row.ExternalID, row.ConcurrencyToken, sc.ConcurrencyToken); err != nil {
		return err
	}
	return s.remove(ctx, row)
}

func (s *ScopeStore) DeleteByName(ctx context.Context, name string) (err error) {
	ctx, span := startSpan(ctx, "ScopeStore.DeleteByName", attribute.String("name", name))
	defer func() { finish(span, err) }()

	if err := required("scope name", name); err != nil {
		return err
	}
	row, ok := s.store.Scopes().Find(reactive.IndexName, name)
	if !ok {
		return nil
	}
	return s.remove(ctx, row)
}

func (s *ScopeStore) remove(ctx context.Context, row reactive.ScopeRow) error {
	err := s.store.Submit(ctx, reactive.DeleteScope, reactive.IDArgs{ID: row.ID})
	s.audit(ctx, "delete", row.Name, err)
	if err != nil {
		return fmt.Errorf("failed to submit scope deletion: %w", err)
	}
	return nil
}

func (s *ScopeStore) FindByID(ctx context.Context, id string) (sc *domain.Scope, err error) {
	_, span := startSpan(ctx, "ScopeStore.FindByID", attribute.String("id", id))
	defer func() { finish(span, err) }()

	if err := required("id", id); err != nil {
		return nil, err
	}
	row, ok := s.store.Scopes().Find(reactive.IndexExternalID, id)
	if !ok {
		return nil, fmt.Errorf("scope %q: %w", id, domain.ErrNotFound)
	}
	return s.fromRow(row), nil
}

func (s *ScopeStore) FindByName(ctx context.Context, name string) (sc *domain.Scope, err error) {
	_, span := startSpan(ctx, "ScopeStore.FindByName", attribute.String("name", name))
	defer func() { finish(span, err) }()

	if err := required("scope name", name); err != nil {
		return nil, err
	}
	row, ok := s.store.Scopes().Find(reactive.IndexName, name)
	if !ok {
		return nil, fmt.Errorf("scope named %q: %w", name, domain.ErrNotFound)
	}
	return s.fromRow(row), nil
}

// FindByNames streams the scopes whose name is in names, in snapshot order.
func (s *ScopeStore) FindByNames(ctx context.Context, names []string) iter.Seq2[*domain.Scope, error] {
	q := s.all().Where("names", func(sc *domain.Scope) bool { return slices.Contains(names, sc.Name) })
	return query.Stream(ctx, q.Seq())
}

func (s *ScopeStore) FindByResource(ctx context.Context, resource string) iter.Seq2[*domain.Scope, error] {
	if err := required("resource", resource); err != nil {
		return query.Fail[*domain.Scope](err)
	}
	q := s.all().Where("resource", func(sc *domain.Scope) bool { return slices.Contains(sc.Resources, resource) })
	return query.Stream(ctx, q.Seq())
}

func (s *ScopeStore) GetWith(_ context.Context, q query.Projection[*domain.Scope]) (any, error) {
	return getWith(s.all(), q)
}

func (s *ScopeStore) Instantiate() *domain.Scope {
	return &domain.Scope{}
}

func (s *ScopeStore) List(ctx context.Context, count, offset int) iter.Seq2[*domain.Scope, error] {
	return page(ctx, s.all(), count, offset)
}

func (s *ScopeStore) ListWith(ctx context.Context, q query.Projection[*domain.Scope]) iter.Seq2[any, error] {
	return listWith(ctx, s.all(), q)
}

func (s *ScopeStore) Update(ctx context.Context, sc *domain.Scope) (err error) {
	ctx, span := startSpan(ctx, "ScopeStore.Update")
	defer func() { finish(span, err) }()

	if sc == nil {
		return fmt.Errorf("%w: scope is required", domain.ErrValidation)
	}
	if err := required("scope name", sc.Name); err != nil {
		return err
	}
	row, ok := s.resolve(sc)
	if !ok {
		return staleErr("scope", sc.ID)
	}
	if err := checkToken("scope", row.ExternalID, row.ConcurrencyToken, sc.ConcurrencyToken); err != nil {
		return err
	}
	if sc.Name != row.Name {
		if other, taken := s.store.Scopes().Find(reactive.IndexName, sc.Name); taken && other.ID != row.ID {
			return fmt.Errorf("%w: scope %q", domain.ErrDuplicate, sc.Name)
		}
	}

	next := s.toRow(sc)
	next.ID = row.ID
	next.ExternalID = row.ExternalID
	next.ConcurrencyToken = s.ids.NewConcurrencyToken()
	if err := s.store.Submit(ctx, reactive.UpdateScope, next); err != nil {
		return fmt.Errorf("failed to submit scope update: %w", err)
	}
	sc.ID = next.ExternalID
	sc.InternalID = next.ID
	sc.ConcurrencyToken = next.ConcurrencyToken
	return nil
}

func (s *ScopeStore) WaitVisible(ctx context.Context, id string) error {
	return s.ids.WaitVisible(ctx, reactive.TableScopes, id)
}
