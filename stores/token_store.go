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

// TokenStore implements domain.TokenStore. The token table is the largest one
// and sits on the token endpoint path, so custom projections over it are
// refused.
type TokenStore struct {
	base
}

var _ domain.TokenStore = (*TokenStore)(nil)

func NewTokenStore(store reactive.Store, ids *identity.Mapper, c *codec.Codec, logger log.Logger) *TokenStore {
	return &TokenStore{base: newBase(store, ids, c, logger, "token_store")}
}

func (s *TokenStore) toRow(t *domain.Token) reactive.TokenRow {
	return reactive.TokenRow{
		ID:               t.InternalID,
		ExternalID:       t.ID,
		ClientID:         t.ClientID,
		AuthorizationID:  t.AuthorizationID,
		Subject:          t.Subject,
		Type:             t.Type,
		Status:           string(t.Status),
		Payload:          t.Payload,
		ReferenceID:      t.ReferenceID,
		Properties:       s.codec.EncodeProperties(t.Properties),
		CreationDate:     toMillis(t.CreationDate),
		ExpirationDate:   toMillis(t.ExpirationDate),
		RedemptionDate:   toMillis(t.RedemptionDate),
		ConcurrencyToken: t.ConcurrencyToken,
	}
}

func (s *TokenStore) fromRow(r reactive.TokenRow) *domain.Token {
	return &domain.Token{
		ID:               r.ExternalID,
		InternalID:       r.ID,
		ClientID:         r.ClientID,
		AuthorizationID:  r.AuthorizationID,
		Subject:          r.Subject,
		Type:             r.Type,
		Status:           domain.TokenStatus(r.Status),
		Payload:          r.Payload,
		ReferenceID:      r.ReferenceID,
		Properties:       s.codec.DecodeProperties(r.Properties),
		CreationDate:     fromMillis(r.CreationDate),
		ExpirationDate:   fromMillis(r.ExpirationDate),
		RedemptionDate:   fromMillis(r.RedemptionDate),
		ConcurrencyToken: r.ConcurrencyToken,
	}
}

func (s *TokenStore) rows() *query.Query[reactive.TokenRow] {
	return materialize(reactive.TableTokens, s.store.Tokens())
}

// where streams the tokens whose row matches pred. Rows are filtered before
// they are decoded.
func (s *TokenStore) where(ctx context.Context, tag string, pred func(reactive.TokenRow) bool) iter.Seq2[*domain.Token, error] {
	q := s.rows().Where(tag, pred)
	return query.Stream(ctx, query.Map(q.Seq(), s.fromRow))
}

func (s *TokenStore) resolve(t *domain.Token) (reactive.TokenRow, bool) {
	if t.ID == "" {
		return reactive.TokenRow{}, false
	}
	return s.store.Tokens().Find(reactive.IndexExternalID, t.ID)
}

// transition checks a status change against the forward transitions tokens
// support.
func transition(id string, from, to domain.TokenStatus) error {
	if from == to {
		return nil
	}
	if from == domain.TokenStatusValid && (to == domain.TokenStatusRevoked || to == domain.TokenStatusRedeemed) {
		return nil
	}
	return fmt.Errorf("%w: token %q from %q to %q", domain.ErrInvalidTransition, id, from, to)
}

func (s *TokenStore) Count(_ context.Context) (int64, error) {
	return int64(s.store.Tokens().Len()), nil
}

func (s *TokenStore) CountWith(_ context.Context, _ query.Projection[*domain.Token]) (int64, error) {
	return 0, fmt.Errorf("token CountWith: %w", domain.ErrUnsupported)
}

// Create records an issued token. Status defaults to valid.
func (s *TokenStore) Create(ctx context.Context, t *domain.Token) (err error) {
	ctx, span := startSpan(ctx, "TokenStore.Create")
	defer func() { finish(span, err) }()

	if t == nil {
		return fmt.Errorf("%w: token is required", domain.ErrValidation)
	}
	if err := required("token type", t.Type); err != nil {
		return err
	}
	span.SetAttributes(attribute.String("type", t.Type), attribute.String("client_id", t.ClientID))

	if t.ReferenceID != "" {
		if _, exists := s.store.Tokens().Find(reactive.IndexReferenceID, t.ReferenceID); exists {
			return fmt.Errorf("%w: token reference id", domain.ErrDuplicate)
		}
	}
	if t.ID == "" {
		t.ID = s.ids.NewExternalID()
	} else if reactive.Exists(s.store, reactive.TableTokens, t.ID) {
		return fmt.Errorf("%w: token id %q", domain.ErrDuplicate, t.ID)
	}
	if t.Status == "" {
		t.Status = domain.TokenStatusValid
	}
	if t.CreationDate.IsZero() {
		t.CreationDate = s.now().UTC()
	}
	t.InternalID = 0
	t.ConcurrencyToken = s.ids.NewConcurrencyToken()

	if err := s.store.Submit(ctx, reactive.CreateToken, s.toRow(t)); err != nil {
		return fmt.Errorf("failed to submit token creation: %w", err)
	}
	s.ids.Track(reactive.TableTokens, t.ID)
	return nil
}

func (s *TokenStore) Delete(ctx context.Context, t *domain.Token) (err error) {
	ctx, span := startSpan(ctx, "TokenStore.Delete")
	defer func() { finish(span, err) }()

	if t == nil {
		return fmt.Errorf("%w: token is required", domain.ErrValidation)
	}
	row, ok := s.resolve(t)
	if !ok {
		return nil
	}
	if err := checkToken("token", row.ExternalID, row.ConcurrencyToken, t.ConcurrencyToken); err != nil {
		return err
	}
	err = s.store.Submit(ctx, reactive.DeleteToken, reactive.IDArgs{ID: row.ID})
	s.audit(ctx, "delete", row.ExternalID, err)
	if err != nil {
		return fmt.Errorf("failed to submit token deletion: %w", err)
	}
	return nil
}

func (s *TokenStore) Find(ctx context.Context, filter domain.TokenFilter) iter.Seq2[*domain.Token, error] {
	if err := validateFilter(filter.Subject, filter.ClientID); err != nil {
		return query.Fail[*domain.Token](err)
	}
	return s.where(ctx, "filter", func(r reactive.TokenRow) bool {
		return r.Subject == filter.Subject &&
			r.ClientID == filter.ClientID &&
			(filter.Status == "" || r.Status == string(filter.Status)) &&
			(filter.Type == "" || r.Type == filter.Type)
	})
}

func (s *TokenStore) FindByAuthorizationID(ctx context.Context, authorizationID string) iter.Seq2[*domain.Token, error] {
	if err := required("authorization id", authorizationID); err != nil {
		return query.Fail[*domain.Token](err)
	}
	return s.where(ctx, "authorization", func(r reactive.TokenRow) bool { return r.AuthorizationID == authorizationID })
}

func (s *TokenStore) FindByClientID(ctx context.Context, clientID string) iter.Seq2[*domain.Token, error] {
	if err := required("client id", clientID); err != nil {
		return query.Fail[*domain.Token](err)
	}
	return s.where(ctx, "client", func(r reactive.TokenRow) bool { return r.ClientID == clientID })
}

func (s *TokenStore) FindByID(ctx context.Context, id string) (t *domain.Token, err error) {
	_, span := startSpan(ctx, "TokenStore.FindByID", attribute.String("id", id))
	defer func() { finish(span, err) }()

	if err := required("id", id); err != nil {
		return nil, err
	}
	row, ok := s.store.Tokens().Find(reactive.IndexExternalID, id)
	if !ok {
		return nil, fmt.Errorf("token %q: %w", id, domain.ErrNotFound)
	}
	return s.fromRow(row), nil
}

func (s *TokenStore) FindByReferenceID(ctx context.Context, referenceID string) (t *domain.Token, err error) {
	_, span := startSpan(ctx, "TokenStore.FindByReferenceID")
	defer func() { finish(span, err) }()

	if err := required("reference id", referenceID); err != nil {
		return nil, err
	}
	row, ok := s.store.Tokens().Find(reactive.IndexReferenceID, referenceID)
	if !ok {
		return nil, fmt.Errorf("token by reference id: %w", domain.ErrNotFound)
	}
	return s.fromRow(row), nil
}

func (s *TokenStore) FindBySubject(ctx context.Context, subject string) iter.Seq2[*domain.Token, error] {
	if err := required("subject", subject); err != nil {
		return query.Fail[*domain.Token](err)
	}
	return s.where(ctx, "subject", func(r reactive.TokenRow) bool { return r.Subject == subject })
}

func (s *TokenStore) GetWith(_ context.Context, _ query.Projection[*domain.Token]) (any, error) {
	return nil, fmt.Errorf("token GetWith: %w", domain.ErrUnsupported)
}

func (s *TokenStore) Instantiate() *domain.Token {
	return &domain.Token{Status: domain.TokenStatusValid}
}

func (s *TokenStore) List(ctx context.Context, count, offset int) iter.Seq2[*domain.Token, error] {
	if offset < 0 {
		return query.Fail[*domain.Token](fmt.Errorf("%w: offset must not be negative", domain.ErrValidation))
	}
	q := s.rows().Skip(offset)
	if count > 0 {
		q = q.Take(count)
	}
	return query.Stream(ctx, query.Map(q.Seq(), s.fromRow))
}

func (s *TokenStore) ListWith(_ context.Context, _ query.Projection[*domain.Token]) iter.Seq2[any, error] {
	return query.Fail[any](fmt.Errorf("token ListWith: %w", domain.ErrUnsupported))
}

func (s *TokenStore) Prune(ctx context.Context, threshold time.Time) (err error) {
	ctx, span := startSpan(ctx, "TokenStore.Prune")
	defer func() { finish(span, err) }()

	if threshold.IsZero() {
		return fmt.Errorf("%w: prune threshold is required", domain.ErrValidation)
	}
	err = s.store.Submit(ctx, reactive.PruneTokens, reactive.PruneArgs{Threshold: threshold.UnixMilli()})
	s.audit(ctx, "prune", threshold.UTC().Format(time.RFC3339), err)
	if err != nil {
		return fmt.Errorf("failed to submit token pruning: %w", err)
	}
	return nil
}

// RevokeByAuthorizationID revokes every valid token of the authorization and
// returns how many the current snapshot holds.
func (s *TokenStore) RevokeByAuthorizationID(ctx context.Context, authorizationID string) (n int64, err error) {
	ctx, span := startSpan(ctx, "TokenStore.RevokeByAuthorizationID", attribute.String("authorization_id", authorizationID))
	defer func() { finish(span, err) }()

	if err := required("authorization id", authorizationID); err != nil {
		return 0, err
	}
	n = int64(s.rows().
		Where("authorization", func(r reactive.TokenRow) bool { return r.AuthorizationID == authorizationID }).
		Where("valid", func(r reactive.TokenRow) bool { return r.Status == reactive.StatusValid }).
		Count())

	err = s.store.Submit(ctx, reactive.RevokeTokens, reactive.RevokeFilter{AuthorizationID: authorizationID})
	s.audit(ctx, "revoke", authorizationID, err)
	if err != nil {
		return 0, fmt.Errorf("failed to submit token revocation: %w", err)
	}
	return n, nil
}

// TryRedeem marks a valid token as redeemed at the given time. Redeeming a
// token twice fails with ErrInvalidTransition.
func (s *TokenStore) TryRedeem(ctx context.Context, t *domain.Token, at time.Time) (err error) {
	ctx, span := startSpan(ctx, "TokenStore.TryRedeem")
	defer func() { finish(span, err) }()

	row, err := s.mutable(t)
	if err != nil {
		return err
	}
	if row.Status != reactive.StatusValid {
		return fmt.Errorf("%w: token %q is %s", domain.ErrInvalidTransition, row.ExternalID, row.Status)
	}
	if at.IsZero() {
		at = s.now()
	}

	row.Status = string(domain.TokenStatusRedeemed)
	row.RedemptionDate = at.UnixMilli()
	row.ConcurrencyToken = s.ids.NewConcurrencyToken()
	err = s.store.Submit(ctx, reactive.UpdateToken, row)
	s.audit(ctx, "redeem", row.ExternalID, err)
	if err != nil {
		return fmt.Errorf("failed to submit token redemption: %w", err)
	}
	t.Status = domain.TokenStatusRedeemed
	t.RedemptionDate = fromMillis(row.RedemptionDate)
	t.ConcurrencyToken = row.ConcurrencyToken
	return nil
}

// TryRevoke marks a valid token as revoked. Revoking a revoked token succeeds
// without submitting anything.
func (s *TokenStore) TryRevoke(ctx context.Context, t *domain.Token) (err error) {
	ctx, span := startSpan(ctx, "TokenStore.TryRevoke")
	defer func() { finish(span, err) }()

	row, err := s.mutable(t)
	if err != nil {
		return err
	}
	if row.Status == string(domain.TokenStatusRevoked) {
		return nil
	}
	if err := transition(row.ExternalID, domain.TokenStatus(row.Status), domain.TokenStatusRevoked); err != nil {
		return err
	}

	row.Status = string(domain.TokenStatusRevoked)
	row.ConcurrencyToken = s.ids.NewConcurrencyToken()
	err = s.store.Submit(ctx, reactive.UpdateToken, row)
	s.audit(ctx, "revoke", row.ExternalID, err)
	if err != nil {
		return fmt.Errorf("failed to submit token revocation: %w", err)
	}
	t.Status = domain.TokenStatusRevoked
	t.ConcurrencyToken = row.ConcurrencyToken
	return nil
}

// mutable resolves t and checks that the caller holds its current version.
func (s *TokenStore) mutable(t *domain.Token) (reactive.TokenRow, error) {
	if t == nil {
		return reactive.TokenRow{}, fmt.Errorf("%w: token is required", domain.ErrValidation)
	}
	row, ok := s.resolve(t)
	if !ok {
		return reactive.TokenRow{}, staleErr("token", t.ID)
	}
	if err := checkToken("token", row.ExternalID, row.ConcurrencyToken, t.ConcurrencyToken); err != nil {
		return reactive.TokenRow{}, err
	}
	return row, nil
}

// Update replaces the stored token. Status may only move forward from valid.
func (s *TokenStore) Update(ctx context.Context, t *domain.Token) (err error) {
	ctx, span := startSpan(ctx, "TokenStore.Update")
	defer func() { finish(span, err) }()

	if t != nil {
		if err := required("token type", t.Type); err != nil {
			return err
		}
	}
	row, err := s.mutable(t)
	if err != nil {
		return err
	}
	if err := transition(row.ExternalID, domain.TokenStatus(row.Status), t.Status); err != nil {
		return err
	}
	if t.ReferenceID != "" && t.ReferenceID != row.ReferenceID {
		if other, taken := s.store.Tokens().Find(reactive.IndexReferenceID, t.ReferenceID); taken && other.ID != row.ID {
			return fmt.Errorf("%w: token reference id", domain.ErrDuplicate)
		}
	}

	next := s.toRow(t)
	next.ID = row.ID
	next.ConcurrencyToken = s.ids.NewConcurrencyToken()
	if err := s.store.Submit(ctx, reactive.UpdateToken, next); err != nil {
		return fmt.Errorf("failed to submit token update: %w", err)
	}
	t.InternalID = next.ID
	t.ConcurrencyToken = next.ConcurrencyToken
	return nil
}

func (s *TokenStore) WaitVisible(ctx context.Context, id string) error {
	return s.ids.WaitVisible(ctx, reactive.TableTokens, id)
}
