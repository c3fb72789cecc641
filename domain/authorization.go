package domain

import (
	"context"
	"encoding/json"
	"iter"
	"time"

	"go.pilab.hu/oidcstore/query"
)

// AuthorizationStatus is the lifecycle status of an authorization.
type AuthorizationStatus string

const (
	AuthorizationStatusValid   AuthorizationStatus = "valid"
	AuthorizationStatusRevoked AuthorizationStatus = "revoked"
)

// AuthorizationType distinguishes consents that outlive the request from
// one-off grants.
type AuthorizationType string

const (
	AuthorizationTypePermanent AuthorizationType = "permanent"
	AuthorizationTypeAdHoc     AuthorizationType = "ad-hoc"
)

// Authorization represents the consent a subject gave to a client.
//
//nolint:tagliatelle
type Authorization struct {
	ID               string                     `json:"id"`
	InternalID       uint64                     `json:"internal_id,omitempty"`
	ClientID         string                     `json:"client_id"` // Client id of the owning application
	Subject          string                     `json:"subject"`
	Type             AuthorizationType          `json:"type"`
	Status           AuthorizationStatus        `json:"status"`
	Scopes           []string                   `json:"scopes,omitempty"`
	Properties       map[string]json.RawMessage `json:"properties,omitempty"`
	CreationDate     time.Time                  `json:"creation_date"`
	ConcurrencyToken string                     `json:"concurrency_token,omitempty"`
}

// HasScopes reports whether the authorization grants every scope in scopes.
func (a *Authorization) HasScopes(scopes []string) bool {
	granted := make(map[string]struct{}, len(a.Scopes))
	for _, s := range a.Scopes {
		granted[s] = struct{}{}
	}
	for _, s := range scopes {
		if _, ok := granted[s]; !ok {
			return false
		}
	}
	return true
}

// AuthorizationFilter narrows authorization lookups. Subject and ClientID are
// required; empty optional fields match everything. Scopes match as a subset:
// an authorization matches when it grants at least every listed scope.
type AuthorizationFilter struct {
	Subject  string
	ClientID string
	Status   AuthorizationStatus
	Type     AuthorizationType
	Scopes   []string
}

// AuthorizationStore defines the storage contract for authorizations.
//
//nolint:interfacebloat
type AuthorizationStore interface {
	Count(ctx context.Context) (int64, error)
	CountWith(ctx context.Context, q query.Projection[*Authorization]) (int64, error)

	// Create submits a creation intent and returns before it replicates.
	Create(ctx context.Context, a *Authorization) error

	// Delete removes the authorization. Deleting an absent authorization is a no-op.
	Delete(ctx context.Context, a *Authorization) error

	// Find streams the authorizations matching filter, in snapshot order.
	Find(ctx context.Context, filter AuthorizationFilter) iter.Seq2[*Authorization, error]

	// FindFirst returns the first authorization matching filter in snapshot order.
	FindFirst(ctx context.Context, filter AuthorizationFilter) (*Authorization, error)

	FindByClientID(ctx context.Context, clientID string) iter.Seq2[*Authorization, error]
	FindByID(ctx context.Context, id string) (*Authorization, error)
	FindBySubject(ctx context.Context, subject string) iter.Seq2[*Authorization, error]

	GetWith(ctx context.Context, q query.Projection[*Authorization]) (any, error)
	Instantiate() *Authorization
	List(ctx context.Context, count, offset int) iter.Seq2[*Authorization, error]
	ListWith(ctx context.Context, q query.Projection[*Authorization]) iter.Seq2[any, error]

	// Prune asks the store to remove stale authorizations created before
	// threshold. The store reports no count and completion is not observable.
	Prune(ctx context.Context, threshold time.Time) error

	// Revoke asks the store to revoke every valid authorization matching
	// filter. The returned count is estimated from the current snapshot.
	Revoke(ctx context.Context, filter AuthorizationFilter) (int64, error)

	// TryRevoke moves a valid authorization to revoked.
	TryRevoke(ctx context.Context, a *Authorization) error

	Update(ctx context.Context, a *Authorization) error
	WaitVisible(ctx context.Context, id string) error
}
