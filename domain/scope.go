//go:generate go run go.uber.org/mock/mockgen@latest -source=$GOFILE -destination=mocks/mock_$GOFILE -package=mock_domain ScopeStore

package domain

import (
	"context"
	"encoding/json"
	"iter"

	"go.pilab.hu/oidcstore/query"
	"golang.org/x/text/language"
)

// Scope represents a named permission a client can request.
//
//nolint:tagliatelle
type Scope struct {
	ID               string                     `json:"id"`
	InternalID       uint64                     `json:"internal_id,omitempty"`
	Name             string                     `json:"name"`
	Description      string                     `json:"description,omitempty"`
	Descriptions     map[language.Tag]string    `json:"descriptions,omitempty"`
	DisplayName      string                     `json:"display_name,omitempty"`
	DisplayNames     map[language.Tag]string    `json:"display_names,omitempty"`
	Resources        []string                   `json:"resources,omitempty"`
	Properties       map[string]json.RawMessage `json:"properties,omitempty"`
	ConcurrencyToken string                     `json:"concurrency_token,omitempty"`
}

// ScopeStore defines the storage contract for scopes.
//
//nolint:interfacebloat
type ScopeStore interface {
	Count(ctx context.Context) (int64, error)
	CountWith(ctx context.Context, q query.Projection[*Scope]) (int64, error)

	// Create submits a creation intent after checking the name against the
	// current snapshot.
	Create(ctx context.Context, s *Scope) error

	Delete(ctx context.Context, s *Scope) error

	// DeleteByName removes the scope called name. Absent scopes are a no-op.
	DeleteByName(ctx context.Context, name string) error

	FindByID(ctx context.Context, id string) (*Scope, error)
	FindByName(ctx context.Context, name string) (*Scope, error)
	FindByNames(ctx context.Context, names []string) iter.Seq2[*Scope, error]
	FindByResource(ctx context.Context, resource string) iter.Seq2[*Scope, error]

	GetWith(ctx context.Context, q query.Projection[*Scope]) (any, error)
	Instantiate() *Scope
	List(ctx context.Context, count, offset int) iter.Seq2[*Scope, error]
	ListWith(ctx context.Context, q query.Projection[*Scope]) iter.Seq2[any, error]

	// Update submits a full replacement. Renames are re-checked for uniqueness.
	Update(ctx context.Context, s *Scope) error
	WaitVisible(ctx context.Context, id string) error
}
