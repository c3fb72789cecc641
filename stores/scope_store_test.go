package stores

import (
	"context"
	"encoding/json"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"go.pilab.hu/oidcstore/domain"
	"go.pilab.hu/oidcstore/query"
	"go.pilab.hu/oidcstore/reactive"
)

func names(t *testing.T, seq iter.Seq2[*domain.Scope, error]) []string {
	t.Helper()
	scopes, err := query.Collect(seq)
	require.NoError(t, err)
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		out = append(out, s.Name)
	}
	return out
}

func createScopes(t *testing.T, f *fixture, scopes ...*domain.Scope) {
	t.Helper()
	ctx := testContext(t)
	for _, s := range scopes {
		require.NoError(t, f.scopes.Create(ctx, s))
	}
	f.sync(t)
}

func TestScopeStore_UniquenessOnceVisible(t *testing.T) {
	f := newFixture(t, 200*time.Millisecond)
	ctx := testContext(t)

	first := &domain.Scope{Name: "email"}
	require.NoError(t, f.scopes.Create(ctx, first))
	assert.NotEmpty(t, first.ID)
	assert.NotEmpty(t, first.ConcurrencyToken)
	assert.Zero(t, first.InternalID)

	_, err := f.scopes.FindByName(ctx, "email")
	assert.ErrorIs(t, err, domain.ErrNotFound, "the create must not be visible before replication")
	assert.True(t, f.ids.IsPending("scopes", first.ID))

	require.NoError(t, f.scopes.WaitVisible(ctx, first.ID))

	found, err := f.scopes.FindByName(ctx, "email")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
	assert.NotZero(t, found.InternalID)

	err = f.scopes.Create(ctx, &domain.Scope{Name: "email"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}

func TestScopeStore_CreateValidation(t *testing.T) {
	f := newFixture(t, 0)
	ctx := testContext(t)

	assert.ErrorIs(t, f.scopes.Create(ctx, nil), domain.ErrValidation)
	assert.ErrorIs(t, f.scopes.Create(ctx, &domain.Scope{}), domain.ErrValidation)
	assert.Zero(t, f.log.Len(), "validation must fail before the store is touched")
}

func TestScopeStore_RoundTrip(t *testing.T) {
	f := newFixture(t, 0)
	ctx := testContext(t)

	in := &domain.Scope{
		Name:         "api",
		Description:  "Access the API",
		Descriptions: map[language.Tag]string{language.MustParse("hu"): "API hozzáférés"},
		DisplayName:  "API",
		DisplayNames: map[language.Tag]string{language.MustParse("de"): "Schnittstelle"},
		Resources:    []string{"resource-server-1", "resource-server-2"},
		Properties:   map[string]json.RawMessage{"audience": json.RawMessage(`"api"`)},
	}
	createScopes(t, f, in)

	out, err := f.scopes.FindByID(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, in.Name, out.Name)
	assert.Equal(t, in.Description, out.Description)
	assert.Equal(t, in.Descriptions, out.Descriptions)
	assert.Equal(t, in.DisplayNames, out.DisplayNames)
	assert.Equal(t, in.Resources, out.Resources)
	assert.JSONEq(t, `"api"`, string(out.Properties["audience"]))
	assert.Equal(t, in.ConcurrencyToken, out.ConcurrencyToken)
}

func TestScopeStore_Pagination(t *testing.T) {
	f := newFixture(t, 0)
	ctx := testContext(t)
	createScopes(t, f, &domain.Scope{Name: "A"}, &domain.Scope{Name: "B"}, &domain.Scope{Name: "C"}, &domain.Scope{Name: "D"})

	assert.Equal(t, []string{"B", "C"}, names(t, f.scopes.List(ctx, 2, 1)))
	assert.Equal(t, []string{"A", "B", "C", "D"}, names(t, f.scopes.List(ctx, 0, 0)))
	assert.Equal(t, []string{"D"}, names(t, f.scopes.List(ctx, 10, 3)))

	_, err := query.Collect(f.scopes.List(ctx, 2, -1))
	assert.ErrorIs(t, err, domain.ErrValidation)

	n, err := f.scopes.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
}

func TestScopeStore_ListCancellation(t *testing.T) {
	f := newFixture(t, 0)
	createScopes(t, f, &domain.Scope{Name: "A"}, &domain.Scope{Name: "B"}, &domain.Scope{Name: "C"})

	ctx, cancel := context.WithCancel(context.Background())
	var seen []string
	var streamErr error
	for s, err := range f.scopes.List(ctx, 0, 0) {
		if err != nil {
			streamErr = err
			break
		}
		seen = append(seen, s.Name)
		cancel()
	}
	assert.Equal(t, []string{"A"}, seen)
	assert.ErrorIs(t, streamErr, context.Canceled)
}

func TestScopeStore_Finders(t *testing.T) {
	f := newFixture(t, 0)
	ctx := testContext(t)
	createScopes(t, f,
		&domain.Scope{Name: "openid"},
		&domain.Scope{Name: "orders.read", Resources: []string{"orders"}},
		&domain.Scope{Name: "orders.write", Resources: []string{"orders", "audit"}},
	)

	assert.Equal(t, []string{"openid", "orders.write"}, names(t, f.scopes.FindByNames(ctx, []string{"orders.write", "openid", "missing"})))
	assert.Equal(t, []string{"orders.read", "orders.write"}, names(t, f.scopes.FindByResource(ctx, "orders")))
	assert.Empty(t, names(t, f.scopes.FindByNames(ctx, nil)))

	_, err := query.Collect(f.scopes.FindByResource(ctx, ""))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestScopeStore_CustomQueries(t *testing.T) {
	f := newFixture(t, 0)
	ctx := testContext(t)
	createScopes(t, f, &domain.Scope{Name: "openid"}, &domain.Scope{Name: "email"}, &domain.Scope{Name: "profile"})

	longNames := func(seq iter.Seq[*domain.Scope]) iter.Seq[any] {
		return func(yield func(any) bool) {
			for s := range seq {
				if len(s.Name) > 5 && !yield(s.Name) {
					return
				}
			}
		}
	}

	n, err := f.scopes.CountWith(ctx, longNames)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	first, err := f.scopes.GetWith(ctx, longNames)
	require.NoError(t, err)
	assert.Equal(t, "openid", first)

	all, err := query.Collect(f.scopes.ListWith(ctx, longNames))
	require.NoError(t, err)
	assert.Equal(t, []any{"openid", "profile"}, all)

	_, err = f.scopes.CountWith(ctx, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestScopeStore_UpdateAndRename(t *testing.T) {
	f := newFixture(t, 0)
	ctx := testContext(t)
	email := &domain.Scope{Name: "email"}
	profile := &domain.Scope{Name: "profile"}
	createScopes(t, f, email, profile)

	stale := *email

	email.Description = "Your e-mail address"
	require.NoError(t, f.scopes.Update(ctx, email))
	f.sync(t)

	got, err := f.scopes.FindByName(ctx, "email")
	require.NoError(t, err)
	assert.Equal(t, "Your e-mail address", got.Description)

	assert.ErrorIs(t, f.scopes.Update(ctx, &stale), domain.ErrConcurrency)

	got.Name = "profile"
	assert.ErrorIs(t, f.scopes.Update(ctx, got), domain.ErrDuplicate)

	got.Name = "mail"
	require.NoError(t, f.scopes.Update(ctx, got))
	f.sync(t)
	_, err = f.scopes.FindByName(ctx, "email")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	renamed, err := f.scopes.FindByName(ctx, "mail")
	require.NoError(t, err)
	assert.Equal(t, email.ID, renamed.ID)

	err = f.scopes.Update(ctx, &domain.Scope{ID: "unknown", Name: "x"})
	assert.ErrorIs(t, err, domain.ErrConcurrency)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestScopeStore_FailedUpdateKeepsDescriptor(t *testing.T) {
	f := newFixture(t, 0)
	ctx := testContext(t)
	email := &domain.Scope{Name: "email"}
	createScopes(t, f, email)
	held := email.ConcurrencyToken

	require.NoError(t, f.replica.Close())

	email.Description = "changed"
	assert.ErrorIs(t, f.scopes.Update(ctx, email), reactive.ErrClosed)
	assert.Equal(t, held, email.ConcurrencyToken)

	stored, err := f.scopes.FindByName(ctx, "email")
	require.NoError(t, err)
	assert.Equal(t, stored.ConcurrencyToken, email.ConcurrencyToken)
}

func TestScopeStore_IdempotentDelete(t *testing.T) {
	f := newFixture(t, 0)
	ctx := testContext(t)
	email := &domain.Scope{Name: "email"}
	createScopes(t, f, email)

	require.NoError(t, f.scopes.DeleteByName(ctx, "missing"))
	require.NoError(t, f.scopes.Delete(ctx, &domain.Scope{ID: "missing"}))
	assert.ErrorIs(t, f.scopes.DeleteByName(ctx, ""), domain.ErrValidation)

	assert.ErrorIs(t, f.scopes.Delete(ctx, &domain.Scope{ID: email.ID, ConcurrencyToken: "old"}), domain.ErrConcurrency)

	require.NoError(t, f.scopes.Delete(ctx, email))
	f.sync(t)
	_, err := f.scopes.FindByID(ctx, email.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, f.scopes.DeleteByName(ctx, "email"))
	require.NoError(t, f.scopes.Delete(ctx, email))
}
