package stores

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go.pilab.hu/oidcstore/codec"
	"go.pilab.hu/oidcstore/identity"
	"go.pilab.hu/oidcstore/reactive"
)

type fixture struct {
	log     *reactive.MemoryLog
	replica *reactive.Replica
	ids     *identity.Mapper

	applications   *ApplicationStore
	authorizations *AuthorizationStore
	scopes         *ScopeStore
	tokens         *TokenStore
}

func newFixture(t *testing.T, delay time.Duration) *fixture {
	t.Helper()

	l := reactive.NewMemoryLog()
	r, err := reactive.NewReplica(l, reactive.WithApplyDelay(delay))
	require.NoError(t, err)
	ids := identity.NewMapper(r, nil, time.Minute)
	c := codec.New(nil)

	t.Cleanup(func() {
		ids.Close()
		_ = r.Close()
		_ = l.Close()
	})

	return &fixture{
		log:            l,
		replica:        r,
		ids:            ids,
		applications:   NewApplicationStore(r, ids, c, nil),
		authorizations: NewAuthorizationStore(r, ids, c, nil),
		scopes:         NewScopeStore(r, ids, c, nil),
		tokens:         NewTokenStore(r, ids, c, nil),
	}
}

// sync waits until every intent submitted so far has been applied.
func (f *fixture) sync(t *testing.T) {
	t.Helper()
	want := fmt.Sprintf(":%d", f.log.Len())
	if f.log.Len() == 0 {
		return
	}
	require.Eventually(t, func() bool {
		return strings.HasSuffix(f.replica.Position(), want)
	}, 3*time.Second, 5*time.Millisecond, "replica did not catch up")
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
