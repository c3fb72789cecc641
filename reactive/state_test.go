package reactive

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intent(t *testing.T, id string, reducer Reducer, args any) Intent {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	return Intent{ID: id, Reducer: reducer, Args: raw}
}

func mustApply(t *testing.T, s *state, in Intent) []Change {
	t.Helper()
	changes, err := s.apply(in)
	require.NoError(t, err)
	return changes
}

func requireRejected(t *testing.T, s *state, in Intent, reason string) {
	t.Helper()
	_, err := s.apply(in)
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, reason, rejected.Reason)
}

func TestState_RegisterApplication(t *testing.T) {
	s := newState()

	mustApply(t, s, intent(t, "i1", RegisterApplication, ApplicationRow{ExternalID: "a", ClientID: "web", Active: true}))
	mustApply(t, s, intent(t, "i2", RegisterApplication, ApplicationRow{ExternalID: "b", ClientID: "cli", Active: true}))

	web, ok := s.applications.Find(IndexClientID, "web")
	require.True(t, ok)
	assert.Equal(t, uint64(1), web.ID)
	assert.Equal(t, "a", web.ExternalID)

	cli, ok := s.applications.Find(IndexExternalID, "b")
	require.True(t, ok)
	assert.Equal(t, uint64(2), cli.ID)

	requireRejected(t, s, intent(t, "i3", RegisterApplication, ApplicationRow{ExternalID: "c", ClientID: "web", Active: true}), ReasonDuplicate)
	requireRejected(t, s, intent(t, "i4", RegisterApplication, ApplicationRow{ExternalID: "a", ClientID: "other", Active: true}), ReasonDuplicate)
	requireRejected(t, s, intent(t, "i5", RegisterApplication, ApplicationRow{ExternalID: "d"}), ReasonMissingKey)
	assert.Equal(t, 2, s.applications.Len())
}

func TestState_RevokeApplication(t *testing.T) {
	s := newState()
	mustApply(t, s, intent(t, "i1", RegisterApplication, ApplicationRow{ExternalID: "a", ClientID: "web", Active: true, ConcurrencyToken: "t1"}))

	changes := mustApply(t, s, intent(t, "i2", RevokeApplication, IDArgs{ID: 1}))
	require.Len(t, changes, 1)

	_, ok := s.applications.Find(IndexClientID, "web")
	assert.False(t, ok, "revoked applications leave the client id index")

	row, ok := s.applications.Find(IndexExternalID, "a")
	require.True(t, ok)
	assert.False(t, row.Active)
	assert.Equal(t, "i2:1", row.ConcurrencyToken)

	assert.Empty(t, mustApply(t, s, intent(t, "i3", RevokeApplication, IDArgs{ID: 1})))

	// The client id is free again.
	mustApply(t, s, intent(t, "i4", RegisterApplication, ApplicationRow{ExternalID: "b", ClientID: "web", Active: true}))
	row, ok = s.applications.Find(IndexClientID, "web")
	require.True(t, ok)
	assert.Equal(t, "b", row.ExternalID)
}

func TestState_UpdateScope(t *testing.T) {
	s := newState()
	mustApply(t, s, intent(t, "i1", CreateScope, ScopeRow{ExternalID: "s1", Name: "email"}))
	mustApply(t, s, intent(t, "i2", CreateScope, ScopeRow{ExternalID: "s2", Name: "profile"}))

	requireRejected(t, s, intent(t, "i3", CreateScope, ScopeRow{ExternalID: "s3", Name: "email"}), ReasonDuplicate)
	requireRejected(t, s, intent(t, "i4", UpdateScope, ScopeRow{ID: 2, Name: "email"}), ReasonDuplicate)
	requireRejected(t, s, intent(t, "i5", UpdateScope, ScopeRow{ID: 99, Name: "missing"}), ReasonNotFound)

	mustApply(t, s, intent(t, "i6", UpdateScope, ScopeRow{ID: 2, ExternalID: "ignored", Name: "address", Description: "Postal address"}))

	_, ok := s.scopes.Find(IndexName, "profile")
	assert.False(t, ok)
	row, ok := s.scopes.Find(IndexName, "address")
	require.True(t, ok)
	assert.Equal(t, "s2", row.ExternalID, "updates keep the external id")
	assert.Equal(t, "Postal address", row.Description)

	changes := mustApply(t, s, intent(t, "i7", DeleteScope, IDArgs{ID: 1}))
	assert.Equal(t, []Change{{Table: TableScopes, ID: 1}}, changes)
	requireRejected(t, s, intent(t, "i8", DeleteScope, IDArgs{ID: 1}), ReasonNotFound)
}

func TestState_PruneTokens(t *testing.T) {
	s := newState()
	const threshold = 1_000

	rows := []TokenRow{
		{ExternalID: "expired", Status: StatusValid, CreationDate: 100, ExpirationDate: 900},
		{ExternalID: "fresh", Status: StatusValid, CreationDate: 100, ExpirationDate: 2_000},
		{ExternalID: "old-revoked", Status: StatusRevoked, CreationDate: 100, ExpirationDate: 2_000},
		{ExternalID: "new-redeemed", Status: "redeemed", CreationDate: 1_500, ExpirationDate: 2_000},
		{ExternalID: "no-expiry", Status: StatusValid, CreationDate: 100},
	}
	for i, r := range rows {
		mustApply(t, s, intent(t, string(rune('a'+i)), CreateToken, r))
	}

	mustApply(t, s, intent(t, "prune", PruneTokens, PruneArgs{Threshold: threshold}))

	var left []string
	for r := range s.tokens.Iter() {
		left = append(left, r.ExternalID)
		if r.ExpirationDate != 0 {
			assert.GreaterOrEqual(t, r.ExpirationDate, int64(threshold))
		}
	}
	assert.Equal(t, []string{"fresh", "new-redeemed", "no-expiry"}, left)
}

func TestState_PruneAuthorizations(t *testing.T) {
	s := newState()
	const threshold = 1_000

	auths := []AuthorizationRow{
		{ExternalID: "permanent", Type: "permanent", Status: StatusValid, CreationDate: 100},
		{ExternalID: "revoked", Type: "permanent", Status: StatusRevoked, CreationDate: 100},
		{ExternalID: "adhoc-used", Type: AuthorizationTypeAdHoc, Status: StatusValid, CreationDate: 100},
		{ExternalID: "adhoc-idle", Type: AuthorizationTypeAdHoc, Status: StatusValid, CreationDate: 100},
		{ExternalID: "adhoc-new", Type: AuthorizationTypeAdHoc, Status: StatusValid, CreationDate: 1_500},
	}
	for i, r := range auths {
		mustApply(t, s, intent(t, "auth"+string(rune('a'+i)), CreateAuthorization, r))
	}
	mustApply(t, s, intent(t, "t1", CreateToken, TokenRow{ExternalID: "t-used", AuthorizationID: "adhoc-used", Status: StatusValid, CreationDate: 1_500}))
	mustApply(t, s, intent(t, "t2", CreateToken, TokenRow{ExternalID: "t-revoked", AuthorizationID: "revoked", Status: StatusValid, CreationDate: 1_500}))

	mustApply(t, s, intent(t, "prune", PruneAuthorizations, PruneArgs{Threshold: threshold}))

	var left []string
	for r := range s.authorizations.Iter() {
		left = append(left, r.ExternalID)
	}
	assert.Equal(t, []string{"permanent", "adhoc-used", "adhoc-new"}, left)

	_, ok := s.tokens.Find(IndexExternalID, "t-revoked")
	assert.False(t, ok, "tokens of pruned authorizations are removed")
	_, ok = s.tokens.Find(IndexExternalID, "t-used")
	assert.True(t, ok)
}

func TestState_RevokeAuthorizations(t *testing.T) {
	s := newState()
	mustApply(t, s, intent(t, "a1", CreateAuthorization, AuthorizationRow{ExternalID: "rw", Subject: "alice", ClientID: "web", Status: StatusValid, Scopes: `["read","write"]`}))
	mustApply(t, s, intent(t, "a2", CreateAuthorization, AuthorizationRow{ExternalID: "w", Subject: "alice", ClientID: "web", Status: StatusValid, Scopes: `["write"]`}))
	mustApply(t, s, intent(t, "a3", CreateAuthorization, AuthorizationRow{ExternalID: "bob", Subject: "bob", ClientID: "web", Status: StatusValid, Scopes: `["read"]`}))

	changes := mustApply(t, s, intent(t, "rev", RevokeAuthorizations, RevokeFilter{Subject: "alice", Scopes: []string{"read"}}))
	require.Len(t, changes, 1)

	statuses := map[string]string{}
	for r := range s.authorizations.Iter() {
		statuses[r.ExternalID] = r.Status
	}
	assert.Equal(t, map[string]string{"rw": StatusRevoked, "w": StatusValid, "bob": StatusValid}, statuses)
}

func TestState_RevokeTokens(t *testing.T) {
	s := newState()
	mustApply(t, s, intent(t, "t1", CreateToken, TokenRow{ExternalID: "a", AuthorizationID: "auth", Status: StatusValid}))
	mustApply(t, s, intent(t, "t2", CreateToken, TokenRow{ExternalID: "b", AuthorizationID: "auth", Status: "redeemed"}))
	mustApply(t, s, intent(t, "t3", CreateToken, TokenRow{ExternalID: "c", AuthorizationID: "other", Status: StatusValid}))

	changes := mustApply(t, s, intent(t, "rev", RevokeTokens, RevokeFilter{AuthorizationID: "auth"}))
	require.Len(t, changes, 1)

	a, _ := s.tokens.Find(IndexExternalID, "a")
	assert.Equal(t, StatusRevoked, a.Status)
	b, _ := s.tokens.Find(IndexExternalID, "b")
	assert.Equal(t, "redeemed", b.Status, "only valid tokens are revoked")
}

func TestState_TokenReferenceID(t *testing.T) {
	s := newState()
	mustApply(t, s, intent(t, "t1", CreateToken, TokenRow{ExternalID: "a", ReferenceID: "ref"}))
	requireRejected(t, s, intent(t, "t2", CreateToken, TokenRow{ExternalID: "b", ReferenceID: "ref"}), ReasonDuplicate)

	row, ok := s.tokens.Find(IndexReferenceID, "ref")
	require.True(t, ok)
	assert.Equal(t, "a", row.ExternalID)
}

func TestState_Rejections(t *testing.T) {
	s := newState()
	requireRejected(t, s, Intent{ID: "x", Reducer: "drop_everything", Args: json.RawMessage(`{}`)}, ReasonUnknown)
	requireRejected(t, s, Intent{ID: "y", Reducer: CreateScope, Args: json.RawMessage(`{`)}, ReasonMalformed)
	requireRejected(t, s, intent(t, "z", CreateScope, ScopeRow{Name: "no-external-id"}), ReasonMissingKey)
	requireRejected(t, s, UndecodableEntry("1-0", errors.New("missing field reducer")).Intent, ReasonDecode)
}

func TestState_Restore(t *testing.T) {
	s := newState()
	require.NoError(t, s.restore(TableScopes, json.RawMessage(`{"id":7,"external_id":"s7","name":"email"}`)))
	require.NoError(t, s.restore(TableScopes, json.RawMessage(`{"id":3,"external_id":"s3","name":"openid"}`)))
	require.Error(t, s.restore("users", json.RawMessage(`{}`)))
	require.Error(t, s.restore(TableScopes, json.RawMessage(`nope`)))

	var ids []uint64
	for r := range s.scopes.Iter() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []uint64{3, 7}, ids)
	assert.Equal(t, uint64(8), s.sequences()[TableScopes])

	mustApply(t, s, intent(t, "i1", CreateScope, ScopeRow{ExternalID: "s8", Name: "profile"}))
	row, ok := s.scopes.Find(IndexName, "profile")
	require.True(t, ok)
	assert.Equal(t, uint64(8), row.ID)
}

func TestTable_IterIsASnapshot(t *testing.T) {
	s := newState()
	mustApply(t, s, intent(t, "i1", CreateScope, ScopeRow{ExternalID: "s1", Name: "a"}))

	seq := s.scopes.Iter()
	var names []string
	for r := range seq {
		names = append(names, r.Name)
		s.scopes.insert(ScopeRow{ExternalID: "late", Name: "late"})
	}
	assert.Equal(t, []string{"a"}, names, "rows inserted while ranging are not seen")

	names = names[:0]
	for r := range seq {
		names = append(names, r.Name)
	}
	assert.True(t, slices.Contains(names, "late"), "ranging again sees the current snapshot")
}
