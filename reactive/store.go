// Package reactive defines the contract of the eventually consistent backing
// store the OIDC stores run on, and ships a reference replica of it.
//
// A store exposes table snapshots with point indexes and accepts one-way
// mutation intents. An intent takes effect only after it has gone through the
// intent log and been applied by a replica; Submit never waits for that.
package reactive

import (
	"context"
	"errors"
	"iter"
)

// ErrClosed is returned when an intent is submitted to a closed store or log.
var ErrClosed = errors.New("reactive: store closed")

// TableName identifies a table of the store.
type TableName string

const (
	TableApplications   TableName = "applications"
	TableAuthorizations TableName = "authorizations"
	TableScopes         TableName = "scopes"
	TableTokens         TableName = "tokens"
)

// Tables returns every table name in a fixed order.
func Tables() []TableName {
	return []TableName{TableApplications, TableAuthorizations, TableScopes, TableTokens}
}

// Index names a unique point index of a table.
type Index string

const (
	// IndexExternalID exists on every table.
	IndexExternalID Index = "external_id"
	// IndexClientID covers active applications only.
	IndexClientID Index = "client_id"
	// IndexName exists on scopes.
	IndexName Index = "name"
	// IndexReferenceID exists on tokens that carry a reference id.
	IndexReferenceID Index = "reference_id"
)

// Table is a read only view of the last synchronized state of a table.
type Table[R any] interface {
	// Iter yields a copy of the rows in internal id order. Every range over the
	// returned sequence starts from the then current snapshot.
	Iter() iter.Seq[R]

	// Find looks key up in a point index.
	Find(index Index, key string) (R, bool)

	// Len returns the number of rows in the snapshot.
	Len() int
}

// Store is the outbound contract the OIDC stores depend on.
type Store interface {
	Applications() Table[ApplicationRow]
	Authorizations() Table[AuthorizationRow]
	Scopes() Table[ScopeRow]
	Tokens() Table[TokenRow]

	// Submit hands a mutation intent to the store and returns without waiting
	// for it to be applied. It fails only when the intent cannot be handed off.
	Submit(ctx context.Context, reducer Reducer, args any) error

	// Changed returns a channel that is closed after the next intent has been
	// applied to the snapshot.
	Changed() <-chan struct{}
}

// Exists reports whether a row with externalID is visible in table.
func Exists(s Store, table TableName, externalID string) bool {
	var ok bool
	switch table {
	case TableApplications:
		_, ok = s.Applications().Find(IndexExternalID, externalID)
	case TableAuthorizations:
		_, ok = s.Authorizations().Find(IndexExternalID, externalID)
	case TableScopes:
		_, ok = s.Scopes().Find(IndexExternalID, externalID)
	case TableTokens:
		_, ok = s.Tokens().Find(IndexExternalID, externalID)
	}
	return ok
}
