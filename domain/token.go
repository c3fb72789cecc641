package domain

import (
	"context"
	"encoding/json"
	"iter"
	"time"

	"go.pilab.hu/oidcstore/query"
)

// TokenStatus is the lifecycle status of a token.
type TokenStatus string

const (
	TokenStatusValid    TokenStatus = "valid"
	TokenStatusInactive TokenStatus = "inactive"
	TokenStatusRedeemed TokenStatus = "redeemed"
	TokenStatusRejected TokenStatus = "rejected"
	TokenStatusRevoked  TokenStatus = "revoked"
)

// Token types issued by the authorization server.
const (
	TokenTypeAccessToken       = "access_token"
	TokenTypeRefreshToken      = "refresh_token"
	TokenTypeAuthorizationCode = "authorization_code"
	TokenTypeDeviceCode        = "device_code"
	TokenTypeUserCode          = "user_code"
	TokenTypeIDToken           = "id_token"
)

// Token represents an issued token. The payload is opaque to the store.
//
//nolint:tagliatelle
type Token struct {
	ID               string                     `json:"id"`
	InternalID       uint64                     `json:"internal_id,omitempty"`
	ClientID         string                     `json:"client_id"`
	AuthorizationID  string                     `json:"authorization_id,omitempty"` // External id of the parent authorization
	Subject          string                     `json:"subject,omitempty"`
	Type             string                     `json:"type"`
	Status           TokenStatus                `json:"status"`
	Payload          string                     `json:"-"`
	ReferenceID      string                     `json:"reference_id,omitempty"`
	Properties       map[string]json.RawMessage `json:"properties,omitempty"`
	CreationDate     time.Time                  `json:"creation_date"`
	ExpirationDate   time.Time                  `json:"expiration_date,omitempty"`
	RedemptionDate   time.Time                  `json:"redemption_date,omitempty"`
	ConcurrencyToken string                     `json:"concurrency_token,omitempty"`
}

// TokenFilter narrows token lookups. Subject and ClientID are required.
type TokenFilter struct {
	Subject  string
	ClientID string
	Status   TokenStatus
	Type     string
}

// TokenStore defines the storage contract for tokens.
//
//nolint:interfacebloat
type TokenStore interface {
	Count(ctx context.Context) (int64, error)

	// CountWith, GetWith and ListWith are refused with ErrUnsupported.
	CountWith(ctx context.Context, q query.Projection[*Token]) (int64, error)

	Create(ctx context.Context, t *Token) error
	Delete(ctx context.Context, t *Token) error
	Find(ctx context.Context, filter TokenFilter) iter.Seq2[*Token, error]
	FindByAuthorizationID(ctx context.Context, authorizationID string) iter.Seq2[*Token, error]
	FindByClientID(ctx context.Context, clientID string) iter.Seq2[*Token, error]
	FindByID(ctx context.Context, id string) (*Token, error)
	FindByReferenceID(ctx context.Context, referenceID string) (*Token, error)
	FindBySubject(ctx context.Context, subject string) iter.Seq2[*Token, error]
	GetWith(ctx context.Context, q query.Projection[*Token]) (any, error)
	Instantiate() *Token
	List(ctx context.Context, count, offset int) iter.Seq2[*Token, error]
	ListWith(ctx context.Context, q query.Projection[*Token]) iter.Seq2[any, error]

	// Prune asks the store to remove tokens expired before threshold, and
	// tokens created before threshold that are no longer valid.
	Prune(ctx context.Context, threshold time.Time) error

	// RevokeByAuthorizationID asks the store to revoke every valid token of the
	// authorization. The returned count is estimated from the current snapshot.
	RevokeByAuthorizationID(ctx context.Context, authorizationID string) (int64, error)

	// TryRedeem moves a valid token to redeemed, stamping the redemption date.
	TryRedeem(ctx context.Context, t *Token, at time.Time) error

	// TryRevoke moves a valid token to revoked.
	TryRevoke(ctx context.Context, t *Token) error

	Update(ctx context.Context, t *Token) error
	WaitVisible(ctx context.Context, id string) error
}
