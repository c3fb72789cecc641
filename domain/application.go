package domain

import (
	"context"
	"encoding/json"
	"iter"
	"time"

	"go.pilab.hu/oidcstore/query"
	"golang.org/x/text/language"
)

// ClientType defines the type of client application. Confidential or Public
type ClientType string

const (
	// ClientTypeConfidential clients can securely store secrets
	ClientTypeConfidential ClientType = "confidential"
	// ClientTypePublic clients cannot securely store secrets (mobile apps, SPAs)
	ClientTypePublic ClientType = "public"
)

// ConsentType controls how user consent is collected for an application.
type ConsentType string

const (
	ConsentTypeExplicit   ConsentType = "explicit"
	ConsentTypeImplicit   ConsentType = "implicit"
	ConsentTypeExternal   ConsentType = "external"
	ConsentTypeSystematic ConsentType = "systematic"
)

// ApplicationType is the kind of application (web or native).
type ApplicationType string

const (
	ApplicationTypeWeb    ApplicationType = "web"
	ApplicationTypeNative ApplicationType = "native"
)

// Application represents a registered OAuth2 client application.
//
// ID is the externally minted identifier; InternalID is assigned by the
// backing store once the registration has replicated and stays zero until the
// application is read back from a snapshot.
//
//nolint:tagliatelle
type Application struct {
	ID                     string                     `json:"id"`
	InternalID             uint64                     `json:"internal_id,omitempty"`
	ApplicationType        ApplicationType            `json:"application_type,omitempty"`
	ClientID               string                     `json:"client_id"`
	ClientSecret           string                     `json:"-"`
	ClientType             ClientType                 `json:"client_type,omitempty"`
	ConsentType            ConsentType                `json:"consent_type,omitempty"`
	DisplayName            string                     `json:"display_name,omitempty"`
	DisplayNames           map[language.Tag]string    `json:"display_names,omitempty"`
	Permissions            []string                   `json:"permissions,omitempty"`
	PostLogoutRedirectURIs []string                   `json:"post_logout_redirect_uris,omitempty"`
	RedirectURIs           []string                   `json:"redirect_uris,omitempty"`
	Requirements           []string                   `json:"requirements,omitempty"`
	Settings               map[string]string          `json:"settings,omitempty"`
	Properties             map[string]json.RawMessage `json:"properties,omitempty"`
	Active                 bool                       `json:"active"`
	CreatedAt              time.Time                  `json:"created_at"`
	ConcurrencyToken       string                     `json:"concurrency_token,omitempty"`
}

// ApplicationStore defines the storage contract for client applications.
//
//nolint:interfacebloat
type ApplicationStore interface {
	// Count returns the number of active applications in the current snapshot.
	Count(ctx context.Context) (int64, error)

	// CountWith applies a projection to every application and counts the results.
	CountWith(ctx context.Context, q query.Projection[*Application]) (int64, error)

	// Create submits a registration intent. It returns before the application is
	// visible in any snapshot.
	Create(ctx context.Context, app *Application) error

	// Delete revokes the application. Deleting an absent application is a no-op.
	Delete(ctx context.Context, app *Application) error

	// DeleteByClientID revokes the application registered under clientID, if any.
	DeleteByClientID(ctx context.Context, clientID string) error

	// FindByID returns the application with the given external id.
	FindByID(ctx context.Context, id string) (*Application, error)

	// FindByClientID returns the active application registered under clientID.
	FindByClientID(ctx context.Context, clientID string) (*Application, error)

	// FindByPostLogoutRedirectURI streams the applications allowing uri as a
	// post-logout redirect target.
	FindByPostLogoutRedirectURI(ctx context.Context, uri string) iter.Seq2[*Application, error]

	// FindByRedirectURI streams the applications allowing uri as a redirect target.
	FindByRedirectURI(ctx context.Context, uri string) iter.Seq2[*Application, error]

	// GetWith applies a projection and returns its first result, or nil.
	GetWith(ctx context.Context, q query.Projection[*Application]) (any, error)

	// Instantiate returns an empty application ready to be filled and created.
	Instantiate() *Application

	// List streams count applications after skipping offset. A count of zero
	// or less means no limit.
	List(ctx context.Context, count, offset int) iter.Seq2[*Application, error]

	// ListWith streams the results of a projection over every application.
	ListWith(ctx context.Context, q query.Projection[*Application]) iter.Seq2[any, error]

	// Update submits a full replacement of the application.
	Update(ctx context.Context, app *Application) error

	// WaitVisible blocks until the application with the given external id is
	// visible in the snapshot or ctx ends.
	WaitVisible(ctx context.Context, id string) error
}
