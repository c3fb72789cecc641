package reactive

import (
	"encoding/json"
	"fmt"
	"time"
)

// Reducer names a mutation the store knows how to apply.
type Reducer string

const (
	RegisterApplication  Reducer = "register_application"
	UpdateApplication    Reducer = "update_application"
	RevokeApplication    Reducer = "revoke_application"
	CreateAuthorization  Reducer = "create_authorization"
	UpdateAuthorization  Reducer = "update_authorization"
	DeleteAuthorization  Reducer = "delete_authorization"
	PruneAuthorizations  Reducer = "prune_authorizations"
	RevokeAuthorizations Reducer = "revoke_authorizations"
	CreateScope          Reducer = "create_scope"
	UpdateScope          Reducer = "update_scope"
	DeleteScope          Reducer = "delete_scope"
	CreateToken          Reducer = "create_token"
	UpdateToken          Reducer = "update_token"
	DeleteToken          Reducer = "delete_token"
	PruneTokens          Reducer = "prune_tokens"
	RevokeTokens         Reducer = "revoke_tokens"

	// Undecodable stands in for a log entry that could not be decoded. It is
	// always rejected, so the entry is still applied in order and its position
	// recorded.
	Undecodable Reducer = "undecodable"
)

// Intent is a submitted mutation as it travels through the intent log.
//
//nolint:tagliatelle
type Intent struct {
	ID          string          `json:"id"`
	Reducer     Reducer         `json:"reducer"`
	Args        json.RawMessage `json:"args"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// Entry is an intent at a position of the log.
type Entry struct {
	Position string
	Intent   Intent
}

// UndecodableEntry wraps a log entry at position that failed to decode.
func UndecodableEntry(position string, cause error) Entry {
	args, _ := json.Marshal(cause.Error())
	return Entry{
		Position: position,
		Intent:   Intent{ID: position, Reducer: Undecodable, Args: args},
	}
}

// IDArgs targets a single row by internal id.
type IDArgs struct {
	ID uint64 `json:"id"`
}

// PruneArgs carries the age threshold of a prune, in unix milliseconds.
type PruneArgs struct {
	Threshold int64 `json:"threshold"`
}

// RevokeFilter selects the valid rows a bulk revoke applies to. Empty fields
// match every row; Scopes match as a subset of the row's scopes.
//
//nolint:tagliatelle
type RevokeFilter struct {
	Subject         string   `json:"subject,omitempty"`
	ClientID        string   `json:"client_id,omitempty"`
	Type            string   `json:"type,omitempty"`
	AuthorizationID string   `json:"authorization_id,omitempty"`
	Scopes          []string `json:"scopes,omitempty"`
}

// Rejection reasons.
const (
	ReasonMalformed  = "malformed_args"
	ReasonUnknown    = "unknown_reducer"
	ReasonNotFound   = "not_found"
	ReasonDuplicate  = "duplicate_key"
	ReasonMissingKey = "missing_key"
	ReasonDecode     = "undecodable"
)

// RejectedError reports an intent a reducer refused to apply. Rejections are
// never seen by the submitter; the replica logs and counts them.
type RejectedError struct {
	Reason  string
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("intent rejected (%s): %s", e.Reason, e.Message)
}

func reject(reason, format string, args ...any) error {
	return &RejectedError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Change is one row written by an applied intent. A nil Row marks a delete.
type Change struct {
	Table TableName
	ID    uint64
	Row   any
}

func decodeArgs[T any](in Intent) (T, error) {
	var v T
	if err := json.Unmarshal(in.Args, &v); err != nil {
		return v, reject(ReasonMalformed, "%s: %v", in.Reducer, err)
	}
	return v, nil
}

// serverToken derives the concurrency token of a row rewritten by the store
// itself. Every replica derives the same value.
func serverToken(in Intent, id uint64) string {
	return fmt.Sprintf("%s:%d", in.ID, id)
}

func decodeScopes(text string) map[string]struct{} {
	var scopes []string
	_ = json.Unmarshal([]byte(text), &scopes)
	set := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		set[s] = struct{}{}
	}
	return set
}

func (f RevokeFilter) matchesAuthorization(r AuthorizationRow) bool {
	if r.Status != StatusValid {
		return false
	}
	if f.Subject != "" && r.Subject != f.Subject {
		return false
	}
	if f.ClientID != "" && r.ClientID != f.ClientID {
		return false
	}
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.AuthorizationID != "" && r.ExternalID != f.AuthorizationID {
		return false
	}
	if len(f.Scopes) > 0 {
		granted := decodeScopes(r.Scopes)
		for _, s := range f.Scopes {
			if _, ok := granted[s]; !ok {
				return false
			}
		}
	}
	return true
}

func (f RevokeFilter) matchesToken(r TokenRow) bool {
	if r.Status != StatusValid {
		return false
	}
	if f.Subject != "" && r.Subject != f.Subject {
		return false
	}
	if f.ClientID != "" && r.ClientID != f.ClientID {
		return false
	}
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.AuthorizationID != "" && r.AuthorizationID != f.AuthorizationID {
		return false
	}
	return true
}
