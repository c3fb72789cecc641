package reactive

// Rows are flat: dates are unix milliseconds (0 when absent) and structured
// values are compact JSON text. ConcurrencyToken changes on every write.

//nolint:tagliatelle
type ApplicationRow struct {
	ID                     uint64 `json:"id"`
	ExternalID             string `json:"external_id"`
	ClientID               string `json:"client_id"`
	ClientSecret           string `json:"client_secret,omitempty"`
	ClientType             string `json:"client_type,omitempty"`
	ConsentType            string `json:"consent_type,omitempty"`
	ApplicationType        string `json:"application_type,omitempty"`
	DisplayName            string `json:"display_name,omitempty"`
	DisplayNames           string `json:"display_names,omitempty"`
	Permissions            string `json:"permissions,omitempty"`
	PostLogoutRedirectURIs string `json:"post_logout_redirect_uris,omitempty"`
	RedirectURIs           string `json:"redirect_uris,omitempty"`
	Requirements           string `json:"requirements,omitempty"`
	Settings               string `json:"settings,omitempty"`
	Properties             string `json:"properties,omitempty"`
	Active                 bool   `json:"active"`
	CreatedAt              int64  `json:"created_at,omitempty"`
	ConcurrencyToken       string `json:"concurrency_token,omitempty"`
}

//nolint:tagliatelle
type AuthorizationRow struct {
	ID               uint64 `json:"id"`
	ExternalID       string `json:"external_id"`
	ClientID         string `json:"client_id"`
	Subject          string `json:"subject"`
	Type             string `json:"type,omitempty"`
	Status           string `json:"status,omitempty"`
	Scopes           string `json:"scopes,omitempty"`
	Properties       string `json:"properties,omitempty"`
	CreationDate     int64  `json:"creation_date,omitempty"`
	ConcurrencyToken string `json:"concurrency_token,omitempty"`
}

//nolint:tagliatelle
type ScopeRow struct {
	ID               uint64 `json:"id"`
	ExternalID       string `json:"external_id"`
	Name             string `json:"name"`
	Description      string `json:"description,omitempty"`
	Descriptions     string `json:"descriptions,omitempty"`
	DisplayName      string `json:"display_name,omitempty"`
	DisplayNames     string `json:"display_names,omitempty"`
	Resources        string `json:"resources,omitempty"`
	Properties       string `json:"properties,omitempty"`
	ConcurrencyToken string `json:"concurrency_token,omitempty"`
}

//nolint:tagliatelle
type TokenRow struct {
	ID               uint64 `json:"id"`
	ExternalID       string `json:"external_id"`
	ClientID         string `json:"client_id"`
	AuthorizationID  string `json:"authorization_id,omitempty"`
	Subject          string `json:"subject,omitempty"`
	Type             string `json:"type,omitempty"`
	Status           string `json:"status,omitempty"`
	Payload          string `json:"payload,omitempty"`
	ReferenceID      string `json:"reference_id,omitempty"`
	Properties       string `json:"properties,omitempty"`
	CreationDate     int64  `json:"creation_date,omitempty"`
	ExpirationDate   int64  `json:"expiration_date,omitempty"`
	RedemptionDate   int64  `json:"redemption_date,omitempty"`
	ConcurrencyToken string `json:"concurrency_token,omitempty"`
}

// Status values the reducers understand. They mirror the domain statuses.
const (
	StatusValid   = "valid"
	StatusRevoked = "revoked"

	AuthorizationTypeAdHoc = "ad-hoc"
)

func applicationIndexes() map[Index]func(ApplicationRow) (string, bool) {
	return map[Index]func(ApplicationRow) (string, bool){
		IndexExternalID: func(r ApplicationRow) (string, bool) { return r.ExternalID, r.ExternalID != "" },
		IndexClientID:   func(r ApplicationRow) (string, bool) { return r.ClientID, r.Active && r.ClientID != "" },
	}
}

func authorizationIndexes() map[Index]func(AuthorizationRow) (string, bool) {
	return map[Index]func(AuthorizationRow) (string, bool){
		IndexExternalID: func(r AuthorizationRow) (string, bool) { return r.ExternalID, r.ExternalID != "" },
	}
}

func scopeIndexes() map[Index]func(ScopeRow) (string, bool) {
	return map[Index]func(ScopeRow) (string, bool){
		IndexExternalID: func(r ScopeRow) (string, bool) { return r.ExternalID, r.ExternalID != "" },
		IndexName:       func(r ScopeRow) (string, bool) { return r.Name, r.Name != "" },
	}
}

func tokenIndexes() map[Index]func(TokenRow) (string, bool) {
	return map[Index]func(TokenRow) (string, bool){
		IndexExternalID:  func(r TokenRow) (string, bool) { return r.ExternalID, r.ExternalID != "" },
		IndexReferenceID: func(r TokenRow) (string, bool) { return r.ReferenceID, r.ReferenceID != "" },
	}
}
