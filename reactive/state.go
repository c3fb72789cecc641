package reactive

import (
	"encoding/json"
	"fmt"
)

// state holds the four tables of a replica and applies intents to them.
// Applying the same intents in the same order always yields the same state.
type state struct {
	applications   *table[ApplicationRow]
	authorizations *table[AuthorizationRow]
	scopes         *table[ScopeRow]
	tokens         *table[TokenRow]
}

func newState() *state {
	return &state{
		applications: newTable(TableApplications,
			func(r ApplicationRow) uint64 { return r.ID },
			func(r *ApplicationRow, id uint64) { r.ID = id },
			applicationIndexes()),
		authorizations: newTable(TableAuthorizations,
			func(r AuthorizationRow) uint64 { return r.ID },
			func(r *AuthorizationRow, id uint64) { r.ID = id },
			authorizationIndexes()),
		scopes: newTable(TableScopes,
			func(r ScopeRow) uint64 { return r.ID },
			func(r *ScopeRow, id uint64) { r.ID = id },
			scopeIndexes()),
		tokens: newTable(TableTokens,
			func(r TokenRow) uint64 { return r.ID },
			func(r *TokenRow, id uint64) { r.ID = id },
			tokenIndexes()),
	}
}

// sequences returns the next internal id of every table.
func (s *state) sequences() map[TableName]uint64 {
	return map[TableName]uint64{
		TableApplications:   s.applications.sequence(),
		TableAuthorizations: s.authorizations.sequence(),
		TableScopes:         s.scopes.sequence(),
		TableTokens:         s.tokens.sequence(),
	}
}

func (s *state) setSequences(seq map[TableName]uint64) {
	s.applications.setSequence(seq[TableApplications])
	s.authorizations.setSequence(seq[TableAuthorizations])
	s.scopes.setSequence(seq[TableScopes])
	s.tokens.setSequence(seq[TableTokens])
}

func restoreRow[R any](t *table[R], raw json.RawMessage) error {
	var r R
	if err := json.Unmarshal(raw, &r); err != nil {
		return fmt.Errorf("restore %s row: %w", t.name, err)
	}
	t.restore(r)
	return nil
}

func (s *state) restore(name TableName, raw json.RawMessage) error {
	switch name {
	case TableApplications:
		return restoreRow(s.applications, raw)
	case TableAuthorizations:
		return restoreRow(s.authorizations, raw)
	case TableScopes:
		return restoreRow(s.scopes, raw)
	case TableTokens:
		return restoreRow(s.tokens, raw)
	default:
		return fmt.Errorf("restore: unknown table %q", name)
	}
}

func (s *state) apply(in Intent) ([]Change, error) {
	switch in.Reducer {
	case RegisterApplication:
		return s.registerApplication(in)
	case UpdateApplication:
		return s.updateApplication(in)
	case RevokeApplication:
		return s.revokeApplication(in)
	case CreateAuthorization:
		return create(in, s.authorizations, func(r AuthorizationRow) (string, error) { return r.ExternalID, nil })
	case UpdateAuthorization:
		return update(in, s.authorizations, func(old, r *AuthorizationRow) error {
			r.ExternalID = old.ExternalID
			return nil
		})
	case DeleteAuthorization:
		return remove(in, s.authorizations)
	case PruneAuthorizations:
		return s.pruneAuthorizations(in)
	case RevokeAuthorizations:
		return s.revokeAuthorizations(in)
	case CreateScope:
		return s.createScope(in)
	case UpdateScope:
		return s.updateScope(in)
	case DeleteScope:
		return remove(in, s.scopes)
	case CreateToken:
		return s.createToken(in)
	case UpdateToken:
		return update(in, s.tokens, func(old, r *TokenRow) error {
			r.ExternalID = old.ExternalID
			if owner := s.tokens.owner(IndexReferenceID, r.ReferenceID); r.ReferenceID != "" && owner != 0 && owner != r.ID {
				return reject(ReasonDuplicate, "reference id already in use")
			}
			return nil
		})
	case DeleteToken:
		return remove(in, s.tokens)
	case PruneTokens:
		return s.pruneTokens(in)
	case RevokeTokens:
		return s.revokeTokens(in)
	case Undecodable:
		return nil, reject(ReasonDecode, "%s", in.Args)
	default:
		return nil, reject(ReasonUnknown, "%q", in.Reducer)
	}
}

// create inserts a row carrying a fresh external id. check validates the row
// and returns its external id.
func create[R any](in Intent, t *table[R], check func(R) (string, error)) ([]Change, error) {
	r, err := decodeArgs[R](in)
	if err != nil {
		return nil, err
	}
	externalID, err := check(r)
	if err != nil {
		return nil, err
	}
	if externalID == "" {
		return nil, reject(ReasonMissingKey, "%s: empty external id", in.Reducer)
	}
	if t.owner(IndexExternalID, externalID) != 0 {
		return nil, reject(ReasonDuplicate, "%s: external id %s already in use", in.Reducer, externalID)
	}
	r = t.insert(r)
	return []Change{{Table: t.name, ID: t.id(r), Row: r}}, nil
}

// update replaces a row wholesale. fix may copy immutable columns from the
// stored row and reject the update.
func update[R any](in Intent, t *table[R], fix func(old, r *R) error) ([]Change, error) {
	r, err := decodeArgs[R](in)
	if err != nil {
		return nil, err
	}
	old, ok := t.get(t.id(r))
	if !ok {
		return nil, reject(ReasonNotFound, "%s: no row %d", in.Reducer, t.id(r))
	}
	if err := fix(&old, &r); err != nil {
		return nil, err
	}
	t.put(r)
	return []Change{{Table: t.name, ID: t.id(r), Row: r}}, nil
}

func remove[R any](in Intent, t *table[R]) ([]Change, error) {
	args, err := decodeArgs[IDArgs](in)
	if err != nil {
		return nil, err
	}
	if !t.remove(args.ID) {
		return nil, reject(ReasonNotFound, "%s: no row %d", in.Reducer, args.ID)
	}
	return []Change{{Table: t.name, ID: args.ID}}, nil
}

func (s *state) registerApplication(in Intent) ([]Change, error) {
	return create(in, s.applications, func(r ApplicationRow) (string, error) {
		if r.ClientID == "" {
			return "", reject(ReasonMissingKey, "register_application: empty client id")
		}
		if r.Active && s.applications.owner(IndexClientID, r.ClientID) != 0 {
			return "", reject(ReasonDuplicate, "client id %s already registered", r.ClientID)
		}
		return r.ExternalID, nil
	})
}

func (s *state) updateApplication(in Intent) ([]Change, error) {
	return update(in, s.applications, func(old, r *ApplicationRow) error {
		r.ExternalID = old.ExternalID
		if r.ClientID == "" {
			return reject(ReasonMissingKey, "update_application: empty client id")
		}
		if owner := s.applications.owner(IndexClientID, r.ClientID); r.Active && owner != 0 && owner != r.ID {
			return reject(ReasonDuplicate, "client id %s already registered", r.ClientID)
		}
		return nil
	})
}

func (s *state) revokeApplication(in Intent) ([]Change, error) {
	args, err := decodeArgs[IDArgs](in)
	if err != nil {
		return nil, err
	}
	r, ok := s.applications.get(args.ID)
	if !ok {
		return nil, reject(ReasonNotFound, "revoke_application: no row %d", args.ID)
	}
	if !r.Active {
		return nil, nil
	}
	r.Active = false
	r.ConcurrencyToken = serverToken(in, r.ID)
	s.applications.put(r)
	return []Change{{Table: TableApplications, ID: r.ID, Row: r}}, nil
}

func (s *state) createScope(in Intent) ([]Change, error) {
	return create(in, s.scopes, func(r ScopeRow) (string, error) {
		if r.Name == "" {
			return "", reject(ReasonMissingKey, "create_scope: empty name")
		}
		if s.scopes.owner(IndexName, r.Name) != 0 {
			return "", reject(ReasonDuplicate, "scope %s already exists", r.Name)
		}
		return r.ExternalID, nil
	})
}

func (s *state) updateScope(in Intent) ([]Change, error) {
	return update(in, s.scopes, func(old, r *ScopeRow) error {
		r.ExternalID = old.ExternalID
		if r.Name == "" {
			return reject(ReasonMissingKey, "update_scope: empty name")
		}
		if owner := s.scopes.owner(IndexName, r.Name); owner != 0 && owner != r.ID {
			return reject(ReasonDuplicate, "scope %s already exists", r.Name)
		}
		return nil
	})
}

func (s *state) createToken(in Intent) ([]Change, error) {
	return create(in, s.tokens, func(r TokenRow) (string, error) {
		if r.ReferenceID != "" && s.tokens.owner(IndexReferenceID, r.ReferenceID) != 0 {
			return "", reject(ReasonDuplicate, "reference id already in use")
		}
		return r.ExternalID, nil
	})
}

func (s *state) pruneTokens(in Intent) ([]Change, error) {
	args, err := decodeArgs[PruneArgs](in)
	if err != nil {
		return nil, err
	}

	var changes []Change
	for r := range s.tokens.Iter() {
		expired := r.ExpirationDate != 0 && r.ExpirationDate < args.Threshold
		stale := r.CreationDate < args.Threshold && r.Status != StatusValid
		if expired || stale {
			s.tokens.remove(r.ID)
			changes = append(changes, Change{Table: TableTokens, ID: r.ID})
		}
	}
	return changes, nil
}

// pruneAuthorizations removes authorizations created before the threshold
// that are no longer valid, or are ad-hoc and have no valid token left. Tokens
// of a pruned authorization go with it.
func (s *state) pruneAuthorizations(in Intent) ([]Change, error) {
	args, err := decodeArgs[PruneArgs](in)
	if err != nil {
		return nil, err
	}

	live := make(map[string]struct{})
	for t := range s.tokens.Iter() {
		if t.Status == StatusValid && t.AuthorizationID != "" {
			live[t.AuthorizationID] = struct{}{}
		}
	}

	pruned := make(map[string]struct{})
	var changes []Change
	for r := range s.authorizations.Iter() {
		if r.CreationDate >= args.Threshold {
			continue
		}
		_, hasTokens := live[r.ExternalID]
		if r.Status != StatusValid || (r.Type == AuthorizationTypeAdHoc && !hasTokens) {
			s.authorizations.remove(r.ID)
			pruned[r.ExternalID] = struct{}{}
			changes = append(changes, Change{Table: TableAuthorizations, ID: r.ID})
		}
	}

	if len(pruned) == 0 {
		return changes, nil
	}
	for t := range s.tokens.Iter() {
		if _, ok := pruned[t.AuthorizationID]; ok {
			s.tokens.remove(t.ID)
			changes = append(changes, Change{Table: TableTokens, ID: t.ID})
		}
	}
	return changes, nil
}

func (s *state) revokeAuthorizations(in Intent) ([]Change, error) {
	f, err := decodeArgs[RevokeFilter](in)
	if err != nil {
		return nil, err
	}

	var changes []Change
	for r := range s.authorizations.Iter() {
		if !f.matchesAuthorization(r) {
			continue
		}
		r.Status = StatusRevoked
		r.ConcurrencyToken = serverToken(in, r.ID)
		s.authorizations.put(r)
		changes = append(changes, Change{Table: TableAuthorizations, ID: r.ID, Row: r})
	}
	return changes, nil
}

func (s *state) revokeTokens(in Intent) ([]Change, error) {
	f, err := decodeArgs[RevokeFilter](in)
	if err != nil {
		return nil, err
	}

	var changes []Change
	for r := range s.tokens.Iter() {
		if !f.matchesToken(r) {
			continue
		}
		r.Status = StatusRevoked
		r.ConcurrencyToken = serverToken(in, r.ID)
		s.tokens.put(r)
		changes = append(changes, Change{Table: TableTokens, ID: r.ID, Row: r})
	}
	return changes, nil
}
