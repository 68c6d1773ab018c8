package seed

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"flowseed/internal/apperr"
	"flowseed/internal/credentials"
	"flowseed/internal/store"
)

var defaultCredentialVisibility = store.Tags{"Private"}

type credentialPlan struct {
	def     credentials.Definition
	entries []credentials.Entry
}

type reconcileResult struct {
	seeded   map[string][]string
	assigned map[string]string
	pruned   int64
}

// plan resolves the requested aliases and groups their entries by canonical type, in
// catalog order. Aliases of the same type are merged.
func (e *Engine) plan(requested map[string]credentials.EntryList) ([]credentialPlan, error) {
	aliases := make([]string, 0, len(requested))
	for alias := range requested {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	if err := e.registry.ValidateAliases(aliases); err != nil {
		return nil, err
	}

	byType := make(map[string]*credentialPlan)
	for _, alias := range aliases {
		def, _ := e.registry.Resolve(alias)
		p, ok := byType[def.Name]
		if !ok {
			p = &credentialPlan{def: def}
			byType[def.Name] = p
		}
		for _, entry := range credentials.NormalizeEntries(requested[alias]) {
			if !entry.ShouldCreate() && entry.Assigned {
				return nil, apperr.Assignment(alias)
			}
			p.entries = append(p.entries, entry)
		}
	}

	plans := make([]credentialPlan, 0, len(byType))
	for _, name := range e.registry.CanonicalNames() {
		if p, ok := byType[name]; ok {
			plans = append(plans, *p)
		}
	}
	return plans, nil
}

// reconcileCredentials makes owner's credential rows match plans and deletes the rows
// of pruneTypes that no entry claimed.
func (e *Engine) reconcileCredentials(ctx context.Context, s *store.Store, owner, orgID *string, plans []credentialPlan, pruneTypes []string) (reconcileResult, error) {
	result := reconcileResult{
		seeded:   make(map[string][]string),
		assigned: make(map[string]string),
	}
	touched := make(map[string]bool)
	existingByType := make(map[string][]store.Credential)

	for _, p := range plans {
		existing, err := s.ListCredentials(ctx, owner, p.def.Name)
		if err != nil {
			return result, err
		}
		existingByType[p.def.Name] = existing

		ids, assignedID, err := e.upsertType(ctx, s, owner, orgID, p, existing, touched)
		if err != nil {
			return result, err
		}
		if len(ids) > 0 {
			result.seeded[p.def.Name] = ids
		}
		if assignedID != "" {
			result.assigned[p.def.Name] = assignedID
		}
	}

	for _, credentialType := range pruneTypes {
		existing, ok := existingByType[credentialType]
		if !ok {
			var err error
			if existing, err = s.ListCredentials(ctx, owner, credentialType); err != nil {
				return result, err
			}
		}
		var stale []string
		for _, cred := range existing {
			if !touched[cred.ID] {
				stale = append(stale, cred.ID)
			}
		}
		deleted, err := s.DeleteCredentials(ctx, stale)
		if err != nil {
			return result, err
		}
		if deleted > 0 {
			e.logger.Debug("pruned credentials",
				zap.String("credential_type", credentialType),
				zap.Int64("deleted", deleted),
			)
		}
		result.pruned += deleted
	}
	return result, nil
}

// upsertType applies the entries of one credential type. A row whose display name an
// entry asks for is updated in place; otherwise an unclaimed existing row is renamed;
// otherwise a row is inserted. Rows named by some entry are never renamed away.
func (e *Engine) upsertType(ctx context.Context, s *store.Store, owner, orgID *string, p credentialPlan, existing []store.Credential, touched map[string]bool) ([]string, string, error) {
	byName := make(map[string]store.Credential, len(existing))
	for _, cred := range existing {
		if _, dup := byName[cred.Name]; !dup {
			byName[cred.Name] = cred
		}
	}

	reserved := make(map[string]bool)
	for _, entry := range p.entries {
		if !entry.ShouldCreate() {
			continue
		}
		if cred, ok := byName[entry.DisplayName(p.def)]; ok {
			reserved[cred.ID] = true
		}
	}
	var pool []store.Credential
	for _, cred := range existing {
		if !reserved[cred.ID] {
			pool = append(pool, cred)
		}
	}

	var (
		ids        []string
		assignedID string
	)
	seededByName := make(map[string]string)
	for _, entry := range p.entries {
		if !entry.ShouldCreate() {
			continue
		}
		name := entry.DisplayName(p.def)
		blob, err := e.cipher.Encrypt(credentials.BuildFields(p.def, entry.Data))
		if err != nil {
			return nil, "", err
		}
		visibility := store.Tags(entry.Visibility)
		if len(visibility) == 0 {
			visibility = defaultCredentialVisibility
		}
		cred := store.Credential{
			Name:           name,
			CredentialName: p.def.Name,
			EncryptedData:  blob,
			Visibility:     visibility,
			UserID:         owner,
			OrganizationID: orgID,
		}

		action := "updated"
		if id, ok := seededByName[name]; ok {
			cred.ID = id
		} else if match, ok := byName[name]; ok {
			cred.ID = match.ID
		} else if len(pool) > 0 {
			cred.ID = pool[0].ID
			pool = pool[1:]
			action = "renamed"
		}

		if cred.ID == "" {
			inserted, err := s.InsertCredential(ctx, cred)
			if err != nil {
				return nil, "", err
			}
			cred = inserted
			action = "inserted"
		} else if err := s.UpdateCredential(ctx, cred); err != nil {
			return nil, "", err
		}
		e.logger.Debug("credential "+action,
			zap.String("credential_type", p.def.Name),
			zap.String("name", name),
			zap.String("credential_id", cred.ID),
		)

		if !touched[cred.ID] {
			ids = append(ids, cred.ID)
		}
		touched[cred.ID] = true
		seededByName[name] = cred.ID
		if entry.Assigned {
			assignedID = cred.ID
		}
	}
	return ids, assignedID, nil
}
