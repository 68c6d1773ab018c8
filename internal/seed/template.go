package seed

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"flowseed/internal/store"
)

var templateVisibility = store.Tags{"Private", "Organization"}

// EnsureTemplate makes sure an ownerless chatflow with the fixture content exists at
// templateID.
func (e *Engine) EnsureTemplate(ctx context.Context, templateID string) (store.Chatflow, error) {
	var template store.Chatflow
	err := e.db.WithTx(ctx, func(s *store.Store) error {
		var err error
		template, err = e.ensureTemplate(ctx, s, templateID)
		return err
	})
	return template, err
}

// ensureTemplate leaves an ownerless row alone. A row owned by someone is deleted and
// the fixture document is inserted in its place.
func (e *Engine) ensureTemplate(ctx context.Context, s *store.Store, templateID string) (store.Chatflow, error) {
	existing, err := s.GetChatflow(ctx, templateID)
	switch {
	case err == nil && existing.Ownerless():
		return existing, nil
	case err == nil:
		e.logger.Warn("replacing owned chatflow at template id",
			zap.String("template_id", templateID),
			zap.String("owner_id", store.Deref(existing.UserID)),
		)
		if err := s.DeleteChatflow(ctx, templateID); err != nil {
			return store.Chatflow{}, err
		}
	case !errors.Is(err, store.ErrNotFound):
		return store.Chatflow{}, err
	}

	tpl, err := e.fixtures.Load(ctx, templateID)
	if err != nil {
		return store.Chatflow{}, fmt.Errorf("load template %s: %w", templateID, err)
	}
	version := tpl.Version
	if version <= 0 {
		version = 1
	}
	template, err := s.InsertChatflow(ctx, store.Chatflow{
		ID:          templateID,
		Name:        tpl.Name,
		Description: tpl.Description,
		FlowData:    tpl.FlowData,
		Deployed:    false,
		IsPublic:    false,
		Visibility:  templateVisibility,
		Version:     version,
		Category:    tpl.Category,
		Type:        tpl.Type,
	})
	if err != nil {
		return store.Chatflow{}, err
	}
	e.logger.Info("provisioned template", zap.String("template_id", templateID), zap.String("name", tpl.Name))
	return template, nil
}
