package intake

import (
	"context"

	"github.com/hpungsan/storebot/internal/catalog"
	"github.com/hpungsan/storebot/internal/draft"
	"github.com/hpungsan/storebot/internal/errors"
	"github.com/hpungsan/storebot/internal/events"
)

// Confirm commits a previewed draft. Either the product is stored and the
// draft cleared, or nothing is stored and the draft stays for a retry.
func (e *Engine) Confirm(ctx context.Context, userID int64) (*catalog.Product, error) {
	unlock := e.locks.Lock(userID)
	defer unlock()

	d, err := e.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if d.State != draft.Previewing {
		err := errors.NewInvalidState(string(d.State), "create product")
		e.reprompt(ctx, d, err)
		return nil, err
	}
	if err := d.ReadyToCommit(); err != nil {
		e.log.Error("previewed draft incomplete", "user_id", userID, "err", err)
		return nil, errors.NewInternal(err)
	}

	p := d.Assemble(e.newID())
	now := e.now()
	p.CreatedAt, p.UpdatedAt = now, now

	if err := e.storage.CreateProduct(ctx, p); err != nil {
		e.log.Error("create product", "user_id", userID, "err", err)
		e.send(ctx, userID, commitFailedPrompt())
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewStorageUnavailable(err)
	}

	if err := e.drafts.Delete(ctx, userID); err != nil {
		e.log.Warn("delete committed draft", "user_id", userID, "err", err)
	}
	e.removeUnused(d)

	if err := e.events.Publish(ctx, events.Event{
		Type:      events.ProductCreated,
		ProductID: p.ID,
		SellerID:  p.SellerID,
		At:        now,
	}); err != nil {
		e.log.Warn("publish event", "type", events.ProductCreated, "product_id", p.ID, "err", err)
	}

	e.log.Info("product created", "user_id", userID, "product_id", p.ID, "type", p.Type, "images", len(d.AllImages))
	e.send(ctx, userID, createdPrompt(p.ID))
	return p, nil
}

// removeUnused deletes originals of stamped images that the product does not
// reference. Stamped copies, the main original and files where stamping fell
// back to the original are kept.
func (e *Engine) removeUnused(d *draft.Draft) {
	keep := make(map[string]bool, len(d.AllImages)+1)
	for _, img := range d.AllImages {
		keep[img] = true
	}
	if d.MainImageIndex != nil {
		keep[d.AllOriginalImages[*d.MainImageIndex]] = true
	}
	for _, f := range d.Files() {
		if !keep[f] {
			e.remove(f)
		}
	}
}
