package intake

import (
	"context"

	"github.com/hpungsan/storebot/internal/album"
	"github.com/hpungsan/storebot/internal/catalog"
	"github.com/hpungsan/storebot/internal/draft"
	"github.com/hpungsan/storebot/internal/errors"
	"github.com/hpungsan/storebot/internal/watermark"
)

// AddPhoto takes a downloaded photo. Without a batch id the photo joins the
// draft immediately and the cap is enforced here. Photos of a media group
// are buffered and join the draft together once the group goes quiet. A
// rejected photo's file is removed.
func (e *Engine) AddPhoto(ctx context.Context, userID int64, photo draft.Photo, batchID string) error {
	unlock := e.locks.Lock(userID)
	defer unlock()

	d, err := e.load(ctx, userID)
	if err != nil {
		e.remove(photo.OriginalPath)
		return err
	}
	if d.State != draft.CollectingPhotos {
		e.remove(photo.OriginalPath)
		err := errors.NewInvalidState(string(d.State), "send photo")
		e.reprompt(ctx, d, err)
		return err
	}

	if batchID != "" {
		e.album.Record(batchID, userID, d.SessionID, photo)
		return nil
	}

	if len(d.CollectedPhotos) >= e.opts.MaxPhotos {
		e.remove(photo.OriginalPath)
		e.send(ctx, userID, capacityPrompt(e.opts.MaxPhotos))
		return errors.NewCapacityExceeded("photos", e.opts.MaxPhotos)
	}

	d.CollectedPhotos = append(d.CollectedPhotos, photo)
	if err := e.save(ctx, d); err != nil {
		e.remove(photo.OriginalPath)
		return e.storageFailure(ctx, userID, err)
	}
	e.send(ctx, userID, photoReceivedPrompt(1, len(d.CollectedPhotos), e.opts.MaxPhotos, 0))
	return nil
}

// FlushAlbum merges a buffered media group right away instead of waiting for
// its timer.
func (e *Engine) FlushAlbum(batchID string) bool {
	return e.album.Fire(batchID)
}

// mergeBatch moves a quiet media group into its owner's draft and sends one
// prompt for the whole group. It only applies to the session that recorded
// the batch while that session is still collecting photos; otherwise the
// files are removed and nothing else happens.
func (e *Engine) mergeBatch(b album.Batch) {
	ctx, cancel := context.WithTimeout(context.Background(), e.opts.MergeTimeout)
	defer cancel()

	unlock := e.locks.Lock(b.Owner)
	defer unlock()

	d, err := e.load(ctx, b.Owner)
	if err != nil || d.SessionID != b.Session || d.State != draft.CollectingPhotos {
		e.log.Debug("album for stale draft dropped", "user_id", b.Owner, "batch", b.ID, "photos", len(b.Photos))
		e.removePhotos(b.Photos)
		return
	}

	room := e.opts.MaxPhotos - len(d.CollectedPhotos)
	if room < 0 {
		room = 0
	}
	accepted, dropped := b.Photos, []draft.Photo(nil)
	if len(accepted) > room {
		accepted, dropped = b.Photos[:room], b.Photos[room:]
	}
	e.removePhotos(dropped)

	if len(accepted) == 0 {
		e.send(ctx, b.Owner, capacityPrompt(e.opts.MaxPhotos))
		return
	}

	d.CollectedPhotos = append(d.CollectedPhotos, accepted...)
	if err := e.save(ctx, d); err != nil {
		e.log.Error("merge album", "user_id", b.Owner, "batch", b.ID, "err", err)
		e.removePhotos(accepted)
		e.send(ctx, b.Owner, Prompt{Text: "❌ Error processing photos. Please send them again.", Keyboard: cancelKeyboard()})
		return
	}

	e.log.Debug("album merged", "user_id", b.Owner, "batch", b.ID, "photos", len(accepted), "dropped", len(dropped))
	e.send(ctx, b.Owner, photoReceivedPrompt(len(accepted), len(d.CollectedPhotos), e.opts.MaxPhotos, len(dropped)))
}

// DonePhotos ends photo collection. Media groups still waiting on their
// timer are merged first so no photo sent before Done is lost. Every photo is
// stamped; a single photo becomes the main image, several lead to main image
// selection.
func (e *Engine) DonePhotos(ctx context.Context, userID int64) error {
	if n := e.album.FireOwner(userID); n > 0 {
		e.log.Debug("pending albums merged before done", "user_id", userID, "photos", n)
	}
	label := e.label(ctx, userID)

	return e.step(ctx, userID, "done adding photos", func(d *draft.Draft) (Prompt, error) {
		if d.State != draft.CollectingPhotos {
			return Prompt{}, errors.NewInvalidState(string(d.State), "finish photos")
		}
		if len(d.CollectedPhotos) == 0 {
			return Prompt{}, errors.NewEmptyAlbum()
		}

		d.AllImages = d.AllImages[:0]
		d.AllOriginalImages = d.AllOriginalImages[:0]
		for _, p := range d.CollectedPhotos {
			stamped := e.stamper.Stamp(p.OriginalPath, label, watermark.StampedPath(p.OriginalPath))
			d.AllImages = append(d.AllImages, stamped)
			d.AllOriginalImages = append(d.AllOriginalImages, p.OriginalPath)
		}

		if len(d.AllImages) == 1 {
			main := 0
			d.MainImageIndex = &main
			return e.enterTextPhase(d, "✅ Photo received!\n\n"), nil
		}

		d.State = draft.SelectingMainImage
		return selectMainPrompt(d, true), nil
	})
}

// SelectMain picks the cover image from a multi-photo upload.
func (e *Engine) SelectMain(ctx context.Context, userID int64, index int) error {
	return e.step(ctx, userID, "select main image", func(d *draft.Draft) (Prompt, error) {
		if d.State != draft.SelectingMainImage {
			return Prompt{}, errors.NewInvalidState(string(d.State), "select main image")
		}
		if index < 0 || index >= len(d.AllImages) {
			return Prompt{}, errors.NewIndexOutOfRange(index, len(d.AllImages))
		}
		d.MainImageIndex = &index
		return e.enterTextPhase(d, "✅ Main image selected!\n\n"), nil
	})
}

// enterTextPhase moves a draft with a main image to its first text question:
// the title for standard products, the description for custom ones.
func (e *Engine) enterTextPhase(d *draft.Draft, lead string) Prompt {
	if d.ProductType == catalog.TypeCustomDescription {
		d.State = draft.WaitingDescription
		return descriptionPrompt(d, lead)
	}
	d.State = draft.WaitingTitle
	return titlePrompt(d, lead)
}

// label builds the watermark text from the seller's store name.
func (e *Engine) label(ctx context.Context, userID int64) string {
	name := ""
	if u, err := e.storage.GetUser(ctx, userID); err == nil {
		name = u.StoreName
		if name == "" {
			name = u.Username
		}
	} else {
		e.log.Warn("watermark label: load user", "user_id", userID, "err", err)
	}
	return watermark.Label(name, e.opts.BotUsername)
}
