package bot

import (
	"context"

	"github.com/hpungsan/storebot/internal/intake"
	"github.com/hpungsan/storebot/internal/publish"
)

// Prompter delivers intake prompts over the messaging transport.
type Prompter struct {
	transport publish.Transport
}

// NewPrompter creates a Prompter.
func NewPrompter(t publish.Transport) *Prompter {
	return &Prompter{transport: t}
}

// Send posts the gallery first, then the photo with the text as caption, or
// the text alone.
func (p *Prompter) Send(ctx context.Context, userID int64, pr intake.Prompt) error {
	chat := chatID(userID)
	if len(pr.Gallery) > 1 {
		if _, err := p.transport.SendMediaGroup(ctx, chat, pr.Gallery); err != nil {
			return err
		}
	}
	if pr.Photo != "" {
		_, err := p.transport.SendPhoto(ctx, chat, pr.Photo, pr.Text, pr.Keyboard)
		return err
	}
	_, err := p.transport.SendMessage(ctx, chat, pr.Text, pr.Keyboard)
	return err
}
