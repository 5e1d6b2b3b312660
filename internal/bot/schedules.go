package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/hpungsan/storebot/internal/db"
	"github.com/hpungsan/storebot/internal/ops"
	"github.com/hpungsan/storebot/internal/render"
)

const scheduleUsage = "Usage: /schedule <product> <days> <HH:MM>\n\n" +
	"Example: `/schedule 01J9Z3Q7 2 09:00` reposts the product every 2 days at 09:00."

func (b *Bot) createSchedule(ctx context.Context, userID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) != 3 {
		b.reply(ctx, userID, scheduleUsage, nil)
		return
	}
	sc, err := ops.CreateSchedule(ctx, b.db, b.cfg, ops.CreateScheduleInput{
		SellerID:     userID,
		ProductID:    fields[0],
		IntervalDays: atoiDefault(fields[1], 0),
		PostTime:     fields[2],
		Now:          b.now(),
	})
	if err != nil {
		b.replyError(ctx, userID, "create schedule", err)
		return
	}
	b.log.Info("schedule created", "user_id", userID, "schedule_id", sc.ID, "product_id", sc.ProductID)
	b.reply(ctx, userID, fmt.Sprintf("✅ **Schedule created**\n\nPosting to %s every %s at %s.\nFirst post: %s",
		render.EscapeMarkdown(sc.Channel), ops.IntervalText(sc.IntervalDays), sc.PostTime,
		sc.NextPostAt.Format("Jan 02 at 15:04")), nil)
}

func (b *Bot) listSchedules(ctx context.Context, userID int64) {
	list, err := ops.ListSchedules(ctx, b.db, userID, false)
	if err != nil {
		b.replyError(ctx, userID, "list schedules", err)
		return
	}
	if len(list) == 0 {
		b.reply(ctx, userID, "📅 You have no schedules. "+scheduleUsage, nil)
		return
	}

	var sb strings.Builder
	sb.WriteString("📅 **Your schedules**\n")
	for _, sc := range list {
		title := sc.ProductID
		if p, err := db.GetProduct(ctx, b.db, sc.ProductID); err == nil {
			title = productLabel(p)
		}
		sb.WriteString("\n• " + render.EscapeMarkdown(ops.DescribeSchedule(sc, title)) + "\n")
		if sc.IsActive {
			sb.WriteString(render.EscapeMarkdown(fmt.Sprintf("  /pause_%s | /unschedule_%s", sc.ID, sc.ID)) + "\n")
		} else {
			sb.WriteString(render.EscapeMarkdown(fmt.Sprintf("  /unpause_%s | /unschedule_%s", sc.ID, sc.ID)) + "\n")
		}
	}
	b.reply(ctx, userID, sb.String(), nil)
}

func (b *Bot) pauseSchedule(ctx context.Context, userID int64, id string) {
	if err := ops.PauseSchedule(ctx, b.db, userID, id); err != nil {
		b.replyError(ctx, userID, "pause schedule", err)
		return
	}
	b.reply(ctx, userID, "⏸️ Schedule paused.", nil)
}

func (b *Bot) resumeSchedule(ctx context.Context, userID int64, id string) {
	sc, err := ops.ResumeSchedule(ctx, b.db, b.cfg, userID, id, b.now())
	if err != nil {
		b.replyError(ctx, userID, "resume schedule", err)
		return
	}
	b.reply(ctx, userID, "▶️ Schedule resumed. Next post: "+sc.NextPostAt.Format("Jan 02 at 15:04"), nil)
}

func (b *Bot) deleteSchedule(ctx context.Context, userID int64, id string) {
	if err := ops.DeleteSchedule(ctx, b.db, userID, id); err != nil {
		b.replyError(ctx, userID, "delete schedule", err)
		return
	}
	b.reply(ctx, userID, "🗑️ Schedule deleted.", nil)
}
