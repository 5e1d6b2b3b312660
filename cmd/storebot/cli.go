package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/storebot/internal/catalog"
	"github.com/hpungsan/storebot/internal/db"
	"github.com/hpungsan/storebot/internal/errors"
	"github.com/hpungsan/storebot/internal/events"
	"github.com/hpungsan/storebot/internal/mcp"
	"github.com/hpungsan/storebot/internal/ops"
	"github.com/hpungsan/storebot/internal/schedule"
)

// newCLIApp creates the CLI application with all commands. rt is nil when
// only help or version output is needed.
func newCLIApp(rt *runtime) *cli.App {
	app := &cli.App{
		Name:    "storebot",
		Usage:   "Product listing and channel publishing bot",
		Version: Version,
		Commands: []*cli.Command{
			serveCmd(rt),
			mcpCmd(rt),
			sweepCmd(rt),
			sellerCmd(rt),
			productsCmd(rt),
			scheduleCmd(rt),
			nextPostCmd(),
			webhookCmd(rt),
			eventsCmd(rt),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func serveCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the bot: updates, scheduler and public pages",
		Action: func(c *cli.Context) error {
			return runServe(c.Context, rt)
		},
	}
}

func mcpCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve admin tools over MCP stdio",
		Action: func(c *cli.Context) error {
			if unknown := mcp.ValidateDisabledTools(rt.cfg.DisabledTools); len(unknown) > 0 {
				rt.log.Warn("unknown disabled tools", "names", unknown)
			}
			if unknown := mcp.ValidateDisabledTypes(rt.cfg.DisabledTypes); len(unknown) > 0 {
				rt.log.Warn("unknown disabled types", "names", unknown)
			}
			return mcp.Run(rt.db, rt.cfg, Version)
		},
	}
}

func sweepCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Post every due schedule once and purge idle drafts",
		Action: func(c *cli.Context) error {
			res, purged, err := runSweep(c.Context, rt, time.Now())
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, map[string]any{
				"due":            res.Due,
				"posted":         res.Posted,
				"skipped":        res.Skipped,
				"failed":         res.Failed,
				"not_advanced":   res.NotAdvanced,
				"drafts_purged":  purged,
				"sweep_interval": rt.cfg.SweepInterval().String(),
			})
		},
	}
}

func sellerCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "seller",
		Usage: "Manage sellers",
		Subcommands: []*cli.Command{
			{
				Name:      "register",
				Usage:     "Create or update a seller's store",
				ArgsUsage: "<user-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "store", Aliases: []string{"s"}, Required: true, Usage: "Store name"},
					&cli.StringFlag{Name: "phone", Aliases: []string{"p"}, Required: true, Usage: "Contact phone"},
					&cli.StringFlag{Name: "channel", Aliases: []string{"c"}, Usage: "Channel username"},
					&cli.StringFlag{Name: "username", Usage: "Platform username"},
				},
				Action: func(c *cli.Context) error {
					id, err := idArg(c, "user-id")
					if err != nil {
						return outputError(err)
					}
					u, err := ops.RegisterSeller(c.Context, rt.db, ops.RegisterSellerInput{
						UserID:    id,
						Username:  c.String("username"),
						StoreName: c.String("store"),
						Phone:     c.String("phone"),
						Channel:   c.String("channel"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, newUserRow(u))
				},
			},
			{
				Name:      "show",
				Usage:     "Show a user",
				ArgsUsage: "<user-id>",
				Action: func(c *cli.Context) error {
					id, err := idArg(c, "user-id")
					if err != nil {
						return outputError(err)
					}
					u, err := db.GetUser(c.Context, rt.db, id)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, newUserRow(u))
				},
			},
			{
				Name:      "premium",
				Usage:     "Grant or revoke premium",
				ArgsUsage: "<user-id>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "days", Aliases: []string{"d"}, Usage: "Premium length; 0 means no expiry"},
					&cli.BoolFlag{Name: "revoke", Usage: "Remove premium"},
				},
				Action: func(c *cli.Context) error {
					id, err := idArg(c, "user-id")
					if err != nil {
						return outputError(err)
					}
					var until *time.Time
					if days := c.Int("days"); days > 0 && !c.Bool("revoke") {
						t := time.Now().UTC().AddDate(0, 0, days)
						until = &t
					}
					if err := db.SetPremium(c.Context, rt.db, id, !c.Bool("revoke"), until); err != nil {
						return outputError(err)
					}
					u, err := db.GetUser(c.Context, rt.db, id)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, newUserRow(u))
				},
			},
		},
	}
}

func productsCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "products",
		Usage:     "List a seller's products",
		ArgsUsage: "<seller-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "active", Aliases: []string{"a"}, Usage: "Only products not sold"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Page size"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Usage: "Items to skip"},
		},
		Action: func(c *cli.Context) error {
			id, err := idArg(c, "seller-id")
			if err != nil {
				return outputError(err)
			}
			out, err := ops.ListProducts(c.Context, rt.db, ops.ListProductsInput{
				SellerID:   id,
				ActiveOnly: c.Bool("active"),
				Limit:      c.Int("limit"),
				Offset:     c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			rows := make([]productRow, 0, len(out.Items))
			for _, p := range out.Items {
				rows = append(rows, newProductRow(p))
			}
			return outputJSON(c.App.Writer, map[string]any{
				"items":    rows,
				"total":    out.Total,
				"has_more": out.HasMore,
			})
		},
	}
}

func scheduleCmd(rt *runtime) *cli.Command {
	ownerFlag := func() cli.Flag {
		return &cli.Int64Flag{Name: "seller", Aliases: []string{"s"}, Required: true, Usage: "Seller user id"}
	}
	return &cli.Command{
		Name:  "schedule",
		Usage: "Manage recurring channel posts",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List a seller's schedules",
				Flags: []cli.Flag{ownerFlag(), &cli.BoolFlag{Name: "active", Aliases: []string{"a"}, Usage: "Skip paused schedules"}},
				Action: func(c *cli.Context) error {
					list, err := ops.ListSchedules(c.Context, rt.db, c.Int64("seller"), c.Bool("active"))
					if err != nil {
						return outputError(err)
					}
					rows := make([]scheduleRow, 0, len(list))
					for _, sc := range list {
						rows = append(rows, newScheduleRow(sc))
					}
					return outputJSON(c.App.Writer, rows)
				},
			},
			{
				Name:      "create",
				Usage:     "Repost a product every N days at HH:MM",
				ArgsUsage: "<product-id>",
				Flags: []cli.Flag{
					ownerFlag(),
					&cli.IntFlag{Name: "every", Aliases: []string{"e"}, Value: 1, Usage: "Interval in days"},
					&cli.StringFlag{Name: "at", Value: "09:00", Usage: "Time of day (24h HH:MM)"},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						return outputError(errors.NewValidation("product_id", "product id is required"))
					}
					sc, err := ops.CreateSchedule(c.Context, rt.db, rt.cfg, ops.CreateScheduleInput{
						SellerID:     c.Int64("seller"),
						ProductID:    c.Args().First(),
						IntervalDays: c.Int("every"),
						PostTime:     c.String("at"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, newScheduleRow(sc))
				},
			},
			{
				Name:      "pause",
				Usage:     "Pause a schedule",
				ArgsUsage: "<schedule-id>",
				Flags:     []cli.Flag{ownerFlag()},
				Action: func(c *cli.Context) error {
					if err := ops.PauseSchedule(c.Context, rt.db, c.Int64("seller"), c.Args().First()); err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, map[string]any{"id": c.Args().First(), "active": false})
				},
			},
			{
				Name:      "resume",
				Usage:     "Resume a paused schedule",
				ArgsUsage: "<schedule-id>",
				Flags:     []cli.Flag{ownerFlag()},
				Action: func(c *cli.Context) error {
					sc, err := ops.ResumeSchedule(c.Context, rt.db, rt.cfg, c.Int64("seller"), c.Args().First(), time.Now())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, newScheduleRow(sc))
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a schedule",
				ArgsUsage: "<schedule-id>",
				Flags:     []cli.Flag{ownerFlag()},
				Action: func(c *cli.Context) error {
					if err := ops.DeleteSchedule(c.Context, rt.db, c.Int64("seller"), c.Args().First()); err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, map[string]any{"id": c.Args().First(), "deleted": true})
				},
			},
		},
	}
}

func nextPostCmd() *cli.Command {
	return &cli.Command{
		Name:  "next-post",
		Usage: "Preview when a schedule would fire next",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "every", Aliases: []string{"e"}, Value: 1, Usage: "Interval in days"},
			&cli.StringFlag{Name: "at", Value: "09:00", Usage: "Time of day (24h HH:MM)"},
			&cli.TimestampFlag{Name: "from", Layout: time.RFC3339, Usage: "Reference time (default now)"},
		},
		Action: func(c *cli.Context) error {
			if c.Int("every") < 1 {
				return outputError(errors.NewValidation("every", "interval must be at least 1 day"))
			}
			if _, _, err := schedule.ParsePostTime(c.String("at")); err != nil {
				return outputError(err)
			}
			from := time.Now()
			if ts := c.Timestamp("from"); ts != nil {
				from = *ts
			}
			next := schedule.NextPostAt(from, c.Int("every"), c.String("at"))
			return outputJSON(c.App.Writer, map[string]any{
				"next_post_at": next,
				"interval":     ops.IntervalText(c.Int("every")),
			})
		},
	}
}

func webhookCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "webhook",
		Usage: "Inspect or change the update webhook",
		Subcommands: []*cli.Command{
			{
				Name:  "info",
				Usage: "Show the current webhook registration",
				Action: func(c *cli.Context) error {
					info, err := newClient(rt.cfg).GetWebhookInfo(c.Context)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, info)
				},
			},
			{
				Name:  "delete",
				Usage: "Remove the webhook so serve can long poll",
				Action: func(c *cli.Context) error {
					if err := newClient(rt.cfg).DeleteWebhook(c.Context); err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, map[string]any{"deleted": true})
				},
			},
		},
	}
}

func eventsCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Print domain events from the event topic",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "group", Aliases: []string{"g"}, Value: "storebot-cli", Usage: "Consumer group id"},
		},
		Action: func(c *cli.Context) error {
			if len(rt.cfg.KafkaBrokers) == 0 {
				return outputError(errors.NewValidation("kafka_brokers", "no Kafka brokers configured"))
			}
			enc := json.NewEncoder(c.App.Writer)
			return events.Consume(c.Context, rt.cfg.KafkaBrokers, rt.cfg.KafkaTopic, c.String("group"),
				func(_ context.Context, e events.Event) error {
					return enc.Encode(e)
				})
		},
	}
}

// idArg parses the first positional argument as a platform id.
func idArg(c *cli.Context, name string) (int64, error) {
	if c.NArg() == 0 {
		return 0, errors.NewValidation(name, name+" is required")
	}
	id, err := strconv.ParseInt(c.Args().First(), 10, 64)
	if err != nil {
		return 0, errors.NewValidation(name, name+" must be numeric")
	}
	return id, nil
}

type userRow struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username,omitempty"`
	Role         string     `json:"role"`
	StoreName    string     `json:"store_name,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	Channel      string     `json:"channel,omitempty"`
	IsPremium    bool       `json:"is_premium"`
	PremiumUntil *time.Time `json:"premium_until,omitempty"`
}

func newUserRow(u *catalog.User) userRow {
	return userRow{
		ID: u.ID, Username: u.Username, Role: string(u.Role), StoreName: u.StoreName,
		Phone: u.Phone, Channel: u.Channel, IsPremium: u.IsPremium, PremiumUntil: u.PremiumUntil,
	}
}

type productRow struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Title    string   `json:"title,omitempty"`
	Price    *float64 `json:"price,omitempty"`
	Category string   `json:"category,omitempty"`
	Active   bool     `json:"active"`
	Views    int      `json:"views"`
	Likes    int      `json:"likes"`
	Orders   int      `json:"orders"`
}

func newProductRow(p *catalog.Product) productRow {
	return productRow{
		ID: p.ID, Type: string(p.Type), Title: p.Title, Price: p.Price, Category: p.Category,
		Active: p.IsActive, Views: p.ViewsCount, Likes: p.LikesCount, Orders: p.OrdersCount,
	}
}

type scheduleRow struct {
	ID         string     `json:"id"`
	ProductID  string     `json:"product_id"`
	Channel    string     `json:"channel"`
	Every      string     `json:"every"`
	At         string     `json:"at"`
	Active     bool       `json:"active"`
	NextPostAt *time.Time `json:"next_post_at,omitempty"`
}

func newScheduleRow(sc *catalog.Schedule) scheduleRow {
	return scheduleRow{
		ID: sc.ID, ProductID: sc.ProductID, Channel: sc.Channel, Every: ops.IntervalText(sc.IntervalDays),
		At: sc.PostTime, Active: sc.IsActive, NextPostAt: sc.NextPostAt,
	}
}

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if se, ok := errors.As(err); ok {
		msg := fmt.Sprintf("[%s] %s", se.Code, se.Message)
		if hint := errors.Remediation(err); hint != "" {
			msg += " (" + hint + ")"
		}
		return cli.Exit(msg, 1)
	}
	return cli.Exit(err.Error(), 1)
}
