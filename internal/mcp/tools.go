package mcp

import "github.com/mark3labs/mcp-go/mcp"

var sellerID = mcp.WithNumber("seller_id", mcp.Required(), mcp.Description("Seller's platform user id"))

var sellerRegisterToolDef = mcp.NewTool("seller_register",
	mcp.WithDescription("Create or update a seller's store profile."),
	mcp.WithNumber("user_id", mcp.Required(), mcp.Description("Platform user id")),
	mcp.WithString("store_name", mcp.Required(), mcp.Description("Store name, 2 to 100 characters")),
	mcp.WithString("phone", mcp.Required(), mcp.Description("Contact phone, digits with optional leading +")),
	mcp.WithString("channel", mcp.Description("Public channel username, e.g. @mystore")),
	mcp.WithString("username", mcp.Description("Platform username without @")),
)

var sellerGetToolDef = mcp.NewTool("seller_get",
	mcp.WithDescription("Fetch a user's profile, role and premium status."),
	mcp.WithNumber("user_id", mcp.Required(), mcp.Description("Platform user id")),
)

var sellerPremiumToolDef = mcp.NewTool("seller_set_premium",
	mcp.WithDescription("Grant or revoke premium. Premium sellers have no product or schedule limits."),
	mcp.WithNumber("user_id", mcp.Required(), mcp.Description("Platform user id")),
	mcp.WithBoolean("premium", mcp.Required(), mcp.Description("true to grant, false to revoke")),
	mcp.WithNumber("days", mcp.Description("Premium length in days; omit for no expiry")),
)

var productListToolDef = mcp.NewTool("product_list",
	mcp.WithDescription("List a seller's products, newest first."),
	sellerID,
	mcp.WithBoolean("active_only", mcp.Description("Only products that are not sold")),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
)

var productGetToolDef = mcp.NewTool("product_get",
	mcp.WithDescription("Fetch one product with its channel caption and HTML rendering."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Product id")),
)

var productStatsToolDef = mcp.NewTool("product_stats",
	mcp.WithDescription("Engagement counters and order totals of a seller's product."),
	sellerID,
	mcp.WithString("id", mcp.Required(), mcp.Description("Product id")),
)

var productButtonToolDef = mcp.NewTool("product_toggle_button",
	mcp.WithDescription("Turn the like, save or order button of a product on or off."),
	sellerID,
	mcp.WithString("id", mcp.Required(), mcp.Description("Product id")),
	mcp.WithString("button", mcp.Required(), mcp.Enum("like", "save", "order")),
)

var productLinkToolDef = mcp.NewTool("product_set_link",
	mcp.WithDescription("Attach a link button to a product. An empty text removes it."),
	sellerID,
	mcp.WithString("id", mcp.Required(), mcp.Description("Product id")),
	mcp.WithString("text", mcp.Description("Button label, up to 100 characters")),
	mcp.WithString("url", mcp.Description("http(s) or tg:// link")),
)

var productEditToolDef = mcp.NewTool("product_edit",
	mcp.WithDescription("Change the title, description, price or category of a seller's product."),
	sellerID,
	mcp.WithString("id", mcp.Required(), mcp.Description("Product id")),
	mcp.WithString("field", mcp.Required(), mcp.Enum("title", "description", "price", "category")),
	mcp.WithString("value", mcp.Required(), mcp.Description("New value; prices are positive numbers")),
)

var productDeleteToolDef = mcp.NewTool("product_delete",
	mcp.WithDescription("Delete a seller's product with its images, engagement, orders and schedules."),
	sellerID,
	mcp.WithString("id", mcp.Required(), mcp.Description("Product id")),
)

var productSearchToolDef = mcp.NewTool("product_search",
	mcp.WithDescription("Search public products by title, description or category. Queries under 2 characters list the newest products."),
	mcp.WithString("query", mcp.Description("Search text")),
)

var scheduleCreateToolDef = mcp.NewTool("schedule_create",
	mcp.WithDescription("Repost a product to the seller's channel every N days at HH:MM."),
	sellerID,
	mcp.WithString("product_id", mcp.Required(), mcp.Description("Product id")),
	mcp.WithNumber("interval_days", mcp.Required(), mcp.Description("Days between posts, at least 1")),
	mcp.WithString("post_time", mcp.Required(), mcp.Description("Time of day, 24h HH:MM")),
)

var scheduleListToolDef = mcp.NewTool("schedule_list",
	mcp.WithDescription("List a seller's schedules."),
	sellerID,
	mcp.WithBoolean("active_only", mcp.Description("Skip paused schedules")),
)

var schedulePauseToolDef = mcp.NewTool("schedule_pause",
	mcp.WithDescription("Stop a schedule from firing."),
	sellerID,
	mcp.WithString("id", mcp.Required(), mcp.Description("Schedule id")),
)

var scheduleResumeToolDef = mcp.NewTool("schedule_resume",
	mcp.WithDescription("Reactivate a paused schedule; the next post is computed from now."),
	sellerID,
	mcp.WithString("id", mcp.Required(), mcp.Description("Schedule id")),
)

var scheduleDeleteToolDef = mcp.NewTool("schedule_delete",
	mcp.WithDescription("Remove a schedule."),
	sellerID,
	mcp.WithString("id", mcp.Required(), mcp.Description("Schedule id")),
)

var scheduleNextToolDef = mcp.NewTool("schedule_next",
	mcp.WithDescription("Preview the next post time for an interval and time of day."),
	mcp.WithNumber("interval_days", mcp.Required(), mcp.Description("Days between posts")),
	mcp.WithString("post_time", mcp.Required(), mcp.Description("Time of day, 24h HH:MM")),
	mcp.WithString("from", mcp.Description("RFC 3339 reference time; defaults to now")),
)
