package mcp

import "github.com/mark3labs/mcp-go/mcp"

var listToolDef = mcp.NewTool("story_list",
	mcp.WithDescription("List stories held in the edge's local store, oldest first. Pending stories were written offline and wait for sync."),
	mcp.WithString("filter",
		mcp.Description("Which stories to include"),
		mcp.Enum("all", "pending", "synced"),
	),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)"), mcp.Min(0)),
	mcp.WithNumber("offset", mcp.Description("Items to skip"), mcp.Min(0)),
)

var storeToolDef = mcp.NewTool("story_store",
	mcp.WithDescription("Store a story locally. Without a server id it is saved as pending and the deferred sync task is armed."),
	mcp.WithString("description", mcp.Required(), mcp.Description("Story text")),
	mcp.WithString("name", mcp.Description("Story title")),
	mcp.WithString("id", mcp.Description("Server id of an already-published story; omit for new stories")),
	mcp.WithNumber("lat", mcp.Description("Latitude"), mcp.Min(-90), mcp.Max(90)),
	mcp.WithNumber("lon", mcp.Description("Longitude"), mcp.Min(-180), mcp.Max(180)),
	mcp.WithString("photo_path", mcp.Description("Local image file to attach (max 1 MiB)")),
)

var deleteToolDef = mcp.NewTool("story_delete",
	mcp.WithDescription("Delete a story from the local store. Pending stories deleted this way are never uploaded."),
	mcp.WithDestructiveHintAnnotation(true),
	mcp.WithString("id", mcp.Required(), mcp.Description("Story id")),
)

var syncToolDef = mcp.NewTool("story_sync",
	mcp.WithDescription("Upload every pending story now. Accepted stories are removed from the local store."),
)

var pullToolDef = mcp.NewTool("story_pull",
	mcp.WithDescription("Fetch one page of server stories and keep them for offline reading."),
	mcp.WithNumber("page", mcp.Description("Page number (default 1)"), mcp.Min(1)),
	mcp.WithNumber("size", mcp.Description("Page size (default 20)"), mcp.Min(1)),
	mcp.WithBoolean("location", mcp.Description("Only stories with a location")),
)

var partitionsToolDef = mcp.NewTool("cache_partitions",
	mcp.WithDescription("List cache partitions with entry counts and sizes. Unrecognized partitions are evicted at the next activation."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var installToolDef = mcp.NewTool("cache_install",
	mcp.WithDescription("Precache the static asset manifest into the current version's partition."),
)

var activateToolDef = mcp.NewTool("cache_activate",
	mcp.WithDescription("Activate the installed version: evict stale partitions and notify connected clients."),
	mcp.WithDestructiveHintAnnotation(true),
)
