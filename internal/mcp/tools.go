package mcp

import "github.com/mark3labs/mcp-go/mcp"

var recordToolDef = mcp.NewTool("screen_record_analyze",
	mcp.WithDescription("Record the screen, then analyze the recording. "+
		"Mode describe returns a narrative of what happened; mode animation returns a keyframe spec of the UI motion. "+
		"Without duration_seconds the recording runs until the user stops it in the overlay or the mode's maximum is reached (60s describe, 30s animation)."),
	mcp.WithString("mode",
		mcp.Description("Analysis mode"),
		mcp.Enum("describe", "animation"),
	),
	mcp.WithNumber("duration_seconds",
		mcp.Description("Recording length in seconds. Capped at the mode's maximum."),
		mcp.Min(1),
	),
	mcp.WithString("target",
		mcp.Description("What to record"),
		mcp.Enum("fullscreen", "display", "window", "region"),
	),
	mcp.WithNumber("display",
		mcp.Description("Display index for target=display"),
		mcp.Min(0),
	),
	mcp.WithString("window",
		mcp.Description("Window title for target=window (Windows only)"),
	),
	mcp.WithString("region",
		mcp.Description("Screen rectangle x,y,width,height for target=region"),
	),
	mcp.WithString("focus",
		mcp.Description("What the analysis should pay attention to"),
	),
	mcp.WithBoolean("html",
		mcp.Description("Also write an HTML report next to the recording"),
	),
)

var analyzeToolDef = mcp.NewTool("video_analyze",
	mcp.WithDescription("Analyze an existing video file without recording."),
	mcp.WithString("path",
		mcp.Required(),
		mcp.Description("Path to the video file"),
	),
	mcp.WithString("mode",
		mcp.Description("Analysis mode"),
		mcp.Enum("describe", "animation"),
	),
	mcp.WithString("focus",
		mcp.Description("What the analysis should pay attention to"),
	),
	mcp.WithBoolean("html",
		mcp.Description("Also write an HTML report next to the video"),
	),
)

var resetToolDef = mcp.NewTool("capture_reset",
	mcp.WithDescription("Release a stuck capture engine and kill leftover overlay processes. Refused while a recording or analysis is running."),
)
