package domain

import "fmt"

// Tool is the active annotation-creation mode of the viewer.
type Tool string

const (
	ToolCursor    Tool = "cursor"
	ToolHighlight Tool = "highlight"
	ToolUnderline Tool = "underline"
	ToolStrikeout Tool = "strikeout"
	ToolRectangle Tool = "rectangle"
	ToolComment   Tool = "comment"
	ToolInk       Tool = "ink"
	ToolEraser    Tool = "eraser"
)

// ParseTool validates a tool name coming from the frontend.
func ParseTool(s string) (Tool, error) {
	switch t := Tool(s); t {
	case ToolCursor, ToolHighlight, ToolUnderline, ToolStrikeout, ToolRectangle, ToolComment, ToolInk, ToolEraser:
		return t, nil
	case "":
		return ToolCursor, nil
	default:
		return "", fmt.Errorf("unknown tool %q", s)
	}
}

// Kind returns the annotation kind the tool produces. Eraser edits the
// ink record; cursor produces nothing.
func (t Tool) Kind() (Kind, bool) {
	switch t {
	case ToolHighlight:
		return KindHighlight, true
	case ToolUnderline:
		return KindUnderline, true
	case ToolStrikeout:
		return KindStrikeout, true
	case ToolRectangle:
		return KindRectangle, true
	case ToolComment:
		return KindComment, true
	case ToolInk, ToolEraser:
		return KindInk, true
	default:
		return "", false
	}
}

// ToolSettings carries stroke parameters for the ink and eraser tools.
type ToolSettings struct {
	Color           string  `json:"color"`
	InkThickness    float64 `json:"inkThickness"`
	InkOpacity      float64 `json:"inkOpacity"`
	EraserThickness float64 `json:"eraserThickness"`
}

// ToolContext exposes the current tool state. Read-only for consumers.
type ToolContext interface {
	Tool() Tool
	Settings() ToolSettings
}
