package annotation

import (
	"encoding/json"
	"fmt"

	"sophosia/internal/geometry"
)

// Stroke composition modes.
const (
	ModeDraw  = "draw"
	ModeErase = "erase"
)

const inkPayloadVersion = 1

// Stroke is one freehand path. Points are stored in surface units at scale
// 1 so that rescaling never rewrites them.
type Stroke struct {
	Mode    string       `json:"mode"`
	Color   string       `json:"color,omitempty"`
	Width   float64      `json:"width"`
	Opacity float64      `json:"opacity"`
	Points  [][2]float64 `json:"points"`
}

// InkSurface is the drawing surface of one page. All strokes of a page
// share one surface and one record.
type InkSurface struct {
	Width   float64  `json:"width"`
	Height  float64  `json:"height"`
	Scale   float64  `json:"scale"`
	Strokes []Stroke `json:"strokes"`

	drawing bool
}

type inkPayload struct {
	Version int `json:"version"`
	InkSurface
}

// NewInkSurface returns an empty surface of the given size.
func NewInkSurface(width, height, scale float64) *InkSurface {
	if scale <= 0 {
		scale = 1
	}
	return &InkSurface{Width: width, Height: height, Scale: scale}
}

// ParseInk restores a surface from its serialized payload.
func ParseInk(payload string) (*InkSurface, error) {
	var p inkPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, fmt.Errorf("parse ink payload: %w", err)
	}
	if p.Version > inkPayloadVersion {
		return nil, fmt.Errorf("parse ink payload: unsupported version %d", p.Version)
	}
	s := p.InkSurface
	if s.Scale <= 0 {
		s.Scale = 1
	}
	return &s, nil
}

// Serialize encodes the whole surface, not only the latest stroke.
func (s *InkSurface) Serialize() string {
	data, _ := json.Marshal(inkPayload{Version: inkPayloadVersion, InkSurface: *s})
	return string(data)
}

// Rescale tracks a page re-render. Width, height and scale change together.
func (s *InkSurface) Rescale(width, height, scale float64) {
	if scale <= 0 {
		scale = 1
	}
	s.Width, s.Height, s.Scale = width, height, scale
}

// Drawing reports whether a stroke is in progress.
func (s *InkSurface) Drawing() bool { return s.drawing }

// BeginStroke starts a stroke at p, given relative to the surface origin
// in current-scale pixels. The first point is added twice so a tap leaves
// a visible dot.
func (s *InkSurface) BeginStroke(p geometry.Point, st Stroke) {
	pt := s.unscale(p)
	st.Points = [][2]float64{pt, pt}
	s.Strokes = append(s.Strokes, st)
	s.drawing = true
}

// AddPoint extends the current stroke.
func (s *InkSurface) AddPoint(p geometry.Point) {
	if !s.drawing || len(s.Strokes) == 0 {
		return
	}
	last := &s.Strokes[len(s.Strokes)-1]
	last.Points = append(last.Points, s.unscale(p))
}

// EndStroke finishes the current stroke.
func (s *InkSurface) EndStroke() { s.drawing = false }

func (s *InkSurface) unscale(p geometry.Point) [2]float64 {
	return [2]float64{p.X / s.Scale, p.Y / s.Scale}
}
