// Package core holds the note domain: the Note entity, the Backend port that
// persists notes and the Store that owns the in-memory collection.
package core

import (
	"time"

	"github.com/aretw0/stickies/pkg/color"
)

// Defaults applied to new notes.
const (
	DefaultColor     = "#ffeb3b"
	DefaultTextColor = color.Black
	DefaultHeight    = 125
)

// Field names used to key coalesced writes.
const (
	FieldContent   = "content"
	FieldPosition  = "position"
	FieldHeight    = "height"
	FieldColor     = "color"
	FieldTextColor = "text_color"
	FieldExpanded  = "is_expanded"
)

// Note is the sole entity of the domain.
type Note struct {
	ID            int64      `json:"id" yaml:"id"`
	Content       string     `json:"content" yaml:"content"`
	Color         string     `json:"color" yaml:"color"`
	TextColor     string     `json:"text_color" yaml:"text_color"`
	ContrastColor string     `json:"contrast_color" yaml:"contrast_color"`
	PositionX     float64    `json:"position_x" yaml:"position_x"`
	PositionY     float64    `json:"position_y" yaml:"position_y"`
	IsExpanded    bool       `json:"is_expanded" yaml:"is_expanded"`
	Height        float64    `json:"height" yaml:"height"`
	CreatedAt     time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// Normalize derives ContrastColor from Color and fills a missing height.
// It reports false when Color is malformed; ContrastColor is then black.
func (n Note) Normalize() (Note, bool) {
	if n.Height <= 0 {
		n.Height = DefaultHeight
	}
	if !color.Valid(n.Color) {
		n.ContrastColor = color.Black
		return n, false
	}
	n.ContrastColor = color.Contrast(n.Color)
	return n, true
}

// Draft is the payload of a create call. The backend assigns the ID.
type Draft struct {
	Content       string    `json:"content"`
	Color         string    `json:"color"`
	TextColor     string    `json:"text_color"`
	PositionX     float64   `json:"position_x"`
	PositionY     float64   `json:"position_y"`
	IsExpanded    bool      `json:"is_expanded"`
	ContrastColor string    `json:"contrast_color"`
	CreatedAt     time.Time `json:"created_at"`
	Height        float64   `json:"height"`
}

// Note materializes the draft with the given id.
func (d Draft) Note(id int64) Note {
	return Note{
		ID:            id,
		Content:       d.Content,
		Color:         d.Color,
		TextColor:     d.TextColor,
		ContrastColor: d.ContrastColor,
		PositionX:     d.PositionX,
		PositionY:     d.PositionY,
		IsExpanded:    d.IsExpanded,
		Height:        d.Height,
		CreatedAt:     d.CreatedAt,
	}
}

// Patch is a partial update. Nil fields are left untouched and omitted on the wire.
type Patch struct {
	Content       *string  `json:"content,omitempty"`
	Color         *string  `json:"color,omitempty"`
	TextColor     *string  `json:"text_color,omitempty"`
	ContrastColor *string  `json:"contrast_color,omitempty"`
	PositionX     *float64 `json:"position_x,omitempty"`
	PositionY     *float64 `json:"position_y,omitempty"`
	IsExpanded    *bool    `json:"is_expanded,omitempty"`
	Height        *float64 `json:"height,omitempty"`
}

// ContentPatch sets the note text.
func ContentPatch(content string) Patch { return Patch{Content: &content} }

// PositionPatch moves the note to canvas coordinates x, y.
func PositionPatch(x, y float64) Patch { return Patch{PositionX: &x, PositionY: &y} }

// HeightPatch sets the rendered height of the note.
func HeightPatch(h float64) Patch { return Patch{Height: &h} }

// ColorPatch sets the background color together with its contrast color.
func ColorPatch(bg, contrast string) Patch { return Patch{Color: &bg, ContrastColor: &contrast} }

// TextColorPatch sets the text color.
func TextColorPatch(c string) Patch { return Patch{TextColor: &c} }

// ExpandedPatch expands or collapses the note.
func ExpandedPatch(expanded bool) Patch { return Patch{IsExpanded: &expanded} }

// IsZero reports whether the patch changes nothing.
func (p Patch) IsZero() bool {
	return p == Patch{}
}

// Apply returns n with the patch fields set.
func (p Patch) Apply(n Note) Note {
	if p.Content != nil {
		n.Content = *p.Content
	}
	if p.Color != nil {
		n.Color = *p.Color
	}
	if p.TextColor != nil {
		n.TextColor = *p.TextColor
	}
	if p.ContrastColor != nil {
		n.ContrastColor = *p.ContrastColor
	}
	if p.PositionX != nil {
		n.PositionX = *p.PositionX
	}
	if p.PositionY != nil {
		n.PositionY = *p.PositionY
	}
	if p.IsExpanded != nil {
		n.IsExpanded = *p.IsExpanded
	}
	if p.Height != nil {
		n.Height = *p.Height
	}
	return n
}

// Copy returns dst with the fields named by the patch taken from src.
// The patch values themselves are ignored.
func (p Patch) Copy(dst, src Note) Note {
	if p.Content != nil {
		dst.Content = src.Content
	}
	if p.Color != nil {
		dst.Color = src.Color
	}
	if p.TextColor != nil {
		dst.TextColor = src.TextColor
	}
	if p.ContrastColor != nil {
		dst.ContrastColor = src.ContrastColor
	}
	if p.PositionX != nil {
		dst.PositionX = src.PositionX
	}
	if p.PositionY != nil {
		dst.PositionY = src.PositionY
	}
	if p.IsExpanded != nil {
		dst.IsExpanded = src.IsExpanded
	}
	if p.Height != nil {
		dst.Height = src.Height
	}
	return dst
}

// Fields lists the wire names of the fields the patch sets.
func (p Patch) Fields() []string {
	var fields []string
	if p.Content != nil {
		fields = append(fields, "content")
	}
	if p.Color != nil {
		fields = append(fields, "color")
	}
	if p.TextColor != nil {
		fields = append(fields, "text_color")
	}
	if p.ContrastColor != nil {
		fields = append(fields, "contrast_color")
	}
	if p.PositionX != nil {
		fields = append(fields, "position_x")
	}
	if p.PositionY != nil {
		fields = append(fields, "position_y")
	}
	if p.IsExpanded != nil {
		fields = append(fields, "is_expanded")
	}
	if p.Height != nil {
		fields = append(fields, "height")
	}
	return fields
}
