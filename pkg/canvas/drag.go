// Package canvas translates pointer gestures into position intents.
//
// A drag shows a transient position on every move and commits exactly one
// position to the note store when it stops.
package canvas

import (
	"errors"
	"math"
	"sync"
)

var (
	ErrDragging    = errors.New("canvas: note is already being dragged")
	ErrNotDragging = errors.New("canvas: drag already finished")
)

// Point is a canvas coordinate.
type Point struct {
	X, Y float64
}

// Size is the extent of a note on the canvas.
type Size struct {
	Width, Height float64
}

// PositionSink receives the committed position of a drag. *core.Store
// satisfies it.
type PositionSink interface {
	UpdatePosition(id int64, x, y float64) error
}

// Surface is the parent area notes are dragged on. Positions are kept inside
// it; a zero Width or Height leaves that axis unbounded.
type Surface struct {
	Width, Height float64

	sink  PositionSink
	mu    sync.Mutex
	drags map[int64]*Drag
}

// NewSurface creates a surface that commits drags to sink.
func NewSurface(width, height float64, sink PositionSink) *Surface {
	return &Surface{Width: width, Height: height, sink: sink, drags: make(map[int64]*Drag)}
}

// Clamp keeps a note of the given size inside the surface.
func (s *Surface) Clamp(p Point, size Size) Point {
	return Point{
		X: clampAxis(p.X, size.Width, s.Width),
		Y: clampAxis(p.Y, size.Height, s.Height),
	}
}

func clampAxis(v, extent, limit float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Max(v, 0)
	if limit > 0 {
		v = math.Min(v, math.Max(limit-extent, 0))
	}
	return v
}

// Start begins dragging note id, currently at pos, grabbed at pointer.
func (s *Surface) Start(id int64, pos Point, size Size, pointer Point) (*Drag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.drags[id]; busy {
		return nil, ErrDragging
	}
	d := &Drag{
		surface: s,
		id:      id,
		size:    size,
		offset:  Point{X: pointer.X - pos.X, Y: pointer.Y - pos.Y},
		current: s.Clamp(pos, size),
	}
	s.drags[id] = d
	return d, nil
}

// Active returns the number of drags in progress.
func (s *Surface) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.drags)
}

func (s *Surface) finish(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drags, id)
}

// Drag is one gesture in progress.
type Drag struct {
	surface *Surface
	id      int64
	size    Size
	offset  Point // pointer position relative to the note corner

	mu      sync.Mutex
	current Point
	done    bool
}

// ID returns the dragged note.
func (d *Drag) ID() int64 { return d.id }

// Move updates the transient position. Nothing is persisted.
func (d *Drag) Move(pointer Point) Point {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.done {
		d.current = d.surface.Clamp(Point{X: pointer.X - d.offset.X, Y: pointer.Y - d.offset.Y}, d.size)
	}
	return d.current
}

// Position returns the transient position.
func (d *Drag) Position() Point {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Stop ends the gesture at pointer and commits the final position.
func (d *Drag) Stop(pointer Point) (Point, error) {
	p := d.Move(pointer)

	d.mu.Lock()
	if d.done {
		d.mu.Unlock()
		return p, ErrNotDragging
	}
	d.done = true
	d.mu.Unlock()

	d.surface.finish(d.id)
	return p, d.surface.sink.UpdatePosition(d.id, p.X, p.Y)
}

// Cancel ends the gesture without committing anything.
func (d *Drag) Cancel() {
	d.mu.Lock()
	already := d.done
	d.done = true
	d.mu.Unlock()
	if !already {
		d.surface.finish(d.id)
	}
}
