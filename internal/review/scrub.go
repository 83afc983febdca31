package review

import (
	"sync"
)

// AudioHead is the playback element whose position the synchronizer drives.
type AudioHead interface {
	SeekTo(seconds float64)
}

// CursorFunc observes the chart cursor position.
type CursorFunc func(seconds float64)

// Synchronizer keeps the audio playback head and the feedback-graph cursor
// agreeing on a single authoritative current time. Audio-driven ticks and
// pointer drags both funnel through Seek; a re-entrancy guard stops the two
// observers from re-triggering each other in a cycle.
type Synchronizer struct {
	mu       sync.Mutex
	current  float64
	duration float64
	seeking  bool
	dragging bool

	audio   AudioHead
	cursors []CursorFunc

	// Shared zoom so one instant maps to the same horizontal pixel on both
	// the waveform and the graph.
	pxPerSec    float64
	viewportPx  float64
	scrollPx    float64
	edgeMargin  float64
	scrollSpeed float64 // px moved per drag step when the pointer hugs an edge
}

// NewSynchronizer creates a synchronizer for a recording of the given
// duration (seconds) driving the given audio head.
func NewSynchronizer(duration float64, audio AudioHead) *Synchronizer {
	return &Synchronizer{
		duration:    duration,
		audio:       audio,
		pxPerSec:    50,
		viewportPx:  800,
		edgeMargin:  50,
		scrollSpeed: 15,
	}
}

// OnCursor registers a chart cursor observer. Observers are invoked inside
// Seek, so from the caller's perspective the audio head and cursor never
// disagree.
func (s *Synchronizer) OnCursor(fn CursorFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors = append(s.cursors, fn)
}

// Seek moves both heads to the clamped time atomically from the caller's
// perspective. A seek already in progress absorbs re-entrant calls, so an
// observer reacting to this seek cannot start another one.
func (s *Synchronizer) Seek(t float64) {
	s.mu.Lock()
	if s.seeking {
		s.mu.Unlock()
		return
	}
	s.seeking = true
	t = clamp(t, 0, s.duration)
	s.current = t
	audio := s.audio
	cursors := make([]CursorFunc, len(s.cursors))
	copy(cursors, s.cursors)
	s.mu.Unlock()

	if audio != nil {
		audio.SeekTo(t)
	}
	for _, fn := range cursors {
		fn(t)
	}

	s.mu.Lock()
	s.seeking = false
	s.mu.Unlock()
}

// OnAudioTick handles a timeupdate from the audio element. While a drag is
// active the drag position wins and ticks are suppressed.
func (s *Synchronizer) OnAudioTick(t float64) {
	s.mu.Lock()
	suppressed := s.dragging || s.seeking
	s.mu.Unlock()
	if suppressed {
		return
	}
	s.Seek(t)
}

// BeginDrag enters the drag state: audio ticks stop propagating to the
// cursor until EndDrag.
func (s *Synchronizer) BeginDrag() {
	s.mu.Lock()
	s.dragging = true
	s.mu.Unlock()
}

// EndDrag leaves the drag state and halts edge auto-scroll immediately.
func (s *Synchronizer) EndDrag() {
	s.mu.Lock()
	s.dragging = false
	s.mu.Unlock()
}

// DragTo handles a pointer position (viewport-relative pixels) during a
// drag: it seeks to the corresponding time and auto-scrolls the viewport at
// a fixed speed when the pointer nears either edge.
func (s *Synchronizer) DragTo(pointerPx float64) {
	s.mu.Lock()
	if !s.dragging {
		s.mu.Unlock()
		return
	}
	pointerPx = clamp(pointerPx, 0, s.viewportPx)
	switch {
	case pointerPx < s.edgeMargin:
		s.scrollPx = clamp(s.scrollPx-s.scrollSpeed, 0, s.maxScrollLocked())
	case pointerPx > s.viewportPx-s.edgeMargin:
		s.scrollPx = clamp(s.scrollPx+s.scrollSpeed, 0, s.maxScrollLocked())
	}
	t := (s.scrollPx + pointerPx) / s.pxPerSec
	s.mu.Unlock()

	s.Seek(t)
}

// Dragging reports whether a drag session is active.
func (s *Synchronizer) Dragging() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dragging
}

// Current returns the authoritative current time.
func (s *Synchronizer) Current() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SetViewportWidth updates the visible width in pixels and re-applies the
// minimum zoom bound.
func (s *Synchronizer) SetViewportWidth(px float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if px > 0 {
		s.viewportPx = px
		s.pxPerSec = s.clampZoomLocked(s.pxPerSec)
	}
}

// SetZoom sets the shared pixels-per-second zoom. The lower bound fits the
// whole duration in the viewport, so you cannot zoom out past one screenful.
func (s *Synchronizer) SetZoom(pxPerSec float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pxPerSec = s.clampZoomLocked(pxPerSec)
	return s.pxPerSec
}

// Zoom returns the current pixels-per-second.
func (s *Synchronizer) Zoom() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pxPerSec
}

// ScrollOffset returns the viewport's horizontal scroll in pixels.
func (s *Synchronizer) ScrollOffset() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scrollPx
}

func (s *Synchronizer) clampZoomLocked(z float64) float64 {
	if s.duration <= 0 {
		return z
	}
	min := s.viewportPx / s.duration
	if z < min {
		return min
	}
	return z
}

func (s *Synchronizer) maxScrollLocked() float64 {
	content := s.duration * s.pxPerSec
	if content <= s.viewportPx {
		return 0
	}
	return content - s.viewportPx
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
