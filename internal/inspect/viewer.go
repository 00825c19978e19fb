// Package inspect is a terminal viewer for the bindings of a running
// interception extension.
package inspect

import (
	"context"
	"fmt"
	"sync"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/interpose/internal/intercept"
)

// Source supplies what the viewer shows. *intercept.Extension satisfies it.
type Source interface {
	Entries() []intercept.EntryInfo
	Info() intercept.ExtensionInfo
	Metrics() *intercept.Metrics
}

var (
	styleNormal   = tcell.StyleDefault
	styleHeader   = tcell.StyleDefault.Bold(true)
	styleSelected = tcell.StyleDefault.Reverse(true)
	styleDim      = tcell.StyleDefault.Dim(true)
)

// Viewer lists entries, one per line, with the selected entry's metrics at
// the bottom.
type Viewer struct {
	mu     sync.Mutex
	screen tcell.Screen
	src    Source

	entries  []intercept.EntryInfo
	selected int
	offset   int
}

// New creates a viewer drawing to screen. The screen is initialized by Run.
func New(screen tcell.Screen, src Source) *Viewer {
	return &Viewer{screen: screen, src: src}
}

// NewTerminal creates a viewer on the process terminal.
func NewTerminal(src Source) (*Viewer, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	return New(screen, src), nil
}

// Run takes over the screen until the user quits or ctx is done.
func (v *Viewer) Run(ctx context.Context) error {
	if err := v.screen.Init(); err != nil {
		return fmt.Errorf("initializing screen: %w", err)
	}
	defer v.screen.Fini()

	v.Refresh()

	// PollEvent blocks; a nil event is returned once Fini runs.
	stop := context.AfterFunc(ctx, func() {
		v.screen.PostEvent(tcell.NewEventInterrupt(nil))
	})
	defer stop()

	for {
		ev := v.screen.PollEvent()
		if ev == nil || ctx.Err() != nil {
			return nil
		}
		if v.HandleEvent(ev) {
			return nil
		}
	}
}

// Refresh reloads the entries from the source and redraws.
func (v *Viewer) Refresh() {
	entries := v.src.Entries()

	v.mu.Lock()
	v.entries = entries
	if v.selected >= len(entries) {
		v.selected = max(len(entries)-1, 0)
	}
	v.mu.Unlock()

	v.Draw()
}

// HandleEvent applies one event and reports whether the viewer should quit.
func (v *Viewer) HandleEvent(ev tcell.Event) bool {
	switch e := ev.(type) {
	case *tcell.EventResize:
		v.screen.Sync()
		v.Draw()
	case *tcell.EventKey:
		switch e.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			return true
		case tcell.KeyUp:
			v.move(-1)
		case tcell.KeyDown:
			v.move(1)
		case tcell.KeyRune:
			switch e.Rune() {
			case 'q':
				return true
			case 'k':
				v.move(-1)
			case 'j':
				v.move(1)
			case 'r':
				v.Refresh()
			}
		}
	}
	return false
}

func (v *Viewer) move(delta int) {
	v.mu.Lock()
	next := v.selected + delta
	if next >= 0 && next < len(v.entries) {
		v.selected = next
	}
	v.mu.Unlock()
	v.Draw()
}

// Selected returns the highlighted entry.
func (v *Viewer) Selected() (intercept.EntryInfo, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.selected < len(v.entries) {
		return v.entries[v.selected], true
	}
	return intercept.EntryInfo{}, false
}

// Draw renders the current state.
func (v *Viewer) Draw() {
	v.mu.Lock()
	defer v.mu.Unlock()

	s := v.screen
	s.Clear()
	width, height := s.Size()
	if height < 4 {
		s.Show()
		return
	}

	info := v.src.Info()
	putString(s, 0, 0, width, styleHeader,
		fmt.Sprintf("interpose %s  scope=%s  entries=%d", info.Version, info.Scope, len(v.entries)))

	// Rows 1..height-3 list entries; the last two lines hold details and help.
	rows := height - 3
	if v.selected < v.offset {
		v.offset = v.selected
	}
	if v.selected >= v.offset+rows {
		v.offset = v.selected - rows + 1
	}

	if len(v.entries) == 0 {
		putString(s, 0, 1, width, styleDim, "no bindings")
	}
	for i := 0; i < rows && v.offset+i < len(v.entries); i++ {
		idx := v.offset + i
		e := v.entries[idx]
		style := styleNormal
		if idx == v.selected {
			style = styleSelected
		}
		putString(s, 0, i+1, width, style, fmt.Sprintf("%-32s -> %s", e.Key(), e.HandlerType))
	}

	putString(s, 0, height-2, width, styleDim, v.detail())
	putString(s, 0, height-1, width, styleDim, "q quit  j/k move  r refresh")
	s.Show()
}

// detail describes the selected entry's metrics. Called with mu held.
func (v *Viewer) detail() string {
	if v.selected >= len(v.entries) {
		return ""
	}
	key := v.entries[v.selected].Key()
	m := v.src.Metrics()
	if m == nil {
		return key + ": metrics disabled"
	}
	km, ok := m.KeyStats(key)
	if !ok {
		return key + ": not called yet"
	}
	return fmt.Sprintf("%s: calls=%d failures=%d avg=%s max=%s",
		key, km.InterceptCount, km.FailureCount, km.AverageDuration(), km.MaxDuration)
}

func putString(s tcell.Screen, x, y, width int, style tcell.Style, text string) {
	for _, r := range text {
		if x >= width {
			return
		}
		s.SetContent(x, y, r, nil, style)
		x++
	}
}
