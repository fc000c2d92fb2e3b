package termhost

import (
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
	"github.com/joeycumines/nativebridge/internal/mount"
	zone "github.com/lrstanley/bubblezone"
	"github.com/rivo/uniseg"
)

// View types understood by the host's factory.
const (
	TypeBox    = "box"
	TypeText   = "text"
	TypeButton = "button"
	TypeScroll = "scroll"
)

// renderer is implemented by every termhost view.
type renderer interface {
	render() string
}

// props holds a view's merged properties.
type props struct {
	values mount.Props
}

func (p *props) merge(delta mount.Props) {
	if p.values == nil {
		p.values = make(mount.Props, len(delta))
	}
	for k, v := range delta {
		if v == nil {
			delete(p.values, k)
			continue
		}
		p.values[k] = v
	}
}

func (p *props) str(key string) string {
	s, _ := p.values[key].(string)
	return s
}

func (p *props) flag(key string) bool {
	b, _ := p.values[key].(bool)
	return b
}

func (p *props) num(key string) (int, bool) {
	switch n := p.values[key].(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// style applies the shared color and size props.
func (p *props) style() lipgloss.Style {
	s := lipgloss.NewStyle()
	if c := p.str("foreground"); c != "" {
		s = s.Foreground(lipgloss.Color(c))
	}
	if c := p.str("background"); c != "" {
		s = s.Background(lipgloss.Color(c))
	}
	if p.flag("bold") {
		s = s.Bold(true)
	}
	if w, ok := p.num("width"); ok && w > 0 {
		s = s.Width(w)
	}
	return s
}

// Box is a container laying its children out in a column, or a row when
// direction is "row". Props: direction, border, padding, foreground,
// background, width.
type Box struct {
	props
	children []mount.View
}

var (
	_ mount.Container = (*Box)(nil)
	_ mount.Measurer  = (*Box)(nil)
)

// SetProps implements mount.View.
func (b *Box) SetProps(p mount.Props) { b.merge(p) }

// InsertChild implements mount.Container.
func (b *Box) InsertChild(child mount.View, index int) {
	b.children = slices.Insert(b.children, index, child)
}

// RemoveChild implements mount.Container.
func (b *Box) RemoveChild(child mount.View) {
	if i := slices.Index(b.children, child); i >= 0 {
		b.children = slices.Delete(b.children, i, i+1)
	}
}

// Measure implements mount.Measurer.
func (b *Box) Measure() mount.Size {
	out := b.render()
	return mount.Size{Width: lipgloss.Width(out), Height: lipgloss.Height(out)}
}

func (b *Box) render() string {
	var content string
	if b.str("direction") == "row" {
		content = lipgloss.JoinHorizontal(lipgloss.Top, renderAll(b.children)...)
	} else {
		content = lipgloss.JoinVertical(lipgloss.Left, renderAll(b.children)...)
	}
	s := b.style()
	if b.flag("border") {
		s = s.Border(lipgloss.RoundedBorder())
	}
	if n, ok := b.num("padding"); ok && n > 0 {
		s = s.Padding(n)
	}
	return s.Render(content)
}

func renderAll(views []mount.View) []string {
	parts := make([]string, 0, len(views))
	for _, v := range views {
		if r, ok := v.(renderer); ok {
			parts = append(parts, r.render())
		}
	}
	return parts
}

// Text is a leaf showing its text prop. Props: text, bold, foreground,
// background, maxWidth (truncates by grapheme with an ellipsis).
type Text struct {
	props
}

var _ mount.Measurer = (*Text)(nil)

// SetProps implements mount.View.
func (t *Text) SetProps(p mount.Props) { t.merge(p) }

// Measure implements mount.Measurer. Widths are in terminal cells.
func (t *Text) Measure() mount.Size {
	lines := strings.Split(t.text(), "\n")
	var width int
	for _, l := range lines {
		width = max(width, uniseg.StringWidth(l))
	}
	return mount.Size{Width: width, Height: len(lines)}
}

func (t *Text) text() string {
	s := t.str("text")
	if n, ok := t.num("maxWidth"); ok && n > 0 {
		s = truncate(s, n, "…")
	}
	return s
}

func (t *Text) render() string {
	return t.style().Render(t.text())
}

// truncate shortens s to at most maxWidth cells, ending in tail.
func truncate(s string, maxWidth int, tail string) string {
	if uniseg.StringWidth(s) <= maxWidth {
		return s
	}
	tailWidth := uniseg.StringWidth(tail)
	if tailWidth > maxWidth {
		return tail
	}
	target := maxWidth - tailWidth
	var (
		b       strings.Builder
		current int
		cluster string
		width   int
	)
	state := -1
	for rest := s; len(rest) > 0; {
		cluster, rest, width, state = uniseg.FirstGraphemeClusterInString(rest, state)
		if current+width > target {
			break
		}
		current += width
		b.WriteString(cluster)
	}
	b.WriteString(tail)
	return b.String()
}

// Button is a clickable leaf. Its rendering is zone-marked so a mouse press
// inside it becomes a "press" event for its tag. Props: label, foreground,
// background.
type Button struct {
	props
	tag     int
	zoneID  string
	zones   *zone.Manager
	release func(tag int)
}

var (
	_ mount.Measurer = (*Button)(nil)
	_ mount.Releaser = (*Button)(nil)
)

// SetProps implements mount.View.
func (b *Button) SetProps(p mount.Props) { b.merge(p) }

// Release implements mount.Releaser.
func (b *Button) Release() {
	if b.release != nil {
		b.release(b.tag)
	}
}

// Measure implements mount.Measurer.
func (b *Button) Measure() mount.Size {
	out := b.face()
	return mount.Size{Width: lipgloss.Width(out), Height: lipgloss.Height(out)}
}

func (b *Button) face() string {
	return b.style().Border(lipgloss.RoundedBorder()).Padding(0, 1).Render(b.str("label"))
}

func (b *Button) render() string {
	return b.zones.Mark(b.zoneID, b.face())
}

// Scroll is a column container clipped to a window of its content. The
// mouse wheel moves the window natively; the host reports each move as a
// "scroll" event. Props: height, width, offset (sets the position).
type Scroll struct {
	props
	children []mount.View
	tag      int
	zoneID   string
	zones    *zone.Manager
	release  func(tag int)
	offset   int
}

var (
	_ mount.Container = (*Scroll)(nil)
	_ mount.Measurer  = (*Scroll)(nil)
	_ mount.Releaser  = (*Scroll)(nil)
)

// SetProps implements mount.View.
func (s *Scroll) SetProps(p mount.Props) {
	s.merge(p)
	if n, ok := p["offset"]; ok && n != nil {
		s.offset, _ = s.num("offset")
	}
}

// InsertChild implements mount.Container.
func (s *Scroll) InsertChild(child mount.View, index int) {
	s.children = slices.Insert(s.children, index, child)
}

// RemoveChild implements mount.Container.
func (s *Scroll) RemoveChild(child mount.View) {
	if i := slices.Index(s.children, child); i >= 0 {
		s.children = slices.Delete(s.children, i, i+1)
	}
}

// Release implements mount.Releaser.
func (s *Scroll) Release() {
	if s.release != nil {
		s.release(s.tag)
	}
}

// Measure implements mount.Measurer.
func (s *Scroll) Measure() mount.Size {
	out := s.window()
	return mount.Size{Width: lipgloss.Width(out), Height: lipgloss.Height(out)}
}

// Offset returns the first visible content line.
func (s *Scroll) Offset() int { return s.offset }

// scrollBy moves the window by delta lines and reports whether it moved.
func (s *Scroll) scrollBy(delta int) bool {
	before := s.offset
	vp := s.viewport(s.content())
	vp.SetYOffset(s.offset + delta)
	s.offset = vp.YOffset
	return s.offset != before
}

func (s *Scroll) content() string {
	return lipgloss.JoinVertical(lipgloss.Left, renderAll(s.children)...)
}

func (s *Scroll) viewport(content string) viewport.Model {
	width := lipgloss.Width(content)
	if w, ok := s.num("width"); ok && w > 0 {
		width = w
	}
	height := lipgloss.Height(content)
	if h, ok := s.num("height"); ok && h > 0 {
		height = h
	}
	vp := viewport.New(width, height)
	vp.SetContent(content)
	vp.SetYOffset(s.offset)
	return vp
}

func (s *Scroll) window() string {
	return s.viewport(s.content()).View()
}

func (s *Scroll) render() string {
	return s.zones.Mark(s.zoneID, s.window())
}
