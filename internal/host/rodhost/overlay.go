package rodhost

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"

	"github.com/jmylchreest/swatchwise/internal/agent"
	"github.com/jmylchreest/swatchwise/internal/colour"
	"github.com/jmylchreest/swatchwise/pkg/protocol"
)

const mountJS = `(id) => {
	if (document.getElementById(id)) return;
	const el = document.createElement('div');
	el.id = id;
	el.setAttribute('data-swatchwise', 'overlay');
	Object.assign(el.style, {
		position: 'fixed', right: '12px', bottom: '12px', zIndex: '2147483647',
		padding: '8px 12px', borderRadius: '6px', font: '12px/1.4 monospace',
		boxShadow: '0 2px 8px rgba(0,0,0,.35)', pointerEvents: 'none', whiteSpace: 'pre',
	});
	el.textContent = 'swatchwise';
	document.documentElement.appendChild(el);
}`

const unmountJS = `(id) => {
	const el = document.getElementById(id);
	if (!el) return;
	el.setAttribute('data-unmounting', '1');
	el.remove();
}`

const renderJS = `(id, view) => {
	const el = document.getElementById(id);
	if (!el) return false;
	el.style.background = view.background;
	el.style.color = view.foreground;
	el.textContent = view.lines.join('\n');
	return true;
}`

// Overlay draws the agent overlay into a page. It implements agent.Overlay.
type Overlay struct {
	page *rod.Page
}

// Overlay returns the overlay of tab.
func (h *Host) Overlay(tab protocol.TabID) (*Overlay, error) {
	page, err := h.Page(tab)
	if err != nil {
		return nil, err
	}
	return &Overlay{page: page}, nil
}

// Present reports whether the element id is attached to the document.
func (o *Overlay) Present(ctx context.Context, id string) (bool, error) {
	res, err := o.page.Context(ctx).Eval(`(id) => document.getElementById(id) !== null`, id)
	if err != nil {
		return false, fmt.Errorf("failed to query overlay: %w", err)
	}
	return res.Value.Bool(), nil
}

// Mount attaches the overlay element.
func (o *Overlay) Mount(ctx context.Context, id string) error {
	if _, err := o.page.Context(ctx).Eval(mountJS, id); err != nil {
		return fmt.Errorf("failed to mount overlay: %w", err)
	}
	return nil
}

// Unmount removes the overlay element.
func (o *Overlay) Unmount(ctx context.Context, id string) error {
	if _, err := o.page.Context(ctx).Eval(unmountJS, id); err != nil {
		return fmt.Errorf("failed to unmount overlay: %w", err)
	}
	return nil
}

// Render shows ident in the overlay element.
func (o *Overlay) Render(ctx context.Context, id string, ident agent.Identification) error {
	if _, err := o.page.Context(ctx).Eval(renderJS, id, NewView(ident)); err != nil {
		return fmt.Errorf("failed to render overlay: %w", err)
	}
	return nil
}

// View is the overlay content handed to the page script.
type View struct {
	Background string   `json:"background"`
	Foreground string   `json:"foreground"`
	Lines      []string `json:"lines"`
}

// NewView lays out ident for the overlay: swatch colours plus one line per fact.
func NewView(ident agent.Identification) View {
	rgb := ident.RGBA.RGB()
	fg := "#ffffff"
	if colour.Luminance(rgb) > 0.5 {
		fg = "#000000"
	}

	lines := []string{
		fmt.Sprintf("%s  rgb(%d, %d, %d)", colour.UpperHex(rgb), rgb.R, rgb.G, rgb.B),
		fmt.Sprintf("%s, %s, %s", ident.Description.Hue, ident.Description.Saturation, ident.Description.Value),
	}
	if m := ident.Name; m != nil && len(m.Entry.Names) > 0 {
		lines = append(lines, matchLine("name", m.Exact, m.Entry.Key, m.Entry.Names[0].Display()))
	}
	if m := ident.Seasons; m != nil && m.Entry.Seasons != nil && len(m.Entry.Seasons.Good) > 0 {
		lines = append(lines, matchLine("season", m.Exact, m.Entry.Key, m.Entry.Seasons.Good[0].Display()))
	}

	return View{Background: rgb.Hex(), Foreground: fg, Lines: lines}
}

func matchLine(label string, exact bool, key, text string) string {
	if exact {
		return fmt.Sprintf("%s: %s", label, text)
	}
	return fmt.Sprintf("%s: %s (nearest #%s)", label, text, key)
}
