package rodhost

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-rod/rod/lib/proto"
	"github.com/hashicorp/go-hclog"
	"github.com/ysmood/gson"

	"github.com/jmylchreest/swatchwise/internal/agent"
	"github.com/jmylchreest/swatchwise/internal/sampler"
	"github.com/jmylchreest/swatchwise/pkg/protocol"
)

// BindingName is the page function the bridge script reports events through.
const BindingName = "__swatchwise_event"

// bridgeJS installs page listeners once per document. Cursor moves are coalesced to one
// report per animation frame.
const bridgeJS = `(() => {
	if (window.__swatchwiseBridge) return;
	window.__swatchwiseBridge = true;
	const send = (kind, extra) => {
		const fn = window.` + BindingName + `;
		if (typeof fn !== 'function') return;
		fn(JSON.stringify(Object.assign({
			kind: kind, width: window.innerWidth, height: window.innerHeight,
		}, extra || {})));
	};
	let pending = null;
	window.addEventListener('mousemove', (e) => {
		if (pending === null) requestAnimationFrame(() => { send('moved', pending); pending = null; });
		pending = { x: e.clientX, y: e.clientY };
	}, { passive: true });
	window.addEventListener('click', () => send('clicked'), true);
	window.addEventListener('scroll', () => send('scrolled'), { passive: true });
	window.addEventListener('resize', () => send('resized'));
	new MutationObserver((records) => {
		for (const r of records) for (const n of r.removedNodes) {
			if (n.nodeType === 1 && n.getAttribute('data-swatchwise') === 'overlay' && !n.hasAttribute('data-unmounting')) send('closed');
		}
	}).observe(document.documentElement, { childList: true });
})()`

// ErrUnknownPageEvent is returned by ParsePageEvent for payloads without a known kind.
var ErrUnknownPageEvent = errors.New("rodhost: unknown page event")

// PageEvent is one report from the bridge script.
type PageEvent struct {
	Kind     string
	X, Y     float64
	Viewport sampler.Viewport
}

// ParsePageEvent decodes a binding payload.
func ParsePageEvent(payload string) (PageEvent, error) {
	j := gson.NewFrom(payload)
	if !j.Has("kind") {
		return PageEvent{}, fmt.Errorf("%w: %s", ErrUnknownPageEvent, payload)
	}

	ev := PageEvent{
		Kind:     j.Get("kind").Str(),
		X:        j.Get("x").Num(),
		Y:        j.Get("y").Num(),
		Viewport: sampler.Viewport{Width: j.Get("width").Num(), Height: j.Get("height").Num()},
	}
	switch ev.Kind {
	case "moved", string(protocol.EventClicked), string(protocol.EventScrolled),
		string(protocol.EventResized), string(protocol.EventClosed):
		return ev, nil
	default:
		return PageEvent{}, fmt.Errorf("%w: kind %q", ErrUnknownPageEvent, ev.Kind)
	}
}

// PageAgent is the part of agent.Agent the bridge drives.
type PageAgent interface {
	Notify(ctx context.Context, kind protocol.EventKind) error
	Track(ctx context.Context, x, y float64, vp sampler.Viewport) (agent.Identification, error)
}

// Bridge forwards page events of tab to pa until ctx ends. Cursor moves are tracked
// through the overlay; identifications are passed to onTrack when it is non-nil.
func (h *Host) Bridge(ctx context.Context, tab protocol.TabID, pa PageAgent, onTrack func(agent.Identification)) error {
	page, err := h.Page(tab)
	if err != nil {
		return err
	}

	if err := (proto.RuntimeAddBinding{Name: BindingName}).Call(page); err != nil {
		h.logger.Warn("add binding failed (may already exist)", "tab", tab, "error", err)
	}
	if _, err := page.EvalOnNewDocument(bridgeJS); err != nil {
		return fmt.Errorf("failed to install bridge for new documents: %w", err)
	}
	if _, err := page.Eval(`() => ` + bridgeJS); err != nil {
		return fmt.Errorf("failed to install bridge: %w", err)
	}

	logger := h.logger.With("tab", tab)
	go page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != BindingName {
			return
		}
		ev, err := ParsePageEvent(e.Payload)
		if err != nil {
			logger.Warn("bad page event", "error", err)
			return
		}
		// The handlers call back into the browser, so they run off the event loop.
		go h.dispatch(ctx, logger, pa, ev, onTrack)
	})()

	return nil
}

func (h *Host) dispatch(ctx context.Context, logger hclog.Logger, pa PageAgent, ev PageEvent, onTrack func(agent.Identification)) {
	if ev.Kind == "moved" {
		ident, err := pa.Track(ctx, ev.X, ev.Y, ev.Viewport)
		if err != nil {
			logger.Debug("track failed", "error", err)
			return
		}
		if onTrack != nil {
			onTrack(ident)
		}
		return
	}

	if err := pa.Notify(ctx, protocol.EventKind(ev.Kind)); err != nil {
		logger.Debug("notify failed", "event", ev.Kind, "error", err)
	}
}
