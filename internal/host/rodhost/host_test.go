package rodhost

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-rod/rod/lib/proto"

	"github.com/jmylchreest/swatchwise/internal/agent"
	"github.com/jmylchreest/swatchwise/internal/catalog"
	"github.com/jmylchreest/swatchwise/internal/colour"
	"github.com/jmylchreest/swatchwise/internal/sampler"
	"github.com/jmylchreest/swatchwise/pkg/protocol"
)

func TestParseCaptureFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    proto.PageCaptureScreenshotFormat
		wantErr bool
	}{
		{"", proto.PageCaptureScreenshotFormatPng, false},
		{"PNG", proto.PageCaptureScreenshotFormatPng, false},
		{"jpg", proto.PageCaptureScreenshotFormatJpeg, false},
		{"webp", proto.PageCaptureScreenshotFormatWebp, false},
		{"bmp", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCaptureFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCaptureFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestParsePageEvent(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    PageEvent
		wantErr bool
	}{
		{
			name:    "move",
			payload: `{"kind":"moved","x":12.5,"y":40,"width":1280,"height":720}`,
			want:    PageEvent{Kind: "moved", X: 12.5, Y: 40, Viewport: sampler.Viewport{Width: 1280, Height: 720}},
		},
		{
			name:    "scroll",
			payload: `{"kind":"scrolled","width":800,"height":600}`,
			want:    PageEvent{Kind: "scrolled", Viewport: sampler.Viewport{Width: 800, Height: 600}},
		},
		{name: "missing kind", payload: `{"x":1}`, wantErr: true},
		{name: "unknown kind", payload: `{"kind":"hovered"}`, wantErr: true},
		{name: "not json", payload: `nope`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePageEvent(tt.payload)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownPageEvent) {
					t.Fatalf("Expected ErrUnknownPageEvent, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePageEvent failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestNewView(t *testing.T) {
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("Failed to load catalog: %v", err)
	}
	red := colour.RGB{R: 255}
	matches := cat.IdentifyRGB(red)
	hsv := colour.RGBToHSV(red)

	view := NewView(agent.Identification{
		Hex:         red.Hex(),
		RGBA:        colour.RGBA{R: 255, A: 255},
		HSV:         hsv,
		Description: hsv.Describe(),
		Name:        matches.Name,
		Seasons:     matches.Seasons,
	})

	if view.Background != "#ff0000" {
		t.Errorf("Expected background #ff0000, got %s", view.Background)
	}
	if view.Foreground != "#ffffff" {
		t.Errorf("Expected white text on red, got %s", view.Foreground)
	}
	if len(view.Lines) < 3 || !strings.HasPrefix(view.Lines[0], "#FF0000") {
		t.Fatalf("Unexpected lines %q", view.Lines)
	}
	if !strings.HasPrefix(view.Lines[2], "name: Red") {
		t.Errorf("Expected exact name line, got %q", view.Lines[2])
	}
}

func TestHostWithoutBrowser(t *testing.T) {
	h, err := New(Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := h.OpenTab(context.Background(), "https://example.com"); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Expected ErrNotStarted, got %v", err)
	}
	if _, err := h.CaptureVisible(context.Background(), 1); !errors.Is(err, ErrUnknownTab) {
		t.Errorf("Expected ErrUnknownTab, got %v", err)
	}
	if err := h.CloseTab(1); !errors.Is(err, ErrUnknownTab) {
		t.Errorf("Expected ErrUnknownTab from CloseTab, got %v", err)
	}
	if err := h.Activate(context.Background(), 1); !errors.Is(err, ErrUnknownTab) {
		t.Errorf("Expected ErrUnknownTab from Activate, got %v", err)
	}

	h.Action(1)
	ev := <-h.Events()
	if ev.Kind != "action" || ev.Tab.ID != protocol.TabID(1) {
		t.Errorf("Unexpected event %+v", ev)
	}

	if err := h.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, ok := <-h.Events(); ok {
		t.Error("Expected event stream closed")
	}
	h.Action(2)
}

func TestNewRejectsBadFormat(t *testing.T) {
	if _, err := New(Config{CaptureFormat: "tiff"}); err == nil {
		t.Error("Expected error for unsupported capture format")
	}
}
