package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/swatchwise/internal/agent"
	"github.com/jmylchreest/swatchwise/internal/bitmap"
	"github.com/jmylchreest/swatchwise/internal/catalog"
	"github.com/jmylchreest/swatchwise/internal/colour"
	"github.com/jmylchreest/swatchwise/internal/sampler"
	"github.com/jmylchreest/swatchwise/internal/security"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, colour.ErrMalformedHex),
		errors.Is(err, catalog.ErrUnknownKind),
		errors.Is(err, sampler.ErrInvalidViewport),
		errors.Is(err, sampler.ErrEmptyBitmap):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrNoData):
		return http.StatusNotFound
	case errors.Is(err, security.ErrSizeLimit):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Catalog.Stats())
}

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	if kind == "" {
		writeJSON(w, http.StatusOK, s.opts.Catalog.Entries())
		return
	}
	k, err := catalog.ParseKind(kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	entries := s.opts.Catalog.Filter(k)
	if entries == nil {
		entries = []catalog.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	kind := catalog.KindNames
	if q := r.URL.Query().Get("kind"); q != "" {
		k, err := catalog.ParseKind(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		kind = k
	}

	m, err := s.opts.Catalog.Lookup(chi.URLParam(r, "hex"), kind)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// identifyResponse is the colour facts plus catalog matches for one hex value.
type identifyResponse struct {
	Query       string             `json:"query"`
	RGB         colour.RGB         `json:"rgb"`
	HSL         colour.HSL         `json:"hsl"`
	HSV         colour.HSV         `json:"hsv"`
	Description colour.Description `json:"description"`
	Name        *catalog.Match     `json:"name,omitempty"`
	Seasons     *catalog.Match     `json:"seasons,omitempty"`
}

func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	rgb, err := colour.ParseHex(chi.URLParam(r, "hex"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	hsv := colour.RGBToHSV(rgb)
	ident := s.opts.Catalog.IdentifyRGB(rgb)
	writeJSON(w, http.StatusOK, identifyResponse{
		Query:       ident.Query,
		RGB:         rgb,
		HSL:         colour.RGBToHSL(rgb),
		HSV:         hsv,
		Description: hsv.Describe(),
		Name:        ident.Name,
		Seasons:     ident.Seasons,
	})
}

// handleSample reads a multipart "image" plus x, y and optional width, height form
// fields. Width and height default to the image size.
func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid multipart form: %w", err))
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing image: %w", err))
		return
	}
	defer file.Close()

	img, err := bitmap.DecodeReader(security.NewLimitedReader(file, s.opts.MaxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	x, errX := formFloat(r, "x", -1)
	y, errY := formFloat(r, "y", -1)
	b := img.Bounds()
	vw, errW := formFloat(r, "width", float64(b.Dx()))
	vh, errH := formFloat(r, "height", float64(b.Dy()))
	if err := errors.Join(errX, errY, errW, errH); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if x < 0 || y < 0 {
		writeError(w, http.StatusBadRequest, errors.New("x and y are required and must not be negative"))
		return
	}

	px, err := s.opts.Sampler.Sample(img, x, y, vw, vh)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, agent.Describe(s.opts.Catalog, px))
}

func formFloat(r *http.Request, key string, def float64) (float64, error) {
	v := r.FormValue(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return f, nil
}

// sessionSummary is a persisted session without its capture payload.
type sessionSummary struct {
	TabID      int       `json:"tab_id"`
	Identifier string    `json:"identifier"`
	SessionID  string    `json:"session_id,omitempty"`
	HasCapture bool      `json:"has_capture"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.opts.Sessions == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("no session store configured"))
		return
	}

	records, err := s.opts.Sessions.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	out := make([]sessionSummary, 0, len(records))
	for _, rec := range records {
		out = append(out, sessionSummary{
			TabID:      int(rec.TabID),
			Identifier: rec.Identifier,
			SessionID:  rec.SessionID,
			HasCapture: rec.LastCapture != "",
			UpdatedAt:  rec.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
