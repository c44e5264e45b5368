package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/andresmejia3/facewatch/internal/descriptor"
	"github.com/andresmejia3/facewatch/internal/imageio"
	"github.com/andresmejia3/facewatch/internal/pipeline"
	"github.com/andresmejia3/facewatch/internal/types"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// respondJSON writes data as a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// HealthCheck reports that the server is up.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

type galleryEntry struct {
	Label  string `json:"label"`
	Source string `json:"source"`
}

// ListGallery returns the enrolled identities in gallery order.
func (s *Server) ListGallery(w http.ResponseWriter, r *http.Request) {
	entries := s.gallery.Entries()
	out := make([]galleryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, galleryEntry{Label: e.Label, Source: e.Source})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"count":   len(out),
		"entries": out,
	})
}

type identifyResponse struct {
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	Detections []types.Detection `json:"detections"`
}

// Identify recognizes every face in the uploaded image. The image is the
// request body or the multipart field "image".
func (s *Server) Identify(w http.ResponseWriter, r *http.Request) {
	img, err := s.readImage(w, r, "image")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer img.Close()

	s.engineMu.Lock()
	recs, err := s.engine.Process(img, s.gallery)
	s.engineMu.Unlock()
	if err != nil {
		s.logger.Error("identify failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "recognition failed")
		return
	}

	respondJSON(w, http.StatusOK, identifyResponse{
		Width:      img.Cols(),
		Height:     img.Rows(),
		Detections: types.FromRecognitions(recs),
	})
}

// Compare describes the first face of the multipart images "a" and "b" and
// compares them. The threshold query parameter overrides the default.
func (s *Server) Compare(w http.ResponseWriter, r *http.Request) {
	threshold := s.opts.CompareThreshold
	if v := r.URL.Query().Get("threshold"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil || t < -1 || t > 1 {
			respondError(w, http.StatusBadRequest, "threshold must be a number in [-1, 1]")
			return
		}
		threshold = t
	}

	r.Body = http.MaxBytesReader(w, r.Body, 2*s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "expected multipart form with images a and b")
		return
	}

	var (
		descs [2]descriptor.Descriptor
		boxes [2]types.Box
	)
	for i, field := range []string{"a", "b"} {
		img, err := formImage(r, field)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.engineMu.Lock()
		d, region, err := s.engine.Describe(img)
		s.engineMu.Unlock()
		img.Close()

		if errors.Is(err, pipeline.ErrNoFace) {
			respondError(w, http.StatusUnprocessableEntity, fmt.Sprintf("no face detected in image %s", field))
			return
		}
		if err != nil {
			s.logger.Error("compare failed", zap.String("field", field), zap.Error(err))
			respondError(w, http.StatusInternalServerError, "recognition failed")
			return
		}
		descs[i] = d
		boxes[i] = types.BoxFromRect(region)
	}

	c := descriptor.Compare(descs[0], descs[1], threshold)
	respondJSON(w, http.StatusOK, types.Comparison{
		Similarity: c.Similarity,
		Distance:   c.Distance,
		Threshold:  c.Threshold,
		Match:      c.Match,
		BoxA:       boxes[0],
		BoxB:       boxes[1],
	})
}

type sightingResponse struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Source     string    `json:"source"`
	FrameIndex int       `json:"frame_index"`
	Label      string    `json:"label"`
	Similarity float64   `json:"similarity"`
	Box        types.Box `json:"box"`
	SeenAt     string    `json:"seen_at"`
}

// ListSightings returns recorded sightings, optionally filtered by ?label=.
func (s *Server) ListSightings(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	sightings, err := s.opts.Sightings.ListSightings(r.Context(), r.URL.Query().Get("label"), limit)
	if err != nil {
		s.logger.Error("list sightings failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list sightings")
		return
	}

	out := make([]sightingResponse, 0, len(sightings))
	for _, st := range sightings {
		out = append(out, sightingResponse{
			ID:         st.ID,
			SessionID:  st.SessionID.String(),
			Source:     st.Source,
			FrameIndex: st.FrameIndex,
			Label:      st.Label,
			Similarity: st.Similarity,
			Box:        st.Box,
			SeenAt:     st.SeenAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// readImage decodes the request image from a multipart field or the raw body.
func (s *Server) readImage(w http.ResponseWriter, r *http.Request, field string) (gocv.Mat, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
			return gocv.NewMat(), fmt.Errorf("invalid multipart form: %w", err)
		}
		return formImage(r, field)
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("read body: %w", err)
	}
	return decode(data)
}

func formImage(r *http.Request, field string) (gocv.Mat, error) {
	f, _, err := r.FormFile(field)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("missing image %q", field)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("read image %q: %w", field, err)
	}
	return decode(data)
}

func decode(data []byte) (gocv.Mat, error) {
	img, err := imageio.Decode(data)
	if err != nil {
		img.Close()
		return gocv.NewMat(), errors.New("body is not a supported image")
	}
	return img, nil
}
