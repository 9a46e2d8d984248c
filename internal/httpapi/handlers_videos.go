package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"vodpipe/internal/services"
	"vodpipe/internal/videos"
)

const maxTextField = 64 << 10

type videoListResponse struct {
	Videos []videos.Detail `json:"videos"`
	Meta   listMeta        `json:"meta"`
}

type listMeta struct {
	Total      int    `json:"total"`
	Page       int    `json:"page"`
	PerPage    int    `json:"per_page"`
	TotalPages int    `json:"total_pages"`
	Base       string `json:"base"`
}

// handleUpload streams a multipart body. The video part goes straight to
// disk as it arrives; title and description may come before or after it.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+multipartOverhead)
	}
	reader, err := r.MultipartReader()
	if err != nil {
		s.writeServiceError(w, r, services.Wrap(services.ErrUpload, "upload", "parse body", "expected multipart/form-data", err))
		return
	}

	var (
		staged *videos.Staged
		meta   videos.Metadata
	)
	abort := func(err error) {
		s.videos.Discard(staged)
		s.writeServiceError(w, r, err)
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			abort(services.Wrap(services.ErrUpload, "upload", "read part", "", err))
			return
		}
		switch part.FormName() {
		case "video":
			if staged != nil {
				part.Close()
				abort(services.Wrap(services.ErrValidation, "upload", "read part", "more than one video part", nil))
				return
			}
			if strings.TrimSpace(part.FileName()) == "" {
				part.Close()
				abort(services.Wrap(services.ErrValidation, "upload", "read part", "video part has no filename", nil))
				return
			}
			staged, err = s.videos.Stage(r.Context(), part)
			part.Close()
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
		case "title":
			meta.Title, err = readTextPart(part)
			if err != nil {
				abort(err)
				return
			}
		case "description":
			meta.Description, err = readTextPart(part)
			if err != nil {
				abort(err)
				return
			}
		default:
			_, _ = io.Copy(io.Discard, part)
			part.Close()
		}
	}

	video, err := s.videos.Commit(r.Context(), staged, meta)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, video)
}

func readTextPart(part *multipart.Part) (string, error) {
	defer part.Close()
	data, err := io.ReadAll(io.LimitReader(part, maxTextField+1))
	if err != nil {
		return "", services.Wrap(services.ErrUpload, "upload", "read field", part.FormName(), err)
	}
	if len(data) > maxTextField {
		return "", services.Wrap(services.ErrValidation, "upload", "read field",
			fmt.Sprintf("%s exceeds %d bytes", part.FormName(), maxTextField), nil)
	}
	return string(data), nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	perPage, _ := strconv.Atoi(query.Get("per_page"))

	result, err := s.videos.List(r.Context(), page, perPage)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	base := baseURL(r)
	for i := range result.Videos {
		absolutize(&result.Videos[i], base)
	}
	writeJSON(w, http.StatusOK, videoListResponse{
		Videos: result.Videos,
		Meta: listMeta{
			Total:      result.Total,
			Page:       result.Page,
			PerPage:    result.PerPage,
			TotalPages: result.TotalPages,
			Base:       base,
		},
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	detail, err := s.videos.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	absolutize(detail, baseURL(r))
	writeJSON(w, http.StatusOK, detail)
}

func absolutize(d *videos.Detail, base string) {
	d.StreamURL = base + d.StreamURL
	d.ThumbnailURL = base + d.ThumbnailURL
}

// baseURL is scheme://host as seen by the client.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); proto == "http" || proto == "https" {
		scheme = proto
	}
	host := r.Host
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-Host")); fwd != "" {
		host = fwd
	}
	return scheme + "://" + host
}
