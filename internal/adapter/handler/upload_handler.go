package handler

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"path"

	"github.com/rs/zerolog/log"

	"github.com/rl1809/storefront/internal/adapter/upload"
	"github.com/rl1809/storefront/internal/core/domain"
)

const maxImagesPerRequest = 10

type uploadResponse struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

func (h *HTTPHandler) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxImagesPerRequest*upload.MaxFileSize+maxBodyBytes)
	if err := r.ParseMultipartForm(upload.MaxFileSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return upload.ErrTooLarge
		}
		return domain.InvalidInput("invalid multipart form: %v", err)
	}
	return nil
}

func removeTempFiles(r *http.Request) {
	if r.MultipartForm == nil {
		return
	}
	if err := r.MultipartForm.RemoveAll(); err != nil {
		log.Warn().Err(err).Msg("failed to remove multipart temp files")
	}
}

// discard deletes uploads saved earlier in a request that then failed.
func (h *HTTPHandler) discard(ctx context.Context, saved []uploadResponse) {
	for _, u := range saved {
		if err := h.files.Delete(ctx, u.URL); err != nil {
			log.Warn().Err(err).Str("url", u.URL).Msg("failed to delete partial upload")
		}
	}
}

func (h *HTTPHandler) store(r *http.Request, fh *multipart.FileHeader) (uploadResponse, error) {
	f, err := fh.Open()
	if err != nil {
		return uploadResponse{}, err
	}
	defer f.Close()

	url, err := h.files.Save(r.Context(), fh.Filename, f)
	if err != nil {
		return uploadResponse{}, err
	}
	return uploadResponse{URL: url, Filename: path.Base(url)}, nil
}

func (h *HTTPHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	if err := h.parseMultipart(w, r); err != nil {
		h.writeError(w, r, err)
		return
	}
	defer removeTempFiles(r)

	files := r.MultipartForm.File["image"]
	if len(files) == 0 {
		h.writeError(w, r, domain.InvalidInput("field %q is required", "image"))
		return
	}

	resp, err := h.store(r, files[0])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *HTTPHandler) UploadImages(w http.ResponseWriter, r *http.Request) {
	if err := h.parseMultipart(w, r); err != nil {
		h.writeError(w, r, err)
		return
	}
	defer removeTempFiles(r)

	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		h.writeError(w, r, domain.InvalidInput("field %q is required", "images"))
		return
	}
	if len(files) > maxImagesPerRequest {
		h.writeError(w, r, domain.InvalidInput("at most %d images per request", maxImagesPerRequest))
		return
	}

	out := make([]uploadResponse, 0, len(files))
	for _, fh := range files {
		resp, err := h.store(r, fh)
		if err != nil {
			h.discard(context.WithoutCancel(r.Context()), out)
			h.writeError(w, r, err)
			return
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusCreated, out)
}
