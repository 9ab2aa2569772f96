package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/prasetia/go-upload-cache/cache"
	"github.com/prasetia/go-upload-cache/store"
)

const defaultMaxUploadBytes = 64 << 20 // 64MB

type Options struct {
	MaxUploadBytes int64
}

type Option func(*Options)

func WithMaxUploadBytes(size int64) Option {
	return func(o *Options) {
		o.MaxUploadBytes = size
	}
}

func NewController(s store.Store, lookup *cache.Lookup, opts ...Option) Controller {
	o := Options{
		MaxUploadBytes: defaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return Controller{
		store:          s,
		lookup:         lookup,
		maxUploadBytes: o.MaxUploadBytes,
	}
}

// Controller serves uploads and lookups. Writes go straight to the store;
// reads go through the lookup cache.
type Controller struct {
	store          store.Store
	lookup         *cache.Lookup
	maxUploadBytes int64
}

type fileResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Mime string `json:"mime"`
	Size int64  `json:"size"`
}

func (c *Controller) Upload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Debug().Str("content_type", r.Header.Get("Content-Type")).Msg("Request Content Type")

		// limit the size of the request body
		r.Body = http.MaxBytesReader(w, r.Body, c.maxUploadBytes)
		if err := r.ParseMultipartForm(5 << 20); err != nil {
			log.Error().Err(err).Msg("Error Parsing the Form")
			writeError(w, http.StatusBadRequest, errors.New("error parsing the form"))
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, handler, err := r.FormFile("file")
		if err != nil {
			log.Error().Err(err).Msg("Error Retrieving the File")
			writeError(w, http.StatusBadRequest, errors.New("error retrieving the file"))
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			log.Error().Err(err).Msg("Error Reading the File")
			writeError(w, http.StatusInternalServerError, errors.New("error reading the file"))
			return
		}

		mime := handler.Header.Get("Content-Type")
		if mime == "" {
			mime = "application/octet-stream"
		}

		f, err := c.store.Create(r.Context(), handler.Filename, mime, data)
		if err != nil {
			log.Error().Err(err).Msg("Error Storing the File")
			writeError(w, http.StatusInternalServerError, errors.New("error storing the file"))
			return
		}

		log.Info().
			Str("file_name", f.Name).
			Int64("file_id", f.ID).
			Int("file_size", len(f.Data)).
			Msg("File Uploaded")

		w.Header().Add("Location", fmt.Sprintf("/api/v1/files/%d", f.ID))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(fileResponse{
			ID:   f.ID,
			Name: f.Name,
			Mime: f.Mime,
			Size: int64(len(f.Data)),
		})
	}
}

func (c *Controller) Head() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		fileID := vars["file_id"]
		log.Debug().Str("file_id", fileID).Msg("Check request path and query")

		id, err := strconv.ParseInt(fileID, 10, 64)
		if err != nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		ok, err := c.lookup.Exists(r.Context(), id)
		if err != nil {
			log.Error().Err(err).Int64("file_id", id).Msg("error checking the file")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (c *Controller) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		fileID := vars["file_id"]
		log.Debug().Str("file_id", fileID).Msg("Check request path and query")

		id, err := strconv.ParseInt(fileID, 10, 64)
		if err != nil {
			writeError(w, http.StatusNotFound, errors.New("file not found"))
			return
		}

		f, err := c.lookup.Get(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, errors.New("file not found"))
			return
		}
		if err != nil {
			log.Error().Err(err).Int64("file_id", id).Msg("error fetching the file")
			writeError(w, http.StatusInternalServerError, errors.New("error fetching the file"))
			return
		}

		w.Header().Set("Content-Type", f.Mime)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Name))
		w.Header().Set("Content-Length", strconv.Itoa(len(f.Data)))
		w.WriteHeader(http.StatusOK)
		w.Write(f.Data)
	}
}

type cError struct {
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	b, _ := json.Marshal(cError{Message: err.Error()})
	w.Write(b)
}
