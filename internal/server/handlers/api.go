package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/twinpane/internal/errors"
	"github.com/3leaps/twinpane/pkg/conflict"
	"github.com/3leaps/twinpane/pkg/listing"
	"github.com/3leaps/twinpane/pkg/localfs"
	"github.com/3leaps/twinpane/pkg/output"
	"github.com/3leaps/twinpane/pkg/store"
	"github.com/3leaps/twinpane/pkg/transfer"
)

// API serves bucket operations over HTTP.
type API struct {
	client *store.Client
	lister *listing.Lister
	walker *listing.Walker
	logger *zap.Logger

	readOnly bool
}

// NewAPI creates the bucket API. A nil logger discards.
func NewAPI(client *store.Client, lister *listing.Lister, walker *listing.Walker, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{client: client, lister: lister, walker: walker, logger: logger}
}

// SetReadOnly makes every mutating route answer 403.
func (a *API) SetReadOnly(v bool) {
	a.readOnly = v
}

// Routes mounts the API on r.
func (a *API) Routes(r chi.Router) {
	r.Get("/list", a.List)
	r.Get("/stat", a.Stat)
	r.Get("/objects", a.GetObject)

	r.Group(func(r chi.Router) {
		r.Use(a.writable)
		r.Post("/folders", a.CreateFolder)
		r.Post("/rename", a.Rename)
		r.Put("/objects", a.PutObject)
		r.Delete("/objects", a.DeleteObject)
	})
}

func (a *API) writable(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.readOnly {
			apperrors.WriteError(w, http.StatusForbidden, apperrors.HTTPError{
				Code:      apperrors.CodeAccessDenied,
				Message:   "server is read-only",
				RequestID: r.Header.Get("X-Request-ID"),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListResponse is one level of the bucket.
type ListResponse struct {
	Prefix     string               `json:"prefix"`
	Entries    []output.EntryRecord `json:"entries"`
	Incomplete bool                 `json:"incomplete"`
}

// List returns the folders and files directly under ?prefix=.
func (a *API) List(w http.ResponseWriter, r *http.Request) {
	l, err := a.lister.ListPrefix(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse{
		Prefix:     l.Prefix,
		Entries:    output.EntryRecords(l),
		Incomplete: l.Incomplete,
	})
}

// Stat reports the existence state of ?key=. Ambiguous states are part of
// the answer, not request failures.
func (a *API) Stat(w http.ResponseWriter, r *http.Request) {
	key, ok := requireKey(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, output.NewStatRecord(a.client.Stat(r.Context(), key)))
}

type createFolderRequest struct {
	Prefix      string `json:"prefix"`
	ReplaceFile bool   `json:"replace_file"`
}

// CreateFolder creates every level of the requested prefix.
func (a *API) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var req createFolderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	confirm := transfer.Never
	if req.ReplaceFile {
		confirm = transfer.Always
	}
	prefix, err := a.newTransfer(conflict.Skip, confirm).CreateFolder(r.Context(), "", req.Prefix)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"prefix": prefix})
}

type renameRequest struct {
	Key        string `json:"key"`
	NewName    string `json:"new_name"`
	OnConflict string `json:"on_conflict"`
}

// Rename renames a file within its folder. A skipped rename answers
// with the unchanged key.
func (a *API) Rename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Key == "" {
		respondWithError(w, r, apperrors.NewBadRequest("key is required"))
		return
	}
	decision, err := parseConflict(req.OnConflict)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	newKey, renamed, err := a.newTransfer(decision, transfer.Never).Rename(r.Context(), req.Key, req.NewName)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	if !renamed {
		newKey = req.Key
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": newKey, "renamed": renamed})
}

// GetObject streams ?key= to the client.
func (a *API) GetObject(w http.ResponseWriter, r *http.Request) {
	key, ok := requireKey(w, r)
	if !ok {
		return
	}
	st := a.client.Stat(r.Context(), key)
	switch {
	case st.State == store.NotFound:
		apperrors.WriteError(w, http.StatusNotFound, apperrors.HTTPError{
			Code:      apperrors.CodeNotFound,
			Message:   fmt.Sprintf("object %q not found", key),
			RequestID: r.Header.Get("X-Request-ID"),
		})
		return
	case st.Err != nil:
		respondWithError(w, r, st.Err)
		return
	}

	if st.Meta.ContentType != "" {
		w.Header().Set("Content-Type", st.Meta.ContentType)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("Content-Length", strconv.FormatInt(st.Meta.Size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(key)))
	if st.Meta.ETag != "" {
		w.Header().Set("ETag", st.Meta.ETag)
	}
	w.WriteHeader(http.StatusOK)

	// Headers are gone; a failure now can only be logged.
	if _, err := a.client.Download(r.Context(), key, w, nil); err != nil {
		a.logger.Warn("object stream interrupted", zap.String("key", key), zap.Error(err))
	}
}

// PutObject uploads the request body to ?key=. An existing key is resolved
// with ?on_conflict=, default skip. A plain file occupying a parent folder
// answers 409 unless ?replace_file=true.
func (a *API) PutObject(w http.ResponseWriter, r *http.Request) {
	key, ok := requireKey(w, r)
	if !ok {
		return
	}
	if strings.HasSuffix(key, "/") {
		respondWithError(w, r, apperrors.NewBadRequest("key must name a file"))
		return
	}
	decision, err := parseConflict(r.URL.Query().Get("on_conflict"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	replaceFile := false
	if v := r.URL.Query().Get("replace_file"); v != "" {
		if replaceFile, err = strconv.ParseBool(v); err != nil {
			respondWithError(w, r, apperrors.NewBadRequest(fmt.Sprintf("replace_file must be a boolean, got %q", v)))
			return
		}
	}

	ctx := r.Context()
	if parent := path.Dir(strings.Trim(key, "/")); parent != "." {
		confirm := transfer.Never
		if replaceFile {
			confirm = transfer.Always
		}
		ok, err := a.newTransfer(conflict.Skip, confirm).EnsureRemoteFolder(ctx, parent)
		if err != nil {
			respondWithError(w, r, err)
			return
		}
		if !ok {
			respondWithError(w, r, transfer.ErrDeclined)
			return
		}
	}

	target := key
	if a.client.Exists(ctx, key) {
		var write bool
		target, write, err = conflict.Apply(ctx, conflict.Policy(decision), conflict.Conflict{
			Op: output.OpUpload, Target: key, Remote: true,
		})
		if err != nil {
			respondWithError(w, r, err)
			return
		}
		if !write {
			writeJSON(w, http.StatusOK, map[string]any{"key": key, "skipped": true})
			return
		}
	}

	if err := a.client.UploadReader(ctx, target, r.Body, r.ContentLength, nil); err != nil {
		respondWithError(w, r, err)
		return
	}
	a.logger.Info("object uploaded", zap.String("key", target))
	writeJSON(w, http.StatusCreated, map[string]any{"key": target, "skipped": false})
}

// DeleteObject removes ?key=. A key ending in "/" removes the whole folder.
func (a *API) DeleteObject(w http.ResponseWriter, r *http.Request) {
	key, ok := requireKey(w, r)
	if !ok {
		return
	}
	item := transfer.Item{Key: key, Dir: strings.HasSuffix(key, "/")}
	sum, err := a.newTransfer(conflict.Skip, transfer.Never).DeleteEntries(r.Context(), []transfer.Item{item})
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": sum.Completed})
}

// newTransfer builds a request-scoped Transfer. HTTP operations never touch
// the local side, so it gets an empty in-memory tree.
func (a *API) newTransfer(decision conflict.Decision, confirm transfer.Confirmer) *transfer.Transfer {
	return transfer.New(a.client, a.walker, localfs.NewMemory(), transfer.Options{
		Resolver: conflict.Policy(decision),
		Confirm:  confirm,
		Logger:   a.logger,
	})
}

// parseConflict accepts the non-interactive decisions. Empty means skip.
func parseConflict(s string) (conflict.Decision, error) {
	if s == "" {
		return conflict.Skip, nil
	}
	d, err := conflict.ParseDecision(s)
	if err != nil || d == conflict.Rename {
		return 0, apperrors.NewBadRequest(fmt.Sprintf("on_conflict must be replace, copy or skip, got %q", s))
	}
	return d, nil
}

func requireKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := r.URL.Query().Get("key")
	if strings.Trim(key, "/") == "" {
		respondWithError(w, r, apperrors.NewBadRequest("key is required"))
		return "", false
	}
	return key, true
}

const maxJSONBody = 1 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respondWithError(w, r, apperrors.NewBadRequest("invalid JSON body: "+err.Error()))
		return false
	}
	return true
}
