// Package publishertest provides an in-memory release host for tests.
package publishertest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/google/go-github/v75/github"
)

// Upload is an asset received by the host.
type Upload struct {
	// ReleaseID is the release the asset was attached to.
	ReleaseID int64
	// Name is the asset name from the query string.
	Name string
	// ContentType is the request content type.
	ContentType string
	// Content is the uploaded body.
	Content []byte
}

// Host is a fake GitHub releases API backed by httptest.Server.
type Host struct {
	// Server serves the API under "/" and uploads under "/uploads/".
	Server *httptest.Server

	mu sync.Mutex

	releases map[string]*github.RepositoryRelease
	uploads  []Upload
	deleted  []int64
	created  int
	nextID   int64

	// authorization holds the last Authorization header seen.
	authorization string

	createStatus int
	uploadStatus int
}

// NewHost starts a host. It is closed when the test ends.
func NewHost(t testing.TB) *Host {
	t.Helper()

	h := &Host{
		releases: make(map[string]*github.RepositoryRelease),
		nextID:   1,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/{owner}/{repo}/releases/tags/{tag}", h.getByTag)
	mux.HandleFunc("POST /repos/{owner}/{repo}/releases", h.create)
	mux.HandleFunc("DELETE /repos/{owner}/{repo}/releases/{id}", h.remove)
	mux.HandleFunc("POST /uploads/repos/{owner}/{repo}/releases/{id}/assets", h.upload)

	h.Server = httptest.NewServer(mux)
	t.Cleanup(h.Server.Close)

	return h
}

// APIURL is the REST base URL.
func (h *Host) APIURL() string {
	return h.Server.URL + "/"
}

// UploadURL is the upload base URL.
func (h *Host) UploadURL() string {
	return h.Server.URL + "/uploads/"
}

// AddRelease registers an existing release for tag.
func (h *Host) AddRelease(tag string) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.addLocked(&github.RepositoryRelease{
		TagName: github.Ptr(tag),
		Name:    github.Ptr(tag),
	})
}

// FailCreate makes release creation answer with status.
func (h *Host) FailCreate(status int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.createStatus = status
}

// FailUpload makes asset uploads answer with status.
func (h *Host) FailUpload(status int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.uploadStatus = status
}

// Release returns the release stored for tag.
func (h *Host) Release(tag string) (*github.RepositoryRelease, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rel, ok := h.releases[tag]

	return rel, ok
}

// Created returns how many releases were created through the API.
func (h *Host) Created() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.created
}

// Uploads returns the received assets.
func (h *Host) Uploads() []Upload {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]Upload(nil), h.uploads...)
}

// Deleted returns the IDs of deleted releases.
func (h *Host) Deleted() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]int64(nil), h.deleted...)
}

// Authorization returns the last Authorization header.
func (h *Host) Authorization() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.authorization
}

func (h *Host) addLocked(rel *github.RepositoryRelease) int64 {
	id := h.nextID
	h.nextID++

	rel.ID = github.Ptr(id)
	rel.HTMLURL = github.Ptr(fmt.Sprintf("%s/releases/tag/%s", h.Server.URL, rel.GetTagName()))
	rel.UploadURL = github.Ptr(fmt.Sprintf("%s/uploads/releases/%d/assets{?name,label}", h.Server.URL, id))
	h.releases[rel.GetTagName()] = rel

	return id
}

func (h *Host) getByTag(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.authorization = r.Header.Get("Authorization")

	rel, ok := h.releases[r.PathValue("tag")]
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}

	writeJSON(w, http.StatusOK, rel)
}

func (h *Host) create(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.authorization = r.Header.Get("Authorization")

	if h.createStatus != 0 {
		writeError(w, h.createStatus, "Validation Failed")
		return
	}

	var rel github.RepositoryRelease
	if err := json.NewDecoder(r.Body).Decode(&rel); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, exists := h.releases[rel.GetTagName()]; exists {
		writeError(w, http.StatusUnprocessableEntity, "Validation Failed")
		return
	}

	h.addLocked(&rel)
	h.created++

	writeJSON(w, http.StatusCreated, &rel)
}

func (h *Host) remove(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	for tag, rel := range h.releases {
		if rel.GetID() == id {
			delete(h.releases, tag)
			h.deleted = append(h.deleted, id)
			w.WriteHeader(http.StatusNoContent)

			return
		}
	}

	writeError(w, http.StatusNotFound, "Not Found")
}

func (h *Host) upload(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.uploadStatus != 0 {
		writeError(w, h.uploadStatus, "upload rejected")
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	content, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	upload := Upload{
		ReleaseID:   id,
		Name:        r.URL.Query().Get("name"),
		ContentType: r.Header.Get("Content-Type"),
		Content:     content,
	}
	h.uploads = append(h.uploads, upload)

	writeJSON(w, http.StatusCreated, &github.ReleaseAsset{
		ID:                 github.Ptr(int64(len(h.uploads))),
		Name:               github.Ptr(upload.Name),
		ContentType:        github.Ptr(upload.ContentType),
		Size:               github.Ptr(len(content)),
		BrowserDownloadURL: github.Ptr(fmt.Sprintf("%s/download/%d/%s", h.Server.URL, id, upload.Name)),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
