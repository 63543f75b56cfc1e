package storagetest

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
)

// GitHub is a fake of the GitHub contents API for a single repository. It
// enforces the sha check on update and delete the way GitHub does.
type GitHub struct {
	*httptest.Server

	Token string
	Repo  string

	mu      sync.Mutex
	files   map[string][]byte
	shas    map[string]string
	commits []string
	status  map[string]int
	gen     int
}

// NewGitHub starts a fake for owner/repo authenticated with token.
func NewGitHub(t testing.TB, token, repo string) *GitHub {
	t.Helper()
	g := &GitHub{
		Token:  token,
		Repo:   repo,
		files:  make(map[string][]byte),
		shas:   make(map[string]string),
		status: make(map[string]int),
	}
	g.Server = httptest.NewServer(http.HandlerFunc(g.serve))
	t.Cleanup(g.Close)
	return g
}

// ForceStatus makes every request for path answer with status.
func (g *GitHub) ForceStatus(path string, status int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status[path] = status
}

// File returns the stored bytes at path.
func (g *GitHub) File(path string) ([]byte, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.files[path]
	return d, ok
}

// SetFile stores a file as if committed by someone else.
func (g *GitHub) SetFile(path string, data []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.store(path, data)
}

// Commits returns the commit messages in order.
func (g *GitHub) Commits() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.commits...)
}

func (g *GitHub) store(path string, data []byte) {
	g.gen++
	h := sha1.Sum(append([]byte(path+string(rune(g.gen))), data...))
	g.files[path] = append([]byte(nil), data...)
	g.shas[path] = hex.EncodeToString(h[:])
}

func wrap60(s string) string {
	var sb strings.Builder
	for len(s) > 60 {
		sb.WriteString(s[:60])
		sb.WriteString("\n")
		s = s[60:]
	}
	sb.WriteString(s)
	sb.WriteString("\n")
	return sb.String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (g *GitHub) serve(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "token "+g.Token {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
		return
	}
	base := "/repos/" + g.Repo + "/contents"
	if !strings.HasPrefix(r.URL.Path, base) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, base), "/")

	g.mu.Lock()
	defer g.mu.Unlock()

	if st, ok := g.status[path]; ok {
		writeJSON(w, st, map[string]string{"message": http.StatusText(st)})
		return
	}

	switch r.Method {
	case http.MethodGet:
		g.get(w, path)
	case http.MethodPut:
		g.put(w, r, path)
	case http.MethodDelete:
		g.delete(w, r, path)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (g *GitHub) get(w http.ResponseWriter, path string) {
	if data, ok := g.files[path]; ok {
		writeJSON(w, http.StatusOK, map[string]string{
			"type":     "file",
			"name":     path[strings.LastIndex(path, "/")+1:],
			"path":     path,
			"sha":      g.shas[path],
			"encoding": "base64",
			"content":  wrap60(base64.StdEncoding.EncodeToString(data)),
		})
		return
	}

	var entries []map[string]string
	for p := range g.files {
		dir, name := "", p
		if i := strings.LastIndex(p, "/"); i >= 0 {
			dir, name = p[:i], p[i+1:]
		}
		if dir == path {
			entries = append(entries, map[string]string{"type": "file", "name": name, "path": p, "sha": g.shas[p]})
		}
	}
	if len(entries) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i]["name"] < entries[j]["name"] })
	writeJSON(w, http.StatusOK, entries)
}

func (g *GitHub) put(w http.ResponseWriter, r *http.Request, path string) {
	var req struct {
		Message string `json:"message"`
		Content string `json:"content"`
		Branch  string `json:"branch"`
		SHA     string `json:"sha"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "Invalid request"})
		return
	}
	current, exists := g.shas[path]
	if exists && req.SHA == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": `"sha" wasn't supplied`})
		return
	}
	if req.SHA != "" && req.SHA != current {
		writeJSON(w, http.StatusConflict, map[string]string{"message": path + " does not match " + req.SHA})
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "content is not valid Base64"})
		return
	}
	g.store(path, data)
	g.commits = append(g.commits, req.Message)

	status := http.StatusCreated
	if exists {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{
		"content": map[string]string{"path": path, "sha": g.shas[path]},
		"commit":  map[string]string{"message": req.Message},
	})
}

func (g *GitHub) delete(w http.ResponseWriter, r *http.Request, path string) {
	var req struct {
		Message string `json:"message"`
		SHA     string `json:"sha"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "Invalid request"})
		return
	}
	current, exists := g.shas[path]
	if !exists {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	if req.SHA != current {
		writeJSON(w, http.StatusConflict, map[string]string{"message": path + " does not match " + req.SHA})
		return
	}
	delete(g.files, path)
	delete(g.shas, path)
	g.commits = append(g.commits, req.Message)
	writeJSON(w, http.StatusOK, map[string]any{"commit": map[string]string{"message": req.Message}})
}
