package remotefs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/onedrive-fs/internal/graph"
)

const (
	fakeDriveID  = "ABC123"
	fakeRoot     = "/drive/" + fakeDriveID + "/root"
	fakePageSize = 2
)

// fixedToken is a graph.TokenSource returning a constant bearer token.
type fixedToken string

func (t fixedToken) Token(context.Context) (string, error) {
	return string(t), nil
}

type fakeNode struct {
	id       string
	isFolder bool
	data     []byte
	mimeType string
	modified time.Time
}

type fakeUpload struct {
	path     string
	total    int64
	received []byte
}

// fakeDrive is an in-memory Graph drive served over httptest. It speaks
// just enough of the path-addressing API for the adapter: items, paged
// children, inline content, upload sessions, downloads, move, copy and
// copy monitors.
type fakeDrive struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	nodes    map[string]*fakeNode // logical path -> node; "" is the root
	uploads  map[string]*fakeUpload
	nextID   int
	ranges   []string // Content-Range of every chunk PUT, in arrival order
	canceled []string // upload session IDs deleted by the client

	contentTypes    []string // Content-Type of every inline PUT
	failChunk       int      // 1-based chunk PUT to reject; 0 = none
	failChunkStatus int
	forbidList      map[string]bool // children listings answered with 403
	copyMonitors    int
	monitorPolls    int
	monitorStatus   string // reported by copy monitors; "" = completed
	requests        int
}

func newFakeDrive(t *testing.T) *fakeDrive {
	t.Helper()

	fd := &fakeDrive{
		t:          t,
		nodes:      map[string]*fakeNode{"": {id: "root", isFolder: true, modified: time.Now().UTC()}},
		uploads:    map[string]*fakeUpload{},
		forbidList: map[string]bool{},
	}
	fd.srv = httptest.NewServer(http.HandlerFunc(fd.serve))
	t.Cleanup(fd.srv.Close)

	return fd
}

// client returns a Graph client pointed at the fake.
func (fd *fakeDrive) client() *graph.Client {
	return graph.NewClient(fd.srv.URL, fd.srv.Client(), fixedToken("fake-token"), slog.Default())
}

// adapter returns an Adapter over the fake with the given options.
func (fd *fakeDrive) adapter(opts Options) *Adapter {
	fd.t.Helper()

	a, err := New(fd.client(), fakeDriveID, opts, slog.Default())
	require.NoError(fd.t, err)

	return a
}

func (fd *fakeDrive) put(path string, node *fakeNode) {
	fd.mu.Lock()
	defer fd.mu.Unlock()

	fd.putLocked(path, node)
}

func (fd *fakeDrive) putLocked(path string, node *fakeNode) {
	if node.id == "" {
		fd.nextID++
		node.id = "id-" + strconv.Itoa(fd.nextID)
	}

	if node.modified.IsZero() {
		node.modified = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	}

	fd.nodes[path] = node
}

func (fd *fakeDrive) mkdir(path string) {
	fd.put(path, &fakeNode{isFolder: true})
}

func (fd *fakeDrive) file(path, content string) {
	fd.put(path, &fakeNode{data: []byte(content), mimeType: "text/plain"})
}

func (fd *fakeDrive) node(path string) *fakeNode {
	fd.mu.Lock()
	defer fd.mu.Unlock()

	return fd.nodes[path]
}

func (fd *fakeDrive) requestCount() int {
	fd.mu.Lock()
	defer fd.mu.Unlock()

	return fd.requests
}

func (fd *fakeDrive) chunkRanges() []string {
	fd.mu.Lock()
	defer fd.mu.Unlock()

	return append([]string(nil), fd.ranges...)
}

func (fd *fakeDrive) serve(w http.ResponseWriter, r *http.Request) {
	fd.mu.Lock()
	defer fd.mu.Unlock()

	fd.requests++
	p := r.URL.Path

	switch {
	case strings.HasPrefix(p, "/upload/"):
		fd.serveUpload(w, r, strings.TrimPrefix(p, "/upload/"))
	case strings.HasPrefix(p, "/download/"):
		fd.serveDownload(w, strings.TrimPrefix(p, "/download/"))
	case strings.HasPrefix(p, "/monitor/"):
		fd.monitorPolls++

		status := fd.monitorStatus
		if status == "" {
			status = "completed"
		}

		writeJSON(w, http.StatusOK, map[string]any{"status": status, "resourceId": "copy"})
	case strings.HasPrefix(p, fakeRoot):
		if r.Header.Get("Authorization") != "Bearer fake-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		itemPath, action := splitAddress(strings.TrimPrefix(p, fakeRoot))
		fd.serveItem(w, r, itemPath, action)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// splitAddress splits the part after the root URL into the logical item
// path and the trailing action ("", "children", "content", ...).
func splitAddress(rest string) (string, string) {
	if !strings.HasPrefix(rest, ":/") {
		return "", strings.TrimPrefix(rest, "/")
	}

	rest = rest[2:]
	if i := strings.LastIndex(rest, ":/"); i >= 0 {
		return rest[:i], rest[i+2:]
	}

	return rest, ""
}

func (fd *fakeDrive) serveItem(w http.ResponseWriter, r *http.Request, path, action string) {
	switch {
	case action == "" && r.Method == http.MethodGet:
		node, ok := fd.nodes[path]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]string{"code": "itemNotFound"}})
			return
		}

		writeJSON(w, http.StatusOK, fd.itemJSON(path, node))
	case action == "" && r.Method == http.MethodDelete:
		if _, ok := fd.nodes[path]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		for p := range fd.nodes {
			if p == path || strings.HasPrefix(p, path+"/") {
				delete(fd.nodes, p)
			}
		}

		w.WriteHeader(http.StatusNoContent)
	case action == "" && r.Method == http.MethodPatch:
		fd.serveRelocate(w, r, path, false)
	case action == "copy" && r.Method == http.MethodPost:
		fd.serveRelocate(w, r, path, true)
	case action == "children" && r.Method == http.MethodGet:
		fd.serveChildren(w, r, path)
	case action == "children" && r.Method == http.MethodPost:
		fd.serveCreateFolder(w, r, path)
	case action == "content" && r.Method == http.MethodPut:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		fd.contentTypes = append(fd.contentTypes, r.Header.Get("Content-Type"))
		node := &fakeNode{data: data, mimeType: r.Header.Get("Content-Type")}
		fd.putLocked(path, node)
		writeJSON(w, http.StatusCreated, fd.itemJSON(path, node))
	case action == "createUploadSession" && r.Method == http.MethodPost:
		fd.nextID++
		id := "s" + strconv.Itoa(fd.nextID)
		fd.uploads[id] = &fakeUpload{path: path, total: -1}
		writeJSON(w, http.StatusOK, map[string]any{
			"uploadUrl":          fd.srv.URL + "/upload/" + id,
			"expirationDateTime": "2030-01-01T00:00:00Z",
		})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (fd *fakeDrive) serveChildren(w http.ResponseWriter, r *http.Request, path string) {
	parent, ok := fd.nodes[path]
	if !ok || !parent.isFolder {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if fd.forbidList[path] {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	names := fd.childPaths(path)

	start, _ := strconv.Atoi(r.URL.Query().Get("$skiptoken"))
	end := min(start+fakePageSize, len(names))

	page := make([]map[string]any, 0, end-start)
	for _, child := range names[start:end] {
		page = append(page, fd.itemJSON(child, fd.nodes[child]))
	}

	body := map[string]any{"value": page}
	if end < len(names) {
		u := *r.URL
		q := u.Query()
		q.Set("$skiptoken", strconv.Itoa(end))
		u.RawQuery = q.Encode()
		body["@odata.nextLink"] = fd.srv.URL + u.EscapedPath() + "?" + u.RawQuery
	}

	writeJSON(w, http.StatusOK, body)
}

func (fd *fakeDrive) childPaths(parent string) []string {
	var out []string

	for p := range fd.nodes {
		if p == "" {
			continue
		}

		dir := ""
		if i := strings.LastIndex(p, "/"); i >= 0 {
			dir = p[:i]
		}

		if dir == parent {
			out = append(out, p)
		}
	}

	sort.Strings(out)

	return out
}

func (fd *fakeDrive) serveCreateFolder(w http.ResponseWriter, r *http.Request, parent string) {
	if node, ok := fd.nodes[parent]; !ok || !node.isFolder {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var req struct {
		Name   string    `json:"name"`
		Folder *struct{} `json:"folder"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Folder == nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	path := joinFake(parent, req.Name)
	if _, exists := fd.nodes[path]; exists {
		w.WriteHeader(http.StatusConflict)
		return
	}

	node := &fakeNode{isFolder: true}
	fd.putLocked(path, node)
	writeJSON(w, http.StatusCreated, fd.itemJSON(path, node))
}

func (fd *fakeDrive) serveRelocate(w http.ResponseWriter, r *http.Request, src string, isCopy bool) {
	if _, ok := fd.nodes[src]; !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var req struct {
		ParentReference *struct {
			Path string `json:"path"`
		} `json:"parentReference"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	parent := ""
	if req.ParentReference != nil {
		ref := req.ParentReference.Path
		if !strings.HasPrefix(ref, fakeRoot+":") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		parent = strings.TrimPrefix(strings.TrimPrefix(ref, fakeRoot+":"), "/")
	}

	if node, ok := fd.nodes[parent]; !ok || !node.isFolder {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	dst := joinFake(parent, req.Name)

	var subtree []string

	for p := range fd.nodes {
		if p == src || strings.HasPrefix(p, src+"/") {
			subtree = append(subtree, p)
		}
	}

	for _, p := range subtree {
		node := fd.nodes[p]
		moved := dst + strings.TrimPrefix(p, src)
		if isCopy {
			clone := *node
			clone.id = ""
			fd.putLocked(moved, &clone)
		} else {
			fd.nodes[moved] = node
			delete(fd.nodes, p)
		}
	}

	if isCopy {
		fd.copyMonitors++
		w.Header().Set("Location", fd.srv.URL+"/monitor/"+strconv.Itoa(fd.copyMonitors))
		w.WriteHeader(http.StatusAccepted)

		return
	}

	writeJSON(w, http.StatusOK, fd.itemJSON(dst, fd.nodes[dst]))
}

func (fd *fakeDrive) serveUpload(w http.ResponseWriter, r *http.Request, id string) {
	up, ok := fd.uploads[id]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if r.Method == http.MethodDelete {
		delete(fd.uploads, id)
		fd.canceled = append(fd.canceled, id)
		w.WriteHeader(http.StatusNoContent)

		return
	}

	cr := r.Header.Get("Content-Range")
	fd.ranges = append(fd.ranges, cr)

	if fd.failChunk > 0 && len(fd.ranges) == fd.failChunk {
		w.WriteHeader(fd.failChunkStatus)
		return
	}

	var first, last, total int64
	if _, err := fmt.Sscanf(cr, "bytes %d-%d/%d", &first, &last, &total); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if up.total < 0 {
		up.total = total
	}

	data, err := io.ReadAll(r.Body)
	if err != nil || total != up.total || first != int64(len(up.received)) || int64(len(data)) != last-first+1 {
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	up.received = append(up.received, data...)

	if int64(len(up.received)) < up.total {
		writeJSON(w, http.StatusAccepted, map[string]any{
			"nextExpectedRanges": []string{strconv.Itoa(len(up.received)) + "-"},
		})

		return
	}

	delete(fd.uploads, id)

	node := &fakeNode{data: up.received, mimeType: "application/octet-stream"}
	fd.putLocked(up.path, node)
	writeJSON(w, http.StatusCreated, fd.itemJSON(up.path, node))
}

func (fd *fakeDrive) serveDownload(w http.ResponseWriter, id string) {
	for _, node := range fd.nodes {
		if node.id == id && !node.isFolder {
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write(node.data)

			return
		}
	}

	w.WriteHeader(http.StatusNotFound)
}

// itemJSON renders a node the way Graph does. parentReference.path uses
// the short "/drive/root:" form Graph returns for drive-addressed requests.
func (fd *fakeDrive) itemJSON(path string, node *fakeNode) map[string]any {
	name := path
	parent := ""

	if i := strings.LastIndex(path, "/"); i >= 0 {
		parent, name = path[:i], path[i+1:]
	}

	parentRef := "/drive/root:"
	if parent != "" {
		parentRef += "/" + parent
	}

	item := map[string]any{
		"id":                   node.id,
		"name":                 name,
		"createdDateTime":      node.modified.Format(time.RFC3339),
		"lastModifiedDateTime": node.modified.Format(time.RFC3339),
	}

	if path != "" {
		item["parentReference"] = map[string]any{"driveId": fakeDriveID, "path": parentRef}
	}

	if node.isFolder {
		item["folder"] = map[string]any{"childCount": len(fd.childPaths(path))}
	} else {
		item["size"] = len(node.data)
		item["file"] = map[string]any{"mimeType": node.mimeType}
		item["@microsoft.graph.downloadUrl"] = fd.srv.URL + "/download/" + node.id
	}

	return item
}

func joinFake(parent, name string) string {
	if parent == "" {
		return name
	}

	return parent + "/" + name
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
