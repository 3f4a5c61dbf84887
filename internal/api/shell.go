package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// appShell serves the built web app from a directory. Navigations to paths
// without a file get index.html so the client-side router, or the offline
// cache, can take over.
type appShell struct {
	dir string
}

func newAppShell(dir string) *appShell {
	return &appShell{dir: dir}
}

func (s *appShell) enabled() bool {
	return s.dir != ""
}

func (s *appShell) serveIndex(c *gin.Context) {
	c.File(filepath.Join(s.dir, "index.html"))
}

func (s *appShell) handle(c *gin.Context) {
	if !s.enabled() || (c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead) {
		detail(c, http.StatusNotFound, "Not Found")
		return
	}

	rel := filepath.FromSlash(filepath.Clean("/" + c.Request.URL.Path))
	path := filepath.Join(s.dir, rel)
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		c.File(path)
		return
	}

	if isNavigation(c.Request) {
		s.serveIndex(c)
		return
	}
	detail(c, http.StatusNotFound, "Not Found")
}

// isNavigation reports whether the request loads a page rather than an asset.
func isNavigation(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
