package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed index.html styles.css app.js
var content embed.FS

// FS serves the embedded observer page.
func FS() http.FileSystem {
	sub, _ := fs.Sub(content, ".")
	return http.FS(sub)
}
