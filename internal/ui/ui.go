// Package ui serves the embedded status dashboard: a single page that reads
// the JSON API and shows current, cheapest and upcoming window prices.
package ui

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var content embed.FS

// Handler serves the embedded dashboard assets.
func Handler() http.Handler {
	sub, err := fs.Sub(content, "static")
	if err != nil {
		// Only possible with a broken embed directive.
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}
