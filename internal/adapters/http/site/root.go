// Package site serves the embedded prediction form at the root path.
package site

import (
	"context"
	"net/http"
)

// Register attaches the embedded site routes to mux.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.Handle("/", http.FileServer(FS()))
}
