package modelship

import (
	"io/fs"

	"github.com/datalpia/modelship/pkg/site"
)

// VendorFS exposes the bundled onnxruntime-web files copied into every
// generated site, e.g. to serve them during development:
//
//	mux.Handle("/vendor/",
//	  http.StripPrefix("/vendor/",
//	    http.FileServerFS(modelship.VendorFS()),
//	  ),
//	)
func VendorFS() fs.FS {
	return site.VendorFS()
}

// EmbeddedTemplates exposes the built-in page templates so callers can start
// a custom template directory from them.
func EmbeddedTemplates() fs.FS {
	return site.TemplatesFS()
}
