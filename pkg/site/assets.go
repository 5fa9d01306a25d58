package site

import (
	"embed"
	"io/fs"
)

//go:embed assets/templates/*.html
var embeddedTemplates embed.FS

//go:embed assets/themes/*.yaml
var embeddedThemes embed.FS

//go:embed assets/vendor
var embeddedVendor embed.FS

// TemplatesFS exposes the built-in page templates.
func TemplatesFS() fs.FS {
	return subFS(embeddedTemplates, "assets/templates")
}

// ThemesFS exposes the built-in theme manifests.
func ThemesFS() fs.FS {
	return subFS(embeddedThemes, "assets/themes")
}

// VendorFS exposes the bundled browser runtime copied into every site.
func VendorFS() fs.FS {
	return subFS(embeddedVendor, "assets/vendor")
}

func subFS(fsys embed.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return fsys
	}
	return sub
}
