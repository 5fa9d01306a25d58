package site

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	theme "github.com/goliatone/go-theme"
)

const (
	// DefaultTheme is the built-in theme used when none is requested.
	DefaultTheme = "modelship"
	// DefaultVariant is the variant used when none is requested.
	DefaultVariant = "light"

	// pageTemplateKey names the page template inside theme manifests, so a
	// theme can ship its own layout.
	pageTemplateKey = "page"
)

// BuiltinThemes returns a registry holding the embedded theme manifests.
func BuiltinThemes() (*theme.MemoryRegistry, error) {
	registry := theme.NewRegistry()
	if err := registerThemes(registry, ThemesFS(), "."); err != nil {
		return nil, err
	}
	return registry, nil
}

// LoadThemeDir registers every manifest found in dir: either dir itself
// holds a theme.yaml/manifest.yaml, or each subdirectory does.
func LoadThemeDir(registry theme.Registry, dir string) error {
	fsys := os.DirFS(dir)
	if manifest, err := theme.LoadDir(fsys, "."); err == nil {
		return registerManifest(registry, manifest, dir)
	}
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("site: read theme dir %s: %w", dir, err)
	}
	found := false
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		manifest, err := theme.LoadDir(fsys, entry.Name())
		if err != nil {
			continue
		}
		if err := registerManifest(registry, manifest, path.Join(dir, entry.Name())); err != nil {
			return err
		}
		found = true
	}
	if !found {
		return fmt.Errorf("site: no theme manifest found in %s", dir)
	}
	return nil
}

func registerThemes(registry theme.Registry, fsys fs.FS, dir string) error {
	matches, err := fs.Glob(fsys, path.Join(dir, "*.yaml"))
	if err != nil {
		return fmt.Errorf("site: list themes: %w", err)
	}
	for _, name := range matches {
		manifest, err := theme.LoadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("site: load theme %s: %w", name, err)
		}
		if err := registerManifest(registry, manifest, name); err != nil {
			return err
		}
	}
	return nil
}

func registerManifest(registry theme.Registry, manifest *theme.Manifest, source string) error {
	if err := registry.Register(manifest); err != nil {
		return fmt.Errorf("site: register theme %s: %w", source, err)
	}
	return nil
}

// pageTheme is the resolved theme handed to the page template.
type pageTheme struct {
	Name     string
	Variant  string
	Template string
	CSSVars  map[string]string
}

func selectTheme(provider theme.ThemeProvider, name, variant string) (pageTheme, error) {
	selector := theme.Selector{
		Registry:       provider,
		DefaultTheme:   DefaultTheme,
		DefaultVariant: DefaultVariant,
	}
	// A missing theme must not silently fall back to the default.
	if strings.TrimSpace(name) != "" {
		if _, err := provider.Theme(name); err != nil {
			return pageTheme{}, fmt.Errorf("site: theme %q: %w", name, err)
		}
	}
	selection, err := selector.Select(name, variant)
	if err != nil {
		return pageTheme{}, fmt.Errorf("site: select theme: %w", err)
	}
	if _, ok := selection.Manifest.Variants[selection.Variant]; !ok && variant != "" {
		return pageTheme{}, fmt.Errorf("site: theme %q has no variant %q", selection.Theme, selection.Variant)
	}

	cfg := selection.RendererTheme(map[string]string{pageTemplateKey: DefaultTemplate})
	for key, value := range cfg.CSSVars {
		if !safeCSSValue(value) {
			return pageTheme{}, fmt.Errorf("site: theme %q: token %s has an unsafe value %q", cfg.Theme, strings.TrimPrefix(key, "--"), value)
		}
	}
	return pageTheme{
		Name:     cfg.Theme,
		Variant:  cfg.Variant,
		Template: cfg.Partials[pageTemplateKey],
		CSSVars:  cfg.CSSVars,
	}, nil
}

// safeCSSValue rejects values that could close the declaration block or the
// surrounding style element.
func safeCSSValue(value string) bool {
	return !strings.ContainsAny(value, "<>{};\\")
}

// css renders the CSS custom properties as declarations, sorted by name.
func (t pageTheme) css() string {
	names := make([]string, 0, len(t.CSSVars))
	for name := range t.CSSVars {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "      %s: %s;\n", name, t.CSSVars[name])
	}
	return b.String()
}
