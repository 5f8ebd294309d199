// Package resolve maps module specifiers found in import-like statements to
// the documents they name.
//
// Paths are slash-separated and relative to the analysis root, the same form
// io/fs uses. Fully qualified URLs and relative specifiers pass through
// unchanged; bare package specifiers are searched for in node_modules
// directories from the importer's directory up to the root and rewritten as
// a ./ or ../ path relative to the importer.
package resolve

import (
	"encoding/json"
	"io/fs"
	"net/url"
	"path"
	"strings"
)

// DefaultExtensions are probed, in order, when a specifier names a file
// without its extension.
var DefaultExtensions = []string{".js", ".mjs"}

// Resolver resolves module specifiers against a file tree.
type Resolver struct {
	fsys       fs.FS
	extensions []string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithExtensions replaces the probed extension list.
func WithExtensions(exts ...string) Option {
	return func(r *Resolver) {
		r.extensions = exts
	}
}

// New creates a Resolver over fsys, whose root is the analysis root.
func New(fsys fs.FS, opts ...Option) *Resolver {
	r := &Resolver{fsys: fsys, extensions: DefaultExtensions}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsURL reports whether specifier is a fully qualified network locator.
func IsURL(specifier string) bool {
	u, err := url.Parse(specifier)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// IsPathLike reports whether specifier is relative or root-absolute.
func IsPathLike(specifier string) bool {
	return strings.HasPrefix(specifier, "./") ||
		strings.HasPrefix(specifier, "../") ||
		strings.HasPrefix(specifier, "/") ||
		specifier == "." || specifier == ".."
}

// Resolve returns the specifier as it should be recorded for importer.
// URLs and relative specifiers come back unchanged. Bare specifiers are
// looked up under node_modules; ok is false when nothing matches.
func (r *Resolver) Resolve(specifier, importer string) (string, bool) {
	if specifier == "" {
		return "", false
	}
	if IsURL(specifier) || IsPathLike(specifier) {
		return specifier, true
	}
	target, ok := r.searchPackage(specifier, importer)
	if !ok {
		return "", false
	}
	return Relative(path.Dir(importer), target), true
}

// URL turns a specifier already passed through Resolve into the root-relative
// document path it names. ok is false for network URLs, which live outside
// the analysis root.
func (r *Resolver) URL(specifier, importer string) (string, bool) {
	if specifier == "" || IsURL(specifier) {
		return "", false
	}
	if strings.HasPrefix(specifier, "/") {
		return clean(specifier), true
	}
	if !IsPathLike(specifier) {
		resolved, ok := r.Resolve(specifier, importer)
		if !ok {
			return "", false
		}
		specifier = resolved
	}
	return clean(path.Join(path.Dir(importer), specifier)), true
}

func (r *Resolver) searchPackage(specifier, importer string) (string, bool) {
	dir := path.Dir(clean(importer))
	for {
		candidate := path.Join(dir, "node_modules", specifier)
		if found, ok := r.probe(candidate); ok {
			return found, true
		}
		if dir == "." || dir == "/" {
			return "", false
		}
		dir = path.Dir(dir)
	}
}

// probe tries candidate as a file, then with each extension, then as a
// package directory.
func (r *Resolver) probe(candidate string) (string, bool) {
	if r.isFile(candidate) {
		return candidate, true
	}
	for _, ext := range r.extensions {
		if r.isFile(candidate + ext) {
			return candidate + ext, true
		}
	}
	if !r.isDir(candidate) {
		return "", false
	}
	if entry, ok := r.packageEntry(candidate); ok {
		return entry, true
	}
	for _, ext := range r.extensions {
		index := path.Join(candidate, "index"+ext)
		if r.isFile(index) {
			return index, true
		}
	}
	return "", false
}

type packageJSON struct {
	Module string `json:"module"`
	Main   string `json:"main"`
}

// packageEntry reads dir/package.json, preferring the module entry point
// over main when both are present and exist.
func (r *Resolver) packageEntry(dir string) (string, bool) {
	data, err := fs.ReadFile(r.fsys, path.Join(dir, "package.json"))
	if err != nil {
		return "", false
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return "", false
	}
	for _, entry := range []string{pkg.Module, pkg.Main} {
		if entry == "" {
			continue
		}
		p := path.Join(dir, entry)
		if r.isFile(p) {
			return p, true
		}
		for _, ext := range r.extensions {
			if r.isFile(p + ext) {
				return p + ext, true
			}
		}
	}
	return "", false
}

func (r *Resolver) isFile(p string) bool {
	info, err := fs.Stat(r.fsys, clean(p))
	return err == nil && !info.IsDir()
}

func (r *Resolver) isDir(p string) bool {
	info, err := fs.Stat(r.fsys, clean(p))
	return err == nil && info.IsDir()
}

// Relative expresses target relative to fromDir, always starting with ./
// or ../ so that it stays a relative specifier.
func Relative(fromDir, target string) string {
	from := splitPath(clean(fromDir))
	to := splitPath(clean(target))
	i := 0
	for i < len(from) && i < len(to)-1 && from[i] == to[i] {
		i++
	}
	var parts []string
	for range from[i:] {
		parts = append(parts, "..")
	}
	parts = append(parts, to[i:]...)
	rel := strings.Join(parts, "/")
	if !strings.HasPrefix(rel, "../") {
		rel = "./" + rel
	}
	return rel
}

func splitPath(p string) []string {
	if p == "." || p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func clean(p string) string {
	p = path.Clean("/" + p)
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return "."
	}
	return p
}
