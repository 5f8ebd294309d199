package document

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/css"
	"github.com/smacker/go-tree-sitter/html"
	"github.com/smacker/go-tree-sitter/javascript"
)

// ErrUnsupportedKind is returned for paths whose extension maps to no
// supported document kind.
var ErrUnsupportedKind = errors.New("document: unsupported document kind")

// extToLanguage maps file extensions to canonical language names.
var extToLanguage = map[string]string{
	".js":   "javascript",
	".mjs":  "javascript",
	".cjs":  "javascript",
	".jsx":  "javascript",
	".html": "html",
	".htm":  "html",
	".css":  "css",
}

var languageToKind = map[string]Kind{
	"javascript": KindScript,
	"html":       KindMarkup,
	"css":        KindStyle,
}

// langToGrammar maps language names to tree-sitter Language objects.
// Lazily initialized on first call via sync.Once.
var (
	langToGrammar map[string]*sitter.Language
	grammarsOnce  sync.Once
)

func initGrammars() {
	grammarsOnce.Do(func() {
		langToGrammar = map[string]*sitter.Language{
			"javascript": javascript.GetLanguage(),
			"html":       html.GetLanguage(),
			"css":        css.GetLanguage(),
		}
	})
}

// LanguageForFile returns the canonical language name for a file path based
// on its extension. Returns ("", false) if the extension is not recognized.
func LanguageForFile(path string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	lang, ok := extToLanguage[ext]
	return lang, ok
}

// KindForFile returns the document kind for a file path.
func KindForFile(path string) (Kind, bool) {
	lang, ok := LanguageForFile(path)
	if !ok {
		return "", false
	}
	return languageToKind[lang], true
}

// GrammarForLanguage returns the tree-sitter Language for a canonical
// language name. Returns (nil, false) if the language is not supported.
func GrammarForLanguage(lang string) (*sitter.Language, bool) {
	initGrammars()
	l, ok := langToGrammar[lang]
	return l, ok
}

// Extensions returns every file extension the parser understands.
func Extensions() []string {
	exts := make([]string, 0, len(extToLanguage))
	for ext := range extToLanguage {
		exts = append(exts, ext)
	}
	return exts
}

// Parser produces Documents. It is deterministic for identical input and
// safe for concurrent use: each call builds its own tree-sitter parser.
type Parser struct{}

// NewParser creates a Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse parses contents as the document kind implied by path's extension.
// Syntax errors do not fail Parse; tree-sitter recovers and the resulting
// tree reports them through HasSyntaxErrors.
func (p *Parser) Parse(ctx context.Context, path string, contents []byte) (*Document, error) {
	lang, ok := LanguageForFile(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, path)
	}
	grammar, _ := GrammarForLanguage(lang)

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar)

	tree, err := parser.ParseCtx(ctx, nil, contents)
	if err != nil {
		return nil, fmt.Errorf("document: parse %s: %w", path, err)
	}

	return &Document{
		Path:     CanonicalPath(path),
		Kind:     languageToKind[lang],
		Language: lang,
		Contents: contents,
		Hash:     Hash(contents),
		tree:     tree,
	}, nil
}

// Hash returns the hex sha256 of contents, used for change detection.
func Hash(contents []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(contents))
}
