// Package trellis analyzes web projects made of script, markup and style
// documents. It parses each document with tree-sitter, scans it for
// functions, classes, custom elements, mixins and imports, and resolves
// those into a cross-document feature graph: inheritance, mixin
// composition and module specifiers.
//
// # Pipeline
//
// Every document moves through three cached stages:
//
//  1. Parse: load the contents and build a syntax tree.
//  2. Scan: run the scanners registered for the document kind, producing
//     unresolved features and the list of documents it eagerly imports.
//  3. Analyze: once the scans of everything a document transitively
//     imports are done, resolve its features against that scope.
//
// Scanners are Go code for the built-in cases and Risor scripts for
// everything else; see the scripts package for the embedded defaults.
//
// # Usage
//
//	e, err := trellis.New("path/to/project", trellis.WithDB("trellis.db"))
//	if err != nil { ... }
//	defer e.Close()
//
//	ctx := context.Background()
//	docs, err := e.AnalyzeDirectory(ctx)
//
//	q := e.Query()
//	button := q.Element("fancy-button")
//	for _, m := range q.Members(button) { ... }
//
//	diff, err := e.Export(ctx)
//
// # Incremental analysis
//
// [Engine.FilesChanged] hashes the current contents of the given paths and,
// when any differ from what was analyzed, swaps in a fork of the analysis
// cache in which those documents and their dependants are invalidated.
// Everything else carries over. Snapshots taken before the fork keep
// answering from the old cache.
//
// # Export
//
// With [WithDB], [Engine.Export] writes the analyzed documents to SQLite
// and reports which features were added, removed or changed signature
// since the previous export. The trellis command queries that database.
package trellis
