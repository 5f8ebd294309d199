package main

import (
	"github.com/jward/trellis/internal/store"
)

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLIAnalysis summarizes one analyze run or watch update.
type CLIAnalysis struct {
	Root       string   `json:"root,omitempty"`
	Database   string   `json:"database,omitempty"`
	Documents  int      `json:"documents"`
	Features   int      `json:"features"`
	Warnings   int      `json:"warnings"`
	Errors     []string `json:"errors,omitempty"`
	Added      []string `json:"added"`
	Changed    []string `json:"changed"`
	Removed    []string `json:"removed"`
	DurationMS int64    `json:"duration_ms"`
}

// CLIDocument is a JSON-friendly document row.
type CLIDocument struct {
	ID   int64  `json:"id"`
	Path string `json:"path"`
	Kind string `json:"kind"`
	Hash string `json:"hash"`
}

// CLIFeature is a JSON-friendly feature row.
type CLIFeature struct {
	ID          int64    `json:"id"`
	Key         string   `json:"key"`
	Name        string   `json:"name"`
	Kinds       []string `json:"kinds"`
	Identifiers []string `json:"identifiers"`
	Privacy     string   `json:"privacy,omitempty"`
	Description string   `json:"description,omitempty"`
	TagName     string   `json:"tag_name,omitempty"`
	SuperClass  string   `json:"super_class,omitempty"`
	Mixins      []string `json:"mixins,omitempty"`
	ImportURL   string   `json:"import_url,omitempty"`
	File        string   `json:"file"`
	StartLine   int      `json:"start_line"`
	StartCol    int      `json:"start_col"`
}

// CLIParam is a JSON-friendly parameter.
type CLIParam struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

// CLIMember is a JSON-friendly class member.
type CLIMember struct {
	Name          string     `json:"name"`
	Kind          string     `json:"kind"`
	Privacy       string     `json:"privacy"`
	Static        bool       `json:"static,omitempty"`
	InheritedFrom string     `json:"inherited_from,omitempty"`
	Type          string     `json:"type,omitempty"`
	Description   string     `json:"description,omitempty"`
	Params        []CLIParam `json:"params,omitempty"`
}

// CLIWarning is a JSON-friendly warning.
type CLIWarning struct {
	File      string `json:"file"`
	Code      string `json:"code"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	StartLine int    `json:"start_line"`
	StartCol  int    `json:"start_col"`
}

func documentToCLI(d store.Document) CLIDocument {
	return CLIDocument{ID: d.ID, Path: d.Path, Kind: d.Kind, Hash: d.Hash}
}

func featureToCLI(f store.Feature) CLIFeature {
	return CLIFeature{
		ID:          f.ID,
		Key:         f.Key,
		Name:        f.Name,
		Kinds:       f.Kinds,
		Identifiers: f.Identifiers,
		Privacy:     f.Privacy,
		Description: f.Description,
		TagName:     f.TagName,
		SuperClass:  f.SuperClass,
		Mixins:      f.Mixins,
		ImportURL:   f.ImportURL,
		File:        f.Path,
		StartLine:   f.StartLine,
		StartCol:    f.StartCol,
	}
}

func memberToCLI(m store.Member, params []store.Param) CLIMember {
	out := CLIMember{
		Name:          m.Name,
		Kind:          m.Kind,
		Privacy:       m.Privacy,
		Static:        m.Static,
		InheritedFrom: m.InheritedFrom,
		Type:          m.TypeExpr,
		Description:   m.Description,
	}
	for _, p := range params {
		out.Params = append(out.Params, CLIParam{Name: p.Name, Type: p.TypeExpr, Description: p.Description})
	}
	return out
}

func warningToCLI(w store.Warning) CLIWarning {
	return CLIWarning{
		File:      w.Path,
		Code:      w.Code,
		Severity:  w.Severity.String(),
		Message:   w.Message,
		StartLine: w.StartLine,
		StartCol:  w.StartCol,
	}
}
