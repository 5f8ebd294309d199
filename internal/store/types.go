package store

import (
	"time"

	"github.com/jward/trellis/internal/feature"
)

// Document is one exported document.
type Document struct {
	ID           int64
	Path         string
	Kind         string
	Hash         string
	LastAnalyzed time.Time
}

// Feature is one exported feature row. Path is the owning document's path;
// writers use it to find DocumentID when the latter is zero.
type Feature struct {
	ID            int64
	DocumentID    int64
	Path          string
	Ordinal       int
	Key           string
	Name          string
	Kinds         []string
	Identifiers   []string
	Privacy       string
	Description   string
	TagName       string
	SuperClass    string
	Mixins        []string
	ImportURL     string
	ReturnType    string
	SignatureHash string
	StartLine     int
	StartCol      int
	EndLine       int
	EndCol        int
}

// Member is a property or method of a class-like feature.
type Member struct {
	ID            int64
	FeatureID     int64
	Name          string
	Kind          string
	Privacy       string
	Static        bool
	InheritedFrom string
	TypeExpr      string
	Description   string
	StartLine     int
	StartCol      int
	EndLine       int
	EndCol        int
}

// Param is a function or method parameter. MemberID is nil for parameters
// of a function feature.
type Param struct {
	ID          int64
	FeatureID   int64
	MemberID    *int64
	Ordinal     int
	Name        string
	TypeExpr    string
	Description string
}

// Warning is a diagnostic owned by a document and optionally a feature.
type Warning struct {
	ID         int64
	DocumentID int64
	Path       string
	FeatureID  *int64
	Code       string
	Severity   feature.Severity
	Message    string
	StartLine  int
	StartCol   int
	EndLine    int
	EndCol     int
}

// Dependency is an eager import edge between two documents.
type Dependency struct {
	Path       string
	TargetPath string
}

// Diff lists feature keys that differ from the previous export of the same
// documents.
type Diff struct {
	Added   []string
	Changed []string
	Removed []string
}

// Empty reports whether nothing changed.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Changed) == 0 && len(d.Removed) == 0
}
