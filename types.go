package trellis

import (
	"github.com/jward/trellis/internal/analysis"
	"github.com/jward/trellis/internal/feature"
	"github.com/jward/trellis/internal/store"
)

// Public type aliases for internal types used in the Engine and
// QueryBuilder API. These are Go type aliases (=), identical to the
// internal types at compile time.

type AnalyzedDocument = analysis.AnalyzedDocument
type Feature = feature.Feature
type FeatureID = feature.ID
type Kind = feature.Kind
type Member = feature.Member
type Warning = feature.Warning
type Severity = feature.Severity

type Store = store.Store
type Diff = store.Diff

// Feature kinds.
const (
	KindFunction = feature.KindFunction
	KindClass    = feature.KindClass
	KindElement  = feature.KindElement
	KindMixin    = feature.KindMixin
	KindImport   = feature.KindImport
)

// Warning severities.
const (
	SeverityInfo    = feature.SeverityInfo
	SeverityWarning = feature.SeverityWarning
	SeverityError   = feature.SeverityError
)
