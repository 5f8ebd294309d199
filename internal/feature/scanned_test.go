package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapScope struct {
	features []*Feature
}

func (s *mapScope) Lookup(kind Kind, identifier string) []*Feature {
	var out []*Feature
	for _, f := range s.features {
		if f.Kinds.Has(kind) && f.HasIdentifier(identifier) {
			out = append(out, f)
		}
	}
	return out
}

func (s *mapScope) Feature(id ID) (*Feature, bool) {
	for _, f := range s.features {
		if f.ID == id {
			return f, true
		}
	}
	return nil, false
}

func (s *mapScope) Loaded(string) bool { return true }

func (s *mapScope) RootType(name string) bool { return name == "HTMLElement" }

func TestScannedReference_Resolve(t *testing.T) {
	t.Parallel()
	first := classFeature("Base", 0)
	second := classFeature("Base", 1)
	scope := &mapScope{features: []*Feature{first, second, classFeature("Other", 2)}}

	t.Run("found", func(t *testing.T) {
		t.Parallel()
		ref := ScannedReference{Kind: KindClass, Identifier: "Other"}.Resolve(scope)
		require.NotNil(t, ref.Target)
		assert.Equal(t, "Other", ref.Target.Name)
		assert.Empty(t, ref.Warnings)
		assert.Equal(t, Ref{Name: "Other", Target: &ID{Path: "a.js", Index: 2}}, ref.AsRef())
	})

	t.Run("ambiguous takes first and warns", func(t *testing.T) {
		t.Parallel()
		ref := ScannedReference{Kind: KindClass, Identifier: "Base"}.Resolve(scope)
		require.NotNil(t, ref.Target)
		assert.Equal(t, 0, ref.Target.ID.Index)
		require.Len(t, ref.Warnings, 1)
		assert.Equal(t, CodeMultipleFeatures, ref.Warnings[0].Code)
	})

	t.Run("missing is not an error", func(t *testing.T) {
		t.Parallel()
		ref := ScannedReference{Kind: KindMixin, Identifier: "Base"}.Resolve(scope)
		assert.Nil(t, ref.Target)
		assert.Empty(t, ref.Warnings)
		assert.Nil(t, ref.AsRef().Target)
	})
}
