package store

import (
	"crypto/sha256"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jward/trellis/internal/feature"
)

// ComputeSignatureHash computes a deterministic hash from a feature's
// semantic identity: name, kinds, privacy, heritage, members, parameters
// and import target. Location changes do NOT affect the hash.
func ComputeSignatureHash(f *feature.Feature) string {
	h := sha256.New()

	fmt.Fprintf(h, "name:%s\n", f.Name)
	kinds := make([]string, len(f.Kinds))
	for i, k := range f.Kinds {
		kinds[i] = string(k)
	}
	sort.Strings(kinds)
	fmt.Fprintf(h, "kinds:%s\n", strings.Join(kinds, ","))
	fmt.Fprintf(h, "privacy:%s\n", f.Privacy)

	if fn := f.Function; fn != nil {
		writeParams(h, "param", fn.Params)
		fmt.Fprintf(h, "return:%s\n", fn.Return)
	}

	if c := f.Class; c != nil {
		fmt.Fprintf(h, "tag:%s\n", c.TagName)
		if c.SuperClass != nil {
			fmt.Fprintf(h, "super:%s\n", c.SuperClass.Name)
		}
		for _, m := range c.Mixins {
			fmt.Fprintf(h, "mixin:%s\n", m.Name)
		}
		writeMembers(h, "property", c.Properties)
		writeMembers(h, "method", c.Methods)
		writeMembers(h, "static", c.StaticMethods)
	}

	if imp := f.Import; imp != nil {
		fmt.Fprintf(h, "import:%s:%s:%s:%v\n", imp.Specifier, imp.URL, imp.ImportKind, imp.Lazy)
	}

	return fmt.Sprintf("%x", h.Sum(nil))
}

// writeMembers hashes members in name order.
func writeMembers(h io.Writer, label string, members feature.Members) {
	for _, name := range members.Names() {
		m := members[name]
		fmt.Fprintf(h, "%s:%s:%s:%s:%v:%s:%s\n", label, m.Name, m.Kind, m.Privacy, m.Static, m.InheritedFrom, m.Type)
		writeParams(h, label+"."+m.Name, m.Params)
	}
}

// writeParams hashes params in declaration order, which is significant.
func writeParams(h io.Writer, label string, params []feature.Param) {
	for i, p := range params {
		fmt.Fprintf(h, "%s:%d:%s:%s\n", label, i, p.Name, p.Type)
	}
}
