package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jward/trellis/internal/feature"
	"github.com/jward/trellis/internal/store"
)

func queryCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query an exported analysis",
		Long:  "Run queries against the database written by 'trellis analyze'. Line and column numbers are 0-based.",
	}
	cmd.AddCommand(documentsCmd(g))
	cmd.AddCommand(featuresCmd(g))
	cmd.AddCommand(membersCmd(g))
	cmd.AddCommand(depsCmd(g))
	cmd.AddCommand(dependantsCmd(g))
	cmd.AddCommand(warningsCmd(g))
	return cmd
}

// openStore opens the database named by --db, or the default one under the
// enclosing repository.
func (g *globals) openStore() (*store.Store, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting cwd: %w", err)
	}
	dbPath := resolveDBPath(findRepoRoot(cwd), g.db)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: %s (run 'trellis analyze' first)", dbPath)
	}
	return store.NewStore(dbPath)
}

// storeCommand wraps a query that runs against the store and produces a
// result envelope.
func (g *globals) storeCommand(name string, run func(cmd *cobra.Command, s *store.Store, args []string) (any, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := g.openStore()
		if err != nil {
			return outputError(g.out(cmd), cmd.ErrOrStderr(), g.format, name, err)
		}
		defer s.Close()

		results, err := run(cmd, s, args)
		if err != nil {
			return outputError(g.out(cmd), cmd.ErrOrStderr(), g.format, name, err)
		}
		result := CLIResult{Command: name, Results: results}
		if n, ok := resultLen(results); ok {
			result.TotalCount = &n
		}
		return outputResult(g.out(cmd), g.format, result)
	}
}

// resultLen returns the length of a result slice.
func resultLen(v any) (int, bool) {
	switch r := v.(type) {
	case []CLIDocument:
		return len(r), true
	case []CLIFeature:
		return len(r), true
	case []CLIMember:
		return len(r), true
	case []CLIWarning:
		return len(r), true
	case []string:
		return len(r), true
	}
	return 0, false
}

// --- Documents and features ---

func documentsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "documents",
		Short: "List exported documents",
		Args:  cobra.NoArgs,
		RunE: g.storeCommand("documents", func(cmd *cobra.Command, s *store.Store, args []string) (any, error) {
			docs, err := s.Documents()
			if err != nil {
				return nil, err
			}
			out := make([]CLIDocument, len(docs))
			for i, d := range docs {
				out[i] = documentToCLI(d)
			}
			return out, nil
		}),
	}
}

func featuresCmd(g *globals) *cobra.Command {
	var kind, identifier, file string
	cmd := &cobra.Command{
		Use:   "features",
		Short: "List features by kind, identifier or document",
		Long:  "Exactly one of --kind, --identifier or --file selects the features.",
		Args:  cobra.NoArgs,
		RunE: g.storeCommand("features", func(cmd *cobra.Command, s *store.Store, args []string) (any, error) {
			var (
				rows []store.Feature
				err  error
			)
			switch {
			case kind != "" && identifier == "" && file == "":
				rows, err = s.FeaturesByKind(feature.Kind(kind))
			case identifier != "" && kind == "" && file == "":
				rows, err = s.FeaturesByIdentifier(identifier)
			case file != "" && kind == "" && identifier == "":
				rows, err = s.FeaturesByDocument(file)
			default:
				return nil, fmt.Errorf("exactly one of --kind, --identifier or --file is required")
			}
			if err != nil {
				return nil, err
			}
			out := make([]CLIFeature, len(rows))
			for i, f := range rows {
				out[i] = featureToCLI(f)
			}
			return out, nil
		}),
	}
	cmd.Flags().StringVar(&kind, "kind", "", "feature kind: function|class|element|mixin|import")
	cmd.Flags().StringVar(&identifier, "identifier", "", "class name, element tag, function name or import URL")
	cmd.Flags().StringVar(&file, "file", "", "document path relative to the project root")
	return cmd
}

func membersCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "members <identifier|key>",
		Short: "List the composed members of a class, element or mixin",
		Long:  "The argument is an identifier such as a class name or element tag, or a feature key as printed by 'query features'.",
		Args:  cobra.ExactArgs(1),
		RunE: g.storeCommand("members", func(cmd *cobra.Command, s *store.Store, args []string) (any, error) {
			f, err := lookupClassLike(s, args[0])
			if err != nil {
				return nil, err
			}
			members, err := s.MembersByFeature(f.ID)
			if err != nil {
				return nil, err
			}
			out := make([]CLIMember, len(members))
			for i, m := range members {
				params, err := s.ParamsByFeature(f.ID, &m.ID)
				if err != nil {
					return nil, err
				}
				out[i] = memberToCLI(m, params)
			}
			return out, nil
		}),
	}
}

// lookupClassLike finds the one class-like feature named by ref.
func lookupClassLike(s *store.Store, ref string) (*store.Feature, error) {
	if strings.Contains(ref, "#") {
		f, err := s.FeatureByKey(ref)
		if err != nil {
			return nil, err
		}
		if f == nil {
			return nil, fmt.Errorf("no feature with key %q", ref)
		}
		return f, nil
	}

	rows, err := s.FeaturesByIdentifier(ref)
	if err != nil {
		return nil, err
	}
	var found []store.Feature
	for _, f := range rows {
		if feature.Kinds(kindsOf(f)).ClassLike() {
			found = append(found, f)
		}
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("no class, element or mixin named %q", ref)
	case 1:
		return &found[0], nil
	}
	keys := make([]string, len(found))
	for i, f := range found {
		keys[i] = f.Key
	}
	return nil, fmt.Errorf("%q is ambiguous; use one of: %s", ref, strings.Join(keys, ", "))
}

func kindsOf(f store.Feature) []feature.Kind {
	out := make([]feature.Kind, len(f.Kinds))
	for i, k := range f.Kinds {
		out[i] = feature.Kind(k)
	}
	return out
}

// --- Dependencies ---

func depsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "deps <path>",
		Short: "List the documents a document eagerly imports",
		Args:  cobra.ExactArgs(1),
		RunE: g.storeCommand("deps", func(cmd *cobra.Command, s *store.Store, args []string) (any, error) {
			return nonNilPaths(s.Dependencies(args[0]))
		}),
	}
}

func dependantsCmd(g *globals) *cobra.Command {
	var transitive bool
	cmd := &cobra.Command{
		Use:   "dependants <path>",
		Short: "List the documents that import a document",
		Args:  cobra.ExactArgs(1),
		RunE: g.storeCommand("dependants", func(cmd *cobra.Command, s *store.Store, args []string) (any, error) {
			if transitive {
				return nonNilPaths(s.TransitiveDependants(args[0]))
			}
			return nonNilPaths(s.Dependants(args[0]))
		}),
	}
	cmd.Flags().BoolVar(&transitive, "transitive", false, "include indirect importers")
	return cmd
}

func nonNilPaths(paths []string, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return nonNil(paths), nil
}

// --- Warnings ---

func warningsCmd(g *globals) *cobra.Command {
	var severity, file string
	cmd := &cobra.Command{
		Use:   "warnings",
		Short: "List warnings at or above a severity",
		Args:  cobra.NoArgs,
		RunE: g.storeCommand("warnings", func(cmd *cobra.Command, s *store.Store, args []string) (any, error) {
			minSeverity, err := feature.ParseSeverity(severity)
			if err != nil {
				return nil, err
			}
			var rows []store.Warning
			if file != "" {
				rows, err = s.WarningsByDocument(file)
			} else {
				rows, err = s.Warnings(minSeverity)
			}
			if err != nil {
				return nil, err
			}
			out := []CLIWarning{}
			for _, w := range rows {
				if w.Severity >= minSeverity {
					out = append(out, warningToCLI(w))
				}
			}
			return out, nil
		}),
	}
	cmd.Flags().StringVar(&severity, "severity", "info", "minimum severity: info|warning|error")
	cmd.Flags().StringVar(&file, "file", "", "only warnings of this document")
	return cmd
}
