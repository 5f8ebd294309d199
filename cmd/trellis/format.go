package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}

// outputResult writes result to w in the selected format.
func outputResult(w io.Writer, format string, result CLIResult) error {
	if format == "text" {
		return outputResultText(w, result)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError reports err in the selected format and returns it wrapped in
// errHandled. In JSON mode the error is written to w as a CLIResult
// envelope; in text mode it goes to errW.
func outputError(w, errW io.Writer, format, command string, err error) error {
	if format == "text" {
		fmt.Fprintf(errW, "Error: %s\n", err)
	} else {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(CLIResult{Command: command, Error: err.Error()})
	}
	return fmt.Errorf("%w: %w", errHandled, err)
}

func formatAnalysisText(w io.Writer, a CLIAnalysis) {
	if a.Root != "" {
		fmt.Fprintf(w, "Analyzed %s in %dms\n", a.Root, a.DurationMS)
	}
	fmt.Fprintf(w, "Documents: %d  Features: %d  Warnings: %d\n", a.Documents, a.Features, a.Warnings)
	if a.Database != "" {
		fmt.Fprintf(w, "Database: %s\n", a.Database)
	}
	for _, e := range a.Errors {
		fmt.Fprintf(w, "error: %s\n", e)
	}
	for _, k := range a.Added {
		fmt.Fprintf(w, "+ %s\n", k)
	}
	for _, k := range a.Changed {
		fmt.Fprintf(w, "~ %s\n", k)
	}
	for _, k := range a.Removed {
		fmt.Fprintf(w, "- %s\n", k)
	}
}

func formatDocumentsText(w io.Writer, docs []CLIDocument) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPATH\tKIND")
	for _, d := range docs {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", d.ID, d.Path, d.Kind)
	}
	tw.Flush()
}

func formatFeaturesText(w io.Writer, features []CLIFeature) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKINDS\tTAG\tFILE\tLINE")
	for _, f := range features {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n",
			f.Name, strings.Join(f.Kinds, ","), f.TagName, f.File, f.StartLine)
	}
	tw.Flush()
}

func formatMembersText(w io.Writer, members []CLIMember) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tPRIVACY\tSTATIC\tFROM")
	for _, m := range members {
		static := ""
		if m.Static {
			static = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", m.Name, m.Kind, m.Privacy, static, m.InheritedFrom)
	}
	tw.Flush()
}

func formatWarningsText(w io.Writer, warnings []CLIWarning) {
	for _, wr := range warnings {
		fmt.Fprintf(w, "%s:%d:%d: %s [%s] %s\n",
			wr.File, wr.StartLine, wr.StartCol, wr.Severity, wr.Code, wr.Message)
	}
}

// outputResultText dispatches to the text formatter for the result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case CLIAnalysis:
		formatAnalysisText(w, v)
	case []CLIDocument:
		formatDocumentsText(w, v)
	case []CLIFeature:
		formatFeaturesText(w, v)
	case []CLIMember:
		formatMembersText(w, v)
	case []CLIWarning:
		formatWarningsText(w, v)
	case []string:
		for _, s := range v {
			fmt.Fprintln(w, s)
		}
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}
