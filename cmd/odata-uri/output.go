package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lemonberrylabs/odata-uri-parser/pkg/types"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/uriparser"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/uripath"
)

var (
	headerFmt  = color.New(color.FgBlue, color.Bold).SprintfFunc()
	nameFmt    = color.New(color.FgCyan).SprintfFunc()
	kindFmt    = color.New(color.FgYellow).SprintfFunc()
	dimFmt     = color.New(color.Faint).SprintfFunc()
	errorFmt   = color.New(color.FgRed, color.Bold).SprintfFunc()
	contextFmt = color.New(color.FgRed).SprintfFunc()
)

func printClauses(w io.Writer, clauses []uriparser.Clause) {
	width := 0
	for _, c := range clauses {
		width = max(width, len(c.Name))
	}
	for _, c := range clauses {
		fmt.Fprintf(w, "%s  %s\n", nameFmt("%-*s", width, c.Name), c.Text)
	}
}

func printSegments(w io.Writer, path *uripath.Path) {
	if path == nil || len(path.Segments) == 0 {
		fmt.Fprintln(w, dimFmt("(service document)"))
		return
	}
	for i, seg := range path.Segments {
		line := fmt.Sprintf("%2d  %s  %s", i, kindFmt("%-20s", seg.Kind.String()), seg.String())
		var details []string
		if seg.Type != nil {
			typeName := seg.Type.FullName()
			if seg.Collection {
				typeName = "Collection(" + typeName + ")"
			}
			details = append(details, typeName)
		}
		if seg.Source != nil {
			details = append(details, "source="+seg.Source.Name)
		}
		details = append(details, "target="+seg.Target.String())
		fmt.Fprintf(w, "%s  %s\n", line, dimFmt("%s", strings.Join(details, " ")))
	}
}

// reportError prints err to stderr, including the path resolution context of
// parse errors, and returns it so cobra exits non-zero.
func reportError(cmd *cobra.Command, err error) error {
	w := cmd.ErrOrStderr()
	fmt.Fprintf(w, "%s %v\n", errorFmt("error:"), err)

	var pe *types.ParseError
	if errors.As(err, &pe) {
		if pe.Kind == types.KindSyntax && pe.Position >= 0 && pe.Text != "" {
			fmt.Fprintf(w, "  %s\n  %s%s\n", pe.Text, strings.Repeat(" ", pe.Position), contextFmt("^"))
		}
		if pe.Path != nil {
			fmt.Fprintf(w, "  parsed:    %s\n", strings.Join(pe.Path.Parsed, "/"))
			fmt.Fprintf(w, "  segment:   %s\n", contextFmt("%s", pe.Path.Segment))
			if len(pe.Path.Remaining) > 0 {
				fmt.Fprintf(w, "  remaining: %s\n", strings.Join(pe.Path.Remaining, "/"))
			}
		}
	}
	return err
}
