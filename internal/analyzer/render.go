package analyzer

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
)

var (
	headerStyle  = color.New(color.Bold)
	okMark       = color.New(color.FgGreen)
	mismatchMark = color.New(color.FgYellow)
	failMark     = color.New(color.FgRed)
)

// Render writes the report as an aligned table. Color output degrades to
// plain text automatically when stdout is not a terminal.
func Render(w io.Writer, report *Report) error {
	headerStyle.Fprintf(w, "%s==%s\n", report.Package, report.Version)
	if len(report.Dependencies) == 0 {
		fmt.Fprintln(w, "no direct dependencies")
		return nil
	}

	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEPENDENCY\tCONSTRAINT\tRESOLVED\tSTATUS")
	for _, dep := range report.Dependencies {
		constraint := dep.Constraint
		if constraint == "" {
			constraint = "*"
		}
		resolved := dep.Resolved
		if resolved == "" {
			resolved = "-"
		}
		// STATUS is the last column, so ANSI escapes cannot skew alignment.
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", dep.Name, constraint, resolved, statusText(dep))
	}
	return tw.Flush()
}

func statusText(dep Dependency) string {
	switch {
	case dep.Resolved == "" && dep.Note != "":
		return failMark.Sprint(dep.Note)
	case dep.Note != "":
		return mismatchMark.Sprint(dep.Note)
	default:
		return okMark.Sprint("ok")
	}
}
