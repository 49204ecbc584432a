// Package cli renders routines for the terminal and runs the interactive menu.
package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/xlab/treeprint"

	domroutine "github.com/tonydantona/practice-routines-api/internal/domain/routine"
	builduc "github.com/tonydantona/practice-routines-api/internal/usecase/build"
)

var separator = strings.Repeat("-", 40)

// Display writes human-readable routine listings.
type Display struct {
	out io.Writer
}

// NewDisplay creates a Display writing to out.
func NewDisplay(out io.Writer) *Display {
	return &Display{out: out}
}

// ShowRoutines prints one block per routine.
func (d *Display) ShowRoutines(routines []domroutine.Routine) {
	if len(routines) == 0 {
		fmt.Fprint(d.out, "\nNo practice routines found.\n\n")
		return
	}

	fmt.Fprintf(d.out, "\nPractice routines (%d found):\n\n", len(routines))
	for _, rt := range routines {
		fmt.Fprintf(d.out, "ID      : %s\n", rt.ID())
		fmt.Fprintf(d.out, "Text    : %s\n", rt.Text())
		fmt.Fprintf(d.out, "Category: %s\n", rt.Category())
		fmt.Fprintf(d.out, "Tags    : %s\n", rt.TagsString())
		fmt.Fprintf(d.out, "State   : %s\n", rt.State())
		fmt.Fprintln(d.out, separator)
	}
}

// ShowSearchResults prints semantic search hits with their distance.
func (d *Display) ShowSearchResults(query string, routines []domroutine.Routine) {
	fmt.Fprintf(d.out, "\nTop matches for: '%s'\n\n", query)

	if len(routines) == 0 {
		fmt.Fprintln(d.out, "No close matches - try rewording your query.")
		return
	}

	for _, rt := range routines {
		if score, ok := rt.Score(); ok {
			fmt.Fprintf(d.out, "Score   : %.4f\n", score)
		}
		fmt.Fprintf(d.out, "ID      : %s\n", rt.ID())
		fmt.Fprintf(d.out, "Text    : %s\n", rt.Text())
		fmt.Fprintf(d.out, "Category: %s\n", rt.Category())
		fmt.Fprintf(d.out, "Tags    : %s\n", rt.TagsString())
		fmt.Fprintln(d.out, separator)
	}
}

// ShowTree prints routines grouped by category, categories sorted by name.
func (d *Display) ShowTree(routines []domroutine.Routine) {
	tree := treeprint.NewWithRoot(fmt.Sprintf("routines (%d)", len(routines)))

	byCategory := make(map[string][]domroutine.Routine)
	for _, rt := range routines {
		byCategory[rt.Category()] = append(byCategory[rt.Category()], rt)
	}
	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	slices.Sort(categories)

	for _, c := range categories {
		branch := tree.AddBranch(fmt.Sprintf("%s (%d)", c, len(byCategory[c])))
		for _, rt := range byCategory[c] {
			branch.AddMetaNode(rt.State(), fmt.Sprintf("%s  %s", rt.Text(), rt.ID()))
		}
	}

	fmt.Fprint(d.out, tree.String())
}

// ShowBuildResult reports what a database build did.
func (d *Display) ShowBuildResult(res builduc.Result) {
	if res.Skipped {
		fmt.Fprintln(d.out, "Database already populated. Skipping rebuild. Use force to rebuild.")
		return
	}
	if res.Deleted > 0 {
		fmt.Fprintf(d.out, "Force rebuild enabled. Deleted %d existing routines.\n", res.Deleted)
	}
	fmt.Fprintf(d.out, "Routines added and saved (%d).\n", res.Added)
}
