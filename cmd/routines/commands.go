package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	domroutine "github.com/tonydantona/practice-routines-api/internal/domain/routine"
	"github.com/tonydantona/practice-routines-api/internal/transport/cli"
)

// errNoMatch makes `random` exit non-zero when the filter matches nothing.
var errNoMatch = errors.New("no routines found for this category and state")

func newBuildCmd(opts *options) *cobra.Command {
	var (
		force bool
		file  string
	)
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Embed the routines file and load it into the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := setup(cmd.Context(), opts, "cli")
			if err != nil {
				return err
			}
			defer s.close()

			routines, err := s.app.LoadRoutinesFrom(file)
			if err != nil {
				return err
			}

			ctx, cancel := s.opContext(cmd.Context(), opts.timeout)
			defer cancel()

			fmt.Fprintln(cmd.OutOrStdout(), "Building database...")
			res, err := s.app.Builder().Build(ctx, routines, force)
			if err != nil {
				return fmt.Errorf("build database: %w", err)
			}
			cli.NewDisplay(cmd.OutOrStdout()).ShowBuildResult(res)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "delete existing routines and rebuild")
	cmd.Flags().StringVar(&file, "file", "", "routines JSON file (default: routines.file from config)")
	return cmd
}

func newListCmd(opts *options) *cobra.Command {
	var (
		category string
		state    string
		tree     bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List routines, optionally filtered by category and state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := parseState(state)
			if err != nil {
				return err
			}

			s, err := setup(cmd.Context(), opts, "cli")
			if err != nil {
				return err
			}
			defer s.close()

			ctx, cancel := s.opContext(cmd.Context(), opts.timeout)
			defer cancel()

			svc := s.app.Routines()
			var routines []domroutine.Routine
			switch {
			case category != "":
				routines, err = svc.GetRoutinesByCategory(ctx, category, st)
			case st != domroutine.AnyState:
				routines, err = svc.GetRoutinesByState(ctx, st)
			default:
				routines, err = svc.GetAllRoutines(ctx)
			}
			if err != nil {
				return fmt.Errorf("list routines: %w", err)
			}

			display := cli.NewDisplay(cmd.OutOrStdout())
			if tree {
				display.ShowTree(routines)
			} else {
				display.ShowRoutines(routines)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "only routines in this category")
	cmd.Flags().StringVar(&state, "state", "", "not_completed, completed or all")
	cmd.Flags().BoolVar(&tree, "tree", false, "group output by category")
	return cmd
}

func newSearchCmd(opts *options) *cobra.Command {
	var (
		topN     int
		minScore float64
	)
	cmd := &cobra.Command{
		Use:   "search QUERY...",
		Short: "Semantic search over routine texts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := setup(cmd.Context(), opts, "cli")
			if err != nil {
				return err
			}
			defer s.close()

			if !cmd.Flags().Changed("top-n") {
				topN = s.cfg.CLI.TopN
			}
			if !cmd.Flags().Changed("min-score") {
				minScore = s.cfg.CLI.MinScore
			}

			ctx, cancel := s.opContext(cmd.Context(), opts.timeout)
			defer cancel()

			query := strings.Join(args, " ")
			routines, err := s.app.Routines().SearchRoutines(ctx, query, topN, minScore)
			if err != nil {
				return fmt.Errorf("search routines: %w", err)
			}
			cli.NewDisplay(cmd.OutOrStdout()).ShowSearchResults(query, routines)
			return nil
		},
	}
	cmd.Flags().IntVar(&topN, "top-n", 5, "number of nearest routines to consider (default: cli.top_n)")
	cmd.Flags().Float64Var(&minScore, "min-score", 1.0, "maximum distance to keep (default: cli.min_score)")
	return cmd
}

func newRandomCmd(opts *options) *cobra.Command {
	var (
		category string
		state    string
	)
	cmd := &cobra.Command{
		Use:   "random",
		Short: "Pick a random routine from a category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := parseState(state)
			if err != nil {
				return err
			}

			s, err := setup(cmd.Context(), opts, "cli")
			if err != nil {
				return err
			}
			defer s.close()

			ctx, cancel := s.opContext(cmd.Context(), opts.timeout)
			defer cancel()

			rt, found, err := s.app.Routines().GetRandomRoutineByCategory(ctx, category, st)
			if err != nil {
				return fmt.Errorf("pick routine: %w", err)
			}
			if !found {
				return errNoMatch
			}
			fmt.Fprintln(cmd.OutOrStdout(), rt.Text())
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "category to pick from")
	cmd.Flags().StringVar(&state, "state", string(domroutine.StateNotCompleted), "not_completed, completed or all")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func newCompleteCmd(opts *options) *cobra.Command {
	return newTransitionCmd(opts, "complete", "Mark a routine as completed", domroutine.StateCompleted)
}

func newUncompleteCmd(opts *options) *cobra.Command {
	return newTransitionCmd(opts, "uncomplete", "Mark a routine as not completed", domroutine.StateNotCompleted)
}

func newTransitionCmd(opts *options, use, short string, target domroutine.State) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := setup(cmd.Context(), opts, "cli")
			if err != nil {
				return err
			}
			defer s.close()

			ctx, cancel := s.opContext(cmd.Context(), opts.timeout)
			defer cancel()

			id := args[0]
			svc := s.app.Routines()
			if target == domroutine.StateCompleted {
				err = svc.MarkRoutineCompleted(ctx, id)
			} else {
				err = svc.MarkRoutineNotCompleted(ctx, id)
			}
			if err != nil {
				return fmt.Errorf("update routine: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Routine %s state updated to '%s'.\n", id, target)
			return nil
		},
	}
}

// parseState accepts "all" as well as the empty string for any state.
func parseState(v string) (domroutine.State, error) {
	if v == "all" {
		return domroutine.AnyState, nil
	}
	st, err := domroutine.ParseState(v)
	if err != nil {
		return "", fmt.Errorf("--state: %w", err)
	}
	return st, nil
}
