package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	domroutine "github.com/tonydantona/practice-routines-api/internal/domain/routine"
	"github.com/tonydantona/practice-routines-api/internal/logger"
	builduc "github.com/tonydantona/practice-routines-api/internal/usecase/build"
)

// RoutineService is the consumer interface for the menu (ISP).
type RoutineService interface {
	GetAllRoutines(ctx context.Context) ([]domroutine.Routine, error)
	GetRoutinesByCategory(ctx context.Context, category string, state domroutine.State) ([]domroutine.Routine, error)
	SearchRoutines(ctx context.Context, query string, topN int, minScore float64) ([]domroutine.Routine, error)
	GetNotCompletedRoutines(ctx context.Context) ([]domroutine.Routine, error)
	MarkRoutineCompleted(ctx context.Context, id string) error
}

// Builder loads routines into the store.
type Builder interface {
	Build(ctx context.Context, routines []domroutine.Routine, force bool) (builduc.Result, error)
}

// LoadFunc reads the routines a build writes.
type LoadFunc func() ([]domroutine.Routine, error)

const menuText = `
--- Virtual Jar Menu ---
0. Build database
1. Get all practice routines
2. Search routines by category
3. Search routines by text
4. Get not-completed routines
5. Mark a routine as completed
6. Exit
`

// Menu is the interactive numbered menu.
type Menu struct {
	in       io.Reader
	out      io.Writer
	display  *Display
	routines RoutineService
	builder  Builder
	load     LoadFunc
	topN     int
	minScore float64
	timeout  time.Duration
}

// NewMenu creates a menu reading choices from in and writing to out.
// Search uses top 5 and a distance cutoff of 1.0 until WithSearch changes them.
func NewMenu(in io.Reader, out io.Writer, routines RoutineService, builder Builder, load LoadFunc) *Menu {
	return &Menu{
		in:       in,
		out:      out,
		display:  NewDisplay(out),
		routines: routines,
		builder:  builder,
		load:     load,
		topN:     5,
		minScore: 1.0,
	}
}

// WithSearch sets the top_n and min_score used by text search.
func (m *Menu) WithSearch(topN int, minScore float64) *Menu {
	if topN > 0 {
		m.topN = topN
	}
	m.minScore = minScore
	return m
}

// WithTimeout bounds each menu action. Zero means no limit.
func (m *Menu) WithTimeout(d time.Duration) *Menu {
	m.timeout = d
	return m
}

// Run loops until the user exits, input ends or ctx is cancelled.
func (m *Menu) Run(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(m.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	read := func(label string) (string, error) {
		fmt.Fprint(m.out, label)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return "", io.EOF
			}
			return strings.TrimSpace(line), nil
		}
	}

	for {
		fmt.Fprint(m.out, menuText)
		choice, err := read("Enter choice (0-6): ")
		if err == nil {
			if choice == "6" {
				logger.FromContext(ctx).Info("User exiting CLI")
				fmt.Fprintln(m.out, "Goodbye!")
				return nil
			}
			err = m.dispatch(ctx, choice, read)
		}

		switch {
		case errors.Is(err, io.EOF):
			fmt.Fprint(m.out, "\n\nGoodbye!\n")
			return nil
		case err != nil && ctx.Err() != nil:
			fmt.Fprint(m.out, "\n\nInterrupted. Goodbye!\n")
			return nil
		}
	}
}

// dispatch runs one menu choice. Only input errors are returned; action
// failures are reported to the user and the loop continues.
func (m *Menu) dispatch(ctx context.Context, choice string, read func(string) (string, error)) error {
	switch choice {
	case "0":
		confirm, err := read("Database already exists. Rebuild from scratch? (y/N): ")
		if err != nil {
			return err
		}
		m.handleBuild(ctx, strings.ToLower(confirm) == "y")
	case "1":
		m.handleList(ctx, "Error retrieving routines", m.routines.GetAllRoutines)
	case "2":
		category, err := read("Enter category (e.g., daily, one_day): ")
		if err != nil {
			return err
		}
		if category == "" {
			fmt.Fprintln(m.out, "Error: Category cannot be empty.")
			return nil
		}
		m.handleList(ctx, "Error searching by category", func(ctx context.Context) ([]domroutine.Routine, error) {
			return m.routines.GetRoutinesByCategory(ctx, category, domroutine.AnyState)
		})
	case "3":
		query, err := read("Enter search phrase (e.g., scales): ")
		if err != nil {
			return err
		}
		if query == "" {
			fmt.Fprintln(m.out, "Error: Search query cannot be empty.")
			return nil
		}
		m.handleSearch(ctx, query)
	case "4":
		m.handleList(ctx, "Error retrieving not-completed routines", m.routines.GetNotCompletedRoutines)
	case "5":
		id, err := read("Enter ID of routine to mark as completed: ")
		if err != nil {
			return err
		}
		if id == "" {
			fmt.Fprintln(m.out, "Error: Routine ID cannot be empty.")
			return nil
		}
		m.handleMarkCompleted(ctx, id)
	default:
		fmt.Fprintln(m.out, "Invalid choice. Try again.")
	}
	return nil
}

func (m *Menu) handleBuild(ctx context.Context, force bool) {
	ctx, cancel := m.actionContext(ctx)
	defer cancel()

	routines, err := m.load()
	if err != nil {
		m.report(ctx, "Error building database", err)
		return
	}

	fmt.Fprintln(m.out, "Building database...")
	res, err := m.builder.Build(ctx, routines, force)
	if err != nil {
		m.report(ctx, "Error building database", err)
		return
	}
	m.display.ShowBuildResult(res)
}

func (m *Menu) handleList(
	ctx context.Context, failure string, list func(context.Context) ([]domroutine.Routine, error),
) {
	ctx, cancel := m.actionContext(ctx)
	defer cancel()

	routines, err := list(ctx)
	if err != nil {
		m.report(ctx, failure, err)
		return
	}
	m.display.ShowRoutines(routines)
}

func (m *Menu) handleSearch(ctx context.Context, query string) {
	ctx, cancel := m.actionContext(ctx)
	defer cancel()

	routines, err := m.routines.SearchRoutines(ctx, query, m.topN, m.minScore)
	if err != nil {
		m.report(ctx, "Error searching by text", err)
		return
	}
	m.display.ShowSearchResults(query, routines)
}

func (m *Menu) handleMarkCompleted(ctx context.Context, id string) {
	ctx, cancel := m.actionContext(ctx)
	defer cancel()

	if err := m.routines.MarkRoutineCompleted(ctx, id); err != nil {
		m.report(ctx, "Error marking routine as completed", err)
		return
	}
	fmt.Fprintln(m.out, "Routine marked as completed.")
}

func (m *Menu) report(ctx context.Context, failure string, err error) {
	logger.FromContext(ctx).Error(failure, zap.Error(err))
	fmt.Fprintf(m.out, "%s: %v\n", failure, err)
}

func (m *Menu) actionContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout > 0 {
		return context.WithTimeout(ctx, m.timeout)
	}
	return context.WithCancel(ctx)
}
