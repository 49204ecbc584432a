// Package routinefile reads the routines JSON file used to build the database.
package routinefile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/tonydantona/practice-routines-api/internal/domain"
	"github.com/tonydantona/practice-routines-api/internal/domain/routine"
)

// Entry is one element of the file's top-level array.
type Entry struct {
	Text     string   `json:"text" validate:"required"`
	Category string   `json:"category" validate:"required"`
	Tags     []string `json:"tags" validate:"omitempty,dive,required"`
	State    string   `json:"state,omitempty" validate:"omitempty,oneof=not_completed completed"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads and validates the file at path.
func Load(path string) ([]routine.Routine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open routines file: %w", err)
	}
	defer func() { _ = f.Close() }()

	routines, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return routines, nil
}

// Decode reads a JSON array of entries. A single invalid entry fails the
// whole decode, naming its index.
func Decode(r io.Reader) ([]routine.Routine, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read routines: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, domain.InvalidArgument("routines file is empty")
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, domain.InvalidArgument("routines file is not a JSON array of routines: %v", err)
	}

	out := make([]routine.Routine, 0, len(entries))
	for i, e := range entries {
		if err := validate.Struct(e); err != nil {
			return nil, domain.InvalidArgument("routine %d: %s", i, describe(err))
		}
		rt, err := routine.New(e.Text, e.Category, e.Tags, routine.State(e.State))
		if err != nil {
			return nil, fmt.Errorf("routine %d: %w", i, err)
		}
		out = append(out, rt)
	}
	return out, nil
}

// describe flattens validator errors into "field: tag" pairs.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	var b bytes.Buffer
	for i, fe := range verrs {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s failed %q", fe.Field(), fe.Tag())
		if fe.Param() != "" {
			fmt.Fprintf(&b, " (%s)", fe.Param())
		}
	}
	return b.String()
}
