package routine

import (
	"fmt"

	"github.com/tonydantona/practice-routines-api/internal/db"
	domroutine "github.com/tonydantona/practice-routines-api/internal/domain/routine"
	"github.com/tonydantona/practice-routines-api/internal/domain/routine/filter"
)

// compileWhere is the only place a filter intent becomes a store filter.
// A single restriction is a bare predicate; two restrictions are an
// explicit $and.
func compileWhere(f filter.Intent) (db.Where, error) {
	if f == nil {
		return db.Where{}, nil
	}
	if err := f.Validate(); err != nil {
		return db.Where{}, err
	}

	switch v := f.(type) {
	case filter.NoFilter:
		return db.Where{}, nil
	case filter.CategoryOnly:
		return db.Bare(db.Eq(domroutine.KeyCategory, v.Category)), nil
	case filter.CategoryAndState:
		return db.And(
			db.Eq(domroutine.KeyCategory, v.Category),
			db.Eq(domroutine.KeyState, string(v.State)),
		), nil
	case filter.StateOnly:
		return db.Bare(db.Eq(domroutine.KeyState, string(v.State))), nil
	default:
		panic(fmt.Sprintf("unhandled filter intent %T", f))
	}
}
