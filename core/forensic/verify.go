package forensic

import (
	"context"
	"fmt"
	"strings"

	"github.com/FocuswithJustin/sqlforensic/core/errors"
	"github.com/FocuswithJustin/sqlforensic/core/sqlite"
	"github.com/FocuswithJustin/sqlforensic/internal/logging"
)

// Check compares the regular rows recovered for one table with the count
// the SQLite engine reports.
type Check struct {
	Table     string
	Live      int64
	Recovered int
	Err       error
}

// OK reports whether both counts agree.
func (c Check) OK() bool {
	return c.Err == nil && c.Live == int64(c.Recovered)
}

// Verify counts the live rows of every recovered, non-dropped table through
// the SQLite driver and compares them with the regular rows read from the
// database file itself. The database is opened immutable, so neither it
// nor its WAL is modified; rows only present in the WAL are not counted on
// either side.
func Verify(ctx context.Context, path string, res *Result) ([]Check, error) {
	db, err := sqlite.OpenImmutable(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	defer db.Close()

	var out []Check
	for _, t := range res.Tables {
		if t.Kind != "table" || t.Dropped || t.RootPage == 0 || t.Name == UnassignedTable {
			continue
		}
		c := Check{Table: t.Name}
		for _, r := range t.Rows {
			if r.Type == Regular && r.Origin.Source != SourceWAL && r.Origin.Source != SourceJournal {
				c.Recovered++
			}
		}
		q := fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, strings.ReplaceAll(t.Name, `"`, `""`))
		if err := db.QueryRowContext(ctx, q).Scan(&c.Live); err != nil {
			c.Err = err
		}
		if !c.OK() {
			logging.Warn("verify mismatch", "table", t.Name, "live", c.Live, "recovered", c.Recovered, "error", c.Err)
		}
		out = append(out, c)
	}
	return out, nil
}
