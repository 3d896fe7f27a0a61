package export

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"go-callgraph/internal/driver"
	"go-callgraph/internal/graph"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    created_at TEXT NOT NULL,
    units INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS functions (
    run_id TEXT NOT NULL,
    unit TEXT NOT NULL,
    id TEXT NOT NULL,
    file TEXT,
    line INTEGER,
    col INTEGER,
    end_line INTEGER,
    end_col INTEGER,
    PRIMARY KEY (run_id, unit, id)
);

CREATE TABLE IF NOT EXISTS method_decls (
    run_id TEXT NOT NULL,
    unit TEXT NOT NULL,
    id TEXT NOT NULL,
    file TEXT,
    line INTEGER,
    col INTEGER,
    end_line INTEGER,
    end_col INTEGER,
    PRIMARY KEY (run_id, unit, id)
);

CREATE TABLE IF NOT EXISTS method_impls (
    run_id TEXT NOT NULL,
    unit TEXT NOT NULL,
    decl TEXT NOT NULL,
    impl TEXT NOT NULL,
    ord INTEGER NOT NULL,
    PRIMARY KEY (run_id, unit, decl, impl)
);

CREATE TABLE IF NOT EXISTS calls (
    run_id TEXT NOT NULL,
    unit TEXT NOT NULL,
    kind TEXT NOT NULL,
    site TEXT NOT NULL,
    file TEXT,
    line INTEGER,
    col INTEGER,
    caller TEXT,
    callee TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_calls_caller ON calls(run_id, caller, kind);
CREATE INDEX IF NOT EXISTS idx_calls_callee ON calls(run_id, callee, kind);
`

// SQLiteSink writes unit reports to a SQLite database. Runs accumulate;
// each is keyed by its run id.
type SQLiteSink struct {
	conn *sqlite.Conn
	log  logrus.FieldLogger
}

// NewSQLiteSink opens (creating if needed) the database at path and
// ensures the schema exists. Use ":memory:" for a throwaway database.
func NewSQLiteSink(path string, log logrus.FieldLogger) (*SQLiteSink, error) {
	flags := []sqlite.OpenFlags{sqlite.OpenCreate, sqlite.OpenReadWrite}
	if path != ":memory:" {
		flags = append(flags, sqlite.OpenWAL)
	}
	conn, err := sqlite.OpenConn(path, flags...)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := sqlitex.ExecuteTransient(conn, "PRAGMA synchronous = NORMAL", nil); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteSink{conn: conn, log: orDiscard(log)}, nil
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.conn.Close()
}

// Write stores the run in one immediate transaction.
func (s *SQLiteSink) Write(ctx context.Context, runID string, reports []driver.UnitReport) (err error) {
	s.conn.SetInterrupt(ctx.Done())
	defer s.conn.SetInterrupt(nil)

	endFn, err := sqlitex.ImmediateTransaction(s.conn)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer endFn(&err)

	if err := s.exec(`INSERT INTO runs (id, created_at, units) VALUES (?, ?, ?)`,
		runID, time.Now().UTC().Format(time.RFC3339), len(reports)); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for _, ur := range reports {
		if ur.Report == nil {
			continue
		}
		if err := s.writeUnit(runID, ur); err != nil {
			return fmt.Errorf("unit %s: %w", ur.Unit, err)
		}
	}
	s.log.WithFields(logrus.Fields{"run": runID, "units": len(reports)}).Info("Wrote run to sqlite")
	return nil
}

func (s *SQLiteSink) writeUnit(runID string, ur driver.UnitReport) error {
	rep := ur.Report
	for _, f := range rep.Functions {
		if err := s.insertDef("functions", runID, ur.Unit, f); err != nil {
			return err
		}
	}
	for _, d := range rep.MethodDecls {
		if err := s.insertDef("method_decls", runID, ur.Unit, d); err != nil {
			return err
		}
	}
	for _, mi := range rep.MethodImpls {
		for i, impl := range mi.Impls {
			if err := s.exec(`INSERT OR IGNORE INTO method_impls (run_id, unit, decl, impl, ord) VALUES (?, ?, ?, ?, ?)`,
				runID, ur.Unit, string(mi.Decl), string(impl), i); err != nil {
				return fmt.Errorf("insert impl %s: %w", impl, err)
			}
		}
	}
	for _, c := range rep.StaticCalls {
		if err := s.insertCall(runID, ur.Unit, graph.Static, c); err != nil {
			return err
		}
	}
	for _, c := range rep.DynamicCalls {
		if err := s.insertCall(runID, ur.Unit, graph.Dynamic, c); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteSink) insertDef(table, runID, unit string, f graph.Function) error {
	err := s.exec(`INSERT OR IGNORE INTO `+table+` (run_id, unit, id, file, line, col, end_line, end_col) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, unit, string(f.ID), textOrNull(f.Span.File),
		intOrNull(f.Span.StartLine), intOrNull(f.Span.StartCol),
		intOrNull(f.Span.EndLine), intOrNull(f.Span.EndCol))
	if err != nil {
		return fmt.Errorf("insert %s %s: %w", table, f.ID, err)
	}
	return nil
}

func (s *SQLiteSink) insertCall(runID, unit string, kind graph.CallKind, c graph.Call) error {
	err := s.exec(`INSERT INTO calls (run_id, unit, kind, site, file, line, col, caller, callee) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, unit, kindName(kind), string(c.Site), textOrNull(c.SiteSpan.File),
		intOrNull(c.SiteSpan.StartLine), intOrNull(c.SiteSpan.StartCol),
		textOrNull(string(c.Caller)), string(c.Callee))
	if err != nil {
		return fmt.Errorf("insert call %s→%s: %w", c.Caller, c.Callee, err)
	}
	return nil
}

func (s *SQLiteSink) exec(query string, args ...any) error {
	return sqlitex.Execute(s.conn, query, &sqlitex.ExecOptions{Args: args})
}

func textOrNull(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func intOrNull(val int) any {
	if val == 0 {
		return nil
	}
	return val
}
