package export

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"go-callgraph/internal/driver"
	"go-callgraph/internal/graph"
)

const neo4jBatchSize = 5000

// Neo4jConfig holds the connection settings of a Neo4jSink.
type Neo4jConfig struct {
	URI      string
	User     string
	Password string
	// Clean removes previously loaded call graph data before writing.
	Clean bool
}

// cypherRunner runs a single Cypher statement with optional parameters.
type cypherRunner func(ctx context.Context, cypher string, params map[string]any) error

// Neo4jSink loads unit reports into a Neo4j database using batch UNWIND
// queries.
type Neo4jSink struct {
	driver neo4j.DriverWithContext
	run    cypherRunner
	clean  bool
	log    logrus.FieldLogger
}

// NewNeo4jSink connects to Neo4j and verifies the connection.
func NewNeo4jSink(ctx context.Context, cfg Neo4jConfig, log logrus.FieldLogger) (*Neo4jSink, error) {
	drv, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := drv.VerifyConnectivity(ctx); err != nil {
		_ = drv.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity check failed: %w", err)
	}
	s := &Neo4jSink{driver: drv, clean: cfg.Clean, log: orDiscard(log)}
	s.run = func(ctx context.Context, cypher string, params map[string]any) error {
		_, err := neo4j.ExecuteQuery(ctx, drv, cypher, params, neo4j.EagerResultTransformer)
		return err
	}
	return s, nil
}

// Close releases the underlying driver.
func (s *Neo4jSink) Close() error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Close(context.Background())
}

// Write upserts every unit of the run.
func (s *Neo4jSink) Write(ctx context.Context, runID string, reports []driver.UnitReport) error {
	if s.clean {
		if err := s.cleanGraph(ctx); err != nil {
			return fmt.Errorf("clean graph: %w", err)
		}
	}
	if err := s.createIndexes(ctx); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	for _, ur := range reports {
		if ur.Report == nil {
			continue
		}
		if err := s.writeUnit(ctx, runID, ur); err != nil {
			return fmt.Errorf("unit %s: %w", ur.Unit, err)
		}
	}
	return nil
}

func (s *Neo4jSink) cleanGraph(ctx context.Context) error {
	s.log.Info("Cleaning existing call graph data")
	queries := []string{
		"MATCH ()-[r:STATIC_CALL]->() DELETE r",
		"MATCH ()-[r:DYNAMIC_CALL]->() DELETE r",
		"MATCH ()-[r:IMPLEMENTS_DECL]->() DELETE r",
		"MATCH ()-[r:IN_UNIT]->() DELETE r",
		"MATCH (n:CGUnit) DETACH DELETE n",
		"MATCH (n:CGFunction) DETACH DELETE n",
		"MATCH (n:CGMethodDecl) DETACH DELETE n",
	}
	for _, q := range queries {
		if err := s.run(ctx, q, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *Neo4jSink) createIndexes(ctx context.Context) error {
	indexes := []string{
		"CREATE INDEX cg_unit_id IF NOT EXISTS FOR (n:CGUnit) ON (n.id)",
		"CREATE INDEX cg_function_id IF NOT EXISTS FOR (n:CGFunction) ON (n.id)",
		"CREATE INDEX cg_method_decl_id IF NOT EXISTS FOR (n:CGMethodDecl) ON (n.id)",
	}
	for _, q := range indexes {
		if err := s.run(ctx, q, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *Neo4jSink) writeUnit(ctx context.Context, runID string, ur driver.UnitReport) error {
	rep := ur.Report
	s.log.WithFields(logrus.Fields{"unit": ur.Unit, "run": runID}).Debug("Loading unit into neo4j")

	if err := s.run(ctx,
		`MERGE (u:CGUnit {id: $unit})
		 SET u.kind = $kind, u.run_id = $run`,
		map[string]any{"unit": ur.Unit, "kind": ur.Kind.String(), "run": runID},
	); err != nil {
		return err
	}

	steps := []struct {
		cypher string
		rows   []map[string]any
	}{
		{cypherFunctions, defRows(ur.Unit, runID, rep.Functions)},
		{cypherMethodDecls, defRows(ur.Unit, runID, rep.MethodDecls)},
		{cypherImpls, implRows(runID, rep.MethodImpls)},
		{cypherCalls("CGFunction", "STATIC_CALL"), callRows(ur.Unit, runID, rep.StaticCalls)},
		{cypherCalls("CGMethodDecl", "DYNAMIC_CALL"), callRows(ur.Unit, runID, rep.DynamicCalls)},
	}
	for _, st := range steps {
		for _, batch := range chunk(st.rows, neo4jBatchSize) {
			if err := s.run(ctx, st.cypher, map[string]any{"batch": batch}); err != nil {
				return err
			}
		}
	}
	return nil
}

const cypherFunctions = `UNWIND $batch AS row
 MERGE (n:CGFunction {id: row.id})
 SET n.file = row.file, n.line = row.line, n.col = row.col,
     n.end_line = row.end_line, n.run_id = row.run
 WITH n, row
 MATCH (u:CGUnit {id: row.unit})
 MERGE (n)-[:IN_UNIT]->(u)`

const cypherMethodDecls = `UNWIND $batch AS row
 MERGE (n:CGMethodDecl {id: row.id})
 SET n.file = row.file, n.line = row.line, n.col = row.col,
     n.end_line = row.end_line, n.run_id = row.run
 WITH n, row
 MATCH (u:CGUnit {id: row.unit})
 MERGE (n)-[:IN_UNIT]->(u)`

const cypherImpls = `UNWIND $batch AS row
 MATCH (d:CGMethodDecl {id: row.decl})
 MERGE (f:CGFunction {id: row.impl})
 MERGE (f)-[r:IMPLEMENTS_DECL]->(d)
 SET r.run_id = row.run`

// cypherCalls upserts call edges. Calls outside any function hang off the
// unit node.
func cypherCalls(calleeLabel, rel string) string {
	return `UNWIND $batch AS row
 CALL {
   WITH row
   OPTIONAL MATCH (f:CGFunction {id: row.caller})
   OPTIONAL MATCH (u:CGUnit {id: row.unit})
   RETURN coalesce(f, u) AS caller
 }
 MERGE (callee:` + calleeLabel + ` {id: row.callee})
 WITH caller, callee, row
 WHERE caller IS NOT NULL
 MERGE (caller)-[r:` + rel + ` {site: row.site}]->(callee)
 SET r.file = row.file, r.line = row.line, r.col = row.col, r.run_id = row.run`
}

func defRows(unit, runID string, fns []graph.Function) []map[string]any {
	rows := make([]map[string]any, 0, len(fns))
	for _, f := range fns {
		rows = append(rows, map[string]any{
			"id":       string(f.ID),
			"unit":     unit,
			"run":      runID,
			"file":     f.Span.File,
			"line":     f.Span.StartLine,
			"col":      f.Span.StartCol,
			"end_line": f.Span.EndLine,
		})
	}
	return rows
}

func implRows(runID string, impls []graph.MethodImpls) []map[string]any {
	var rows []map[string]any
	for _, mi := range impls {
		for _, impl := range mi.Impls {
			rows = append(rows, map[string]any{
				"decl": string(mi.Decl),
				"impl": string(impl),
				"run":  runID,
			})
		}
	}
	return rows
}

func callRows(unit, runID string, calls []graph.Call) []map[string]any {
	rows := make([]map[string]any, 0, len(calls))
	for _, c := range calls {
		rows = append(rows, map[string]any{
			"site":   string(c.Site),
			"unit":   unit,
			"run":    runID,
			"caller": string(c.Caller),
			"callee": string(c.Callee),
			"file":   c.SiteSpan.File,
			"line":   c.SiteSpan.StartLine,
			"col":    c.SiteSpan.StartCol,
		})
	}
	return rows
}

func chunk(rows []map[string]any, size int) [][]map[string]any {
	var out [][]map[string]any
	for len(rows) > size {
		out = append(out, rows[:size])
		rows = rows[size:]
	}
	if len(rows) > 0 {
		out = append(out, rows)
	}
	return out
}
