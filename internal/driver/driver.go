// Package driver loads the packages of a Go module and runs the call graph
// visitor once per package.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/go/packages"

	"go-callgraph/internal/gohost"
	"go-callgraph/internal/graph"
	"go-callgraph/internal/visitor"
)

// DefaultTimeout is the wall-clock budget of one unit.
const DefaultTimeout = 60 * time.Minute

// ErrTimeout is returned when a unit exceeds its budget.
var ErrTimeout = errors.New("unit analysis timed out")

// Kind distinguishes library units from binaries.
type Kind int

const (
	KindLibrary Kind = iota
	KindBinary
)

func (k Kind) String() string {
	if k == KindBinary {
		return "bin"
	}
	return "lib"
}

// Config controls loading and analysis.
type Config struct {
	Dir      string
	Patterns []string
	Tests    bool
	Jobs     int
	Timeout  time.Duration
}

// Unit is a package ready for analysis.
type Unit struct {
	Kind    Kind
	Package *gohost.Package
}

// UnitReport is the dump of one unit.
type UnitReport struct {
	Unit   string
	Kind   Kind
	Report *graph.Report
}

// Driver runs the visitor over every unit of a module.
type Driver struct {
	cfg    Config
	log    logrus.FieldLogger
	module string
	root   string

	analyze func(*gohost.Package) (*graph.Report, error)
}

// New creates a Driver. A nil logger discards output.
func New(cfg Config, log logrus.FieldLogger) *Driver {
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	if len(cfg.Patterns) == 0 {
		cfg.Patterns = []string{"./..."}
	}
	if cfg.Jobs <= 0 {
		cfg.Jobs = runtime.GOMAXPROCS(0)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		quiet := logrus.New()
		quiet.SetOutput(io.Discard)
		log = quiet
	}
	d := &Driver{cfg: cfg, log: log}
	d.analyze = d.analyzePackage
	return d
}

// Module returns the module path found by Load.
func (d *Driver) Module() string { return d.module }

// Load resolves the module and loads its packages.
func (d *Driver) Load(ctx context.Context) ([]Unit, error) {
	root, err := filepath.Abs(d.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("invalid dir: %w", err)
	}
	module, err := DetectModulePath(root)
	if err != nil {
		return nil, fmt.Errorf("cannot detect Go module: %w", err)
	}
	d.root, d.module = root, module
	d.log.WithFields(logrus.Fields{"module": module, "dir": root}).Info("Loading packages")

	cfg := &packages.Config{
		Context: ctx,
		Mode:    gohost.LoadMode,
		Dir:     root,
		Tests:   d.cfg.Tests,
	}
	pkgs, err := packages.Load(cfg, d.cfg.Patterns...)
	if err != nil {
		return nil, fmt.Errorf("failed to load packages: %w", err)
	}
	d.log.Infof("Loaded %d packages", len(pkgs))

	var units []Unit
	for _, p := range selectPackages(module, pkgs) {
		pkg, err := gohost.FromPackage(p)
		if err != nil {
			d.log.WithError(err).Warn("Skipping package")
			continue
		}
		units = append(units, Unit{Kind: kindOf(p.Name), Package: pkg})
	}
	Order(units)
	return units, nil
}

// selectPackages keeps module packages, drops synthesized test mains and,
// when a test variant of a package exists, the plain variant.
func selectPackages(module string, pkgs []*packages.Package) []*packages.Package {
	tested := make(map[string]bool)
	for _, p := range pkgs {
		if isTestVariant(p) {
			tested[p.PkgPath] = true
		}
	}
	var out []*packages.Package
	for _, p := range pkgs {
		switch {
		case !inModule(module, p.PkgPath):
		case strings.HasSuffix(p.ID, ".test"):
		case !isTestVariant(p) && tested[p.PkgPath]:
		default:
			out = append(out, p)
		}
	}
	return out
}

func isTestVariant(p *packages.Package) bool {
	return strings.Contains(p.ID, " [")
}

func kindOf(name string) Kind {
	if name == "main" {
		return KindBinary
	}
	return KindLibrary
}

// Order sorts units libraries first, then by package path.
func Order(units []Unit) {
	sort.SliceStable(units, func(i, j int) bool {
		if units[i].Kind != units[j].Kind {
			return units[i].Kind < units[j].Kind
		}
		return units[i].Package.ID < units[j].Package.ID
	})
}

// Run analyzes units in order. All libraries finish before the first
// binary starts; within a group up to Jobs units run at once. Each unit
// gets its own registry. The first failure cancels the run.
func (d *Driver) Run(ctx context.Context, units []Unit) ([]UnitReport, error) {
	reports := make([]UnitReport, len(units))
	for _, kind := range []Kind{KindLibrary, KindBinary} {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(d.cfg.Jobs)
		for i := range units {
			if units[i].Kind != kind {
				continue
			}
			i := i
			g.Go(func() error {
				rep, err := d.runUnit(gctx, units[i].Package)
				if err != nil {
					return fmt.Errorf("%s: %w", units[i].Package.ID, err)
				}
				reports[i] = UnitReport{Unit: units[i].Package.ID, Kind: kind, Report: rep}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	return reports, nil
}

// runUnit analyzes one unit within the configured budget. The traversal
// itself is not interruptible; on timeout its result is discarded.
func (d *Driver) runUnit(ctx context.Context, pkg *gohost.Package) (*graph.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	type result struct {
		rep *graph.Report
		err error
	}
	done := make(chan result, 1)
	start := time.Now()
	go func() {
		rep, err := d.analyze(pkg)
		done <- result{rep, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		st := r.rep.Stats()
		d.log.WithFields(logrus.Fields{
			"unit":          pkg.ID,
			"functions":     st.Functions,
			"method_decls":  st.MethodDecls,
			"method_impls":  st.MethodImpls,
			"static_calls":  st.StaticCalls,
			"dynamic_calls": st.DynamicCalls,
			"elapsed":       time.Since(start).Round(time.Millisecond),
		}).Info("Analyzed unit")
		return r.rep, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, d.cfg.Timeout)
		}
		return nil, ctx.Err()
	}
}

func (d *Driver) analyzePackage(pkg *gohost.Package) (*graph.Report, error) {
	host := gohost.Build(pkg, gohost.WithRoot(d.root))
	return visitor.Analyze(host, visitor.WithLogger(d.log.WithField("unit", pkg.ID)))
}
