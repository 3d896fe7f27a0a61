// Package export persists unit reports outside the process.
package export

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go-callgraph/internal/driver"
	"go-callgraph/internal/graph"
)

// Sink receives the reports of one run.
type Sink interface {
	Write(ctx context.Context, runID string, reports []driver.UnitReport) error
	Close() error
}

// NewRunID returns a fresh identifier that tags everything one invocation
// writes.
func NewRunID() string {
	return uuid.NewString()
}

// Multi fans a run out to several sinks.
type Multi []Sink

func (m Multi) Write(ctx context.Context, runID string, reports []driver.UnitReport) error {
	for _, s := range m {
		if err := s.Write(ctx, runID, reports); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// kindName is the stored form of a call kind.
func kindName(k graph.CallKind) string {
	if k == graph.Dynamic {
		return "dynamic"
	}
	return "static"
}

func orDiscard(log logrus.FieldLogger) logrus.FieldLogger {
	if log != nil {
		return log
	}
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	return quiet
}
