package main

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/c360/flowtrace/component"
	"github.com/c360/flowtrace/config"
	"github.com/c360/flowtrace/errormapping"
	"github.com/c360/flowtrace/errors"
	"github.com/c360/flowtrace/errortype"
	"github.com/c360/flowtrace/event"
	"github.com/c360/flowtrace/flowtrace"
	"github.com/c360/flowtrace/metric"
	"github.com/c360/flowtrace/notification"
	"github.com/c360/flowtrace/report"
	"github.com/c360/flowtrace/resolver"
)

const probePipeline = "probe"

// configuredComponent is a component kind carrying the mappings from configuration
type configuredComponent struct {
	*component.Static
	mappings errormapping.Table
}

func (c *configuredComponent) ErrorMappings() errormapping.Table { return c.mappings }

type probeError struct {
	typ errortype.ErrorType
}

func (e *probeError) Error() string { return "synthetic " + e.typ.String() + " failure" }
func (e *probeError) ErrorType() errortype.ErrorType { return e.typ }

// runProbe raises a failure of typeName inside componentKey, resolves it the
// way a pipeline would and hands it to a reporter.
func runProbe(
	ctx context.Context,
	cfg *config.Config,
	typeName, componentKey string,
	publisher report.Publisher,
	logger *slog.Logger,
) (report.Report, error) {
	repo, err := cfg.BuildRepository()
	if err != nil {
		return report.Report{}, err
	}
	typ, ok := repo.LookupString(typeName)
	if !ok {
		return report.Report{}, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrUnknownErrorType, typeName),
			"probe", "runProbe", "error type lookup")
	}
	id, err := component.ParseIdentifier(componentKey)
	if err != nil {
		return report.Report{}, err
	}
	table, err := cfg.Mappings(repo, id)
	if err != nil {
		return report.Report{}, err
	}

	registry := metric.NewMetricsRegistry()
	manager, err := flowtrace.NewManager(ctx, cfg.ManagerConfig(),
		flowtrace.WithLogger(logger), flowtrace.WithMetrics(registry))
	if err != nil {
		return report.Report{}, err
	}
	defer func() {
		if err := manager.Close(); err != nil {
			logger.Warn("Failed to close call-stack manager", "error", err)
		}
	}()

	dispatcher := notification.NewDispatcher(logger)
	dispatcher.Register(manager)
	res := resolver.New(errortype.NewCatalog(repo),
		resolver.WithLogger(logger),
		resolver.WithMetrics(registry),
		resolver.WithDispatcher(dispatcher))

	failing := &configuredComponent{
		Static: &component.Static{
			Metadata: component.Metadata{Name: id.Name, Type: "processor"},
			ID:       id,
			Loc:      &component.Location{Path: probePipeline + "/processors/0", DocName: id.String()},
		},
		mappings: table,
	}

	ev := event.New(event.NewContext(appName), nil)
	dispatcher.PipelineStart(ev, probePipeline)
	dispatcher.ComponentPreInvoke(ev, failing)
	pe := res.Handle(ev, failing, &probeError{typ: typ})
	dispatcher.PipelineComplete(ev, probePipeline)

	now := time.Now()
	reporter := report.NewReporter(cfg.ApplicationID, publisher,
		report.WithLogger(logger),
		report.WithMetrics(registry),
		report.WithRetry(retryPolicy(cfg.Report)),
		report.WithClock(func() time.Time { return now }))
	return report.Build(cfg.ApplicationID, pe, now), reporter.Report(ctx, pe)
}

func retryPolicy(rc config.ReportConfig) report.RetryPolicy {
	if rc.PublishAttempts <= 1 {
		return report.NoRetry()
	}
	p := report.DefaultRetryPolicy()
	p.MaxAttempts = rc.PublishAttempts
	return p
}

func printReport(w io.Writer, rep report.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// explain prints the declared error types and the mapping table of every
// configured component kind
func explain(w io.Writer, cfg *config.Config) error {
	repo, err := cfg.BuildRepository()
	if err != nil {
		return err
	}
	tables, err := cfg.ComponentMappings(repo)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ERROR TYPE\tPARENT")
	for _, t := range repo.Types() {
		parent := "-"
		if p, ok := t.Parent(); ok {
			parent = p.String()
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", t, parent)
	}

	ids := make([]component.Identifier, 0, len(tables))
	for id := range tables {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b component.Identifier) int {
		return cmp.Compare(a.String(), b.String())
	})

	_, _ = fmt.Fprintln(tw, "\nCOMPONENT\tMAPPING")
	for _, id := range ids {
		for i, rule := range tables[id] {
			_, _ = fmt.Fprintf(tw, "%s\t%d: %s\n", id, i+1, rule)
		}
	}
	return tw.Flush()
}
