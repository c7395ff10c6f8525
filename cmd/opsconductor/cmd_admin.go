package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/opsconductor/internal/audit"
)

func runEmailGet(ctx context.Context, a *app, args []string) error {
	if err := newFlagSet("email-target get").Parse(args); err != nil {
		return err
	}
	t, err := a.email.Resolve(ctx)
	if err != nil {
		return err
	}
	return printJSON(t)
}

func runEmailSet(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("email-target set")
	id := fs.Int64("id", 0, "target id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireID("id", *id); err != nil {
		return err
	}
	if err := a.email.Set(ctx, *id); err != nil {
		return err
	}
	fmt.Printf("email target set to %d\n", *id)
	return nil
}

func runEmailList(ctx context.Context, a *app, args []string) error {
	if err := newFlagSet("email-target list").Parse(args); err != nil {
		return err
	}
	targets, err := a.email.Eligible(ctx)
	if err != nil {
		return err
	}
	return printJSON(targets)
}

func runEmailClear(ctx context.Context, a *app, args []string) error {
	if err := newFlagSet("email-target clear").Parse(args); err != nil {
		return err
	}
	if err := a.email.Clear(ctx); err != nil {
		return err
	}
	fmt.Println("email target cleared")
	return nil
}

func runAuditList(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("audit list")
	var f audit.Filter
	var severity string
	since := fs.Duration("since", 0, "only events newer than this age (e.g. 24h)")
	fs.StringVar(&f.EventType, "type", "", "event type")
	fs.StringVar(&f.ResourceType, "resource", "", "resource type")
	fs.StringVar(&f.ResourceID, "resource-id", "", "resource id")
	fs.StringVar(&severity, "severity", "", "low, medium, high or critical")
	fs.IntVar(&f.Limit, "limit", 100, "maximum results")
	if err := fs.Parse(args); err != nil {
		return err
	}
	f.Severity = audit.Severity(severity)
	if *since > 0 {
		f.Since = time.Now().Add(-*since)
	}

	events, err := a.audit.List(ctx, f)
	if err != nil {
		return err
	}
	return printJSON(events)
}

func runAuditPrune(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("audit prune")
	olderThan := fs.Duration("older-than", 90*24*time.Hour, "delete events older than this age")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *olderThan <= 0 {
		return errors.New("-older-than must be positive")
	}
	n, err := a.audit.Prune(ctx, time.Now().Add(-*olderThan))
	if err != nil {
		return err
	}
	a.logger.Info("audit events pruned", zap.Int64("deleted", n), zap.Duration("older_than", *olderThan))
	fmt.Printf("%d audit events deleted\n", n)
	return nil
}
