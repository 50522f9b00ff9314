package service

import (
	"context"

	domainauth "github.com/medibook/clinic-gate/internal/domain/auth"
)

// StateSource is the part of SessionMachine a decision watcher needs.
type StateSource interface {
	Subscribe() (<-chan domainauth.State, func())
}

// WatchDecisions emits the route decision for the current state and again for
// every state change. The channel closes when ctx ends or the source closes.
func WatchDecisions(ctx context.Context, src StateSource, route domainauth.Route) <-chan domainauth.Decision {
	states, cancel := src.Subscribe()
	out := make(chan domainauth.Decision, 1)
	go func() {
		defer close(out)
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case st, ok := <-states:
				if !ok {
					return
				}
				select {
				case out <- domainauth.Decide(st, route):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// AwaitDecision blocks until the route decision is something other than
// ShowLoading, or ctx ends. It returns the last decision seen.
func AwaitDecision(ctx context.Context, src StateSource, route domainauth.Route) domainauth.Decision {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	last := domainauth.Decision{Kind: domainauth.DecisionShowLoading}
	for d := range WatchDecisions(wctx, src, route) {
		last = d
		if d.Kind != domainauth.DecisionShowLoading {
			return d
		}
	}
	return last
}
