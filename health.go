// SPDX-License-Identifier: GPL-3.0-or-later

package unboundctl

import (
	"context"
	"errors"
	"fmt"
)

// HealthStatus is the outcome of [*Service.CheckHealth].
type HealthStatus int

const (
	// HealthHealthy means the server answered the status command and,
	// when a probe is configured, resolved the probe name.
	HealthHealthy HealthStatus = iota

	// HealthUnhealthy means one of the checks failed.
	HealthUnhealthy

	// HealthCanceled means the caller's context was done before the checks completed.
	HealthCanceled
)

// String implements [fmt.Stringer].
func (s HealthStatus) String() string {
	switch s {
	case HealthHealthy:
		return "healthy"
	case HealthUnhealthy:
		return "unhealthy"
	case HealthCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("HealthStatus(%d)", int(s))
	}
}

// HealthReport is returned by [*Service.CheckHealth].
type HealthReport struct {
	Status  HealthStatus
	Message string

	// Addrs contains the probe answers when a probe is configured.
	Addrs []string

	// Err is the cause of an unhealthy or canceled report.
	Err error
}

// CheckHealth runs the status command and, if configured with [WithProbe],
// resolves the probe name through the resolver's DNS listener.
func (s *Service) CheckHealth(ctx context.Context) HealthReport {
	result := s.Execute(ctx, NewStatusCommand())
	switch {
	case KindOf(result.Err) == KindCanceled:
		s.o.logger.Warn("health check canceled")
		return HealthReport{Status: HealthCanceled, Message: "health check was canceled", Err: result.Err}
	case !result.Success:
		return HealthReport{Status: HealthUnhealthy, Message: "Unbound server is not responding", Err: result.Err}
	}

	probe := s.o.probe
	if probe == nil {
		return HealthReport{Status: HealthHealthy, Message: "Unbound server is responding"}
	}
	addrs, err := probe.LookupA(ctx, probe.queryName())
	switch {
	case err != nil && (ctx.Err() != nil || errors.Is(err, context.Canceled)):
		s.o.logger.Warn("health check canceled")
		return HealthReport{Status: HealthCanceled, Message: "health check was canceled", Err: err}
	case err != nil:
		s.o.logger.Warn("resolution probe failed", "name", probe.queryName(), "err", err.Error())
		return HealthReport{
			Status:  HealthUnhealthy,
			Message: fmt.Sprintf("Unbound server is not resolving %s", probe.queryName()),
			Err:     err,
		}
	}
	return HealthReport{Status: HealthHealthy, Message: "Unbound server is responding", Addrs: addrs}
}
