package balancer

import (
	"context"
	"errors"
	"time"

	"github.com/apexgate/upstreamcore/internal/dnsclient"
	"github.com/apexgate/upstreamcore/internal/log"
	"github.com/apexgate/upstreamcore/internal/ringbalancer"
	"github.com/apexgate/upstreamcore/internal/types"
)

// Execute is the hot path: given a per-request target record, it resolves a
// concrete peer and writes ip/port/hostname back onto the record. A nil
// return means success; otherwise the error is always an *ExecError
// carrying the HTTP-shaped status code for the failure class.
func (c *Core) Execute(ctx context.Context, rec *types.TargetRecord) error {
	if c.Tracer != nil {
		var end func()
		ctx, end = c.Tracer.StartExecuteSpan(ctx, rec.Host)
		defer end()
	}

	start := time.Now()
	outcome := "ok"
	defer func() {
		if c.Metrics != nil {
			c.Metrics.ExecuteDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
			c.Metrics.ExecuteOutcomes.WithLabelValues(outcome).Inc()
		}
	}()

	if rec.Type != types.TargetTypeName {
		port := rec.Port
		if port == 0 {
			port = c.Config.Balancer.DefaultLiteralPort
		}
		rec.IP = rec.Host
		rec.OutPort = port
		rec.Hostname = rec.Host
		return nil
	}

	cacheOnly := rec.TryCount != 0

	var b *Balancer
	if rec.TryCount == 0 {
		found, err := c.getBalancer(ctx, rec.Host, false)
		switch {
		case errors.Is(err, ErrUpstreamNotFound):
			// Plain-DNS path: no upstream by this name, fall through below.
		case err != nil:
			outcome = "error"
			return &ExecError{Status: 500, Message: err.Error()}
		default:
			b = found
			rec.Balancer = found
			if rec.HashValue == nil {
				rec.HashValue = createHash(found.upstream, rec)
			}
		}
	} else if cached, ok := rec.Balancer.(*Balancer); ok && cached != nil {
		b = cached
	}

	if b != nil {
		ip, port, hostname, err := b.ring.GetPeer(ctx, rec.HashValue, rec.TryCount, cacheOnly)
		if err != nil {
			if errors.Is(err, ringbalancer.ErrNoPeerAvailable) {
				outcome = "no_peer"
				return &ExecError{Status: 503, Message: "failure to get a peer from the ring-balancer"}
			}
			outcome = "error"
			return &ExecError{Status: 500, Message: err.Error()}
		}
		rec.IP, rec.OutPort, rec.Hostname = ip, port, hostname
		return nil
	}

	ip, port, _, err := c.DNS.Resolve(ctx, rec.Host, rec.Port, cacheOnly)
	if err != nil {
		if errors.Is(err, dnsclient.ErrNameError) {
			outcome = "nxdomain"
			return &ExecError{Status: 503, Message: "name resolution failed"}
		}
		outcome = "error"
		return &ExecError{Status: 500, Message: err.Error()}
	}

	rec.IP, rec.OutPort, rec.Hostname = ip, port, rec.Host
	return nil
}

// LogExecuteOutcome is a small helper so callers wiring their own pipeline
// logging get structured fields consistent with the rest of the core.
func LogExecuteOutcome(logger log.Logger, rec *types.TargetRecord, err error) {
	fields := []log.Field{log.String("host", rec.Host), log.Int("try_count", rec.TryCount)}
	if err != nil {
		logger.Warn("execute failed", append(fields, log.Err(err))...)
		return
	}
	logger.Debug("execute resolved", append(fields, log.String("ip", rec.IP), log.Int("port", rec.OutPort))...)
}
