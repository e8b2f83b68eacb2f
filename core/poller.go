package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pkt.systems/deskpilot/schema"
	"pkt.systems/pslog"
)

// statusCheckTimeout bounds a single status round trip so a hung endpoint
// cannot stall the poll loop.
const statusCheckTimeout = 8 * time.Second

// StatusPoller reconciles the controller's session phase with the remote
// endpoint. It is the only component allowed to move a session to inactive
// without an operator-initiated stop. The timer for the next check is armed
// only after the previous check completes, so checks never overlap.
type StatusPoller struct {
	svc             *service
	interval        time.Duration
	failureInterval time.Duration
	notify          chan struct{}
}

// NewStatusPoller constructs a poller for a service built by NewService.
func NewStatusPoller(svc Service) (*StatusPoller, error) {
	impl, ok := svc.(*service)
	if !ok {
		return nil, errors.New("unsupported service implementation")
	}
	return &StatusPoller{
		svc:             impl,
		interval:        impl.cfg.PollInterval,
		failureInterval: impl.cfg.PollFailureInterval,
		notify:          make(chan struct{}, 1),
	}, nil
}

// Notify wakes the poller ahead of its timer. Safe to call concurrently.
func (p *StatusPoller) Notify() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Run polls until the context is cancelled.
func (p *StatusPoller) Run(ctx context.Context) error {
	log := pslog.Ctx(ctx)
	log.Info("status poller started", "interval", p.interval, "failure_interval", p.failureInterval)
	timer := time.NewTimer(p.interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("status poller stopped")
			return nil
		case <-timer.C:
		case <-p.notify:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
		delay := p.checkOnce(ctx)
		if ctx.Err() != nil {
			log.Info("status poller stopped")
			return nil
		}
		timer.Reset(delay)
	}
}

// checkOnce performs one status check and returns the delay before the next.
func (p *StatusPoller) checkOnce(ctx context.Context) time.Duration {
	s := p.svc
	log := pslog.Ctx(ctx)

	s.mu.Lock()
	phase := s.phase
	version := s.version
	s.mu.Unlock()
	switch phase {
	case schema.PhaseActive, schema.PhaseInactive:
	default:
		// In-flight starts and stops own the state.
		return p.interval
	}

	checkCtx, cancel := context.WithTimeout(ctx, statusCheckTimeout)
	result, err := s.endpoint.Status(checkCtx)
	cancel()
	if ctx.Err() != nil {
		return p.interval
	}

	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		return p.interval
	}
	if s.version != version || s.phase != phase {
		s.mu.Unlock()
		log.Debug("status check discarded", "reason", "state changed during check")
		return p.interval
	}
	if phase == schema.PhaseInactive {
		// Drift in the other direction: an instance that came up after a
		// start settled locally as failed (e.g. the start call timed out).
		if err != nil {
			s.mu.Unlock()
			log.Debug("status check failed while inactive", "err", err)
			return p.failureInterval
		}
		if !result.Active {
			s.mu.Unlock()
			return p.interval
		}
		s.phase = schema.PhaseActive
		s.streamURL = result.StreamURL
		s.message = remoteMessage(messageReattached, result.Message)
		entry := s.history.Append(schema.OriginSystem, s.message)
		s.version++
		snapshot := s.snapshotLocked()
		s.mu.Unlock()
		s.emitHistory(entry)
		s.emitSession(snapshot)
		log.Info("status check reattached running instance", "stream_url", result.StreamURL)
		return p.interval
	}
	if err != nil {
		s.phase = schema.PhaseInactive
		s.streamURL = ""
		s.paused = false
		s.message = fmt.Sprintf("Lost contact with agent: %v", err)
		entry := s.history.Append(schema.OriginSystem, s.message)
		s.version++
		snapshot := s.snapshotLocked()
		s.mu.Unlock()
		s.emitHistory(entry)
		s.emitSession(snapshot)
		log.Warn("status check failed", "err", err)
		return p.failureInterval
	}
	if !result.Active {
		s.phase = schema.PhaseInactive
		s.streamURL = ""
		s.paused = false
		s.message = remoteMessage("Agent is no longer running", result.Message)
		entry := s.history.Append(schema.OriginSystem, s.message)
		s.version++
		snapshot := s.snapshotLocked()
		s.mu.Unlock()
		s.emitHistory(entry)
		s.emitSession(snapshot)
		log.Info("status check reports instance gone", "message", result.Message)
		return p.interval
	}
	changed := false
	if result.Message != "" && result.Message != s.message {
		s.message = result.Message
		changed = true
	}
	if result.StreamURL != "" && result.StreamURL != s.streamURL {
		s.streamURL = result.StreamURL
		changed = true
	}
	if changed {
		s.version++
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	if changed {
		s.emitSession(snapshot)
	}
	log.Trace("status check ok")
	return p.interval
}
