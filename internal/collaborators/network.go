// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package collaborators

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/geoclued/geoclued/internal/geoclue"
	"github.com/geoclued/geoclued/internal/job"
)

// networkPollInterval bounds how quickly a reachability transition is
// noticed; the corpus has no network-manager D-Bus binding, so geoclued
// polls for a default route the same way a simple connectivity check
// would (Open Question d's polling substitution, applied uniformly).
const networkPollInterval = 10 * time.Second

// probeTarget is dialed (never actually transmitting data, UDP has no
// handshake) purely to force the kernel to resolve a route; an error
// means there is no usable default route.
const probeTarget = "8.8.8.8:53"

// NetworkPoller implements geoclue.NetworkEventSource by polling for a
// default network route.
type NetworkPoller struct {
	mu        sync.RWMutex
	reachable bool
}

// NewNetworkPoller returns a NetworkPoller with an initial reachability
// probe already performed.
func NewNetworkPoller() *NetworkPoller {
	p := &NetworkPoller{}
	p.reachable = probe()
	return p
}

// Reachable implements geoclue.NetworkEventSource.
func (p *NetworkPoller) Reachable() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.reachable
}

// Events implements geoclue.NetworkEventSource: it emits a
// NetworkEvent only on a reachability transition, matching the
// refresh-trigger semantics §4.4 requires. Polling runs in singleton
// mode via internal/job, so a slow probe never overlaps the next tick.
func (p *NetworkPoller) Events(ctx context.Context) <-chan geoclue.NetworkEvent {
	out := make(chan geoclue.NetworkEvent, 2)

	// last is per stream, so every stream sees every transition even
	// though they all update the shared p.reachable.
	last := p.Reachable()
	j := job.New(networkPollInterval, func(taskCtx context.Context) {
		reachable := probe()
		p.mu.Lock()
		p.reachable = reachable
		p.mu.Unlock()
		if reachable != last {
			last = reachable
			select {
			case <-taskCtx.Done():
			case out <- geoclue.NetworkEvent{Reachable: reachable}:
			}
		}
	})

	go func() {
		defer close(out)
		j.Start(ctx)
	}()

	return out
}

func probe() bool {
	conn, err := net.DialTimeout("udp", probeTarget, 2*time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
