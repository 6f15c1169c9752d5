// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoclue

import (
	"context"
	"sync"

	"github.com/geoclued/geoclued/internal/httpclient"
	"github.com/geoclued/geoclued/internal/logger"
)

// CellSource is a singleton WebSource tracking the single most recently
// observed cell tower via the modem event stream, and formatting
// OpenCellID lookups for it (§4.6).
type CellSource struct {
	WebSource

	modem         ModemEventSource
	openCellIDURL string
	apiKey        string

	mu     sync.Mutex
	tower  *CellTower
	has3G  bool
	runCtx context.Context
	cancel context.CancelFunc
}

// NewCellSource constructs the CellSource singleton.
func NewCellSource(name string, httpClient *httpclient.Client, log *logger.Logger, network NetworkEventSource, modem ModemEventSource, openCellIDURL, apiKey string) *CellSource {
	c := &CellSource{
		modem:         modem,
		openCellIDURL: openCellIDURL,
		apiKey:        apiKey,
	}
	c.WebSource = newWebSource(name, nil, httpClient, log, network, c)
	return c
}

// Start begins modem event consumption. Idempotent.
func (c *CellSource) Start() bool {
	if !c.start() {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.runCtx = ctx
	c.cancel = cancel
	c.mu.Unlock()

	c.startWeb(ctx)
	c.recomputeAvailableAccuracy()
	go c.consumeEvents(ctx)
	return true
}

// Stop detaches from the modem event stream and cancels any outstanding query.
func (c *CellSource) Stop() bool {
	if !c.stop() {
		return false
	}
	c.stopWeb()
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()
	return true
}

func (c *CellSource) consumeEvents(ctx context.Context) {
	ch := c.modem.Events(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			c.handleEvent(ctx, ev)
		}
	}
}

func (c *CellSource) handleEvent(ctx context.Context, ev ModemEvent) {
	switch ev.Kind {
	case ModemFix3G:
		c.mu.Lock()
		tower := ev.CellTower
		c.tower = &tower
		c.mu.Unlock()
		c.recomputeAvailableAccuracy()
		c.Refresh(ctx)
	case ModemCapabilityChanged:
		c.mu.Lock()
		c.has3G = ev.Has3G
		c.mu.Unlock()
		c.recomputeAvailableAccuracy()
	}
}

// recomputeAvailableAccuracy implements §4.6's policy: NEIGHBORHOOD when
// 3G capability is present and the network is reachable, else NONE.
func (c *CellSource) recomputeAvailableAccuracy() {
	c.mu.Lock()
	has3G := c.has3G
	c.mu.Unlock()

	if has3G && c.network.Reachable() {
		c.setAvailableAccuracyLevel(AccuracyNeighborhood)
		return
	}
	c.setAvailableAccuracyLevel(AccuracyNone)
}

// CreateQuery implements WebResponder.
func (c *CellSource) CreateQuery() (*WebQuery, error) {
	c.mu.Lock()
	tower := c.tower
	c.mu.Unlock()
	if tower == nil {
		return nil, ErrNotInitialised
	}

	return &WebQuery{
		Method: "GET",
		URL:    c.openCellIDURL,
		Query:  buildOpenCellIDQuery(*tower, c.apiKey),
		Target: new(openCellIDResponse),
		Decode: httpclient.XMLDecoder,
	}, nil
}

// ParseResponse implements WebResponder.
func (c *CellSource) ParseResponse(target any) (*Location, error) {
	return parseOpenCellIDResponse(target.(*openCellIDResponse))
}
