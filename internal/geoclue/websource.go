// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoclue

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/geoclued/geoclued/internal/httpclient"
	"github.com/geoclued/geoclued/internal/logger"
)

// submitMinInterval and submitMaxAccuracy gate the best-effort crowdsource
// submission protocol (§4.4).
const (
	submitMinInterval  = 60 * time.Second
	submitMaxAccuracyM = 100.0
)

// WebQuery describes one outbound HTTP request a WebSource subclass
// wants issued, and how to decode its response.
type WebQuery struct {
	Method  string
	URL     string
	Query   url.Values
	Body    []byte
	Headers map[string]string
	Target  any
	Decode  httpclient.Decoder
}

// WebResponder is implemented by the concrete subclass (WifiSource,
// CellSource) embedding a WebSource: it builds the outbound query and
// turns a decoded response into a Location.
type WebResponder interface {
	CreateQuery() (*WebQuery, error)
	ParseResponse(target any) (*Location, error)
}

// Submitter is the optional crowdsource-submission hook a WebResponder
// may additionally implement.
type Submitter interface {
	CreateSubmitQuery(loc *Location) (*WebQuery, bool)
}

// WebSource owns the HTTP query/refresh loop shared by WifiSource and
// CellSource: at most one outstanding query, refresh triggered by a
// reachable-network transition or an explicit subclass call, and an
// optional best-effort submission path fed by a submit source (§4.4).
type WebSource struct {
	baseSource

	http      *httpclient.Client
	log       *logger.Logger
	network   NetworkEventSource
	responder WebResponder

	mu          sync.Mutex
	cancelQuery context.CancelFunc

	submitSource LocationSource
	unsubSubmit  func()
	lastSubmit   time.Time
	submitHalt   context.CancelFunc
}

// newWebSource is called by WifiSource/CellSource constructors; responder
// must be the embedding type itself so CreateQuery/ParseResponse dispatch
// to the subclass.
func newWebSource(name string, merge mergeChecker, httpClient *httpclient.Client, log *logger.Logger, network NetworkEventSource, responder WebResponder) WebSource {
	return WebSource{
		baseSource: newBaseSource(name, merge),
		http:       httpClient,
		log:        log,
		network:    network,
		responder:  responder,
	}
}

// SetSubmitSource wires an optional submit source (typically GPS):
// every location it publishes triggers the submission protocol while
// this WebSource is active.
func (w *WebSource) SetSubmitSource(src LocationSource) {
	w.mu.Lock()
	w.submitSource = src
	w.mu.Unlock()
}

// startWeb performs the shared start-up: it watches the network event
// stream and calls Refresh on every transition to reachable, and, if
// submitSource is set, subscribes to its updates for the submission
// protocol. Concrete subclasses call this from their own Start() after
// baseSource.start() reports a real transition.
func (w *WebSource) startWeb(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.submitHalt = cancel
	src := w.submitSource
	w.mu.Unlock()

	if w.network != nil {
		netCh := w.network.Events(runCtx)
		go func() {
			for {
				select {
				case <-runCtx.Done():
					return
				case ev, ok := <-netCh:
					if !ok {
						return
					}
					if ev.Reachable {
						w.Refresh(runCtx)
					}
				}
			}
		}()
	}
	if src == nil {
		return
	}

	ch, unsub := src.Subscribe()
	w.mu.Lock()
	w.unsubSubmit = unsub
	w.mu.Unlock()

	go func() {
		for {
			select {
			case <-runCtx.Done():
				return
			case loc, ok := <-ch:
				if !ok {
					return
				}
				w.handleSubmitUpdate(runCtx, loc)
			}
		}
	}()
}

// stopWeb cancels any outstanding query and detaches from the network
// event stream and the submit source. Per original_source/gclue-web-source.c, stopping always
// detaches the submit subscription, not just the outstanding query.
func (w *WebSource) stopWeb() {
	w.mu.Lock()
	if w.cancelQuery != nil {
		w.cancelQuery()
		w.cancelQuery = nil
	}
	if w.submitHalt != nil {
		w.submitHalt()
		w.submitHalt = nil
	}
	unsub := w.unsubSubmit
	w.unsubSubmit = nil
	w.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// Refresh implements the refresh protocol of §4.4. It is safe to call
// concurrently and from the subclass's own event handlers.
func (w *WebSource) Refresh(ctx context.Context) {
	w.mu.Lock()
	if w.cancelQuery != nil {
		w.mu.Unlock()
		return
	}
	if !w.network.Reachable() {
		w.mu.Unlock()
		w.log.Debug("refresh skipped", logger.Err(ErrNetworkUnavailable), slog.String("source", w.name))
		return
	}

	query, err := w.responder.CreateQuery()
	if err != nil {
		w.mu.Unlock()
		w.log.Error("failed to build query", logger.Err(err), slog.String("source", w.name))
		return
	}

	queryCtx, cancel := context.WithCancel(ctx)
	w.cancelQuery = cancel
	w.mu.Unlock()

	go w.runQuery(queryCtx, query)
}

func (w *WebSource) runQuery(ctx context.Context, query *WebQuery) {
	defer func() {
		w.mu.Lock()
		w.cancelQuery = nil
		w.mu.Unlock()
	}()

	var err error
	if query.Method == "POST" {
		_, err = w.http.Post(ctx, query.URL, bytes.NewReader(query.Body), query.Headers, query.Target, query.Decode)
	} else {
		_, err = w.http.Get(ctx, query.URL, query.Query, query.Headers, query.Target, query.Decode)
	}

	if ctx.Err() != nil {
		// stop() cancelled us; the completion handler exits without
		// mutating state, per the cancellation contract in §4.4/§5.
		w.log.Debug("query cancelled", logger.Err(ErrCancelled), slog.String("source", w.name))
		return
	}
	if err != nil {
		if errors.Is(err, httpclient.ErrDecode) {
			err = fmt.Errorf("%w: %w", ErrParse, err)
		}
		w.log.Error("query failed", logger.Err(err), slog.String("source", w.name))
		return
	}

	loc, err := w.responder.ParseResponse(query.Target)
	if err != nil {
		w.log.Error("failed to parse response", logger.Err(err), slog.String("source", w.name))
		return
	}

	prev := w.Location()
	loc.SetSpeedFromPrev(prev)
	loc.SetHeadingFromPrev(prev)
	w.setLocation(loc)
}

// handleSubmitUpdate runs the submission protocol (§4.4) for one update
// from the submit source.
func (w *WebSource) handleSubmitUpdate(ctx context.Context, loc *Location) {
	submitter, ok := w.responder.(Submitter)
	if !ok {
		return
	}

	acc, hasAcc := loc.AccuracyMeters()
	if !hasAcc || acc > submitMaxAccuracyM {
		return
	}

	w.mu.Lock()
	last := w.lastSubmit
	w.mu.Unlock()
	if !last.IsZero() && time.Since(last) < submitMinInterval {
		return
	}
	if !w.network.Reachable() {
		return
	}

	query, ok := submitter.CreateSubmitQuery(loc)
	if !ok {
		return
	}

	w.mu.Lock()
	w.lastSubmit = time.Now()
	w.mu.Unlock()

	target := new(map[string]any)
	_, err := w.http.Post(ctx, query.URL, bytes.NewReader(query.Body), query.Headers, target, httpclient.JSONDecoder)
	if err != nil {
		w.log.Debug("submission failed", logger.Err(err), slog.String("source", w.name))
		return
	}
	w.log.Debug("submission completed", slog.String("source", w.name))
}
