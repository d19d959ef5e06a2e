// Package gateway implements Torii, the thin HTTP/WS front door over a
// peer's queue, world-state view and event bus (spec.md §6 External
// interfaces). It performs no consensus or validation logic of its own:
// every request is translated into a core call and the core call's error
// Kind is mapped to an HTTP status.
package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"iroha/core"
)

// Config bounds the HTTP server.
type Config struct {
	BindAddr string
}

// Server is Torii: the gateway binding a peer's core components to HTTP.
type Server struct {
	cfg    Config
	wsv    *core.WorldStateView
	queue  *core.Queue
	events *core.EventBus
	blocks *core.BlockStream
	logger *logrus.Logger

	startedAt time.Time
	upgrader  websocket.Upgrader
	heightGauge prometheus.GaugeFunc
	queueGauge  prometheus.GaugeFunc
}

func New(cfg Config, wsv *core.WorldStateView, queue *core.Queue, events *core.EventBus, blocks *core.BlockStream, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		cfg:       cfg,
		wsv:       wsv,
		queue:     queue,
		events:    events,
		blocks:    blocks,
		logger:    logger,
		startedAt: time.Now(),
		upgrader:  websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
	}
	s.heightGauge = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "iroha_block_height",
		Help: "Height of the last block committed to this peer's world-state view.",
	}, func() float64 { return float64(wsv.Height()) })
	s.queueGauge = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "iroha_queue_depth",
		Help: "Number of transactions currently pending in the admission queue.",
	}, func() float64 { return float64(queue.Len()) })
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/transaction", s.handleSubmitTransaction)
	r.Post("/query", s.handleQuery)
	r.Get("/pending_transactions", s.handlePendingTransactions)
	r.Get("/configuration", s.handleGetConfiguration)
	r.Post("/configuration", s.handleSetConfiguration)
	r.Get("/events", s.handleEventsWS)
	r.Get("/block/stream", s.handleBlockStreamWS)
	return r
}

// ListenAndServe blocks serving HTTP until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.BindAddr, Handler: s.router()}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode("Healthy")
}

type statusResponse struct {
	Height      uint64 `json:"height"`
	QueueDepth  int    `json:"queue_depth"`
	UptimeMS    int64  `json:"uptime_ms"`
	LastBlock   string `json:"last_block_hash"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Height:     s.wsv.Height(),
		QueueDepth: s.queue.Len(),
		UptimeMS:   time.Since(s.startedAt).Milliseconds(),
		LastBlock:  s.wsv.LastBlockHash().String(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleSubmitTransaction(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var tx core.Transaction
	if err := core.DecodeEnvelope(data, &tx); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.queue.Submit(&tx, time.Now()); err != nil {
		writeError(w, statusForErr(err), err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// signedQuery wraps a Query with the authority asking it and a detached
// signature over the query's wire encoding, the shape /query accepts.
type signedQuery struct {
	Authority core.AccountId
	Query     core.Query
	Signature core.Signature
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var sq signedQuery
	if err := core.DecodeEnvelope(data, &sq); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !core.VerifySignature(sq.Signature.PublicKey, sq.Signature.Bytes, core.EncodeWire(sq.Query)) {
		writeError(w, http.StatusForbidden, core.Newf(core.KindAccessDenied, "query signature does not verify"))
		return
	}
	result, err := core.RunQuery(s.wsv, sq.Authority, sq.Query)
	if err != nil {
		writeError(w, statusForErr(err), err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(core.EncodeEnvelope(result))
}

func (s *Server) handlePendingTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	txs := s.queue.Snapshot(limit)
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(core.EncodeEnvelope(txs))
}

type configurationField struct {
	LogLevel string `json:"LogLevel,omitempty"`
}

func (s *Server) handleGetConfiguration(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(configurationField{LogLevel: s.logger.GetLevel().String()})
}

func (s *Server) handleSetConfiguration(w http.ResponseWriter, r *http.Request) {
	var field configurationField
	if err := json.NewDecoder(r.Body).Decode(&field); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if field.LogLevel != "" {
		lvl, err := logrus.ParseLevel(field.LogLevel)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		s.logger.SetLevel(lvl)
	}
	w.WriteHeader(http.StatusOK)
}

// handleEventsWS lets a client subscribe to a filtered slice of the event
// bus: the first text frame is a JSON-encoded core.SubscriptionFilter,
// every frame after that is one core.Event.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("gateway: events upgrade: %v", err)
		return
	}
	defer conn.Close()

	var filter core.SubscriptionFilter
	if err := conn.ReadJSON(&filter); err != nil {
		return
	}
	ch, unsub := s.events.Subscribe(filter)
	defer unsub()

	for e := range ch {
		if err := conn.WriteJSON(e); err != nil {
			return
		}
	}
}

// handleBlockStreamWS lets a client request committed blocks starting at
// a height, acknowledging each before the next is sent.
func (s *Server) handleBlockStreamWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("gateway: block stream upgrade: %v", err)
		return
	}
	defer conn.Close()

	var req struct {
		FromHeight uint64 `json:"from_height"`
	}
	if err := conn.ReadJSON(&req); err != nil {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	acks := make(chan core.BlockAck)
	go func() {
		defer close(acks)
		for {
			var ack core.BlockAck
			if err := conn.ReadJSON(&ack); err != nil {
				return
			}
			select {
			case acks <- ack:
			case <-ctx.Done():
				return
			}
		}
	}()

	for blk := range s.blocks.Stream(ctx, req.FromHeight, acks) {
		if err := conn.WriteJSON(blk); err != nil {
			return
		}
	}
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// statusForErr maps a core.Error's Kind to the HTTP status spec.md §6
// assigns it.
func statusForErr(err error) int {
	kind, ok := core.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case core.KindFind:
		return http.StatusNotFound
	case core.KindAccessDenied:
		return http.StatusForbidden
	case core.KindRepetition:
		return http.StatusConflict
	case core.KindSignatureMismatch, core.KindTransactionExpired, core.KindTransactionLimitExceeded,
		core.KindBadChainId, core.KindType, core.KindInvariantViolation, core.KindMintability,
		core.KindMath, core.KindMetadata:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
