package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"txconfirm/pkg/amount"
	"txconfirm/pkg/confirm"
	"txconfirm/pkg/editor"
	"txconfirm/pkg/fees"
	"txconfirm/pkg/models"
	"txconfirm/pkg/store"
	"txconfirm/pkg/watcher"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RequestTimeout bounds backend calls made on behalf of an HTTP request.
var RequestTimeout = 30 * time.Second

// Engine is the confirmation surface the server drives.
type Engine interface {
	View() confirm.View
	Subscribe() confirm.Subscriber
	Unsubscribe(confirm.Subscriber)

	Confirm(ctx context.Context) error
	Reject(ctx context.Context) error
	RejectAll(ctx context.Context) error
	Advance() error
	AcknowledgeCriticalWarning() error

	EnterEdit(kind confirm.EditKind) error
	ExitEdit() error
	SaveGas(ctx context.Context, in editor.GasInput) error
	SaveNonce(ctx context.Context, custom string) error
	SaveAllowance(ctx context.Context, in editor.AllowanceInput) error
	SuggestedGas() (editor.GasInput, error)

	SelectFeeTier(ctx context.Context, t fees.Tier) error
	SetCustomFee(ctx context.Context, v amount.Amount) error
	ClearCustomFee(ctx context.Context) error
}

// Intake accepts new pending requests and reports settled ones.
type Intake interface {
	Add(tx models.PendingTransaction) (string, error)
	History() []store.Record
}

type Server struct {
	engine  Engine
	intake  Intake
	watcher *watcher.Watcher
	log     log.Logger

	clients map[*websocket.Conn]bool
	mu      sync.Mutex
	mux     *http.ServeMux
}

// NewServer builds the HTTP API. intake and w may be nil.
func NewServer(e Engine, intake Intake, w *watcher.Watcher) *Server {
	s := &Server{
		engine:  e,
		intake:  intake,
		watcher: w,
		log:     log.New("module", "server"),
		clients: make(map[*websocket.Conn]bool),
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/view", s.handleView)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/history", s.handleHistory)
	s.mux.HandleFunc("POST /api/pending", s.handleAddPending)

	s.mux.HandleFunc("POST /api/confirm", s.action(func(ctx context.Context) error { return s.engine.Confirm(ctx) }))
	s.mux.HandleFunc("POST /api/reject", s.action(func(ctx context.Context) error { return s.engine.Reject(ctx) }))
	s.mux.HandleFunc("POST /api/reject-all", s.action(func(ctx context.Context) error { return s.engine.RejectAll(ctx) }))
	s.mux.HandleFunc("POST /api/advance", s.action(func(context.Context) error { return s.engine.Advance() }))
	s.mux.HandleFunc("POST /api/acknowledge", s.action(func(context.Context) error { return s.engine.AcknowledgeCriticalWarning() }))

	s.mux.HandleFunc("POST /api/edit/{kind}", s.handleEnterEdit)
	s.mux.HandleFunc("POST /api/edit/exit", s.action(func(context.Context) error { return s.engine.ExitEdit() }))
	s.mux.HandleFunc("GET /api/gas/suggested", s.handleSuggestedGas)
	s.mux.HandleFunc("POST /api/gas", s.handleSaveGas)
	s.mux.HandleFunc("POST /api/nonce", s.handleSaveNonce)
	s.mux.HandleFunc("POST /api/allowance", s.handleSaveAllowance)
	s.mux.HandleFunc("POST /api/fee", s.handleFee)

	s.mux.HandleFunc("/ws", s.handleWS)
}

func (s *Server) Start(port int) error {
	go s.listenToEngine()
	if s.watcher != nil {
		go s.listenToWatcher()
	}

	s.log.Info("API server listening", "port", port)
	return http.ListenAndServe(fmt.Sprintf(":%d", port), s.mux)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var verr *editor.ValidationError
	var berr *confirm.BackendError
	switch {
	case errors.As(err, &verr):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &berr):
		status = http.StatusBadGateway
	case errors.Is(err, confirm.ErrNoSelection):
		status = http.StatusNotFound
	case errors.Is(err, confirm.ErrInvalidTransition),
		errors.Is(err, confirm.ErrQueueTooShort),
		errors.Is(err, confirm.ErrEditUnsupported),
		errors.Is(err, confirm.ErrInsufficientFundsForGas),
		errors.Is(err, confirm.ErrMissingGasLimit),
		errors.Is(err, fees.ErrNoEstimate):
		status = http.StatusConflict
	case errors.Is(err, fees.ErrInvalidTier),
		errors.Is(err, fees.ErrInvalidFee),
		errors.Is(err, store.ErrInvalidTx):
		status = http.StatusBadRequest
	}
	if status >= http.StatusInternalServerError {
		s.log.Warn("Request failed", "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// action adapts an engine call to a handler answering with the new view.
func (s *Server) action(fn func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), RequestTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.engine.View())
	}
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

var errBadRequest = errors.New("malformed request body")

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.View())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{}
	if s.watcher != nil {
		data["watcher"] = s.watcher.Status()
	}
	v := s.engine.View()
	data["pending"] = v.Length
	data["position"] = v.Position
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.intake == nil {
		writeJSON(w, http.StatusOK, []store.Record{})
		return
	}
	writeJSON(w, http.StatusOK, s.intake.History())
}

func (s *Server) handleAddPending(w http.ResponseWriter, r *http.Request) {
	if s.intake == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "intake disabled"})
		return
	}
	var tx models.PendingTransaction
	if err := decode(r, &tx); err != nil {
		s.badRequest(w, err)
		return
	}
	id, err := s.intake.Add(tx)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if s.watcher != nil {
		s.watcher.Trigger()
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleEnterEdit(w http.ResponseWriter, r *http.Request) {
	kind, ok := confirm.ParseEditKind(r.PathValue("kind"))
	if !ok {
		s.badRequest(w, fmt.Errorf("unknown editor %q", r.PathValue("kind")))
		return
	}
	s.action(func(context.Context) error { return s.engine.EnterEdit(kind) })(w, r)
}

func (s *Server) handleSuggestedGas(w http.ResponseWriter, r *http.Request) {
	in, err := s.engine.SuggestedGas()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (s *Server) handleSaveGas(w http.ResponseWriter, r *http.Request) {
	var in editor.GasInput
	if err := decode(r, &in); err != nil {
		s.badRequest(w, err)
		return
	}
	s.action(func(ctx context.Context) error { return s.engine.SaveGas(ctx, in) })(w, r)
}

func (s *Server) handleSaveNonce(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Nonce string `json:"nonce"`
	}
	if err := decode(r, &body); err != nil {
		s.badRequest(w, err)
		return
	}
	s.action(func(ctx context.Context) error { return s.engine.SaveNonce(ctx, body.Nonce) })(w, r)
}

func (s *Server) handleSaveAllowance(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Custom *string `json:"custom"`
	}
	if err := decode(r, &body); err != nil {
		s.badRequest(w, err)
		return
	}
	in := editor.AllowanceInput{Mode: editor.AllowanceProposed}
	if body.Custom != nil {
		in = editor.AllowanceInput{Mode: editor.AllowanceCustom, Custom: *body.Custom}
	}
	s.action(func(ctx context.Context) error { return s.engine.SaveAllowance(ctx, in) })(w, r)
}

func (s *Server) handleFee(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Tier   fees.Tier `json:"tier,omitempty"`
		Custom string    `json:"custom,omitempty"`
		Clear  bool      `json:"clear,omitempty"`
	}
	if err := decode(r, &body); err != nil {
		s.badRequest(w, err)
		return
	}
	s.action(func(ctx context.Context) error {
		switch {
		case body.Clear:
			return s.engine.ClearCustomFee(ctx)
		case body.Custom != "":
			return s.engine.SetCustomFee(ctx, amount.New(body.Custom))
		default:
			return s.engine.SelectFeeTier(ctx, body.Tier)
		}
	})(w, r)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	// Send initial state before the connection can receive broadcasts
	initialData := map[string]interface{}{
		"type": "initial",
		"data": s.engine.View(),
	}
	if err := conn.WriteJSON(initialData); err != nil {
		return
	}

	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) listenToEngine() {
	sub := s.engine.Subscribe()
	defer s.engine.Unsubscribe(sub)

	for event := range sub {
		s.broadcast(event)
	}
}

func (s *Server) listenToWatcher() {
	sub := s.watcher.Subscribe()
	defer s.watcher.Unsubscribe(sub)

	for event := range sub {
		s.broadcast(map[string]interface{}{"type": event.Type, "data": event.Data})
	}
}

func (s *Server) broadcast(event interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for client := range s.clients {
		if err := client.WriteJSON(event); err != nil {
			_ = client.Close()
			delete(s.clients, client)
		}
	}
}
