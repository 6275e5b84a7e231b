package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/valve"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/extalife/extalife-agent/pkg/backup"
	"github.com/extalife/extalife-agent/pkg/broker"
	"github.com/extalife/extalife-agent/pkg/extalife"
)

const (
	statusBackup   = "BACKUP"
	statusRestore  = "RESTORE"
	statusComplete = "COMPLETED"

	requestTimeout = 60 * time.Second
)

// Server defines parameters for running the Exta Life agent HTTP server.
type Server struct {
	Addr            string
	router          *chi.Mux
	b               broker.Broker
	subscribeTopics []string
	publishTopic    string
	useUnixSock     bool

	controller *extalife.Client
	store      *backup.Store

	// signal chan use for testing.
	testSignalCh chan os.Signal

	logger *zap.Logger
}

// New creates new server instance.
func New(opts ...Option) (*Server, error) {
	s := &Server{}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	s.router = chi.NewRouter()

	if s.logger == nil {
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		s.logger = l
	}

	s.setupRoutes()
	s.useUnixSock = strings.HasPrefix(s.Addr, "unix://")
	s.Addr = strings.TrimPrefix(s.Addr, "unix://")

	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Route("/backups", func(r chi.Router) {
		r.Get("/", s.ListBackups)
		r.Post("/", s.Backup)
		r.Post("/restore", s.Restore)
	})

	s.router.Route("/controller", func(r chi.Router) {
		r.Post("/restart", s.RestartController)
		r.Post("/refresh", s.RefreshState)
		r.Get("/version", s.ControllerVersion)
	})

	s.router.Post("/test-button", s.TestButton)
}

func (s *Server) handleBrokerEvent(e broker.Event) error {
	var msg broker.Message
	if err := json.Unmarshal(e.Payload, &msg); err != nil {
		return err
	}
	s.logger.Debug("Got broker event", zap.String("event_type", msg.EventType))

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	switch msg.EventType {
	case broker.ConfigBackup:
		_, err := s.backup(ctx, msg.Schedule, msg.Retention, msg.Path)
		return err
	case broker.ConfigRestore:
		return s.restore(ctx, msg.File, msg.Path)
	case broker.Restart:
		return s.restart(ctx)
	case broker.RefreshState:
		_, err := s.refreshState(ctx)
		return err
	case broker.TestButton:
		_, err := s.testButton(msg.Button, msg.ChannelID, msg.Event)
		return err
	default:
		return fmt.Errorf("Event %s: %w", msg.EventType, broker.ErrUnknownEventType)
	}
}

type backupRequest struct {
	Schedule  string `json:"schedule"`
	Retention int    `json:"retention"`
	Path      string `json:"path"`
}

type restoreRequest struct {
	File string `json:"file"`
	Path string `json:"path"`
}

type testButtonRequest struct {
	Button    string `json:"button"`
	ChannelID string `json:"channel_id"`
	Event     string `json:"event"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Backup handles POST /backups: download controller config, write a backup
// entry and rotate its pool.
func (s *Server) Backup(w http.ResponseWriter, r *http.Request) {
	var req backupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if err := validateBackup(req.Schedule, req.Retention); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	entry, err := s.backup(r.Context(), req.Schedule, req.Retention, req.Path)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// ListBackups handles GET /backups.
func (s *Server) ListBackups(w http.ResponseWriter, r *http.Request) {
	if err := s.ensureController(r.Context()); err != nil {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	entries, err := s.store.List(s.controller.MAC(), r.URL.Query().Get("path"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if entries == nil {
		entries = []backup.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// Restore handles POST /backups/restore.
func (s *Server) Restore(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if err := s.restore(r.Context(), req.File, req.Path); err != nil {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": statusComplete})
}

// RestartController handles POST /controller/restart.
func (s *Server) RestartController(w http.ResponseWriter, r *http.Request) {
	if err := s.restart(r.Context()); err != nil {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": statusComplete})
}

// RefreshState handles POST /controller/refresh and returns the refreshed
// channel list.
func (s *Server) RefreshState(w http.ResponseWriter, r *http.Request) {
	channels, err := s.refreshState(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, channels)
}

// ControllerVersion handles GET /controller/version.
func (s *Server) ControllerVersion(w http.ResponseWriter, r *http.Request) {
	if err := s.ensureController(r.Context()); err != nil {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	info, err := s.controller.CheckVersion(r.Context(), true)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// TestButton handles POST /test-button and returns the synthesized signals.
func (s *Server) TestButton(w http.ResponseWriter, r *http.Request) {
	var req testButtonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	signals, err := s.testButton(req.Button, req.ChannelID, req.Event)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, signals)
}

func (s *Server) Run() error {
	// Graceful valve shut-off package to manage code preemption and shutdown signaling.
	valv := valve.New()
	baseCtx := valv.Context()

	go func(ctx context.Context) {
		if s.b == nil || len(s.subscribeTopics) == 0 {
			return
		}
		b := &backoff.Backoff{Jitter: true}
		for {
			if err := s.b.ConnectAndSubscribe(s.handleBrokerEvent, s.subscribeTopics); err != nil {
				s.logger.Warn("broker connect failed, will retry", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(b.Duration()):
				}
				continue
			}
			s.logger.Info("subscribed to broker topics", zap.Strings("topics", s.subscribeTopics))
			return
		}
	}(baseCtx)

	srv := http.Server{Handler: chi.ServerBaseContext(baseCtx, s.router)}

	c := make(chan os.Signal, 1)
	if s.testSignalCh != nil {
		c = s.testSignalCh
	}
	signal.Notify(c, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-c
		// signal is a ^C, handle it
		s.logger.Info("shutting down...")

		if err := valv.Shutdown(20 * time.Second); err != nil {
			s.logger.Error("failed to shutdown valv")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Error("failed to shutdown http server")
		}

		if s.controller != nil {
			_ = s.controller.Close()
		}
		if s.b != nil {
			_ = s.b.Disconnect()
		}

		// verify, in worst case call cancel via defer
		select {
		case <-time.After(21 * time.Second):
			s.logger.Error("not all connections done")
		case <-ctx.Done():
		}
	}()

	if s.useUnixSock {
		unixListener, err := net.Listen("unix", s.Addr)
		if err != nil {
			return err
		}
		return srv.Serve(unixListener)
	}

	srv.Addr = s.Addr
	return srv.ListenAndServe()
}

// BackupNow runs one backup cycle outside of an HTTP request, used by the
// cron scheduler.
func (s *Server) BackupNow(schedule string, retention int, path string) (*backup.Entry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return s.backup(ctx, schedule, retention, path)
}

// ensureController establishes the controller session on first use and
// after connection loss.
func (s *Server) ensureController(ctx context.Context) error {
	if s.controller == nil {
		return extalife.ErrNotConnected
	}
	if s.controller.Connected() {
		return nil
	}
	return s.controller.Connect(ctx)
}

// validateBackup guards every backup ingress (HTTP, broker, scheduler)
// against unknown schedule labels and out-of-range retention.
func validateBackup(schedule string, retention int) error {
	if !backup.ValidSchedule(schedule) {
		return fmt.Errorf("unknown schedule %q", schedule)
	}
	if retention < 0 || retention > backup.MaxRetention {
		return fmt.Errorf("retention %d out of range 0..%d", retention, backup.MaxRetention)
	}
	return nil
}

// backup performs the config backup flow: download, store, rotate.
func (s *Server) backup(ctx context.Context, schedule string, retention int, path string) (*backup.Entry, error) {
	if err := validateBackup(schedule, retention); err != nil {
		return nil, err
	}
	if err := s.ensureController(ctx); err != nil {
		return nil, err
	}

	s.publishStatus(statusBackup, "")

	frames, err := s.controller.DownloadBackup(ctx)
	if err != nil {
		return nil, err
	}
	entry, err := s.store.Create(s.controller.MAC(), schedule, path, frames, retention)
	if err != nil {
		return nil, err
	}

	s.publishStatus(statusBackup, statusComplete)
	return entry, nil
}

// restore replays a stored backup to the controller. With an empty file the
// newest entry for the controller is used.
func (s *Server) restore(ctx context.Context, file, path string) error {
	if err := s.ensureController(ctx); err != nil {
		return err
	}

	entry := &backup.Entry{Files: []string{file}}
	if file == "" {
		latest, err := s.store.Latest(s.controller.MAC(), path)
		if err != nil {
			return err
		}
		entry = latest
	}

	frames, err := s.store.ReadFrames(entry)
	if err != nil {
		return err
	}

	s.publishStatus(statusRestore, "")
	if err := s.controller.UploadBackup(ctx, frames); err != nil {
		return err
	}
	s.publishStatus(statusRestore, statusComplete)
	return nil
}

func (s *Server) restart(ctx context.Context) error {
	if err := s.ensureController(ctx); err != nil {
		return err
	}
	return s.controller.Restart(ctx)
}

func (s *Server) refreshState(ctx context.Context) ([]extalife.Channel, error) {
	if err := s.ensureController(ctx); err != nil {
		return nil, err
	}
	return s.controller.Channels(ctx)
}

// testButton synthesizes the notification signals of a transmitter button
// event and publishes them to the notify topic of the channel.
func (s *Server) testButton(button, channelID, event string) ([]ButtonSignal, error) {
	signals, err := ButtonEvents(button, event)
	if err != nil {
		return nil, err
	}
	if s.b != nil {
		topic := "notify/" + channelID
		for _, sig := range signals {
			payload, _ := json.Marshal(sig)
			if err := s.b.Publish(topic, payload); err != nil {
				s.logger.Warn("failed to publish button signal", zap.String("topic", topic), zap.Error(err))
			}
		}
	}
	return signals, nil
}

// publishStatus notifies the platform about long-running action progress;
// a broker failure never fails the action itself.
func (s *Server) publishStatus(action, status string) {
	if s.b == nil || s.publishTopic == "" {
		return
	}
	payload, _ := json.Marshal(map[string]string{"action": action, "status": status})
	if err := s.b.Publish(s.publishTopic, payload); err != nil {
		s.logger.Warn("failed to publish status", zap.String("action", action), zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
