package devserver

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ryanKinoti/LCS-v1/internal/catalog"
	"github.com/ryanKinoti/LCS-v1/internal/identity"
	"github.com/ryanKinoti/LCS-v1/internal/logging"
)

// Backend API paths.
const (
	PathRegister  = "/accounts/register/"
	PathMe        = "/accounts/user/me/"
	PathDashboard = "/accounts/user/dashboard/"
	PathHealth    = "/health"
	// PathDisable is only routed when dev endpoints are enabled.
	PathDisable = "/identity/v1/accounts/{uid}/disable"
)

const defaultTokenTTL = time.Hour

type Options struct {
	Store   *Store
	Catalog *catalog.Catalog
	Logger  *logrus.Entry

	// TokenTTL is the lifetime of issued ID tokens.
	TokenTTL time.Duration
	// SigninPerMinute limits sign-in attempts across all clients. Zero
	// disables the limit.
	SigninPerMinute int
	AllowedOrigins  []string
	// DevEndpoints exposes the account-disable endpoint.
	DevEndpoints bool
}

// Server emulates the identity provider and the accounts backend.
type Server struct {
	store          *Store
	catalog        *catalog.Catalog
	events         *Broadcaster
	health         *dbHealth
	log            *logrus.Entry
	tokenTTL       time.Duration
	signin         *rate.Limiter
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	dev            bool
	router         *mux.Router
	started        time.Time
}

func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	s := &Server{
		store:          opts.Store,
		catalog:        opts.Catalog,
		events:         NewBroadcaster(log),
		health:         &dbHealth{},
		log:            log,
		tokenTTL:       opts.TokenTTL,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		dev:            opts.DevEndpoints,
		started:        time.Now(),
	}
	if s.tokenTTL <= 0 {
		s.tokenTTL = defaultTokenTTL
	}
	if n := opts.SigninPerMinute; n > 0 {
		s.signin = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
	}
	for _, origin := range opts.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}
	s.router = s.routes()
	return s
}

// Events returns the revocation broadcaster.
func (s *Server) Events() *Broadcaster {
	return s.events
}

func (s *Server) Handler() http.Handler {
	return securityHeaders(s.router)
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc(PathHealth, s.handleHealth).Methods(http.MethodGet)

	r.HandleFunc(identity.PathSignIn, s.handleSignIn).Methods(http.MethodPost)
	r.HandleFunc(identity.PathSignOut, s.handleSignOut).Methods(http.MethodPost)
	r.HandleFunc(identity.PathToken, s.handleToken).Methods(http.MethodPost)
	r.HandleFunc(identity.PathEvents, s.handleEvents).Methods(http.MethodGet)
	if s.dev {
		r.HandleFunc(PathDisable, s.handleDisable).Methods(http.MethodPost)
	}

	r.HandleFunc(PathRegister, s.handleRegister).Methods(http.MethodPost)
	authed := r.NewRoute().Subrouter()
	authed.Use(s.authenticate)
	authed.HandleFunc(PathMe, s.handleMe).Methods(http.MethodGet)
	authed.HandleFunc(PathDashboard, s.handleDashboard).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
	})
	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("devserver listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.events.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close disconnects feed clients.
func (s *Server) Close() {
	s.events.Close()
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := parsed.Hostname()
	return parsed.Host == r.Host || host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// bearerToken reads the token from the Authorization header, falling back
// to the token query parameter used by WebSocket clients.
func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	acct, err := s.store.VerifyIDToken(r.Context(), bearerToken(r))
	if err != nil {
		writeIdentityError(w, http.StatusUnauthorized, identity.CodeTokenExpired, "invalid or expired token")
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("events upgrade failed")
		return
	}

	log := s.log.WithField("uid", acct.UID)
	log.Debug("events client connected")
	c := s.events.AddClient(conn, acct.UID)

	go func() {
		defer func() {
			s.events.RemoveClient(c)
			log.Debug("events client disconnected")
		}()
		// Reading keeps ping/pong and close frames flowing.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
