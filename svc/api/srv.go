package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/hlog"

	"punt/cfg"
	"punt/svc/db"
	"punt/svc/lim"
	"punt/svc/svc"
	"punt/svc/util"
)

type Server struct {
	router     *chi.Mux
	cfg        *cfg.Cfg
	db         *db.SQLite
	rdb        *db.Redis
	httpServer *http.Server
}

type Deps struct {
	Paste  *svc.Paste
	Tokens *svc.Tokens
	Device *svc.Device
	Lim    *lim.Limiter
	DB     *db.SQLite
	Redis  *db.Redis
}

func NewServer(c *cfg.Cfg, d Deps) *Server {
	r := chi.NewRouter()
	mw := NewMw(d.Lim, d.Tokens, c)
	s := &Server{
		router: r,
		cfg:    c,
		db:     d.DB,
		rdb:    d.Redis,
	}

	r.Group(func(r chi.Router) {
		r.Use(mw.Recoverer)
		r.Get("/health", s.Health)
		r.Get("/ready", s.Ready)
	})
	r.Group(func(r chi.Router) {
		r.Use(mw.Recoverer)
		r.Handle("/metrics", mw.BasicAuthMetrics(promhttp.Handler()))
	})
	r.Mount("/debug", middleware.Profiler())

	hdl := &Hdl{paste: d.Paste, tokens: d.Tokens, device: d.Device, lim: d.Lim, cfg: c}
	r.Group(func(r chi.Router) {
		r.Use(mw.Recoverer)
		r.Use(mw.RequestID)
		r.Use(hlog.NewHandler(util.GetLogger()))
		r.Use(hlog.AccessHandler(func(req *http.Request, status, size int, dur time.Duration) {
			hlog.FromRequest(req).Info().
				Str("method", req.Method).
				Str("url", req.URL.String()).
				Int("status", status).
				Int("size", size).
				Dur("duration", dur).
				Str("request_id", util.GetRequestID(req.Context())).
				Msg("http request")
		}))
		r.Use(mw.ContextTimeout)
		r.Use(mw.SecurityHeaders)
		r.Use(mw.CORS)
		r.Use(mw.Auth)

		r.With(mw.Quota(lim.OpCreate)).Post("/api/paste", hdl.CreatePaste)
		r.Get("/api/paste/{id}", hdl.GetPaste)
		r.Get("/api/paste/{id}/raw", hdl.GetPasteRaw)
		r.Delete("/api/paste/{id}/{deleteKey}", hdl.DeletePaste)
		r.With(mw.Quota(lim.OpReport)).Post("/api/report/{id}", hdl.ReportPaste)

		r.With(mw.Quota(lim.OpDeviceInit)).Post("/api/cli/init", hdl.DeviceInit)
		r.Get("/api/cli/poll", hdl.DevicePoll)
		r.With(mw.RequireAuth).Post("/api/cli/approve", hdl.DeviceApprove)

		r.Route("/api/me", func(r chi.Router) {
			r.Use(mw.RequireAuth)
			r.Get("/", hdl.Me)
			r.Get("/pastes", hdl.MyPastes)
			r.Delete("/pastes/{id}", hdl.DeleteMyPaste)
			r.Post("/pastes/{id}/extend", hdl.ExtendMyPaste)
			r.Get("/tokens", hdl.MyTokens)
			r.Post("/tokens", hdl.CreateToken)
			r.Delete("/tokens/{id}", hdl.RevokeToken)
		})
	})

	s.httpServer = &http.Server{
		Addr:           ":" + c.Port,
		Handler:        r,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 256 * 1024,
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) Start() error {
	util.Info().Str("port", s.cfg.Port).Msg("starting server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		util.Error().Err(err).Str("port", s.cfg.Port).Msg("server failed to start")
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
