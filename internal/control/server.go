package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"quote-trigger-go/actuator"
	"quote-trigger-go/config"
	"quote-trigger-go/infrastructure/logger"
	"quote-trigger-go/internal/store"
)

const (
	maxBodyBytes   = 64 * 1024
	defaultPreview = 5
	maxPreview     = 100
)

// State 控制面读写的共享状态，由 store.Store 实现。
type State interface {
	Status() store.Status
	Settings() store.Settings
	SetRunning(running bool) string
	SetStrategy(cfg config.StrategyConfig) (config.StrategyConfig, error)
	SetRegion(kind config.RegionKind, r config.Region) (config.Region, error)
	SetExitClicks(n uint8) uint8
	Region(kind config.RegionKind) config.Region
}

// Recorder 请求计数，由 monitor.Monitor 实现。
type Recorder interface {
	RecordControlRequest(route string, code int)
}

type nopRecorder struct{}

func (nopRecorder) RecordControlRequest(string, int) {}

// Options 构造参数，Rand/Log/Monitor/Health 可为空。
type Options struct {
	State   State
	Rand    actuator.Rand
	Log     *logger.Logger
	Monitor Recorder
	// Health 返回非 nil 时 /health 响应 503。
	Health func() error
}

// Server 配置与状态的 HTTP JSON 接口。非法输入返回 400，不会触及共享状态。
type Server struct {
	state  State
	rnd    actuator.Rand
	log    *logger.Logger
	mon    Recorder
	health func() error
	mux    *http.ServeMux
}

func New(opts Options) *Server {
	s := &Server{
		state:  opts.State,
		rnd:    opts.Rand,
		log:    opts.Log,
		mon:    opts.Monitor,
		health: opts.Health,
		mux:    http.NewServeMux(),
	}
	if s.rnd == nil {
		s.rnd = actuator.DefaultRand
	}
	if s.log == nil {
		s.log = logger.NewNop()
	}
	if s.mon == nil {
		s.mon = nopRecorder{}
	}

	s.handle("GET /status", "status", s.getStatus)
	s.handle("GET /config", "config", s.getConfig)
	s.handle("PUT /config/strategy", "config_strategy", s.putStrategy)
	s.handle("PUT /config/regions/{kind}", "config_region", s.putRegion)
	s.handle("PUT /config/clicks", "config_clicks", s.putClicks)
	s.handle("POST /run", "run", s.postRun)
	s.handle("GET /regions/{kind}/preview", "region_preview", s.getPreview)
	s.handle("GET /health", "health", s.getHealth)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// httpError 携带状态码的处理错误。
type httpError struct {
	code int
	err  error
}

func (e *httpError) Error() string { return e.err.Error() }
func (e *httpError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return &httpError{code: http.StatusBadRequest, err: err}
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) (interface{}, error)

func (s *Server) handle(pattern, route string, h handlerFunc) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		body, err := h(w, r)
		code := http.StatusOK
		if err != nil {
			code = http.StatusInternalServerError
			var he *httpError
			if errors.As(err, &he) {
				code = he.code
			}
			body = map[string]string{"error": err.Error()}
			if code >= http.StatusInternalServerError {
				s.log.Error("control request failed", zap.String("route", route), zap.Error(err))
			} else {
				s.log.Debug("control request rejected", zap.String("route", route), zap.Error(err))
			}
		}
		writeJSON(w, code, body)
		s.mon.RecordControlRequest(route, code)
	})
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequest(fmt.Errorf("decode body: %w", err))
	}
	return nil
}

// asRequestError 校验失败（config.ErrInvalid）映射为 400。
func asRequestError(err error) error {
	var invalid config.ErrInvalid
	if errors.As(err, &invalid) {
		return badRequest(err)
	}
	return err
}

func (s *Server) getStatus(http.ResponseWriter, *http.Request) (interface{}, error) {
	return s.state.Status(), nil
}

func (s *Server) getConfig(http.ResponseWriter, *http.Request) (interface{}, error) {
	return s.state.Settings(), nil
}

func (s *Server) putStrategy(_ http.ResponseWriter, r *http.Request) (interface{}, error) {
	cfg := s.state.Settings().Strategy
	if err := decodeBody(r, &cfg); err != nil {
		return nil, err
	}
	updated, err := s.state.SetStrategy(cfg)
	if err != nil {
		return nil, asRequestError(err)
	}
	return updated, nil
}

func (s *Server) putRegion(_ http.ResponseWriter, r *http.Request) (interface{}, error) {
	kind, err := config.ParseRegionKind(r.PathValue("kind"))
	if err != nil {
		return nil, badRequest(err)
	}
	var region config.Region
	if err := decodeBody(r, &region); err != nil {
		return nil, err
	}
	updated, err := s.state.SetRegion(kind, region)
	if err != nil {
		return nil, asRequestError(err)
	}
	return updated, nil
}

type clicksRequest struct {
	N *int `json:"n"`
}

func (s *Server) putClicks(_ http.ResponseWriter, r *http.Request) (interface{}, error) {
	var req clicksRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	if req.N == nil {
		return nil, badRequest(errors.New("n is required"))
	}
	if *req.N < 0 || *req.N > 255 {
		return nil, badRequest(fmt.Errorf("n %d out of range 0..255", *req.N))
	}
	n := s.state.SetExitClicks(uint8(*req.N))
	return map[string]uint8{"n": n}, nil
}

type runRequest struct {
	Action string `json:"action"`
}

func (s *Server) postRun(_ http.ResponseWriter, r *http.Request) (interface{}, error) {
	var req runRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	var running bool
	switch req.Action {
	case "start":
		running = true
	case "stop":
		running = false
	default:
		return nil, badRequest(fmt.Errorf("unknown action %q", req.Action))
	}
	msg := s.state.SetRunning(running)
	s.log.Info("run state changed", zap.Bool("running", running))
	return map[string]interface{}{"running": running, "message": msg}, nil
}

func (s *Server) getPreview(_ http.ResponseWriter, r *http.Request) (interface{}, error) {
	kind, err := config.ParseRegionKind(r.PathValue("kind"))
	if err != nil {
		return nil, badRequest(err)
	}
	n := defaultPreview
	if raw := r.URL.Query().Get("n"); raw != "" {
		n, err = strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxPreview {
			return nil, badRequest(fmt.Errorf("n must be an integer in 1..%d", maxPreview))
		}
	}
	region := s.state.Region(kind)
	points, err := actuator.Preview(region, n, s.rnd)
	if err != nil {
		return nil, asRequestError(err)
	}
	return map[string]interface{}{"kind": kind, "region": region, "points": points}, nil
}

func (s *Server) getHealth(http.ResponseWriter, *http.Request) (interface{}, error) {
	if s.health != nil {
		if err := s.health(); err != nil {
			return nil, &httpError{code: http.StatusServiceUnavailable, err: err}
		}
	}
	return map[string]string{"status": "ok"}, nil
}
