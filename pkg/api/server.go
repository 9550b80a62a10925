package api

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"inverter/pkg/inverter"

	log "github.com/sirupsen/logrus"
)

type ServerDescription struct {
	Name                string `json:"ServerName"`
	Manufacturer        string `json:"Manufacturer"`
	ManufacturerVersion string `json:"ManufacturerVersion"`
	Location            string `json:"Location"`
}

// SessionStatus is reported by the status route.
type SessionStatus struct {
	State      string `json:"state"`
	Drivers    int    `json:"drivers"`
	DebugLevel int    `json:"debugLevel"`
}

// DeviceData is the result of a telemetry fetch.
type DeviceData struct {
	Timestamp string                      `json:"timestamp"`
	Channels  map[string]inverter.Reading `json:"channels"`
}

// Server exposes an inverter session over HTTP.
type Server struct {
	description ServerDescription
	session     *inverter.Session
	store       *Store
	tmpl        *template.Template
	logger      log.FieldLogger
}

// NewServer creates a new Server instance.
func NewServer(description ServerDescription, session *inverter.Session, store *Store, tmpl *template.Template, logger log.FieldLogger) *Server {
	server := Server{
		description: description,
		session:     session,
		store:       store,
		tmpl:        tmpl,
		logger:      logger,
	}

	return &server
}

func (s *Server) AddRoutes() *http.ServeMux {
	r := http.NewServeMux()

	// Add management routes
	r.Handle("GET /management/apiversions", s.handle(s.handleAPIVersions))
	r.Handle("GET /management/v1/description", s.handle(s.handleDescription))
	r.HandleFunc("/setup", s.handleSetup)

	r.Handle("GET /api/v1/status", s.handle(s.handleStatus))
	r.Handle("PUT /api/v1/initialize", s.handle(s.handleInitialize))
	r.Handle("PUT /api/v1/detect", s.handle(s.handleDetect))
	r.Handle("PUT /api/v1/shutdown", s.handle(s.handleShutdown))
	r.Handle("GET /api/v1/devices", s.handle(s.handleDevices))
	r.Handle("GET /api/v1/devices/{handle}/data", s.handle(s.handleDeviceData))
	r.Handle("GET /api/v1/devices/{handle}/channels/{name}", s.handle(s.handleChannelInfo))
	r.Handle("PUT /api/v1/devices/{handle}/channels/{name}", s.handle(s.handleSetChannel))

	return r
}

func (s *Server) handleAPIVersions(r *http.Request, params url.Values) (any, error) {
	return []int{1}, nil
}

func (s *Server) handleDescription(r *http.Request, params url.Values) (any, error) {
	return s.description, nil
}

func (s *Server) handleStatus(r *http.Request, params url.Values) (any, error) {
	return SessionStatus{
		State:      s.session.State().String(),
		Drivers:    len(s.session.Drivers()),
		DebugLevel: s.session.DebugLevel(),
	}, nil
}

// handleInitialize initializes the session. The configuration file from
// the stored config is used when the request does not name one.
func (s *Server) handleInitialize(r *http.Request, params url.Values) (any, error) {
	path, ok := param(params, "ConfigPath")
	if !ok {
		cfg, err := s.store.GetConfig()
		if err != nil {
			return nil, err
		}
		path = cfg.ConfigPath
	}

	if err := s.session.Initialize(path); err != nil {
		return nil, err
	}
	return true, nil
}

// handleDetect reports false, not an error, when the master could not find
// the expected devices.
func (s *Server) handleDetect(r *http.Request, params url.Values) (any, error) {
	def := defaultExpectedDevices
	if cfg, err := s.store.GetConfig(); err == nil {
		def = cfg.ExpectedDevices
	}

	expected, err := parseIntParam(params, "Devices", def)
	if err != nil {
		return nil, err
	}

	err = s.session.DetectDevices(expected)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, inverter.ErrDetectionInProgress),
		errors.Is(err, inverter.ErrNotAllDevicesFound),
		errors.Is(err, inverter.ErrDetectionFailed):
		return false, nil
	default:
		return nil, err
	}
}

func (s *Server) handleShutdown(r *http.Request, params url.Values) (any, error) {
	if err := s.session.Shutdown(); err != nil {
		return nil, err
	}
	return true, nil
}

func (s *Server) handleDevices(r *http.Request, params url.Values) (any, error) {
	return s.session.ListDevices()
}

func deviceHandle(r *http.Request) (inverter.DeviceHandle, error) {
	value := r.PathValue("handle")
	h, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, invalidParam("device handle", value)
	}
	return inverter.DeviceHandle(h), nil
}

func (s *Server) handleDeviceData(r *http.Request, params url.Values) (any, error) {
	dev, err := deviceHandle(r)
	if err != nil {
		return nil, err
	}

	channels, err := s.session.FetchDeviceData(dev)
	if err != nil {
		return nil, err
	}

	return DeviceData{
		Timestamp: time.Now().Format(time.RFC3339),
		Channels:  channels,
	}, nil
}

func (s *Server) handleChannelInfo(r *http.Request, params url.Values) (any, error) {
	dev, err := deviceHandle(r)
	if err != nil {
		return nil, err
	}

	return s.session.ChannelInfo(dev, r.PathValue("name"))
}

func (s *Server) handleSetChannel(r *http.Request, params url.Values) (any, error) {
	dev, err := deviceHandle(r)
	if err != nil {
		return nil, err
	}

	value, err := parseFloatParam(params, "Value")
	if err != nil {
		return nil, err
	}

	outcome, err := s.session.SetChannelValue(dev, r.PathValue("name"), value)
	if err != nil {
		return nil, err
	}

	if !outcome.Success {
		s.logger.Warnf("Write of %v to %d/%s failed: %s", value, dev, r.PathValue("name"), outcome.Code)
	}
	return outcome, nil
}

// handleSetup returns a user interface for setting up the server.
func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cfg, err := s.store.GetConfig()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		s.renderSetupForm(w, cfg, false, "")

	case http.MethodPost:
		current, err := s.store.GetConfig()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		cfg, err := parseSetupForm(r, current)
		if err != nil {
			s.renderSetupForm(w, cfg, false, err.Error())
			return
		}

		s.logger.Infof("Setting config: %+v", cfg)
		if err := s.store.SetConfig(cfg); err != nil {
			s.renderSetupForm(w, cfg, false, err.Error())
			return
		}
		s.renderSetupForm(w, cfg, true, "")

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) renderSetupForm(w http.ResponseWriter, cfg Config, success bool, err string) {
	data := struct {
		Config
		Description ServerDescription
		State       string
		Success     bool
		Error       string
	}{cfg, s.description, s.session.State().String(), success, err}

	if err := s.tmpl.ExecuteTemplate(w, "setup.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func parseSetupForm(r *http.Request, cfg Config) (Config, error) {
	if err := r.ParseForm(); err != nil {
		return cfg, fmt.Errorf("error parsing form: %v", err)
	}

	var err error
	cfg.ConfigPath = r.FormValue("config-path")
	if cfg.ExpectedDevices, err = strconv.Atoi(r.FormValue("expected-devices")); err != nil {
		return cfg, fmt.Errorf("invalid expected devices: %q", r.FormValue("expected-devices"))
	}

	cfg.MQTT.Enabled = r.FormValue("mqtt-enabled") == "true"
	cfg.MQTT.Host = r.FormValue("mqtt-host")
	cfg.MQTT.Username = r.FormValue("mqtt-username")
	cfg.MQTT.Password = r.FormValue("mqtt-password")
	cfg.MQTT.TopicRoot = r.FormValue("mqtt-topic-root")
	if cfg.MQTT.Port, err = strconv.Atoi(r.FormValue("mqtt-port")); err != nil {
		return cfg, fmt.Errorf("invalid mqtt port: %q", r.FormValue("mqtt-port"))
	}
	if cfg.MQTT.Interval, err = strconv.Atoi(r.FormValue("mqtt-interval")); err != nil {
		return cfg, fmt.Errorf("invalid mqtt interval: %q", r.FormValue("mqtt-interval"))
	}

	return cfg, nil
}
