package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"inverter/pkg/api"
	"inverter/pkg/bridge"
	"inverter/pkg/inverter"
	"inverter/templates"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"
	bolt "go.etcd.io/bbolt"
)

// applyFlags overrides the stored configuration with the flags given on
// the command line.
func applyFlags(c *cli.Context, cfg api.Config) api.Config {
	if c.IsSet("yasdi-config") {
		cfg.ConfigPath = c.String("yasdi-config")
	}
	if c.IsSet("devices") {
		cfg.ExpectedDevices = c.Int("devices")
	}
	if c.IsSet("mqtt-host") {
		cfg.MQTT.Enabled = true
		cfg.MQTT.Host = c.String("mqtt-host")
	}
	if c.IsSet("mqtt-port") {
		cfg.MQTT.Port = c.Int("mqtt-port")
	}
	if c.IsSet("mqtt-username") {
		cfg.MQTT.Username = c.String("mqtt-username")
	}
	if c.IsSet("mqtt-password") {
		cfg.MQTT.Password = c.String("mqtt-password")
	}
	if c.IsSet("mqtt-topic-root") {
		cfg.MQTT.TopicRoot = c.String("mqtt-topic-root")
	}
	return cfg
}

func run(c *cli.Context) error {
	if c.Bool("debug") {
		log.SetLevel(log.DebugLevel)
	}

	log.Info("Inverter Server")

	tmpl, err := templates.Load()
	if err != nil {
		return fmt.Errorf("failed to load templates: %v", err)
	}

	db, err := bolt.Open(c.String("db"), 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to open database: %v", err)
	}
	defer db.Close()

	store, err := api.NewStore(db)
	if err != nil {
		return fmt.Errorf("failed to create store: %v", err)
	}

	cfg, err := store.GetConfig()
	if err != nil {
		return fmt.Errorf("failed to get config: %v", err)
	}
	cfg = applyFlags(c, cfg)
	if err := store.SetConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %v", err)
	}

	master, err := newMaster(c, db, log.WithField("component", "master"))
	if err != nil {
		return fmt.Errorf("failed to create master: %v", err)
	}

	opts := inverter.DefaultOptions
	if c.Bool("debug") {
		opts.DebugLevel = 1
	}
	session := inverter.NewSession(master, opts, log.WithField("component", "session"))
	defer session.Close()

	if c.Bool("auto-init") {
		if err := session.Initialize(cfg.ConfigPath); err != nil {
			return fmt.Errorf("failed to initialize session: %v", err)
		}
		if err := session.DetectDevices(cfg.ExpectedDevices); err != nil {
			log.Warnf("Device detection: %v", err)
		}
	}

	serverDesc := api.ServerDescription{
		Name:                "Inverter Server",
		Manufacturer:        "SMA YASDI",
		ManufacturerVersion: "1.0",
		Location:            cfg.UniqueID,
	}
	server := api.NewServer(serverDesc, session, store, tmpl, log.WithField("component", "api"))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", c.Int("port")),
		Handler: server.AddRoutes(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Debugf("Server started on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Could not listen on %s: %v", srv.Addr, err)
			stop()
		}
	}()

	discoveryAddr := net.JoinHostPort("0.0.0.0", strconv.Itoa(api.DiscoveryPort))
	dr, err := api.NewDiscoveryResponder(discoveryAddr, c.Int("port"), cfg.UniqueID, log.WithField("component", "discovery"))
	if err != nil {
		return fmt.Errorf("failed to create discovery responder: %v", err)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := dr.Run(ctx); err != nil {
			log.Errorf("Discovery responder failed: %v", err)
		}
		log.Debug("Discovery responder stopped")
	}()

	if cfg.MQTT.Enabled {
		client, err := bridge.NewClient(bridge.BrokerConfig{
			Host:     cfg.MQTT.Host,
			Port:     cfg.MQTT.Port,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		})
		if err != nil {
			log.Errorf("MQTT bridge disabled: %v", err)
		} else {
			defer client.Disconnect(250)

			interval := time.Duration(cfg.MQTT.Interval) * time.Second
			b := bridge.New(client, session, cfg.MQTT.TopicRoot, interval, log.StandardLogger())

			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := b.Run(ctx); err != nil {
					log.Errorf("MQTT bridge failed: %v", err)
				}
				log.Debug("MQTT bridge stopped")
			}()
		}
	}

	<-ctx.Done()

	log.Info("Shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx2); err != nil {
		return fmt.Errorf("server forced to shutdown: %v", err)
	}

	wg.Wait()
	log.Info("Server stopped")
	return nil
}

// loadEnv reads environment overrides for the flags from an env file.
func loadEnv() {
	path := os.Getenv("INVERTER_ENV_FILE")
	if path == "" {
		path = ".env"
	}

	if err := godotenv.Load(path); err != nil {
		log.Debugf("No env file loaded from %s: %v", path, err)
		return
	}
	log.Infof("Loaded environment from %s", path)
}

func main() {
	loadEnv()

	app := cli.App{
		Name:  "inverter-server",
		Usage: "HTTP and MQTT access to SMA inverters through YASDI",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "Enable debug logging",
				Value:   false,
				EnvVars: []string{"DEBUG"},
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on",
				Value:   8090,
				EnvVars: []string{"INVERTER_PORT"},
			},
			&cli.StringFlag{
				Name:    "db",
				Usage:   "Path of the configuration database",
				Value:   "inverter.db",
				EnvVars: []string{"INVERTER_DB"},
			},
			&cli.StringFlag{
				Name:    "yasdi-config",
				Aliases: []string{"c"},
				Usage:   "YASDI configuration file",
				EnvVars: []string{"YASDI_CONFIG"},
			},
			&cli.IntFlag{
				Name:    "devices",
				Aliases: []string{"n"},
				Usage:   "Number of devices to wait for on detection",
				EnvVars: []string{"INVERTER_DEVICES"},
			},
			&cli.StringFlag{
				Name:    "plant",
				Usage:   "YAML plant description for the simulated master",
				EnvVars: []string{"INVERTER_PLANT"},
			},
			&cli.BoolFlag{
				Name:    "auto-init",
				Usage:   "Initialize the session and detect devices on startup",
				EnvVars: []string{"INVERTER_AUTO_INIT"},
			},
			&cli.StringFlag{
				Name:    "mqtt-host",
				Usage:   "MQTT broker host, enables the MQTT bridge",
				EnvVars: []string{"MQTT_HOST"},
			},
			&cli.IntFlag{
				Name:    "mqtt-port",
				Usage:   "MQTT broker port",
				EnvVars: []string{"MQTT_PORT"},
			},
			&cli.StringFlag{
				Name:    "mqtt-username",
				Usage:   "MQTT username",
				EnvVars: []string{"MQTT_USERNAME"},
			},
			&cli.StringFlag{
				Name:    "mqtt-password",
				Usage:   "MQTT password",
				EnvVars: []string{"MQTT_PASSWORD"},
			},
			&cli.StringFlag{
				Name:    "mqtt-topic-root",
				Usage:   "Root of the MQTT topics",
				EnvVars: []string{"MQTT_TOPIC_ROOT"},
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Error: %v", err)
	}
}
