package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	DiscoveryPort  = 32227
	discoveryProbe = "inverterdiscovery1"
)

type discoveryResponse struct {
	Port     int    `json:"Port"`
	UniqueID string `json:"UniqueID"`
}

// DiscoveryResponder answers UDP discovery probes with the HTTP port of
// the server.
type DiscoveryResponder struct {
	addr     string
	response []byte
	logger   log.FieldLogger

	conn *net.UDPConn
}

// NewDiscoveryResponder creates a responder listening on addr (host:port)
// that advertises apiPort.
func NewDiscoveryResponder(addr string, apiPort int, uniqueID string, logger log.FieldLogger) (*DiscoveryResponder, error) {
	response, err := json.Marshal(discoveryResponse{Port: apiPort, UniqueID: uniqueID})
	if err != nil {
		return nil, err
	}

	dr := DiscoveryResponder{
		addr:     addr,
		response: response,
		logger:   logger,
	}

	return &dr, nil
}

// Listen binds the discovery socket.
func (d *DiscoveryResponder) Listen() error {
	udpAddr, err := net.ResolveUDPAddr("udp", d.addr)
	if err != nil {
		return fmt.Errorf("cannot resolve discovery address: %v", err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("cannot bind discovery socket: %v", err)
	}

	d.conn = conn
	d.logger.Debugf("Discovery responder started on %s", conn.LocalAddr())
	return nil
}

// LocalAddr returns the bound address, or nil before Listen.
func (d *DiscoveryResponder) LocalAddr() net.Addr {
	if d.conn == nil {
		return nil
	}
	return d.conn.LocalAddr()
}

// Serve answers probes until the context is cancelled.
func (d *DiscoveryResponder) Serve(ctx context.Context) error {
	if d.conn == nil {
		return errors.New("discovery responder is not listening")
	}
	defer d.conn.Close()

	buf := make([]byte, 1024)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		// Set a read deadline to periodically check for context cancellation
		d.conn.SetReadDeadline(time.Now().Add(1 * time.Second))

		n, addr, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			d.logger.Debugf("Error reading from socket: %v", err)
			continue
		}

		data := string(buf[:n])
		d.logger.Debugf("Received %s from %s", data, addr)

		if strings.Contains(data, discoveryProbe) {
			if _, err := d.conn.WriteToUDP(d.response, addr); err != nil {
				d.logger.Errorf("Error writing to socket: %v", err)
			}
		}
	}
}

// Run binds the socket and serves until the context is cancelled.
func (d *DiscoveryResponder) Run(ctx context.Context) error {
	if err := d.Listen(); err != nil {
		return err
	}
	return d.Serve(ctx)
}
