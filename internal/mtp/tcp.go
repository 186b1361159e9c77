package mtp

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/uspbroker/broker/internal/usp"
)

// TCPConn is a JSON-over-TCP Connection, grounded on cellorg's
// service.go Connection (json.Encoder/Decoder pair over a net.Conn) and
// client/broker.go's NewBrokerClient dial+listen pair. Every inbound
// byte stream is owned by exactly one goroutine (Listener.handle); writers may
// call Send concurrently, serialized by mu.
type TCPConn struct {
	endpointID string
	conn       net.Conn
	enc        *json.Encoder
	mu         sync.Mutex
	closed     bool
}

func newTCPConn(endpointID string, conn net.Conn) *TCPConn {
	return &TCPConn{
		endpointID: endpointID,
		conn:       conn,
		enc:        json.NewEncoder(conn),
	}
}

func (c *TCPConn) Send(rec *usp.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("mtp: tcp connection to %s is closed", c.endpointID)
	}
	return c.enc.Encode(rec)
}

func (c *TCPConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

func (c *TCPConn) EndpointID() string { return c.endpointID }

// Listener accepts USP Service connections over TCP, one goroutine per
// connection doing nothing but decode-and-deliver, grounded on
// service.go's Start/handleConnection accept loop. The handshake that
// assigns an endpoint id to a raw connection is transport-specific (here:
// the first record's FromID) and is reported via OnConnect before any
// record is delivered.
type Listener struct {
	addr         string
	log          zerolog.Logger
	inbox        Inbox
	onConnect    func(endpointID string, conn Connection)
	onDisconnect func(endpointID string)

	mu       sync.Mutex
	listener net.Listener
	done     chan struct{}
}

func NewListener(addr string, inbox Inbox, log zerolog.Logger, onConnect func(string, Connection), onDisconnect func(string)) *Listener {
	return &Listener{
		addr:         addr,
		log:          log,
		inbox:        inbox,
		onConnect:    onConnect,
		onDisconnect: onDisconnect,
		done:         make(chan struct{}),
	}
}

// Serve blocks accepting connections until Close is called.
func (l *Listener) Serve() error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("mtp: listen on %s: %w", l.addr, err)
	}
	l.mu.Lock()
	l.listener = ln
	l.mu.Unlock()

	l.log.Info().Str("addr", l.addr).Msg("mtp listener started")

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-l.done:
				return nil
			default:
				l.log.Error().Err(err).Msg("mtp accept error")
				continue
			}
		}
		go l.handle(conn)
	}
}

func (l *Listener) Close() error {
	close(l.done)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener != nil {
		return l.listener.Close()
	}
	return nil
}

func (l *Listener) handle(netConn net.Conn) {
	defer netConn.Close()

	// connID identifies the raw socket in logs before the first record
	// reveals which USP endpoint it belongs to.
	connID := uuid.New().String()
	log := l.log.With().Str("conn_id", connID).Logger()

	dec := json.NewDecoder(netConn)
	var endpointID string
	var tc *TCPConn

	for {
		var rec usp.Record
		if err := dec.Decode(&rec); err != nil {
			if endpointID != "" {
				log.Debug().Str("endpoint", endpointID).Err(err).Msg("mtp connection closed")
				if l.onDisconnect != nil {
					l.onDisconnect(endpointID)
				}
			} else {
				log.Debug().Err(err).Msg("mtp connection closed before handshake")
			}
			return
		}

		if endpointID == "" {
			endpointID = rec.FromID
			tc = newTCPConn(endpointID, netConn)
			log.Info().Str("endpoint", endpointID).Msg("mtp connection identified")
			if l.onConnect != nil {
				l.onConnect(endpointID, tc)
			}
		}

		l.inbox.Deliver(endpointID, &rec)
	}
}
