// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package walletrpc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"flintwallet.org/flint/wallet"
	"github.com/gorilla/websocket"
)

const (
	// writeWait is the maximum time to write to the connection.
	writeWait = time.Second * 3

	// defaultPingWait is the maximum time to wait for a ping from the
	// daemon before the connection is considered broken.
	defaultPingWait = 20 * time.Second

	// defaultRequestTimeout is the maximum time to wait for a response to
	// a request.
	defaultRequestTimeout = 10 * time.Second
)

// Config is the configuration for a Client.
type Config struct {
	// Host is the daemon's websocket host.
	Host string
	// Path is the websocket api path. The default is "/ws".
	Path string
	// RPCCert is the daemon's TLS certificate file path. An empty RPCCert
	// uses the system certificate pool.
	RPCCert string
	// PingWait is the maximum time to wait for a ping from the daemon.
	PingWait time.Duration
	// RequestTimeout is the maximum time to wait for a response.
	RequestTimeout time.Duration
	// Logger is the Client's logger. Required.
	Logger wallet.Logger
}

// Client is a websocket JSON-RPC connection to the wallet daemon. Client
// implements wallet.Service. A broken connection is redialed automatically
// and the session credential is re-presented, so a connected Client stays
// usable across daemon restarts.
type Client struct {
	cfg    *Config
	log    wallet.Logger
	tlsCfg *tls.Config

	rID uint64

	ctx    context.Context
	cancel context.CancelFunc

	wsMtx sync.Mutex
	ws    *websocket.Conn

	respMtx sync.Mutex
	resp    map[uint64]chan *Message

	// seed is the session credential, held for re-presentation after a
	// reconnect and cleared on Disconnect.
	seedMtx sync.Mutex
	seed    string

	connectedMtx sync.RWMutex
	connected    bool

	reconnects  uint64
	reconnectCh chan struct{}
	wg          sync.WaitGroup
}

// New is the constructor for a Client. New prepares the TLS configuration
// but does not dial; that happens in Connect.
func New(cfg *Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("no daemon host configured")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	if cfg.PingWait <= 0 {
		cfg.PingWait = defaultPingWait
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	var tlsConfig *tls.Config
	if cfg.RPCCert != "" {
		rootCAs, _ := x509.SystemCertPool()
		if rootCAs == nil {
			rootCAs = x509.NewCertPool()
		}
		pem, err := os.ReadFile(cfg.RPCCert)
		if err != nil {
			return nil, fmt.Errorf("error reading rpc cert %s: %w", cfg.RPCCert, err)
		}
		if !rootCAs.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("unparseable rpc cert %s", cfg.RPCCert)
		}
		tlsConfig = &tls.Config{
			RootCAs:    rootCAs,
			MinVersion: tls.VersionTLS12,
		}
	}

	return &Client{
		cfg:    cfg,
		log:    cfg.Logger,
		tlsCfg: tlsConfig,
	}, nil
}

// Connect dials the daemon, starts the read and keep-alive processes, and
// binds the session to the credential. Part of the wallet.Service interface.
func (c *Client) Connect(ctx context.Context, seed string) error {
	if c.IsConnected() {
		return fmt.Errorf("already connected")
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.reconnectCh = make(chan struct{}, 1)
	c.respMtx.Lock()
	c.resp = make(map[uint64]chan *Message)
	c.respMtx.Unlock()

	if err := c.dial(); err != nil {
		c.cancel()
		return fmt.Errorf("error dialing %s: %w", c.cfg.Host, err)
	}

	c.seedMtx.Lock()
	c.seed = seed
	c.seedMtx.Unlock()

	c.wg.Add(2)
	go c.read()
	go c.keepAlive()

	c.setConnected(true)
	if err := c.request(ctx, ConnectRoute, &ConnectParams{Seed: seed}, nil); err != nil {
		c.shutdown()
		return fmt.Errorf("connect request error: %w", err)
	}
	c.log.Infof("connected to wallet daemon at %s", c.cfg.Host)
	return nil
}

// Disconnect releases the session and tears down the connection. Part of
// the wallet.Service interface.
func (c *Client) Disconnect() error {
	if !c.IsConnected() {
		return nil
	}
	// Best effort. The daemon drops the session on close anyway.
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	if err := c.request(ctx, DisconnectRoute, nil, nil); err != nil {
		c.log.Debugf("disconnect request error: %v", err)
	}
	cancel()
	c.shutdown()
	c.log.Infof("disconnected from wallet daemon")
	return nil
}

// shutdown stops the read and keep-alive processes and closes the websocket.
func (c *Client) shutdown() {
	c.setConnected(false)
	c.cancel()
	c.close()
	c.wg.Wait()
	c.seedMtx.Lock()
	c.seed = ""
	c.seedMtx.Unlock()
}

// IsConnected reports whether the session is up. Part of the wallet.Service
// interface.
func (c *Client) IsConnected() bool {
	c.connectedMtx.RLock()
	defer c.connectedMtx.RUnlock()
	return c.connected
}

func (c *Client) setConnected(connected bool) {
	c.connectedMtx.Lock()
	c.connected = connected
	c.connectedMtx.Unlock()
}

// WalletInfo requests the wallet info snapshot. Part of the wallet.Service
// interface.
func (c *Client) WalletInfo(ctx context.Context) (*wallet.Info, error) {
	info := new(wallet.Info)
	if err := c.request(ctx, WalletInfoRoute, nil, info); err != nil {
		return nil, err
	}
	return info, nil
}

// Payments requests a page of payment history. Part of the wallet.Service
// interface.
func (c *Client) Payments(ctx context.Context, filter *wallet.PaymentFilter, limit, offset uint64) ([]*wallet.Payment, error) {
	res := new(PaymentsResult)
	params := &PaymentsParams{Filter: filter, Limit: limit, Offset: offset}
	if err := c.request(ctx, PaymentsRoute, params, res); err != nil {
		return nil, err
	}
	return res.Payments, nil
}

// request sends a request over the websocket and waits for the matching
// response, unmarshaling its payload into result when result is non-nil.
func (c *Client) request(ctx context.Context, route string, params, result any) error {
	id := atomic.AddUint64(&c.rID, 1)
	msg, err := NewRequest(id, route, params)
	if err != nil {
		return err
	}

	respCh := make(chan *Message, 1)
	c.respMtx.Lock()
	c.resp[id] = respCh
	c.respMtx.Unlock()
	defer func() {
		c.respMtx.Lock()
		delete(c.resp, id)
		c.respMtx.Unlock()
	}()

	if err := c.send(msg); err != nil {
		return err
	}

	select {
	case resp := <-respCh:
		return resp.UnmarshalResult(result)
	case <-time.After(c.cfg.RequestTimeout):
		return fmt.Errorf("request %s (id %d) timed out", route, id)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// send writes the message to the websocket under a write deadline.
func (c *Client) send(msg *Message) error {
	c.wsMtx.Lock()
	defer c.wsMtx.Unlock()
	if c.ws == nil {
		return fmt.Errorf("cannot send on a broken connection")
	}
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(msg)
}

// dial establishes the websocket connection and installs the ping handler.
func (c *Client) dial() error {
	uri := url.URL{
		Scheme: "wss",
		Host:   c.cfg.Host,
		Path:   c.cfg.Path,
	}
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
		TLSClientConfig:  c.tlsCfg,
	}

	ws, _, err := dialer.Dial(uri.String(), nil)
	if err != nil {
		return err
	}

	ws.SetPingHandler(func(string) error {
		now := time.Now()
		if err := ws.SetReadDeadline(now.Add(c.cfg.PingWait)); err != nil {
			c.log.Errorf("read deadline error: %v", err)
			return err
		}
		c.wsMtx.Lock()
		defer c.wsMtx.Unlock()
		if err := ws.WriteControl(websocket.PongMessage, []byte{}, now.Add(writeWait)); err != nil {
			c.log.Errorf("pong error: %v", err)
			return err
		}
		return nil
	})

	c.wsMtx.Lock()
	c.ws = ws
	c.wsMtx.Unlock()
	return nil
}

// close closes the websocket connection politely.
func (c *Client) close() {
	c.wsMtx.Lock()
	defer c.wsMtx.Unlock()
	if c.ws == nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	c.ws.Close()
	c.ws = nil
}

// read parses incoming messages and routes responses to their waiting
// requests. Run as a goroutine; restarted by keepAlive after a reconnect.
func (c *Client) read() {
	defer c.wg.Done()
	for {
		c.wsMtx.Lock()
		ws := c.ws
		c.wsMtx.Unlock()
		if ws == nil {
			return
		}

		msg := new(Message)
		if err := ws.ReadJSON(msg); err != nil {
			if _, ok := err.(*json.UnmarshalTypeError); ok {
				// Decode errors are not fatal.
				c.log.Errorf("json decode error: %v", err)
				continue
			}
			if c.ctx.Err() != nil ||
				websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) ||
				strings.Contains(err.Error(), "websocket: close sent") {
				return
			}
			if opErr, ok := err.(*net.OpError); ok && opErr.Op == "read" &&
				strings.Contains(opErr.Err.Error(), "use of closed network connection") {
				return
			}

			c.log.Errorf("read error: %v", err)
			select {
			case c.reconnectCh <- struct{}{}:
			default:
			}
			return
		}

		switch msg.Type {
		case Response:
			c.respMtx.Lock()
			respCh := c.resp[msg.ID]
			c.respMtx.Unlock()
			if respCh == nil {
				c.log.Errorf("response for unknown request id %d", msg.ID)
				continue
			}
			respCh <- msg
		case Notification:
			c.log.Tracef("notification on route %q", msg.Route)
		default:
			c.log.Errorf("unexpected message type %d on route %q", msg.Type, msg.Route)
		}
	}
}

// keepAlive redials a broken connection and re-presents the session
// credential. Run as a goroutine for the life of the session.
func (c *Client) keepAlive() {
	defer c.wg.Done()
	for {
		select {
		case <-c.reconnectCh:
			c.setConnected(false)
			c.log.Debugf("reconnect attempt %d", atomic.AddUint64(&c.reconnects, 1))
			// Unlike a fresh Connect, a broken connection is still held and
			// must be released before redialing.
			c.close()
			if err := c.dial(); err != nil {
				c.log.Errorf("reconnect dial error: %v", err)
				go func() {
					time.Sleep(c.cfg.PingWait)
					select {
					case c.reconnectCh <- struct{}{}:
					case <-c.ctx.Done():
					}
				}()
				continue
			}

			c.wg.Add(1)
			go c.read()

			// Re-present the credential so the daemon rebinds the session.
			c.seedMtx.Lock()
			seed := c.seed
			c.seedMtx.Unlock()
			ctx, cancel := context.WithTimeout(c.ctx, c.cfg.RequestTimeout)
			err := c.request(ctx, ConnectRoute, &ConnectParams{Seed: seed}, nil)
			cancel()
			if err != nil {
				c.log.Errorf("session rebind error: %v", err)
				continue
			}
			c.setConnected(true)
			c.log.Infof("reconnected to wallet daemon at %s", c.cfg.Host)

		case <-c.ctx.Done():
			return
		}
	}
}
