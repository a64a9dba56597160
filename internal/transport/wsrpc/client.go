package wsrpc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-tvbridge/internal/transport"
)

const (
	defaultPort           = 3000
	defaultSecurePort     = 3001
	defaultConnectTimeout = 10 * time.Second
	defaultPairingTimeout = 60 * time.Second
	writeTimeout          = 5 * time.Second
	pendingBuffer         = 4
)

// Dialer opens control connections to TVs.
type Dialer struct {
	// Port overrides the default 3000 (3001 when Secure).
	Port   int
	Secure bool

	ConnectTimeout time.Duration

	// PairingTimeout bounds how long Dial waits for the user to accept the
	// on-screen pairing prompt.
	PairingTimeout time.Duration
}

// Dial connects and registers. It implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context, address, key string) (transport.Client, error) {
	ws, err := d.dialWS(ctx, d.url(address))
	if err != nil {
		return nil, err
	}

	c := newClient(ws, d)
	go c.readLoop()

	pairingTimeout := d.PairingTimeout
	if pairingTimeout <= 0 {
		pairingTimeout = defaultPairingTimeout
	}
	regCtx, cancel := context.WithTimeout(ctx, pairingTimeout)
	defer cancel()

	if err := c.register(regCtx, key); err != nil {
		c.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, err
	}
	return c, nil
}

func (d *Dialer) url(address string) string {
	scheme, port := "ws", defaultPort
	if d.Secure {
		scheme, port = "wss", defaultSecurePort
	}
	if d.Port != 0 {
		port = d.Port
	}
	return fmt.Sprintf("%s://%s/", scheme, net.JoinHostPort(address, strconv.Itoa(port)))
}

func (d *Dialer) dialWS(ctx context.Context, url string) (*websocket.Conn, error) {
	timeout := d.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	wsDialer := websocket.Dialer{
		HandshakeTimeout: timeout,
		// TVs present self-signed certificates.
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // see above
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ws, _, err := wsDialer.DialContext(dialCtx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	return ws, nil
}

// Client is a registered control connection.
//
// Thread Safety:
//   - Request may be called from many goroutines. Writes are serialised;
//     a single reader routes responses.
type Client struct {
	conn   *websocket.Conn
	dialer *Dialer

	writeMu sync.Mutex

	pending   map[string]chan message
	pendingMu sync.Mutex

	issued chan string

	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, dialer *Dialer) *Client {
	return &Client{
		conn:    conn,
		dialer:  dialer,
		pending: make(map[string]chan message),
		issued:  make(chan string, 1),
		done:    make(chan struct{}),
	}
}

// register sends the register request and waits until the TV answers with
// "registered". A prompt acknowledgement in between only means the user
// has been asked.
func (c *Client) register(ctx context.Context, key string) error {
	defer close(c.issued)

	payload := transport.Payload{
		"forcePairing": false,
		"pairingType":  "PROMPT",
		"manifest":     defaultManifest(),
	}
	if key != "" {
		payload["client-key"] = key
	}

	id := "register_" + uuid.NewString()
	ch := c.await(id)
	defer c.forget(id)

	if err := c.write(message{Type: TypeRegister, ID: id, Payload: payload}); err != nil {
		return err
	}

	for {
		select {
		case msg := <-ch:
			switch msg.Type {
			case TypeRegistered:
				if newKey, _ := msg.Payload["client-key"].(string); newKey != "" && newKey != key {
					c.issued <- newKey
				}
				return nil
			case TypeError:
				return fmt.Errorf("%w: %s", transport.ErrPairingRejected, msg.Error)
			}
		case <-c.done:
			return transport.ErrClosed
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", transport.ErrPairingRejected, ctx.Err())
		}
	}
}

// Request sends one request and waits for its response.
func (c *Client) Request(ctx context.Context, uri string, payload transport.Payload) (transport.Payload, error) {
	if payload == nil {
		payload = transport.Payload{}
	}
	id := uuid.NewString()
	ch := c.await(id)
	defer c.forget(id)

	if err := c.write(message{Type: TypeRequest, ID: id, URI: uri, Payload: payload}); err != nil {
		return nil, err
	}

	select {
	case msg := <-ch:
		return responsePayload(uri, msg)
	case <-c.done:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func responsePayload(uri string, msg message) (transport.Payload, error) {
	if msg.Type == TypeError {
		return nil, fmt.Errorf("%w: %s: %s", transport.ErrRequestFailed, uri, msg.Error)
	}
	if ok, present := msg.Payload["returnValue"].(bool); present && !ok {
		text, _ := msg.Payload["errorText"].(string)
		return nil, fmt.Errorf("%w: %s: %s", transport.ErrRequestFailed, uri, text)
	}
	if msg.Payload == nil {
		return transport.Payload{}, nil
	}
	return msg.Payload, nil
}

// PointerSocket asks the TV for the input socket path and connects to it.
func (c *Client) PointerSocket(ctx context.Context) (transport.PointerSocket, error) {
	resp, err := c.Request(ctx, URIPointerSocket, nil)
	if err != nil {
		return nil, err
	}
	path, _ := resp["socketPath"].(string)
	if path == "" {
		return nil, fmt.Errorf("%w: no socketPath in pointer socket response", transport.ErrRequestFailed)
	}
	ws, err := c.dialer.dialWS(ctx, path)
	if err != nil {
		return nil, err
	}
	return &pointerSocket{conn: ws}, nil
}

// IssuedKeys implements transport.Client.
func (c *Client) IssuedKeys() <-chan string {
	return c.issued
}

// Done implements transport.Client.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the socket. Pending requests fail with transport.ErrClosed.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		//nolint:errcheck // Best-effort close frame
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Client) readLoop() {
	defer c.Close() //nolint:errcheck // Connection is gone either way

	for {
		var msg message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		c.pendingMu.Lock()
		ch, ok := c.pending[msg.ID]
		c.pendingMu.Unlock()
		if !ok {
			continue
		}
		select {
		case ch <- msg:
		default:
		}
	}
}

func (c *Client) write(msg message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return transport.ErrClosed
	default:
	}

	//nolint:errcheck // Best-effort deadline; write error caught below
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(msg); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return transport.ErrClosed
		}
		return fmt.Errorf("writing %s: %w", msg.Type, err)
	}
	return nil
}

func (c *Client) await(id string) chan message {
	ch := make(chan message, pendingBuffer)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	return ch
}

func (c *Client) forget(id string) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

type pointerSocket struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Button sends one remote key, e.g. "HOME" or "ENTER".
func (p *pointerSocket) Button(name string) error {
	return p.send("type:button\nname:" + name + "\n\n")
}

// Click sends a pointer click at the current position.
func (p *pointerSocket) Click() error {
	return p.send("type:click\n\n")
}

func (p *pointerSocket) send(frame string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	//nolint:errcheck // Best-effort deadline; write error caught below
	p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := p.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		return fmt.Errorf("pointer socket: %w", err)
	}
	return nil
}

func (p *pointerSocket) Close() error {
	return p.conn.Close()
}
