package webos

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-tvbridge/internal/identity"
	"github.com/nerrad567/gray-logic-tvbridge/internal/session"
	"github.com/nerrad567/gray-logic-tvbridge/internal/transport"
)

// Conn is the session view a Device needs. *session.Session satisfies it.
type Conn interface {
	Client() transport.Client
	State() session.State
}

// Waker sends Wake-on-LAN packets.
type Waker interface {
	SendWake(mac identity.MAC) error
}

// ChangeFunc receives every property change notification.
type ChangeFunc func(d *Device, change PropertyChange)

// Device is the property cache and command dispatcher for one session.
//
// Lifecycle: Initialize, then StartPolling, then Close. Requests for one
// property never overlap; different properties and actions may.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Device struct {
	id       identity.DeviceIdentity
	conn     Conn
	waker    Waker
	onChange ChangeFunc
	logger   Logger

	props *properties
	apps  *AppTable

	// locks serialise protocol requests per property.
	locks map[string]*sync.Mutex

	// Set while a poll keeps failing, so only the first failure warns.
	foregroundFailing atomic.Bool
	volumeFailing     atomic.Bool

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewDevice creates an uninitialised device.
func NewDevice(id identity.DeviceIdentity, conn Conn, waker Waker, onChange ChangeFunc, logger Logger) *Device {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Device{
		id:       id,
		conn:     conn,
		waker:    waker,
		onChange: onChange,
		logger:   logger,
		props:    newProperties(),
		apps:     NewAppTable(nil),
		locks: map[string]*sync.Mutex{
			PropertyOn:        {},
			PropertyVolume:    {},
			PropertyMute:      {},
			PropertyActiveApp: {},
		},
		stop: make(chan struct{}),
	}
}

// ID returns the external device id.
func (d *Device) ID() string {
	return d.id.DeviceID()
}

// Identity returns the identity the device was created for.
func (d *Device) Identity() identity.DeviceIdentity {
	return d.id
}

// Apps returns the app table fetched by Initialize.
func (d *Device) Apps() *AppTable {
	return d.apps
}

// Initialize fetches, in order, the app list, the foreground app and the
// volume and mute state. Any failure aborts the whole sequence.
func (d *Device) Initialize(ctx context.Context) error {
	resp, err := d.fetch(ctx, uriListLaunchPoints)
	if err != nil {
		return fmt.Errorf("listing apps: %w", err)
	}
	apps, err := parseAppTable(resp)
	if err != nil {
		return fmt.Errorf("listing apps: %w", err)
	}
	d.apps = apps

	app, err := d.fetchForeground(ctx)
	if err != nil {
		return fmt.Errorf("reading foreground app: %w", err)
	}

	volume, muted, err := d.fetchVolume(ctx)
	if err != nil {
		return fmt.Errorf("reading volume: %w", err)
	}

	d.props.seed(PropertyActiveApp, app)
	d.props.seed(PropertyVolume, volume)
	d.props.seed(PropertyMute, muted)
	d.props.seed(PropertyOn, true)
	return nil
}

// StartPolling polls every interval until Close. Each tick hands the
// fetches to a goroutine so a slow TV never delays the next tick.
func (d *Device) StartPolling(interval time.Duration) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-d.stop:
				return
			case <-ticker.C:
				d.wg.Add(1)
				go func() {
					defer d.wg.Done()
					d.Poll(context.Background())
				}()
			}
		}
	}()
}

// Poll re-fetches the foreground app and volume state once and emits a
// change for every differing property. Fetch failures are logged and
// otherwise ignored. Properties with a request already in flight are
// skipped this round.
func (d *Device) Poll(ctx context.Context) {
	if d.closed() || d.conn.State() != session.Connected {
		return
	}
	d.pollForeground(ctx)
	d.pollVolume(ctx)
}

func (d *Device) pollForeground(ctx context.Context) {
	lock := d.locks[PropertyActiveApp]
	if !lock.TryLock() {
		return
	}
	defer lock.Unlock()

	app, err := d.fetchForeground(ctx)
	if err != nil {
		d.pollFailed(&d.foregroundFailing, "foreground app", err)
		return
	}
	d.pollRecovered(&d.foregroundFailing, "foreground app")
	if d.closed() {
		return
	}
	d.apply(PropertyActiveApp, app)
}

func (d *Device) pollVolume(ctx context.Context) {
	volumeLock, muteLock := d.locks[PropertyVolume], d.locks[PropertyMute]
	if !volumeLock.TryLock() {
		return
	}
	defer volumeLock.Unlock()
	if !muteLock.TryLock() {
		return
	}
	defer muteLock.Unlock()

	volume, muted, err := d.fetchVolume(ctx)
	if err != nil {
		d.pollFailed(&d.volumeFailing, "volume", err)
		return
	}
	d.pollRecovered(&d.volumeFailing, "volume")
	if d.closed() {
		return
	}
	d.apply(PropertyVolume, volume)
	d.apply(PropertyMute, muted)
}

// ownedBy reports whether c is the session this device was created for.
func (d *Device) ownedBy(c Conn) bool {
	return d.conn == c
}

// pollFailed warns on the first failure of a run and logs repeats at debug.
func (d *Device) pollFailed(failing *atomic.Bool, what string, err error) {
	if failing.CompareAndSwap(false, true) {
		d.logger.Warn("poll failed", "device_id", d.ID(), "poll", what, "error", err)
		return
	}
	d.logger.Debug("poll still failing", "device_id", d.ID(), "poll", what, "error", err)
}

func (d *Device) pollRecovered(failing *atomic.Bool, what string) {
	if failing.CompareAndSwap(true, false) {
		d.logger.Info("poll recovered", "device_id", d.ID(), "poll", what)
	}
}

// SetValue writes one property.
//
// Parameters:
//   - ctx: Bounds the protocol request
//   - name: Property name
//   - value: New value; JSON numbers are accepted for volume
//
// Returns:
//   - error: ErrUnknownProperty, ErrReadOnly, ErrInvalidValue, or the
//     command failure. The cache is unchanged on error.
func (d *Device) SetValue(ctx context.Context, name string, value any) error {
	rec, err := d.props.get(name)
	if err != nil {
		return err
	}
	if rec.ReadOnly {
		return fmt.Errorf("%w: %s", ErrReadOnly, name)
	}
	v, err := normalizeValue(name, value)
	if err != nil {
		return err
	}

	lock := d.locks[name]
	lock.Lock()
	defer lock.Unlock()

	if cur, _ := d.props.get(name); cur.Value == v {
		return nil
	}

	switch name {
	case PropertyOn:
		if v.(bool) {
			err = d.wake()
		} else {
			err = d.request(ctx, uriTurnOff, nil)
		}
	case PropertyVolume:
		err = d.request(ctx, uriSetVolume, transport.Payload{"volume": v})
	case PropertyMute:
		err = d.request(ctx, uriSetMute, transport.Payload{"mute": v})
	}
	if err != nil {
		return err
	}

	d.apply(name, v)
	return nil
}

// Invoke runs one action to completion.
func (d *Device) Invoke(ctx context.Context, action Action) error {
	return action.run(ctx, d)
}

// ConnectionLost marks the TV off.
func (d *Device) ConnectionLost() {
	d.apply(PropertyOn, false)
}

// Snapshot returns every cached property value.
func (d *Device) Snapshot() map[string]any {
	return d.props.snapshot()
}

// Value returns one cached property value.
func (d *Device) Value(name string) (any, error) {
	rec, err := d.props.get(name)
	if err != nil {
		return nil, err
	}
	return rec.Value, nil
}

// Close stops polling. Requests already in flight finish but their
// results are discarded.
func (d *Device) Close() {
	d.stopOnce.Do(func() {
		close(d.stop)
	})
	d.wg.Wait()
}

func (d *Device) closed() bool {
	select {
	case <-d.stop:
		return true
	default:
		return false
	}
}

func (d *Device) apply(name string, value any) {
	if !d.props.update(name, value) {
		return
	}
	if d.onChange != nil {
		d.onChange(d, PropertyChange{Name: name, Value: value})
	}
}

func (d *Device) wake() error {
	if d.waker == nil {
		return fmt.Errorf("%w: wake-on-lan not configured", ErrNotConnected)
	}
	return d.waker.SendWake(d.id.MAC)
}

func (d *Device) client() (transport.Client, error) {
	c := d.conn.Client()
	if c == nil {
		return nil, ErrNotConnected
	}
	return c, nil
}

func (d *Device) fetch(ctx context.Context, uri string) (transport.Payload, error) {
	c, err := d.client()
	if err != nil {
		return nil, err
	}
	return c.Request(ctx, uri, nil)
}

func (d *Device) request(ctx context.Context, uri string, payload transport.Payload) error {
	c, err := d.client()
	if err != nil {
		return err
	}
	_, err = c.Request(ctx, uri, payload)
	return err
}

func (d *Device) pointer(ctx context.Context) (transport.PointerSocket, error) {
	c, err := d.client()
	if err != nil {
		return nil, err
	}
	return c.PointerSocket(ctx)
}

func (d *Device) appTable() *AppTable {
	return d.apps
}

func (d *Device) fetchForeground(ctx context.Context) (string, error) {
	resp, err := d.fetch(ctx, uriForegroundApp)
	if err != nil {
		return "", err
	}
	appID, ok := resp["appId"].(string)
	if !ok {
		return "", fmt.Errorf("%w: no appId", ErrUnexpectedResponse)
	}
	return d.apps.Title(appID), nil
}

// fetchVolume accepts both the flat and the volumeStatus response shapes.
func (d *Device) fetchVolume(ctx context.Context) (int, bool, error) {
	resp, err := d.fetch(ctx, uriGetVolume)
	if err != nil {
		return 0, false, err
	}

	if status, ok := resp["volumeStatus"].(map[string]any); ok {
		volume, vok := toInt(status["volume"])
		muted, mok := status["muteStatus"].(bool)
		if vok && mok {
			return volume, muted, nil
		}
	}

	volume, vok := toInt(resp["volume"])
	muted, mok := resp["muted"].(bool)
	if !vok || !mok {
		return 0, false, fmt.Errorf("%w: no volume or mute state", ErrUnexpectedResponse)
	}
	return volume, muted, nil
}
