package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/seestar-core/internal/telescope/protocol"
	"github.com/nerrad567/seestar-core/internal/telescope/transport"
)

// Defaults applied by New for zero-valued options.
const (
	DefaultGotoCycles      = 3
	DefaultAutoFocusCycles = 3
	DefaultFocuserMax      = 100000
	DefaultTemperature     = 12.5
)

// Device error codes returned in the method_sync "code" field.
const (
	CodeBusy          = 1
	CodeUnknownMethod = 103
	CodeBadParameter  = 207
)

// Options configures a simulated device.
type Options struct {
	// GotoCycles is how many position queries a goto takes to arrive.
	GotoCycles int

	// AutoFocusCycles is how many view queries an auto-focus run takes.
	AutoFocusCycles int

	FocuserMax   int
	FocuserStart int

	// RA (hours) and Dec (degrees) the mount starts at.
	RA  float64
	Dec float64

	Temperature float64

	// Now drives exposure timing. Nil means time.Now.
	Now func() time.Time
}

type slew struct {
	fromRA, fromDec float64
	toRA, toDec     float64
	remaining       int
	total           int
	fail            string
}

// Device is an in-process Seestar that answers the same requests, in the
// same envelope, as the real HTTP endpoint. It implements
// transport.Transport and advances its motion model as it is queried, so a
// poller driving it sees slews and focus moves progress cycle by cycle.
//
// Thread Safety: All methods are safe for concurrent use.
type Device struct {
	opts Options

	mu       sync.Mutex
	ra, dec  float64
	tracking bool
	target   string
	stage    string

	slew     *slew
	gotoStat *protocol.StageState

	exposureEnd  time.Time
	exposureStat *protocol.StageState

	focuser       int
	focusTarget   int
	focusMoving   bool
	autoFocusLeft int
	autoFocusStat *protocol.StageState

	lightPollution bool

	offline     bool
	unreachable int
	busy        int
	failGoto    string

	calls map[string]int
	txn   int
}

// New creates a simulated device at rest.
func New(opts Options) *Device {
	if opts.GotoCycles <= 0 {
		opts.GotoCycles = DefaultGotoCycles
	}
	if opts.AutoFocusCycles <= 0 {
		opts.AutoFocusCycles = DefaultAutoFocusCycles
	}
	if opts.FocuserMax <= 0 {
		opts.FocuserMax = DefaultFocuserMax
	}
	if opts.Temperature == 0 {
		opts.Temperature = DefaultTemperature
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Device{
		opts:        opts,
		ra:          protocol.NormalizeHours(opts.RA),
		dec:         opts.Dec,
		tracking:    true,
		stage:       protocol.StageIdle,
		focuser:     opts.FocuserStart,
		focusTarget: opts.FocuserStart,
		calls:       make(map[string]int),
	}
}

// Send implements transport.Transport.
func (d *Device) Send(ctx context.Context, req transport.Request, _ time.Duration) (*transport.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", transport.ErrUnreachable, req.Endpoint(), err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls[req.Endpoint()]++
	d.txn++

	switch {
	case d.offline:
		return nil, fmt.Errorf("%w: %s: simulated device offline", transport.ErrUnreachable, req.Endpoint())
	case d.unreachable > 0:
		d.unreachable--
		return nil, fmt.Errorf("%w: %s: simulated connection refused", transport.ErrUnreachable, req.Endpoint())
	case d.busy > 0:
		d.busy--
		return d.failure(req, CodeBusy, "device busy, try again")
	}

	result, code, msg := d.dispatch(req)
	if code != 0 {
		return d.failure(req, code, msg)
	}
	return d.success(req, result)
}

func (d *Device) dispatch(req transport.Request) (any, int, string) {
	if req.Method == "" {
		if req.Action == protocol.ActionGotoTarget {
			return d.startGoto(req.Params)
		}
		return nil, CodeUnknownMethod, "unknown action " + req.Action
	}

	switch req.Method {
	case protocol.MethodGetEquCoord:
		d.advanceSlew()
		return protocol.EquCoord{RA: protocol.Angle(d.ra), Dec: protocol.Angle(d.dec)}, 0, ""
	case protocol.MethodGetViewState:
		d.advanceView()
		return protocol.ViewState{View: d.view()}, 0, ""
	case protocol.MethodGetDeviceState:
		state := d.deviceState()
		d.advanceFocuser()
		return state, 0, ""
	case protocol.MethodScopeSync:
		return d.sync(req.Params)
	case protocol.MethodStopView:
		return d.stopView(req.Params)
	case protocol.MethodStartExposure:
		return d.startExposure(req.Params)
	case protocol.MethodStopExposure:
		if d.exposureStat != nil && d.exposureStat.Active() {
			d.exposureStat = &protocol.StageState{State: protocol.StateCancel}
			d.stage = protocol.StageIdle
		}
		return 0, 0, ""
	case protocol.MethodStartAutoFocus:
		if d.slew != nil {
			return nil, CodeBusy, "auto focus not ready while slewing"
		}
		d.stage = protocol.StageAutoFocus
		d.autoFocusLeft = d.opts.AutoFocusCycles
		d.autoFocusStat = &protocol.StageState{State: protocol.StateWorking}
		return 0, 0, ""
	case protocol.MethodSetSetting:
		return d.setSetting(req.Params)
	case protocol.MethodSetFocuser:
		return d.setFocuser(req.Params)
	default:
		return nil, CodeUnknownMethod, "method not found: " + req.Method
	}
}

func (d *Device) success(req transport.Request, result any) (*transport.Response, error) {
	value := map[string]any{"jsonrpc": "2.0", "id": d.txn, "result": result, "code": 0}
	if req.Method != "" {
		value["method"] = req.Method
	}
	return d.respond(value)
}

func (d *Device) failure(req transport.Request, code int, msg string) (*transport.Response, error) {
	value := map[string]any{"jsonrpc": "2.0", "id": d.txn, "code": code, "error": msg}
	if req.Method != "" {
		value["method"] = req.Method
	}
	return d.respond(value)
}

func (d *Device) respond(value map[string]any) (*transport.Response, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", transport.ErrMalformedResponse, err)
	}
	return &transport.Response{StatusCode: 200, Value: raw}, nil
}

// decodeParams re-encodes params into out, so the device sees exactly what
// would have crossed the wire.
func decodeParams(params any, out any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
