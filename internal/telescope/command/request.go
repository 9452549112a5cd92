package command

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/nerrad567/seestar-core/internal/telescope/protocol"
)

// Request is the wire form of an intent, shared by the HTTP API, the MQTT
// relay and the CLI.
//
// RA and Dec accept decimal numbers or sexagesimal strings ("05:35:17.3").
// Duration and Timeout are in seconds.
type Request struct {
	Kind     Kind            `json:"kind"`
	RA       *protocol.Angle `json:"ra,omitempty"`
	Dec      *protocol.Angle `json:"dec,omitempty"`
	Epsilon  float64         `json:"epsilon,omitempty"`
	Duration float64         `json:"duration,omitempty"`
	Gain     int             `json:"gain,omitempty"`
	Position *int            `json:"position,omitempty"`
	Steps    int             `json:"steps,omitempty"`
	Timeout  float64         `json:"timeout,omitempty"`
	Target   string          `json:"target,omitempty"`
}

// ParseRequest decodes a JSON request body.
func ParseRequest(data []byte) (Request, error) {
	var r Request
	if err := json.Unmarshal(data, &r); err != nil {
		return Request{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return r, nil
}

// Intent builds the intent the request describes. Parameter ranges are
// checked by the coordinator, not here; this only checks that the fields
// the kind needs are present.
func (r Request) Intent(opts ...Option) (Intent, error) {
	if !r.Kind.Valid() {
		return Intent{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, r.Kind)
	}
	if r.Epsilon < 0 || r.Timeout < 0 || math.IsNaN(r.Timeout) {
		return Intent{}, fmt.Errorf("%w: epsilon and timeout must not be negative", ErrInvalidRequest)
	}

	var in Intent
	switch r.Kind {
	case KindGoto, KindSync:
		if r.RA == nil || r.Dec == nil {
			return Intent{}, fmt.Errorf("%w: %s needs ra and dec", ErrInvalidRequest, r.Kind)
		}
		in = Intent{Kind: r.Kind, RA: float64(*r.RA), Dec: float64(*r.Dec), Target: r.Target}
	case KindExpose:
		if r.Duration <= 0 || math.IsNaN(r.Duration) {
			return Intent{}, fmt.Errorf("%w: expose needs a positive duration", ErrInvalidRequest)
		}
		in = Expose(seconds(r.Duration), r.Gain)
	case KindSetFilter, KindSetFocus:
		if r.Position == nil {
			return Intent{}, fmt.Errorf("%w: %s needs position", ErrInvalidRequest, r.Kind)
		}
		in = Intent{Kind: r.Kind, Position: *r.Position}
	case KindMoveFocus:
		if r.Steps == 0 {
			return Intent{}, fmt.Errorf("%w: move_focus needs non-zero steps", ErrInvalidRequest)
		}
		in = MoveFocus(r.Steps)
	default:
		in = Intent{Kind: r.Kind}
	}

	in.Epsilon = r.Epsilon
	in.Timeout = seconds(r.Timeout)
	return build(in, opts), nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
