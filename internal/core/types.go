// Package core defines the stage and event types shared by both endpoints,
// with zero external dependencies.
package core

import (
	"fmt"
	"time"
)

// Stage is a named pipeline boundary where an instrumentation event fires.
type Stage string

const (
	StagePreEncode    Stage = "pre-encode"    // sender: raw frame enters the encoder
	StagePostEncode   Stage = "post-encode"   // sender: encoded frame leaves the encoder
	StageDecodeSink   Stage = "decode-sink"   // receiver: encoded frame enters the decoder
	StageDecodeSource Stage = "decode-source" // receiver: decoded frame leaves the decoder
	StageRender       Stage = "render"        // receiver: decoded frame reaches the video sink
)

// ParseStage converts a stage name into a Stage.
func ParseStage(name string) (Stage, error) {
	switch s := Stage(name); s {
	case StagePreEncode, StagePostEncode, StageDecodeSink, StageDecodeSource, StageRender:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStage, name)
	}
}

// Endpoint identifies which side of the session a component runs on.
type Endpoint string

const (
	EndpointSender   Endpoint = "sender"
	EndpointReceiver Endpoint = "receiver"
)

// StageEvent is fired by the media pipeline each time a buffer crosses an
// instrumented boundary. Timestamp must carry a monotonic clock reading
// (time.Now), so differences are immune to wall clock steps.
type StageEvent struct {
	Stage     Stage
	Size      int
	Timestamp time.Time
}

// StageHandler is the inbound port the core exposes to the pipeline.
// Implementations must be reentrant and must never block the caller.
type StageHandler interface {
	OnStageEvent(ev StageEvent)
}

// StageHandlerFunc adapts a function to StageHandler.
type StageHandlerFunc func(ev StageEvent)

// OnStageEvent calls f(ev).
func (f StageHandlerFunc) OnStageEvent(ev StageEvent) { f(ev) }
