package audio

import (
	"context"
	"errors"
)

var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceUnavailable = errors.New("microphone unavailable")
	ErrCaptureFailed     = errors.New("cannot record")
	ErrAlreadyRecording  = errors.New("another recording is in progress")
)

type DeviceState int

const (
	DeviceIdle DeviceState = iota
	DeviceRequesting
	DeviceReady
	DeviceDenied
)

func (s DeviceState) String() string {
	switch s {
	case DeviceIdle:
		return "idle"
	case DeviceRequesting:
		return "requesting_device"
	case DeviceReady:
		return "ready"
	case DeviceDenied:
		return "denied"
	default:
		return "unknown"
	}
}

type State int

const (
	StateRecording State = iota
	StateStopping
	StateCaptured
	StateError
)

func (s State) String() string {
	switch s {
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	case StateCaptured:
		return "captured"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Sink receives device callbacks. Implementations of Device may call it from
// any goroutine.
type Sink interface {
	Data(pcm []byte)
	Error(err error)
}

// Device is the capture hardware. RequestAccess blocks until the user grants
// or refuses access.
type Device interface {
	RequestAccess(ctx context.Context) error
	Open(sink Sink) (Stream, error)
	SampleRate() int
}

// Stream is an open capture stream. Close releases the hardware.
type Stream interface {
	Close() error
}

// Output plays back PCM16-LE mono audio.
type Output interface {
	Play(pcm []byte, sampleRate int) (Playing, error)
}

type Playing interface {
	Stop() error
}

// Handlers are notified of capture progress on the scheduler thread.
type Handlers struct {
	OnTick     func(questionID, seconds int)
	OnCaptured func(a *Artifact)
	OnError    func(questionID int, err error)
	OnDevice   func(state DeviceState, err error)
}
