package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

const defaultFramesPerBuffer = 1024

// Mic captures mono PCM16-LE from the default PortAudio input device.
type Mic struct {
	candidates      []int
	framesPerBuffer int

	mu          sync.Mutex
	sampleRate  int
	initialized bool
}

// NewMic tries sampleRates in order when access is requested.
func NewMic(sampleRates []int, framesPerBuffer int) *Mic {
	if framesPerBuffer <= 0 {
		framesPerBuffer = defaultFramesPerBuffer
	}
	if len(sampleRates) == 0 {
		sampleRates = []int{defaultSampleRate}
	}
	return &Mic{candidates: sampleRates, framesPerBuffer: framesPerBuffer}
}

// RequestAccess initializes PortAudio and probes the input device. Failing
// to open any stream is treated as a refusal.
func (m *Mic) RequestAccess(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		m.initialized = true
	}

	var lastErr error
	for _, rate := range m.candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		buf := make([]int16, m.framesPerBuffer)
		stream, err := portaudio.OpenDefaultStream(1, 0, float64(rate), m.framesPerBuffer, buf)
		if err != nil {
			lastErr = err
			continue
		}
		_ = stream.Close()
		m.sampleRate = rate
		return nil
	}
	return fmt.Errorf("%w: %v", ErrPermissionDenied, lastErr)
}

func (m *Mic) SampleRate() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sampleRate
}

func (m *Mic) Open(sink Sink) (Stream, error) {
	rate := m.SampleRate()
	if rate <= 0 {
		return nil, ErrDeviceUnavailable
	}

	buf := make([]int16, m.framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(rate), m.framesPerBuffer, buf)
	if err != nil {
		return nil, fmt.Errorf("open input stream at %d Hz: %w", rate, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("start input stream: %w", err)
	}

	s := &micStream{stream: stream, buf: buf, done: make(chan struct{})}
	go s.pump(sink)
	return s, nil
}

// Close terminates PortAudio.
func (m *Mic) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil
	}
	m.initialized = false
	return portaudio.Terminate()
}

type micStream struct {
	stream  *portaudio.Stream
	buf     []int16
	closing atomic.Bool
	done    chan struct{}
	once    sync.Once
	err     error
}

func (s *micStream) pump(sink Sink) {
	defer close(s.done)

	out := make([]byte, len(s.buf)*2)
	for {
		if err := s.stream.Read(); err != nil {
			if s.closing.Load() {
				return
			}
			if strings.Contains(strings.ToLower(err.Error()), "overflow") {
				continue
			}
			sink.Error(err)
			return
		}
		for i, v := range s.buf {
			binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
		}
		sink.Data(out)
	}
}

func (s *micStream) Close() error {
	s.once.Do(func() {
		s.closing.Store(true)
		if err := s.stream.Stop(); err != nil {
			s.err = err
		}
		<-s.done
		if err := s.stream.Close(); err != nil && s.err == nil {
			s.err = err
		}
	})
	return s.err
}

// Speaker plays PCM16-LE mono through the default PortAudio output device.
type Speaker struct {
	framesPerBuffer int
}

func NewSpeaker(framesPerBuffer int) *Speaker {
	if framesPerBuffer <= 0 {
		framesPerBuffer = defaultFramesPerBuffer
	}
	return &Speaker{framesPerBuffer: framesPerBuffer}
}

func (sp *Speaker) Play(pcm []byte, sampleRate int) (Playing, error) {
	out := make([]int16, sp.framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), sp.framesPerBuffer, out)
	if err != nil {
		return nil, fmt.Errorf("open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("start output stream: %w", err)
	}

	p := &speakerPlayback{stream: stream, done: make(chan struct{})}
	go p.run(pcm, out)
	return p, nil
}

type speakerPlayback struct {
	stream  *portaudio.Stream
	stopped atomic.Bool
	done    chan struct{}
	once    sync.Once
}

func (p *speakerPlayback) run(pcm []byte, out []int16) {
	defer close(p.done)
	defer func() {
		_ = p.stream.Stop()
		_ = p.stream.Close()
	}()

	for pos := 0; pos < len(pcm) && !p.stopped.Load(); {
		for i := range out {
			if pos+1 < len(pcm) {
				out[i] = int16(binary.LittleEndian.Uint16(pcm[pos:]))
				pos += 2
			} else {
				out[i] = 0
				pos = len(pcm)
			}
		}
		if err := p.stream.Write(); err != nil {
			return
		}
	}
}

func (p *speakerPlayback) Stop() error {
	p.once.Do(func() { p.stopped.Store(true) })
	<-p.done
	return nil
}
