// Package portaudio implements audio capture and playback on top of
// PortAudio's blocking stream API.
package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/koscakluka/luna/core/audio"
	"github.com/koscakluka/luna/core/logging"
)

var logger = logging.NewLogger("github.com/koscakluka/luna/core/audio/portaudio")

const DefaultBufferSize = 1024

type Client struct {
	bufferSize int
	encoding   audio.EncodingInfo
	stream     *portaudio.Stream

	in  []int16
	out []int16

	captureMu     sync.Mutex
	captureCancel context.CancelFunc
	captureDone   chan struct{}

	writeMu       sync.Mutex
	leftoverAudio []byte
}

var (
	_ audio.Capturer = (*Client)(nil)
	_ audio.Player   = (*Client)(nil)
)

// NewClient opens a mono linear16 duplex stream. deviceIndex selects the
// input device by its enumeration index, nil uses the default one.
func NewClient(sampleRate, bufferSize int, deviceIndex *int) (*Client, error) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	in := make([]int16, bufferSize)
	out := make([]int16, bufferSize)
	stream, err := openStream(sampleRate, bufferSize, deviceIndex, in, out)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, err
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to start portaudio stream: %w", err)
	}

	return &Client{
		bufferSize: bufferSize,
		encoding:   audio.EncodingInfo{SampleRate: sampleRate, Channels: 1, Format: audio.EncodingLinear16},
		stream:     stream,
		in:         in,
		out:        out,
	}, nil
}

func openStream(sampleRate, bufferSize int, deviceIndex *int, in, out []int16) (*portaudio.Stream, error) {
	if deviceIndex == nil {
		stream, err := portaudio.OpenDefaultStream(1, 1, float64(sampleRate), bufferSize, in, out)
		if err != nil {
			return nil, fmt.Errorf("failed to open portaudio stream: %w", err)
		}
		return stream, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list portaudio devices: %w", err)
	}
	if *deviceIndex < 0 || *deviceIndex >= len(devices) {
		return nil, fmt.Errorf("input device %d not found (%d available)", *deviceIndex, len(devices))
	}
	output, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return nil, fmt.Errorf("no default output device: %w", err)
	}

	params := portaudio.LowLatencyParameters(devices[*deviceIndex], output)
	params.Input.Channels = 1
	params.Output.Channels = 1
	params.SampleRate = float64(sampleRate)
	params.FramesPerBuffer = bufferSize
	logger.Info("using input device", "index", *deviceIndex, "name", devices[*deviceIndex].Name)

	stream, err := portaudio.OpenStream(params, in, out)
	if err != nil {
		return nil, fmt.Errorf("failed to open portaudio stream: %w", err)
	}
	return stream, nil
}

// StartCapture reads the input stream on its own goroutine until ctx is
// cancelled or StopCapture is called.
func (c *Client) StartCapture(ctx context.Context, onAudio func(audio []byte)) error {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()
	if c.captureCancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.captureCancel = cancel
	c.captureDone = done

	go func() {
		defer close(done)
		audioBuffer := bytes.Buffer{}
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			if err := c.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
				logger.WarnContext(ctx, "failed to read from portaudio stream", "error", err)
				continue
			}

			audioBuffer.Reset()
			_ = binary.Write(&audioBuffer, binary.LittleEndian, c.in)
			onAudio(audioBuffer.Bytes())
		}
	}()
	return nil
}

func (c *Client) StopCapture() error {
	c.captureMu.Lock()
	cancel, done := c.captureCancel, c.captureDone
	c.captureCancel, c.captureDone = nil, nil
	c.captureMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}

func (c *Client) Close() {
	_ = c.StopCapture()
	_ = c.stream.Close()
	_ = portaudio.Terminate()
}

// SendAudio writes whole buffers synchronously and keeps the remainder for
// the next call.
func (c *Client) SendAudio(audio []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.leftoverAudio = append(c.leftoverAudio, audio...)
	return c.flush(false)
}

func (c *Client) ClearBuffer() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.leftoverAudio = nil
}

// AwaitMark plays the remaining partial buffer padded with silence.
func (c *Client) AwaitMark() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.flush(true)
}

func (c *Client) flush(pad bool) error {
	bufferSize := c.bufferSize * 2
	for len(c.leftoverAudio) >= bufferSize || (pad && len(c.leftoverAudio) > 0) {
		chunk := c.leftoverAudio[:min(bufferSize, len(c.leftoverAudio))]
		clear(c.out)
		if err := binary.Read(bytes.NewReader(chunk), binary.LittleEndian, c.out[:len(chunk)/2]); err != nil {
			return fmt.Errorf("failed to decode audio: %w", err)
		}
		c.leftoverAudio = c.leftoverAudio[len(chunk):]
		if err := c.stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			return fmt.Errorf("failed to write to portaudio stream: %w", err)
		}
	}
	if len(c.leftoverAudio) == 0 {
		c.leftoverAudio = nil
	}
	return nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return c.encoding
}
