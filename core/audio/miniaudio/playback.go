package miniaudio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/koscakluka/luna/core/audio"
)

var (
	errDeviceNotInitialized = errors.New("device not initialized")
	errDeviceNotStarted     = errors.New("device not started")
)

type playbackClient struct {
	device *malgo.Device
	queue  playbackQueue

	mu sync.Mutex
}

func (c *playbackClient) Init(audioContext *malgo.AllocatedContext, encoding audio.EncodingInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	format, err := sampleFormat(encoding)
	if err != nil {
		return err
	}
	sampleRate := uint32(encoding.SampleRate)

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = sampleRate
	config.Playback.Format = format
	config.Playback.Channels = uint32(max(encoding.Channels, 1))
	config.Alsa.NoMMap = 1
	config.PeriodSizeInFrames = sampleRate / 10 // ~100ms of audio
	config.Periods = 4

	c.device, err = malgo.InitDevice(audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			need := int(frameCount) * encoding.FrameSize()
			c.queue.fill(pOutput[:min(need, len(pOutput))])
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}
	return nil
}

func (c *playbackClient) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return errDeviceNotInitialized
	} else if c.device.IsStarted() {
		return nil
	}

	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	return nil
}

func (c *playbackClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return errDeviceNotInitialized
	}

	if c.device.IsStarted() {
		if err := c.device.Stop(); err != nil {
			return fmt.Errorf("failed to stop playback device: %w", err)
		}
	}
	c.queue.clear()
	return nil
}

func (c *playbackClient) SendAudio(audio []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return errDeviceNotInitialized
	} else if !c.device.IsStarted() {
		return errDeviceNotStarted
	}

	c.queue.push(audio)
	return nil
}

func (c *playbackClient) ClearBuffer() {
	c.queue.clear()
}

func (c *playbackClient) AwaitMark() error {
	c.mu.Lock()
	started := c.device != nil && c.device.IsStarted()
	c.mu.Unlock()
	if !started {
		return errDeviceNotStarted
	}

	done := make(chan struct{})
	c.queue.mark("", func(string) { close(done) })
	<-done
	return nil
}

func (c *playbackClient) Uninit() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	c.queue.clear()
}

func sampleFormat(encoding audio.EncodingInfo) (malgo.FormatType, error) {
	if encoding.Format != audio.EncodingLinear16 {
		return malgo.FormatUnknown, fmt.Errorf("unsupported device format %q", encoding.Format)
	}
	return malgo.FormatS16, nil
}
