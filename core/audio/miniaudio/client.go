// Package miniaudio implements audio capture and playback on top of malgo.
package miniaudio

import (
	"context"
	"fmt"

	"github.com/gen2brain/malgo"

	"github.com/koscakluka/luna/core/audio"
)

type Client struct {
	// audioContext is only kept to uninitialize it, it is an ownership
	// thing.
	audioContext *malgo.AllocatedContext
	encoding     audio.EncodingInfo

	capture     bool
	playback    bool
	deviceIndex *int

	playbackClient
	captureClient
}

var (
	_ audio.Capturer = (*Client)(nil)
	_ audio.Player   = (*Client)(nil)
)

type Option func(*Client)

// WithCapture toggles the capture device. It is enabled by default.
func WithCapture(enabled bool) Option {
	return func(c *Client) { c.capture = enabled }
}

// WithPlayback toggles the playback device. It is enabled by default.
func WithPlayback(enabled bool) Option {
	return func(c *Client) { c.playback = enabled }
}

// WithInputDevice selects a capture device by its enumeration index.
func WithInputDevice(index *int) Option {
	return func(c *Client) { c.deviceIndex = index }
}

func NewClient(encoding audio.EncodingInfo, opts ...Option) (*Client, error) {
	if encoding.IsZero() {
		encoding = audio.DefaultEncodingInfo()
	}
	if err := encoding.Validate(); err != nil {
		return nil, fmt.Errorf("invalid encoding: %w", err)
	}

	client := &Client{encoding: encoding, capture: true, playback: true}
	for _, opt := range opts {
		opt(client)
	}

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("malgo init context failed: %w", err)
	}
	client.audioContext = audioCtx

	if client.playback {
		if err := client.playbackClient.Init(audioCtx, encoding); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to initialize playback client: %w", err)
		}
		if err := client.playbackClient.Start(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to start playback device: %w", err)
		}
	}

	if client.capture {
		if err := client.captureClient.Init(audioCtx, encoding, client.deviceIndex); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to initialize capture client: %w", err)
		}
	}

	logger.Info("audio device ready",
		"sample_rate", encoding.SampleRate,
		"capture", client.capture,
		"playback", client.playback)
	return client, nil
}

func (c *Client) StartCapture(_ context.Context, onAudio func(audio []byte)) error {
	return c.captureClient.Start(onAudio)
}

func (c *Client) StopCapture() error {
	return c.captureClient.Stop()
}

func (c *Client) StartPlayback(_ context.Context) error {
	return c.playbackClient.Start()
}

func (c *Client) StopPlayback() error {
	return c.playbackClient.Stop()
}

func (c *Client) Close() {
	c.captureClient.Uninit()
	c.playbackClient.Uninit()
	if c.audioContext != nil {
		_ = c.audioContext.Uninit()
		c.audioContext.Free()
		c.audioContext = nil
	}
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return c.encoding
}
