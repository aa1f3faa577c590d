// Package deepgram streams microphone audio to the Deepgram listen API.
package deepgram

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/koscakluka/luna/core/speechtotext"
)

const (
	DefaultListenURL    = "wss://api.deepgram.com/v1/listen"
	DefaultModel        = "nova-3"
	DefaultLanguage     = "en-US"
	DefaultEndpointing  = 300 * time.Millisecond
	DefaultUtteranceEnd = time.Second
)

type TranscriptionClient struct {
	apiKey       string
	listenURL    string
	model        string
	language     string
	endpointing  time.Duration
	utteranceEnd time.Duration
	dialer       *websocket.Dialer

	connMu sync.Mutex
	conn   *websocket.Conn

	// lastMsgTs holds the unix nano time of the last real audio chunk.
	lastMsgTs atomic.Int64

	// Only touched from the read loop.
	accumulatedTranscript []string
	confidenceSum         float64
	unendedSegment        bool
}

var _ speechtotext.Transcriber = (*TranscriptionClient)(nil)

type Option func(*TranscriptionClient)

// WithListenURL points the client at another endpoint, mostly for tests.
func WithListenURL(listenURL string) Option {
	return func(c *TranscriptionClient) { c.listenURL = listenURL }
}

func WithModel(model string) Option {
	return func(c *TranscriptionClient) { c.model = model }
}

func WithLanguage(language string) Option {
	return func(c *TranscriptionClient) { c.language = language }
}

// WithEndpointing sets how much trailing silence finalises speech.
func WithEndpointing(d time.Duration) Option {
	return func(c *TranscriptionClient) { c.endpointing = d }
}

func WithDialer(dialer *websocket.Dialer) Option {
	return func(c *TranscriptionClient) { c.dialer = dialer }
}

func NewTranscriptionClient(apiKey string, opts ...Option) *TranscriptionClient {
	c := &TranscriptionClient{
		apiKey:       apiKey,
		listenURL:    DefaultListenURL,
		model:        DefaultModel,
		language:     DefaultLanguage,
		endpointing:  DefaultEndpointing,
		utteranceEnd: DefaultUtteranceEnd,
		dialer:       websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Streaming reports whether a listen stream is currently open.
func (c *TranscriptionClient) Streaming() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn != nil
}

// Close drops the stream without waiting for pending results.
func (c *TranscriptionClient) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
