// Package deepgram speaks text through the Deepgram streaming speak API and
// plays the generated audio on a local device.
package deepgram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/koscakluka/luna/core/audio"
	"github.com/koscakluka/luna/core/logging"
	"github.com/koscakluka/luna/core/texttospeech"
)

var logger = logging.NewLogger("github.com/koscakluka/luna/core/texttospeech/deepgram")

const DefaultSpeakURL = "wss://api.deepgram.com/v1/speak"

var (
	ErrMissingAPIKey = errors.New("deepgram api key not set")
	ErrNoPlayer      = errors.New("no playback device")
)

type TextToSpeechClient struct {
	apiKey   string
	speakURL string
	voice    Voice
	dialer   *websocket.Dialer
	player   audio.Player
}

var _ texttospeech.Engine = (*TextToSpeechClient)(nil)

type Option func(*TextToSpeechClient)

func WithSpeakURL(speakURL string) Option {
	return func(c *TextToSpeechClient) { c.speakURL = speakURL }
}

func WithDialer(dialer *websocket.Dialer) Option {
	return func(c *TextToSpeechClient) { c.dialer = dialer }
}

// WithPlayer sets where generated audio is played. Speak fails without one.
func WithPlayer(player audio.Player) Option {
	return func(c *TextToSpeechClient) { c.player = player }
}

func NewTextToSpeechClient(apiKey string, voice Voice, opts ...Option) (*TextToSpeechClient, error) {
	if voice == "" {
		voice = DefaultVoice
	}
	if !slices.Contains(availableVoices, voice) {
		return nil, fmt.Errorf("invalid voice %q", voice)
	}

	client := &TextToSpeechClient{
		apiKey:   apiKey,
		speakURL: DefaultSpeakURL,
		voice:    voice,
		dialer:   websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

func (c *TextToSpeechClient) Name() string { return "deepgram" }

func (c *TextToSpeechClient) Available(context.Context) error {
	if c.apiKey == "" {
		return ErrMissingAPIKey
	}
	if c.player == nil {
		return ErrNoPlayer
	}
	return nil
}

// Speak generates speech for text, plays it and waits for playback to end.
func (c *TextToSpeechClient) Speak(ctx context.Context, text string) error {
	if err := c.Available(ctx); err != nil {
		return err
	}

	ended := make(chan error, 1)
	finish := func(err error) {
		select {
		case ended <- err:
		default:
		}
	}

	generator, err := c.NewSpeechGenerator(ctx,
		texttospeech.WithEncodingInfo(c.player.EncodingInfo()),
		texttospeech.WithSpeechAudioCallback(func(chunk []byte) {
			if err := c.player.SendAudio(chunk); err != nil {
				logger.WarnContext(ctx, "failed to queue speech audio", "error", err)
			}
		}),
		texttospeech.WithSpeechEndedCallback(func() { finish(nil) }),
		texttospeech.WithErrorCallback(finish),
	)
	if err != nil {
		return err
	}

	if err := generator.SendText(text); err != nil {
		_ = generator.Close()
		return err
	}
	if err := generator.EndOfText(); err != nil {
		_ = generator.Close()
		return err
	}

	select {
	case err := <-ended:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		_ = generator.Cancel()
		c.player.ClearBuffer()
		return ctx.Err()
	}

	played := make(chan error, 1)
	go func() { played <- c.player.AwaitMark() }()
	select {
	case err := <-played:
		return err
	case <-ctx.Done():
		c.player.ClearBuffer()
		return ctx.Err()
	}
}

// NewSpeechGenerator opens a speak stream. Audio, marks and the end of
// speech are reported through the option callbacks.
func (c *TextToSpeechClient) NewSpeechGenerator(ctx context.Context, opts ...texttospeech.TextToSpeechOption) (texttospeech.SpeechGenerator, error) {
	options := texttospeech.NewTextToSpeechOptions(texttospeech.WithEncodingInfo(audio.EncodingInfo{
		SampleRate: 24000,
		Channels:   1,
		Format:     audio.EncodingLinear16,
	}))
	for _, opt := range opts {
		opt(&options)
	}

	conn, err := c.connectWebsocket(ctx, options.EncodingInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to open websocket: %w", err)
	}

	req := &streamingRequest{ws: conn, options: options}
	go req.processIncomingMessages(context.WithoutCancel(ctx))
	return req, nil
}

func (c *TextToSpeechClient) connectWebsocket(ctx context.Context, encoding audio.EncodingInfo) (*websocket.Conn, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	speakURL, err := url.Parse(c.speakURL)
	if err != nil {
		return nil, fmt.Errorf("invalid speak url: %w", err)
	}
	query := url.Values{}
	query.Set("encoding", encoding.Format.Name())
	query.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
	query.Set("model", string(c.voice))
	query.Set("container", "none")
	speakURL.RawQuery = query.Encode()

	conn, _, err := c.dialer.DialContext(ctx, speakURL.String(),
		http.Header{"Authorization": {"token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}
	return conn, nil
}
