package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/koscakluka/luna/core/audio"
	"github.com/koscakluka/luna/core/speechtotext"
	"github.com/koscakluka/luna/internal/utils"
)

var (
	ErrMissingAPIKey = errors.New("deepgram api key not set")
	ErrNotStreaming  = errors.New("no open transcription stream")
)

func (c *TranscriptionClient) Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error {
	ctx, span := tracer.Start(ctx, "open transcription stream")
	defer span.End()

	options := speechtotext.NewTranscriptionOptions(opts...)
	encoding, err := convertEncoding(options.EncodingInfo)
	if err != nil {
		err = fmt.Errorf("invalid encoding: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetAttributes(
		attribute.String("encoding", encoding.Format),
		attribute.Int("sample_rate", encoding.SampleRate),
	)

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		return fmt.Errorf("transcription stream already open")
	}

	conn, err := c.connectWebsocket(ctx, connectionOptions{
		encoding: encoding,

		detectSpeechStart: options.SpeechStartedCallback != nil,
		enhanceSpeechEndingDetection: options.TranscriptionCallback != nil ||
			options.SpeechEndedCallback != nil,
		interimResults: options.InterimTranscriptionCallback != nil,
	})
	if err != nil {
		err = fmt.Errorf("failed to open websocket: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	c.conn = conn
	c.lastMsgTs.Store(time.Now().UnixNano())
	c.accumulatedTranscript = nil
	c.confidenceSum = 0
	c.unendedSegment = false

	go c.readAndProcessMessages(context.WithoutCancel(ctx), ctx.Done(), conn, options)

	logger.InfoContext(ctx, "transcription stream opened", "model", c.model, "sample_rate", encoding.SampleRate)
	return nil
}

type connectionOptions struct {
	encoding encodingInfo

	detectSpeechStart            bool
	enhanceSpeechEndingDetection bool
	interimResults               bool
}

func (c *TranscriptionClient) listenQuery(options connectionOptions) url.Values {
	query := url.Values{}
	query.Set("encoding", options.encoding.Format)
	query.Set("sample_rate", strconv.Itoa(options.encoding.SampleRate))
	query.Set("channels", strconv.Itoa(options.encoding.Channels))
	query.Set("model", c.model)
	query.Set("language", c.language)
	query.Set("smart_format", "true")
	if options.enhanceSpeechEndingDetection {
		query.Set("utterance_end_ms", strconv.FormatInt(c.utteranceEnd.Milliseconds(), 10))
		query.Set("interim_results", "true")
	} else if options.interimResults {
		query.Set("interim_results", "true")
	}
	query.Set("endpointing", strconv.FormatInt(c.endpointing.Milliseconds(), 10))
	if options.detectSpeechStart || options.enhanceSpeechEndingDetection {
		query.Set("vad_events", "true")
	}
	return query
}

func (c *TranscriptionClient) connectWebsocket(ctx context.Context, options connectionOptions) (*websocket.Conn, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	listenURL, err := url.Parse(c.listenURL)
	if err != nil {
		return nil, fmt.Errorf("invalid listen url: %w", err)
	}
	listenURL.RawQuery = c.listenQuery(options).Encode()

	conn, _, err := c.dialer.DialContext(ctx, listenURL.String(),
		http.Header{"Authorization": {"Token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

type controlMessage struct {
	Type string `json:"type"`
}

func (c *TranscriptionClient) sendKeepAlive() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return
	}

	if err := c.conn.WriteJSON(controlMessage{Type: "KeepAlive"}); err != nil {
		logger.Warn("failed to send keep alive to deepgram", "error", err)
	}
}

func (c *TranscriptionClient) SendAudio(audio []byte) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return ErrNotStreaming
	}

	c.lastMsgTs.Store(time.Now().UnixNano())
	if err := c.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

func (c *TranscriptionClient) sendSilence(audio []byte) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return ErrNotStreaming
	}

	if err := c.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

// StopStream asks the server to flush pending results and close the
// stream. Remaining callbacks still fire before the read loop exits.
func (c *TranscriptionClient) StopStream() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		if err := c.conn.WriteJSON(controlMessage{Type: string(api.TypeCloseStreamResponse)}); err != nil {
			return fmt.Errorf("failed to close deepgram stream: %w", err)
		}
	}
	return nil
}

func (c *TranscriptionClient) sinceLastAudio() time.Duration {
	return time.Since(time.Unix(0, c.lastMsgTs.Load()))
}

func (c *TranscriptionClient) readAndProcessMessages(ctx context.Context, cancelled <-chan struct{}, conn *websocket.Conn, options speechtotext.TranscriptionOptions) {
	silenceCtx, silenceCancel := context.WithCancel(ctx)
	defer silenceCancel()
	go c.generateSilence(silenceCtx, options.EncodingInfo)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-cancelled:
			_ = conn.Close()
		case <-done:
		}
	}()

	defer func() {
		c.connMu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.connMu.Unlock()
		_ = conn.Close()
	}()

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-cancelled:
				return
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.DebugContext(ctx, "transcription stream closed")
				return
			}
			logger.WarnContext(ctx, "failed to read deepgram websocket message", "error", err)
			if options.ErrorCallback != nil {
				options.ErrorCallback(fmt.Errorf("transcription stream failed: %w", err))
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			c.processMessage(ctx, msg, options)
		}
	}
}

func (c *TranscriptionClient) processMessage(ctx context.Context, msg []byte, options speechtotext.TranscriptionOptions) {
	var parsedMsg controlMessage
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.WarnContext(ctx, "failed to unmarshal deepgram message", "error", err)
		return
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.WarnContext(ctx, "failed to unmarshal deepgram results", "error", err)
			return
		}
		var transcript string
		var confidence float64
		if len(msgResp.Channel.Alternatives) > 0 {
			transcript = strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
			confidence = msgResp.Channel.Alternatives[0].Confidence
		}

		if msgResp.IsFinal {
			if transcript != "" {
				c.accumulatedTranscript = append(c.accumulatedTranscript, transcript)
				c.confidenceSum += confidence
				if options.PartialTranscriptionCallback != nil {
					options.PartialTranscriptionCallback(transcript)
				}
			}
			if msgResp.SpeechFinal {
				c.onSpeechEnded(options)
			}
		} else if transcript != "" && options.InterimTranscriptionCallback != nil {
			interim := append(slices.Clone(c.accumulatedTranscript), transcript)
			options.InterimTranscriptionCallback(strings.Join(interim, " "))
		}

	case api.TypeUtteranceEndResponse:
		if c.unendedSegment || len(c.accumulatedTranscript) > 0 {
			c.onSpeechEnded(options)
		}

	case api.TypeSpeechStartedResponse:
		c.unendedSegment = true
		if options.SpeechStartedCallback != nil {
			options.SpeechStartedCallback()
		}

	default:
		logger.DebugContext(ctx, "ignoring deepgram message", "type", parsedMsg.Type)
	}
}

func (c *TranscriptionClient) onSpeechEnded(options speechtotext.TranscriptionOptions) {
	c.unendedSegment = false
	segments := len(c.accumulatedTranscript)
	fullTranscript := strings.Join(c.accumulatedTranscript, " ")
	confidence := 0.0
	if segments > 0 {
		confidence = c.confidenceSum / float64(segments)
	}
	c.accumulatedTranscript = nil
	c.confidenceSum = 0

	if options.TranscriptionCallback != nil && fullTranscript != "" {
		options.TranscriptionCallback(fullTranscript, confidence)
	}
	if options.SpeechEndedCallback != nil {
		options.SpeechEndedCallback()
	}
}

const (
	silenceChunk      = 50 * time.Millisecond
	silenceFillFor    = time.Second
	keepAliveInterval = 5 * time.Second
)

// generateSilence pads gaps in the audio so endpointing still fires, then
// falls back to keep alive messages once the gap grows long.
func (c *TranscriptionClient) generateSilence(ctx context.Context, encoding audio.EncodingInfo) {
	type silenceGeneratorState string
	const (
		silenceGeneratorStateWaiting   silenceGeneratorState = "waiting"
		silenceGeneratorStateSilence   silenceGeneratorState = "silence"
		silenceGeneratorStateKeepAlive silenceGeneratorState = "keepAlive"
	)

	ticker := time.NewTicker(silenceChunk)
	defer ticker.Stop()
	chunk := encoding.Silence(silenceChunk)

	state := silenceGeneratorStateWaiting
	var firstSilenceTime *time.Time
	var lastKeepAliveTime *time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			idle := c.sinceLastAudio()
			switch state {
			case silenceGeneratorStateWaiting:
				if idle > silenceChunk {
					state = silenceGeneratorStateSilence
					firstSilenceTime = utils.Ptr(time.Now())
				}

			case silenceGeneratorStateSilence:
				if idle < silenceChunk {
					state = silenceGeneratorStateWaiting
					firstSilenceTime = nil
					continue
				}
				if time.Since(*firstSilenceTime) >= silenceFillFor {
					state = silenceGeneratorStateKeepAlive
					lastKeepAliveTime = utils.Ptr(time.Now())
					firstSilenceTime = nil
					continue
				}

				if err := c.sendSilence(chunk); err != nil && !errors.Is(err, ErrNotStreaming) {
					logger.DebugContext(ctx, "sending silence failed", "error", err)
				}

			case silenceGeneratorStateKeepAlive:
				if idle < silenceChunk {
					state = silenceGeneratorStateWaiting
					continue
				}
				if time.Since(*lastKeepAliveTime) >= keepAliveInterval {
					lastKeepAliveTime = utils.Ptr(time.Now())
					c.sendKeepAlive()
				}
			}
		}
	}
}
