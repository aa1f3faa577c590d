package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/koscakluka/luna/core/texttospeech"
)

var (
	errRequestClosed    = errors.New("streaming request closed")
	errRequestCancelled = errors.New("streaming request cancelled")
	errTextCompleted    = errors.New("streaming request text already completed")
)

type streamingRequest struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	options texttospeech.TextToSpeechOptions

	mu sync.Mutex
	// textBuffer holds one entry per mark. The head is the text currently
	// being generated; later entries wait for the head to be flushed.
	textBuffer   []string
	textComplete bool
	cancelled    bool
	closed       bool
	ended        bool
}

type websocketMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

var (
	flushMsg = websocketMessage{Type: "Flush"}
	clearMsg = websocketMessage{Type: "Clear"}
	closeMsg = websocketMessage{Type: "Close"}
)

func speakMsg(text string) websocketMessage {
	return websocketMessage{Type: "Speak", Text: text}
}

func (r *streamingRequest) processIncomingMessages(ctx context.Context) {
	for {
		msgType, msg, err := r.ws.ReadMessage()
		if err != nil {
			r.mu.Lock()
			expected := r.closed || r.ended
			r.closed = true
			r.mu.Unlock()

			if !expected && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.WarnContext(ctx, "speak websocket read failed", "error", err)
				r.options.ErrorCallback(fmt.Errorf("speak stream failed: %w", err))
			}
			_ = r.ws.Close()
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if len(msg) > 0 {
				r.options.SpeechAudioCallback(msg)
			}
		case websocket.TextMessage:
			var parsedMsg websocketMessage
			if err := json.Unmarshal(msg, &parsedMsg); err != nil {
				logger.DebugContext(ctx, "failed to unmarshal deepgram message", "error", err)
				continue
			}

			switch parsedMsg.Type {
			case "Flushed":
				r.onFlushed(ctx)
			case "Warning":
				logger.WarnContext(ctx, "deepgram speak warning", "message", string(msg))
			default:
				logger.DebugContext(ctx, "ignoring deepgram message", "type", parsedMsg.Type)
			}
		}
	}
}

func (r *streamingRequest) onFlushed(ctx context.Context) {
	r.mu.Lock()
	var marked *string
	if len(r.textBuffer) > 0 {
		marked = &r.textBuffer[0]
		r.textBuffer = r.textBuffer[1:]
	}

	finished := r.textComplete && r.drainedLocked()
	if finished {
		r.ended = true
	} else if len(r.textBuffer) > 0 {
		if r.textBuffer[0] != "" {
			if err := r.sendWebsocketMessage(speakMsg(r.textBuffer[0])); err != nil {
				logger.WarnContext(ctx, "failed to send deepgram text", "error", err)
			}
		}
		// Anything past the head is sealed, so the head is too.
		if len(r.textBuffer) > 1 {
			if err := r.sendWebsocketMessage(flushMsg); err != nil {
				logger.WarnContext(ctx, "failed to flush deepgram buffer", "error", err)
			}
		}
	}
	r.mu.Unlock()

	if marked != nil {
		r.options.SpeechMarkCallback(*marked)
	}
	if finished {
		r.options.SpeechEndedCallback()
		_ = r.Close()
	}
}

// drainedLocked reports whether no text is waiting to be generated.
func (r *streamingRequest) drainedLocked() bool {
	return len(r.textBuffer) == 0 || (len(r.textBuffer) == 1 && r.textBuffer[0] == "")
}

func (r *streamingRequest) usableLocked() error {
	switch {
	case r.closed:
		return errRequestClosed
	case r.cancelled:
		return errRequestCancelled
	case r.textComplete:
		return errTextCompleted
	}
	return nil
}

func (r *streamingRequest) SendText(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.usableLocked(); err != nil {
		return err
	}

	if len(r.textBuffer) == 0 {
		r.textBuffer = append(r.textBuffer, "")
	}
	if len(r.textBuffer) == 1 {
		if err := r.sendWebsocketMessage(speakMsg(text)); err != nil {
			return fmt.Errorf("failed to send text: %w", err)
		}
	}
	r.textBuffer[len(r.textBuffer)-1] += text
	return nil
}

func (r *streamingRequest) Mark() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.usableLocked(); err != nil {
		return err
	}
	return r.markLocked()
}

func (r *streamingRequest) markLocked() error {
	if len(r.textBuffer) == 0 {
		r.textBuffer = append(r.textBuffer, "")
	}
	if len(r.textBuffer) == 1 {
		if err := r.sendWebsocketMessage(flushMsg); err != nil {
			return fmt.Errorf("failed to flush: %w", err)
		}
	}

	// Text sent right after a flush is sometimes dropped by the server, so
	// later text is held back until the flush is confirmed.
	r.textBuffer = append(r.textBuffer, "")
	return nil
}

func (r *streamingRequest) EndOfText() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errRequestClosed
	} else if r.cancelled {
		r.mu.Unlock()
		return errRequestCancelled
	} else if r.textComplete {
		r.mu.Unlock()
		return nil
	}

	r.textComplete = true
	if n := len(r.textBuffer); n > 0 && r.textBuffer[n-1] != "" {
		if err := r.markLocked(); err != nil {
			r.mu.Unlock()
			return err
		}
	}
	finished := r.drainedLocked()
	if finished {
		r.ended = true
	}
	r.mu.Unlock()

	if finished {
		r.options.SpeechEndedCallback()
		return r.Close()
	}
	return nil
}

func (r *streamingRequest) Cancel() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errRequestClosed
	}
	if r.cancelled {
		r.mu.Unlock()
		return nil
	}
	r.cancelled = true
	r.textBuffer = nil
	err := r.sendWebsocketMessage(clearMsg)
	r.mu.Unlock()

	closeErr := r.Close()
	if err != nil {
		return errors.Join(fmt.Errorf("failed to clear: %w", err), closeErr)
	}
	return closeErr
}

func (r *streamingRequest) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	err := r.sendWebsocketMessage(closeMsg)
	r.closed = true
	r.mu.Unlock()

	if err != nil {
		if aggressiveCloseErr := r.ws.Close(); aggressiveCloseErr != nil {
			return fmt.Errorf("failed to close websocket: %w", errors.Join(err, aggressiveCloseErr))
		}
	}
	return nil
}

func (r *streamingRequest) sendWebsocketMessage(msg websocketMessage) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if err := r.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write to websocket: %w", err)
	}
	return nil
}
