package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lflachs/cocorico-voice/pkg/capture"
)

const (
	// uploadChunkBytes is the size of each binary PCM frame sent to the
	// transcription service.
	uploadChunkBytes = 32 * 1024

	wsHandshakeTimeout = 10 * time.Second
)

// WSTranscriber streams an audio clip to a speech-to-text service over
// WebSocket and returns the final transcript. A fresh connection is
// dialed per clip; clips are short, so connection reuse buys nothing.
type WSTranscriber struct {
	config *Config
	logger *slog.Logger
}

// NewWSTranscriber creates a WebSocket transcriber.
func NewWSTranscriber(opts ...Option) (*WSTranscriber, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.TranscribeURL == "" {
		return nil, ErrNoEndpoint
	}

	return &WSTranscriber{
		config: cfg,
		logger: cfg.Logger.With("component", "speech.transcriber"),
	}, nil
}

// startFrame opens the stream and carries the clip parameters.
type startFrame struct {
	Language   string `json:"language"`
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
}

// endFrame closes the audio stream.
type endFrame struct {
	End bool `json:"end"`
}

// resultFrame is one transcript message from the service.
type resultFrame struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
	Error   string `json:"error,omitempty"`
}

// Transcribe implements Transcriber.
func (t *WSTranscriber) Transcribe(ctx context.Context, clip *capture.Clip, lang string) (string, error) {
	if clip.Empty() {
		return "", ErrEmptyClip
	}
	if lang == "" {
		lang = t.config.Language
	}

	ctx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+t.config.APIKey)

	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, t.config.TranscribeURL, headers)
	if err != nil {
		if resp != nil {
			return "", WrapError("stt", &APIError{
				StatusCode: resp.StatusCode,
				Message:    err.Error(),
				Provider:   "stt",
			})
		}
		return "", WrapError("stt", fmt.Errorf("dial: %w", err))
	}
	defer conn.Close()

	// Abandon the read when the caller cancels.
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if err := conn.WriteJSON(startFrame{
		Language:   lang,
		SampleRate: clip.SampleRate,
		Encoding:   "pcm_s16le",
	}); err != nil {
		return "", WrapError("stt", fmt.Errorf("send start: %w", err))
	}

	for off := 0; off < len(clip.PCM); off += uploadChunkBytes {
		end := off + uploadChunkBytes
		if end > len(clip.PCM) {
			end = len(clip.PCM)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, clip.PCM[off:end]); err != nil {
			return "", WrapError("stt", fmt.Errorf("send audio: %w", err))
		}
	}
	if err := conn.WriteJSON(endFrame{End: true}); err != nil {
		return "", WrapError("stt", fmt.Errorf("send end: %w", err))
	}

	t.logger.Debug("clip uploaded",
		"clip", clip.ID, "bytes", len(clip.PCM), "lang", lang)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			return "", WrapError("stt", fmt.Errorf("read result: %w", err))
		}

		var frame resultFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			t.logger.Warn("unparseable frame ignored", "error", err)
			continue
		}
		if frame.Error != "" {
			return "", WrapError("stt", fmt.Errorf("service: %s", frame.Error))
		}
		if frame.IsFinal {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return frame.Text, nil
		}
	}
}

var _ Transcriber = (*WSTranscriber)(nil)
