package audioio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"gopkg.in/hraban/opus.v2"
)

// Opus on WebRTC is always clocked at 48kHz.
const opusClockRate = 48000

// maxOpusFrameSamples is the largest decodable frame (120ms at 48kHz).
const maxOpusFrameSamples = 5760

// RemoteSource captures audio from a remote streaming microphone over
// WebRTC. It connects to a signalling server, negotiates a recv-only
// audio track, decodes the Opus RTP stream and re-chunks it as PCM16 at
// the configured sample rate.
type RemoteSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	streamCh chan AudioChunk
	stopCh   chan struct{}

	ws *websocket.Conn
	pc *webrtc.PeerConnection

	sessionID string

	// Stats
	chunksRead   atomic.Int64
	samplesRead  atomic.Int64
	overruns     atomic.Int64
	decodeErrors atomic.Int64

	// Carry-over samples between RTP packets so chunks are exactly
	// BufferSize long.
	pending []int16
}

// NewRemoteSource creates a remote microphone source.
// The connection is established on Start.
func NewRemoteSource(cfg Config, logger *slog.Logger) (*RemoteSource, error) {
	if cfg.SignallingURL == "" {
		return nil, fmt.Errorf("remote source requires signalling_url")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RemoteSource{
		cfg:      cfg,
		logger:   logger,
		streamCh: make(chan AudioChunk, 32),
		stopCh:   make(chan struct{}),
	}, nil
}

// Start connects signalling, negotiates the audio track and begins
// decoding.
func (r *RemoteSource) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return io.ErrClosedPipe
	}
	if r.running {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, r.cfg.SignallingURL, nil)
	if err != nil {
		return fmt.Errorf("signalling dial: %w", err)
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		ws.Close()
		return fmt.Errorf("peer connection: %w", err)
	}

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		pc.Close()
		ws.Close()
		return fmt.Errorf("add audio transceiver: %w", err)
	}

	decoder, err := opus.NewDecoder(opusClockRate, 1)
	if err != nil {
		pc.Close()
		ws.Close()
		return fmt.Errorf("opus decoder: %w", err)
	}

	r.ws = ws
	r.pc = pc
	r.running = true
	r.stopCh = make(chan struct{})
	r.streamCh = make(chan AudioChunk, 32)
	r.pending = nil

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		r.logger.Info("remote audio track connected", "codec", track.Codec().MimeType)
		r.decodeLoop(track, decoder)
	})

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		init := candidate.ToJSON()
		r.writeSignal(map[string]any{
			"type":      "peer",
			"sessionId": r.sessionID,
			"ice": map[string]any{
				"candidate":     init.Candidate,
				"sdpMid":        init.SDPMid,
				"sdpMLineIndex": init.SDPMLineIndex,
			},
		})
	})

	go r.signalLoop()

	r.logger.Info("remote audio source started", "url", r.cfg.SignallingURL)
	return nil
}

// decodeLoop reads RTP packets, decodes Opus and emits PCM16 chunks.
func (r *RemoteSource) decodeLoop(track *webrtc.TrackRemote, decoder *opus.Decoder) {
	frameBuf := make([]int16, maxOpusFrameSamples)

	for {
		select {
		case <-r.stopCh:
			return
		default:
		}

		var pkt *rtp.Packet
		pkt, _, err := track.ReadRTP()
		if err != nil {
			r.logger.Debug("rtp read ended", "error", err)
			return
		}

		n, err := decoder.Decode(pkt.Payload, frameBuf)
		if err != nil {
			if r.decodeErrors.Add(1) <= 5 {
				r.logger.Warn("opus decode error", "error", err, "payload_bytes", len(pkt.Payload))
			}
			continue
		}

		samples := Resample(frameBuf[:n], opusClockRate, r.cfg.SampleRate)
		r.emit(samples)
	}
}

// emit re-chunks decoded samples into BufferSize chunks.
func (r *RemoteSource) emit(samples []int16) {
	r.pending = append(r.pending, samples...)
	size := r.cfg.BufferSize()

	for len(r.pending) >= size {
		chunk := AudioChunk{
			Samples:    append([]int16(nil), r.pending[:size]...),
			SampleRate: r.cfg.SampleRate,
			Channels:   1,
		}
		r.pending = r.pending[size:]

		select {
		case r.streamCh <- chunk:
			r.chunksRead.Add(1)
			r.samplesRead.Add(int64(size))
		default:
			// Reader is behind; drop the chunk rather than stall RTP.
			r.overruns.Add(1)
		}
	}
}

// signalLoop handles offer/ICE messages from the signalling server.
func (r *RemoteSource) signalLoop() {
	for {
		var msg map[string]any
		if err := r.ws.ReadJSON(&msg); err != nil {
			select {
			case <-r.stopCh:
			default:
				r.logger.Warn("signalling read ended", "error", err)
			}
			return
		}

		msgType, _ := msg["type"].(string)
		switch msgType {
		case "sessionStarted":
			r.sessionID, _ = msg["sessionId"].(string)

		case "peer":
			if sdpData, ok := msg["sdp"].(map[string]any); ok {
				r.handleOffer(sdpData)
			}
			if iceData, ok := msg["ice"].(map[string]any); ok {
				r.handleICE(iceData)
			}
		}
	}
}

func (r *RemoteSource) handleOffer(sdpData map[string]any) {
	sdpType, _ := sdpData["type"].(string)
	sdpStr, _ := sdpData["sdp"].(string)
	if sdpType != "offer" {
		return
	}

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdpStr}
	if err := r.pc.SetRemoteDescription(offer); err != nil {
		r.logger.Warn("set remote description", "error", err)
		return
	}

	answer, err := r.pc.CreateAnswer(nil)
	if err != nil {
		r.logger.Warn("create answer", "error", err)
		return
	}
	if err := r.pc.SetLocalDescription(answer); err != nil {
		r.logger.Warn("set local description", "error", err)
		return
	}

	r.writeSignal(map[string]any{
		"type":      "peer",
		"sessionId": r.sessionID,
		"sdp": map[string]string{
			"type": answer.Type.String(),
			"sdp":  answer.SDP,
		},
	})
}

func (r *RemoteSource) handleICE(iceData map[string]any) {
	candidate, _ := iceData["candidate"].(string)
	var sdpMid string
	if mid, ok := iceData["sdpMid"]; ok && mid != nil {
		sdpMid, _ = mid.(string)
	}
	var sdpMLineIndex uint16
	if idx, ok := iceData["sdpMLineIndex"]; ok && idx != nil {
		if f, ok := idx.(float64); ok {
			sdpMLineIndex = uint16(f)
		}
	}

	if err := r.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     candidate,
		SDPMid:        &sdpMid,
		SDPMLineIndex: &sdpMLineIndex,
	}); err != nil {
		r.logger.Warn("add ice candidate", "error", err)
	}
}

func (r *RemoteSource) writeSignal(msg map[string]any) {
	r.mu.Lock()
	ws := r.ws
	r.mu.Unlock()
	if ws == nil {
		return
	}
	if err := ws.WriteJSON(msg); err != nil {
		r.logger.Warn("signalling write", "error", err)
	}
}

// Stop halts capture and tears down the connection.
func (r *RemoteSource) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}

	r.running = false
	close(r.stopCh)

	if r.pc != nil {
		r.pc.Close()
		r.pc = nil
	}
	if r.ws != nil {
		r.ws.Close()
		r.ws = nil
	}

	r.logger.Info("remote audio source stopped")
	return nil
}

// Read reads the next audio chunk.
func (r *RemoteSource) Read(ctx context.Context) (AudioChunk, error) {
	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case <-r.stopCh:
		return AudioChunk{}, io.EOF
	case chunk, ok := <-r.streamCh:
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Stream returns the audio chunk channel.
func (r *RemoteSource) Stream() <-chan AudioChunk {
	return r.streamCh
}

// Config returns the audio configuration.
func (r *RemoteSource) Config() Config {
	return r.cfg
}

// Name returns "remote".
func (r *RemoteSource) Name() string {
	return "remote"
}

// Close releases resources.
func (r *RemoteSource) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	return r.Stop()
}

// Stats returns source statistics.
func (r *RemoteSource) Stats() SourceStats {
	r.mu.Lock()
	running := r.running
	r.mu.Unlock()

	return SourceStats{
		ChunksRead:  r.chunksRead.Load(),
		SamplesRead: r.samplesRead.Load(),
		Overruns:    r.overruns.Load(),
		Running:     running,
		Backend:     "remote",
	}
}

var _ SourceWithStats = (*RemoteSource)(nil)
