package asr

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vimo-ai/vhisper-core/pkg/config"
)

const funasrConnectTimeout = 5 * time.Second

// dialFunASR opens a session against a self-hosted FunASR WebSocket
// server (the runtime shipped by alibaba-damo-academy/FunASR's
// funasr-wss-server). Unlike the DashScope providers there is no API
// key; Endpoint names the ws:// address of the caller's own server.
func dialFunASR(ctx context.Context, params config.ProviderParams) (Recognizer, error) {
	if params.Endpoint == "" {
		return nil, &Error{Code: ErrCodeInvalidConfig, Message: "funasr: endpoint is required"}
	}

	r := &funasrRecognizer{
		events: make(chan Event, 16),
		sendCh: make(chan []byte, 64),
		eosCh:  make(chan struct{}, 1),
	}

	dialCtx, cancel := context.WithTimeout(ctx, funasrConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: funasrConnectTimeout}
	conn, _, err := dialer.DialContext(dialCtx, params.Endpoint, nil)
	if err != nil {
		return nil, &Error{Code: ErrCodeNetworkError, Message: "funasr: websocket dial failed", Err: err}
	}

	r.conn = conn
	r.ctx, r.cancel = context.WithCancel(context.Background())

	r.wg.Add(2)
	go r.readLoop()
	go r.writeLoop()
	r.sendConfig(params.Language)

	return r, nil
}

type funasrRecognizer struct {
	conn   *websocket.Conn
	events chan Event
	sendCh chan []byte
	eosCh  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	connMu sync.Mutex
	closed atomic.Bool
}

type funasrConfigMessage struct {
	Mode           string `json:"mode"`
	ChunkSize      []int  `json:"chunk_size"`
	WavName        string `json:"wav_name"`
	IsSpeaking     bool   `json:"is_speaking"`
	WavFormat      string `json:"wav_format"`
	AudioFs        int    `json:"audio_fs"`
	ITN            bool   `json:"itn"`
	HotWords       string `json:"hotwords,omitempty"`
}

type funasrResult struct {
	Mode    string `json:"mode"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

func (r *funasrRecognizer) Events() <-chan Event { return r.events }

func (r *funasrRecognizer) SendAudio(ctx context.Context, pcm []byte) error {
	if r.closed.Load() {
		return &Error{Code: ErrCodeNetworkError, Message: "funasr: recognizer is closed"}
	}
	select {
	case r.sendCh <- pcm:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ctx.Done():
		return &Error{Code: ErrCodeNetworkError, Message: "funasr: session ended"}
	}
}

func (r *funasrRecognizer) SendEOS(ctx context.Context) error {
	if r.closed.Load() {
		return &Error{Code: ErrCodeNetworkError, Message: "funasr: recognizer is closed"}
	}
	select {
	case r.eosCh <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ctx.Done():
		return &Error{Code: ErrCodeNetworkError, Message: "funasr: session ended"}
	}
}

func (r *funasrRecognizer) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	r.cancel()

	r.connMu.Lock()
	if r.conn != nil {
		r.conn.Close()
	}
	r.connMu.Unlock()

	r.wg.Wait()
	return nil
}

func (r *funasrRecognizer) sendConfig(language string) {
	cfg := funasrConfigMessage{
		Mode:       "2pass",
		ChunkSize:  []int{5, 10, 5},
		WavName:    "vhisper",
		IsSpeaking: true,
		WavFormat:  "pcm",
		AudioFs:    16000,
		ITN:        true,
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return
	}
	r.writeBinary(data, websocket.TextMessage)
}

func (r *funasrRecognizer) writeBinary(data []byte, messageType int) {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	if r.conn == nil {
		return
	}
	if err := r.conn.WriteMessage(messageType, data); err != nil {
		slog.Warn("funasr: write failed", "error", err)
	}
}

func (r *funasrRecognizer) readLoop() {
	defer r.wg.Done()
	defer close(r.events) // readLoop is the only sender on events
	defer r.cancel()

	for {
		_, message, err := r.conn.ReadMessage()
		if err != nil {
			return
		}
		r.handleMessage(message)
	}
}

func (r *funasrRecognizer) writeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case pcm, ok := <-r.sendCh:
			if !ok {
				return
			}
			r.writeBinary(pcm, websocket.BinaryMessage)
		case <-r.eosCh:
			end := funasrConfigMessage{IsSpeaking: false}
			data, err := json.Marshal(end)
			if err != nil {
				continue
			}
			r.writeBinary(data, websocket.TextMessage)
		}
	}
}

func (r *funasrRecognizer) handleMessage(data []byte) {
	var result funasrResult
	if err := json.Unmarshal(data, &result); err != nil {
		slog.Warn("funasr: failed to parse result", "error", err)
		return
	}
	if result.Text == "" {
		return
	}
	if result.IsFinal || result.Mode == "2pass-offline" {
		r.emit(Event{Kind: EventFinal, Text: result.Text})
		return
	}
	r.emit(Event{Kind: EventPartial, Confirmed: result.Text})
}

func (r *funasrRecognizer) emit(e Event) {
	select {
	case r.events <- e:
	case <-r.ctx.Done():
	default:
		slog.Warn("funasr: event channel full, dropping event")
	}
}
