package asr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vimo-ai/vhisper-core/pkg/config"
)

const (
	qwenWSURL           = "wss://dashscope.aliyuncs.com/api-ws/v1/realtime"
	qwenDefaultModel    = "qwen3-asr-flash-realtime"
	qwenConnectTimeout  = 5 * time.Second
	qwenSampleRateHz    = 16000
)

// dialQwen opens one Qwen Realtime ASR session. It performs exactly one
// connection attempt bounded by qwenConnectTimeout; the reconnect
// supervision required by spec §4.4 belongs to the pipeline, not here.
func dialQwen(ctx context.Context, params config.ProviderParams) (Recognizer, error) {
	if params.APIKey == "" {
		return nil, &Error{Code: ErrCodeInvalidConfig, Message: "qwen: api_key is required"}
	}
	model := params.Model
	if model == "" {
		model = qwenDefaultModel
	}

	r := &qwenRecognizer{
		model:    model,
		events:   make(chan Event, 16),
		sendCh:   make(chan []byte, 64),
		commitCh: make(chan struct{}, 1),
	}

	dialCtx, cancel := context.WithTimeout(ctx, qwenConnectTimeout)
	defer cancel()

	url := fmt.Sprintf("%s?model=%s", qwenWSURL, model)
	dialer := websocket.Dialer{HandshakeTimeout: qwenConnectTimeout}
	headers := map[string][]string{
		"Authorization": {"Bearer " + params.APIKey},
		"OpenAI-Beta":   {"realtime=v1"},
	}

	conn, resp, err := dialer.DialContext(dialCtx, url, headers)
	if err != nil {
		if resp != nil && (resp.StatusCode == 401 || resp.StatusCode == 403) {
			return nil, &Error{Code: ErrCodeAuthError, Message: "qwen: authentication rejected", Err: err}
		}
		return nil, &Error{Code: ErrCodeNetworkError, Message: "qwen: websocket dial failed", Err: err}
	}

	r.conn = conn
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.language = normalizeQwenLanguage(params.Language)

	r.wg.Add(2)
	go r.readLoop()
	go r.writeLoop()
	r.sendSessionUpdate()

	return r, nil
}

type qwenRecognizer struct {
	model    string
	language string

	conn     *websocket.Conn
	events   chan Event
	sendCh   chan []byte
	commitCh chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	connMu sync.Mutex

	closed       atomic.Bool
	sessionReady atomic.Bool
}

func (r *qwenRecognizer) Events() <-chan Event { return r.events }

func (r *qwenRecognizer) SendAudio(ctx context.Context, pcm []byte) error {
	if r.closed.Load() {
		return &Error{Code: ErrCodeNetworkError, Message: "qwen: recognizer is closed"}
	}
	select {
	case r.sendCh <- pcm:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ctx.Done():
		return &Error{Code: ErrCodeNetworkError, Message: "qwen: session ended"}
	}
}

func (r *qwenRecognizer) SendEOS(ctx context.Context) error {
	if r.closed.Load() {
		return &Error{Code: ErrCodeNetworkError, Message: "qwen: recognizer is closed"}
	}
	select {
	case r.commitCh <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ctx.Done():
		return &Error{Code: ErrCodeNetworkError, Message: "qwen: session ended"}
	}
}

func (r *qwenRecognizer) Close() error {
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

type qwenEventEnvelope struct {
	Type string `json:"type"`
}

type qwenSessionUpdate struct {
	EventID string      `json:"event_id,omitempty"`
	Type    string      `json:"type"`
	Session qwenSession `json:"session"`
}

type qwenSession struct {
	Modalities              []string                `json:"modalities"`
	InputAudioFormat        string                  `json:"input_audio_format"`
	SampleRate              int                     `json:"sample_rate"`
	InputAudioTranscription qwenAudioTranscription  `json:"input_audio_transcription"`
	TurnDetection           *struct{}               `json:"turn_detection"`
}

type qwenAudioTranscription struct {
	Language string `json:"language"`
}

type qwenAudioAppend struct {
	EventID string `json:"event_id,omitempty"`
	Type    string `json:"type"`
	Audio   string `json:"audio"`
}

type qwenAudioCommit struct {
	EventID string `json:"event_id,omitempty"`
	Type    string `json:"type"`
}

type qwenTranscriptionText struct {
	Text  string `json:"text"`
	Stash string `json:"stash"`
}

type qwenTranscriptionCompleted struct {
	Transcript string `json:"transcript"`
}

type qwenErrorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (r *qwenRecognizer) sendSessionUpdate() {
	update := qwenSessionUpdate{
		EventID: fmt.Sprintf("session_%d", eventSeq()),
		Type:    "session.update",
		Session: qwenSession{
			Modalities:       []string{"text"},
			InputAudioFormat: "pcm",
			SampleRate:       qwenSampleRateHz,
			InputAudioTranscription: qwenAudioTranscription{
				Language: r.language,
			},
		},
	}
	data, err := json.Marshal(update)
	if err != nil {
		return
	}
	r.writeText(data)
}

func (r *qwenRecognizer) writeText(data []byte) {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	if r.conn == nil {
		return
	}
	if err := r.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Warn("qwen: write failed", "error", err)
	}
}

func (r *qwenRecognizer) readLoop() {
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

func (r *qwenRecognizer) writeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case pcm, ok := <-r.sendCh:
			if !ok {
				return
			}
			if !r.sessionReady.Load() {
				continue
			}
			event := qwenAudioAppend{
				EventID: fmt.Sprintf("audio_%d", eventSeq()),
				Type:    "input_audio_buffer.append",
				Audio:   base64.StdEncoding.EncodeToString(pcm),
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			r.writeText(data)
		case <-r.commitCh:
			if !r.sessionReady.Load() {
				continue
			}
			event := qwenAudioCommit{
				EventID: fmt.Sprintf("commit_%d", eventSeq()),
				Type:    "input_audio_buffer.commit",
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			r.writeText(data)
		}
	}
}

func (r *qwenRecognizer) handleMessage(data []byte) {
	var env qwenEventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}

	switch env.Type {
	case "session.updated":
		r.sessionReady.Store(true)

	case "conversation.item.input_audio_transcription.text":
		var ev qwenTranscriptionText
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		if ev.Text == "" && ev.Stash == "" {
			return
		}
		r.emit(Event{Kind: EventPartial, Confirmed: ev.Text, Stash: ev.Stash})

	case "conversation.item.input_audio_transcription.completed":
		var ev qwenTranscriptionCompleted
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		r.emit(Event{Kind: EventFinal, Text: ev.Transcript})

	case "error":
		var ev qwenErrorPayload
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		slog.Warn("qwen: server error", "code", ev.Error.Code, "message", ev.Error.Message)
	}
}

func (r *qwenRecognizer) emit(e Event) {
	select {
	case r.events <- e:
	case <-r.ctx.Done():
	default:
		slog.Warn("qwen: event channel full, dropping event")
	}
}

func normalizeQwenLanguage(language string) string {
	if language == "" {
		return "zh"
	}
	lang := language
	for i, c := range language {
		if c == '-' || c == '_' {
			lang = language[:i]
			break
		}
	}
	switch lang {
	case "zh", "en", "ja", "ko", "yue", "auto":
		return lang
	default:
		return "zh"
	}
}

var eventSeqCounter atomic.Int64

// eventSeq produces a monotonically increasing id for outbound event_id
// fields without reaching for wall-clock time, which the core keeps out
// of its hot send path.
func eventSeq() int64 {
	return eventSeqCounter.Add(1)
}
