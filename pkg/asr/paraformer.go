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
	paraformerWSURL          = "wss://dashscope.aliyuncs.com/api-ws/v1/inference"
	paraformerDefaultModel   = "paraformer-realtime-v2"
	paraformerConnectTimeout = 5 * time.Second
)

// dialParaformer opens one DashScope Paraformer realtime session. The
// wire shape differs from Qwen's (task header/payload envelopes instead
// of OpenAI-style typed events) but the transport and retry posture are
// identical, so the two providers share readLoop/writeLoop structure.
func dialParaformer(ctx context.Context, params config.ProviderParams) (Recognizer, error) {
	if params.APIKey == "" {
		return nil, &Error{Code: ErrCodeInvalidConfig, Message: "dashscope: api_key is required"}
	}
	model := params.Model
	if model == "" {
		model = paraformerDefaultModel
	}

	r := &paraformerRecognizer{
		model:    model,
		taskID:   fmt.Sprintf("task_%d", eventSeq()),
		events:   make(chan Event, 16),
		sendCh:   make(chan []byte, 64),
		commitCh: make(chan struct{}, 1),
	}

	dialCtx, cancel := context.WithTimeout(ctx, paraformerConnectTimeout)
	defer cancel()

	headers := map[string][]string{
		"Authorization": {"Bearer " + params.APIKey},
	}
	dialer := websocket.Dialer{HandshakeTimeout: paraformerConnectTimeout}
	conn, resp, err := dialer.DialContext(dialCtx, paraformerWSURL, headers)
	if err != nil {
		if resp != nil && (resp.StatusCode == 401 || resp.StatusCode == 403) {
			return nil, &Error{Code: ErrCodeAuthError, Message: "dashscope: authentication rejected", Err: err}
		}
		return nil, &Error{Code: ErrCodeNetworkError, Message: "dashscope: websocket dial failed", Err: err}
	}

	r.conn = conn
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.language = params.Language

	r.wg.Add(2)
	go r.readLoop()
	go r.writeLoop()
	r.sendRunTask()

	return r, nil
}

type paraformerRecognizer struct {
	model    string
	taskID   string
	language string

	conn     *websocket.Conn
	events   chan Event
	sendCh   chan []byte
	commitCh chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	connMu sync.Mutex

	closed    atomic.Bool
	taskReady atomic.Bool
}

func (r *paraformerRecognizer) Events() <-chan Event { return r.events }

func (r *paraformerRecognizer) SendAudio(ctx context.Context, pcm []byte) error {
	if r.closed.Load() {
		return &Error{Code: ErrCodeNetworkError, Message: "dashscope: recognizer is closed"}
	}
	select {
	case r.sendCh <- pcm:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ctx.Done():
		return &Error{Code: ErrCodeNetworkError, Message: "dashscope: session ended"}
	}
}

func (r *paraformerRecognizer) SendEOS(ctx context.Context) error {
	if r.closed.Load() {
		return &Error{Code: ErrCodeNetworkError, Message: "dashscope: recognizer is closed"}
	}
	select {
	case r.commitCh <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ctx.Done():
		return &Error{Code: ErrCodeNetworkError, Message: "dashscope: session ended"}
	}
}

func (r *paraformerRecognizer) Close() error {
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

type paraformerHeader struct {
	Action    string `json:"action"`
	TaskID    string `json:"task_id"`
	Streaming string `json:"streaming"`
}

type paraformerRunTask struct {
	Header  paraformerHeader `json:"header"`
	Payload struct {
		Model      string `json:"model"`
		TaskGroup  string `json:"task_group"`
		Task       string `json:"task"`
		Function   string `json:"function"`
		Parameters struct {
			SampleRate int    `json:"sample_rate"`
			Format     string `json:"format"`
			Language   string `json:"language,omitempty"`
		} `json:"parameters"`
	} `json:"payload"`
}

type paraformerAudioFrame struct {
	Header  paraformerHeader `json:"header"`
	Payload struct {
		Audio string `json:"audio"`
	} `json:"payload"`
}

type paraformerFinishTask struct {
	Header paraformerHeader `json:"header"`
}

type paraformerEventEnvelope struct {
	Header paraformerHeader `json:"header"`
}

type paraformerResultGenerated struct {
	Header  paraformerHeader `json:"header"`
	Payload struct {
		Output struct {
			Sentence struct {
				Text       string `json:"text"`
				SentenceEnd bool  `json:"sentence_end"`
			} `json:"sentence"`
		} `json:"output"`
	} `json:"payload"`
}

func (r *paraformerRecognizer) sendRunTask() {
	task := paraformerRunTask{
		Header: paraformerHeader{Action: "run-task", TaskID: r.taskID, Streaming: "duplex"},
	}
	task.Payload.Model = r.model
	task.Payload.TaskGroup = "audio"
	task.Payload.Task = "asr"
	task.Payload.Function = "recognition"
	task.Payload.Parameters.SampleRate = 16000
	task.Payload.Parameters.Format = "pcm"
	task.Payload.Parameters.Language = r.language

	data, err := json.Marshal(task)
	if err != nil {
		return
	}
	r.writeText(data)
}

func (r *paraformerRecognizer) writeText(data []byte) {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	if r.conn == nil {
		return
	}
	if err := r.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Warn("dashscope: write failed", "error", err)
	}
}

func (r *paraformerRecognizer) readLoop() {
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

func (r *paraformerRecognizer) writeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case pcm, ok := <-r.sendCh:
			if !ok {
				return
			}
			if !r.taskReady.Load() {
				continue
			}
			frame := paraformerAudioFrame{
				Header: paraformerHeader{Action: "continue-task", TaskID: r.taskID},
			}
			frame.Payload.Audio = base64.StdEncoding.EncodeToString(pcm)
			data, err := json.Marshal(frame)
			if err != nil {
				continue
			}
			r.writeText(data)
		case <-r.commitCh:
			if !r.taskReady.Load() {
				continue
			}
			data, err := json.Marshal(paraformerFinishTask{
				Header: paraformerHeader{Action: "finish-task", TaskID: r.taskID},
			})
			if err != nil {
				continue
			}
			r.writeText(data)
		}
	}
}

func (r *paraformerRecognizer) handleMessage(data []byte) {
	var env paraformerEventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}

	switch env.Header.Action {
	case "task-started":
		r.taskReady.Store(true)

	case "result-generated":
		var ev paraformerResultGenerated
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		text := ev.Payload.Output.Sentence.Text
		if text == "" {
			return
		}
		if ev.Payload.Output.Sentence.SentenceEnd {
			r.emit(Event{Kind: EventFinal, Text: text})
		} else {
			r.emit(Event{Kind: EventPartial, Confirmed: text})
		}

	case "task-finished":
		// readLoop exits on the subsequent close frame; nothing to emit.

	case "task-failed":
		slog.Warn("dashscope: task failed", "task_id", r.taskID)
	}
}

func (r *paraformerRecognizer) emit(e Event) {
	select {
	case r.events <- e:
	case <-r.ctx.Done():
	default:
		slog.Warn("dashscope: event channel full, dropping event")
	}
}
