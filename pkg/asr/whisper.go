package asr

import (
	"bytes"
	"context"
	"encoding/binary"
	"log/slog"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/vimo-ai/vhisper-core/pkg/config"
)

const (
	whisperSampleRateHz  = 16000
	whisperChannels      = 1
	whisperBitsPerSample = 16
)

// dialWhisper constructs a one-shot OpenAI Whisper recognizer. Whisper has
// no realtime wire protocol, so the session just accumulates PCM locally
// and issues a single HTTP transcription call when SendEOS arrives —
// there is no Partial event, only a terminal Final.
func dialWhisper(params config.ProviderParams) (Recognizer, error) {
	if params.APIKey == "" {
		return nil, &Error{Code: ErrCodeInvalidConfig, Message: "openaiwhisper: api_key is required"}
	}

	clientConfig := openai.DefaultConfig(params.APIKey)
	if params.Endpoint != "" {
		clientConfig.BaseURL = params.Endpoint
	}

	model := params.Model
	if model == "" {
		model = openai.Whisper1
	}

	r := &whisperRecognizer{
		client:   openai.NewClientWithConfig(clientConfig),
		model:    model,
		language: params.Language,
		events:   make(chan Event, 1),
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	return r, nil
}

type whisperRecognizer struct {
	client   *openai.Client
	model    string
	language string

	mu     sync.Mutex
	buffer []byte
	closed bool
	done   bool

	events chan Event
	ctx    context.Context
	cancel context.CancelFunc
}

func (r *whisperRecognizer) Events() <-chan Event { return r.events }

func (r *whisperRecognizer) SendAudio(_ context.Context, pcm []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return &Error{Code: ErrCodeNetworkError, Message: "openaiwhisper: recognizer is closed"}
	}
	r.buffer = append(r.buffer, pcm...)
	return nil
}

func (r *whisperRecognizer) SendEOS(ctx context.Context) error {
	r.mu.Lock()
	if r.closed || r.done {
		r.mu.Unlock()
		return &Error{Code: ErrCodeNetworkError, Message: "openaiwhisper: recognizer is closed"}
	}
	audio := make([]byte, len(r.buffer))
	copy(audio, r.buffer)
	r.done = true
	r.mu.Unlock()
	defer close(r.events) // Close skips closing once done is set

	text, err := r.transcribe(ctx, audio)
	if err != nil {
		return err
	}

	select {
	case r.events <- Event{Kind: EventFinal, Text: text}:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (r *whisperRecognizer) transcribe(ctx context.Context, pcm []byte) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}
	wav, err := pcmToWAV(pcm, whisperSampleRateHz, whisperChannels, whisperBitsPerSample)
	if err != nil {
		return "", &Error{Code: ErrCodeProtocolError, Message: "openaiwhisper: pcm to wav conversion failed", Err: err}
	}

	req := openai.AudioRequest{
		Model:    r.model,
		FilePath: "audio.wav",
		Reader:   bytes.NewReader(wav),
		Language: r.language,
	}

	resp, err := r.client.CreateTranscription(ctx, req)
	if err != nil {
		slog.Warn("openaiwhisper: transcription request failed", "error", err)
		return "", &Error{Code: ErrCodeNetworkError, Message: "openaiwhisper: transcription request failed", Err: err}
	}
	return resp.Text, nil
}

func (r *whisperRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.cancel()
	if !r.done {
		r.done = true
		close(r.events)
	}
	return nil
}

// pcmToWAV wraps raw little-endian PCM samples in a minimal WAV container,
// the format every HTTP transcription API expects a file upload to carry.
func pcmToWAV(pcm []byte, sampleRate, channels, bitsPerSample int) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("RIFF")
	if err := binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm))); err != nil {
		return nil, err
	}
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	byteRate := uint32(sampleRate * channels * bitsPerSample / 8)
	binary.Write(&buf, binary.LittleEndian, byteRate)
	blockAlign := uint16(channels * bitsPerSample / 8)
	binary.Write(&buf, binary.LittleEndian, blockAlign)
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes(), nil
}
