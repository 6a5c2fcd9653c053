package mock_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vimo-ai/vhisper-core/pkg/asr"
	"github.com/vimo-ai/vhisper-core/pkg/asr/mock"
)

func TestRecognizerEmitsFinalOnEOS(t *testing.T) {
	final := asr.Event{Kind: asr.EventFinal, Text: "hello"}
	r := mock.New(mock.Script{
		Events:         []asr.Event{{Kind: asr.EventPartial, Confirmed: "hel"}},
		Final:          &final,
		EmitFinalOnEOS: true,
	})

	require.NoError(t, r.SendAudio(context.Background(), []byte{1, 2, 3}))

	partial := <-r.Events()
	assert.Equal(t, asr.EventPartial, partial.Kind)

	require.NoError(t, r.SendEOS(context.Background()))

	last, ok := <-r.Events()
	require.True(t, ok)
	assert.Equal(t, asr.EventFinal, last.Kind)
	assert.Equal(t, "hello", last.Text)

	_, ok = <-r.Events()
	assert.False(t, ok, "expected channel closed after Final")

	assert.Len(t, r.SentAudio(), 1)
}

func TestRecognizerEmitsUnsolicitedFinal(t *testing.T) {
	final := asr.Event{Kind: asr.EventFinal, Text: "server vad final"}
	r := mock.New(mock.Script{Final: &final})

	ev, ok := <-r.Events()
	require.True(t, ok)
	assert.Equal(t, asr.EventFinal, ev.Kind)
	assert.Equal(t, "server vad final", ev.Text)
	assert.Equal(t, 0, r.EOSCalls(), "expected no EOS calls for an unsolicited final")
}

func TestRecognizerDropLeavesChannelOpenUntilClose(t *testing.T) {
	r := mock.New(mock.Script{
		Events:  []asr.Event{{Kind: asr.EventPartial, Confirmed: "hi"}},
		DropErr: errors.New("connection reset"),
	})

	<-r.Events() // drain the one scripted partial

	select {
	case _, ok := <-r.Events():
		t.Fatalf("unexpected event on channel, ok=%v", ok)
	default:
	}

	require.NoError(t, r.Close())

	_, ok := <-r.Events()
	assert.False(t, ok, "expected channel closed after Close")
}

func TestDialerReturnsScriptedErrorThenRecognizer(t *testing.T) {
	dial := mock.Dialer(
		mock.Script{DialErr: errors.New("boom")},
		mock.Script{Events: []asr.Event{{Kind: asr.EventFinal, Text: "ok"}}},
	)

	_, err := dial(context.Background())
	require.Error(t, err)

	r, err := dial(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, r)
}
