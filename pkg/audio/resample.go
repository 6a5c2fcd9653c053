package audio

import (
	"fmt"

	"github.com/asticode/go-astiav"
)

// Resampler converts captured mono 16-bit PCM from whatever rate the
// capture device natively runs at down to the fixed 16kHz mono input
// every recognizer provider in this module expects, via ffmpeg's
// swresample through the go-astiav bindings. Unlike a general-purpose
// resampler this never negotiates channel layout: capture is always
// opened mono (source.go's device config), and every provider wants
// mono, so there is nothing to downmix.
type Resampler struct {
	ctx      *astiav.SoftwareResampleContext
	inFrame  *astiav.Frame
	outFrame *astiav.Frame
	inRate   int
	outRate  int
}

// NewResampler allocates a resampler converting from nativeRateHz down
// to the fixed targetSampleRateHz.
func NewResampler(nativeRateHz int) (*Resampler, error) {
	if nativeRateHz <= 0 {
		return nil, fmt.Errorf("audio: invalid capture sample rate: %d", nativeRateHz)
	}

	r := &Resampler{inRate: nativeRateHz, outRate: targetSampleRateHz}

	r.ctx = astiav.AllocSoftwareResampleContext()
	if r.ctx == nil {
		return nil, fmt.Errorf("audio: allocate resample context")
	}

	r.inFrame = astiav.AllocFrame()
	if r.inFrame == nil {
		r.Free()
		return nil, fmt.Errorf("audio: allocate resampler input frame")
	}

	r.outFrame = astiav.AllocFrame()
	if r.outFrame == nil {
		r.Free()
		return nil, fmt.Errorf("audio: allocate resampler output frame")
	}

	return r, nil
}

// Free releases the ffmpeg-owned resources. Safe to call more than once.
func (r *Resampler) Free() {
	if r.ctx != nil {
		r.ctx.Free()
		r.ctx = nil
	}
	if r.inFrame != nil {
		r.inFrame.Free()
		r.inFrame = nil
	}
	if r.outFrame != nil {
		r.outFrame.Free()
		r.outFrame = nil
	}
}

// Convert resamples one captured buffer of native-rate mono 16-bit PCM
// down to 16kHz mono. Each call is independent beyond the allocated
// frame buffers being reused across calls.
func (r *Resampler) Convert(captured []byte) ([]byte, error) {
	const (
		align          = 0
		bytesPerSample = 2 // S16
		inChannels     = 1 // capture is always opened mono
	)

	if len(captured) == 0 {
		return nil, fmt.Errorf("audio: empty capture buffer")
	}

	numSamples := len(captured) / (bytesPerSample * inChannels)
	if numSamples == 0 {
		return nil, fmt.Errorf("audio: capture buffer smaller than one sample")
	}

	r.inFrame.Unref()
	r.outFrame.Unref()

	r.inFrame.SetChannelLayout(astiav.ChannelLayoutMono)
	r.inFrame.SetSampleFormat(astiav.SampleFormatS16)
	r.inFrame.SetSampleRate(r.inRate)
	r.inFrame.SetNbSamples(numSamples)

	r.outFrame.SetChannelLayout(astiav.ChannelLayoutMono)
	r.outFrame.SetSampleFormat(astiav.SampleFormatS16)
	r.outFrame.SetSampleRate(r.outRate)

	outNumSamples := (numSamples * r.outRate) / r.inRate
	if outNumSamples == 0 {
		outNumSamples = 1
	}
	r.outFrame.SetNbSamples(outNumSamples)

	if err := r.inFrame.AllocBuffer(align); err != nil {
		return nil, fmt.Errorf("audio: allocate resampler input buffer: %w", err)
	}
	if err := r.outFrame.AllocBuffer(align); err != nil {
		return nil, fmt.Errorf("audio: allocate resampler output buffer: %w", err)
	}
	if err := r.inFrame.MakeWritable(); err != nil {
		return nil, fmt.Errorf("audio: make resampler input frame writable: %w", err)
	}

	actualBufferSize, err := r.inFrame.SamplesBufferSize(align)
	if err != nil {
		return nil, fmt.Errorf("audio: resampler input buffer size: %w", err)
	}

	inputBuffer := captured
	if len(captured) < actualBufferSize {
		inputBuffer = make([]byte, actualBufferSize)
		copy(inputBuffer, captured)
	}

	if err := r.inFrame.Data().SetBytes(inputBuffer[:actualBufferSize], align); err != nil {
		return nil, fmt.Errorf("audio: set resampler input data: %w", err)
	}

	if err := r.ctx.ConvertFrame(r.inFrame, r.outFrame); err != nil {
		return nil, fmt.Errorf("audio: resample: %w", err)
	}

	out, err := r.outFrame.Data().Bytes(align)
	if err != nil {
		return nil, fmt.Errorf("audio: read resampler output: %w", err)
	}

	return out, nil
}
