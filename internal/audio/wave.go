package audio

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	waveBitDepth  = 16
	wavePCMFormat = 1
)

// WaveWriter writes interleaved signed 16 bit little endian PCM to a WAV file.
type WaveWriter struct {
	file *os.File
	enc  *wav.Encoder
	buf  *goaudio.IntBuffer
}

// CreateWave creates (or truncates) path and prepares a 16 bit PCM encoder.
func CreateWave(path string, sampleRate, channels int) (*WaveWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create wave file: %w", err)
	}
	return &WaveWriter{
		file: f,
		enc:  wav.NewEncoder(f, sampleRate, waveBitDepth, channels, wavePCMFormat),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
			SourceBitDepth: waveBitDepth,
		},
	}, nil
}

// WritePCM16 appends raw S16LE frames.
func (w *WaveWriter) WritePCM16(pcm []byte) error {
	n := len(pcm) / 2
	if cap(w.buf.Data) < n {
		w.buf.Data = make([]int, n)
	}
	w.buf.Data = w.buf.Data[:n]
	for i := 0; i < n; i++ {
		w.buf.Data[i] = int(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}
	return w.enc.Write(w.buf)
}

// Close finalizes the WAV header and closes the file.
func (w *WaveWriter) Close() error {
	encErr := w.enc.Close()
	fileErr := w.file.Close()
	if encErr != nil {
		return fmt.Errorf("finalize wave file: %w", encErr)
	}
	return fileErr
}

// WaveInfo summarizes a recorded WAV file.
type WaveInfo struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Duration   time.Duration
}

// ReadWaveInfo decodes the header of a WAV file.
func ReadWaveInfo(path string) (*WaveInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s is not a valid wave file", path)
	}
	duration, err := dec.Duration()
	if err != nil {
		return nil, fmt.Errorf("read wave duration: %w", err)
	}
	return &WaveInfo{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
		Duration:   duration,
	}, nil
}
