// Package recording persists the raw call audio and finalizes it into a
// playable container once the stream closes.
package recording

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Mu-law telephony audio as delivered on the media stream.
const (
	wavFormatMuLaw = 7
	sampleRateHz   = 8000
	bitsPerSample  = 8
	channelCount   = 1
)

// Store creates per-stream recording sinks under one directory.
type Store struct {
	dir string
	log *zap.Logger
}

// NewStore ensures the recordings directory exists.
func NewStore(dir string, log *zap.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("recordings directory is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recordings directory: %w", err)
	}
	return &Store{dir: dir, log: log}, nil
}

// Open starts a raw recording for a stream. Filenames are keyed by the
// stream identifier.
func (s *Store) Open(streamID string) (*Sink, error) {
	if streamID == "" {
		return nil, fmt.Errorf("stream_id is required")
	}
	rawPath := filepath.Join(s.dir, streamID+".raw")
	f, err := os.Create(rawPath)
	if err != nil {
		return nil, fmt.Errorf("create raw recording: %w", err)
	}
	return &Sink{
		streamID: streamID,
		rawPath:  rawPath,
		wavPath:  filepath.Join(s.dir, streamID+".wav"),
		file:     f,
		log:      s.log.With(zap.String("stream_sid", streamID)),
	}, nil
}

// Sink appends raw mu-law bytes for one stream.
type Sink struct {
	streamID string
	rawPath  string
	wavPath  string
	log      *zap.Logger

	mu     sync.Mutex
	file   *os.File
	closed bool
}

// Write appends audio bytes. Writes after close are dropped silently; the
// stop event and the socket close race and both paths flush the sink.
func (k *Sink) Write(p []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	if _, err := k.file.Write(p); err != nil {
		return fmt.Errorf("append raw audio: %w", err)
	}
	return nil
}

// Close flushes and closes the raw file. Safe to call more than once.
func (k *Sink) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true
	if err := k.file.Close(); err != nil {
		return fmt.Errorf("close raw recording: %w", err)
	}
	return nil
}

// WavPath returns the finalized container path.
func (k *Sink) WavPath() string {
	return k.wavPath
}

// Finalize wraps the raw capture into a WAV container and removes the raw
// file. Intended to run asynchronously after Close; failures are the
// caller's to log, never to escalate.
func (k *Sink) Finalize() error {
	if err := k.Close(); err != nil {
		return err
	}
	raw, err := os.ReadFile(k.rawPath)
	if err != nil {
		return fmt.Errorf("read raw recording: %w", err)
	}
	if err := writeWav(k.wavPath, raw); err != nil {
		return err
	}
	if err := os.Remove(k.rawPath); err != nil {
		k.log.Warn("raw recording left behind", zap.Error(err))
	}
	k.log.Info("recording finalized", zap.String("path", k.wavPath), zap.Int("bytes", len(raw)))
	return nil
}

// writeWav emits a RIFF/WAVE file for 8-bit 8kHz mono mu-law samples. The
// fmt chunk carries format tag 7 plus an empty extension, and a fact chunk
// records the sample count as required for non-PCM formats.
func writeWav(path string, samples []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}
	defer f.Close()

	dataLen := uint32(len(samples))
	// "WAVE" + fmt(8+18) + fact(8+4) + data(8+n)
	riffLen := 4 + 26 + 12 + 8 + dataLen

	var header [58]byte
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], riffLen)
	copy(header[8:12], "WAVE")

	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 18)
	binary.LittleEndian.PutUint16(header[20:22], wavFormatMuLaw)
	binary.LittleEndian.PutUint16(header[22:24], channelCount)
	binary.LittleEndian.PutUint32(header[24:28], sampleRateHz)
	binary.LittleEndian.PutUint32(header[28:32], sampleRateHz*channelCount*bitsPerSample/8)
	binary.LittleEndian.PutUint16(header[32:34], channelCount*bitsPerSample/8)
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	binary.LittleEndian.PutUint16(header[36:38], 0)

	copy(header[38:42], "fact")
	binary.LittleEndian.PutUint32(header[42:46], 4)
	binary.LittleEndian.PutUint32(header[46:50], dataLen)

	copy(header[50:54], "data")
	binary.LittleEndian.PutUint32(header[54:58], dataLen)

	if _, err := f.Write(header[:]); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	if _, err := f.Write(samples); err != nil {
		return fmt.Errorf("write wav samples: %w", err)
	}
	return nil
}
