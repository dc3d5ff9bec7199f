package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// WAV format tags
const (
	FormatPCM   uint16 = 1
	FormatMulaw uint16 = 7
)

// ErrUnsupportedWAV is returned for RIFF files the reader cannot decode
var ErrUnsupportedWAV = errors.New("unsupported WAV file")

// WAVHeader holds the parsed RIFF/WAV header fields.
type WAVHeader struct {
	Format        uint16
	SampleRate    uint32
	BitsPerSample uint16
	NumChannels   uint16
	NumSamples    int // per channel
}

// ReadWAV reads 16-bit PCM or 8-bit μ-law audio and returns mono samples at the
// file's own rate.
func ReadWAV(r io.ReadSeeker) ([]int16, WAVHeader, error) {
	var header WAVHeader

	var riffID [4]byte
	if err := binary.Read(r, binary.LittleEndian, &riffID); err != nil {
		return nil, header, fmt.Errorf("read RIFF ID: %w", err)
	}
	if string(riffID[:]) != "RIFF" {
		return nil, header, fmt.Errorf("%w: not a RIFF file", ErrUnsupportedWAV)
	}

	var fileSize uint32
	if err := binary.Read(r, binary.LittleEndian, &fileSize); err != nil {
		return nil, header, fmt.Errorf("read file size: %w", err)
	}

	var waveID [4]byte
	if err := binary.Read(r, binary.LittleEndian, &waveID); err != nil {
		return nil, header, fmt.Errorf("read WAVE ID: %w", err)
	}
	if string(waveID[:]) != "WAVE" {
		return nil, header, fmt.Errorf("%w: not a WAVE file", ErrUnsupportedWAV)
	}

	var fmtFound bool
	for {
		var chunkID [4]byte
		if err := binary.Read(r, binary.LittleEndian, &chunkID); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, header, fmt.Errorf("read chunk ID: %w", err)
		}

		var chunkSize uint32
		if err := binary.Read(r, binary.LittleEndian, &chunkSize); err != nil {
			return nil, header, fmt.Errorf("read chunk size: %w", err)
		}

		switch string(chunkID[:]) {
		case "fmt ":
			if err := readFmtChunk(r, chunkSize, &header); err != nil {
				return nil, header, err
			}
			fmtFound = true

		case "data":
			if !fmtFound {
				return nil, header, fmt.Errorf("%w: data chunk before fmt chunk", ErrUnsupportedWAV)
			}
			samples, err := readDataChunk(r, chunkSize, &header)
			if err != nil {
				return nil, header, err
			}
			return samples, header, nil

		default:
			// Chunks are word aligned
			skip := int64(chunkSize)
			if chunkSize%2 != 0 {
				skip++
			}
			if _, err := r.Seek(skip, io.SeekCurrent); err != nil {
				return nil, header, fmt.Errorf("skip chunk %q: %w", chunkID, err)
			}
		}
	}

	if !fmtFound {
		return nil, header, fmt.Errorf("%w: missing fmt chunk", ErrUnsupportedWAV)
	}
	return nil, header, fmt.Errorf("%w: missing data chunk", ErrUnsupportedWAV)
}

func readFmtChunk(r io.ReadSeeker, size uint32, h *WAVHeader) error {
	if err := binary.Read(r, binary.LittleEndian, &h.Format); err != nil {
		return fmt.Errorf("read audio format: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &h.NumChannels); err != nil {
		return fmt.Errorf("read num channels: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &h.SampleRate); err != nil {
		return fmt.Errorf("read sample rate: %w", err)
	}

	// byteRate (4 bytes) and blockAlign (2 bytes)
	if _, err := r.Seek(6, io.SeekCurrent); err != nil {
		return fmt.Errorf("skip byte rate / block align: %w", err)
	}

	if err := binary.Read(r, binary.LittleEndian, &h.BitsPerSample); err != nil {
		return fmt.Errorf("read bits per sample: %w", err)
	}

	switch {
	case h.Format == FormatPCM && h.BitsPerSample == 16:
	case h.Format == FormatMulaw && h.BitsPerSample == 8:
	default:
		return fmt.Errorf("%w: format %d with %d bits per sample", ErrUnsupportedWAV, h.Format, h.BitsPerSample)
	}
	if h.NumChannels == 0 {
		return fmt.Errorf("%w: zero channels", ErrUnsupportedWAV)
	}
	if h.SampleRate == 0 {
		return fmt.Errorf("%w: zero sample rate", ErrUnsupportedWAV)
	}

	consumed := uint32(16)
	if size > consumed {
		skip := int64(size - consumed)
		if size%2 != 0 {
			skip++
		}
		if _, err := r.Seek(skip, io.SeekCurrent); err != nil {
			return fmt.Errorf("skip extra fmt bytes: %w", err)
		}
	}

	return nil
}

func readDataChunk(r io.Reader, size uint32, h *WAVHeader) ([]int16, error) {
	// The declared size may exceed what the file holds (streamed or truncated
	// recordings); keep what arrived
	raw, err := io.ReadAll(io.LimitReader(r, int64(size)))
	if err != nil {
		return nil, fmt.Errorf("read sample data: %w", err)
	}

	var interleaved []int16
	if h.Format == FormatMulaw {
		interleaved = DecodeMulaw(raw)
	} else {
		interleaved, err = BytesToSamples(raw[:len(raw)&^1])
		if err != nil {
			return nil, err
		}
	}

	channels := int(h.NumChannels)
	interleaved = interleaved[:len(interleaved)-len(interleaved)%channels]
	mono := Downmix(interleaved, channels)
	h.NumSamples = len(mono)
	return mono, nil
}

// FileSource replays a WAV file as fixed-size frames at the capture rate
type FileSource struct {
	samples   []int16
	frameSize int
	pos       int
	closed    bool
}

// NewFileSource builds a source from decoded samples already at the target rate
func NewFileSource(samples []int16, frameSize int) *FileSource {
	if frameSize <= 0 {
		frameSize = len(samples)
	}
	return &FileSource{samples: samples, frameSize: frameSize}
}

// OpenFile decodes path and resamples it to cfg.SampleRate
func OpenFile(path string, cfg CaptureConfig) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceFailure, err)
	}
	defer f.Close()

	samples, header, err := ReadWAV(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDeviceFailure, path, err)
	}
	samples = Resample(samples, int(header.SampleRate), cfg.SampleRate)
	return NewFileSource(samples, cfg.FrameSize), nil
}

// FileOpener opens the same WAV file for every session
func FileOpener(path string) Opener {
	return OpenerFunc(func(ctx context.Context, cfg CaptureConfig) (Source, error) {
		return OpenFile(path, cfg)
	})
}

// ReadFrame returns the next frame; the last one may be short
func (s *FileSource) ReadFrame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed {
		return nil, fmt.Errorf("%w: source is closed", ErrDeviceFailure)
	}
	if s.pos >= len(s.samples) {
		return nil, io.EOF
	}
	end := s.pos + s.frameSize
	if end > len(s.samples) {
		end = len(s.samples)
	}
	frame := SamplesToBytes(s.samples[s.pos:end])
	s.pos = end
	return frame, nil
}

// Close releases the samples
func (s *FileSource) Close() error {
	s.closed = true
	s.samples = nil
	return nil
}
