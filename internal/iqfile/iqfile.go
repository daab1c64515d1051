// Package iqfile reads interleaved IQ sample captures from disk and slices
// them into the 1 ms packets the receiver consumes.
package iqfile

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/zhufengGNSS/SDGPSR/model"
)

// Format identifies the on-disk sample encoding. All formats are interleaved
// I then Q, little endian for the multi-byte ones.
type Format int

const (
	Int8 Format = iota
	Int16
	Float32
)

// ParseFormat maps a config string onto a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "int8", "i8":
		return Int8, nil
	case "int16", "i16":
		return Int16, nil
	case "float32", "f32":
		return Float32, nil
	default:
		return 0, fmt.Errorf("iqfile: unknown sample format %q", s)
	}
}

// Reader produces 1 ms sample packets from an IQ capture file.
type Reader struct {
	f            *os.File
	r            *bufio.Reader
	format       Format
	samplesPerMs int
}

// Open opens an IQ capture recorded at the given sample rate.
func Open(path string, fs float64, format Format) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("iqfile: %w", err)
	}
	return &Reader{
		f:            f,
		r:            bufio.NewReaderSize(f, 1<<16),
		format:       format,
		samplesPerMs: int(math.Round(fs * 1e-3)),
	}, nil
}

// SamplesPerPacket returns the number of complex samples per packet.
func (r *Reader) SamplesPerPacket() int {
	return r.samplesPerMs
}

// NextPacket reads the next millisecond of samples. It returns io.EOF at a
// clean packet boundary and io.ErrUnexpectedEOF when the file ends inside a
// packet.
func (r *Reader) NextPacket() (model.SamplePacket, error) {
	packet := make(model.SamplePacket, r.samplesPerMs)
	for i := 0; i < r.samplesPerMs; i++ {
		iVal, qVal, err := r.readSample()
		if err != nil {
			if err == io.EOF && i > 0 {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		packet[i] = complex(iVal, qVal)
	}
	return packet, nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	return r.f.Close()
}

func (r *Reader) readSample() (float64, float64, error) {
	switch r.format {
	case Int8:
		var buf [2]byte
		if _, err := io.ReadFull(r.r, buf[:]); err != nil {
			return 0, 0, eofClean(err)
		}
		return float64(int8(buf[0])), float64(int8(buf[1])), nil
	case Int16:
		var buf [4]byte
		if _, err := io.ReadFull(r.r, buf[:]); err != nil {
			return 0, 0, eofClean(err)
		}
		i := int16(binary.LittleEndian.Uint16(buf[0:2]))
		q := int16(binary.LittleEndian.Uint16(buf[2:4]))
		return float64(i), float64(q), nil
	case Float32:
		var buf [8]byte
		if _, err := io.ReadFull(r.r, buf[:]); err != nil {
			return 0, 0, eofClean(err)
		}
		i := math.Float32frombits(binary.LittleEndian.Uint32(buf[0:4]))
		q := math.Float32frombits(binary.LittleEndian.Uint32(buf[4:8]))
		return float64(i), float64(q), nil
	default:
		return 0, 0, fmt.Errorf("iqfile: unknown sample format %d", r.format)
	}
}

// eofClean keeps io.EOF for a read that got nothing and maps a partial
// sample onto io.ErrUnexpectedEOF.
func eofClean(err error) error {
	if err == io.EOF {
		return io.EOF
	}
	return err
}
