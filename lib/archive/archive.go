// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bureau-foundation/fleetstate/lib/codec"
)

const (
	magic = "FSARCHV1"

	// FormatVersion is the Header.Version written by this package.
	FormatVersion = 1
)

// ErrFormat is returned for input that is not a readable archive.
var ErrFormat = errors.New("archive: invalid format")

// Header opens every archive.
type Header struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`

	// Pattern is the subject pattern the archive was exported with.
	Pattern string `json:"pattern"`
}

// Record is one retained message.
type Record struct {
	// Sequence and Timestamp are the values assigned by the source
	// bus. Import does not carry them over.
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Subject   string    `json:"subject"`
	Data      []byte    `json:"data"`
}

// Writer writes an archive.
type Writer struct {
	compressor io.WriteCloser
	encoder    *codec.Encoder
	last       uint64
	count      int
}

// NewWriter writes the preamble and header to w and returns a Writer
// for the records. Close must be called to flush the archive.
func NewWriter(w io.Writer, compression Compression, header Header) (*Writer, error) {
	if header.Version == 0 {
		header.Version = FormatVersion
	}
	preamble := append([]byte(magic), byte(compression))
	if _, err := w.Write(preamble); err != nil {
		return nil, fmt.Errorf("archive: writing preamble: %w", err)
	}
	compressor, err := compression.compressor(w)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	writer := &Writer{compressor: compressor, encoder: codec.NewEncoder(compressor)}
	if err := writer.encoder.Encode(header); err != nil {
		return nil, fmt.Errorf("archive: writing header: %w", err)
	}
	return writer, nil
}

// Write appends one record. Sequences must strictly increase.
func (w *Writer) Write(record Record) error {
	if record.Sequence <= w.last {
		return fmt.Errorf("archive: record sequence %d does not follow %d", record.Sequence, w.last)
	}
	if err := w.encoder.Encode(record); err != nil {
		return fmt.Errorf("archive: writing record %d: %w", record.Sequence, err)
	}
	w.last = record.Sequence
	w.count++
	return nil
}

// Count returns the number of records written.
func (w *Writer) Count() int { return w.count }

// Close flushes the compressed stream. It does not close the
// underlying writer.
func (w *Writer) Close() error {
	if err := w.compressor.Close(); err != nil {
		return fmt.Errorf("archive: flushing: %w", err)
	}
	return nil
}

// Reader reads an archive.
type Reader struct {
	decompressor io.ReadCloser
	decoder      *codec.Decoder
	header       Header
	compression  Compression
	last         uint64
}

// NewReader reads the preamble and header from r.
func NewReader(r io.Reader) (*Reader, error) {
	preamble := make([]byte, len(magic)+1)
	if _, err := io.ReadFull(r, preamble); err != nil {
		return nil, fmt.Errorf("%w: reading preamble: %w", ErrFormat, err)
	}
	if string(preamble[:len(magic)]) != magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrFormat, preamble[:len(magic)])
	}
	compression := Compression(preamble[len(magic)])
	decompressor, err := compression.decompressor(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}

	reader := &Reader{
		decompressor: decompressor,
		decoder:      codec.NewDecoder(decompressor),
		compression:  compression,
	}
	if err := reader.decoder.Decode(&reader.header); err != nil {
		decompressor.Close()
		return nil, fmt.Errorf("%w: reading header: %w", ErrFormat, err)
	}
	if reader.header.Version != FormatVersion {
		decompressor.Close()
		return nil, fmt.Errorf("%w: unsupported version %d", ErrFormat, reader.header.Version)
	}
	return reader, nil
}

// Header returns the archive header.
func (r *Reader) Header() Header { return r.header }

// Compression returns the archive's compression.
func (r *Reader) Compression() Compression { return r.compression }

// Next returns the next record, or io.EOF after the last one.
func (r *Reader) Next() (Record, error) {
	var record Record
	if err := r.decoder.Decode(&record); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("%w: reading record after %d: %w", ErrFormat, r.last, err)
	}
	if record.Sequence <= r.last {
		return Record{}, fmt.Errorf("%w: record sequence %d does not follow %d", ErrFormat, record.Sequence, r.last)
	}
	r.last = record.Sequence
	return record, nil
}

// Close releases the decompressor.
func (r *Reader) Close() error {
	return r.decompressor.Close()
}
