// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package records

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/pkg/errors"
)

// TFRecord framing of each record:
//
//	uint64 length (little-endian)
//	uint32 masked crc32c of length
//	byte   data[length]
//	uint32 masked crc32c of data
var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

const crcMaskDelta = 0xa282ead8

func maskedCRC(data []byte) uint32 {
	crc := crc32.Checksum(data, crc32cTable)
	return ((crc >> 15) | (crc << 17)) + crcMaskDelta
}

// TFRecordReader reads the records of a TFRecord stream.
type TFRecordReader struct {
	r      io.Reader
	header [12]byte
	footer [4]byte
	count  int
}

// NewTFRecordReader creates a reader for the TFRecord stream r.
func NewTFRecordReader(r io.Reader) *TFRecordReader {
	return &TFRecordReader{r: r}
}

// Next returns the payload of the next record, or io.EOF after the last one.
// A truncated stream or a checksum mismatch returns an error.
func (tr *TFRecordReader) Next() ([]byte, error) {
	n, err := io.ReadFull(tr.r, tr.header[:])
	if err == io.EOF && n == 0 {
		return nil, io.EOF
	}
	if err != nil {
		return nil, errors.Wrapf(err, "truncated header of TFRecord #%d", tr.count)
	}
	lengthBytes := tr.header[:8]
	if binary.LittleEndian.Uint32(tr.header[8:]) != maskedCRC(lengthBytes) {
		return nil, errors.Errorf("corrupted length checksum of TFRecord #%d", tr.count)
	}
	length := binary.LittleEndian.Uint64(lengthBytes)
	data := make([]byte, length)
	if _, err = io.ReadFull(tr.r, data); err != nil {
		return nil, errors.Wrapf(err, "truncated data of TFRecord #%d (%d bytes)", tr.count, length)
	}
	if _, err = io.ReadFull(tr.r, tr.footer[:]); err != nil {
		return nil, errors.Wrapf(err, "truncated data checksum of TFRecord #%d", tr.count)
	}
	if binary.LittleEndian.Uint32(tr.footer[:]) != maskedCRC(data) {
		return nil, errors.Errorf("corrupted data checksum of TFRecord #%d", tr.count)
	}
	tr.count++
	return data, nil
}

// TFRecordWriter writes records in the TFRecord format.
type TFRecordWriter struct {
	w      io.Writer
	header [12]byte
	footer [4]byte
}

// NewTFRecordWriter creates a writer of TFRecords to w.
func NewTFRecordWriter(w io.Writer) *TFRecordWriter {
	return &TFRecordWriter{w: w}
}

// Write one record with the given payload.
func (tw *TFRecordWriter) Write(data []byte) error {
	binary.LittleEndian.PutUint64(tw.header[:8], uint64(len(data)))
	binary.LittleEndian.PutUint32(tw.header[8:], maskedCRC(tw.header[:8]))
	binary.LittleEndian.PutUint32(tw.footer[:], maskedCRC(data))
	for _, part := range [][]byte{tw.header[:], data, tw.footer[:]} {
		if _, err := tw.w.Write(part); err != nil {
			return errors.Wrap(err, "failed to write TFRecord")
		}
	}
	return nil
}

// WriteExample encodes rec as a tf.train.Example and writes it as one record.
func (tw *TFRecordWriter) WriteExample(rec Record) error {
	return tw.Write(EncodeExample(rec))
}

func readTFRecordExamples(r io.Reader) ([]Record, error) {
	tr := NewTFRecordReader(r)
	var recs []Record
	for {
		data, err := tr.Next()
		if err == io.EOF {
			return recs, nil
		}
		if err != nil {
			return nil, err
		}
		rec, err := DecodeExample(data)
		if err != nil {
			return nil, errors.WithMessagef(err, "TFRecord #%d", len(recs))
		}
		recs = append(recs, rec)
	}
}
