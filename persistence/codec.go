// Package persistence serializes trained models to portable blobs and
// stores them. A blob is a fixed header (magic, format version,
// algorithm and task tags), an s2-compressed gob payload, and a CRC32
// trailer over everything before it.
package persistence

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/klauspost/compress/s2"

	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/errors"
)

const (
	// Magic identifies a model blob.
	Magic = "PSML"
	// FormatVersion is bumped on any incompatible layout change.
	FormatVersion uint16 = 1

	maxTagLen = 255
)

// Header carries the routing tags needed to pick a decoder before the
// payload is touched.
type Header struct {
	Version   uint16
	Algorithm string
	Task      string
}

// Encode wraps an already gob-encoded payload in the blob layout.
func Encode(algorithm, task string, payload []byte) ([]byte, error) {
	const op = "persistence.Encode"
	if len(algorithm) == 0 || len(algorithm) > maxTagLen {
		return nil, errors.NewInputError(op, "algorithm tag empty or too long")
	}
	if len(task) == 0 || len(task) > maxTagLen {
		return nil, errors.NewInputError(op, "task tag empty or too long")
	}

	compressed := s2.Encode(nil, payload)

	var buf bytes.Buffer
	buf.WriteString(Magic)
	if err := binary.Write(&buf, binary.BigEndian, FormatVersion); err != nil {
		return nil, errors.NewStorageError(op, err)
	}
	buf.WriteByte(byte(len(algorithm)))
	buf.WriteString(algorithm)
	buf.WriteByte(byte(len(task)))
	buf.WriteString(task)
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(compressed))); err != nil {
		return nil, errors.NewStorageError(op, err)
	}
	buf.Write(compressed)

	checksum := crc32.ChecksumIEEE(buf.Bytes())
	if err := binary.Write(&buf, binary.BigEndian, checksum); err != nil {
		return nil, errors.NewStorageError(op, err)
	}
	return buf.Bytes(), nil
}

// DecodeHeader reads just the routing tags of a blob, validating magic,
// version and checksum.
func DecodeHeader(blob []byte) (*Header, error) {
	header, _, err := decode(blob)
	return header, err
}

// Decode validates a blob and returns its header and decompressed gob
// payload.
func Decode(blob []byte) (*Header, []byte, error) {
	header, compressed, err := decode(blob)
	if err != nil {
		return nil, nil, err
	}
	payload, err := s2.Decode(nil, compressed)
	if err != nil {
		return nil, nil, errors.NewFormatErrorf("payload decompression failed")
	}
	return header, payload, nil
}

func decode(blob []byte) (*Header, []byte, error) {
	// magic + version + two length bytes + payload length + checksum
	if len(blob) < len(Magic)+2+2+4+4 {
		return nil, nil, errors.NewFormatErrorf("blob shorter than the fixed header")
	}
	if string(blob[:len(Magic)]) != Magic {
		return nil, nil, errors.NewFormatErrorf("bad magic %q", string(blob[:len(Magic)]))
	}

	body := blob[:len(blob)-4]
	stored := binary.BigEndian.Uint32(blob[len(blob)-4:])
	if crc32.ChecksumIEEE(body) != stored {
		return nil, nil, errors.NewFormatErrorf("checksum mismatch")
	}

	offset := len(Magic)
	version := binary.BigEndian.Uint16(body[offset:])
	offset += 2
	if version != FormatVersion {
		return nil, nil, errors.NewFormatError(uint32(version), uint32(FormatVersion))
	}

	algLen := int(body[offset])
	offset++
	if offset+algLen > len(body) {
		return nil, nil, errors.NewFormatErrorf("algorithm tag overruns the blob")
	}
	algorithm := string(body[offset : offset+algLen])
	offset += algLen

	taskLen := int(body[offset])
	offset++
	if offset+taskLen > len(body) {
		return nil, nil, errors.NewFormatErrorf("task tag overruns the blob")
	}
	task := string(body[offset : offset+taskLen])
	offset += taskLen

	if offset+4 > len(body) {
		return nil, nil, errors.NewFormatErrorf("blob truncated before payload length")
	}
	payloadLen := int(binary.BigEndian.Uint32(body[offset:]))
	offset += 4
	if offset+payloadLen != len(body) {
		return nil, nil, errors.NewFormatErrorf("payload length disagrees with blob size")
	}

	return &Header{Version: version, Algorithm: algorithm, Task: task}, body[offset:], nil
}
