package model

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/MegaAntiCheat/masterbase/internal/detect"
)

// npyMagic is the NumPy array file signature.
var npyMagic = []byte("\x93NUMPY")

func isNPY(data []byte) bool {
	return len(data) >= len(npyMagic) && string(data[:len(npyMagic)]) == string(npyMagic)
}

// parseNPY decodes a .npy v1/v2 file holding a C-order float64 or int64
// array with 65536 elements, shaped (256, 256) or (65536,).
func parseNPY(data []byte) ([]float64, error) {
	if len(data) < 10 {
		return nil, fmt.Errorf("truncated npy header: %w", ErrBadFormat)
	}
	major := data[6]

	var headerLen, headerStart int
	switch major {
	case 1:
		headerLen = int(binary.LittleEndian.Uint16(data[8:10]))
		headerStart = 10
	case 2:
		if len(data) < 12 {
			return nil, fmt.Errorf("truncated npy v2 header: %w", ErrBadFormat)
		}
		headerLen = int(binary.LittleEndian.Uint32(data[8:12]))
		headerStart = 12
	default:
		return nil, fmt.Errorf("npy version %d: %w", major, ErrBadFormat)
	}
	if len(data) < headerStart+headerLen {
		return nil, fmt.Errorf("npy header overruns file: %w", ErrBadFormat)
	}

	header := string(data[headerStart : headerStart+headerLen])
	descr, err := headerField(header, "descr")
	if err != nil {
		return nil, err
	}
	if order, err := headerField(header, "fortran_order"); err != nil || order != "False" {
		return nil, fmt.Errorf("npy array must be C-order: %w", ErrBadFormat)
	}
	if !hasExpectedShape(header) {
		return nil, fmt.Errorf("npy array must have shape (256, 256) or (65536,): %w", ErrBadFormat)
	}

	payload := data[headerStart+headerLen:]
	if len(payload) < detect.MatrixSize*8 {
		return nil, fmt.Errorf("npy payload truncated: %w", ErrBadFormat)
	}

	matrix := make([]float64, detect.MatrixSize)
	switch descr {
	case "<f8":
		for k := range matrix {
			matrix[k] = math.Float64frombits(binary.LittleEndian.Uint64(payload[k*8:]))
		}
	case "<i8":
		for k := range matrix {
			matrix[k] = float64(int64(binary.LittleEndian.Uint64(payload[k*8:])))
		}
	default:
		return nil, fmt.Errorf("npy dtype %q: %w", descr, ErrBadFormat)
	}
	return matrix, nil
}

// headerField pulls a quoted-key value out of the npy header dict literal.
func headerField(header, key string) (string, error) {
	idx := strings.Index(header, "'"+key+"'")
	if idx < 0 {
		return "", fmt.Errorf("npy header missing %q: %w", key, ErrBadFormat)
	}
	rest := header[idx+len(key)+2:]
	colon := strings.Index(rest, ":")
	if colon < 0 {
		return "", fmt.Errorf("npy header malformed at %q: %w", key, ErrBadFormat)
	}
	rest = strings.TrimLeft(rest[colon+1:], " ")

	if strings.HasPrefix(rest, "'") {
		end := strings.Index(rest[1:], "'")
		if end < 0 {
			return "", fmt.Errorf("npy header malformed at %q: %w", key, ErrBadFormat)
		}
		return rest[1 : 1+end], nil
	}
	end := strings.IndexAny(rest, ",}")
	if end < 0 {
		return "", fmt.Errorf("npy header malformed at %q: %w", key, ErrBadFormat)
	}
	return strings.TrimSpace(rest[:end]), nil
}

func hasExpectedShape(header string) bool {
	idx := strings.Index(header, "'shape'")
	if idx < 0 {
		return false
	}
	rest := header[idx:]
	open := strings.Index(rest, "(")
	closing := strings.Index(rest, ")")
	if open < 0 || closing < open {
		return false
	}
	shape := strings.ReplaceAll(rest[open+1:closing], " ", "")
	shape = strings.TrimSuffix(shape, ",")
	return shape == "256,256" || shape == "65536"
}

// WriteNPY writes the flattened matrix to path as a NumPy v1 .npy file with
// dtype <f8 and shape (256, 256), the format Load reads back.
func WriteNPY(path string, matrix []float64) error {
	if len(matrix) != detect.MatrixSize {
		return fmt.Errorf("model: matrix has %d entries, want %d", len(matrix), detect.MatrixSize)
	}

	header := "{'descr': '<f8', 'fortran_order': False, 'shape': (256, 256), }"
	// Pad so the payload starts on a 64-byte boundary, newline-terminated.
	total := 10 + len(header) + 1
	if pad := 64 - total%64; pad != 64 {
		header += strings.Repeat(" ", pad)
	}
	header += "\n"

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("model: creating %s: %w", path, err)
	}
	defer f.Close()

	if err := writeNPYBody(f, header, matrix); err != nil {
		return fmt.Errorf("model: writing %s: %w", path, err)
	}
	return f.Close()
}

func writeNPYBody(w io.Writer, header string, matrix []float64) error {
	buf := make([]byte, 0, 10+len(header)+len(matrix)*8)
	buf = append(buf, npyMagic...)
	buf = append(buf, 1, 0)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(header)))
	buf = append(buf, header...)
	for _, v := range matrix {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
	}
	_, err := w.Write(buf)
	return err
}
