// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package npz reads and writes 1-D float64 arrays in numpy's compressed
// archive format: a zip file whose deflated members are .npy arrays. Files
// written here load in Python with numpy.load(path)["arr_0"].
package npz

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zip"
)

// DefaultKey is the name numpy gives the first positional array.
const DefaultKey = "arr_0"

const (
	npyMagic  = "\x93NUMPY"
	npyAlign  = 64
	npyDescr  = "<f8"
	npyExt    = ".npy"
	headerFmt = "{'descr': '%s', 'fortran_order': False, 'shape': (%d,), }"
)

// ErrFormat is returned for archives this package cannot decode.
var ErrFormat = errors.New("unsupported npz content")

// EncodeNPY writes data as a version 1.0 .npy array of little-endian float64.
func EncodeNPY(w io.Writer, data []float64) error {
	header := fmt.Sprintf(headerFmt, npyDescr, len(data))
	// magic(6) + version(2) + header length(2) + header + '\n', padded so
	// the array data starts on an aligned offset.
	pre := len(npyMagic) + 2 + 2
	pad := npyAlign - (pre+len(header)+1)%npyAlign
	if pad == npyAlign {
		pad = 0
	}
	header += strings.Repeat(" ", pad) + "\n"

	var buf bytes.Buffer
	buf.WriteString(npyMagic)
	buf.Write([]byte{1, 0})
	binary.Write(&buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)
	if _, err := w.Write(buf.Bytes()); err != nil {
		return err
	}

	body := make([]byte, 8*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint64(body[8*i:], math.Float64bits(v))
	}
	_, err := w.Write(body)
	return err
}

var (
	descrRe = regexp.MustCompile(`'descr':\s*'([^']*)'`)
	orderRe = regexp.MustCompile(`'fortran_order':\s*(True|False)`)
	shapeRe = regexp.MustCompile(`'shape':\s*\((\d*),?\s*\)`)
)

// DecodeNPY reads a .npy array of little-endian float64 with a 1-D shape.
func DecodeNPY(r io.Reader) ([]float64, error) {
	return decodeNPY(r, -1)
}

// decodeNPY is DecodeNPY with the array payload capped at limit bytes.
// A negative limit leaves the size unchecked beyond overflow.
func decodeNPY(r io.Reader, limit int64) ([]float64, error) {
	pre := make([]byte, len(npyMagic)+2)
	if _, err := io.ReadFull(r, pre); err != nil {
		return nil, fmt.Errorf("reading npy preamble: %w", err)
	}
	if string(pre[:len(npyMagic)]) != npyMagic {
		return nil, fmt.Errorf("%w: missing npy magic", ErrFormat)
	}

	var hlen int
	switch major := pre[len(npyMagic)]; major {
	case 1:
		var n uint16
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("reading npy header length: %w", err)
		}
		hlen = int(n)
	case 2, 3:
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("reading npy header length: %w", err)
		}
		hlen = int(n)
	default:
		return nil, fmt.Errorf("%w: npy version %d", ErrFormat, major)
	}

	header := make([]byte, hlen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("reading npy header: %w", err)
	}

	m := descrRe.FindSubmatch(header)
	if m == nil || string(m[1]) != npyDescr {
		return nil, fmt.Errorf("%w: dtype in header %q", ErrFormat, header)
	}
	if m := orderRe.FindSubmatch(header); m == nil || string(m[1]) != "False" {
		return nil, fmt.Errorf("%w: fortran order", ErrFormat)
	}
	m = shapeRe.FindSubmatch(header)
	if m == nil {
		return nil, fmt.Errorf("%w: shape in header %q", ErrFormat, header)
	}
	n := 0
	if len(m[1]) > 0 {
		v, err := strconv.Atoi(string(m[1]))
		if err != nil {
			return nil, fmt.Errorf("%w: shape %q", ErrFormat, m[1])
		}
		n = v
	}
	if n > math.MaxInt/8 || (limit >= 0 && int64(n) > limit/8) {
		return nil, fmt.Errorf("%w: shape (%d,) exceeds the stored data", ErrFormat, n)
	}

	body := make([]byte, 8*n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("reading npy data: %w", err)
	}
	data := make([]float64, n)
	for i := range data {
		data[i] = math.Float64frombits(binary.LittleEndian.Uint64(body[8*i:]))
	}
	return data, nil
}

// Write writes data to w as a compressed archive holding a single array
// under key.
func Write(w io.Writer, key string, data []float64) error {
	zw := zip.NewWriter(w)
	fw, err := zw.CreateHeader(&zip.FileHeader{Name: key + npyExt, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("creating archive member: %w", err)
	}
	if err := EncodeNPY(fw, data); err != nil {
		return fmt.Errorf("writing array: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finishing archive: %w", err)
	}
	return nil
}

// WriteFile writes the archive to path through a temporary file in the
// same directory, so path either holds a complete archive or does not exist.
func WriteFile(path, key string, data []float64) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".npz-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	writeErr := Write(tmp, key, data)
	if writeErr == nil {
		writeErr = tmp.Sync()
	}
	closeErr := tmp.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return writeErr
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// ReadFile returns the array stored under key in the archive at path.
func ReadFile(path, key string) ([]float64, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != key+npyExt {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s in %s: %w", f.Name, path, err)
		}
		defer rc.Close()
		data, err := decodeNPY(rc, int64(f.UncompressedSize64))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: %s has no array %q", ErrFormat, path, key)
}
