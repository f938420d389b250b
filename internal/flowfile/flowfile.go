// Package flowfile encodes payloads with their attributes using the
// FlowFile package format (version 3) shared by both transfer modes.
//
// Layout of one packaged flowfile:
//
//	"NiFiFF3"                     7-byte magic header
//	attribute count               field length
//	key, value (repeated)         field length + UTF-8 bytes
//	content length                8 bytes, big endian
//	content
//
// A field length is 2 bytes big endian; lengths of 0xFFFF or more are
// written as 0xFFFF followed by a 4-byte length.
package flowfile

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"sort"
)

// MagicHeader starts every packaged flowfile.
const MagicHeader = "NiFiFF3"

const maxShortLength = 0xFFFF

var (
	// ErrBadMagic is returned when a stream does not start with MagicHeader.
	ErrBadMagic = errors.New("flowfile: bad magic header")

	// ErrTooLarge is returned when a declared count or length exceeds Limits.
	ErrTooLarge = errors.New("flowfile: declared size exceeds limit")
)

// Limits bound what a decoder accepts from a peer. Lengths are checked before
// anything is allocated, and buffers grow only as bytes actually arrive.
type Limits struct {
	MaxAttributes    int
	MaxFieldLength   int
	MaxContentLength int64
}

// DefaultLimits is used by Decode and by receivers configured without limits.
var DefaultLimits = Limits{
	MaxAttributes:    10_000,
	MaxFieldLength:   1 << 20,
	MaxContentLength: 1 << 30,
}

// FlowFile is a payload with its attributes.
type FlowFile struct {
	Attributes map[string]string
	Content    []byte
}

// Size returns the content length.
func (f FlowFile) Size() int {
	return len(f.Content)
}

// Encode writes one packaged flowfile to w. Attributes are written in key order.
func Encode(w io.Writer, attrs map[string]string, content []byte) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString(MagicHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if err := writeFieldLength(bw, len(keys)); err != nil {
		return fmt.Errorf("write attribute count: %w", err)
	}
	for _, k := range keys {
		if err := writeString(bw, k); err != nil {
			return fmt.Errorf("write attribute key: %w", err)
		}
		if err := writeString(bw, attrs[k]); err != nil {
			return fmt.Errorf("write attribute %s: %w", k, err)
		}
	}

	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(content)))
	if _, err := bw.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write content length: %w", err)
	}
	if _, err := bw.Write(content); err != nil {
		return fmt.Errorf("write content: %w", err)
	}

	return bw.Flush()
}

// Decode reads one packaged flowfile from r within DefaultLimits.
// Returns io.EOF if r is exhausted before the header.
func Decode(r io.Reader) (FlowFile, error) {
	return DecodeLimited(r, DefaultLimits)
}

// DecodeLimited reads one packaged flowfile from r. A count or length above
// lim fails with ErrTooLarge.
func DecodeLimited(r io.Reader, lim Limits) (FlowFile, error) {
	var magic [len(MagicHeader)]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return FlowFile{}, io.EOF
		}
		return FlowFile{}, fmt.Errorf("read header: %w", err)
	}
	if string(magic[:]) != MagicHeader {
		return FlowFile{}, ErrBadMagic
	}

	count, err := readFieldLength(r)
	if err != nil {
		return FlowFile{}, fmt.Errorf("read attribute count: %w", err)
	}

	if count > lim.MaxAttributes {
		return FlowFile{}, fmt.Errorf("attribute count %d: %w", count, ErrTooLarge)
	}

	attrs := make(map[string]string, min(count, 64))
	for i := 0; i < count; i++ {
		k, err := readString(r, lim.MaxFieldLength)
		if err != nil {
			return FlowFile{}, fmt.Errorf("read attribute key: %w", err)
		}
		v, err := readString(r, lim.MaxFieldLength)
		if err != nil {
			return FlowFile{}, fmt.Errorf("read attribute %s: %w", k, err)
		}
		attrs[k] = v
	}

	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return FlowFile{}, fmt.Errorf("read content length: %w", err)
	}
	n := binary.BigEndian.Uint64(lenBuf[:])
	if n > uint64(lim.MaxContentLength) {
		return FlowFile{}, fmt.Errorf("content length %d: %w", n, ErrTooLarge)
	}

	content, err := readBytes(r, int64(n))
	if err != nil {
		return FlowFile{}, fmt.Errorf("read content: %w", err)
	}

	return FlowFile{Attributes: attrs, Content: content}, nil
}

// DecodeAll reads packaged flowfiles within lim until r is exhausted.
func DecodeAll(r io.Reader, lim Limits) ([]FlowFile, error) {
	var out []FlowFile
	for {
		ff, err := DecodeLimited(r, lim)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, ff)
	}
}

func writeFieldLength(w io.Writer, n int) error {
	if n < maxShortLength {
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(n))
		_, err := w.Write(b[:])
		return err
	}
	var b [6]byte
	binary.BigEndian.PutUint16(b[:2], maxShortLength)
	binary.BigEndian.PutUint32(b[2:], uint32(n))
	_, err := w.Write(b[:])
	return err
}

func readFieldLength(r io.Reader) (int, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	n := binary.BigEndian.Uint16(b[:])
	if n < maxShortLength {
		return int(n), nil
	}
	var l [4]byte
	if _, err := io.ReadFull(r, l[:]); err != nil {
		return 0, err
	}
	return int(binary.BigEndian.Uint32(l[:])), nil
}

func writeString(w io.Writer, s string) error {
	if err := writeFieldLength(w, len(s)); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader, limit int) (string, error) {
	n, err := readFieldLength(r)
	if err != nil {
		return "", err
	}
	if n > limit {
		return "", fmt.Errorf("field length %d: %w", n, ErrTooLarge)
	}
	b, err := readBytes(r, int64(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// readBytes reads exactly n bytes, growing the buffer as data arrives.
func readBytes(r io.Reader, n int64) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, r, n); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf.Bytes(), nil
}

// ChecksumWriter tees writes into a CRC32 (IEEE) of everything written.
type ChecksumWriter struct {
	w   io.Writer
	crc hash.Hash32
}

// NewChecksumWriter wraps w.
func NewChecksumWriter(w io.Writer) *ChecksumWriter {
	return &ChecksumWriter{w: w, crc: crc32.NewIEEE()}
}

func (c *ChecksumWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.crc.Write(p[:n])
	return n, err
}

// Sum returns the CRC32 of the bytes written so far.
func (c *ChecksumWriter) Sum() uint32 {
	return c.crc.Sum32()
}

// ChecksumReader tees reads into a CRC32 (IEEE) of everything read.
type ChecksumReader struct {
	r   io.Reader
	crc hash.Hash32
}

// NewChecksumReader wraps r.
func NewChecksumReader(r io.Reader) *ChecksumReader {
	return &ChecksumReader{r: r, crc: crc32.NewIEEE()}
}

func (c *ChecksumReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.crc.Write(p[:n])
	return n, err
}

// Sum returns the CRC32 of the bytes read so far.
func (c *ChecksumReader) Sum() uint32 {
	return c.crc.Sum32()
}

// DeliverFunc receives the flowfiles of a confirmed transaction.
// Returning an error makes the receiver refuse to finish the transaction.
type DeliverFunc func(ctx context.Context, port string, files []FlowFile) error

// OrDefault returns DefaultLimits when l is the zero value.
func (l Limits) OrDefault() Limits {
	if l == (Limits{}) {
		return DefaultLimits
	}
	return l
}
