// Package raw implements the RAW socket transfer mode.
//
// A transaction is one TCP (optionally TLS) connection. The client writes a
// handshake, the server answers with a response code, then the client
// streams packaged flowfiles, each preceded by a CONTINUE code, optionally
// through a flate stream. FINISH ends the data phase; the server answers with
// the CRC32 of all packaged bytes it received. The client compares it and
// either sends CONFIRM (server answers TRANSACTION_FINISHED) or BAD_CHECKSUM.
//
// Handshake layout:
//
//	"S2SR"           4-byte magic
//	version          1 byte
//	transaction id   string
//	port name        string
//	instance url     string
//	flags            1 byte (bit 0: compressed data phase)
//	direction        1 byte ('S' send)
//
// Strings are a 2-byte big endian length followed by UTF-8 bytes.
package raw

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	handshakeMagic  = "S2SR"
	protocolVersion = 1

	flagCompressed = 1 << 0

	directionSend = 'S'
)

// DefaultPort is dialed when a peer URL carries no port.
const DefaultPort = "10000"

// Response codes.
const (
	codeProceed             byte = 1
	codePortNotFound        byte = 2
	codeDestinationFull     byte = 3
	codeUnauthorized        byte = 4
	codeContinue            byte = 10
	codeFinish              byte = 11
	codeConfirm             byte = 12
	codeTransactionFinished byte = 13
	codeCancel              byte = 15
	codeBadChecksum         byte = 19
)

var errBadHandshake = errors.New("raw: bad handshake")

type handshake struct {
	TransactionID string
	PortName      string
	InstanceURL   string
	Compressed    bool
	Direction     byte
}

func writeHandshake(w io.Writer, h handshake) error {
	if _, err := io.WriteString(w, handshakeMagic); err != nil {
		return err
	}
	if _, err := w.Write([]byte{protocolVersion}); err != nil {
		return err
	}
	for _, s := range []string{h.TransactionID, h.PortName, h.InstanceURL} {
		if err := writeString(w, s); err != nil {
			return err
		}
	}
	var flags byte
	if h.Compressed {
		flags |= flagCompressed
	}
	_, err := w.Write([]byte{flags, h.Direction})
	return err
}

func readHandshake(r io.Reader) (handshake, error) {
	var head [len(handshakeMagic) + 1]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return handshake{}, err
	}
	if string(head[:len(handshakeMagic)]) != handshakeMagic {
		return handshake{}, errBadHandshake
	}
	if head[len(handshakeMagic)] != protocolVersion {
		return handshake{}, fmt.Errorf("%w: unsupported version %d", errBadHandshake, head[len(handshakeMagic)])
	}

	var h handshake
	var err error
	if h.TransactionID, err = readString(r); err != nil {
		return handshake{}, err
	}
	if h.PortName, err = readString(r); err != nil {
		return handshake{}, err
	}
	if h.InstanceURL, err = readString(r); err != nil {
		return handshake{}, err
	}

	var tail [2]byte
	if _, err := io.ReadFull(r, tail[:]); err != nil {
		return handshake{}, err
	}
	h.Compressed = tail[0]&flagCompressed != 0
	h.Direction = tail[1]
	return h, nil
}

func writeString(w io.Writer, s string) error {
	if len(s) > 0xFFFF {
		return fmt.Errorf("string too long: %d bytes", len(s))
	}
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(len(s)))
	if _, err := w.Write(b[:]); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return "", err
	}
	buf := make([]byte, binary.BigEndian.Uint16(b[:]))
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readCode(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}
