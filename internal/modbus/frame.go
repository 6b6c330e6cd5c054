package modbus

import (
	"encoding/binary"
	"fmt"
	"io"
)

// unitID is the fixed Modbus unit identifier this slave answers to
// (spec.md §4.4, §6.2). There is only ever one unit — this twin does not
// model a multi-drop RTU segment behind a gateway.
const unitID = 1

// maxPDU bounds the PDU size, matching the standard Modbus application
// protocol limit (253 bytes of PDU, function code included).
const maxPDU = 253

// frame is one decoded Modbus TCP request: MBAP header fields plus PDU.
// Framing here is adapted from the teacher's tcp.go, simplified from a
// streaming multi-frame ring buffer (needed there for a shared full-duplex
// bus) to one read-a-header-then-read-the-body pass per request, since each
// TCP connection here talks to exactly one server goroutine.
type frame struct {
	txID     uint16
	unit     byte
	function byte
	data     []byte
}

// readFrame blocks until a full Modbus TCP ADU has arrived on r, or returns
// an error on a malformed frame or closed connection. Malformed frames are
// always a protocol error — the caller closes the connection (spec.md §7).
func readFrame(r io.Reader) (frame, error) {
	header := make([]byte, 7)
	if _, err := io.ReadFull(r, header); err != nil {
		return frame{}, err
	}

	txID := binary.BigEndian.Uint16(header[0:2])
	protocolID := binary.BigEndian.Uint16(header[2:4])
	if protocolID != 0 {
		return frame{}, fmt.Errorf("modbus: non-zero protocol id 0x%04x", protocolID)
	}

	length := int(binary.BigEndian.Uint16(header[4:6]))
	if length < 2 || length-1 > maxPDU {
		return frame{}, fmt.Errorf("modbus: invalid length field %d", length)
	}
	unit := header[6]

	body := make([]byte, length-1)
	if _, err := io.ReadFull(r, body); err != nil {
		return frame{}, err
	}

	return frame{
		txID:     txID,
		unit:     unit,
		function: body[0],
		data:     body[1:],
	}, nil
}

// writeFrame serializes an outgoing MBAP header plus PDU and writes it in a
// single call, mirroring buildTCPFrame in the teacher's tcp.go.
func writeFrame(w io.Writer, txID uint16, function byte, data []byte) error {
	payload := 1 + len(data)
	out := make([]byte, 7+payload)
	binary.BigEndian.PutUint16(out[0:2], txID)
	binary.BigEndian.PutUint16(out[2:4], 0)
	binary.BigEndian.PutUint16(out[4:6], uint16(1+payload))
	out[6] = unitID
	out[7] = function
	copy(out[8:], data)
	_, err := w.Write(out)
	return err
}
