package fastpath

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const maxFastPathPacketSize = 0x4000

// UpdatePDUAction is the 2-bit action code in a fpOutputHeader.
type UpdatePDUAction uint8

const (
	UpdatePDUActionFastPath UpdatePDUAction = 0x0
	UpdatePDUActionX224     UpdatePDUAction = 0x3
)

// UpdatePDUFlag is the 2-bit flag field in a fpOutputHeader.
type UpdatePDUFlag uint8

const (
	UpdatePDUFlagSecureChecksum UpdatePDUFlag = 0x1
	UpdatePDUFlagEncrypted      UpdatePDUFlag = 0x2
)

// UpdatePDU is a TS_FP_UPDATE_PDU: one or more fast-path output updates
// framed by a single header/length and, here, left undecoded in Data for
// the caller to hand to Update.Deserialize.
type UpdatePDU struct {
	Action UpdatePDUAction
	Flags  UpdatePDUFlag
	Data   []byte
}

func (pdu *UpdatePDU) Deserialize(wire io.Reader) error {
	var header uint8
	if err := binary.Read(wire, binary.BigEndian, &header); err != nil {
		return err
	}

	pdu.Action = UpdatePDUAction(header & 0x3)
	pdu.Flags = UpdatePDUFlag((header >> 6) & 0x3)

	if pdu.Action == UpdatePDUActionX224 {
		return fmt.Errorf("fastpath update pdu: x224 action: %w", ErrUnexpectedX224)
	}
	if pdu.Flags&UpdatePDUFlagEncrypted != 0 {
		return errors.New("fastpath update pdu: encryption not supported")
	}
	if pdu.Flags&UpdatePDUFlagSecureChecksum != 0 {
		return errors.New("fastpath update pdu: checksum not supported")
	}

	length, err := readFastPathLength(wire)
	if err != nil {
		return err
	}
	if length > maxFastPathPacketSize {
		return fmt.Errorf("fastpath update pdu: too big packet: %d", length)
	}

	if cap(pdu.Data) >= length {
		pdu.Data = pdu.Data[:length]
	} else {
		pdu.Data = make([]byte, length)
	}
	if _, err := io.ReadFull(wire, pdu.Data); err != nil {
		return err
	}

	return nil
}

// readFastPathLength reads the fast-path variable length field: a single
// byte when the top bit is clear, otherwise a big-endian uint16 with the
// top bit masked off.
func readFastPathLength(wire io.Reader) (int, error) {
	var b0 uint8
	if err := binary.Read(wire, binary.BigEndian, &b0); err != nil {
		return 0, err
	}
	if b0&0x80 == 0 {
		return int(b0), nil
	}

	var b1 uint8
	if err := binary.Read(wire, binary.BigEndian, &b1); err != nil {
		return 0, err
	}

	return int(b0&0x7f)<<8 | int(b1), nil
}

// Receive reads one TS_FP_UPDATE_PDU from the connection.
func (p *Protocol) Receive() (*UpdatePDU, error) {
	pdu := &UpdatePDU{}
	if err := pdu.Deserialize(p.conn); err != nil {
		return nil, err
	}

	return pdu, nil
}
