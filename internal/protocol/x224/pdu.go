package x224

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// crCDT is the Connection Request CDT octet: TPDU code 0xE in the high
// nibble, credit field left at 0.
const crCDT = 0xE0

// cccdtCodeMask isolates the TPDU code nibble of a Connection Confirm CDT
// octet; RFC 905 fixes it to 0xD.
const cccdtCodeMask = 0xF0
const cccdtCode = 0xD0

// ConnectionRequest is the X.224 Connection Request (CR) TPDU a client
// sends to open the transport connection, carrying the RDP negotiation
// request as UserData.
type ConnectionRequest struct {
	CRCDT        uint8
	DSTREF       uint16
	SRCREF       uint16
	ClassOption  uint8
	VariablePart []byte
	UserData     []byte
}

// Serialize computes LI (length indicator, everything after the LI octet
// up to but excluding UserData... actually including the fixed header and
// VariablePart, per X.224 section 13.3) and writes the full CR TPDU.
func (req *ConnectionRequest) Serialize() []byte {
	li := 6 + len(req.VariablePart) + len(req.UserData)

	buf := new(bytes.Buffer)
	buf.WriteByte(byte(li))
	buf.WriteByte(req.CRCDT)
	binary.Write(buf, binary.BigEndian, req.DSTREF)
	binary.Write(buf, binary.BigEndian, req.SRCREF)
	buf.WriteByte(req.ClassOption)
	buf.Write(req.VariablePart)
	buf.Write(req.UserData)

	return buf.Bytes()
}

// ConnectionConfirm is the X.224 Connection Confirm (CC) TPDU a server
// replies with. Deserialize stops after the fixed header; any RDP
// negotiation response bytes remain on the reader for the caller.
type ConnectionConfirm struct {
	LI          uint8
	CCCDT       uint8
	DSTREF      uint16
	SRCREF      uint16
	ClassOption uint8
}

func (confirm *ConnectionConfirm) Deserialize(wire io.Reader) error {
	var li uint8
	if err := binary.Read(wire, binary.BigEndian, &li); err != nil {
		return err
	}
	confirm.LI = li

	if li < 6 || li > 14 {
		return fmt.Errorf("x224 connection confirm: li %d: %w", li, ErrSmallConnectionConfirmLength)
	}

	var cccdt uint8
	if err := binary.Read(wire, binary.BigEndian, &cccdt); err != nil {
		return err
	}
	confirm.CCCDT = cccdt

	if cccdt&cccdtCodeMask != cccdtCode {
		return fmt.Errorf("x224 connection confirm: cccdt 0x%02x: %w", cccdt, ErrWrongConnectionConfirmCode)
	}

	if err := binary.Read(wire, binary.BigEndian, &confirm.DSTREF); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.BigEndian, &confirm.SRCREF); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.BigEndian, &confirm.ClassOption); err != nil {
		return err
	}

	return nil
}

// Data is the X.224 Data (DT) TPDU that carries every PDU once the
// transport connection is up. Deserialize validates and consumes only the
// fixed 3 byte header, leaving UserData for the caller to read off wire.
type Data struct {
	LI       uint8
	DTROA    uint8
	NREOT    uint8
	UserData []byte
}

func (data *Data) Serialize() []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(data.LI)
	buf.WriteByte(data.DTROA)
	buf.WriteByte(data.NREOT)
	buf.Write(data.UserData)

	return buf.Bytes()
}

func (data *Data) Deserialize(wire io.Reader) error {
	var li uint8
	if err := binary.Read(wire, binary.BigEndian, &li); err != nil {
		return err
	}
	data.LI = li

	if li != 2 {
		return fmt.Errorf("x224 data: li %d: %w", li, ErrWrongDataLength)
	}

	if err := binary.Read(wire, binary.BigEndian, &data.DTROA); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.BigEndian, &data.NREOT); err != nil {
		return err
	}

	return nil
}
