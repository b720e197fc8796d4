package main

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/rcarmo/go-rdp-core/internal/protocol/pdu"
	"github.com/rcarmo/go-rdp-core/internal/session"
)

// connectRequest is the single JSON text message a browser client sends
// before any binary traffic, naming the upstream RDP host to bridge to.
type connectRequest struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Domain   string `json:"domain"`
	User     string `json:"user"`
	Password string `json:"password"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	NLA      bool   `json:"nla"`
}

// Outbound binary message types, browser-facing.
const (
	msgOutGraphicsUpdate byte = 0x01
	msgOutPointerPos     byte = 0x02
	msgOutPointerBitmap  byte = 0x03
	msgOutPointerDefault byte = 0x04
	msgOutPointerHidden  byte = 0x05
	msgOutTerminate      byte = 0x06
)

// Inbound binary message types, browser-facing.
const (
	msgInKeyboard byte = 0x10
	msgInMouse    byte = 0x11
	msgInMouseX   byte = 0x12
	msgInResize   byte = 0x13
)

// resizeEvent is a host-initiated desktop geometry change, decoded by
// decodeResizeEvent and acted on by the pump loop through the
// display-control dynamic channel rather than being forwarded to the
// RDP wire itself.
type resizeEvent struct {
	Width, Height uint32
}

// decodeResizeEvent parses a msgInResize message: [type][width u32][height u32].
func decodeResizeEvent(msg []byte) (resizeEvent, error) {
	if len(msg) < 9 {
		return resizeEvent{}, fmt.Errorf("gateway: short resize message")
	}
	return resizeEvent{
		Width:  binary.LittleEndian.Uint32(msg[1:5]),
		Height: binary.LittleEndian.Uint32(msg[5:9]),
	}, nil
}

// encodeGraphicsUpdate packs the changed rectangle's pixels for delivery
// to the browser: [type][left u16][top u16][width u16][height u16][rgba].
func encodeGraphicsUpdate(img *session.DecodedImage, rect session.Rect) []byte {
	w := rect.Right - rect.Left
	h := rect.Bottom - rect.Top
	out := make([]byte, 9+w*h*4)
	out[0] = msgOutGraphicsUpdate
	binary.LittleEndian.PutUint16(out[1:3], uint16(rect.Left))
	binary.LittleEndian.PutUint16(out[3:5], uint16(rect.Top))
	binary.LittleEndian.PutUint16(out[5:7], uint16(w))
	binary.LittleEndian.PutUint16(out[7:9], uint16(h))

	for row := 0; row < h; row++ {
		srcOff := ((rect.Top+row)*img.Width + rect.Left) * 4
		dstOff := 9 + row*w*4
		copy(out[dstOff:dstOff+w*4], img.Pixels[srcOff:srcOff+w*4])
	}
	return out
}

func encodePointerPosition(ev *session.PointerPositionEvent) []byte {
	out := make([]byte, 5)
	out[0] = msgOutPointerPos
	binary.LittleEndian.PutUint16(out[1:3], uint16(ev.X))
	binary.LittleEndian.PutUint16(out[3:5], uint16(ev.Y))
	return out
}

func encodePointerBitmap(p *session.DecodedPointer) []byte {
	out := make([]byte, 11+len(p.RGBA))
	out[0] = msgOutPointerBitmap
	binary.LittleEndian.PutUint16(out[1:3], uint16(p.Width))
	binary.LittleEndian.PutUint16(out[3:5], uint16(p.Height))
	binary.LittleEndian.PutUint16(out[5:7], uint16(p.HotspotX))
	binary.LittleEndian.PutUint16(out[7:9], uint16(p.HotspotY))
	binary.LittleEndian.PutUint16(out[9:11], uint16(p.CacheIndex))
	copy(out[11:], p.RGBA)
	return out
}

func encodePointerDefault() []byte { return []byte{msgOutPointerDefault} }

func encodePointerHidden() []byte { return []byte{msgOutPointerHidden} }

func encodeTerminate(reason *session.TerminateReason) []byte {
	out := make([]byte, 2+len(reason.Description))
	out[0] = msgOutTerminate
	if reason.UserRequested {
		out[1] = 1
	}
	copy(out[2:], reason.Description)
	return out
}

// decodeInputEvent turns one binary message from the browser into a
// serialized fast-path InputEvent ready to wrap in an InputEventPDU, or
// nil if the message type is unrecognized (dropped, not an error: a
// future client version may send message types this gateway predates).
func decodeInputEvent(msg []byte) ([]byte, error) {
	if len(msg) == 0 {
		return nil, fmt.Errorf("gateway: empty input message")
	}

	switch msg[0] {
	case msgInKeyboard:
		if len(msg) < 3 {
			return nil, fmt.Errorf("gateway: short keyboard message")
		}
		return pdu.NewKeyboardEvent(msg[1], msg[2]).Serialize(), nil

	case msgInMouse:
		if len(msg) < 7 {
			return nil, fmt.Errorf("gateway: short mouse message")
		}
		flags := binary.LittleEndian.Uint16(msg[1:3])
		x := binary.LittleEndian.Uint16(msg[3:5])
		y := binary.LittleEndian.Uint16(msg[5:7])
		return pdu.NewMouseEvent(flags, x, y).Serialize(), nil

	case msgInMouseX:
		if len(msg) < 7 {
			return nil, fmt.Errorf("gateway: short extended mouse message")
		}
		flags := binary.LittleEndian.Uint16(msg[1:3])
		x := binary.LittleEndian.Uint16(msg[3:5])
		y := binary.LittleEndian.Uint16(msg[5:7])
		return pdu.NewExtendedMouseEvent(flags, x, y).Serialize(), nil

	default:
		return nil, nil
	}
}

func parseConnectRequest(raw []byte) (connectRequest, error) {
	var req connectRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return connectRequest{}, fmt.Errorf("gateway: decoding connect request: %w", err)
	}
	if req.Host == "" {
		return connectRequest{}, fmt.Errorf("gateway: connect request missing host")
	}
	if req.Port == "" {
		req.Port = "3389"
	}
	return req, nil
}
