package pdu

import (
	"bytes"
	"encoding/binary"

	"github.com/rcarmo/go-rdp-core/internal/codec"
)

// InfoFlag represents the flags field of TS_INFO_PACKET (MS-RDPBCGR 2.2.1.11.1.1).
type InfoFlag uint32

const (
	InfoFlagMouse                  InfoFlag = 0x00000001
	InfoFlagDisableCtrlAltDel      InfoFlag = 0x00000002
	InfoFlagAutologon              InfoFlag = 0x00000008
	InfoFlagUnicode                InfoFlag = 0x00000010
	InfoFlagMaximizeShell          InfoFlag = 0x00000020
	InfoFlagLogonNotify            InfoFlag = 0x00000040
	InfoFlagCompression            InfoFlag = 0x00000080
	InfoFlagEnableWindowsKey       InfoFlag = 0x00000100
	InfoFlagRemoteConsoleAudio     InfoFlag = 0x00002000
	InfoFlagForceEncryptedCSPDU    InfoFlag = 0x00004000
	InfoFlagRail                   InfoFlag = 0x00008000
	InfoFlagLogonErrors            InfoFlag = 0x00010000
	InfoFlagMouseHasWheel          InfoFlag = 0x00020000
	InfoFlagPasswordIsSCPin        InfoFlag = 0x00040000
	InfoFlagNoAudioPlayback        InfoFlag = 0x00080000
	InfoFlagUsingSavedCreds        InfoFlag = 0x00100000
	InfoFlagAudioCapture           InfoFlag = 0x00200000
	InfoFlagVideoDisable           InfoFlag = 0x00400000
)

// PerformanceFlag represents the performanceFlags field of
// TS_EXTENDED_INFO_PACKET (MS-RDPBCGR 2.2.1.11.1.1.1).
type PerformanceFlag uint32

const (
	PerfDisableWallpaper    PerformanceFlag = 0x00000001
	PerfDisableFullWindow   PerformanceFlag = 0x00000002
	PerfDisableMenuAnims    PerformanceFlag = 0x00000004
	PerfDisableTheming      PerformanceFlag = 0x00000008
	PerfDisableCursorShadow PerformanceFlag = 0x00000020
	PerfDisableCursorBlink  PerformanceFlag = 0x00000040
	PerfEnableFontSmoothing PerformanceFlag = 0x00000080
	PerfEnableDesktopComp   PerformanceFlag = 0x00000100
)

// InfoPacketData represents TS_INFO_PACKET (MS-RDPBCGR 2.2.1.11.1.1): the
// client's logon credentials and session preferences, sent unencrypted
// (except for whatever security layer wraps the whole PDU) during secure
// settings exchange.
type InfoPacketData struct {
	CodePage        uint32
	Flags           InfoFlag
	Domain          string
	UserName        string
	Password        string
	AlternateShell  string
	WorkingDir      string
	PerformanceFlags PerformanceFlag
}

// ClientInfo represents the Client Info PDU (MS-RDPBCGR 2.2.1.11), wrapping
// an InfoPacketData plus an always-present TS_EXTENDED_INFO_PACKET (every
// client since RDP 5.0 sends one, and Client Core Data always advertises
// at least that version here).
type ClientInfo struct {
	InfoPacket InfoPacketData
}

// NewClientInfo builds a Client Info PDU with INFO_MOUSE, INFO_UNICODE,
// INFO_AUTOLOGON, INFO_DISABLECTRLALTDEL and INFO_LOGONNOTIFY set;
// callers add InfoFlagRail themselves for RemoteApp sessions.
func NewClientInfo(domain, username, password string) *ClientInfo {
	return &ClientInfo{
		InfoPacket: InfoPacketData{
			Flags:            InfoFlagMouse | InfoFlagUnicode | InfoFlagAutologon | InfoFlagDisableCtrlAltDel | InfoFlagLogonNotify,
			Domain:           domain,
			UserName:         username,
			Password:         password,
			PerformanceFlags: PerfDisableWallpaper | PerfDisableFullWindow | PerfDisableMenuAnims | PerfDisableCursorShadow | PerfDisableTheming,
		},
	}
}

func utf16leNulString(s string) []byte {
	runes := []rune(s)
	buf := make([]byte, 0, 2*(len(runes)+1))
	for _, r := range runes {
		if r > 0xFFFF {
			r = '?'
		}
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(r))
		buf = append(buf, b...)
	}
	buf = append(buf, 0x00, 0x00)
	return buf
}

// Serialize encodes the Client Info PDU, optionally wrapping it in an RDP
// Security Header: per MS-RDPBCGR 2.2.1.11.1.1, the header is present
// unless Enhanced RDP Security (TLS or CredSSP) is in effect.
func (c *ClientInfo) Serialize(useEnhancedSecurity bool) []byte {
	domain := utf16leNulString(c.InfoPacket.Domain)
	username := utf16leNulString(c.InfoPacket.UserName)
	password := utf16leNulString(c.InfoPacket.Password)
	shell := utf16leNulString(c.InfoPacket.AlternateShell)
	workingDir := utf16leNulString(c.InfoPacket.WorkingDir)

	buf := new(bytes.Buffer)

	_ = binary.Write(buf, binary.LittleEndian, c.InfoPacket.CodePage)
	_ = binary.Write(buf, binary.LittleEndian, uint32(c.InfoPacket.Flags))
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(domain)-2))
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(username)-2))
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(password)-2))
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(shell)-2))
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(workingDir)-2))
	buf.Write(domain)
	buf.Write(username)
	buf.Write(password)
	buf.Write(shell)
	buf.Write(workingDir)

	// TS_EXTENDED_INFO_PACKET (MS-RDPBCGR 2.2.1.11.1.1.1): every client
	// advertising version 0x00080004 in Client Core Data sends one.
	_ = binary.Write(buf, binary.LittleEndian, uint16(2)) // clientAddressFamily = AF_INET
	_ = binary.Write(buf, binary.LittleEndian, uint16(2)) // cbClientAddress: empty string's nul terminator
	buf.Write([]byte{0x00, 0x00})                         // clientAddress
	_ = binary.Write(buf, binary.LittleEndian, uint16(2)) // cbClientDir
	buf.Write([]byte{0x00, 0x00})                         // clientDir
	buf.Write(make([]byte, 172))                          // clientTimeZone (TS_TIME_ZONE_INFORMATION), zeroed: UTC
	_ = binary.Write(buf, binary.LittleEndian, uint32(0)) // clientSessionId, reserved, must be 0
	_ = binary.Write(buf, binary.LittleEndian, uint32(c.InfoPacket.PerformanceFlags))
	_ = binary.Write(buf, binary.LittleEndian, uint16(0)) // cbAutoReconnectLen: none offered

	data := buf.Bytes()

	if useEnhancedSecurity {
		return data
	}

	const secInfoPkt uint16 = 0x0040
	return codec.WrapSecurityFlag(secInfoPkt, data)
}
