package session

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcarmo/go-rdp-core/internal/connector"
	"github.com/rcarmo/go-rdp-core/internal/protocol/encoding"
	"github.com/rcarmo/go-rdp-core/internal/protocol/mcs"
	"github.com/rcarmo/go-rdp-core/internal/protocol/pdu"
	"github.com/rcarmo/go-rdp-core/internal/rdpconfig"
	"github.com/rcarmo/go-rdp-core/internal/svc"
)

const (
	testUserID      = 1007
	testIOChannelID = 1003
	testShareID     = 66538
)

func newTestSession() *Session {
	return New(Config{
		Result: connector.ConnectionResult{
			UserID:       testUserID,
			ShareID:      testShareID,
			IOChannelID:  testIOChannelID,
			ChannelIDMap: map[string]uint16{"global": testIOChannelID},
			DesktopSize:  rdpconfig.DesktopSize{Width: 1024, Height: 768},
		},
		SVC: svc.NewSet(1024),
	})
}

// buildSendDataIndication hand-assembles the MCS Send Data Indication
// wire shape (ServerSendDataIndication.Deserialize's expected layout,
// internal/protocol/mcs/receive.go) carrying payload on channelID, then
// frames it as connector.WrapX224 would for an inbound server PDU.
func buildSendDataIndication(channelID uint16, payload []byte) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(byte(mcs.SendDataIndication) << 2)
	encoding.PerWriteInteger16(1001, 1001, buf)
	encoding.PerWriteInteger16(channelID, 0, buf)
	buf.WriteByte(0x70)
	encoding.BerWriteLength(len(payload), buf)
	buf.Write(payload)
	return connector.WrapX224(buf.Bytes())
}

func shareDataFrame(pduType2 pdu.Type2, body []byte) []byte {
	header := pdu.ShareDataHeader{
		ShareControlHeader: pdu.ShareControlHeader{PDUType: pdu.TypeData, PDUSource: testIOChannelID},
		ShareID:            testShareID,
		StreamID:           1,
		PDUType2:           pduType2,
	}
	return append(header.Serialize(), body...)
}

func TestSession_ShutdownDenied_ProducesDisconnectThenTerminate(t *testing.T) {
	s := newTestSession()

	frame := buildSendDataIndication(testIOChannelID, shareDataFrame(pdu.Type2ShutdownDenied, nil))

	outputs, err := s.Process(frame)
	require.NoError(t, err)
	require.Len(t, outputs, 2)

	require.NotNil(t, outputs[0].ResponseFrame)
	assert.Equal(t, connector.DisconnectProviderUltimatum(), outputs[0].ResponseFrame)

	require.NotNil(t, outputs[1].Terminate)
	assert.True(t, outputs[1].Terminate.UserRequested)
}

func TestSession_GracefulShutdown_SendsShutdownRequest(t *testing.T) {
	s := newTestSession()

	frame := s.GracefulShutdown()

	domainBytes, err := connector.UnwrapX224(frame)
	require.NoError(t, err)

	wire := bytes.NewReader(domainBytes)
	var domainPDU mcs.DomainPDU
	require.NoError(t, domainPDU.Deserialize(wire))
	require.Equal(t, mcs.SendDataRequest, domainPDU.Application)
	require.NotNil(t, domainPDU.ClientSendDataRequest)
	assert.Equal(t, uint16(testUserID), domainPDU.ClientSendDataRequest.Initiator)

	payload := domainBytes[len(domainBytes)-wire.Len():]
	var data pdu.Data
	require.NoError(t, data.Deserialize(bytes.NewReader(payload)))
	assert.True(t, data.ShareDataHeader.PDUType2.IsShutdownRequest())
}

func TestSession_ErrorInfo_GracefulCodeTerminates(t *testing.T) {
	s := newTestSession()

	body := make([]byte, 4)
	binary.LittleEndian.PutUint32(body, 0x0000000C) // ERRINFO_LOGOFF_BY_USER

	frame := buildSendDataIndication(testIOChannelID, shareDataFrame(pdu.Type2ErrorInfo, body))

	outputs, err := s.Process(frame)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	require.NotNil(t, outputs[0].Terminate)
	assert.False(t, outputs[0].Terminate.UserRequested)
	assert.NotEmpty(t, outputs[0].Terminate.Description)
}

func TestSession_ErrorInfo_FatalCodeIsError(t *testing.T) {
	s := newTestSession()

	body := make([]byte, 4)
	binary.LittleEndian.PutUint32(body, 0x00000006) // ERRINFO_OUT_OF_MEMORY, not in the graceful set

	frame := buildSendDataIndication(testIOChannelID, shareDataFrame(pdu.Type2ErrorInfo, body))

	_, err := s.Process(frame)
	require.Error(t, err)
}

func TestSession_ErrorInfo_NoneIsIgnored(t *testing.T) {
	s := newTestSession()

	body := make([]byte, 4) // ERRINFO_NONE

	frame := buildSendDataIndication(testIOChannelID, shareDataFrame(pdu.Type2ErrorInfo, body))

	outputs, err := s.Process(frame)
	require.NoError(t, err)
	assert.Empty(t, outputs)
}

func TestSession_DeactivateAll_BlocksProcessUntilResumed(t *testing.T) {
	s := newTestSession()

	header := pdu.ShareControlHeader{PDUType: pdu.TypeDeactivateAll, PDUSource: testIOChannelID}
	frame := buildSendDataIndication(testIOChannelID, header.Serialize())

	outputs, err := s.Process(frame)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	require.NotNil(t, outputs[0].DeactivateAll)
	assert.True(t, s.Reactivating())

	_, err = s.Process(frame)
	assert.ErrorIs(t, err, ErrReactivationInProgress)

	err = s.ResumeReactivation()
	assert.ErrorIs(t, err, ErrReactivationNotDone)
}

func TestSession_UnboundChannel_DropsSilently(t *testing.T) {
	s := newTestSession()

	frame := buildSendDataIndication(2000, []byte{0x01, 0x02, 0x03, 0x04})

	outputs, err := s.Process(frame)
	require.NoError(t, err)
	assert.Empty(t, outputs)
}

func TestSession_Process_EmptyFrameErrors(t *testing.T) {
	s := newTestSession()
	_, err := s.Process(nil)
	assert.ErrorIs(t, err, ErrEmptyFrame)
}
