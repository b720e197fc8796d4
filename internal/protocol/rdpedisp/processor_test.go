package rdpedisp

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessor_StartEmitsNothing(t *testing.T) {
	p := NewProcessor()
	out, err := p.Start(1)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestProcessor_ProcessCapsRecordsAndFlushesPending(t *testing.T) {
	p := NewProcessor()
	p.RequestResize(1920, 1080)

	caps := CapsPDU{MaxNumMonitors: 1, MaxMonitorAreaSize: 1920 * 1080}
	out, err := p.Process(1, caps.Serialize())
	require.NoError(t, err)
	require.Len(t, out, 1)

	var layout MonitorLayoutPDU
	require.NoError(t, layout.Deserialize(bytes.NewReader(out[0])))
	require.Len(t, layout.Monitors, 1)
	assert.Equal(t, uint32(1920), layout.Monitors[0].Width)
	assert.Equal(t, uint32(1), p.Caps().MaxNumMonitors)
}

func TestProcessor_TakePendingDrainsOnce(t *testing.T) {
	p := NewProcessor()
	p.RequestResize(800, 600)
	p.RequestResize(1024, 768)

	out := p.TakePending()
	assert.Len(t, out, 2)
	assert.Empty(t, p.TakePending())
}

func TestProcessor_ProcessUnknownPDUErrors(t *testing.T) {
	p := NewProcessor()
	_, err := p.Process(1, []byte{0x01, 0x00, 0x00, 0x00})
	assert.Error(t, err)
}

func TestProcessor_ChannelName(t *testing.T) {
	p := NewProcessor()
	assert.Equal(t, ChannelName, p.ChannelName())
}
