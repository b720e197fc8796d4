package session

import (
	"fmt"

	"github.com/rcarmo/go-rdp-core/internal/codec/rfx"
	"github.com/rcarmo/go-rdp-core/internal/connector"
	"github.com/rcarmo/go-rdp-core/internal/framing"
	"github.com/rcarmo/go-rdp-core/internal/logging"
	"github.com/rcarmo/go-rdp-core/internal/protocol/pdu"
	"github.com/rcarmo/go-rdp-core/internal/svc"
)

// ActivationSequence is connector's capability-exchange/finalization
// sub-automaton, reused unchanged for deactivate-all re-activation: the
// doc comment on connector.NewActivationSequence calls this reuse out by
// name.
type ActivationSequence = connector.ActivationSequence

// Config is everything a Session needs at construction: the connector's
// finished result and the static channel registry the host already
// populated and bound during channel connection.
type Config struct {
	Result connector.ConnectionResult
	SVC    *svc.Set

	// RemoteApp mirrors the flag connector itself passes to
	// NewActivationSequence; ConnectionResult carries no RAIL
	// negotiation outcome today, so this defaults to false like
	// connector's own re-activation call does.
	RemoteApp bool

	Logger *logging.Logger
}

// Session drives the active phase of an RDP connection: it consumes one
// wire frame per Process call and returns the outputs the host must act
// on, never touching a transport itself.
type Session struct {
	userID      uint16
	ioChannelID uint16
	shareID     uint32
	channelIDs  map[string]uint16
	width       uint16
	height      uint16
	remoteApp   bool

	codecByID map[uint8]codecKind
	rfxCtx    *rfx.Context

	svc *svc.Set

	image *DecodedImage

	activation *ActivationSequence

	log *logging.Logger
}

type codecKind int

const (
	codecRaw codecKind = iota
	codecNSCodec
	codecRemoteFX
)

// New builds a Session from a completed connector run.
func New(cfg Config) *Session {
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}

	s := &Session{
		userID:      cfg.Result.UserID,
		ioChannelID: cfg.Result.IOChannelID,
		shareID:     cfg.Result.ShareID,
		channelIDs:  cfg.Result.ChannelIDMap,
		width:       cfg.Result.DesktopSize.Width,
		height:      cfg.Result.DesktopSize.Height,
		remoteApp:   cfg.RemoteApp,
		svc:         cfg.SVC,
		image:       NewDecodedImage(int(cfg.Result.DesktopSize.Width), int(cfg.Result.DesktopSize.Height)),
		log:         log,
	}
	s.codecByID = buildCodecMap(cfg.Result.ServerCapabilitySets)

	return s
}

func buildCodecMap(caps []pdu.CapabilitySet) map[uint8]codecKind {
	out := map[uint8]codecKind{0: codecRaw}
	for _, cs := range caps {
		if cs.BitmapCodecsCapabilitySet == nil {
			continue
		}
		for _, c := range cs.BitmapCodecsCapabilitySet.BitmapCodecArray {
			switch c.CodecGUID {
			case pdu.NSCodecGUID:
				out[c.CodecID] = codecNSCodec
			case pdu.RFXCodecGUID:
				out[c.CodecID] = codecRemoteFX
			}
		}
	}
	return out
}

// Image returns the session's framebuffer. The host must not retain a
// reference across a Process call that returns a GraphicsUpdate for a
// resized desktop (deactivate-all can change dimensions).
func (s *Session) Image() *DecodedImage { return s.image }

// ShareID returns the share id currently in effect.
func (s *Session) ShareID() uint32 { return s.shareID }

// Reactivating reports whether a deactivate-all re-activation sequence
// is outstanding; Process refuses new frames until ResumeReactivation is
// called.
func (s *Session) Reactivating() bool { return s.activation != nil }

// Process consumes one complete wire frame (sized by framing.FindSize)
// and returns the outputs the host must act on, in order.
func (s *Session) Process(frame []byte) ([]ActiveStageOutput, error) {
	if len(frame) == 0 {
		return nil, ErrEmptyFrame
	}
	if s.activation != nil {
		return nil, ErrReactivationInProgress
	}

	switch framing.DetectAction(frame[0]) {
	case framing.ActionFastPath:
		return s.processFastPath(frame)
	default:
		return s.processX224(frame)
	}
}

// ResumeReactivation absorbs the result of a completed deactivate-all
// re-activation sequence (ShareID, capability sets, desktop geometry)
// and clears Reactivating so Process accepts frames again.
func (s *Session) ResumeReactivation() error {
	if s.activation == nil {
		return ErrNotReactivating
	}
	if !s.activation.Done() {
		return ErrReactivationNotDone
	}

	s.shareID = s.activation.ShareID()
	s.codecByID = buildCodecMap(s.activation.ServerCapabilitySets())
	s.activation = nil
	s.image.Reset()

	return nil
}

// GracefulShutdown starts a client-initiated disconnect: it returns the
// Shutdown Request frame the host must write to the wire. The server is
// expected to reply with Shutdown Denied, which Process turns into a
// DisconnectProviderUltimatum ResponseFrame followed by Terminate. No
// other teardown message is ever sent unless the host calls this.
func (s *Session) GracefulShutdown() []byte {
	return s.sendShareData(pdu.NewShutdownRequest(s.shareID, s.userID))
}

func (s *Session) beginReactivation() ActiveStageOutput {
	s.activation = connector.NewActivationSequence(s.userID, s.ioChannelID, s.width, s.height, s.remoteApp)
	return ActiveStageOutput{DeactivateAll: s.activation}
}

func (s *Session) globalChannelID() uint16 { return s.channelIDs["global"] }

func (s *Session) sendShareData(data *pdu.Data) []byte {
	return connector.SendDataRequest(s.userID, s.globalChannelID(), data.Serialize())
}

func (s *Session) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("session: "+format, args...)
}
