package main

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rcarmo/go-rdp-core/internal/connector"
	"github.com/rcarmo/go-rdp-core/internal/framing"
	"github.com/rcarmo/go-rdp-core/internal/logging"
	"github.com/rcarmo/go-rdp-core/internal/protocol/drdynvc"
	"github.com/rcarmo/go-rdp-core/internal/protocol/fastpath"
	"github.com/rcarmo/go-rdp-core/internal/session"
)

// pump relays one established RDP session between wire (the upstream RDP
// server, already past the connector handshake) and ws (the browser)
// until either side ends the connection: one goroutine per direction,
// with a mutex guarding concurrent WebSocket writes.
func pump(ws *websocket.Conn, wire net.Conn, sess *session.Session, result connector.ConnectionResult, channels channelSet, log *logging.Logger) error {
	var wsMu sync.Mutex
	var stopOnce sync.Once
	stop := func() {
		stopOnce.Do(func() {
			_ = wire.Close()
			_ = ws.Close()
		})
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer stop()
		pumpInput(ws, wire, result, channels, log)
	}()

	outErr := pumpOutput(wire, ws, sess, &wsMu, log)
	stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Warn("gateway: timeout waiting for input pump to exit")
	}

	return outErr
}

// pumpOutput reads one RDP wire frame at a time, feeds it to sess, and
// forwards every ActiveStageOutput to the browser (or, for
// ResponseFrame, back down the wire). It returns when the session
// terminates or a transport error ends the loop.
func pumpOutput(wire net.Conn, ws *websocket.Conn, sess *session.Session, wsMu *sync.Mutex, log *logging.Logger) error {
	for {
		frame, err := readFrame(wire, framing.FindSize)
		if err != nil {
			return fmt.Errorf("gateway: reading session frame: %w", err)
		}

		outputs, err := sess.Process(frame)
		if err != nil {
			return fmt.Errorf("gateway: processing session frame: %w", err)
		}

		for _, out := range outputs {
			switch {
			case out.ResponseFrame != nil:
				if _, err := wire.Write(out.ResponseFrame); err != nil {
					return fmt.Errorf("gateway: writing response frame: %w", err)
				}

			case out.GraphicsUpdate != nil:
				if err := sendWS(ws, wsMu, encodeGraphicsUpdate(sess.Image(), *out.GraphicsUpdate)); err != nil {
					return err
				}

			case out.PointerPosition != nil:
				if err := sendWS(ws, wsMu, encodePointerPosition(out.PointerPosition)); err != nil {
					return err
				}

			case out.PointerBitmap != nil:
				if err := sendWS(ws, wsMu, encodePointerBitmap(out.PointerBitmap)); err != nil {
					return err
				}

			case out.PointerDefault:
				if err := sendWS(ws, wsMu, encodePointerDefault()); err != nil {
					return err
				}

			case out.PointerHidden:
				if err := sendWS(ws, wsMu, encodePointerHidden()); err != nil {
					return err
				}

			case out.Terminate != nil:
				_ = sendWS(ws, wsMu, encodeTerminate(out.Terminate))
				return nil

			case out.DeactivateAll != nil:
				if err := driveReactivation(wire, out.DeactivateAll); err != nil {
					return fmt.Errorf("gateway: reactivation: %w", err)
				}
				if err := sess.ResumeReactivation(); err != nil {
					return fmt.Errorf("gateway: resuming after reactivation: %w", err)
				}
			}
		}
	}
}

// driveReactivation runs a deactivate-all re-activation sub-sequence to
// completion over wire. session.ActivationSequence is
// connector.ActivationSequence reused verbatim, so this is the same
// capability-exchange/finalization loop runHandshake drives for the
// initial connect.
func driveReactivation(wire net.Conn, act *session.ActivationSequence) error {
	frame, err := readFrame(wire, framing.FindSize)
	if err != nil {
		return fmt.Errorf("reading demand active: %w", err)
	}
	confirmActive, err := act.HandleDemandActive(frame)
	if err != nil {
		return fmt.Errorf("handling demand active: %w", err)
	}
	if _, err := wire.Write(confirmActive); err != nil {
		return fmt.Errorf("sending confirm active: %w", err)
	}
	if _, err := wire.Write(act.FinalizationRequest()); err != nil {
		return fmt.Errorf("sending finalization burst: %w", err)
	}
	for !act.Done() {
		frame, err = readFrame(wire, framing.FindSize)
		if err != nil {
			return fmt.Errorf("reading finalization response: %w", err)
		}
		if err := act.HandleFinalizationResponse(frame); err != nil {
			return fmt.Errorf("handling finalization response: %w", err)
		}
	}
	return nil
}

func sendWS(ws *websocket.Conn, wsMu *sync.Mutex, msg []byte) error {
	wsMu.Lock()
	defer wsMu.Unlock()
	if err := ws.WriteMessage(websocket.BinaryMessage, msg); err != nil {
		return fmt.Errorf("gateway: writing to browser: %w", err)
	}
	return nil
}

// pumpInput reads binary messages from the browser and forwards input
// events down the fast-path input channel, or drives a display-control
// resize through the drdynvc multiplexer. It returns once ws closes or
// an unrecoverable error occurs; the caller tears down both ends via
// stop regardless of which side noticed first.
func pumpInput(ws *websocket.Conn, wire net.Conn, result connector.ConnectionResult, channels channelSet, log *logging.Logger) {
	for {
		_ = ws.SetReadDeadline(time.Now().Add(30 * time.Second))
		_, msg, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("gateway: browser read ended: %v", err)
			}
			return
		}
		if len(msg) == 0 {
			continue
		}

		if msg[0] == msgInResize {
			handleResize(msg, wire, result, channels, log)
			continue
		}

		eventData, err := decodeInputEvent(msg)
		if err != nil {
			log.Warn("gateway: decoding input event: %v", err)
			continue
		}
		if eventData == nil {
			continue
		}

		frame := fastpath.NewInputEventPDU(eventData).Serialize()
		if _, err := wire.Write(frame); err != nil {
			log.Warn("gateway: writing input event: %v", err)
			return
		}
	}
}

// handleResize queues a monitor layout change with the display-control
// processor and, once the dynamic channel has been opened by the server,
// sends it immediately through the drdynvc multiplexer's static channel
// framing. A resize requested before the channel opens is silently
// dropped: MS-RDPEDISP has no way to request a resize before capability
// exchange, and rdpedisp.Processor does not queue across channel opens.
func handleResize(msg []byte, wire net.Conn, result connector.ConnectionResult, channels channelSet, log *logging.Logger) {
	req, err := decodeResizeEvent(msg)
	if err != nil {
		log.Warn("gateway: decoding resize event: %v", err)
		return
	}

	dynChannelID, open := channels.disp.ChannelID()
	if !open {
		return
	}

	staticChannelID, ok := channels.svc.ChannelID(drdynvc.ChannelName)
	if !ok {
		return
	}

	channels.disp.RequestResize(req.Width, req.Height)
	pending := channels.disp.TakePending()
	if len(pending) == 0 {
		return
	}

	var dynFrames [][]byte
	for _, layout := range pending {
		dynFrames = append(dynFrames, channels.dispMux.Send(dynChannelID, layout)...)
	}

	for _, chunk := range channels.svc.Chunk(staticChannelID, dynFrames) {
		if _, err := wire.Write(connector.SendDataRequest(result.UserID, staticChannelID, chunk)); err != nil {
			log.Warn("gateway: sending resize request: %v", err)
			return
		}
	}
}
