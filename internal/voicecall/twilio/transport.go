package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"outcall-server/internal/observability"
	"outcall-server/internal/voicecall/audio"
	"outcall-server/internal/voicecall/providers"
	"sync"

	"github.com/gorilla/websocket"
)

// MediaEvent is the envelope Twilio sends over a media stream websocket.
type MediaEvent struct {
	Event string `json:"event"`
	Start struct {
		StreamSid string `json:"streamSid"`
	} `json:"start,omitempty"`
	Media struct {
		Payload string `json:"payload"`
	} `json:"media,omitempty"`
	Stop struct {
		StreamSid string `json:"streamSid"`
	} `json:"stop,omitempty"`
}

// Transport adapts a Twilio media stream websocket to the MediaTransport
// interface. Inbound frames arrive as base64 mu-law at 8kHz and are converted
// to 16kHz PCM16 before delivery; outbound PCM is converted back to mu-law.
type Transport struct {
	conn      *websocket.Conn
	logger    *observability.Logger
	streamSid string

	writeMu sync.Mutex
	in      chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

var _ providers.MediaTransport = (*Transport)(nil)

// NewTransport wraps an upgraded websocket connection and starts the receive
// loop. The caller owns the connection; Close tears it down.
func NewTransport(conn *websocket.Conn, logger *observability.Logger) *Transport {
	t := &Transport{
		conn:   conn,
		logger: logger,
		in:     make(chan []byte, 256),
		done:   make(chan struct{}),
	}
	go t.receiveLoop()
	return t
}

// IncomingAudio returns the channel of inbound 16kHz PCM16 frames. The channel
// is closed when the stream stops or the connection drops.
func (t *Transport) IncomingAudio() <-chan []byte {
	return t.in
}

// StreamSID returns the Twilio stream identifier, available once the start
// event has been received.
func (t *Transport) StreamSID() string {
	return t.streamSid
}

func (t *Transport) receiveLoop() {
	defer close(t.in)

	ctx := context.Background()
	for {
		_, msg, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.logger.Info(ctx, "twilio media stream closed")
			} else {
				select {
				case <-t.done:
					// Close was requested locally; read error is expected.
				default:
					t.logger.Error(ctx, "twilio media stream read failed", err)
				}
			}
			return
		}

		var event MediaEvent
		if err := json.Unmarshal(msg, &event); err != nil {
			t.logger.Error(ctx, "failed to parse twilio media event", err)
			continue
		}

		switch event.Event {
		case "start":
			t.streamSid = event.Start.StreamSid
			t.logger.Info(ctx, fmt.Sprintf("twilio stream started: %s", t.streamSid))

		case "media":
			mulaw, err := audio.Base64ToBytes(event.Media.Payload)
			if err != nil {
				t.logger.Error(ctx, "failed to decode twilio media payload", err)
				continue
			}
			pcm := audio.ConvertMuLawToPCM16kHz(mulaw)

			select {
			case t.in <- pcm:
			case <-t.done:
				return
			default:
				t.logger.Warn(ctx, "inbound audio buffer full, dropping frame")
			}

		case "stop":
			t.logger.Info(ctx, fmt.Sprintf("twilio stream stopped: %s", event.Stop.StreamSid))
			return

		default:
			t.logger.Debug(ctx, fmt.Sprintf("ignoring twilio event: %s", event.Event))
		}
	}
}

// SendAudio converts a 24kHz PCM16 chunk to mu-law and writes it to the
// stream as a media event.
func (t *Transport) SendAudio(ctx context.Context, chunk []byte) error {
	select {
	case <-t.done:
		return &providers.TransportError{Op: "send_audio", Err: providers.ErrTransportClosed}
	case <-ctx.Done():
		return &providers.TransportError{Op: "send_audio", Err: ctx.Err()}
	default:
	}

	mulaw := audio.ConvertPCM24kHzToMuLaw8kHz(chunk)
	mediaMsg := map[string]interface{}{
		"event":     "media",
		"streamSid": t.streamSid,
		"media": map[string]string{
			"payload": audio.BytesToBase64(mulaw),
		},
	}
	msgBytes, err := json.Marshal(mediaMsg)
	if err != nil {
		return &providers.TransportError{Op: "send_audio", Err: err}
	}

	t.writeMu.Lock()
	err = t.conn.WriteMessage(websocket.TextMessage, msgBytes)
	t.writeMu.Unlock()
	if err != nil {
		return &providers.TransportError{Op: "send_audio", Err: err}
	}
	return nil
}

// Close signals the receive loop, sends a close frame and tears down the
// connection. Safe to call more than once.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)

		t.writeMu.Lock()
		_ = t.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		t.writeMu.Unlock()

		_ = t.conn.Close()
	})
	return nil
}
