package twilio

import (
	"context"
	"fmt"
	"outcall-server/internal/config"
	"outcall-server/internal/observability"

	twilioclient "github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/twilio/twilio-go/twiml"
)

// Dialer places outbound calls through the Twilio REST API.
type Dialer struct {
	client *twilioclient.RestClient
	cfg    config.TwilioConfig
	logger *observability.Logger
}

func NewDialer(cfg config.TwilioConfig, logger *observability.Logger) *Dialer {
	client := twilioclient.NewRestClientWithParams(twilioclient.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Dialer{client: client, cfg: cfg, logger: logger}
}

// Dial starts an outbound call to the given number. Twilio fetches TwiML from
// answerURL when the callee picks up; the returned SID identifies the call leg.
func (d *Dialer) Dial(ctx context.Context, toNumber string, answerURL string) (string, error) {
	params := &twilioapi.CreateCallParams{}
	params.SetTo(toNumber)
	params.SetFrom(d.cfg.FromNumber)
	params.SetUrl(answerURL)

	resp, err := d.client.Api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("creating twilio call: %w", err)
	}
	if resp.Sid == nil {
		return "", fmt.Errorf("twilio call response missing sid")
	}

	d.logger.Info(ctx, fmt.Sprintf("placed outbound call %s to %s", *resp.Sid, toNumber))
	return *resp.Sid, nil
}

// AnswerTwiML builds the TwiML response that bridges an answered call onto the
// media stream websocket for the given call ID.
func AnswerTwiML(mediaWSURL string, callID string) (string, error) {
	say := &twiml.VoiceSay{
		Message: "Hello! One moment while I connect you.",
	}

	stream := twiml.VoiceStream{
		Name: "outbound-call-stream",
		Url:  fmt.Sprintf("%s?call_id=%s", mediaWSURL, callID),
	}
	connect := twiml.VoiceConnect{
		InnerElements: []twiml.Element{stream},
	}

	return twiml.Voice([]twiml.Element{say, connect})
}
