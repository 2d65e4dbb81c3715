package telephony

import (
	"context"
	"errors"
	"fmt"

	"dialer-platform/internal/config"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioGateway places calls through the Twilio REST API.
type TwilioGateway struct {
	client *twilio.RestClient
}

func NewTwilioGateway(cfg config.TwilioConfig) (*TwilioGateway, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errors.New("telephony: twilio credentials are required")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioGateway{client: client}, nil
}

func (g *TwilioGateway) Name() string { return "twilio" }

func (g *TwilioGateway) HealthCheck(ctx context.Context) error {
	// Credential validation happens on the first PlaceCall; Twilio has no
	// cheap unauthenticated ping worth a request here.
	if g.client == nil {
		return errors.New("telephony: twilio client not initialized")
	}
	return nil
}

func (g *TwilioGateway) PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error) {
	if req.WorkspaceID == "" {
		return PlaceCallResult{}, errors.New("telephony: workspace_id required")
	}
	if req.To == "" || req.From == "" {
		return PlaceCallResult{}, errors.New("telephony: to and from required")
	}
	if req.StatusCallbackURL == "" {
		return PlaceCallResult{}, errors.New("telephony: status callback url required")
	}

	params := &twilioapi.CreateCallParams{}
	params.SetTo(req.To)
	params.SetFrom(req.From)
	// The answer URL re-enters the webhook handler, which asks the lifecycle
	// machine for a directive and responds with TwiML.
	params.SetUrl(req.StatusCallbackURL)
	params.SetStatusCallback(req.StatusCallbackURL)
	params.SetStatusCallbackEvent([]string{"initiated", "ringing", "answered", "completed"})
	params.SetStatusCallbackMethod("POST")
	if req.RingTimeout > 0 {
		params.SetTimeout(int(req.RingTimeout.Seconds()))
	}
	if req.MachineDetection {
		params.SetMachineDetection("Enable")
		if req.MachineDetectionTimeout > 0 {
			params.SetMachineDetectionTimeout(int(req.MachineDetectionTimeout.Seconds()))
		}
	}

	resp, err := g.client.Api.CreateCall(params)
	if err != nil {
		return PlaceCallResult{}, fmt.Errorf("telephony: twilio create call: %w", err)
	}
	if resp.Sid == nil || *resp.Sid == "" {
		return PlaceCallResult{}, errors.New("telephony: twilio returned no call sid")
	}
	return PlaceCallResult{ProviderCallID: *resp.Sid}, nil
}

var _ Gateway = (*TwilioGateway)(nil)
