package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	appErrors "github.com/juliancabezast/rentfinder-cleveland-sub000/internal/errors"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/model"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/pkg/httpretry"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/pkg/logger"
)

// VoiceAdaptor places an outbound call with the voice-agent provider. The
// conversation itself is the provider's business; we only get a call id back.
type VoiceAdaptor struct {
	baseURL  string
	apiKey   string
	callerID string
	http     httpretry.HTTPDoer
}

func NewVoiceAdaptor(baseURL string, creds model.ChannelCredentials, client httpretry.HTTPDoer) *VoiceAdaptor {
	return &VoiceAdaptor{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   creds.VoiceAPIKey,
		callerID: creds.VoiceCallerID,
		http:     client,
	}
}

func (a *VoiceAdaptor) Channel() model.Channel { return model.ChannelVoice }

type callRequest struct {
	To       string            `json:"to"`
	From     string            `json:"from"`
	Script   string            `json:"script,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type callResponse struct {
	CallID string `json:"call_id"`
}

func (a *VoiceAdaptor) Send(ctx context.Context, req Request) (*Result, error) {
	const ch = string(model.ChannelVoice)
	if a.baseURL == "" || a.apiKey == "" || a.callerID == "" {
		return nil, appErrors.NewDispatchError(appErrors.KindConfiguration, ch,
			fmt.Errorf("voice provider is not configured"))
	}

	payload, err := json.Marshal(callRequest{To: req.To, From: a.callerID, Script: req.Body, Metadata: req.Metadata})
	if err != nil {
		return nil, appErrors.NewDispatchError(appErrors.KindConfiguration, ch, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/calls", bytes.NewReader(payload))
	if err != nil {
		return nil, appErrors.NewDispatchError(appErrors.KindConfiguration, ch, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(httpReq)
	if err != nil {
		return nil, appErrors.NewDispatchError(appErrors.KindTransient, ch, err)
	}
	defer resp.Body.Close()
	body := readBody(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, classifyStatus(ch, resp.StatusCode, body, func(status int, _ []byte) bool {
			return status == http.StatusBadRequest || status == http.StatusUnprocessableEntity
		})
	}

	var r callResponse
	if err := json.Unmarshal(body, &r); err != nil || r.CallID == "" {
		// the call may be ringing already; the caller must not retry
		return nil, appErrors.NewDispatchError(appErrors.KindTransient, ch,
			fmt.Errorf("unreadable provider response: %s", truncate(body, 256)))
	}
	logger.Info("call placed", "to", req.To, "provider_id", r.CallID)
	return &Result{ProviderID: r.CallID, SentAt: time.Now().UTC()}, nil
}
