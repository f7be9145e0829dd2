package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	appErrors "github.com/juliancabezast/rentfinder-cleveland-sub000/internal/errors"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/model"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/pkg/httpretry"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/pkg/logger"
)

// Provider error codes that concern the destination number rather than the
// account.
var smsRecipientCodes = map[int]bool{
	21211: true, // invalid 'To' number
	21214: true, // 'To' number cannot be reached
	21408: true, // region not enabled for 'To'
	21610: true, // recipient replied STOP
	21612: true, // 'To' number not reachable via this sender
	21614: true, // 'To' number is not a mobile number
}

// SMSAdaptor speaks the Twilio-style Messages REST API.
type SMSAdaptor struct {
	baseURL   string
	accountID string
	secret    string
	sender    string
	http      httpretry.HTTPDoer
}

func NewSMSAdaptor(baseURL string, creds model.ChannelCredentials, client httpretry.HTTPDoer) *SMSAdaptor {
	return &SMSAdaptor{
		baseURL:   strings.TrimRight(baseURL, "/"),
		accountID: creds.MessagingAccountID,
		secret:    creds.MessagingSecret,
		sender:    creds.MessagingSender,
		http:      client,
	}
}

func (a *SMSAdaptor) Channel() model.Channel { return model.ChannelSMS }

type smsResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (a *SMSAdaptor) Send(ctx context.Context, req Request) (*Result, error) {
	const ch = string(model.ChannelSMS)
	if a.accountID == "" || a.secret == "" || a.sender == "" {
		return nil, appErrors.NewDispatchError(appErrors.KindConfiguration, ch,
			fmt.Errorf("messaging credentials are not configured"))
	}

	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", a.sender)
	form.Set("Body", req.Body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", a.baseURL, url.PathEscape(a.accountID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, appErrors.NewDispatchError(appErrors.KindConfiguration, ch, err)
	}
	httpReq.SetBasicAuth(a.accountID, a.secret)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := a.http.Do(httpReq)
	if err != nil {
		return nil, appErrors.NewDispatchError(appErrors.KindTransient, ch, err)
	}
	defer resp.Body.Close()
	body := readBody(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, classifyStatus(ch, resp.StatusCode, body, func(status int, body []byte) bool {
			var r smsResponse
			if json.Unmarshal(body, &r) != nil {
				return false
			}
			return smsRecipientCodes[r.Code]
		})
	}

	var r smsResponse
	if err := json.Unmarshal(body, &r); err != nil || r.SID == "" {
		return nil, appErrors.NewDispatchError(appErrors.KindTransient, ch,
			fmt.Errorf("unreadable provider response: %s", truncate(body, 256)))
	}
	logger.Info("sms accepted by provider", "to", req.To, "provider_id", r.SID, "provider_status", r.Status)
	return &Result{ProviderID: r.SID, SentAt: time.Now().UTC()}, nil
}
