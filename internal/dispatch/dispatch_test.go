package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/juliancabezast/rentfinder-cleveland-sub000/internal/errors"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/model"
)

var smsCreds = model.ChannelCredentials{
	MessagingAccountID: "AC123",
	MessagingSecret:    "s3cret",
	MessagingSender:    "+12165550100",
}

func TestEnsureOptOut(t *testing.T) {
	assert.Equal(t, "Hi Ana\n\n"+SMSOptOut, EnsureOptOut(model.ChannelSMS, "Hi Ana"))
	assert.Equal(t, "Hi Ana, reply STOP to end", EnsureOptOut(model.ChannelSMS, "Hi Ana, reply STOP to end"))
	assert.Equal(t, "Text stop anytime", EnsureOptOut(model.ChannelSMS, "Text stop anytime"))
	assert.Equal(t, "Body\n\n"+EmailOptOut, EnsureOptOut(model.ChannelEmail, "Body\n"))
	assert.Equal(t, "Click to Unsubscribe", EnsureOptOut(model.ChannelEmail, "Click to Unsubscribe"))
	assert.Equal(t, "script", EnsureOptOut(model.ChannelVoice, "script"))
	assert.Equal(t, SMSOptOut, EnsureOptOut(model.ChannelSMS, ""))
}

func TestSMSSendSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Accounts/AC123/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "s3cret", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "+12165550123", r.PostForm.Get("To"))
		assert.Equal(t, "+12165550100", r.PostForm.Get("From"))
		assert.Equal(t, "Hello", r.PostForm.Get("Body"))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM42","status":"queued"}`))
	}))
	defer srv.Close()

	a := NewSMSAdaptor(srv.URL, smsCreds, srv.Client())
	res, err := a.Send(context.Background(), Request{To: "+12165550123", Body: "Hello"})
	require.NoError(t, err)
	assert.Equal(t, "SM42", res.ProviderID)
	assert.False(t, res.SentAt.IsZero())
}

func TestSMSErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   appErrors.DispatchKind
	}{
		{"invalid number", http.StatusBadRequest, `{"code":21211,"message":"Invalid 'To' Phone Number"}`, appErrors.KindRecipientRejected},
		{"unsubscribed", http.StatusBadRequest, `{"code":21610,"message":"Attempt to send to unsubscribed recipient"}`, appErrors.KindRecipientRejected},
		{"bad sender", http.StatusBadRequest, `{"code":21606,"message":"The From phone number is not valid"}`, appErrors.KindConfiguration},
		{"bad credentials", http.StatusUnauthorized, `{"code":20003}`, appErrors.KindConfiguration},
		{"throttled", http.StatusTooManyRequests, `{}`, appErrors.KindTransient},
		{"provider down", http.StatusServiceUnavailable, `oops`, appErrors.KindTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewSMSAdaptor(srv.URL, smsCreds, srv.Client()).Send(context.Background(), Request{To: "+1", Body: "x"})
			require.Error(t, err)
			assert.Equal(t, tt.want, appErrors.DispatchKindOf(err))
		})
	}
}

func TestSMSNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewSMSAdaptor(url, smsCreds, http.DefaultClient).Send(context.Background(), Request{To: "+1", Body: "x"})
	assert.Equal(t, appErrors.KindTransient, appErrors.DispatchKindOf(err))
}

func TestSMSMissingCredentials(t *testing.T) {
	_, err := NewSMSAdaptor("http://unused", model.ChannelCredentials{}, http.DefaultClient).
		Send(context.Background(), Request{To: "+1", Body: "x"})
	var de *appErrors.DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, appErrors.KindConfiguration, de.Kind)
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func TestEmailSend(t *testing.T) {
	fake := &fakeSES{}
	a := &EmailAdaptor{client: fake, from: "leasing@example.com"}

	res, err := a.Send(context.Background(), Request{
		To: "ana@example.com", Subject: "Still looking?", Body: "Hi Ana",
		Metadata: map[string]string{"task_id": "task-1", "campaign_id": ""},
	})
	require.NoError(t, err)
	assert.Equal(t, "ses-1", res.ProviderID)
	assert.Equal(t, "leasing@example.com", aws.ToString(fake.input.FromEmailAddress))
	assert.Equal(t, []string{"ana@example.com"}, fake.input.Destination.ToAddresses)
	assert.Equal(t, "Still looking?", aws.ToString(fake.input.Content.Simple.Subject.Data))
	require.Len(t, fake.input.EmailTags, 1, "empty metadata values are not sent as tags")
	assert.Equal(t, "task_id", aws.ToString(fake.input.EmailTags[0].Name))
}

func TestEmailErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want appErrors.DispatchKind
	}{
		{"rejected", &types.MessageRejected{Message: aws.String("Email address is not verified")}, appErrors.KindRecipientRejected},
		{"suspended", &types.AccountSuspendedException{}, appErrors.KindConfiguration},
		{"domain", &types.MailFromDomainNotVerifiedException{}, appErrors.KindConfiguration},
		{"paused", &types.SendingPausedException{}, appErrors.KindConfiguration},
		{"bad keys", &smithy.GenericAPIError{Code: "UnrecognizedClientException"}, appErrors.KindConfiguration},
		{"throttled", &types.TooManyRequestsException{}, appErrors.KindTransient},
		{"network", errors.New("connection reset"), appErrors.KindTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &EmailAdaptor{client: &fakeSES{err: tt.err}, from: "leasing@example.com"}
			_, err := a.Send(context.Background(), Request{To: "ana@example.com", Body: "x"})
			assert.Equal(t, tt.want, appErrors.DispatchKindOf(err))
		})
	}
}

func TestEmailWithoutSender(t *testing.T) {
	a := &EmailAdaptor{client: &fakeSES{}}
	_, err := a.Send(context.Background(), Request{To: "ana@example.com", Body: "x"})
	assert.Equal(t, appErrors.KindConfiguration, appErrors.DispatchKindOf(err))
}

func TestVoiceSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/calls", r.URL.Path)
		assert.Equal(t, "Bearer vk", r.Header.Get("Authorization"))
		var body callRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "+12165550123", body.To)
		assert.Equal(t, "+12165550199", body.From)
		assert.Equal(t, "task-1", body.Metadata["task_id"])
		w.Write([]byte(`{"call_id":"call-9"}`))
	}))
	defer srv.Close()

	creds := model.ChannelCredentials{VoiceAPIKey: "vk", VoiceCallerID: "+12165550199"}
	res, err := NewVoiceAdaptor(srv.URL, creds, srv.Client()).Send(context.Background(), Request{
		To: "+12165550123", Body: "Ask about the showing", Metadata: map[string]string{"task_id": "task-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "call-9", res.ProviderID)
}

func TestVoiceRejectedNumber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"number is not dialable"}`))
	}))
	defer srv.Close()

	creds := model.ChannelCredentials{VoiceAPIKey: "vk", VoiceCallerID: "+12165550199"}
	_, err := NewVoiceAdaptor(srv.URL, creds, srv.Client()).Send(context.Background(), Request{To: "+1"})
	assert.Equal(t, appErrors.KindRecipientRejected, appErrors.DispatchKindOf(err))
}

type recordingAdaptor struct {
	ch   model.Channel
	sent []Request
	err  error
}

func (r *recordingAdaptor) Channel() model.Channel { return r.ch }
func (r *recordingAdaptor) Send(ctx context.Context, req Request) (*Result, error) {
	r.sent = append(r.sent, req)
	if r.err != nil {
		return nil, r.err
	}
	return &Result{ProviderID: "p-1"}, nil
}

func TestDispatcherMergesCredentialsAndCaches(t *testing.T) {
	var (
		built   []model.ChannelCredentials
		adaptor = &recordingAdaptor{ch: model.ChannelSMS}
	)
	d := NewDispatcherWith(smsCreds, func(ch model.Channel, creds model.ChannelCredentials) (Adaptor, error) {
		built = append(built, creds)
		return adaptor, nil
	})
	org := &model.Organization{ID: "org-1", Credentials: model.ChannelCredentials{MessagingSender: "+13305550100"}}

	for i := 0; i < 2; i++ {
		_, err := d.Dispatch(context.Background(), org, model.ChannelSMS, Request{To: "+12165550123", Body: "Hi"})
		require.NoError(t, err)
	}

	require.Len(t, built, 1)
	assert.Equal(t, "+13305550100", built[0].MessagingSender)
	assert.Equal(t, "AC123", built[0].MessagingAccountID)
	require.Len(t, adaptor.sent, 2)
	assert.True(t, strings.HasSuffix(adaptor.sent[0].Body, SMSOptOut))
}

func TestDispatcherRejectsMissingAddress(t *testing.T) {
	d := NewDispatcherWith(smsCreds, func(ch model.Channel, creds model.ChannelCredentials) (Adaptor, error) {
		t.Fatal("provider must not be built for an empty address")
		return nil, nil
	})

	_, err := d.Dispatch(context.Background(), nil, model.ChannelEmail, Request{Body: "x"})
	assert.Equal(t, appErrors.KindRecipientRejected, appErrors.DispatchKindOf(err))
}

func TestDispatcherWrapsPlainErrors(t *testing.T) {
	d := NewDispatcherWith(smsCreds, func(ch model.Channel, creds model.ChannelCredentials) (Adaptor, error) {
		if ch == model.ChannelWhatsApp {
			return nil, errors.New("no whatsapp provider")
		}
		return &recordingAdaptor{ch: ch, err: errors.New("boom")}, nil
	})

	_, err := d.Dispatch(context.Background(), nil, model.ChannelWhatsApp, Request{To: "+1"})
	assert.Equal(t, appErrors.KindConfiguration, appErrors.DispatchKindOf(err))

	_, err = d.Dispatch(context.Background(), nil, model.ChannelSMS, Request{To: "+1"})
	var de *appErrors.DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, appErrors.KindTransient, de.Kind)
}
