// Package dispatch sends rendered content through a provider for one channel.
// Adaptors are built per organization from its credentials, with empty
// fields filled from the process-wide defaults.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/config"
	appErrors "github.com/juliancabezast/rentfinder-cleveland-sub000/internal/errors"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/model"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/pkg/httpretry"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/pkg/logger"
)

type Request struct {
	To       string
	Subject  string
	Body     string
	Metadata map[string]string
}

type Result struct {
	ProviderID string
	SentAt     time.Time
}

// Adaptor is one provider for one channel. Send returns a
// *appErrors.DispatchError on failure.
type Adaptor interface {
	Channel() model.Channel
	Send(ctx context.Context, req Request) (*Result, error)
}

// BuildFunc constructs an adaptor from resolved credentials.
type BuildFunc func(ch model.Channel, creds model.ChannelCredentials) (Adaptor, error)

type Dispatcher struct {
	defaults model.ChannelCredentials
	build    BuildFunc
	adaptors sync.Map // adaptorKey -> Adaptor
}

type adaptorKey struct {
	ch    model.Channel
	creds model.ChannelCredentials
}

// NewDispatcher wires the real SMS, email and voice providers.
func NewDispatcher(cfg config.ChannelDefaults) *Dispatcher {
	return NewDispatcherWith(cfg.Credentials(), ProviderBuilder(cfg))
}

func NewDispatcherWith(defaults model.ChannelCredentials, build BuildFunc) *Dispatcher {
	return &Dispatcher{defaults: defaults, build: build}
}

// ProviderBuilder returns the BuildFunc used in production.
func ProviderBuilder(cfg config.ChannelDefaults) BuildFunc {
	return func(ch model.Channel, creds model.ChannelCredentials) (Adaptor, error) {
		client := &http.Client{Timeout: cfg.ProviderTimeout}
		switch ch {
		case model.ChannelSMS:
			var doer httpretry.HTTPDoer = client
			if cfg.ProviderRetries > 0 {
				doer = httpretry.NewRetryClient(client, cfg.ProviderRetries)
			}
			return NewSMSAdaptor(cfg.MessagingBaseURL, creds, doer), nil
		case model.ChannelEmail:
			return NewEmailAdaptor(context.Background(), creds)
		case model.ChannelVoice:
			// never retried; a repeat would place a second call
			return NewVoiceAdaptor(cfg.VoiceBaseURL, creds, client), nil
		}
		return nil, fmt.Errorf("%w: %s", appErrors.ErrUnsupportedChannel, ch)
	}
}

// Dispatch resolves the organization's adaptor and sends. A missing address
// is rejected without calling the provider.
func (d *Dispatcher) Dispatch(ctx context.Context, org *model.Organization, ch model.Channel, req Request) (*Result, error) {
	if req.To == "" {
		return nil, appErrors.NewDispatchError(appErrors.KindRecipientRejected, string(ch),
			fmt.Errorf("lead has no %s address", ch))
	}

	adaptor, err := d.adaptorFor(org, ch)
	if err != nil {
		return nil, err
	}

	req.Body = EnsureOptOut(ch, req.Body)
	res, err := adaptor.Send(ctx, req)
	if err != nil {
		var de *appErrors.DispatchError
		if !errors.As(err, &de) {
			err = appErrors.NewDispatchError(appErrors.KindTransient, string(ch), err)
		}
		return nil, err
	}
	return res, nil
}

func (d *Dispatcher) adaptorFor(org *model.Organization, ch model.Channel) (Adaptor, error) {
	creds := d.defaults
	if org != nil {
		creds = org.Credentials.Merge(d.defaults)
	}
	key := adaptorKey{ch: ch, creds: creds}
	if a, ok := d.adaptors.Load(key); ok {
		return a.(Adaptor), nil
	}

	a, err := d.build(ch, creds)
	if err != nil {
		var de *appErrors.DispatchError
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, appErrors.NewDispatchError(appErrors.KindConfiguration, string(ch), err)
	}
	d.adaptors.Store(key, a)
	orgID := ""
	if org != nil {
		orgID = org.ID
	}
	logger.Debug("built channel adaptor", "channel", ch, "organization_id", orgID)
	return a, nil
}
