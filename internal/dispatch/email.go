package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"

	appErrors "github.com/juliancabezast/rentfinder-cleveland-sub000/internal/errors"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/model"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/pkg/logger"
)

// sesAPI is the slice of the SES v2 client the adaptor uses.
type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type EmailAdaptor struct {
	client sesAPI
	from   string
}

// NewEmailAdaptor builds an SES v2 client. Static keys are used when the
// organization (or the defaults) provide them; otherwise the default AWS
// credential chain applies.
func NewEmailAdaptor(ctx context.Context, creds model.ChannelCredentials) (*EmailAdaptor, error) {
	region := creds.EmailRegion
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if creds.EmailAPIKey != "" && creds.EmailAPISecret != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.EmailAPIKey, creds.EmailAPISecret, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, appErrors.NewDispatchError(appErrors.KindConfiguration, string(model.ChannelEmail),
			fmt.Errorf("load aws config: %w", err))
	}
	return &EmailAdaptor{client: sesv2.NewFromConfig(cfg), from: creds.EmailFrom}, nil
}

func (a *EmailAdaptor) Channel() model.Channel { return model.ChannelEmail }

func (a *EmailAdaptor) Send(ctx context.Context, req Request) (*Result, error) {
	const ch = string(model.ChannelEmail)
	if a.from == "" {
		return nil, appErrors.NewDispatchError(appErrors.KindConfiguration, ch,
			fmt.Errorf("email sender address is not configured"))
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(a.from),
		Destination:      &types.Destination{ToAddresses: []string{req.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(req.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(req.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
	}
	for k, v := range req.Metadata {
		if v == "" {
			continue
		}
		input.EmailTags = append(input.EmailTags, types.MessageTag{Name: aws.String(k), Value: aws.String(v)})
	}

	out, err := a.client.SendEmail(ctx, input)
	if err != nil {
		return nil, appErrors.NewDispatchError(classifySESError(err), ch, err)
	}

	id := aws.ToString(out.MessageId)
	logger.Info("email accepted by provider", "email", req.To, "provider_id", id)
	return &Result{ProviderID: id, SentAt: time.Now().UTC()}, nil
}

func classifySESError(err error) appErrors.DispatchKind {
	var (
		rejected   *types.MessageRejected
		badRequest *types.BadRequestException
		suspended  *types.AccountSuspendedException
		mailFrom   *types.MailFromDomainNotVerifiedException
		paused     *types.SendingPausedException
		notFound   *types.NotFoundException
	)
	switch {
	case errors.As(err, &rejected), errors.As(err, &badRequest):
		return appErrors.KindRecipientRejected
	case errors.As(err, &suspended), errors.As(err, &mailFrom), errors.As(err, &paused), errors.As(err, &notFound):
		return appErrors.KindConfiguration
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "UnrecognizedClientException", "InvalidClientTokenId", "SignatureDoesNotMatch", "AccessDeniedException":
			return appErrors.KindConfiguration
		}
	}
	return appErrors.KindTransient
}
