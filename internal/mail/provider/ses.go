package provider

import (
	"context"
	"errors"
	"fmt"

	"recruitment_backend/internal/mail/domain"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"
)

const sesDefaultRegion = "eu-west-1"

// SESSettings are the decrypted parameters of an aws_ses configuration.
// Endpoint overrides the regional endpoint and is only set in tests.
type SESSettings struct {
	AccessKey string
	SecretKey string
	Region    string
	Endpoint  string
}

// SES sends through Amazon SES v2.
type SES struct {
	client *sesv2.Client
	from   From
}

// NewSES builds an SES client with static credentials. SDK-level retries are
// disabled; the gateway owns retry policy.
func NewSES(ctx context.Context, settings SESSettings, from From) (*SES, error) {
	region := settings.Region
	if region == "" {
		region = sesDefaultRegion
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(settings.AccessKey, settings.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := sesv2.NewFromConfig(cfg, func(o *sesv2.Options) {
		o.RetryMaxAttempts = 1
		if settings.Endpoint != "" {
			o.BaseEndpoint = aws.String(settings.Endpoint)
		}
	})
	return &SES{client: client, from: from}, nil
}

func (s *SES) Provider() domain.ProviderType { return domain.ProviderSES }

// Send implements Sender.
func (s *SES) Send(ctx context.Context, msg domain.Message) (domain.Result, error) {
	body := &types.Body{}
	if msg.HTML != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")}
	}
	if msg.Text != "" {
		body.Text = &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")}
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from.header()),
		Destination:      &types.Destination{ToAddresses: msg.To},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body:    body,
			},
		},
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return domain.Result{}, classifySES(err)
	}
	return domain.Result{Provider: domain.ProviderSES, MessageID: aws.ToString(out.MessageId)}, nil
}

var sesTransientCodes = map[string]bool{
	"Throttling":                      true,
	"ThrottlingException":             true,
	"TooManyRequestsException":        true,
	"LimitExceededException":          true,
	"InternalFailure":                 true,
	"ServiceUnavailable":              true,
	"RequestTimeout":                  true,
	"RequestTimeoutException":         true,
	"ConcurrentModificationException": true,
}

func classifySES(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if sesTransientCodes[apiErr.ErrorCode()] || apiErr.ErrorFault() == smithy.FaultServer {
			return domain.Transient(domain.ProviderSES, err)
		}
		return domain.Permanent(domain.ProviderSES, err)
	}
	if errors.Is(err, context.Canceled) {
		return domain.Permanent(domain.ProviderSES, err)
	}
	return domain.Transient(domain.ProviderSES, err)
}
