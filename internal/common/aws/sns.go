// internal/common/aws/sns.go
package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SNSClient struct {
	client SNSAPI
}

func NewSNSClient(ctx context.Context, region string) (*SNSClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return NewSNSClientWithAPI(sns.NewFromConfig(cfg)), nil
}

func NewSNSClientWithAPI(api SNSAPI) *SNSClient {
	return &SNSClient{client: api}
}

// SendSMS publishes a direct SMS to a phone number in E.164 form.
func (s *SNSClient) SendSMS(ctx context.Context, phone, message string) (string, error) {
	out, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(phone),
		Message:     aws.String(message),
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.MessageId), nil
}
