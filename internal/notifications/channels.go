package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// sesAPI is the slice of the SES v2 client the email channel uses.
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// snsAPI is the slice of the SNS client the sms channel uses.
type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// EmailChannel delivers events over SES.
type EmailChannel struct {
	client sesAPI
	sender string
}

func NewEmailChannel(client sesAPI, sender string) *EmailChannel {
	return &EmailChannel{client: client, sender: sender}
}

func (c *EmailChannel) Send(ctx context.Context, to string, eventType string, payload map[string]any) error {
	if to == "" {
		return fmt.Errorf("no email address on file")
	}

	body, _ := json.MarshalIndent(payload, "", "  ")
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(c.sender),
		Destination: &sestypes.Destination{
			ToAddresses: []string{to},
		},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(subjectFor(eventType))},
				Body: &sestypes.Body{
					Text: &sestypes.Content{Data: aws.String(string(body))},
				},
			},
		},
	}

	if _, err := c.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// SMSChannel delivers events over SNS.
type SMSChannel struct {
	client snsAPI
}

func NewSMSChannel(client snsAPI) *SMSChannel {
	return &SMSChannel{client: client}
}

func (c *SMSChannel) Send(ctx context.Context, phone string, eventType string, payload map[string]any) error {
	if phone == "" {
		return fmt.Errorf("no phone number on file")
	}

	message := subjectFor(eventType)
	if projectID, ok := payload["project_id"].(string); ok {
		message = fmt.Sprintf("%s (project %s)", message, projectID)
	}

	input := &sns.PublishInput{
		PhoneNumber: aws.String(phone),
		Message:     aws.String(message),
	}
	if _, err := c.client.Publish(ctx, input); err != nil {
		return fmt.Errorf("failed to send sms: %w", err)
	}
	return nil
}

// subjectFor renders a human subject line for an event type.
func subjectFor(eventType string) string {
	switch eventType {
	case "PROJECT_STATUS_CHANGED":
		return "Your project status changed"
	case "ASSESSMENT_COMPLETED":
		return "An assessment of your project completed"
	case "MANUAL_REVIEW_REQUIRED":
		return "Your project needs manual review"
	case "DISPUTE_FILED":
		return "A dispute was filed on your project"
	case "DISPUTE_RESOLVED":
		return "A dispute on your project was resolved"
	case "DISPUTE_ESCALATED":
		return "A dispute on your project was escalated to mediation"
	default:
		return "Marketplace update"
	}
}
