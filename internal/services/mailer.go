package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/samuelogino/taskpay/internal/config"
	"gopkg.in/gomail.v2"
)

// Mailer sends a plain-text e-mail.
type Mailer interface {
	Send(ctx context.Context, to string, subject string, body string) error
}

// NewMailer picks SMTP when SMTP_HOST is set, then SES when AWS_REGION is
// set. It returns nil when mail is not configured.
func NewMailer(ctx context.Context, cfg config.Config) (Mailer, error) {
	if cfg.MailFrom == "" {
		slog.Warn("MAIL_FROM not configured, e-mail notifications disabled")
		return nil, nil
	}

	if cfg.SMTPHost != "" {
		slog.Info("sending e-mail through SMTP", "host", cfg.SMTPHost, "port", cfg.SMTPPort)
		return &SMTPMailer{
			dialer:   gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
			from:     cfg.MailFrom,
			fromName: cfg.MailFromName,
		}, nil
	}

	if cfg.AWSRegion != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		slog.Info("sending e-mail through SES", "region", cfg.AWSRegion)
		return &SESMailer{
			client:   sesv2.NewFromConfig(awsCfg),
			from:     cfg.MailFrom,
			fromName: cfg.MailFromName,
		}, nil
	}

	slog.Warn("no mail transport configured, e-mail notifications disabled")
	return nil, nil
}

type SMTPMailer struct {
	dialer   *gomail.Dialer
	from     string
	fromName string
}

func (mailer *SMTPMailer) Send(ctx context.Context, to string, subject string, body string) error {
	message := gomail.NewMessage()
	message.SetAddressHeader("From", mailer.from, mailer.fromName)
	message.SetHeader("To", to)
	message.SetHeader("Subject", subject)
	message.SetBody("text/plain", body)

	if err := mailer.dialer.DialAndSend(message); err != nil {
		return fmt.Errorf("sending smtp mail: %w", err)
	}
	return nil
}

type SESMailer struct {
	client   *sesv2.Client
	from     string
	fromName string
}

func (mailer *SESMailer) Send(ctx context.Context, to string, subject string, body string) error {
	_, err := mailer.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", mailer.fromName, mailer.from)),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("sending ses mail: %w", err)
	}
	return nil
}
