package config

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port               string `envconfig:"PORT" default:"8080"`
	Environment        string `envconfig:"ENV" default:"development"`
	DBConnectionString string `envconfig:"DB_CONNECTION_STRING" required:"true"`
	JWTSecret          string `envconfig:"JWT_SECRET" required:"true"`

	// Stripe settings
	StripeSecretKey       string `envconfig:"STRIPE_SECRET_KEY" required:"true"`
	StripeWebhookSecret   string `envconfig:"STRIPE_WEBHOOK_SECRET" required:"true"`
	StripePricePro        string `envconfig:"STRIPE_PRICE_PRO" required:"true"`
	StripePriceUnlimited  string `envconfig:"STRIPE_PRICE_UNLIMITED" required:"true"`
	StripePortalReturnURL string `envconfig:"STRIPE_PORTAL_RETURN_URL" required:"true"`

	// Media storage (S3-compatible)
	S3URL       string `envconfig:"S3_URL" required:"true"`
	S3Bucket    string `envconfig:"S3_BUCKET" required:"true"`
	S3Region    string `envconfig:"S3_REGION" required:"true"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY" required:"true"`
	S3SecretKey string `envconfig:"S3_SECRET_KEY" required:"true"`

	// GCP settings (billing event fan-out, platform token storage)
	GCPProjectID     string `envconfig:"GCP_PROJECT_ID"`
	BillingTopicName string `envconfig:"BILLING_TOPIC_NAME" default:"billing-events"`

	// Social platform fallback credentials (used when no per-user token exists)
	LinkedInAppToken string `envconfig:"LINKEDIN_APP_TOKEN"`

	// Outbound email (SMTP)
	SMTPHost     string `envconfig:"SMTP_HOST"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername string `envconfig:"SMTP_USERNAME"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	SMTPFrom     string `envconfig:"SMTP_FROM"`

	// Dispatcher settings
	DispatchQueueName           string `envconfig:"DISPATCH_QUEUE_NAME" default:"dispatch_queue"`
	DispatchDeadLetterQueueName string `envconfig:"DISPATCH_DEAD_LETTER_QUEUE_NAME" default:"dispatch_queue_dlq"`
	DispatchCallbackURL         string `envconfig:"DISPATCH_CALLBACK_URL" required:"true"`
	DispatchSigningSecret       string `envconfig:"DISPATCH_SIGNING_SECRET" required:"true"`
	DispatchPollTimeoutSec      int    `envconfig:"DISPATCH_POLL_TIMEOUT_SEC" default:"30"`
	DispatchPollMaxMsg          int    `envconfig:"DISPATCH_POLL_MAX_MSG" default:"1"`
	DispatchMaxRetries          int    `envconfig:"DISPATCH_MAX_RETRIES" default:"3"`
	DispatchBackoffInitialSec   int    `envconfig:"DISPATCH_BACKOFF_INITIAL_SEC" default:"1"`
	DispatchBackoffMaxSec       int    `envconfig:"DISPATCH_BACKOFF_MAX_SEC" default:"60"`
	DispatchRequestTimeoutSec   int    `envconfig:"DISPATCH_REQUEST_TIMEOUT_SEC" default:"120"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
