package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// ErrNoAPIKey is returned when neither a key nor a secret id is configured.
var ErrNoAPIKey = errors.New("gemini api key is required: set GEMINI_API_KEY or gemini_api_key_secret_id")

// SecretGetter is the part of the Secrets Manager API used to resolve the key.
type SecretGetter interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// NewSecretsManager returns a Secrets Manager client using the default AWS credential chain.
func NewSecretsManager(ctx context.Context, region string) (SecretGetter, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return secretsmanager.NewFromConfig(cfg), nil
}

// ResolveAPIKey returns the configured key, or fetches it from Secrets Manager
// when only a secret id is set. The secret is either the bare key or a JSON
// object with a "gemini_api_key" field.
func (c *Config) ResolveAPIKey(ctx context.Context, secrets SecretGetter) (string, error) {
	if c.GeminiAPIKey != "" {
		return c.GeminiAPIKey, nil
	}
	if c.GeminiAPIKeySecretID == "" {
		return "", ErrNoAPIKey
	}
	if secrets == nil {
		return "", fmt.Errorf("no secrets client to resolve %s", c.GeminiAPIKeySecretID)
	}

	out, err := secrets.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(c.GeminiAPIKeySecretID),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", c.GeminiAPIKeySecretID, err)
	}
	raw := strings.TrimSpace(aws.ToString(out.SecretString))
	if raw == "" {
		return "", fmt.Errorf("secret %s has no string value", c.GeminiAPIKeySecretID)
	}

	if strings.HasPrefix(raw, "{") {
		var fields map[string]string
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			return "", fmt.Errorf("secret %s is not valid JSON: %w", c.GeminiAPIKeySecretID, err)
		}
		key := fields["gemini_api_key"]
		if key == "" {
			return "", fmt.Errorf("secret %s has no gemini_api_key field", c.GeminiAPIKeySecretID)
		}
		return key, nil
	}
	return raw, nil
}
