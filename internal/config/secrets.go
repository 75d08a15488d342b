package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ssmAPI is the subset of *ssm.Client used to read parameters.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ParamGetter reads a single named secret.
type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// ParamStore reads secrets from AWS SSM Parameter Store.
type ParamStore struct {
	api ssmAPI
}

// NewParamStore wraps an SSM API implementation.
func NewParamStore(api ssmAPI) (*ParamStore, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &ParamStore{api: api}, nil
}

// NewSSMParamStore builds a ParamStore from the default AWS credential chain.
func NewSSMParamStore(ctx context.Context) (*ParamStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("paramstore: load AWS config: %w", err)
	}
	return NewParamStore(ssm.NewFromConfig(awsCfg))
}

// GetParameter returns the decrypted value of the named parameter.
func (p *ParamStore) GetParameter(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}

	out, err := p.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.New("paramstore: parameter missing value")
	}
	return aws.ToString(out.Parameter.Value), nil
}

// tokenPayload is the JSON shape accepted for stored API keys.
type tokenPayload struct {
	Token string `json:"token"`
}

// ResolveAPIKey returns the provider API key. When LLMAPIKeyParam is set the
// key is read from the parameter store, either as a bare string or as
// {"token": "..."}; otherwise the environment value is used.
func ResolveAPIKey(ctx context.Context, cfg *Config, getter ParamGetter) (string, error) {
	if cfg.LLMAPIKeyParam == "" {
		return cfg.APIKey(), nil
	}
	if getter == nil {
		return "", errors.New("config: parameter store is not configured")
	}

	raw, err := getter.GetParameter(ctx, cfg.LLMAPIKeyParam)
	if err != nil {
		return "", fmt.Errorf("config: fetch API key: %w", err)
	}
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "{") {
		var tp tokenPayload
		if err := json.Unmarshal([]byte(raw), &tp); err != nil {
			return "", fmt.Errorf("config: unmarshal API key payload: %w", err)
		}
		raw = strings.TrimSpace(tp.Token)
	}
	if raw == "" {
		return "", errors.New("config: API key is empty")
	}
	return raw, nil
}
