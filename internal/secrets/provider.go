// Package secrets fetches and caches the search cluster's master credential.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"golang.org/x/sync/singleflight"
)

// Credentials is the master user credential stored in Secrets Manager. The
// field names match the secret's JSON document.
type Credentials struct {
	Username string `json:"opensearch_master_username"`
	Password string `json:"opensearch_master_password"`
}

// SecretsManagerAPI abstracts Secrets Manager operations for dependency inversion.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Provider fetches the credential lazily and caches it for the process
// lifetime. Concurrent first calls share a single in-flight fetch, so the
// secret store is hit at most once.
type Provider struct {
	client    SecretsManagerAPI
	secretARN string

	group  singleflight.Group
	mu     sync.Mutex
	cached *Credentials
}

// NewProvider creates a Provider reading the given secret.
func NewProvider(client SecretsManagerAPI, secretARN string) *Provider {
	return &Provider{client: client, secretARN: secretARN}
}

// Get returns the cached credential, fetching it on first use.
func (p *Provider) Get(ctx context.Context) (Credentials, error) {
	p.mu.Lock()
	if p.cached != nil {
		creds := *p.cached
		p.mu.Unlock()
		return creds, nil
	}
	p.mu.Unlock()

	// The flight is shared across callers; a canceled first caller must not
	// fail the waiters behind it.
	v, err, _ := p.group.Do("credentials", func() (any, error) {
		return p.fetch(context.WithoutCancel(ctx))
	})
	if err != nil {
		return Credentials{}, err
	}
	return v.(Credentials), nil
}

func (p *Provider) fetch(ctx context.Context) (Credentials, error) {
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &p.secretARN,
	})
	if err != nil {
		return Credentials{}, fmt.Errorf("get secret value: %w", err)
	}
	if out.SecretString == nil {
		return Credentials{}, fmt.Errorf("secret %s has no string value", p.secretARN)
	}

	var creds Credentials
	if err := json.Unmarshal([]byte(*out.SecretString), &creds); err != nil {
		return Credentials{}, fmt.Errorf("parse secret: %w", err)
	}
	if creds.Username == "" || creds.Password == "" {
		return Credentials{}, fmt.Errorf("secret %s is missing master username or password", p.secretARN)
	}

	p.mu.Lock()
	p.cached = &creds
	p.mu.Unlock()
	return creds, nil
}

// StaticProvider returns a fixed credential. Used for the local cluster,
// which runs with a non-secret development login.
type StaticProvider struct {
	creds Credentials
}

// NewStaticProvider creates a StaticProvider.
func NewStaticProvider(username, password string) *StaticProvider {
	return &StaticProvider{creds: Credentials{Username: username, Password: password}}
}

// Get returns the fixed credential.
func (p *StaticProvider) Get(ctx context.Context) (Credentials, error) {
	return p.creds, nil
}
