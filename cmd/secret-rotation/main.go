// Package main implements the Secrets Manager rotation Lambda for the
// OpenSearch master user credential.
package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"slices"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/opensearch"
	ostypes "github.com/aws/aws-sdk-go-v2/service/opensearch/types"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/inkdex/search-sync/internal/awsinit"
	"github.com/inkdex/search-sync/internal/logging"
	"github.com/inkdex/search-sync/internal/searchindex"
	"github.com/inkdex/search-sync/internal/secrets"
	"github.com/inkdex/search-sync/internal/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var logger = logging.New()

const (
	stageCurrent = "AWSCURRENT"
	stagePending = "AWSPENDING"

	passwordLength = 24
)

// SecretsManagerAPI abstracts Secrets Manager operations for dependency inversion.
type SecretsManagerAPI interface {
	DescribeSecret(ctx context.Context, params *secretsmanager.DescribeSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DescribeSecretOutput, error)
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	UpdateSecretVersionStage(ctx context.Context, params *secretsmanager.UpdateSecretVersionStageInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.UpdateSecretVersionStageOutput, error)
}

// DomainUpdater pushes configuration changes to the OpenSearch domain.
type DomainUpdater interface {
	UpdateDomainConfig(ctx context.Context, params *opensearch.UpdateDomainConfigInput, optFns ...func(*opensearch.Options)) (*opensearch.UpdateDomainConfigOutput, error)
}

// HealthChecker verifies cluster connectivity with a candidate credential.
type HealthChecker interface {
	Health(ctx context.Context) (searchindex.Health, error)
}

// handler implements the four-step rotation protocol.
type handler struct {
	sm            SecretsManagerAPI
	domains       DomainUpdater
	domainName    string
	healthFactory func(creds secrets.Credentials) HealthChecker
	newPassword   func(length int) (string, error)
}

// newHandler creates a new handler.
func newHandler(sm SecretsManagerAPI, domains DomainUpdater, domainName string, healthFactory func(secrets.Credentials) HealthChecker) *handler {
	return &handler{
		sm:            sm,
		domains:       domains,
		domainName:    domainName,
		healthFactory: healthFactory,
		newPassword:   generatePassword,
	}
}

// handle dispatches one rotation step. Secret material is never logged.
func (h *handler) handle(ctx context.Context, event events.SecretsManagerSecretRotationEvent) error {
	tracer := tracing.Tracer("secret-rotation")
	ctx, span := tracer.Start(ctx, "SecretRotationHandler")
	defer span.End()

	log := logger.With(
		slog.String("correlation_id", logging.CorrelationID(ctx)),
		slog.String("step", event.Step),
		slog.String("secret_arn", event.SecretID),
	)
	log.InfoContext(ctx, "Starting secret rotation step")

	metadata, err := h.sm.DescribeSecret(ctx, &secretsmanager.DescribeSecretInput{
		SecretId: &event.SecretID,
	})
	if err != nil {
		return fmt.Errorf("describe secret: %w", err)
	}
	if metadata.RotationEnabled == nil || !*metadata.RotationEnabled {
		return fmt.Errorf("secret %s is not enabled for rotation", event.SecretID)
	}

	stages, ok := metadata.VersionIdsToStages[event.ClientRequestToken]
	if !ok {
		return fmt.Errorf("secret version %s has no stage for rotation of secret %s", event.ClientRequestToken, event.SecretID)
	}
	if slices.Contains(stages, stageCurrent) {
		log.InfoContext(ctx, "Secret version already current, nothing to do")
		return nil
	}
	if !slices.Contains(stages, stagePending) {
		return fmt.Errorf("secret version %s not set as %s for rotation of secret %s", event.ClientRequestToken, stagePending, event.SecretID)
	}

	switch event.Step {
	case "createSecret":
		err = h.createSecret(ctx, log, event)
	case "setSecret":
		err = h.setSecret(ctx, log, event)
	case "testSecret":
		err = h.testSecret(ctx, log, event)
	case "finishSecret":
		err = h.finishSecret(ctx, log, event, metadata.VersionIdsToStages)
	default:
		err = fmt.Errorf("invalid rotation step %q", event.Step)
	}
	if err != nil {
		log.ErrorContext(ctx, "Secret rotation step failed", slog.String("error", err.Error()))
		return err
	}

	log.InfoContext(ctx, "Secret rotation step completed")
	return nil
}

// createSecret stages a pending version carrying a freshly generated
// password. The username is carried over from the current version.
func (h *handler) createSecret(ctx context.Context, log *slog.Logger, event events.SecretsManagerSecretRotationEvent) error {
	// Re-running the step with the same token must not mint a second password.
	_, err := h.getSecret(ctx, event.SecretID, stagePending, event.ClientRequestToken)
	if err == nil {
		log.InfoContext(ctx, "Pending secret version already exists")
		return nil
	}

	current, err := h.getSecret(ctx, event.SecretID, stageCurrent, "")
	if err != nil {
		return fmt.Errorf("get current secret: %w", err)
	}

	password, err := h.newPassword(passwordLength)
	if err != nil {
		return fmt.Errorf("generate password: %w", err)
	}
	current.Password = password

	body, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("marshal secret: %w", err)
	}
	secretString := string(body)

	_, err = h.sm.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:           &event.SecretID,
		ClientRequestToken: &event.ClientRequestToken,
		SecretString:       &secretString,
		VersionStages:      []string{stagePending},
	})
	if err != nil {
		return fmt.Errorf("put secret value: %w", err)
	}

	log.InfoContext(ctx, "Created pending secret version")
	return nil
}

// setSecret pushes the pending password to the OpenSearch domain's master
// user.
func (h *handler) setSecret(ctx context.Context, log *slog.Logger, event events.SecretsManagerSecretRotationEvent) error {
	pending, err := h.getSecret(ctx, event.SecretID, stagePending, event.ClientRequestToken)
	if err != nil {
		return fmt.Errorf("get pending secret: %w", err)
	}

	_, err = h.domains.UpdateDomainConfig(ctx, &opensearch.UpdateDomainConfigInput{
		DomainName: &h.domainName,
		AdvancedSecurityOptions: &ostypes.AdvancedSecurityOptionsInput{
			MasterUserOptions: &ostypes.MasterUserOptions{
				MasterUserName:     &pending.Username,
				MasterUserPassword: &pending.Password,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("update domain config for %s: %w", h.domainName, err)
	}

	log.InfoContext(ctx, "Updated master user password on domain",
		slog.String("domain_name", h.domainName),
	)
	return nil
}

// testSecret verifies the pending credential can reach the cluster.
func (h *handler) testSecret(ctx context.Context, log *slog.Logger, event events.SecretsManagerSecretRotationEvent) error {
	pending, err := h.getSecret(ctx, event.SecretID, stagePending, event.ClientRequestToken)
	if err != nil {
		return fmt.Errorf("get pending secret: %w", err)
	}

	health, err := h.healthFactory(pending).Health(ctx)
	if err != nil {
		return fmt.Errorf("connect with pending credential: %w", err)
	}

	log.InfoContext(ctx, "Verified pending credential against cluster",
		slog.String("cluster_status", health.Status),
	)
	return nil
}

// finishSecret promotes the pending version to current.
func (h *handler) finishSecret(ctx context.Context, log *slog.Logger, event events.SecretsManagerSecretRotationEvent, versions map[string][]string) error {
	var currentVersion string
	for version, stages := range versions {
		if slices.Contains(stages, stageCurrent) {
			if version == event.ClientRequestToken {
				log.InfoContext(ctx, "Secret version already marked current")
				return nil
			}
			currentVersion = version
			break
		}
	}

	stage := stageCurrent
	input := &secretsmanager.UpdateSecretVersionStageInput{
		SecretId:        &event.SecretID,
		VersionStage:    &stage,
		MoveToVersionId: &event.ClientRequestToken,
	}
	if currentVersion != "" {
		input.RemoveFromVersionId = &currentVersion
	}
	if _, err := h.sm.UpdateSecretVersionStage(ctx, input); err != nil {
		return fmt.Errorf("promote secret version: %w", err)
	}

	log.InfoContext(ctx, "Promoted pending secret version to current")
	return nil
}

// getSecret reads and parses one secret version.
func (h *handler) getSecret(ctx context.Context, secretARN, stage, token string) (secrets.Credentials, error) {
	input := &secretsmanager.GetSecretValueInput{
		SecretId:     &secretARN,
		VersionStage: &stage,
	}
	if token != "" {
		input.VersionId = &token
	}

	out, err := h.sm.GetSecretValue(ctx, input)
	if err != nil {
		return secrets.Credentials{}, err
	}
	if out.SecretString == nil {
		return secrets.Credentials{}, fmt.Errorf("secret %s has no string value", secretARN)
	}

	var creds secrets.Credentials
	if err := json.Unmarshal([]byte(*out.SecretString), &creds); err != nil {
		return secrets.Credentials{}, fmt.Errorf("parse secret: %w", err)
	}
	return creds, nil
}

// Password character classes. Characters that break connection strings
// (quotes, slashes, @) are excluded.
const (
	lowerChars  = "abcdefghijklmnopqrstuvwxyz"
	upperChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars  = "0123456789"
	symbolChars = "!#$%&()*+,-.:;<=>?[]^_{|}~"
)

// generatePassword produces a random password containing at least one
// character from each class.
func generatePassword(length int) (string, error) {
	if length < 8 {
		return "", fmt.Errorf("password length must be at least 8, got %d", length)
	}

	allChars := lowerChars + upperChars + digitChars + symbolChars

	chars := make([]byte, 0, length)
	for _, class := range []string{lowerChars, upperChars, digitChars, symbolChars} {
		c, err := randomChar(class)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}
	for len(chars) < length {
		c, err := randomChar(allChars)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}

	// Shuffle so the mandatory class characters are not in a fixed position.
	for i := len(chars) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		chars[i], chars[j.Int64()] = chars[j.Int64()], chars[i]
	}
	return string(chars), nil
}

func randomChar(class string) (byte, error) {
	i, err := rand.Int(rand.Reader, big.NewInt(int64(len(class))))
	if err != nil {
		return 0, err
	}
	return class[i.Int64()], nil
}

func main() {
	ctx := context.Background()

	result, err := awsinit.Init(ctx)
	if err != nil {
		logger.Error("FATAL: Failed to initialize", slog.String("error", err.Error()))
		panic(err)
	}

	domainName := os.Getenv("OPENSEARCH_DOMAIN_NAME")
	if domainName == "" {
		logger.Error("FATAL: OPENSEARCH_DOMAIN_NAME is not set")
		panic("OPENSEARCH_DOMAIN_NAME is not set")
	}
	endpoint := os.Getenv("OPENSEARCH_ENDPOINT")
	if endpoint == "" {
		logger.Error("FATAL: OPENSEARCH_ENDPOINT is not set")
		panic("OPENSEARCH_ENDPOINT is not set")
	}
	index := os.Getenv("OPENSEARCH_INDEX")
	if index == "" {
		index = "artists"
	}

	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	healthFactory := func(creds secrets.Credentials) HealthChecker {
		provider := secrets.NewStaticProvider(creds.Username, creds.Password)
		return searchindex.NewClient(endpoint, index, httpClient, provider, searchindex.RefreshNone)
	}

	h := newHandler(
		secretsmanager.NewFromConfig(result.Config),
		opensearch.NewFromConfig(result.Config),
		domainName,
		healthFactory,
	)
	result.Start(h.handle)
}
