package langsmith

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Coykto/debug-mcp/internal/awsclient"
	"github.com/Coykto/debug-mcp/internal/lookup"
)

// Credentials locate a LangSmith workspace.
type Credentials struct {
	APIKey   string
	Endpoint string
	Project  string
}

// SecretsAPI is the subset of the Secrets Manager client used here.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsFactory returns a Secrets Manager client, or an error when AWS is
// not available.
type SecretsFactory func(ctx context.Context) (SecretsAPI, error)

// SecretsFromLoader builds Secrets Manager clients in the default region.
func SecretsFromLoader(l *awsclient.Loader) SecretsFactory {
	return func(ctx context.Context) (SecretsAPI, error) {
		cfg, err := l.Config(ctx, "")
		if err != nil {
			return nil, err
		}
		return secretsmanager.NewFromConfig(cfg), nil
	}
}

// Environment variable names, in lookup order.
var (
	apiKeyVars   = []string{"LANGCHAIN_API_KEY", "LANGSMITH_API_KEY"}
	endpointVars = []string{"LANGCHAIN_ENDPOINT", "LANGSMITH_ENDPOINT"}
	projectVars  = []string{"LANGCHAIN_PROJECT", "LANGSMITH_PROJECT"}
)

// SecretID maps an environment name to its Secrets Manager secret.
func SecretID(environment string) string {
	switch strings.ToLower(environment) {
	case "prod", "production":
		return "PRODUCTION/env/vars"
	case "dev", "development":
		return "DEV/env/vars"
	}
	return environment
}

// Resolver finds credentials for an environment:
//
//	local           .env file, with the process environment taking precedence
//	anything else   Secrets Manager, falling back to the process environment
type Resolver struct {
	secrets    SecretsFactory
	dotenvPath string
	getenv     func(string) string
	logger     *zap.Logger
}

type ResolverOption func(*Resolver)

// WithGetenv replaces os.Getenv, for tests.
func WithGetenv(fn func(string) string) ResolverOption {
	return func(r *Resolver) { r.getenv = fn }
}

func WithResolverLogger(logger *zap.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver builds a resolver. secrets may be nil when AWS is not
// configured; Secrets Manager is then skipped.
func NewResolver(secrets SecretsFactory, dotenvPath string, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		secrets:    secrets,
		dotenvPath: dotenvPath,
		getenv:     os.Getenv,
		logger:     zap.NewNop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve returns the credentials for environment. A missing API key is
// not an error here; the caller decides.
func (r *Resolver) Resolve(ctx context.Context, environment string) Credentials {
	env := strings.ToLower(environment)
	if env == "local" {
		return r.fromDotenv()
	}

	res := r.fromSecretsManager(ctx, SecretID(env))
	lookup.Report(ctx, r.logger, "langsmith_secret", res, zap.String("environment", env))
	if res.OK() {
		return res.Value
	}
	return fromVars(r.getenv)
}

func (r *Resolver) fromDotenv() Credentials {
	file, err := godotenv.Read(r.dotenvPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		r.logger.Warn("could not read .env file", zap.String("path", r.dotenvPath), zap.Error(err))
	}
	return fromVars(func(k string) string {
		if v := r.getenv(k); v != "" {
			return v
		}
		return file[k]
	})
}

func (r *Resolver) fromSecretsManager(ctx context.Context, secretID string) lookup.Result[Credentials] {
	if r.secrets == nil {
		return lookup.None[Credentials]()
	}
	client, err := r.secrets(ctx)
	if err != nil {
		return lookup.Fail[Credentials](err)
	}
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(secretID)})
	if err != nil {
		return lookup.Fail[Credentials](fmt.Errorf("get secret %s: %w", secretID, err))
	}

	var values map[string]any
	if err := json.Unmarshal([]byte(aws.ToString(out.SecretString)), &values); err != nil {
		return lookup.Fail[Credentials](fmt.Errorf("parse secret %s: %w", secretID, err))
	}
	creds := fromVars(func(k string) string {
		s, _ := values[k].(string)
		return s
	})
	if creds.APIKey == "" {
		return lookup.None[Credentials]()
	}
	return lookup.FoundValue(creds)
}

func fromVars(get func(string) string) Credentials {
	first := func(names []string) string {
		for _, n := range names {
			if v := get(n); v != "" {
				return v
			}
		}
		return ""
	}
	return Credentials{
		APIKey:   first(apiKeyVars),
		Endpoint: first(endpointVars),
		Project:  first(projectVars),
	}
}
