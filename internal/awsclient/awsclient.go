// Package awsclient builds AWS SDK configurations for the service clients,
// one per region, from the configured credentials.
package awsclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// AppID is sent in the SDK user agent.
const AppID = "debug-mcp"

// Settings selects the account and default region.
type Settings struct {
	Region          string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Loader loads and caches aws.Config values per region. Failed loads are
// not cached.
type Loader struct {
	settings Settings

	mu    sync.Mutex
	cache map[string]aws.Config
}

func NewLoader(s Settings) *Loader {
	return &Loader{settings: s, cache: make(map[string]aws.Config)}
}

// Region is the default region.
func (l *Loader) Region() string { return l.settings.Region }

// Profile is the configured shared config profile, if any.
func (l *Loader) Profile() string { return l.settings.Profile }

// Config returns the configuration for region, or for the default region
// when region is empty.
func (l *Loader) Config(ctx context.Context, region string) (aws.Config, error) {
	if region == "" {
		region = l.settings.Region
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if cfg, ok := l.cache[region]; ok {
		return cfg, nil
	}

	cfg, err := l.load(ctx, region)
	if err != nil {
		return aws.Config{}, err
	}
	l.cache[region] = cfg
	return cfg, nil
}

func (l *Loader) load(ctx context.Context, region string) (aws.Config, error) {
	s := l.settings
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		config.WithAppID(AppID),
	}

	switch {
	// Option 1: Explicit credentials provided
	case s.AccessKeyID != "" && s.SecretAccessKey != "":
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.AccessKeyID,
			s.SecretAccessKey,
			s.SessionToken,
		)))
	// Option 2: Use named profile
	case s.Profile != "":
		opts = append(opts, config.WithSharedConfigProfile(s.Profile))
	}
	// Otherwise the default credentials chain (env vars, shared config, IAM role).

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config for %s: %w", region, err)
	}
	return cfg, nil
}
