// Package embedding defines the text embedding capability used by the run
// memory for semantic search. Providers live in subpackages.
package embedding

import (
	"context"
	"errors"
)

// Embedder turns texts into vectors. The returned slice has one vector per
// input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ErrEmptyResponse is returned when a provider answers without vectors.
var ErrEmptyResponse = errors.New("embedding: provider returned no vectors")

type Option func(*Options)

type Options struct {
	ApiKey string
	Model  string
}

func WithApiKey(apiKey string) Option {
	return func(o *Options) {
		o.ApiKey = apiKey
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// NewOptions applies opts over a zero Options, filling Model with
// defaultModel when none was given.
func NewOptions(defaultModel string, opts ...Option) Options {
	options := Options{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Model == "" {
		options.Model = defaultModel
	}
	return options
}

// Func adapts a plain function to Embedder.
type Func func(ctx context.Context, texts []string) ([][]float32, error)

func (f Func) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return f(ctx, texts)
}
