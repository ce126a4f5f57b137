// Package compiler turns raw template documents into sealed templates.
//
// A compilation parses JSON or YAML, normalizes the loose document, validates
// the canonical result and seals it. When validation fails and a Regenerator
// is configured, the compiler hands every problem back to it once and compiles
// the corrected document.
package compiler

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/choreo/internal/logging"
	"github.com/aretw0/choreo/pkg/domain"
	"github.com/aretw0/choreo/pkg/normalizer"
	"github.com/aretw0/choreo/pkg/validator"
)

// DefaultCacheSize bounds the number of compiled templates kept in memory.
const DefaultCacheSize = 128

// Regenerator produces a corrected document given the rejected one and every
// problem found in it. It is typically backed by the generator that wrote the
// original document.
type Regenerator interface {
	Regenerate(ctx context.Context, raw []byte, problems []string) ([]byte, error)
}

// RegeneratorFunc adapts a function to Regenerator.
type RegeneratorFunc func(ctx context.Context, raw []byte, problems []string) ([]byte, error)

// Regenerate calls f.
func (f RegeneratorFunc) Regenerate(ctx context.Context, raw []byte, problems []string) ([]byte, error) {
	return f(ctx, raw, problems)
}

// Result is a successful compilation.
type Result struct {
	Template        *domain.Template
	Recommendations []normalizer.Recommendation
	// Unreachable lists states no transition leads to from the start state.
	Unreachable []string
	// Regenerated is set when the template only passed after regeneration.
	Regenerated bool
	// Cached is set when the result was served from the cache.
	Cached bool
}

// Compiler compiles template documents. It is safe for concurrent use.
type Compiler struct {
	normalizer *normalizer.Normalizer
	regen      Regenerator
	cacheSize  int
	cache      *lru.Cache[string, Result]
	logger     *slog.Logger
}

// Option configures the Compiler.
type Option func(*Compiler)

// WithCacheSize sets the cache capacity. Zero disables caching.
func WithCacheSize(n int) Option {
	return func(c *Compiler) {
		c.cacheSize = n
	}
}

// WithRegenerator enables a single corrective pass on validation failure.
func WithRegenerator(r Regenerator) Option {
	return func(c *Compiler) {
		c.regen = r
	}
}

// WithLogger configures a logger for the Compiler.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Compiler) {
		c.logger = logger
	}
}

// New creates a Compiler.
func New(opts ...Option) (*Compiler, error) {
	c := &Compiler{
		cacheSize: DefaultCacheSize,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.normalizer = normalizer.New(normalizer.WithLogger(c.logger))

	if c.cacheSize < 0 {
		return nil, fmt.Errorf("cache size must not be negative: %d", c.cacheSize)
	}
	if c.cacheSize > 0 {
		cache, err := lru.New[string, Result](c.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create template cache: %w", err)
		}
		c.cache = cache
	}
	return c, nil
}

// Parse decodes a JSON or YAML document into plain maps and lists.
func Parse(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.New("empty document")
	}

	var doc any
	jsonErr := json.Unmarshal(trimmed, &doc)
	if jsonErr == nil {
		return doc, nil
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return nil, fmt.Errorf("invalid json: %w", jsonErr)
	}
	if err := yaml.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("document is neither json nor yaml: %w", err)
	}
	return doc, nil
}

func digest(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Compile parses, normalizes, validates and seals raw. Validation failures
// are returned as *validator.Error carrying every problem at once.
func (c *Compiler) Compile(ctx context.Context, raw []byte) (*Result, error) {
	key := digest(raw)
	if c.cache != nil {
		if res, ok := c.cache.Get(key); ok {
			res.Cached = true
			return &res, nil
		}
	}

	res, problems, err := c.attempt(raw)
	if err != nil && c.regen != nil && problems != nil {
		c.logger.Info("Template rejected, requesting regeneration", "problems", len(problems))
		fixed, regenErr := c.regen.Regenerate(ctx, raw, problems)
		if regenErr != nil {
			return nil, fmt.Errorf("regeneration failed: %w (original problems: %w)", regenErr, err)
		}
		res, _, err = c.attempt(fixed)
		if err == nil {
			res.Regenerated = true
		}
	}
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.Add(key, *res)
	}
	return res, nil
}

// attempt runs one compilation pass. problems is non-nil whenever the
// document was rejected in a way a regeneration could fix.
func (c *Compiler) attempt(raw []byte) (*Result, []string, error) {
	doc, err := Parse(raw)
	if err != nil {
		return nil, []string{err.Error()}, fmt.Errorf("failed to parse template: %w", err)
	}
	return c.compileDocument(doc)
}

// CompileDocument compiles an already decoded document. It bypasses the cache
// and never regenerates.
func (c *Compiler) CompileDocument(doc any) (*Result, error) {
	res, _, err := c.compileDocument(doc)
	return res, err
}

func (c *Compiler) compileDocument(doc any) (*Result, []string, error) {
	norm := c.normalizer.Normalize(doc)
	tmpl := norm.Template
	if err := validator.Seal(tmpl); err != nil {
		var verr *validator.Error
		if errors.As(err, &verr) {
			return nil, verr.Messages(), err
		}
		return nil, nil, err
	}

	res := &Result{
		Template:        tmpl,
		Recommendations: norm.Recommendations,
		Unreachable:     validator.Unreachable(tmpl),
	}
	if len(res.Unreachable) > 0 {
		c.logger.Warn("Template has unreachable states", "template", tmpl.Name, "states", res.Unreachable)
	}
	return res, nil, nil
}

// Len returns the number of cached templates.
func (c *Compiler) Len() int {
	if c.cache == nil {
		return 0
	}
	return c.cache.Len()
}
