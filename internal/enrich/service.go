package enrich

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrUnavailable is returned by Chat when no generator is configured or the
// generator failed.
var ErrUnavailable = errors.New("enrich: text generation unavailable")

// Gateway is what the HTTP layer needs from enrichment.
type Gateway interface {
	// FetchDetails never fails; it falls back to the template.
	FetchDetails(ctx context.Context, disease string, symptoms []string) Details
	Chat(ctx context.Context, message string) (string, error)
}

// Service implements Gateway over a Generator with a memory cache in front
// and an optional shared second tier.
type Service struct {
	gen    Generator
	memory Cache
	shared Cache
	log    *logrus.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMemoryCache replaces the default in-process cache.
func WithMemoryCache(c Cache) ServiceOption {
	return func(s *Service) { s.memory = c }
}

// WithSharedCache adds a second cache tier, typically Redis.
func WithSharedCache(c Cache) ServiceOption {
	return func(s *Service) { s.shared = c }
}

// WithServiceLogger sets the logger.
func WithServiceLogger(l *logrus.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService creates a Service. gen may be nil, in which case details always
// come from the template.
func NewService(gen Generator, opts ...ServiceOption) *Service {
	log := logrus.New()
	log.SetOutput(io.Discard)

	s := &Service{gen: gen, memory: NewMemoryCache(256, 0), log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Available reports whether a generator is configured.
func (s *Service) Available() bool { return s.gen != nil }

// FetchDetails implements Gateway.
func (s *Service) FetchDetails(ctx context.Context, disease string, symptoms []string) Details {
	if s.gen == nil {
		return Fallback(disease)
	}

	key := CacheKey(disease, symptoms)
	log := s.log.WithFields(logrus.Fields{"disease": disease, "key": key[:12]})

	if d, ok := s.lookup(ctx, key, log); ok {
		return d
	}

	text, err := s.gen.Generate(ctx, detailsPrompt(disease, symptoms))
	if err != nil {
		log.WithError(err).Warn("details generation failed, using fallback")
		return Fallback(disease)
	}

	d, ok := ParseDetails(disease, text)
	if !ok {
		log.Warn("generated details were not parseable, using fallback")
		return d
	}

	if s.memory != nil {
		_ = s.memory.Set(ctx, key, d)
	}
	if s.shared != nil {
		if err := s.shared.Set(ctx, key, d); err != nil {
			log.WithError(err).Warn("shared cache write failed")
		}
	}
	return d
}

func (s *Service) lookup(ctx context.Context, key string, log *logrus.Entry) (Details, bool) {
	if s.memory != nil {
		if d, ok, _ := s.memory.Get(ctx, key); ok {
			log.Debug("details memory cache hit")
			return d, true
		}
	}
	if s.shared != nil {
		d, ok, err := s.shared.Get(ctx, key)
		if err != nil {
			log.WithError(err).Warn("shared cache read failed")
			return Details{}, false
		}
		if ok {
			log.Debug("details shared cache hit")
			if s.memory != nil {
				_ = s.memory.Set(ctx, key, d)
			}
			return d, true
		}
	}
	return Details{}, false
}

// Chat implements Gateway.
func (s *Service) Chat(ctx context.Context, message string) (string, error) {
	if s.gen == nil {
		return "", ErrUnavailable
	}
	reply, err := s.gen.Generate(ctx, chatPrompt(message))
	if err != nil {
		s.log.WithError(err).Warn("chat generation failed")
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return strings.TrimSpace(reply), nil
}

func detailsPrompt(disease string, symptoms []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Provide information about the disease %q", disease)
	if len(symptoms) > 0 {
		fmt.Fprintf(&sb, " for a patient reporting: %s", strings.Join(symptoms, ", "))
	}
	sb.WriteString(".\nRespond with only a JSON object with the keys \"description\" (string), ")
	sb.WriteString("\"causes\", \"precautions\" and \"medicines\" (arrays of short strings, each starting with \"- \").")
	return sb.String()
}

func chatPrompt(message string) string {
	return "You are a helpful health assistant. Answer briefly and recommend seeing a doctor for anything serious.\n\nUser: " + message
}
