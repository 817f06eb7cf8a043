package featureflags

import (
	"context"

	"progression-engine/pkg/config"

	"github.com/Flagsmith/flagsmith-go-client/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("featureflags", fx.Provide(ProvideFeatureFlag))

// Flag names evaluated by the engine.
const (
	FlagNotifications = "progression_notifications"
	FlagLeaderboard   = "progression_leaderboard"
)

type FeatureFlag interface {
	// Enabled reports whether flag is on for identifier. Without a
	// Flagsmith key, or when Flagsmith is unreachable, fallback is returned.
	Enabled(ctx context.Context, flag, identifier string, fallback bool) bool
}

type featureflag struct {
	client *flagsmith.Client
}

type FeatureParams struct {
	fx.In
	Config *config.Config
}

func ProvideFeatureFlag(p FeatureParams) FeatureFlag {
	if p.Config.Flagsmith.ApiKey == "" {
		return &featureflag{}
	}

	opts := []flagsmith.Option{flagsmith.WithAnalytics()}
	if p.Config.Flagsmith.Addr != "" {
		opts = append(opts, flagsmith.WithBaseURL(p.Config.Flagsmith.Addr))
	}

	return &featureflag{
		client: flagsmith.NewClient(p.Config.Flagsmith.ApiKey, opts...),
	}
}

func (s *featureflag) Enabled(ctx context.Context, flag, identifier string, fallback bool) bool {
	if s.client == nil {
		return fallback
	}

	flags, err := s.client.GetIdentityFlags(identifier, nil)
	if err != nil {
		zap.L().Warn("failed to fetch feature flags", zap.String("flag", flag), zap.Error(err))
		return fallback
	}

	enabled, err := flags.IsFeatureEnabled(flag)
	if err != nil {
		return fallback
	}
	return enabled
}

// Static is a fixed flag set for tests and offline runs.
type Static map[string]bool

func (s Static) Enabled(_ context.Context, flag, _ string, fallback bool) bool {
	if v, ok := s[flag]; ok {
		return v
	}
	return fallback
}
