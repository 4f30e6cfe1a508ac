package config

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoadAppliesDefaultsAndOverrides(t *testing.T) {
	cfg, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{
			"API_FIREBASE_PROJECT_ID":       "plateful-dev",
			"API_SERVER_PORT":               "9090",
			"API_PAYSTACK_SECRET_KEY":       "sk_test_abc",
			"API_PRICING_PEAK_WINDOWS":      "17:00-21:00, 11:30-13:30",
			"API_SHARED_CART_TTL":           "90m",
			"API_SHARED_CART_REAP_INTERVAL": "1m",
		}),
	)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Fatalf("unexpected port %q", cfg.Server.Port)
	}
	if cfg.Firestore.ProjectID != "plateful-dev" {
		t.Fatalf("firestore project should default to firebase project, got %q", cfg.Firestore.ProjectID)
	}
	if cfg.Events.ProjectID != "plateful-dev" {
		t.Fatalf("events project should default to firebase project, got %q", cfg.Events.ProjectID)
	}
	if cfg.Paystack.BaseURL != "https://api.paystack.co" {
		t.Fatalf("unexpected paystack base url %q", cfg.Paystack.BaseURL)
	}
	if cfg.SharedCarts.TTL != 90*time.Minute {
		t.Fatalf("unexpected cart ttl %v", cfg.SharedCarts.TTL)
	}
	if len(cfg.Pricing.PeakWindows) != 2 {
		t.Fatalf("expected 2 peak windows, got %d", len(cfg.Pricing.PeakWindows))
	}
	if cfg.Pricing.PeakWindows[1].Start != "11:30" || cfg.Pricing.PeakWindows[1].End != "13:30" {
		t.Fatalf("unexpected window %+v", cfg.Pricing.PeakWindows[1])
	}
	if cfg.Pricing.Currency != "NGN" {
		t.Fatalf("unexpected currency %q", cfg.Pricing.Currency)
	}
	if !cfg.Features.EnablePromotions {
		t.Fatal("promotions should default on")
	}
}

func TestLoadValidatesRequiredFields(t *testing.T) {
	_, err := Load(context.Background(), WithEnvFile(""), WithoutSystemEnv())
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := validation.Fields()
	found := false
	for _, field := range fields {
		if field == "Firebase.ProjectID" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected Firebase.ProjectID in %v", fields)
	}
}

func TestLoadRejectsMalformedPeakWindow(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{
			"API_FIREBASE_PROJECT_ID":  "plateful-dev",
			"API_PRICING_PEAK_WINDOWS": "25:99-26:00",
		}),
	)
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestLoadResolvesSecretReferences(t *testing.T) {
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref != "secret://projects/p/secrets/paystack/versions/latest" {
			t.Fatalf("unexpected ref %q", ref)
		}
		return "sk_live_resolved", nil
	})

	cfg, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithSecretResolver(resolver),
		WithEnvMap(map[string]string{
			"API_FIREBASE_PROJECT_ID": "plateful-dev",
			"API_PAYSTACK_SECRET_KEY": "sm://projects/p/secrets/paystack/versions/latest",
		}),
	)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Paystack.SecretKey != "sk_live_resolved" {
		t.Fatalf("secret not resolved: %q", cfg.Paystack.SecretKey)
	}
}

func TestLoadSurfacesSecretErrors(t *testing.T) {
	resolver := SecretResolverFunc(func(context.Context, string) (string, error) {
		return "", errors.New("boom")
	})

	_, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithSecretResolver(resolver),
		WithEnvMap(map[string]string{
			"API_FIREBASE_PROJECT_ID":     "plateful-dev",
			"API_PAYSTACK_WEBHOOK_SECRET": "secret://projects/p/secrets/webhook/versions/latest",
		}),
	)
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
}
