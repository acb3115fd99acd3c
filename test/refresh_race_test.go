//go:build integration
// +build integration

package test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MrEthical07/tokenauth"
)

// Concurrent presenters of one refresh token: at most one consume wins, the
// rest are treated as replays, and the replay revokes the family including
// whatever the winner was issued.
func TestRefreshRaceRevokesWholeFamily(t *testing.T) {
	ctx := context.Background()
	_, rdb := newRedis(t)
	engine := newIntegrationEngine(t, rdb)

	pair, err := engine.GenerateAuthTokens(ctx, "42")
	if err != nil {
		t.Fatalf("GenerateAuthTokens failed: %v", err)
	}

	const workers = 16
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(workers)

	type outcome struct {
		pair *tokenauth.AuthTokenPair
		err  error
	}
	results := make(chan outcome, workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			p, err := engine.RefreshAuth(ctx, pair.Refresh.Token)
			results <- outcome{p, err}
		}()
	}

	close(start)
	wg.Wait()
	close(results)

	var issued []*tokenauth.AuthTokenPair
	for r := range results {
		switch {
		case r.err == nil:
			issued = append(issued, r.pair)
		case errors.Is(r.err, tokenauth.ErrReusedRefreshToken), errors.Is(r.err, tokenauth.ErrTokenBlacklisted):
		default:
			t.Fatalf("unexpected refresh error: %v", r.err)
		}
	}

	if len(issued) > 1 {
		t.Fatalf("expected at most one winner, got %d", len(issued))
	}
	if engine.MetricsSnapshot().Counters[tokenauth.MetricRefreshReuseDetected] == 0 {
		t.Fatal("expected the losers to trigger reuse detection")
	}
	for _, p := range issued {
		if _, err := engine.RefreshAuth(ctx, p.Refresh.Token); err == nil {
			t.Fatal("winner's refresh token survived reuse detection")
		}
	}
	if n, err := engine.LogoutAll(ctx, "42"); err != nil || n != 0 {
		t.Fatalf("expected no live refresh rows, got %d (%v)", n, err)
	}
}

func TestGateRaceOnSharedRefreshCookie(t *testing.T) {
	ctx := context.Background()
	_, rdb := newRedis(t)
	engine := newIntegrationEngine(t, rdb)

	pair, err := engine.GenerateAuthTokens(ctx, "42")
	if err != nil {
		t.Fatalf("GenerateAuthTokens failed: %v", err)
	}

	const workers = 8
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(workers)

	jars := make([]*cookieJar, workers)
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		jars[i] = &cookieJar{refresh: pair.Refresh.Token}
		go func(jar *cookieJar) {
			defer wg.Done()
			<-start
			_, err := engine.Authenticate(ctx, jar, tokenauth.Requirement{})
			results <- err
		}(jars[i])
	}

	close(start)
	wg.Wait()
	close(results)

	admitted := 0
	for err := range results {
		switch {
		case err == nil:
			admitted++
		case errors.Is(err, tokenauth.ErrUnauthenticated):
		default:
			t.Fatalf("gate must only surface ErrUnauthenticated, got %v", err)
		}
	}
	if admitted > 1 {
		t.Fatalf("expected at most one admitted request, got %d", admitted)
	}
	for _, jar := range jars {
		if jar.refresh == pair.Refresh.Token {
			continue
		}
		if _, err := engine.RefreshAuth(ctx, jar.refresh); err == nil {
			t.Fatal("rotated cookie survived reuse detection")
		}
	}
}
