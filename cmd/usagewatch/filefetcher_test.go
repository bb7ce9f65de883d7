package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/j-veylop/usagewatch/internal/models"
)

func TestFileFetcher(t *testing.T) {
	fetcher := newFileFetcher()

	t.Run("decodes probe file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "web.json")
		payload := `{
  "reading": {
    "fetchedAt": "2026-03-10T12:00:00Z",
    "session": {"resetsAt": "2026-03-10T14:00:00Z", "tokensUsed": 500, "tokenLimit": 1000, "percent": 50}
  },
  "capabilities": ["claude_max_20x"]
}`
		if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
			t.Fatal(err)
		}

		result, err := fetcher.Fetch(context.Background(), models.CredentialSource{Kind: models.SourceWeb, Handle: path})
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if result.Reading.Session.Percent != 50 {
			t.Errorf("session percent = %v, want 50", result.Reading.Session.Percent)
		}
		if want := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC); !result.Reading.Session.ResetsAt.Equal(want) {
			t.Errorf("resetsAt = %v, want %v", result.Reading.Session.ResetsAt, want)
		}
		if len(result.Capabilities) != 1 || result.Capabilities[0] != "claude_max_20x" {
			t.Errorf("capabilities = %v", result.Capabilities)
		}
	})

	t.Run("missing file is a fetch failure", func(t *testing.T) {
		_, err := fetcher.Fetch(context.Background(), models.CredentialSource{Kind: models.SourceWeb, Handle: filepath.Join(t.TempDir(), "absent.json")})
		if err == nil {
			t.Fatal("Fetch() succeeded for a missing probe file")
		}
	})

	t.Run("malformed file is a fetch failure", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := fetcher.Fetch(context.Background(), models.CredentialSource{Kind: models.SourceWeb, Handle: path}); err == nil {
			t.Fatal("Fetch() succeeded for a malformed probe file")
		}
	})

	t.Run("canceled context aborts", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := fetcher.Fetch(ctx, models.CredentialSource{Kind: models.SourceWeb, Handle: "unused"}); err == nil {
			t.Fatal("Fetch() ignored canceled context")
		}
	})
}
