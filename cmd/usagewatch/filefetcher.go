package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/j-veylop/usagewatch/internal/models"
	"github.com/j-veylop/usagewatch/internal/services/coordinator"
)

// fileFetcher reads usage from probe files. A credential handle is the
// path to a JSON status file that an external probe keeps current; each
// tick decodes the latest reading from it. Vendor HTTP clients live
// outside this binary and feed it through these files.
type fileFetcher struct{}

func newFileFetcher() *fileFetcher {
	return &fileFetcher{}
}

type probeFile struct {
	Reading      models.UsageReading `json:"reading"`
	Capabilities []string            `json:"capabilities,omitempty"`
}

func (f *fileFetcher) Fetch(ctx context.Context, source models.CredentialSource) (*coordinator.FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(source.Handle)
	if err != nil {
		return nil, fmt.Errorf("failed to read probe file for %s source: %w", source.Kind, err)
	}

	var probe probeFile
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("malformed probe file %s: %w", source.Handle, err)
	}

	return &coordinator.FetchResult{
		Reading:      probe.Reading,
		Capabilities: probe.Capabilities,
	}, nil
}
