package fhirserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// LoadResult counts the outcome of a directory load
type LoadResult struct {
	Posted  int      `json:"posted"`
	Skipped int      `json:"skipped"`
	Failed  []string `json:"failed,omitempty"`
}

// LoadOrder sorts bundle file names so shared organization and practitioner
// bundles are posted before the patient bundles that reference them.
func LoadOrder(names []string) []string {
	var shared, patients []string
	for _, n := range names {
		base := strings.ToLower(filepath.Base(n))
		if !strings.HasSuffix(base, ".json") {
			continue
		}
		if strings.HasPrefix(base, "hospitalinformation") || strings.HasPrefix(base, "practitionerinformation") {
			shared = append(shared, n)
		} else {
			patients = append(patients, n)
		}
	}
	sort.Strings(shared)
	sort.Strings(patients)
	return append(shared, patients...)
}

// LoadDirectory posts every transaction bundle found in dir. Files that are
// not transaction or batch bundles are skipped. A failed file does not stop
// the load unless the context is cancelled.
func (c *Client) LoadDirectory(ctx context.Context, dir string) (*LoadResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}

	result := &LoadResult{}
	for _, name := range LoadOrder(names) {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			result.Failed = append(result.Failed, name)
			c.logger.Warn("read bundle failed", zap.String("file", name), zap.Error(err))
			continue
		}

		resp, err := c.PostBundle(ctx, json.RawMessage(data))
		switch {
		case errors.Is(err, ErrNotTransaction):
			result.Skipped++
			c.logger.Info("skipping non-transaction file", zap.String("file", name))
		case err != nil:
			result.Failed = append(result.Failed, name)
			c.logger.Error("post bundle failed", zap.String("file", name), zap.Error(err))
		default:
			result.Posted++
			c.logger.Info("bundle loaded",
				zap.String("file", name),
				zap.Int("entries", len(resp.Entry)))
		}
	}
	return result, nil
}
