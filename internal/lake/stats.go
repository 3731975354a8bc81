package lake

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/poslake-io/poslake/internal/partition"
)

type (
	// EndpointStats summarizes one endpoint's slice of the lake.
	EndpointStats struct {
		Endpoint       string   `json:"endpoint"`
		TotalFiles     int      `json:"total_arquivos"`
		SizeBytes      int64    `json:"tamanho_bytes"`
		Stores         []string `json:"lojas"`
		AvailableDates []string `json:"datas_disponiveis"`
	}

	// LakeStats summarizes the whole raw-data tree.
	LakeStats struct {
		ComputedAt time.Time       `json:"timestamp_calculo"`
		TotalFiles int             `json:"total_arquivos"`
		SizeBytes  int64           `json:"tamanho_bytes"`
		Endpoints  []EndpointStats `json:"endpoints"`
	}
)

// Stats walks the raw-data tree and aggregates per-endpoint file counts,
// sizes, distinct stores, and available dates. Partition directory names that
// don't follow the ano=/mes=/dia=/loja= convention are ignored.
func Stats(ctx context.Context, root string) (LakeStats, error) {
	stats := LakeStats{ComputedAt: time.Now().UTC()}

	rawDir := filepath.Join(root, partition.RawDataDir)

	endpoints, err := os.ReadDir(rawDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return stats, nil
		}

		return LakeStats{}, err
	}

	for _, endpointEntry := range endpoints {
		if err := ctx.Err(); err != nil {
			return LakeStats{}, err
		}

		if !endpointEntry.IsDir() {
			continue
		}

		endpointStats, err := collectEndpointStats(rawDir, endpointEntry.Name())
		if err != nil {
			return LakeStats{}, err
		}

		stats.Endpoints = append(stats.Endpoints, endpointStats)
		stats.TotalFiles += endpointStats.TotalFiles
		stats.SizeBytes += endpointStats.SizeBytes
	}

	sort.Slice(stats.Endpoints, func(i, j int) bool {
		return stats.Endpoints[i].Endpoint < stats.Endpoints[j].Endpoint
	})

	return stats, nil
}

func collectEndpointStats(rawDir, endpoint string) (EndpointStats, error) {
	stats := EndpointStats{Endpoint: endpoint}

	stores := make(map[string]struct{})
	dates := make(map[string]struct{})

	endpointDir := filepath.Join(rawDir, endpoint)

	err := filepath.WalkDir(endpointDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") || strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		stats.TotalFiles++
		stats.SizeBytes += info.Size()

		// Pull the date and store out of the partition path segments.
		rel, err := filepath.Rel(endpointDir, path)
		if err != nil {
			return err
		}

		segments := strings.Split(filepath.ToSlash(rel), "/")
		if len(segments) != 5 {
			return nil
		}

		if date, err := partition.ParseDateSegments(segments[0], segments[1], segments[2]); err == nil {
			dates[date.Format("2006-01-02")] = struct{}{}
		}

		if store, err := partition.ParseStoreSegment(segments[3]); err == nil {
			stores[store] = struct{}{}
		}

		return nil
	})
	if err != nil {
		return EndpointStats{}, err
	}

	stats.Stores = sortedKeys(stores)
	stats.AvailableDates = sortedKeys(dates)

	return stats, nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}
