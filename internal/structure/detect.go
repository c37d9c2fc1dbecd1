// Package structure decides whether a dataset is cross-sectional or
// longitudinal from the columns of its primary table.
package structure

import (
	"log/slog"
	"strings"

	"github.com/roach88/cohort/internal/dataset"
	"github.com/roach88/cohort/internal/logger"
	"github.com/roach88/cohort/internal/source"
)

// FallbackPrimaryID is used when no header looks like an identifier.
const FallbackPrimaryID = "customID"

// Columns holds the configured column names detection looks for.
type Columns struct {
	PrimaryID   string
	SessionID   string
	CompositeID string
}

// Detect derives MergeKeys from the header of the primary table.
//
// Rules, first match wins:
//  1. primary and session present → longitudinal with all three keys
//  2. primary present → cross-sectional on primary
//  3. composite present → cross-sectional on composite
//  4. first header containing "id" (or the configured primary name,
//     case-insensitive) → cross-sectional on that header
//  5. FallbackPrimaryID, logged as a warning
//
// Detect never fails.
func Detect(headers []string, cols Columns, log *slog.Logger) dataset.MergeKeys {
	log = logger.OrDefault(log)
	has := make(map[string]bool, len(headers))
	for _, h := range headers {
		has[h] = true
	}

	composite := cols.CompositeID
	if composite == "" {
		composite = FallbackPrimaryID
	}

	switch {
	case cols.PrimaryID != "" && cols.SessionID != "" && has[cols.PrimaryID] && has[cols.SessionID]:
		return dataset.MergeKeys{
			PrimaryID:      cols.PrimaryID,
			SessionID:      cols.SessionID,
			CompositeID:    composite,
			IsLongitudinal: true,
		}
	case cols.PrimaryID != "" && has[cols.PrimaryID]:
		return dataset.MergeKeys{PrimaryID: cols.PrimaryID}
	case cols.CompositeID != "" && has[cols.CompositeID]:
		return dataset.MergeKeys{PrimaryID: cols.CompositeID}
	}

	if col, ok := idLike(headers, cols.PrimaryID); ok {
		log.Info("using inferred identifier column", "column", col)
		return dataset.MergeKeys{PrimaryID: col}
	}

	log.Warn("no identifier column found, using fallback", "fallback", FallbackPrimaryID, "columns", len(headers))
	return dataset.MergeKeys{PrimaryID: FallbackPrimaryID}
}

// idLike returns the first header that contains "id" or the configured
// primary name, compared case-insensitively.
func idLike(headers []string, primary string) (string, bool) {
	token := strings.ToLower(primary)
	for _, h := range headers {
		lower := strings.ToLower(h)
		if strings.Contains(lower, "id") || (token != "" && strings.Contains(lower, token)) {
			return h, true
		}
	}
	return "", false
}

// DetectFile reads the header of the primary table at path and runs Detect.
//
// Only the header is read. A missing or unreadable file returns a
// dataset.DataAccessError.
func DetectFile(path string, cols Columns, log *slog.Logger) (dataset.MergeKeys, error) {
	headers, err := source.ReadHeader(path)
	if err != nil {
		return dataset.MergeKeys{}, err
	}
	keys := Detect(headers, cols, log)
	logger.OrDefault(log).Debug("detected dataset structure",
		"path", path, "primary", keys.PrimaryID, "longitudinal", keys.IsLongitudinal)
	return keys, nil
}
