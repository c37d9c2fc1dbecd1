package export

import (
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/roach88/cohort/internal/ident"
)

// FilenameTimeLayout is the timestamp suffix of generated file names.
const FilenameTimeLayout = "20060102_150405"

// Filename builds an export file name from the selected tables:
//
//	demographics_only_long_20250102_030405.csv
//	cognitive_wide_20250102_030405.csv
//	cognitive_mri_long_20250102_030405.csv
//	cognitive_and_3_more_long_20250102_030405.csv
//
// The primary table is left out of the name. ext is ".csv" when empty.
func Filename(tables []string, primary string, wide bool, ext string, clock clockwork.Clock) string {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if ext == "" {
		ext = ".csv"
	}
	primary = ident.Sanitize(primary)

	var others []string
	for _, t := range tables {
		if clean := ident.Sanitize(t); clean != primary {
			others = append(others, clean)
		}
	}

	var base string
	switch {
	case len(others) == 0:
		base = "demographics_only"
	case len(others) <= 3:
		base = strings.Join(others, "_")
	default:
		base = fmt.Sprintf("%s_and_%d_more", others[0], len(others)-1)
	}

	if wide {
		base += "_wide"
	} else {
		base += "_long"
	}
	return fmt.Sprintf("%s_%s%s", base, clock.Now().UTC().Format(FilenameTimeLayout), ext)
}
