package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

// NewDetectCommand creates the detect command.
func NewDetectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Show the detected dataset structure",
		Long: `Detect whether the dataset is cross-sectional or longitudinal and print
the merge keys every query joins on.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetect(rootOpts, cmd)
		},
	}
}

func runDetect(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	eng, err := opts.openEngine(commandContext(cmd), cmd)
	if err != nil {
		return formatter.Fail("failed to open dataset", err)
	}
	defer eng.Close()

	keys := eng.Keys()
	m := keys.ToMap()
	m["merge_column"] = keys.MergeColumn()
	if formatter.JSON() {
		return formatter.Success(m)
	}

	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		v := m[k]
		if v == nil {
			v = "-"
		}
		fmt.Fprintf(formatter.Writer, "%-16s %v\n", k+":", v)
	}
	return nil
}
