package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// TableListing describes one scanned data file.
type TableListing struct {
	Name     string   `json:"name"`
	File     string   `json:"file"`
	Format   string   `json:"format"`
	Primary  bool     `json:"primary"`
	Columns  []string `json:"columns"`
	Problems []string `json:"problems,omitempty"`
}

// CatalogListing is the output of the tables command.
type CatalogListing struct {
	Dir      string         `json:"data_dir"`
	Keys     map[string]any `json:"merge_keys"`
	Tables   []TableListing `json:"tables"`
	Sessions []string       `json:"sessions,omitempty"`
}

// NewTablesCommand creates the tables command.
func NewTablesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables and columns in the data directory",
		Long: `Scan the data directory and list every table that can be queried.

Columns are shown under the SQL names queries use. Files that could not be
read, or that lack the expected id columns, are listed with their problems.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTables(rootOpts, cmd)
		},
	}
}

func runTables(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	eng, err := opts.openEngine(commandContext(cmd), cmd)
	if err != nil {
		return formatter.Fail("failed to open dataset", err)
	}
	defer eng.Close()

	sessions, err := eng.Sessions()
	if err != nil {
		return formatter.Fail("failed to read sessions", err)
	}

	cat := eng.Catalog()
	cols := eng.Columns()
	listing := CatalogListing{
		Dir:      cat.Dir,
		Keys:     eng.Keys().ToMap(),
		Tables:   make([]TableListing, 0, len(cat.Tables)),
		Sessions: sessions,
	}
	for _, t := range cat.Tables {
		columns, ok := cols[t.Name]
		if !ok {
			columns = t.SQLColumns()
		}
		listing.Tables = append(listing.Tables, TableListing{
			Name:     t.Name,
			File:     t.File,
			Format:   string(t.Format),
			Primary:  t.Name == cat.PrimaryTable,
			Columns:  columns,
			Problems: t.Problems,
		})
	}

	if formatter.JSON() {
		return formatter.Success(listing)
	}
	writeTables(formatter.Writer, listing)
	return nil
}

func writeTables(w io.Writer, l CatalogListing) {
	fmt.Fprintf(w, "Data directory: %s\n", l.Dir)
	if len(l.Sessions) > 0 {
		fmt.Fprintf(w, "Sessions: %s\n", strings.Join(l.Sessions, ", "))
	}
	fmt.Fprintln(w)

	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"Table", "File", "Columns", "Problems"})
	tw.SetAutoWrapText(false)
	for _, t := range l.Tables {
		name := t.Name
		if t.Primary {
			name += " *"
		}
		tw.Append([]string{name, t.File, strings.Join(t.Columns, ", "), strings.Join(t.Problems, "; ")})
	}
	tw.Render()
}
