package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/JonMunkholm/reconcile/internal/core"
	"github.com/spf13/cobra"
)

func (a *App) entitiesCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "entities [entity]",
		Short: "List importable entities and the columns they accept",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			infos := core.DescribeAll()
			if len(args) == 1 {
				s, ok := core.Get(args[0])
				if !ok {
					return fmt.Errorf("%w: %q", core.ErrUnknownEntity, args[0])
				}
				infos = []core.EntityInfo{core.Describe(s)}
			}

			if asJSON {
				enc := json.NewEncoder(a.stdout)
				enc.SetEscapeHTML(false)
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}
			return a.printEntities(infos, len(args) == 1)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func (a *App) printEntities(infos []core.EntityInfo, withFields bool) error {
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTITY\tTABLE\tKEY\tPERIOD\tCREATE\tEXISTING")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%v\t%s\n",
			info.Key, info.Table, info.NaturalKey, dash(info.PeriodField), info.CreateIfMissing, info.OnExisting)
	}
	if withFields && len(infos) == 1 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "FIELD\tCOLUMN\tALIASES\tTYPE\tREQUIRED\tPOLICY")
		for _, f := range infos[0].Fields {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%v\t%s\n",
				f.Name, f.Column, dash(strings.Join(f.Aliases, ", ")), f.Type, f.Required, f.Policy)
		}
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
