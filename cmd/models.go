package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newModelsCmd(a *app) *cobra.Command {
	var (
		project string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the device models of a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := a.projectName(project)
			if err != nil {
				return err
			}
			_, exp, err := a.exporter(name)
			if err != nil {
				return err
			}

			list, err := exp.ListModels(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tNAME\tASSETS\tMEASURE POINTS")
			for _, m := range list {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", m.ID, m.Name, len(m.Assets), strings.Join(m.Identifiers, ","))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&project, "project", "p", "", "project name")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print models as JSON")
	return cmd
}
