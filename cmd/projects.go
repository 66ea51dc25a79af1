package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newProjectsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List configured projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			names := a.store.Names()
			if len(names) == 0 {
				fmt.Fprintln(out, yellow("No projects configured."))
				return nil
			}
			for _, name := range names {
				line := bold(name)
				if name == a.custom {
					line += " " + cyan("(custom)")
				}
				if _, err := a.store.Project(name); err != nil {
					line += " " + red(err.Error())
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}
