package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leftmike/cowrows/sql"
)

func init() {
	cowrowsCmd.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number of cowrows",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println(sql.Version())
			},
		})
}
