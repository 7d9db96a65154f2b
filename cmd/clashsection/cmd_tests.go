package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var testsCmd = &cobra.Command{
	Use:   "tests",
	Short: "List the clash tests in the export",
	Args:  cobra.NoArgs,
	RunE:  runTests,
}

func runTests(cmd *cobra.Command, _ []string) error {
	s, err := openSession(true)
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	infos := s.bridge.TestInfos()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No clash tests in export.")
		return nil
	}
	for _, info := range infos {
		fmt.Fprintf(out, "%-40s %d/%d eligible\n", info.Name, info.Eligible, info.Total)
	}
	return nil
}
