package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/altafino/attachment-fetcher/internal/email"
	"github.com/altafino/attachment-fetcher/internal/filter"
	"github.com/altafino/attachment-fetcher/internal/rename"
	"github.com/spf13/cobra"
)

// CreateFoldersCommand lists the folders of a profile's mailbox
func CreateFoldersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "folders [config-id]",
		Short: "List mailbox folders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := newApp(nil)
			if err != nil {
				return err
			}
			folders, err := a.ListFolders(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, f := range folders {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return nil
		},
	}
}

// CreatePresetsCommand prints the built-in providers, rename presets and
// file type groups
func CreatePresetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "Show providers, rename presets and file types",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

			fmt.Fprintln(w, "PROVIDER\tNAME\tSERVER\tOAUTH2")
			for _, key := range email.ProviderKeys() {
				p := email.Providers[key]
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Key, p.Name, p.Server, p.OAuth2)
			}

			fmt.Fprintln(w, "\nPRESET\tNAME\tTEMPLATE\tEXAMPLE")
			for _, p := range rename.Presets {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Key, p.Name, p.Template, p.Example)
			}

			fmt.Fprintln(w, "\nFILE TYPE\tEXTENSIONS")
			for _, name := range filter.GroupNames() {
				exts := strings.Join(filter.FileTypeGroups[name], " ")
				if exts == "" {
					exts = "(any)"
				}
				fmt.Fprintf(w, "%s\t%s\n", name, exts)
			}
			return w.Flush()
		},
	}
}
