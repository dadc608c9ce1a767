package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fieldglass/needlefinder/internal/schema"
)

var schemasFile string

var schemasCmd = &cobra.Command{
	Use:   "schemas",
	Short: "List available extraction schemas",
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg, err := schema.LoadRegistry(schemasFile)
		if err != nil {
			return err
		}
		formatSchemas(os.Stdout, reg)
		return nil
	},
}

func formatSchemas(out io.Writer, reg *schema.Registry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SCHEMA\tFIELD\tTYPE\tDESCRIPTION")
	for _, name := range reg.Names() {
		s, _ := reg.Get(name)
		for _, f := range s.Fields {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Name, f.Name, f.Type, f.Description)
		}
	}
	_ = w.Flush()
}

func init() {
	schemasCmd.Flags().StringVar(&schemasFile, "schemas-file", "", "YAML file with additional schemas")
	rootCmd.AddCommand(schemasCmd)
}
