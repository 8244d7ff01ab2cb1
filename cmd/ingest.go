package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/davidbz/soundgraph/internal/catalog"
	"github.com/davidbz/soundgraph/internal/ingest"
)

func newIngestCmd() *cobra.Command {
	var catalogPath string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index a sound catalog and store its feature vectors",
		Example: `  soundgraph ingest --catalog catalog.yaml
  OPENAI_API_KEY=sk-... soundgraph ingest --catalog catalog.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := catalog.Load(catalogPath)
			if err != nil {
				return err
			}

			return invoke(containerOptions{}, func(ingester *ingest.Ingester) error {
				report, err := ingester.Ingest(cmd.Context(), cat)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "indexed %d sounds\n", report.Sounds)

				sets := make([]string, 0, len(report.Vectors))
				for name := range report.Vectors {
					sets = append(sets, name)
				}
				sort.Strings(sets)
				for _, name := range sets {
					fmt.Fprintf(out, "stored %d vectors in %s\n", report.Vectors[name], name)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&catalogPath, "catalog", "c", "catalog.yaml", "path to the YAML sound catalog")

	return cmd
}
