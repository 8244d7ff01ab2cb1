package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/davidbz/soundgraph/internal/config"
	"github.com/davidbz/soundgraph/internal/domain"
)

// errClusteringFailed is returned when the foreground computation stored a failure.
var errClusteringFailed = errors.New("clustering failed, see logs")

func newClusterCmd() *cobra.Command {
	var (
		params     domain.QueryParams
		featureSet string
		graphOnly  bool
	)

	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Cluster the results of one search in the foreground and print them",
		Example: `  soundgraph cluster --query "dog bark"
  soundgraph cluster --query rain --features mfcc --graph`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params.Weights = domain.DefaultFieldWeights()

			return invoke(containerOptions{foreground: true}, func(
				service *domain.ClusterService,
				cfg *config.ClusteringConfig,
			) error {
				if featureSet == "" {
					featureSet = cfg.DefaultFeatures
				}

				// The first call computes inline; the second reads the stored outcome.
				if _, err := service.GetOrComputeClusters(cmd.Context(), params, featureSet); err != nil {
					return err
				}
				status, err := service.GetOrComputeClusters(cmd.Context(), params, featureSet)
				if err != nil {
					return err
				}
				if !status.Finished {
					return errClusteringFailed
				}

				var body any = status.Result.Facets(domain.DefaultFacetExamples)
				if graphOnly {
					body = status.Result.Graph
				}

				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				if err := encoder.Encode(body); err != nil {
					return fmt.Errorf("failed to print clusters: %w", err)
				}
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&params.SearchQuery, "query", "q", "", "search query")
	flags.StringVarP(&params.FilterQuery, "filter", "f", "", "filter query")
	flags.StringVarP(&params.Sort, "sort", "s", "", "sort order")
	flags.BoolVarP(&params.Grouping, "group-by-pack", "g", false, "collapse results by pack")
	flags.StringVar(&featureSet, "features", "", "feature set used for similarity (defaults to CLUSTERING_DEFAULT_FEATURES)")
	flags.BoolVar(&graphOnly, "graph", false, "print the node-link graph instead of the cluster facet")

	return cmd
}
