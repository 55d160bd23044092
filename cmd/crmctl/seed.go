package main

import (
	"fmt"

	pipelinerepo "outreach_backend/internal/pipeline/repository"
	pipelineservice "outreach_backend/internal/pipeline/service"
	"outreach_backend/platform/validator"

	"github.com/spf13/cobra"
)

var (
	seedTenant string
	seedFile   string
)

var seedCmd = &cobra.Command{
	Use:   "seed-pipelines",
	Short: "Create a tenant's pipelines from YAML templates",
	Long:  `Seeds pipelines and their stages for a tenant. Pipelines that already exist by name are skipped. Without --file the built-in templates are used.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tenantID, err := parseTenant(seedTenant)
		if err != nil {
			return err
		}

		path := seedFile
		rt, err := openRuntime(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()
		if path == "" {
			path = rt.cfg.PipelineTemplatesFile
		}

		templates, err := pipelineservice.LoadTemplates(path)
		if err != nil {
			return err
		}

		svc := pipelineservice.New(pipelinerepo.New(rt.pool), rt.bus, validator.New(), rt.log)
		report, err := svc.SeedFromTemplates(cmd.Context(), tenantID, templates)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created=%d skipped=%d\n", report.Created, report.Skipped)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedTenant, "tenant", "", "Tenant ID to seed")
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "Path to a pipeline templates YAML file")
	_ = seedCmd.MarkFlagRequired("tenant")
}
