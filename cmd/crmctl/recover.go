package main

import (
	"encoding/json"

	pipelinerepo "outreach_backend/internal/pipeline/repository"
	pipelineservice "outreach_backend/internal/pipeline/service"
	"outreach_backend/platform/validator"

	"github.com/spf13/cobra"
)

var recoverTenant string

var recoverCmd = &cobra.Command{
	Use:   "recover-stages",
	Short: "Place a tenant's deals that have no current stage, whatever their status",
	RunE: func(cmd *cobra.Command, args []string) error {
		tenantID, err := parseTenant(recoverTenant)
		if err != nil {
			return err
		}

		rt, err := openRuntime(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()

		svc := pipelineservice.New(pipelinerepo.New(rt.pool), rt.bus, validator.New(), rt.log)
		report, runErr := svc.RecoverAll(cmd.Context(), tenantID)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
		return runErr
	},
}

func init() {
	recoverCmd.Flags().StringVar(&recoverTenant, "tenant", "", "Tenant ID to recover")
	_ = recoverCmd.MarkFlagRequired("tenant")
}
