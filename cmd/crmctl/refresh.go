package main

import (
	"encoding/json"
	"fmt"

	engagementrepo "outreach_backend/internal/engagement/repository"
	engagementservice "outreach_backend/internal/engagement/service"
	"outreach_backend/internal/pipeline"
	"outreach_backend/internal/scheduler"
	"outreach_backend/platform/config"
	"outreach_backend/platform/validator"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	refreshTenant  string
	refreshEnqueue bool
)

var refreshCmd = &cobra.Command{
	Use:   "refresh-engagement",
	Short: "Recompute cached engagement tiers",
	Long:  `Recomputes engagement tiers for open deals of one tenant, or of every tenant when --tenant is omitted. With --enqueue the work is handed to the scheduler worker instead of running inline.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tenantID := uuid.Nil
		if refreshTenant != "" {
			id, err := parseTenant(refreshTenant)
			if err != nil {
				return err
			}
			tenantID = id
		}

		if refreshEnqueue {
			return enqueueRefresh(cmd, tenantID)
		}

		rt, err := openRuntime(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()

		pipeline.NewModule(rt.pool, rt.bus, validator.New(), rt.log, nil).RegisterHandlers(rt.bus)
		svc := engagementservice.New(engagementrepo.New(rt.pool), rt.bus, rt.log,
			engagementservice.WithLocation(rt.cfg.GetEngagementLocation()),
		)

		var report engagementservice.RefreshReport
		if tenantID == uuid.Nil {
			report, err = svc.RefreshAll(cmd.Context())
		} else {
			report, err = svc.RefreshActive(cmd.Context(), tenantID)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(report); encErr != nil {
			return encErr
		}
		return err
	},
}

func enqueueRefresh(cmd *cobra.Command, tenantID uuid.UUID) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	client, err := scheduler.NewClient(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if err := client.EnqueueEngagementRefresh(cmd.Context(), tenantID); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "engagement refresh enqueued")
	return nil
}

func init() {
	refreshCmd.Flags().StringVar(&refreshTenant, "tenant", "", "Tenant ID to refresh (default: all tenants)")
	refreshCmd.Flags().BoolVar(&refreshEnqueue, "enqueue", false, "Enqueue an asynq task instead of running inline")
}
