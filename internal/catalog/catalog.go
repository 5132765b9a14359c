// Package catalog assembles the tool registry from whichever
// integrations are configured.
package catalog

import (
	"context"
	"log/slog"

	"github.com/halverson/scout-sre-agent/internal/config"
	"github.com/halverson/scout-sre-agent/internal/datadog"
	"github.com/halverson/scout-sre-agent/internal/kube"
	"github.com/halverson/scout-sre-agent/internal/pagerduty"
	"github.com/halverson/scout-sre-agent/internal/sqsqueue"
	"github.com/halverson/scout-sre-agent/internal/tools"
)

// Build constructs the tool set for all configured integrations. An
// integration that is not configured contributes nothing; one that
// fails to initialize is logged and skipped so the rest still load.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) []*tools.Tool {
	var all []*tools.Tool

	if cfg.IsConfigured(config.IntegrationDatadog) {
		client := datadog.NewClient(cfg.Datadog.APIKey, cfg.Datadog.AppKey, cfg.Datadog.Site, logger)
		all = append(all, datadog.Tools(client, logger)...)
		logger.Info("datadog tools registered", "site", cfg.Datadog.Site)
	}

	if cfg.IsConfigured(config.IntegrationPagerDuty) {
		client := pagerduty.NewClient(cfg.PagerDuty.APIKey, logger)
		all = append(all, pagerduty.Tools(client, logger)...)
		logger.Info("pagerduty tools registered")
	}

	if cfg.IsConfigured(config.IntegrationKubernetes) {
		client := kube.NewClient(cfg.Kubernetes.Kubeconfig, logger)
		all = append(all, kube.Tools(client, logger)...)
		logger.Info("kubernetes tools registered", "kubeconfig", cfg.Kubernetes.Kubeconfig)
	}

	if cfg.IsConfigured(config.IntegrationSQS) {
		client, err := sqsqueue.NewClient(ctx, sqsqueue.Options{
			Region:          cfg.SQS.Region,
			AccessKeyID:     cfg.SQS.AccessKeyID,
			SecretAccessKey: cfg.SQS.SecretAccessKey,
			Profile:         cfg.SQS.Profile,
		}, logger)
		if err != nil {
			logger.Warn("sqs tools unavailable", "error", err)
		} else {
			all = append(all, sqsqueue.Tools(client, logger)...)
			logger.Info("sqs tools registered", "region", cfg.SQS.Region)
		}
	}

	return all
}
