package cmd

import (
	"fmt"

	"github.com/3leaps/engineshift/internal/config"
	"github.com/3leaps/engineshift/internal/observability"
	"github.com/3leaps/engineshift/pkg/appsearch"
	"github.com/3leaps/engineshift/pkg/importer"
)

// Cluster names accepted by --cluster.
const (
	clusterSource = "source"
	clusterTarget = "target"
)

func clusterConfig(cfg *config.Config, cluster string) (config.ClusterConfig, error) {
	switch cluster {
	case clusterSource:
		return cfg.Source, nil
	case clusterTarget:
		return cfg.Target, nil
	default:
		return config.ClusterConfig{}, fmt.Errorf("unknown cluster %q (want source or target)", cluster)
	}
}

// newClient builds an API client for the named cluster.
func newClient(cfg *config.Config, cluster string) (*appsearch.Client, error) {
	cc, err := clusterConfig(cfg, cluster)
	if err != nil {
		return nil, err
	}
	c, err := appsearch.New(appsearch.Config{
		Endpoint:  cc.Endpoint,
		APIKey:    cc.Key,
		Timeout:   cfg.HTTP.Timeout,
		RateLimit: cfg.HTTP.RateLimit,
		PageSize:  cfg.HTTP.PageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("%s cluster: %w", cluster, err)
	}
	return c, nil
}

// importOptions returns importer options tuned from configuration, with
// warnings routed to the CLI logger.
func importOptions(cfg *config.Config) importer.Options {
	return importer.Options{
		SchemaBatchSize:    cfg.Import.SchemaBatchSize,
		CreateAttempts:     cfg.Import.CreateAttempts,
		CreateDelay:        cfg.Import.CreateDelay,
		DeleteWaitAttempts: cfg.Import.DeleteWaitAttempts,
		DeleteWaitDelay:    cfg.Import.DeleteWaitDelay,
		Warnf: func(format string, args ...any) {
			observability.CLILogger.Warn(fmt.Sprintf(format, args...))
		},
	}
}
