package main

import (
	"fmt"
	"path/filepath"

	"planforge/internal/config"
	"planforge/internal/decomposer"
	"planforge/internal/executor"
	"planforge/internal/manager"
	"planforge/internal/oracle"
	"planforge/internal/sandbox"
	"planforge/internal/store"
	"planforge/internal/workspace"
)

// engine wires the full stack for one workspace: config, store, oracle,
// sandbox, executor and manager. CLI commands open it, do their work, and
// close it.
type engine struct {
	cfg      *config.Config
	store    *store.PlanStore
	gatherer *workspace.Gatherer
	manager  *manager.Manager
	audit    *executor.AuditLog
}

func openEngine(root string, opts ...executor.Option) (*engine, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	stateDir, err := workspace.StateDir(root)
	if err != nil {
		return nil, err
	}
	st, err := store.NewPlanStore(filepath.Join(stateDir, "plans.db"))
	if err != nil {
		return nil, err
	}

	audit, err := executor.OpenAuditLog(stateDir)
	if err != nil {
		st.Close()
		return nil, err
	}

	sbOpts := []sandbox.Option{
		sandbox.WithCommandTimeout(cfg.CommandTimeout()),
		sandbox.WithAuditCallback(audit.Append),
	}
	for _, extra := range cfg.Execution.AllowedRoots {
		sbOpts = append(sbOpts, sandbox.WithExtraRoot(extra))
	}
	sb, err := sandbox.New(root, sbOpts...)
	if err != nil {
		audit.Close()
		st.Close()
		return nil, err
	}

	client, err := oracle.New(oracle.Config{
		Provider: cfg.Oracle.Provider,
		APIKey:   cfg.Oracle.APIKey,
		Model:    cfg.Oracle.Model,
		BaseURL:  cfg.Oracle.BaseURL,
		Timeout:  cfg.OracleTimeout(),
	})
	if err != nil {
		audit.Close()
		st.Close()
		return nil, fmt.Errorf("oracle config: %w", err)
	}

	gatherer := workspace.NewGatherer(root)
	execOpts := append([]executor.Option{executor.WithAuditSink(audit.Append)}, opts...)
	exec := executor.New(sb, gatherer, execOpts...)
	dec := decomposer.New(client, gatherer)

	return &engine{
		cfg:      cfg,
		store:    st,
		gatherer: gatherer,
		manager:  manager.New(st, dec, exec, cfg.Execution.MaxParallel),
		audit:    audit,
	}, nil
}

func (e *engine) Close() {
	e.audit.Close()
	e.store.Close()
}
