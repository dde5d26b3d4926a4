package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"vidsub/internal/config"
	"vidsub/internal/logging"
	"vidsub/internal/statestore"
	"vidsub/internal/workflow"
)

type commandContext struct {
	configFlag *string

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configExists = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) logger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return logging.NewFromConfig(cfg)
}

// session is one locked view of the workflow state.
type session struct {
	cfg    *config.Config
	store  *workflow.Store
	logger *slog.Logger
	lock   *statestore.Lock
	close  func() error
}

func (s *session) Close() error {
	var errs []error
	if s.close != nil {
		errs = append(errs, s.close())
	}
	errs = append(errs, s.lock.Release())
	return errors.Join(errs...)
}

// withSession takes the state lock, loads the workflow store and runs fn.
func (c *commandContext) withSession(ctx context.Context, fn func(*session) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := c.logger()
	if err != nil {
		return err
	}
	s, err := openSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			logging.WarnWithContext(logger, "state session close failed", "session_close_failed", logging.Error(cerr))
		}
	}()
	return fn(s)
}

func openSession(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*session, error) {
	policy, err := workflow.ParsePolicy(cfg.Workflow.StepPolicy)
	if err != nil {
		return nil, err
	}
	lock, err := statestore.AcquireLock(cfg.StateLockPath())
	if err != nil {
		if errors.Is(err, statestore.ErrLocked) {
			return nil, fmt.Errorf("another vidsub command is using the workflow state: %w", err)
		}
		return nil, err
	}
	slot, closeSlot, err := openSlot(cfg)
	if err != nil {
		_ = lock.Release()
		return nil, err
	}
	store := workflow.Open(ctx, slot,
		workflow.WithLogger(logger),
		workflow.WithPolicy(policy),
		workflow.WithKey(cfg.Workflow.StateKey),
	)
	return &session{cfg: cfg, store: store, logger: logger, lock: lock, close: closeSlot}, nil
}

func openSlot(cfg *config.Config) (workflow.Slot, func() error, error) {
	switch cfg.Workflow.StateBackend {
	case config.StateBackendFile:
		slot, err := statestore.NewFile(cfg.Paths.StateDir)
		if err != nil {
			return nil, nil, fmt.Errorf("open file state: %w", err)
		}
		return slot, nil, nil
	default:
		db, err := statestore.OpenSQLite(cfg.StateDatabasePath())
		if err != nil {
			return nil, nil, fmt.Errorf("open state database: %w", err)
		}
		return db, db.Close, nil
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
