// Package cli defines the regcrawler commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/tik-regcrawler/internal/app"
	"github.com/JakeFAU/tik-regcrawler/internal/config"
	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
	"github.com/JakeFAU/tik-regcrawler/internal/logging"
	"github.com/JakeFAU/tik-regcrawler/internal/selector"
)

// Service is what the commands need from the wired application.
type Service interface {
	RunSource(ctx context.Context, sourceID string) (crawler.RunSummary, error)
	RunAll(ctx context.Context) ([]crawler.RunSummary, error)
	Calibrate(ctx context.Context, sourceID string) (selector.Decision, error)
	Serve(ctx context.Context) error
	Close(ctx context.Context)
}

type serviceKeyType string

const serviceKey serviceKeyType = "service"

// Factory builds the Service from loaded config. It is replaced in tests.
type Factory func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Service, error)

// DefaultFactory wires the real application.
func DefaultFactory(ctx context.Context, cfg config.Config, logger *zap.Logger) (Service, error) {
	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		return nil, err
	}
	return appService{a}, nil
}

type appService struct{ *app.App }

func (s appService) RunSource(ctx context.Context, sourceID string) (crawler.RunSummary, error) {
	return s.Orchestrator.RunSource(ctx, sourceID)
}

func (s appService) RunAll(ctx context.Context) ([]crawler.RunSummary, error) {
	return s.Orchestrator.RunAll(ctx)
}

func (s appService) Calibrate(ctx context.Context, sourceID string) (selector.Decision, error) {
	src, err := s.Sources.GetSource(ctx, sourceID)
	if err != nil {
		return selector.Decision{}, fmt.Errorf("load source: %w", err)
	}
	return s.Selector.SelectForSource(ctx, src)
}

// Execute runs the command tree with args and closes the service whether or
// not the subcommand failed.
func Execute(ctx context.Context, factory Factory, args []string, out, errOut io.Writer) error {
	var svc Service
	cmd := NewRootCmd(func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Service, error) {
		s, err := factory(ctx, cfg, logger)
		svc = s
		return s, err
	}, out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	defer func() {
		if svc != nil {
			svc.Close(context.WithoutCancel(ctx))
		}
	}()
	return cmd.ExecuteContext(ctx)
}

// NewRootCmd builds the command tree. The service is created after flags
// are parsed; closing it is left to the caller.
func NewRootCmd(factory Factory, out io.Writer) *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "regcrawler",
		Short: "Acquires Indonesian ICT regulations and classifies their relevance.",
		Long: `regcrawler discovers regulation pages on configured government sources,
fetches them with an adaptively selected strategy, extracts and scores each
document, and stores the relevant ones once.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Config{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			svc, err := factory(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), serviceKey, svc))
			return nil
		},
	}
	cmd.SetOut(out)
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); env vars use the REGCRAWLER_ prefix")

	cmd.AddCommand(newRunCmd(), newServeCmd(), newCalibrateCmd())
	return cmd
}

func resolveService(ctx context.Context) (Service, error) {
	svc, ok := ctx.Value(serviceKey).(Service)
	if !ok || svc == nil {
		return nil, errors.New("application services not initialized")
	}
	return svc, nil
}
