// Command transcache translates text and HTML through a caching, rate-limited engine.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ZaguanLabs/transcache"
	"github.com/ZaguanLabs/transcache/cache"
	"github.com/ZaguanLabs/transcache/internal/logger"
	"github.com/ZaguanLabs/transcache/provider"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// globalOptions are the flags shared by every subcommand.
type globalOptions struct {
	configFile string
	mock       bool
	redisURL   string
	logLevel   string
	snapshot   string
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	root := newRootCommand()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.Execute()
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           transcache.Name,
		Short:         transcache.Description,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "Config file (yaml, json or toml)")
	flags.BoolVar(&opts.mock, "mock", false, "Use the built-in mock provider instead of OpenAI")
	flags.StringVar(&opts.redisURL, "redis", "", "Redis URL for the shared cache tier (e.g., redis://localhost:6379/0)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&opts.snapshot, "snapshot", "", "Cache snapshot file, loaded at start and saved on exit")

	root.AddCommand(
		newTranslateCommand(opts),
		newBatchCommand(opts),
		newHTMLCommand(opts),
		newMetricsCommand(opts),
		newVersionCommand(),
	)
	return root
}

// session is an engine plus everything that must be released with it.
type session struct {
	engine *transcache.Engine
	log    *zap.Logger
	remote *cache.RedisCache
	opts   *globalOptions
}

func openSession(opts *globalOptions) (*session, error) {
	cfg, err := transcache.LoadConfig(opts.configFile)
	if err != nil {
		return nil, err
	}
	if opts.redisURL != "" {
		cfg.RedisURL = opts.redisURL
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	p, err := newProvider(opts, cfg)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}

	s := &session{log: log, opts: opts}
	engineOpts := []transcache.Option{
		transcache.WithConfig(cfg),
		transcache.WithLogger(log),
	}

	if cfg.RedisURL != "" && cfg.CacheEnabled {
		rc, err := cache.NewRedisCache(cache.RedisConfig{URL: cfg.RedisURL})
		if err != nil {
			log.Warn("redis unavailable, using in-process cache only", zap.Error(err))
		} else {
			s.remote = rc
			engineOpts = append(engineOpts, transcache.WithDistributedCache(rc))
		}
	}

	s.engine, err = transcache.New(p, engineOpts...)
	if err != nil {
		s.close()
		return nil, err
	}

	if opts.snapshot != "" && cfg.CacheEnabled {
		if err := s.loadSnapshot(); err != nil {
			s.close()
			return nil, err
		}
	}
	return s, nil
}

func newProvider(opts *globalOptions, cfg transcache.Config) (transcache.Provider, error) {
	if opts.mock {
		return provider.NewMockProvider(), nil
	}

	key := cfg.OpenAIAPIKey
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key == "" {
		return nil, errors.New("OpenAI API key required (--mock, TRANSCACHE_OPENAI_API_KEY or OPENAI_API_KEY env)")
	}
	return provider.NewOpenAIProvider(provider.OpenAIConfig{
		APIKey:  key,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIBaseURL,
	}), nil
}

func (s *session) loadSnapshot() error {
	f, err := os.Open(s.opts.snapshot) // #nosec G304 - CLI tool reads user-specified files
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	res, err := s.engine.ImportCache(f)
	if err != nil {
		return fmt.Errorf("loading snapshot: %w", err)
	}
	s.log.Info("snapshot loaded",
		zap.String("path", s.opts.snapshot),
		zap.Int("imported", res.Imported),
		zap.Int("expired", res.Expired),
		zap.Int("failed", res.Failed))
	return nil
}

func (s *session) saveSnapshot() error {
	f, err := os.Create(s.opts.snapshot)
	if err != nil {
		return fmt.Errorf("creating snapshot: %w", err)
	}
	n, err := s.engine.ExportCache(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	s.log.Info("snapshot saved", zap.String("path", s.opts.snapshot), zap.Int("entries", n))
	return nil
}

// finish saves the snapshot, if any, and releases the session.
func (s *session) finish() error {
	var err error
	if s.opts.snapshot != "" && s.engine.Config().CacheEnabled {
		err = s.saveSnapshot()
	}
	s.close()
	return err
}

func (s *session) close() {
	if s.engine != nil {
		_ = s.engine.Close()
	}
	if s.remote != nil {
		_ = s.remote.Close()
	}
	_ = s.log.Sync()
}

// withSession opens a session, runs fn and finishes the session.
func withSession(opts *globalOptions, fn func(ctx context.Context, s *session) error) error {
	s, err := openSession(opts)
	if err != nil {
		return err
	}
	if err := fn(context.Background(), s); err != nil {
		s.close()
		return err
	}
	return s.finish()
}

// readLines returns the non-empty lines of r.
func readLines(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}
