package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ZaguanLabs/transcache"
	"github.com/ZaguanLabs/transcache/processor"
)

// pairFlags are the language flags shared by translating commands.
type pairFlags struct {
	source   string
	target   string
	priority string
	jsonOut  bool
}

func (f *pairFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.source, "source", "s", "en", "Source language code")
	cmd.Flags().StringVarP(&f.target, "target", "t", "", "Target language code (e.g., es_ES, hi)")
	cmd.Flags().StringVar(&f.priority, "priority", "", "Request priority: high, normal, low")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "Output result as JSON")
	_ = cmd.MarkFlagRequired("target")
}

func (f *pairFlags) requests(texts []string) ([]transcache.TranslationRequest, error) {
	priority := transcache.Priority(f.priority)
	if !priority.Valid() {
		return nil, fmt.Errorf("invalid priority %q", f.priority)
	}
	reqs := make([]transcache.TranslationRequest, len(texts))
	for i, text := range texts {
		reqs[i] = transcache.TranslationRequest{
			Text:           text,
			SourceLanguage: f.source,
			TargetLanguage: f.target,
			Priority:       priority,
		}
	}
	return reqs, nil
}

func newTranslateCommand(opts *globalOptions) *cobra.Command {
	flags := &pairFlags{}
	var contextHint string

	cmd := &cobra.Command{
		Use:   "translate [text...]",
		Short: "Translate a single text (from args or stdin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				text = strings.TrimSpace(string(data))
			}

			reqs, err := flags.requests([]string{text})
			if err != nil {
				return err
			}
			reqs[0].Context = contextHint

			return withSession(opts, func(ctx context.Context, s *session) error {
				result := s.engine.Translate(ctx, reqs[0])
				if flags.jsonOut {
					return writeJSON(cmd.OutOrStdout(), result)
				}
				fmt.Fprintln(cmd.OutOrStdout(), result.TranslatedText)
				if result.Failed() {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", result.Error)
				}
				return nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&contextHint, "context", "", "Disambiguation hint for the provider")
	return cmd
}

func newBatchCommand(opts *globalOptions) *cobra.Command {
	flags := &pairFlags{}
	var showMetrics bool

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Translate stdin line by line in one coalesced batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := readLines(cmd.InOrStdin())
			if err != nil {
				return err
			}
			reqs, err := flags.requests(lines)
			if err != nil {
				return err
			}

			return withSession(opts, func(ctx context.Context, s *session) error {
				batch, err := s.engine.TranslateBatch(ctx, reqs)
				if err != nil {
					return err
				}

				if flags.jsonOut {
					if err := writeJSON(cmd.OutOrStdout(), batch); err != nil {
						return err
					}
				} else {
					for _, r := range batch.Results {
						fmt.Fprintln(cmd.OutOrStdout(), r.TranslatedText)
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "%d texts, cache hit rate %.2f, success rate %.2f, %dms\n",
						len(batch.Results), batch.CacheHitRate, batch.SuccessRate, batch.TotalProcessingTimeMs)
				}

				if showMetrics {
					return writeJSON(cmd.ErrOrStderr(), s.engine.QualityMetrics(transcache.MetricsFilter{}))
				}
				return nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "Print aggregate quality metrics to stderr")
	return cmd
}

func newHTMLCommand(opts *globalOptions) *cobra.Command {
	flags := &pairFlags{}
	var output string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "html [file]",
		Short: "Translate an HTML document (from a file or stdin)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			if len(args) == 0 {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0]) // #nosec G304 - CLI tool reads user-specified files
			}
			if err != nil {
				return fmt.Errorf("reading input: %w", err)
			}

			proc := processor.NewHTMLProcessor()
			if dryRun {
				return runDryRun(cmd.OutOrStdout(), proc, string(data), flags)
			}

			return withSession(opts, func(ctx context.Context, s *session) error {
				result, err := proc.Translate(ctx, s.engine, string(data), flags.source, flags.target)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if output != "" {
					f, err := os.Create(output)
					if err != nil {
						return fmt.Errorf("creating output file: %w", err)
					}
					defer f.Close()
					out = f
				}

				if flags.jsonOut {
					return writeJSON(out, result)
				}
				fmt.Fprint(out, result.Content)
				fmt.Fprintf(cmd.ErrOrStderr(), "\nNodes: %d, from cache: %d, failed: %d\n",
					result.Nodes, result.Cached, result.Failed)
				return nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be translated without calling the provider")
	return cmd
}

// runDryRun lists the text nodes that would be translated.
func runDryRun(w io.Writer, proc *processor.HTMLProcessor, content string, flags *pairFlags) error {
	_, nodes, err := proc.Extract(content)
	if err != nil {
		return fmt.Errorf("extracting text: %w", err)
	}

	if flags.jsonOut {
		texts := make([]string, len(nodes))
		for i, n := range nodes {
			texts[i] = n.Text
		}
		return writeJSON(w, struct {
			TargetLang string   `json:"target_lang"`
			NodeCount  int      `json:"node_count"`
			Texts      []string `json:"texts"`
		}{flags.target, len(nodes), texts})
	}

	fmt.Fprintf(w, "Dry run: -> %s\n", flags.target)
	fmt.Fprintf(w, "Found %d translatable text nodes:\n\n", len(nodes))
	for i, node := range nodes {
		text := node.Text
		if len(text) > 60 {
			text = text[:57] + "..."
		}
		fmt.Fprintf(w, "%3d. %q\n", i+1, text)
		if node.Context != "" {
			fmt.Fprintf(w, "     Context: %s\n", node.Context)
		}
	}
	return nil
}

func newMetricsCommand(opts *globalOptions) *cobra.Command {
	flags := &pairFlags{}
	var recent int

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Translate stdin as a batch and print quality metrics and engine stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := readLines(cmd.InOrStdin())
			if err != nil {
				return err
			}
			reqs, err := flags.requests(lines)
			if err != nil {
				return err
			}

			return withSession(opts, func(ctx context.Context, s *session) error {
				if _, err := s.engine.TranslateBatch(ctx, reqs); err != nil {
					return err
				}
				report := struct {
					Metrics transcache.AggregateMetrics `json:"metrics"`
					Stats   transcache.Stats            `json:"stats"`
					Recent  []transcache.QualityMetric  `json:"recent,omitempty"`
				}{
					Metrics: s.engine.QualityMetrics(transcache.MetricsFilter{
						SourceLanguage: flags.source,
						TargetLanguage: flags.target,
					}),
					Stats: s.engine.Stats(),
				}
				if recent > 0 {
					report.Recent = s.engine.RecentMetrics(recent)
				}
				return writeJSON(cmd.OutOrStdout(), report)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&recent, "recent", 0, "Include the N most recent samples")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", transcache.Name, transcache.FullVersion())
			if transcache.BuildDate != "unknown" && transcache.BuildDate != "" {
				fmt.Fprintf(out, "  built:   %s\n", transcache.BuildDate)
			}
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
