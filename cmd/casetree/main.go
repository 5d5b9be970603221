package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/casetree/internal"
	pkgconfig "github.com/starford/casetree/pkg/config"
)

var version = "dev"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file",
		DefaultText: "config/config.yaml",
		Value:       "config/config.yaml",
		Sources:     cli.EnvVars("APP_CONFIG_FILE"),
	}
}

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func options(cfg *internal.Config, extra ...internal.Option) []internal.Option {
	return append([]internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, extra...)
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, options(cfg)...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, options(cfg)...)
}

// openRuntime opens the store for one-shot commands, logging to stderr so
// stdout only carries the rendered result.
func openRuntime(cmd *cli.Command) (*internal.Runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return internal.Open(options(cfg, internal.WithLogOutput(os.Stderr))...)
}

func importCases(ctx context.Context, cmd *cli.Command) error {
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	cases, err := rt.Service.Cases(ctx)
	if err != nil {
		return err
	}
	return renderCases(os.Stdout, cases, cmd.String("format"))
}

func caseArg(cmd *cli.Command) (string, error) {
	if cmd.Args().Len() != 1 {
		return "", fmt.Errorf("expected exactly one case id argument")
	}
	return cmd.Args().First(), nil
}

func splitIDs(raw string) []string {
	var out []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

func partitionCase(ctx context.Context, cmd *cli.Command) error {
	caseID, err := caseArg(cmd)
	if err != nil {
		return err
	}
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	size := rt.Config.Defaults.ChunkSize
	if cmd.IsSet("size") {
		size = int(cmd.Int("size"))
	}

	var chunks []chunkRow
	_, err = rt.Service.Partition(ctx, caseID, splitIDs(cmd.String("ids")), size, func(c caseChunk) error {
		chunks = append(chunks, newChunkRow(c))
		return nil
	})
	if err != nil {
		return err
	}
	return renderChunks(os.Stdout, chunks, cmd.String("format"))
}

func dedupeCase(ctx context.Context, cmd *cli.Command) error {
	caseID, err := caseArg(cmd)
	if err != nil {
		return err
	}
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	res, err := rt.Service.Deduplicate(ctx, caseID, splitIDs(cmd.String("ids")), cmd.String("tie-breaker"))
	if err != nil {
		return err
	}
	return renderSurvivors(os.Stdout, res, cmd.String("format"))
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "format",
		Usage: "Output format: table, json or md",
		Value: "table",
	}
}

func idsFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "ids",
		Usage: "Comma-separated record ids (default: the whole case)",
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "casetree",
		Usage:   "Structural algorithms over hierarchical case records: ancestors, partitioning, deduplication and neighbours",
		Version: version,
		Action:  serve,
		Flags:   []cli.Flag{configFlag()},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Import the case folder, watch it and serve the HTTP API",
				Flags:  []cli.Flag{configFlag()},
				Action: serve,
			},
			{
				Name:   "import",
				Usage:  "Run one import pass over the case folder and list the stored cases",
				Flags:  []cli.Flag{configFlag(), formatFlag()},
				Action: importCases,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tools on stdio",
				Flags:  []cli.Flag{configFlag()},
				Action: serveMCP,
			},
			{
				Name:      "partition",
				Usage:     "Split a case into family-preserving chunks",
				ArgsUsage: "<case>",
				Flags: []cli.Flag{
					configFlag(), formatFlag(), idsFlag(),
					&cli.IntFlag{Name: "size", Aliases: []string{"n"}, Usage: "Minimum records per chunk (default from config)"},
				},
				Action: partitionCase,
			},
			{
				Name:      "dedupe",
				Usage:     "Keep one record per digest",
				ArgsUsage: "<case>",
				Flags: []cli.Flag{
					configFlag(), formatFlag(), idsFlag(),
					&cli.StringFlag{Name: "tie-breaker", Aliases: []string{"t"}, Usage: "earliest, shallowest or physical (default from config)"},
				},
				Action: dedupeCase,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
