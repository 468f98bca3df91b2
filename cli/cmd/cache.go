package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/scriptrun/cli/render"
	"github.com/pithecene-io/scriptrun/cli/report"
	"github.com/pithecene-io/scriptrun/cli/tui"
	"github.com/pithecene-io/scriptrun/runtime"
	"github.com/pithecene-io/scriptrun/types"
)

// CacheCommand returns the cache command with subcommands.
func CacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect or clear the snippet cache",
		Subcommands: []*cli.Command{
			cacheListCommand(),
			cacheClearCommand(),
		},
	}
}

var langFilterFlag = &cli.StringFlag{
	Name:    "lang",
	Aliases: []string{"l"},
	Usage:   "Only entries for this language",
}

func cacheListCommand() *cli.Command {
	return &cli.Command{
		Name:   "list",
		Usage:  "List cached snippets",
		Flags:  append(OutputFlags(), langFilterFlag, CacheDirFlag),
		Action: cacheListAction,
	}
}

func cacheListAction(c *cli.Context) error {
	cfg, err := mustConfig(c)
	if err != nil {
		return err
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}
	lang, err := parseLangFilter(c.String("lang"))
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	cache := newCache(cfg)
	if cache == nil {
		return cli.Exit("snippet cache is disabled (no_cache: true)", exitInvalidInput)
	}
	entries, err := cache.List()
	if err != nil {
		return fmt.Errorf("failed to read cache index: %w", err)
	}

	var filtered []runtime.CacheEntry
	for _, e := range entries {
		if lang == "" || e.Language == lang {
			filtered = append(filtered, e)
		}
	}
	rows := report.CacheEntries(filtered)

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewCache, rows)
	}
	return r.Render(rows)
}

func cacheClearCommand() *cli.Command {
	return &cli.Command{
		Name:   "clear",
		Usage:  "Remove cached snippets",
		Flags:  append(OutputFlags(), langFilterFlag, CacheDirFlag),
		Action: cacheClearAction,
	}
}

func cacheClearAction(c *cli.Context) error {
	cfg, err := mustConfig(c)
	if err != nil {
		return err
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for cache clear", exitInvalidInput)
	}
	lang, err := parseLangFilter(c.String("lang"))
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	cache := newCache(cfg)
	if cache == nil {
		return cli.Exit("snippet cache is disabled (no_cache: true)", exitInvalidInput)
	}
	removed, err := cache.Clear(lang)
	if err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}

	label := string(lang)
	if label == "" {
		label = "all"
	}
	return r.Render(report.CacheClear{Language: label, Removed: removed, Dir: cache.Dir()})
}

func parseLangFilter(s string) (types.Language, error) {
	if s == "" {
		return "", nil
	}
	return types.ParseLanguage(s)
}
