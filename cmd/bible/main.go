// Command bible looks up books, translations, chapters and verses from the
// scripture API, caching responses according to BIBLE_* settings.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	bible "github.com/JohnPlummer/jp-go-bible"
	"github.com/JohnPlummer/jp-go-bible/config"
)

type cli struct {
	LogLevel  string   `help:"Log level." enum:"debug,info,warn,error" default:"warn"`
	LogFormat string   `help:"Log format." enum:"text,json" default:"text"`
	EnvFile   []string `help:"Optional .env files loaded before reading BIBLE_* variables." default:".env"`
	Version   string   `help:"Translation to use, overriding BIBLE_VERSION." short:"v"`
	JSON      bool     `help:"Print results as JSON."`
	Metrics   bool     `help:"Print Prometheus metrics to stderr when done."`
	Health    bool     `help:"Print client health to stderr when done."`

	Books    booksCmd    `cmd:"" help:"List the books of the Bible."`
	Versions versionsCmd `cmd:"" help:"List the available translations."`
	Chapter  chapterCmd  `cmd:"" help:"Print a chapter."`
	Verse    verseCmd    `cmd:"" help:"Print a single verse."`
	Cache    cacheCmd    `cmd:"" help:"Manage the response cache."`
}

type app struct {
	ctx     context.Context
	out     io.Writer
	json    bool
	service *bible.Service
}

func (a *app) print(v any, text func(w io.Writer)) error {
	if a.json {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(a.out)
	return nil
}

type booksCmd struct{}

func (c *booksCmd) Run(a *app) error {
	books, err := a.service.Books(a.ctx)
	if err != nil {
		return err
	}
	return a.print(books, func(w io.Writer) {
		for _, b := range books {
			fmt.Fprintf(w, "%-4s %-24s %3d chapters  %s\n", b.Abbreviation, b.Name, b.ChapterCount, b.Testament)
		}
	})
}

type versionsCmd struct{}

func (c *versionsCmd) Run(a *app) error {
	versions, err := a.service.Versions(a.ctx)
	if err != nil {
		return err
	}
	return a.print(versions, func(w io.Writer) {
		for _, v := range versions {
			fmt.Fprintf(w, "%-6s %8d verses\n", v.Code, v.VerseCount)
		}
	})
}

type chapterCmd struct {
	Book    string `arg:"" help:"Book abbreviation, e.g. gn or jo."`
	Chapter int    `arg:"" help:"Chapter number."`
}

func (c *chapterCmd) Run(a *app) error {
	book, err := bible.ParseBook(c.Book)
	if err != nil {
		return err
	}
	chapter, err := a.service.Chapter(a.ctx, book, c.Chapter)
	if err != nil {
		return err
	}
	return a.print(chapter, func(w io.Writer) {
		fmt.Fprintf(w, "%s %d\n\n", chapter.Book.Name, chapter.Number)
		for _, v := range chapter.Verses {
			fmt.Fprintf(w, "%3d  %s\n", v.Number, v.Text)
		}
	})
}

type verseCmd struct {
	Book    string `arg:"" help:"Book abbreviation, e.g. gn or jo."`
	Chapter int    `arg:"" help:"Chapter number."`
	Verse   int    `arg:"" help:"Verse number."`
}

func (c *verseCmd) Run(a *app) error {
	book, err := bible.ParseBook(c.Book)
	if err != nil {
		return err
	}
	verse, err := a.service.Verse(a.ctx, book, c.Chapter, c.Verse)
	if err != nil {
		return err
	}
	return a.print(verse, func(w io.Writer) {
		fmt.Fprintf(w, "%s %d:%d  %s\n", book, c.Chapter, verse.Number, verse.Text)
	})
}

type cacheCmd struct {
	Clear cacheClearCmd `cmd:"" help:"Remove every cached response."`
}

type cacheClearCmd struct{}

func (c *cacheClearCmd) Run(a *app) error {
	if err := a.service.ClearCache(a.ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "cache cleared")
	return nil
}

func main() {
	var flags cli
	kctx := kong.Parse(&flags,
		kong.Name("bible"),
		kong.Description("Resilient scripture lookup client."),
		kong.UsageOnError(),
	)

	if err := run(kctx, &flags); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(kctx *kong.Context, flags *cli) error {
	logger, err := newLogger(flags.LogLevel, flags.LogFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	cfg, err := config.Load(flags.EnvFile...)
	if err != nil {
		return err
	}
	if flags.Version != "" {
		cfg.Version = flags.Version
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	rt, err := cfg.Build(ctx, logger, reg)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("closing client", "error", err)
		}
	}()

	runErr := kctx.Run(&app{
		ctx:     ctx,
		out:     os.Stdout,
		json:    flags.JSON,
		service: rt.Service,
	})

	if flags.Health {
		enc := json.NewEncoder(os.Stderr)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rt.Client.Health()); err != nil {
			logger.Warn("writing health", "error", err)
		}
	}
	if flags.Metrics {
		if err := writeMetrics(os.Stderr, reg); err != nil {
			logger.Warn("writing metrics", "error", err)
		}
	}

	return runErr
}

func newLogger(logLevel, logFormat string) (*slog.Logger, error) {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level: %s", logLevel)
	}

	var handler slog.Handler
	switch logFormat {
	case "text":
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	default:
		return nil, fmt.Errorf("invalid log format: %s", logFormat)
	}
	return slog.New(handler), nil
}

func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
