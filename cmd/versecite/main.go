// Command versecite extracts scripture citations from text.
// It can scan files, keep a citation index and serve the scanner over HTTP.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/versecite/core/refscan"
	"github.com/FocuswithJustin/versecite/core/xml"
	"github.com/FocuswithJustin/versecite/internal/api"
	"github.com/FocuswithJustin/versecite/internal/logging"
	"github.com/FocuswithJustin/versecite/internal/validation"
)

// Globals are the flags shared by every command.
type Globals struct {
	LogLevel     string `name:"log-level" help:"Log level (${enum})" enum:"debug,info,warn,error" default:"info" env:"VERSECITE_LOG_LEVEL"`
	LogFormat    string `name:"log-format" help:"Log format (${enum})" enum:"text,json" default:"text" env:"VERSECITE_LOG_FORMAT"`
	MaxBookWords int    `name:"max-book-words" help:"Words a book name may span" default:"1" env:"VERSECITE_MAX_BOOK_WORDS"`
	MaxValue     int    `name:"max-value" help:"Largest chapter or verse number" default:"${max_value}" env:"VERSECITE_MAX_VALUE"`

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// CLI defines the command-line interface for versecite.
type CLI struct {
	Globals

	Parse   ParseCmd   `cmd:"" help:"Extract citations from files or stdin"`
	Expand  ExpandCmd  `cmd:"" help:"Expand a list expression such as 1-3,7"`
	Index   IndexGroup `cmd:"" help:"Citation index operations"`
	Serve   ServeCmd   `cmd:"" help:"Start the HTTP and WebSocket API"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

func (g *Globals) initLogging() error {
	level, err := logging.ParseLevel(g.LogLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(g.LogFormat)
	if err != nil {
		return err
	}
	logging.InitLoggerWithWriter(g.stderr, level, format)
	return nil
}

func (g *Globals) parser(opts ...refscan.Option) *refscan.Parser {
	base := []refscan.Option{
		refscan.WithMaxBookWords(g.MaxBookWords),
		refscan.WithMaxValue(g.MaxValue),
		refscan.WithLogger(logging.GetLogger()),
	}
	return refscan.NewParser(append(base, opts...)...)
}

// ParseCmd scans text for citations.
type ParseCmd struct {
	Files       []string `arg:"" optional:"" help:"Files to scan (stdin when omitted)" type:"existingfile"`
	Format      string   `short:"f" help:"Output format (${enum})" enum:"text,json" default:"text"`
	XML         bool     `name:"xml" help:"Treat input as XML and scan its text nodes"`
	XPath       string   `name:"xpath" help:"XPath selecting the text to scan (implies --xml)"`
	Plain       bool     `help:"Scan XML input as plain text instead of detecting it"`
	Diagnostics bool     `short:"d" help:"Report skipped citation runs"`
}

type parseOutput struct {
	Source      string                   `json:"source"`
	References  []refscan.BibleReference `json:"references"`
	Diagnostics []refscan.Diagnostic     `json:"diagnostics,omitempty"`
}

func (c *ParseCmd) Run(g *Globals) error {
	type source struct {
		name string
		data []byte
	}
	var sources []source
	if len(c.Files) == 0 {
		data, err := io.ReadAll(g.stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		sources = append(sources, source{"-", data})
	}
	for _, path := range c.Files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		sources = append(sources, source{path, data})
	}

	p := g.parser()
	enc := json.NewEncoder(g.stdout)
	for _, src := range sources {
		asXML := c.XML || c.XPath != ""
		if !asXML && !c.Plain {
			asXML = validation.DetectKind(src.data, src.name) == validation.KindXML
		}
		text, err := loadText(src.name, src.data, asXML, c.XPath)
		if err != nil {
			return err
		}

		res := p.ParseDetailed(text)
		logging.ScanCompleted(src.name, len(res.References), len(res.Diagnostics))

		if c.Format == "json" {
			out := parseOutput{Source: src.name, References: res.References}
			if c.Diagnostics {
				out.Diagnostics = res.Diagnostics
			}
			if err := enc.Encode(out); err != nil {
				return err
			}
			continue
		}

		prefix := ""
		if len(sources) > 1 {
			prefix = src.name + ": "
		}
		for _, ref := range res.References {
			fmt.Fprintf(g.stdout, "%s%s\n", prefix, ref)
		}
		if c.Diagnostics {
			for _, d := range res.Diagnostics {
				fmt.Fprintf(g.stderr, "%s: %s\n", src.name, d)
			}
		}
	}
	return nil
}

// loadText checks a document and returns the text to scan. XML documents
// are reduced to the text selected by xpath.
func loadText(name string, data []byte, asXML bool, xpath string) (string, error) {
	if _, err := validation.CheckDocument(data, name); err != nil {
		return "", err
	}
	if !asXML {
		return string(data), nil
	}
	segs, err := xml.ExtractText(data, xpath)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return xml.Join(segs), nil
}

// ExpandCmd expands a chapter or verse list.
type ExpandCmd struct {
	Expr string `arg:"" help:"List expression, e.g. \"5-8, 10\""`
}

func (c *ExpandCmd) Run(g *Globals) error {
	values, err := g.parser().ExpandList(c.Expr)
	if err != nil {
		return err
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	fmt.Fprintln(g.stdout, strings.Join(parts, " "))
	return nil
}

// ServeCmd starts the API server.
type ServeCmd struct {
	Port           int           `help:"HTTP server port" default:"8080" env:"VERSECITE_PORT"`
	DB             string        `name:"db" help:"Citation index database (enables /api/documents)" type:"path" env:"VERSECITE_DB"`
	CacheSize      int           `help:"Parse results kept in memory (0 disables)" default:"256"`
	CacheTTL       time.Duration `name:"cache-ttl" help:"How long a cached parse result stays valid (0 keeps it until evicted)" default:"0s"`
	AllowedOrigins []string      `help:"Allowed CORS and WebSocket origins (empty allows all)" sep:"," env:"VERSECITE_ALLOWED_ORIGINS"`
	RateLimit      int           `help:"Requests per minute per client (0 disables)" default:"0"`
	Burst          int           `help:"Rate limit burst size" default:"10"`
}

func (c *ServeCmd) Run(g *Globals) error {
	cfg := api.DefaultConfig()
	cfg.Port = c.Port
	cfg.DBPath = c.DB
	cfg.CacheSize = c.CacheSize
	cfg.CacheTTL = c.CacheTTL
	cfg.MaxBookWords = g.MaxBookWords
	cfg.MaxValue = g.MaxValue
	cfg.AllowedOrigins = c.AllowedOrigins
	cfg.RateLimitRequests = c.RateLimit
	cfg.RateLimitBurst = c.Burst

	srv, err := api.NewServer(cfg)
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.ListenAndServe(ctx)
}

// VersionCmd prints the version.
type VersionCmd struct{}

func (c *VersionCmd) Run(g *Globals) error {
	fmt.Fprintf(g.stdout, "versecite version %s\n", api.Version)
	return nil
}

// run parses args and executes the selected command.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("versecite"),
		kong.Description("Extract scripture citations from multilingual text"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{"max_value": strconv.Itoa(refscan.DefaultMaxValue)},
		kong.Writers(stdout, stderr),
	)
	if err != nil {
		return err
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	cli.stdin, cli.stdout, cli.stderr = stdin, stdout, stderr
	if err := cli.initLogging(); err != nil {
		return err
	}
	return ctx.Run(&cli.Globals)
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "versecite: error: %v\n", err)
		os.Exit(1)
	}
}
