package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/veskar/trialkit/chunker"
	"github.com/veskar/trialkit/crf"
	"github.com/veskar/trialkit/docpipe"
	"github.com/veskar/trialkit/export"
	"github.com/veskar/trialkit/protocol"
	"github.com/veskar/trialkit/pubmed"
	"github.com/veskar/trialkit/service"
	"github.com/veskar/trialkit/store"
	"github.com/veskar/trialkit/tavily"
	"github.com/veskar/trialkit/validate"
	"github.com/veskar/trialkit/webfetch"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch os.Args[1] {
	case "extract":
		cmdExtract(ctx, os.Args[2:])
	case "crf":
		cmdCRF(ctx, os.Args[2:], false)
	case "crfspec":
		cmdCRF(ctx, os.Args[2:], true)
	case "protocol":
		cmdProtocol(ctx, os.Args[2:])
	case "validate":
		cmdValidate(os.Args[2:])
	case "export":
		cmdExport(ctx, os.Args[2:])
	case "pubmed":
		cmdPubmed(ctx, os.Args[2:])
	case "tavily":
		cmdTavily(ctx, os.Args[2:])
	case "fetch":
		cmdFetch(ctx, os.Args[2:])
	case "chunk":
		cmdChunk(os.Args[2:])
	case "mcp":
		cmdMCP(ctx, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `trialkit — clinical document processing toolkit

usage:
  trialkit extract  <file>                     extract document sections as JSON
  trialkit crf      [-format f] [-o out] <file>   extract CRF variables
  trialkit crfspec  [-format f] [-o out] <file>   extract variables from a CRF spec
  trialkit protocol <file>                     extract protocol metadata
  trialkit validate -rules rules.yaml [-format f] <data.csv|xlsx>
  trialkit export   -db runs.db -run <id> [-format f] [-o out]
  trialkit pubmed   -query <q> [-limit n] [-fetch]
  trialkit tavily   -query <q> [-limit n]
  trialkit fetch    [-browser] [-json] <url>
  trialkit chunk    split|join|verify ...
  trialkit mcp      [-db path] [-data dir]     serve MCP tools over stdio

formats: csv, json, xlsx (default json)
`)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// writeOutput sends data to the -o path, or stdout when empty.
func writeOutput(out string, data []byte) {
	if out == "" {
		os.Stdout.Write(data)
		if len(data) > 0 && data[len(data)-1] != '\n' {
			fmt.Println()
		}
		return
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		fatal("write %s: %v", out, err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d bytes)\n", out, len(data))
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal("marshal: %v", err)
	}
	writeOutput("", data)
}

func cmdExtract(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 1 {
		fatal("extract requires a file path")
	}

	pipe := docpipe.New(docpipe.Config{})
	doc, err := pipe.Extract(ctx, fs.Arg(0))
	if err != nil {
		fatal("extract: %v", err)
	}
	printJSON(doc)
}

func cmdCRF(ctx context.Context, args []string, spec bool) {
	name := "crf"
	if spec {
		name = "crfspec"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	format := fs.String("format", "json", "output format: csv, json, xlsx")
	out := fs.String("o", "", "output file (default stdout)")
	fs.Parse(args)
	if fs.NArg() < 1 {
		fatal("%s requires a file path", name)
	}

	pipe := docpipe.New(docpipe.Config{})
	doc, err := pipe.Extract(ctx, fs.Arg(0))
	if err != nil {
		fatal("extract: %v", err)
	}

	var result *crf.Result
	if spec {
		result = crf.ParseSpec(doc)
	} else {
		result = crf.Parse(doc)
	}
	fmt.Fprintf(os.Stderr, "%d variables (%d sections, %d duplicates dropped)\n",
		result.Stats.Variables, result.Stats.Sections, result.Stats.Duplicates)

	f, err := export.ParseFormat(*format)
	if err != nil {
		fatal("%v", err)
	}
	if f == export.FormatJSON && *out == "" {
		printJSON(result)
		return
	}
	data, err := export.Variables(f, result.Variables)
	if err != nil {
		fatal("export: %v", err)
	}
	writeOutput(*out, data)
}

func cmdProtocol(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("protocol", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 1 {
		fatal("protocol requires a file path")
	}

	pipe := docpipe.New(docpipe.Config{})
	doc, err := pipe.Extract(ctx, fs.Arg(0))
	if err != nil {
		fatal("extract: %v", err)
	}
	printJSON(protocol.Parse(doc))
}

func cmdValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	rulesPath := fs.String("rules", "", "YAML rule file (required)")
	format := fs.String("format", "json", "output format: csv, json, xlsx")
	out := fs.String("o", "", "output file (default stdout)")
	fs.Parse(args)
	if *rulesPath == "" {
		fatal("validate requires -rules")
	}
	if fs.NArg() < 1 {
		fatal("validate requires a data file")
	}

	ds, err := validate.Load(fs.Arg(0))
	if err != nil {
		fatal("load data: %v", err)
	}
	rules, err := validate.LoadRules(*rulesPath)
	if err != nil {
		fatal("load rules: %v", err)
	}

	findings, err := rules.Apply(ds)
	if err != nil {
		fatal("apply rules: %v", err)
	}
	fmt.Fprintf(os.Stderr, "%d findings over %d rows\n", len(findings), len(ds.Rows))

	f, err := export.ParseFormat(*format)
	if err != nil {
		fatal("%v", err)
	}
	data, err := export.Findings(f, findings)
	if err != nil {
		fatal("export: %v", err)
	}
	writeOutput(*out, data)

	for _, finding := range findings {
		if finding.Severity == validate.SeverityError {
			os.Exit(2)
		}
	}
}

func cmdExport(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	dbPath := fs.String("db", "trialkit.db", "run store database")
	runID := fs.String("run", "", "run ID (required)")
	format := fs.String("format", "csv", "output format: csv, json, xlsx")
	out := fs.String("o", "", "output file (default stdout)")
	fs.Parse(args)
	if *runID == "" {
		fatal("export requires -run")
	}

	st, err := store.Open(*dbPath)
	if err != nil {
		fatal("open store: %v", err)
	}
	defer st.Close()

	run, err := st.GetRun(ctx, *runID)
	if err != nil {
		fatal("get run: %v", err)
	}
	if run == nil {
		fatal("run %s not found", *runID)
	}

	f, err := export.ParseFormat(*format)
	if err != nil {
		fatal("%v", err)
	}

	var data []byte
	if run.Kind == store.KindValidate {
		findings, ferr := st.Findings(ctx, run.ID)
		if ferr != nil {
			fatal("load findings: %v", ferr)
		}
		data, err = export.Findings(f, findings)
	} else {
		vars, verr := st.Variables(ctx, run.ID)
		if verr != nil {
			fatal("load variables: %v", verr)
		}
		data, err = export.Variables(f, vars)
	}
	if err != nil {
		fatal("export: %v", err)
	}
	writeOutput(*out, data)
}

func cmdPubmed(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("pubmed", flag.ExitOnError)
	query := fs.String("query", "", "search term (required)")
	limit := fs.Int("limit", 20, "maximum results")
	fetch := fs.Bool("fetch", false, "fetch full article records")
	cacheDir := fs.String("cache", "", "response cache directory")
	fs.Parse(args)
	if *query == "" {
		fatal("pubmed requires -query")
	}

	client, err := pubmed.NewClient(pubmed.Config{
		APIKey:   os.Getenv("PUBMED_API_KEY"),
		Email:    os.Getenv("PUBMED_EMAIL"),
		CacheDir: *cacheDir,
	})
	if err != nil {
		fatal("pubmed client: %v", err)
	}

	res, err := client.Search(ctx, *query, pubmed.SearchOptions{Limit: *limit})
	if err != nil {
		fatal("search: %v", err)
	}
	if !*fetch {
		printJSON(res)
		return
	}

	articles, err := client.Fetch(ctx, res.PMIDs)
	if err != nil {
		fatal("fetch: %v", err)
	}
	printJSON(map[string]any{"count": res.Count, "articles": articles})
}

func cmdTavily(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("tavily", flag.ExitOnError)
	query := fs.String("query", "", "search query (required)")
	limit := fs.Int("limit", 5, "maximum results")
	depth := fs.String("depth", "basic", "search depth: basic or advanced")
	fs.Parse(args)
	if *query == "" {
		fatal("tavily requires -query")
	}

	key := os.Getenv("TAVILY_API_KEY")
	if key == "" {
		fatal("TAVILY_API_KEY is required")
	}
	client, err := tavily.NewClient(tavily.Config{APIKey: key})
	if err != nil {
		fatal("tavily client: %v", err)
	}

	res, err := client.Search(ctx, *query, tavily.SearchOptions{MaxResults: *limit, Depth: *depth})
	if err != nil {
		fatal("search: %v", err)
	}
	printJSON(res)
}

func cmdFetch(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	browser := fs.Bool("browser", false, "render via headless Chrome when the static page is thin")
	asJSON := fs.Bool("json", false, "print the full page object instead of markdown")
	fs.Parse(args)
	if fs.NArg() < 1 {
		fatal("fetch requires a URL")
	}

	cfg := webfetch.Config{}
	if *browser {
		renderer := webfetch.NewBrowserRenderer(webfetch.BrowserConfig{})
		defer renderer.Close()
		cfg.Renderer = renderer
	}

	page, err := webfetch.New(cfg).Fetch(ctx, fs.Arg(0))
	if err != nil {
		fatal("fetch: %v", err)
	}
	if *asJSON {
		printJSON(page)
		return
	}
	writeOutput("", []byte(page.Markdown))
}

func cmdChunk(args []string) {
	if len(args) < 1 {
		fatal("chunk requires a subcommand: split, join, verify")
	}
	switch args[0] {
	case "split":
		chunkSplit(args[1:])
	case "join":
		chunkJoin(args[1:])
	case "verify":
		chunkVerify(args[1:])
	default:
		fatal("unknown chunk subcommand: %s", args[0])
	}
}

func chunkProgress(index, total int, bytes int64) {
	fmt.Fprintf(os.Stderr, "\r  part %d/%d  (%d bytes)", index+1, total, bytes)
}

func chunkSplit(args []string) {
	if len(args) < 1 {
		fatal("chunk split requires a file path")
	}
	srcPath := args[0]
	outDir := srcPath + ".parts"
	if len(args) >= 2 {
		outDir = args[1]
	}
	var partSize int64
	if len(args) >= 3 {
		mb, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil || mb <= 0 {
			fatal("part_size_mb must be a positive integer")
		}
		partSize = mb * 1024 * 1024
	}

	manifest, err := chunker.Split(srcPath, outDir, partSize, chunkProgress)
	if err != nil {
		fatal("\nsplit failed: %v", err)
	}
	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "done: %d parts in %s\n", manifest.TotalParts, outDir)
	fmt.Fprintf(os.Stderr, "  sha256: %s\n", manifest.OriginalSHA256)
}

func chunkJoin(args []string) {
	if len(args) < 1 {
		fatal("chunk join requires a parts directory")
	}
	partsDir := args[0]

	manifest, err := chunker.LoadManifest(partsDir)
	if err != nil {
		fatal("load manifest: %v", err)
	}
	outPath := manifest.OriginalName
	if len(args) >= 2 {
		outPath = args[1]
	}

	if err := chunker.Join(partsDir, outPath, chunkProgress); err != nil {
		fatal("\njoin failed: %v", err)
	}
	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "done: %s (%d bytes)\n", outPath, manifest.OriginalSize)
}

func chunkVerify(args []string) {
	if len(args) < 1 {
		fatal("chunk verify requires a parts directory")
	}
	result, err := chunker.Verify(args[0])
	if err != nil {
		fatal("verify failed: %v", err)
	}
	if !result.OK() {
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "  %s\n", e)
		}
		fatal("%d problems found", len(result.Errors))
	}
	fmt.Fprintf(os.Stderr, "ok: %d parts, %d bytes\n", result.TotalParts, result.TotalSize)
}

// cmdMCP exposes the toolkit as MCP tools over stdio, so editor and agent
// clients can call extract/crf/validate without the HTTP daemon.
func cmdMCP(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	dbPath := fs.String("db", "trialkit.db", "run store database")
	dataDir := fs.String("data", "data", "working directory for uploads")
	fs.Parse(args)

	cfg := service.DefaultConfig()
	cfg.DBPath = *dbPath
	cfg.DataDir = *dataDir

	svc, err := service.New(cfg)
	if err != nil {
		fatal("service: %v", err)
	}
	defer svc.Close()

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "trialkit",
		Version: "1.0.0",
	}, nil)
	svc.RegisterMCP(srv)

	transport := &mcp.IOTransport{Reader: os.Stdin, Writer: os.Stdout}
	ss, err := srv.Connect(ctx, transport, nil)
	if err != nil {
		fatal("mcp connect: %v", err)
	}
	if err := ss.Wait(); err != nil && ctx.Err() == nil {
		fatal("mcp session: %v", err)
	}
}
