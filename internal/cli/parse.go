package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap/zapcore"

	"github.com/ben-ranford/reqmap/internal/app"
	"github.com/ben-ranford/reqmap/internal/chunk"
	"github.com/ben-ranford/reqmap/internal/config"
	"github.com/ben-ranford/reqmap/internal/pattern"
	"github.com/ben-ranford/reqmap/internal/report"
)

var ErrHelpRequested = errors.New("help requested")

const defaultLogLevel = zapcore.WarnLevel

// Command is a parsed command line: the request for the app and the
// settings that only concern the process.
type Command struct {
	Request  app.Request
	LogLevel zapcore.Level
}

func ParseArgs(args []string) (Command, error) {
	cmd := Command{Request: app.DefaultRequest(), LogLevel: defaultLogLevel}
	if len(args) == 0 {
		return parseResolve(nil, cmd)
	}

	if isHelpArg(args[0]) {
		return cmd, ErrHelpRequested
	}

	switch args[0] {
	case "resolve":
		return parseResolve(args[1:], cmd)
	case "expr":
		return parseExpr(args[1:], cmd)
	default:
		return cmd, fmt.Errorf("unknown command: %s", args[0])
	}
}

type patternListFlag []string

func (p *patternListFlag) String() string {
	return strings.Join(*p, ",")
}

func (p *patternListFlag) Set(value string) error {
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*p = append(*p, part)
		}
	}
	return nil
}

func parseResolve(args []string, cmd Command) (Command, error) {
	args = normalizeArgs(args)
	req := cmd.Request

	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	repoPath := fs.String("repo", req.RepoPath, "repository path")
	manifestPath := fs.String("manifest", "", "resolution manifest path")
	configPath := fs.String("config", "", "config file path")
	formatFlag := fs.String("format", string(req.Resolve.Format), "output format")
	chunkType := fs.String("chunk-type", "", "chunk type id")
	idScheme := fs.String("id-scheme", "", "module id scheme")
	concurrency := fs.Int("concurrency", 0, "parallel resolutions")
	cachePath := fs.String("cache-path", "", "mapping cache directory")
	noCache := fs.Bool("no-cache", false, "disable the mapping cache")
	cacheReadOnly := fs.Bool("cache-readonly", false, "read the mapping cache without writing")
	logLevel := fs.String("log-level", defaultLogLevel.String(), "log level")
	dump := fs.Bool("dump", false, "dump request mappings")
	var include, exclude patternListFlag
	fs.Var(&include, "include", "path prefix to scan (repeatable)")
	fs.Var(&exclude, "exclude", "path prefix to skip (repeatable)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return cmd, ErrHelpRequested
		}
		return cmd, err
	}
	if fs.NArg() > 0 {
		return cmd, fmt.Errorf("unexpected arguments for resolve: %s", strings.Join(fs.Args(), " "))
	}

	format, err := report.ParseFormat(*formatFlag)
	if err != nil {
		return cmd, err
	}
	level, err := zapcore.ParseLevel(*logLevel)
	if err != nil {
		return cmd, fmt.Errorf("invalid --log-level: %w", err)
	}
	visited := visitedFlags(fs)

	loaded, err := config.Load(strings.TrimSpace(*repoPath), strings.TrimSpace(*configPath))
	if err != nil {
		return cmd, err
	}

	cliOverrides := config.Overrides{}
	if visited["manifest"] {
		cliOverrides.Manifest = manifestPath
	}
	if visited["chunk-type"] {
		cliOverrides.ChunkType = chunkType
	}
	if visited["id-scheme"] {
		cliOverrides.IDScheme = idScheme
	}
	if visited["concurrency"] {
		cliOverrides.Concurrency = concurrency
	}
	if visited["cache-path"] {
		cliOverrides.CachePath = cachePath
	}
	if visited["no-cache"] {
		enabled := !*noCache
		cliOverrides.CacheEnabled = &enabled
	}
	if visited["cache-readonly"] {
		cliOverrides.CacheReadOnly = cacheReadOnly
	}
	cliOverrides.Include = include
	cliOverrides.Exclude = exclude
	if err := cliOverrides.Validate(); err != nil {
		return cmd, err
	}

	merged := loaded.Overrides.Merge(cliOverrides)
	values := merged.Apply(config.Defaults())
	if err := values.Validate(); err != nil {
		return cmd, err
	}

	req.Mode = app.ModeResolve
	req.RepoPath = strings.TrimSpace(*repoPath)
	req.Dump = *dump
	req.Resolve = app.ResolveRequest{
		Format:       format,
		Config:       values,
		ConfigPath:   loaded.ConfigPath,
		ConfigDigest: loaded.Digest,
	}
	cmd.Request = req
	cmd.LogLevel = level
	return cmd, nil
}

func parseExpr(args []string, cmd Command) (Command, error) {
	args = normalizeArgs(args)
	req := cmd.Request

	fs := flag.NewFlagSet("expr", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	key := fs.String("key", "", "runtime key expression")
	logLevel := fs.String("log-level", defaultLogLevel.String(), "log level")
	dump := fs.Bool("dump", false, "dump the mapping and expression")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return cmd, ErrHelpRequested
		}
		return cmd, err
	}
	level, err := zapcore.ParseLevel(*logLevel)
	if err != nil {
		return cmd, fmt.Errorf("invalid --log-level: %w", err)
	}

	remaining := fs.Args()
	if len(remaining) == 0 {
		return cmd, fmt.Errorf("missing mapping kind for expr")
	}
	if len(remaining) > 2 {
		return cmd, fmt.Errorf("too many arguments for expr")
	}
	value := ""
	if len(remaining) == 2 {
		value = remaining[1]
	}
	mapping, err := parseMapping(remaining[0], value)
	if err != nil {
		return cmd, err
	}

	req.Mode = app.ModeExpr
	req.Dump = *dump
	req.Expr = app.ExprRequest{Mapping: mapping, Key: strings.TrimSpace(*key)}
	cmd.Request = req
	cmd.LogLevel = level
	return cmd, nil
}

// parseMapping reads a mapping written as `invalid`, `single <id>` or
// `map key=id,...`.
func parseMapping(kind, value string) (pattern.Mapping, error) {
	value = strings.TrimSpace(value)
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case pattern.KindInvalid:
		if value != "" {
			return nil, fmt.Errorf("invalid takes no value")
		}
		return pattern.Invalid{}, nil
	case pattern.KindSingle:
		if value == "" {
			return nil, fmt.Errorf("single requires a module id")
		}
		return pattern.Single{ID: chunk.ParseID(value)}, nil
	case pattern.KindMap:
		entries := make(map[string]chunk.ModuleID)
		for _, pair := range strings.Split(value, ",") {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			k, v, ok := strings.Cut(pair, "=")
			k, v = strings.TrimSpace(k), strings.TrimSpace(v)
			if !ok || k == "" || v == "" {
				return nil, fmt.Errorf("map entry %q must be key=id", pair)
			}
			entries[k] = chunk.ParseID(v)
		}
		if len(entries) == 0 {
			return nil, fmt.Errorf("map requires at least one key=id entry")
		}
		return pattern.NewMap(entries), nil
	default:
		return nil, fmt.Errorf("unknown mapping kind: %s", kind)
	}
}

func isHelpArg(arg string) bool {
	switch arg {
	case "-h", "--help", "help":
		return true
	default:
		return false
	}
}

func normalizeArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}

	flags := make([]string, 0, len(args))
	positionals := make([]string, 0, 2)

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			positionals = append(positionals, args[i+1:]...)
			break
		}
		if strings.HasPrefix(arg, "-") {
			flags = append(flags, arg)
			if flagNeedsValue(arg) && i+1 < len(args) {
				flags = append(flags, args[i+1])
				i++
			}
			continue
		}
		positionals = append(positionals, arg)
	}

	return append(flags, positionals...)
}

func flagNeedsValue(arg string) bool {
	if strings.Contains(arg, "=") {
		return false
	}
	switch strings.TrimLeft(arg, "-") {
	case "repo", "manifest", "config", "format", "chunk-type", "id-scheme", "concurrency", "cache-path", "log-level", "include", "exclude", "key":
		return true
	default:
		return false
	}
}

func visitedFlags(fs *flag.FlagSet) map[string]bool {
	visited := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		visited[f.Name] = true
	})
	return visited
}
