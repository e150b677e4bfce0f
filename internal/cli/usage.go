package cli

const usage = `Usage:
  reqmap [resolve]
  reqmap resolve [--repo PATH] [--manifest PATH] [--config PATH] [--format table|json|sarif]
                 [--chunk-type ID] [--id-scheme number|path] [--concurrency N]
                 [--include PREFIX] [--exclude PREFIX]
                 [--cache-path PATH] [--no-cache] [--cache-readonly] [--log-level LEVEL] [--dump]
  reqmap expr invalid|single ID|map KEY=ID,... [--key EXPR] [--log-level LEVEL] [--dump]

Options:
  --repo PATH              Repository path (default: .)
  --manifest PATH          Resolution manifest (default: reqmap.manifest.* in the repo)
  --config PATH            Config file (default: .reqmap.yml, .reqmap.yaml, .reqmap.toml or reqmap.json)
  --format FORMAT          Output format: table, json or sarif (default: table)
  --chunk-type ID          Chunk type that modules are placed in (default: ecmascript)
  --id-scheme SCHEME       Module ids: number or path (default: number)
  --concurrency N          Requests resolved in parallel (default: 8)
  --include PREFIX         Only scan paths under PREFIX; repeatable
  --exclude PREFIX         Skip paths under PREFIX; repeatable
  --cache-path PATH        Mapping cache directory (default: .reqmap-cache)
  --no-cache               Disable the mapping cache
  --cache-readonly         Use cached mappings without writing new ones
  --log-level LEVEL        debug, info, warn or error (default: warn)
  --dump                   Dump mappings to stderr
  --key EXPR               Runtime key passed to the expression (expr only)
  -h, --help               Show this help text

Exit codes:
  0  success
  1  runtime error
  2  usage error
  3  a request cannot be compiled
`

func Usage() string {
	return usage
}
