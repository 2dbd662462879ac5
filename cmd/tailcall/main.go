package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/tailcallhq/tailcall-go/internal/blueprint"
	"github.com/tailcallhq/tailcall-go/internal/config"
	"github.com/tailcallhq/tailcall-go/internal/eventbus"
	"github.com/tailcallhq/tailcall-go/internal/grpctp"
	"github.com/tailcallhq/tailcall-go/internal/otel"
	"github.com/tailcallhq/tailcall-go/internal/protoreg"
	"github.com/tailcallhq/tailcall-go/internal/runtimereg"
	"github.com/tailcallhq/tailcall-go/internal/schema"
	"github.com/tailcallhq/tailcall-go/internal/schemabuild"
	"github.com/tailcallhq/tailcall-go/internal/server"
)

const rootUsage = `tailcall — declarative GraphQL orchestration gateway

USAGE:
  tailcall <command> [flags]

COMMANDS:
  serve            Run the HTTP GraphQL gateway over a compiled Config
  compile-sdl       Compile a Config and render the Blueprint's effective SDL
  check             Compile a Config and report violations without serving
  help              Show help for any command
`

const configFlags = `  -config <file>           Config SDL file (required)
  -sidecar <file>          YAML settings sidecar (optional)
  -proto.path <dir>        Proto import path for @grpc resolution. Repeatable
  -proto.file <name>       Proto filename to load, relative to a -proto.path. Repeatable
`

const serveUsage = `serve FLAGS:
` + configFlags + `  -server.addr <addr>                 HTTP listen address, overrides the config's server.port
  -server.pretty                      Pretty-print JSON responses
  -server.timeout <duration>          Per-request timeout, e.g. 10s (default: 10s)
  -server.metadata-header <name>      Forward HTTP header to gRPC metadata. Repeatable
  -transport.max-conns-per-endpoint N Max TCP conns per gRPC endpoint (default: 2)
  -transport.rpc-timeout <duration>   gRPC RPC timeout, e.g. 3s (default: 3s)
  -otel.endpoint <addr>               OTLP collector endpoint
  -otel.service <name>                OpenTelemetry service name (default: tailcall)
  -showcase.record <file>             Record every upstream call made during this run to a fixture file
  -showcase.replay <file>             Replay upstream calls from a fixture file instead of hitting the network
`

const compileSDLUsage = `compile-sdl FLAGS:
` + configFlags + `  -out <file>              Write the rendered SDL to file (default: stdout)
`

const checkUsage = `check FLAGS:
` + configFlags + `  (exits non-zero and prints every violation found)
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("tailcall", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "serve":
		return cmdServe(cmdArgs)
	case "compile-sdl":
		return cmdCompileSDL(cmdArgs)
	case "check":
		return cmdCheck(cmdArgs)
	case "help":
		return cmdHelp(cmdArgs)
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		fmt.Print(rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Print(serveUsage)
	case "compile-sdl":
		fmt.Print(compileSDLUsage)
	case "check":
		fmt.Print(checkUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return "" }

func (s *stringListFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// configFlagSet registers the flags every command needs to load a Config
// and, when the SDL declares @grpc fields, a proto descriptor set.
func configFlagSet(fs *flag.FlagSet) (configPath, sidecarPath *string, protoPaths, protoFiles *stringListFlag) {
	configPath = fs.String("config", "", "Config SDL file")
	sidecarPath = fs.String("sidecar", "", "YAML settings sidecar")
	protoPaths = &stringListFlag{}
	protoFiles = &stringListFlag{}
	fs.Var(protoPaths, "proto.path", "Proto import path")
	fs.Var(protoFiles, "proto.file", "Proto filename to load")
	return
}

// loadAndCompile reads the Config named by the given flags, loads a proto
// descriptor set when any -proto.file was given, and compiles the result
// into a Blueprint.
func loadAndCompile(ctx context.Context, configPath, sidecarPath string, protoPaths, protoFiles []string) (*blueprintResult, error) {
	if configPath == "" {
		return nil, fmt.Errorf("-config is required")
	}
	sdlSource, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var sidecarSource []byte
	if sidecarPath != "" {
		sidecarSource, err = os.ReadFile(sidecarPath)
		if err != nil {
			return nil, fmt.Errorf("read sidecar: %w", err)
		}
	}
	doc, err := config.Load(configPath, string(sdlSource), sidecarSource)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var protos *protoreg.Loader
	if len(protoFiles) > 0 {
		protos, err = protoreg.Load(ctx, protoPaths, protoFiles)
		if err != nil {
			return nil, fmt.Errorf("load proto descriptors: %w", err)
		}
	}

	var resolver blueprint.ProtoResolver
	if protos != nil {
		resolver = protos
	}
	bp, err := blueprint.Compile(ctx, doc, resolver)
	if err != nil {
		return nil, err
	}
	return &blueprintResult{bp: bp, protos: protos}, nil
}

type blueprintResult struct {
	bp     *blueprint.Blueprint
	protos *protoreg.Loader
}

func cmdServe(args []string) error {
	addr := ""
	pretty := false
	timeout := 10 * time.Second
	maxConns := 2
	rpcTimeout := 3 * time.Second
	otelEndpoint := ""
	otelService := "tailcall"
	showcaseRecord := ""
	showcaseReplay := ""
	var metadataHeaders stringListFlag

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	configPath, sidecarPath, protoPaths, protoFiles := configFlagSet(fs)
	fs.StringVar(&addr, "server.addr", addr, "HTTP listen address")
	fs.BoolVar(&pretty, "server.pretty", pretty, "Pretty-print JSON responses")
	fs.DurationVar(&timeout, "server.timeout", timeout, "Per-request timeout")
	fs.Var(&metadataHeaders, "server.metadata-header", "Forward HTTP header to gRPC metadata")
	fs.IntVar(&maxConns, "transport.max-conns-per-endpoint", maxConns, "Max conns per endpoint")
	fs.DurationVar(&rpcTimeout, "transport.rpc-timeout", rpcTimeout, "RPC timeout")
	fs.StringVar(&otelEndpoint, "otel.endpoint", otelEndpoint, "OTLP collector endpoint")
	fs.StringVar(&otelService, "otel.service", otelService, "OpenTelemetry service name")
	fs.StringVar(&showcaseRecord, "showcase.record", showcaseRecord, "Record upstream calls to this fixture file")
	fs.StringVar(&showcaseReplay, "showcase.replay", showcaseReplay, "Replay upstream calls from this fixture file, never touching the network")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, serveUsage)
		return err
	}
	if showcaseRecord != "" && showcaseReplay != "" {
		return fmt.Errorf("-showcase.record and -showcase.replay are mutually exclusive")
	}

	ctx := context.Background()
	res, err := loadAndCompile(ctx, *configPath, *sidecarPath, *protoPaths, *protoFiles)
	if err != nil {
		fmt.Fprint(os.Stderr, serveUsage)
		return err
	}
	bp := res.bp

	if addr == "" {
		addr = fmt.Sprintf("%s:%d", bp.Server.Hostname, bp.Server.Port)
	}

	eventbus.Use(eventbus.New())
	shutdown, err := otel.Setup(otelEndpoint, otelService)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	trOpts := []grpctp.Option{grpctp.WithMaxConnsPerEndpoint(maxConns)}
	if rpcTimeout > 0 {
		trOpts = append(trOpts, grpctp.WithRPCTimeout(rpcTimeout))
	}
	registry := &runtimereg.Registry{
		HTTP:      runtimereg.NewHTTPClient(http.DefaultClient),
		HTTP2Only: grpctp.New(trOpts...),
		File:      runtimereg.NewOSFile(),
		Env:       runtimereg.NewOSEnv(),
		Cache:     runtimereg.NewMemCache(),
	}
	if showcaseReplay != "" {
		fixture, err := os.ReadFile(showcaseReplay)
		if err != nil {
			return fmt.Errorf("read showcase fixtures: %w", err)
		}
		sc := runtimereg.NewShowcase(registry.HTTP, runtimereg.ShowcaseReplay)
		if err := sc.LoadFixtures(fixture); err != nil {
			return fmt.Errorf("load showcase fixtures: %w", err)
		}
		registry.HTTP = sc
	} else if showcaseRecord != "" {
		sc := runtimereg.NewShowcase(registry.HTTP, runtimereg.ShowcaseRecord)
		registry.HTTP = sc
		defer func() {
			data, err := sc.DumpFixtures()
			if err != nil {
				log.Printf("showcase: dump fixtures: %v", err)
				return
			}
			if err := os.WriteFile(showcaseRecord, data, 0644); err != nil {
				log.Printf("showcase: write %s: %v", showcaseRecord, err)
			}
		}()
	}

	sch := schemabuild.FromBlueprint(bp)

	var sopts []server.Option
	if pretty {
		sopts = append(sopts, server.WithPretty())
	}
	if timeout > 0 {
		sopts = append(sopts, server.WithTimeout(timeout))
	}
	if len(metadataHeaders) > 0 {
		sopts = append(sopts, server.WithMetadataHeaders(metadataHeaders...))
	}
	sopts = append(sopts, server.WithGraphiQL(bp.Server.EnableGraphiQL))
	sopts = append(sopts, server.WithApolloTracing(bp.Server.EnableApolloTracing))
	if bp.Server.CORS != nil {
		sopts = append(sopts, server.WithCORSPolicy(bp.Server.CORS))
	}

	h, err := server.NewGateway(bp, sch, registry, sopts...)
	if err != nil {
		return fmt.Errorf("gateway init: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/graphql", h)

	log.Printf("GraphQL gateway listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}

func cmdCompileSDL(args []string) error {
	outFile := ""
	fs := flag.NewFlagSet("compile-sdl", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	configPath, sidecarPath, protoPaths, protoFiles := configFlagSet(fs)
	fs.StringVar(&outFile, "out", outFile, "Write the rendered SDL to file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, compileSDLUsage)
		return err
	}

	res, err := loadAndCompile(context.Background(), *configPath, *sidecarPath, *protoPaths, *protoFiles)
	if err != nil {
		fmt.Fprint(os.Stderr, compileSDLUsage)
		return err
	}

	sdl := schema.Render(schemabuild.FromBlueprint(res.bp))
	if outFile == "" {
		fmt.Print(sdl)
		return nil
	}
	return os.WriteFile(outFile, []byte(sdl), 0644)
}

func cmdCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	configPath, sidecarPath, protoPaths, protoFiles := configFlagSet(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, checkUsage)
		return err
	}

	_, err := loadAndCompile(context.Background(), *configPath, *sidecarPath, *protoPaths, *protoFiles)
	if err != nil {
		fmt.Fprint(os.Stderr, err.Error())
		return fmt.Errorf("config check failed")
	}
	fmt.Println("config OK")
	return nil
}
