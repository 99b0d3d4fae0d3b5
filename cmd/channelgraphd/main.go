// Command channelgraphd is the processor daemon's CLI entry point, per
// spec.md §6: "processor <config-path> [-D key=value]... Exit codes: 0 on
// clean shutdown, 1 on configuration or init failure, or the exit code
// posted by the first channel that requested shutdown." Grounded on
// original_source/src/processor/main.cc's argument parsing, signal
// handling, and worker-thread-per-goroutine shutdown sequence.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joeycumines/go-channelgraph/channel"
	"github.com/joeycumines/go-channelgraph/internal/xlog"
	"github.com/joeycumines/go-channelgraph/processor"
	"github.com/joeycumines/logiface"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	configPath, defs, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "channelgraphd: %v\nusage: channelgraphd <config-path> [-D key=value]...\n", err)
		return 1
	}

	cfg, err := loadConfig(configPath, defs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	root := xlog.Root(os.Stderr, logiface.LevelInformational)
	log := xlog.Named(root, cfg.Name)

	specs := make([]processor.ObjectSpec, 0, len(cfg.Objects))
	for _, oc := range cfg.Objects {
		oc := oc
		shutdownOn, err := parseShutdownPolicy(oc.ShutdownOn)
		if err != nil {
			log.Err().Str("object", oc.Name).Log(err.Error())
			return 1
		}
		reopenCfg, err := parseReopenConfig(oc)
		if err != nil {
			log.Err().Str("object", oc.Name).Log(err.Error())
			return 1
		}
		specs = append(specs, processor.ObjectSpec{
			Name:             oc.Name,
			Worker:           oc.Worker,
			DependsNames:     oc.Depends,
			InitDependsNames: oc.InitOnly,
			Shutdown:         shutdownOn,
			Reopen:           reopenCfg,
			Disabled:         oc.Disabled,
			Stage:            oc.Stage,
			New:              func() (processor.Channel, *channel.Base, error) { return buildChannel(oc) },
		})
	}

	proc, err := processor.New(cfg.Name, specs, processor.WithLogger(root))
	if err != nil {
		log.Err().Log(fmt.Sprintf("build object graph: %v", err))
		return 1
	}

	if err := proc.Open(); err != nil {
		log.Err().Log(fmt.Sprintf("open: %v", err))
		return 1
	}
	log.Info().Log("processor open")

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			log.Info().Log("signal received, closing")
			_ = proc.Close()
		}
	}()

	if err := proc.Run(100 * time.Millisecond); err != nil {
		log.Err().Log(fmt.Sprintf("run: %v", err))
		return 1
	}
	if err := proc.Wait(); err != nil {
		log.Err().Log(fmt.Sprintf("worker exited with error: %v", err))
		return 1
	}

	log.Info().Log("processor closed")
	return proc.ExitCode()
}

// parseArgs implements main.cc's ArgumentParser usage: a single
// positional config path plus any number of repeated `-D key=value`
// definitions.
func parseArgs(args []string) (configPath string, defs []string, err error) {
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "-D":
			i++
			if i >= len(args) {
				return "", nil, fmt.Errorf("-D requires a key=value argument")
			}
			defs = append(defs, args[i])
		case strings.HasPrefix(a, "-D"):
			defs = append(defs, strings.TrimPrefix(a, "-D"))
		case configPath == "":
			configPath = a
		default:
			return "", nil, fmt.Errorf("unexpected argument %q", a)
		}
	}
	if configPath == "" {
		return "", nil, fmt.Errorf("missing config path")
	}
	return configPath, defs, nil
}

func readConfigFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("channelgraphd: read config %s: %w", path, err)
	}
	return data, nil
}
