// Package main provides the swarmkernel CLI entry point: a local harness
// for driving the kernel's engine, registry and event bus from a terminal,
// without a network transport in front of it. Grounded on the pack's cobra
// root-command-plus-subcommands shape (richinex-ariadne/cmd/ariadne/main.go).
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/swarmkernel/bus"
	"github.com/hupe1980/swarmkernel/cancelfab"
	"github.com/hupe1980/swarmkernel/config"
	"github.com/hupe1980/swarmkernel/core"
	"github.com/hupe1980/swarmkernel/engine"
	"github.com/hupe1980/swarmkernel/logging"
	"github.com/hupe1980/swarmkernel/registry"
	"github.com/hupe1980/swarmkernel/taskqueue"
)

var (
	envFile     string
	projectRoot string
	verbose     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "swarmkernel",
		Short: "Agent orchestration kernel for multi-agent software collaboration",
		Long: `swarmkernel hosts a swarm of LLM-backed agents that can be created, chatted
with, and set to delegate work to one another. This CLI is a thin local
harness over the kernel's engine, registry and event bus for manual testing;
it is not the kernel's primary interface (that is the HTTP/WS API a host
process wires on top of the same packages).`,
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "path to a .env file with provider credentials")
	rootCmd.PersistentFlags().StringVar(&projectRoot, "project-root", "", "override the configured project root")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print debug-level logs")

	rootCmd.AddCommand(createCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(watchCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// kernel bundles the wired collaborators one process needs; built fresh per
// invocation since the CLI is stateless between runs (agents must be backed
// by a real Persister to survive process exit — see registry.WithPersister).
type kernel struct {
	reg    *registry.Registry
	bus    *bus.Bus
	engine *engine.Engine
	logger *logging.KernelLogger
}

func buildKernel() (*kernel, error) {
	level := logging.LogLevelInfo
	if verbose {
		level = logging.LogLevelDebug
	}
	logger := logging.NewLogger(&logging.Config{Level: level, Format: "text", Output: os.Stderr, Component: "swarmkernel"})

	cfg := config.Load(envFile)
	if projectRoot != "" {
		cfg.ProjectRoot = projectRoot
	}

	b := bus.New(bus.WithLogger(logger), bus.WithBufferHint(cfg.EventBufferSize))
	reg, err := registry.New(registry.WithBus(b))
	if err != nil {
		return nil, fmt.Errorf("building registry: %w", err)
	}
	q := taskqueue.New()
	cf := cancelfab.New(b, reg)
	factory := engine.DefaultProviderFactory(cfg, logger)
	eng := engine.New(reg, b, q, cf, cfg, factory, logger)

	return &kernel{reg: reg, bus: b, engine: eng, logger: logger}, nil
}

func createCmd() *cobra.Command {
	var (
		role, providerFlag, model, instructions string
		leader                                  bool
	)
	cmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Create a new agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := buildKernel()
			if err != nil {
				return err
			}
			agent, err := k.reg.Create(registry.CreateFields{
				Name:         args[0],
				Role:         role,
				Provider:     core.ProviderKind(providerFlag),
				Model:        model,
				Instructions: instructions,
				Leader:       leader,
				ProjectRoot:  projectRoot,
			})
			if err != nil {
				return err
			}
			fmt.Printf("created agent %s (%s)\n", agent.Name, agent.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "agent role description")
	cmd.Flags().StringVar(&providerFlag, "provider", string(core.ProviderAnthropic), "provider selector: anthropic, openAIChat, openAICompletion, openAICompatible, localChat")
	cmd.Flags().StringVar(&model, "model", "", "model id")
	cmd.Flags().StringVar(&instructions, "instructions", "", "system instructions")
	cmd.Flags().BoolVar(&leader, "leader", false, "mark this agent as a leader that can delegate")
	return cmd
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := buildKernel()
			if err != nil {
				return err
			}
			for _, a := range k.reg.List() {
				fmt.Printf("%-36s %-20s %-10s leader=%v\n", a.ID, a.Name, a.Status, a.Leader)
			}
			return nil
		},
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [agentID] [message]",
		Short: "Send one message to an agent and print the streamed reply",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := buildKernel()
			if err != nil {
				return err
			}
			onChunk := func(delta string) { fmt.Print(delta) }
			resp, err := k.engine.Chat(context.Background(), args[0], args[1], onChunk)
			fmt.Println()
			if err != nil {
				return err
			}
			_ = resp
			return nil
		},
	}
}

// watchCmd subscribes to the event bus and prints every event. Each CLI
// invocation builds its own kernel and bus, so watch prints only events
// published inside its own process.
func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream every bus event to stdout until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := buildKernel()
			if err != nil {
				return err
			}
			sub := k.bus.Subscribe()
			defer sub.Cancel()

			w := bufio.NewWriter(os.Stdout)
			defer w.Flush()
			for evt := range sub.Events {
				fmt.Fprintf(w, "[%s] %s %+v\n", evt.Timestamp.Format("15:04:05.000"), evt.Kind, evt.Payload)
				w.Flush()
			}
			return nil
		},
	}
}
