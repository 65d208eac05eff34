// Command clientnode runs a p2p chat overlay client: it discovers peers,
// optionally connects through a relay, and exchanges signed broadcast
// messages on the overlay's gossip topic. The host-facing command API
// and event stream are exposed through package overlay for an embedding
// application; this binary is a standalone CLI driver useful for
// manual testing and single-process deployments.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/p2pmsg/overlay/internal/config"
	"github.com/p2pmsg/overlay/internal/identity"
	"github.com/p2pmsg/overlay/internal/overlay"
	"github.com/p2pmsg/overlay/internal/transport"
	"github.com/p2pmsg/overlay/internal/util"
)

var (
	dirFlag  = flag.String("dir", ".", "peer directory containing node.json")
	showHelp = flag.Bool("h", false, "show help")
)

func main() {
	flag.Parse()

	if *showHelp {
		showUsage()
		return
	}

	absDir, err := filepath.Abs(*dirFlag)
	if err != nil {
		log.Fatalf("invalid peer directory: %v", err)
	}
	if stat, err := os.Stat(absDir); err != nil || !stat.IsDir() {
		log.Fatalf("peer directory does not exist: %s", absDir)
	}

	cfgPath := filepath.Join(absDir, "node.json")
	cfg, _, err := config.Ensure(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	priv, err := identity.LoadOrCreate(
		util.ResolvePath(absDir, cfg.Identity.StorageDir),
		cfg.Identity.InstanceName,
	)
	if err != nil {
		log.Fatalf("failed to load identity: %v", err)
	}

	printBanner(absDir, cfgPath, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutting down...")
		cancel()
	}()

	commands := overlay.GlobalCommandChannel()

	n, err := overlay.New(ctx, priv, overlay.Config{
		Role:           transport.RoleClient,
		ListenPort:     cfg.Node.ListenPort,
		RelayAddress:   cfg.Node.RelayAddress,
		BootstrapNodes: cfg.Node.BootstrapNodes,
	}, commands, func(line string) { fmt.Println(line) })
	if err != nil {
		log.Fatalf("failed to construct node: %v", err)
	}

	go readStdinCommands(commands)

	if err := n.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("node exited: %v", err)
	}
}

// readStdinCommands lets a human operator drive send_message/refresh_node
// from a terminal: "recipient body..." sends, and a bare "refresh"
// triggers a discovery sweep.
func readStdinCommands(commands *overlay.CommandChannel) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "refresh" {
			commands.Refresh()
			continue
		}
		recipient := overlay.ReservedBroadcast
		body := line
		for i, r := range line {
			if r == ' ' {
				recipient, body = line[:i], line[i+1:]
				break
			}
		}
		commands.Send(recipient, body)
	}
}

func printBanner(peerDir, cfgPath string, cfg config.Config) {
	fmt.Println("p2p chat overlay — client node")
	fmt.Println()
	fmt.Printf("Peer directory: %s\n", peerDir)
	fmt.Printf("Config file:    %s\n", cfgPath)
	fmt.Printf("Instance name:  %s\n", cfg.Identity.InstanceName)
	if cfg.Node.RelayAddress != "" {
		fmt.Printf("Relay address:  %s\n", cfg.Node.RelayAddress)
	}
	fmt.Printf("Bootstrap nodes: %d\n", len(cfg.Node.BootstrapNodes))
	fmt.Println()
	fmt.Println("Starting node... (Ctrl+C to stop)")
	fmt.Println()
}

func showUsage() {
	fmt.Println("Usage: clientnode [-dir <peer-directory>]")
	fmt.Println()
	fmt.Println("  -dir   directory holding node.json and the identity store (default: .)")
	fmt.Println()
	fmt.Println("Once running, type lines on stdin to drive the node:")
	fmt.Println("  <recipient> <body>   send body, tagged with recipient")
	fmt.Println("  <body>                broadcast body")
	fmt.Println("  refresh               trigger a discovery refresh")
}
