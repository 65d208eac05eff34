// Command relaynode runs a dedicated circuit-relay v2 server for the
// overlay: a fixed, publicly reachable listener that client nodes behind
// NAT can request reservations through, plus the same gossip/Kademlia
// behaviour set so the relay also participates in discovery.
package main

import (
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
	dirFlag  = flag.String("dir", ".", "relay directory containing node.json")
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
		log.Fatalf("invalid relay directory: %v", err)
	}
	if stat, err := os.Stat(absDir); err != nil || !stat.IsDir() {
		log.Fatalf("relay directory does not exist: %s", absDir)
	}

	cfgPath := filepath.Join(absDir, "node.json")
	cfg, created, err := config.Ensure(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if created {
		cfg.Node.IsBootstrapNode = true
		if err := config.Save(cfgPath, cfg); err != nil {
			log.Fatalf("failed to persist relay config: %v", err)
		}
	}
	if !cfg.Node.IsBootstrapNode {
		log.Println("warning: node.json has is_bootstrap_node=false; running as a relay anyway")
	}
	if cfg.Node.ListenPort == 0 {
		log.Fatal("relay requires a fixed node.listen_port in node.json (0 means OS-assigned, unusable for a relay)")
	}

	priv, err := identity.LoadOrCreate(
		util.ResolvePath(absDir, cfg.Identity.StorageDir),
		cfg.Identity.InstanceName,
	)
	if err != nil {
		log.Fatalf("failed to load identity: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutting down...")
		cancel()
	}()

	n, err := overlay.New(ctx, priv, overlay.Config{
		Role:           transport.RoleRelay,
		ListenPort:     cfg.Node.ListenPort,
		BootstrapNodes: cfg.Node.BootstrapNodes,
	}, overlay.GlobalCommandChannel(), func(line string) { fmt.Println(line) })
	if err != nil {
		log.Fatalf("failed to construct relay node: %v", err)
	}

	printBanner(absDir, cfgPath, cfg, n.Host().ID().String())

	if err := n.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("relay exited: %v", err)
	}
}

func printBanner(relayDir, cfgPath string, cfg config.Config, peerID string) {
	fmt.Println("p2p chat overlay — relay node")
	fmt.Println()
	fmt.Printf("Relay directory: %s\n", relayDir)
	fmt.Printf("Config file:     %s\n", cfgPath)
	fmt.Printf("Peer ID:         %s\n", peerID)
	fmt.Printf("Listen port:     %d (tcp + quic-v1)\n", cfg.Node.ListenPort)
	fmt.Printf("Bootstrap nodes: %d\n", len(cfg.Node.BootstrapNodes))
	fmt.Println()
	fmt.Println("Share a relay_address of the form:")
	fmt.Printf("  /ip4/<public-ip>/tcp/%d/p2p/%s/p2p-circuit\n", cfg.Node.ListenPort, peerID)
	fmt.Println()
	fmt.Println("Starting relay... (Ctrl+C to stop)")
	fmt.Println()
}

func showUsage() {
	fmt.Println("Usage: relaynode [-dir <relay-directory>]")
	fmt.Println()
	fmt.Println("  -dir   directory holding node.json and the identity store (default: .)")
	fmt.Println()
	fmt.Println("On first run this creates node.json with is_bootstrap_node=true.")
	fmt.Println("node.listen_port must be set to a fixed, port-forwarded value before")
	fmt.Println("the relay can be used — it has no default.")
}
