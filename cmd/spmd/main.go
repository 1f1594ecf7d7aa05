// Command spmd is the SPM daemon: spmd <bind-addr> <port> [-config path.yaml].
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/henfredemars/spmd/internal/config"
	"github.com/henfredemars/spmd/internal/objectstore"
	"github.com/henfredemars/spmd/internal/server"
	"github.com/henfredemars/spmd/internal/store"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "spmd:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	bindAddr, port, configPath, err := parseArgs(args)
	if err != nil {
		return err
	}

	cfg := config.Defaults()
	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))

	files, err := objectstore.New(cfg.Store.ObjectRoot)
	if err != nil {
		return fmt.Errorf("init object store: %w", err)
	}

	policy := store.NewMemory()
	if b := cfg.Store.Bootstrap; b != nil {
		names, err := policy.GetSubjectNames()
		if err != nil {
			return fmt.Errorf("query bootstrap state: %w", err)
		}
		if len(names) == 0 {
			if err := policy.InsertSubject(b.Subject, b.Type, b.Password, true); err != nil {
				return fmt.Errorf("bootstrap super subject: %w", err)
			}
			log.Info("bootstrapped super subject", "subject", b.Subject)
		}
	}

	addr := net.JoinHostPort(bindAddr, port)
	acc, err := server.New(addr, cfg, policy, files, log)
	if err != nil {
		return fmt.Errorf("start listener: %w", err)
	}
	log.Info("listening", "addr", addr, "enforce_policy", cfg.Session.EnforcePolicy)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return acc.Serve(ctx)
}

func parseArgs(args []string) (bindAddr, port, configPath string, err error) {
	var positional []string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-config":
			if i+1 >= len(args) {
				return "", "", "", fmt.Errorf("-config requires a path argument")
			}
			configPath = args[i+1]
			i++
		default:
			positional = append(positional, args[i])
		}
	}
	if len(positional) != 2 {
		return "", "", "", fmt.Errorf("usage: spmd <bind-addr> <port> [-config path.yaml]")
	}
	return positional[0], positional[1], configPath, nil
}
