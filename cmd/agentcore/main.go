// Command agentcore runs a single prompt through the harness and
// prints the streamed answer. With no providers configured it relies on
// the router's synthetic degradation mode, which makes it a useful
// smoke test for the full wiring without network access.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcore"
	"github.com/BaSui01/agentcore/config"
	"github.com/BaSui01/agentcore/router"
	"github.com/BaSui01/agentcore/session"
)

func main() {
	configPath := flag.String("config", "agentcore.yaml", "path to the YAML config file")
	threadID := flag.String("thread", "default", "conversation thread id")
	showEvents := flag.Bool("events", false, "print the run's event log after completion")
	flag.Parse()

	prompt := strings.Join(flag.Args(), " ")
	if prompt == "" {
		fmt.Fprintln(os.Stderr, "usage: agentcore [flags] <prompt>")
		os.Exit(2)
	}

	if err := run(*configPath, *threadID, prompt, *showEvents); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(configPath, threadID, prompt string, showEvents bool) error {
	cfg, err := config.NewLoader().WithConfigPath(configPath).Load()
	if err != nil {
		return err
	}
	// No provider credentials are wired here; degrade instead of failing
	// so the binary works as an offline smoke test.
	cfg.Router.Degradation = router.DegradeSynthetic

	h, err := agentcore.New(cfg)
	if err != nil {
		return err
	}
	defer h.Logger.Sync() //nolint:errcheck

	res, err := h.Session.StartRun(context.Background(), threadID, prompt)
	if err != nil {
		return err
	}
	h.Logger.Info("run completed",
		zap.String("run_id", res.RunID),
		zap.String("phase", string(res.Phase)))

	fmt.Println(res.FinalAnswer)

	if showEvents {
		envelopes, err := h.Session.Events(res.RunID)
		if err != nil {
			return err
		}
		printEvents(envelopes)
	}
	return nil
}

func printEvents(envelopes []session.Envelope) {
	for _, env := range envelopes {
		fmt.Printf("%4d %-18s %s\n", env.Sequence, env.EventType, string(env.Payload))
	}
}
