package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"windturbine/turbine-common/logger"
	"windturbine/turbine-common/models"
	"windturbine/turbinectl/internal/client"
)

const usage = `Usage: turbinectl [-addr URL] [-timeout D] <command>

Commands:
  health                 show bridge status
  history                show recent readings
  power on|off           switch the turbine on or off
  send ACTION [JSON]     send an arbitrary control command
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("turbinectl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }

	addr := fs.String("addr", envOr("TURBINE_BRIDGE_URL", "http://localhost:8080"), "bridge base URL")
	timeout := fs.Duration("timeout", 5*time.Second, "request timeout")
	verbose := fs.Bool("v", false, "log HTTP retries")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	level := "error"
	if *verbose {
		level = "debug"
	}
	zapLogger, err := logger.NewLogger(level, "console", "turbinectl")
	if err != nil {
		fmt.Fprintf(stderr, "failed to initialize logger: %v\n", err)
		return 1
	}
	defer zapLogger.Sync()

	c := client.New(*addr, *timeout, zapLogger)

	result, err := dispatch(c, fs.Args())
	if err != nil {
		fmt.Fprintf(stderr, "turbinectl: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(stderr, "turbinectl: %v\n", err)
		return 1
	}
	return 0
}

func dispatch(c *client.Client, args []string) (any, error) {
	switch args[0] {
	case "health":
		return c.Health()
	case "history":
		return c.History()
	case "power":
		if len(args) != 2 {
			return nil, fmt.Errorf("usage: power on|off")
		}
		switch strings.ToLower(args[1]) {
		case "on":
			return c.SetPower(true)
		case "off":
			return c.SetPower(false)
		default:
			return nil, fmt.Errorf("power expects on or off, got %q", args[1])
		}
	case "send":
		if len(args) < 2 || len(args) > 3 {
			return nil, fmt.Errorf("usage: send ACTION [JSON]")
		}
		cmd := models.ControlCommand{Action: args[1]}
		if len(args) == 3 {
			if !json.Valid([]byte(args[2])) {
				return nil, fmt.Errorf("value is not valid JSON: %s", args[2])
			}
			cmd.Value = json.RawMessage(args[2])
		}
		return c.Send(cmd)
	default:
		return nil, fmt.Errorf("unknown command %q", args[0])
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
