// Command swarmctl is the swarm CLI client.
package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/aiswarm/orchestrator/internal/version"
)

const defaultServer = "http://localhost:9090"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	var serverURL, token string
	fs := pflag.NewFlagSet("swarmctl", pflag.ContinueOnError)
	fs.StringVarP(&serverURL, "server", "s", defaultServer, "swarm server URL")
	fs.StringVarP(&token, "token", "t", os.Getenv("SWARM_TOKEN"), "JWT auth token (or $SWARM_TOKEN)")
	fs.SetInterspersed(false)
	fs.Usage = func() { usage(os.Stderr) }
	if err := fs.Parse(args); err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		usage(os.Stderr)
		return errors.New("no command given")
	}

	cli := &Client{
		BaseURL:    strings.TrimRight(serverURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		Out:        out,
	}

	cmd, rest := rest[0], rest[1:]
	switch cmd {
	case "version":
		fmt.Fprintf(out, "swarmctl %s (commit %s, built %s)\n", version.Version, version.Commit, version.BuildDate)
		return nil
	case "login":
		return cli.cmdLogin(rest)
	case "status":
		return cli.cmdStatus(rest)
	case "agents":
		return cli.cmdAgents(rest)
	case "agent":
		return cli.cmdAgent(rest)
	case "groups":
		return cli.cmdGroups(rest)
	case "group":
		return cli.cmdGroup(rest)
	case "drivers":
		return cli.cmdDrivers(rest)
	case "messages":
		return cli.cmdMessages(rest)
	case "send":
		return cli.cmdSend(rest)
	case "run":
		return cli.cmdRun(rest)
	case "pause":
		return cli.cmdLifecycle("pause")
	case "resume":
		return cli.cmdLifecycle("resume")
	default:
		usage(os.Stderr)
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func usage(w io.Writer) {
	fmt.Fprint(w, `swarmctl - swarm CLI

Usage:
  swarmctl [flags] <command> [args]

Flags:
  -s, --server <url>    server URL (default: http://localhost:9090)
  -t, --token  <token>  JWT auth token (or $SWARM_TOKEN)

Commands:
  version                          print version
  login <user> <password>          print a token for the given credentials
  status                           show server status
  agents                           list agents
  agent get <name>                 show one agent
  agent create <name> <driver>     create an agent with the given driver type
  agent rm <name>                  remove an agent
  groups                           list groups
  group set <name> [members...]    create a group or add members
  group rm <name>                  remove a group
  drivers                          list driver types
  messages [--target t] [--source s] [--limit n]
                                   show message history
  send <target> <content...>       send a message as "user"
  run <instructions...>            send instructions to the entry-point agents
  pause | resume                   pause or resume the swarm
`)
}
