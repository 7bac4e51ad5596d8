package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

// Client holds HTTP client state for CLI commands.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Out        io.Writer
}

// do sends a request with an optional JSON body and decodes the JSON response
// into v (may be nil).
func (c *Client) do(method, path string, body, v any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.BaseURL+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if v == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *Client) get(path string, v any) error { return c.do(http.MethodGet, path, nil, v) }

func (c *Client) post(path string, body, v any) error {
	return c.do(http.MethodPost, path, body, v)
}

// --- auth / status ---

func (c *Client) cmdLogin(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: swarmctl login <user> <password>")
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.post("/api/auth/login", map[string]string{"username": args[0], "password": args[1]}, &resp); err != nil {
		return err
	}
	fmt.Fprintln(c.Out, resp.Token)
	return nil
}

func (c *Client) cmdStatus(_ []string) error {
	var result map[string]any
	if err := c.get("/api/status", &result); err != nil {
		return err
	}
	for _, k := range []string{"status", "version", "running", "uptime", "agents", "groups", "history"} {
		fmt.Fprintf(c.Out, "%-8s %s\n", k+":", strVal(result[k]))
	}
	return nil
}

// --- agents ---

func (c *Client) cmdAgents(_ []string) error {
	var agents []map[string]any
	if err := c.get("/api/agents", &agents); err != nil {
		return err
	}
	if len(agents) == 0 {
		fmt.Fprintln(c.Out, "no agents")
		return nil
	}
	fmt.Fprintf(c.Out, "%-20s %-12s %-12s %-6s %s\n", "NAME", "DRIVER", "STATUS", "ENTRY", "GROUPS")
	fmt.Fprintln(c.Out, strings.Repeat("-", 70))
	for _, a := range agents {
		fmt.Fprintf(c.Out, "%-20s %-12s %-12s %-6s %s\n",
			truncate(strVal(a["name"]), 19),
			strVal(a["driver"]),
			strVal(a["status"]),
			strVal(a["entrypoint"]),
			joinVals(a["groups"]),
		)
	}
	return nil
}

func (c *Client) cmdAgent(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: swarmctl agent <get|create|rm> <name> [driver]")
	}
	sub, name := args[0], url.PathEscape(args[1])
	switch sub {
	case "get":
		var info map[string]any
		if err := c.get("/api/agents/"+name, &info); err != nil {
			return err
		}
		return printJSON(c.Out, info)
	case "create":
		if len(args) < 3 {
			return fmt.Errorf("usage: swarmctl agent create <name> <driver>")
		}
		body := map[string]any{
			"name":   args[1],
			"config": map[string]any{"driver": map[string]any{"type": args[2]}},
		}
		if err := c.post("/api/agents", body, nil); err != nil {
			return err
		}
		fmt.Fprintf(c.Out, "agent %s created\n", args[1])
	case "rm":
		if err := c.do(http.MethodDelete, "/api/agents/"+name, nil, nil); err != nil {
			return err
		}
		fmt.Fprintf(c.Out, "agent %s removed\n", args[1])
	default:
		return fmt.Errorf("unknown agent subcommand: %s", sub)
	}
	return nil
}

// --- groups ---

func (c *Client) cmdGroups(_ []string) error {
	var groups []struct {
		Name    string   `json:"name"`
		Members []string `json:"members"`
	}
	if err := c.get("/api/groups", &groups); err != nil {
		return err
	}
	if len(groups) == 0 {
		fmt.Fprintln(c.Out, "no groups")
		return nil
	}
	for _, g := range groups {
		fmt.Fprintf(c.Out, "%-20s %s\n", g.Name, strings.Join(g.Members, ", "))
	}
	return nil
}

func (c *Client) cmdGroup(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: swarmctl group <set|rm> <name> [members...]")
	}
	sub, name := args[0], url.PathEscape(args[1])
	switch sub {
	case "set":
		body := map[string][]string{"members": args[2:]}
		if err := c.do(http.MethodPut, "/api/groups/"+name, body, nil); err != nil {
			return err
		}
		fmt.Fprintf(c.Out, "group %s updated\n", args[1])
	case "rm":
		if err := c.do(http.MethodDelete, "/api/groups/"+name, nil, nil); err != nil {
			return err
		}
		fmt.Fprintf(c.Out, "group %s removed\n", args[1])
	default:
		return fmt.Errorf("unknown group subcommand: %s", sub)
	}
	return nil
}

func (c *Client) cmdDrivers(_ []string) error {
	var drivers []string
	if err := c.get("/api/drivers", &drivers); err != nil {
		return err
	}
	for _, d := range drivers {
		fmt.Fprintln(c.Out, d)
	}
	return nil
}

// --- messages ---

func (c *Client) cmdMessages(args []string) error {
	var target, source string
	var limit int
	fs := pflag.NewFlagSet("messages", pflag.ContinueOnError)
	fs.StringVar(&target, "target", "", "only messages sent to this agent or group")
	fs.StringVar(&source, "source", "", "only messages sent by this agent")
	fs.IntVarP(&limit, "limit", "n", 20, "maximum number of messages")
	if err := fs.Parse(args); err != nil {
		return err
	}

	q := url.Values{}
	if target != "" {
		q.Set("target", target)
	}
	if source != "" {
		q.Set("source", source)
	}
	q.Set("limit", strconv.Itoa(limit))

	var msgs []map[string]any
	if err := c.get("/api/messages?"+q.Encode(), &msgs); err != nil {
		return err
	}
	if len(msgs) == 0 {
		fmt.Fprintln(c.Out, "no messages")
		return nil
	}
	for _, m := range msgs {
		fmt.Fprintf(c.Out, "#%s %s -> %s [%s/%s] %s\n",
			strVal(m["id"]), strVal(m["source"]), strVal(m["target"]),
			strVal(m["type"]), strVal(m["status"]),
			truncate(strings.ReplaceAll(strVal(m["content"]), "\n", " "), 60))
	}
	return nil
}

func (c *Client) cmdSend(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: swarmctl send <target> <content...>")
	}
	body := map[string]string{"target": args[0], "content": strings.Join(args[1:], " ")}
	var resp struct {
		Message map[string]any `json:"message"`
		Found   bool           `json:"found"`
	}
	if err := c.post("/api/messages", body, &resp); err != nil {
		return err
	}
	fmt.Fprintf(c.Out, "message %s sent (delivered: %t)\n", strVal(resp.Message["id"]), resp.Found)
	return nil
}

func (c *Client) cmdRun(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: swarmctl run <instructions...>")
	}
	var resp map[string]string
	if err := c.post("/api/run", map[string]string{"instructions": strings.Join(args, " ")}, &resp); err != nil {
		return err
	}
	fmt.Fprintf(c.Out, "run %s started\n", resp["run_id"])
	return nil
}

func (c *Client) cmdLifecycle(action string) error {
	var resp map[string]bool
	if err := c.post("/api/"+action, nil, &resp); err != nil {
		return err
	}
	fmt.Fprintf(c.Out, "running: %t\n", resp["running"])
	return nil
}

// --- helpers ---

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func strVal(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func joinVals(v any) string {
	list, _ := v.([]any)
	parts := make([]string, 0, len(list))
	for _, x := range list {
		parts = append(parts, strVal(x))
	}
	return strings.Join(parts, ",")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
