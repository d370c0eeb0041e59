package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// treectl inspects and drives overlay nodes through their admin
// endpoints.

type adminClient struct {
	base  string
	token string
	http  *http.Client
}

func newAdminClient(addr, token string) *adminClient {
	base := strings.TrimSpace(addr)
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &adminClient{
		base:  strings.TrimRight(base, "/"),
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *adminClient) Health() (map[string]any, error) {
	var out map[string]any
	if err := c.getJSON("/health", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminClient) Status() (map[string]any, error) {
	var out map[string]any
	if err := c.getJSON("/status", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminClient) Messages(limit int) (map[string]any, error) {
	path := "/messages"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out map[string]any
	if err := c.getJSON(path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminClient) Send(text string) (map[string]any, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, c.base+"/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := decodeResponse(resp, http.StatusAccepted, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminClient) getJSON(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	return decodeResponse(resp, http.StatusOK, out)
}

func (c *adminClient) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func decodeResponse(resp *http.Response, want int, out any) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != want {
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, out)
}

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "admin address of the target node")
	token := flag.String("token", "", "bearer token for guarded admin routes")
	limit := flag.Int("limit", 0, "messages to fetch for the messages command (0 = all)")
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	client := newAdminClient(*addr, *token)
	var (
		result any
		err    error
	)
	switch cmd := flag.Arg(0); cmd {
	case "health":
		result, err = client.Health()
	case "status":
		result, err = client.Status()
	case "messages":
		result, err = client.Messages(*limit)
	case "send":
		text := strings.Join(flag.Args()[1:], " ")
		result, err = client.Send(text)
	default:
		fmt.Fprintf(os.Stderr, "treectl: unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "treectl: %v\n", err)
		os.Exit(1)
	}
	printJSON(result)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: treectl [-addr host:port] [-token t] [-limit n] <command>")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  health       node liveness and role")
	fmt.Fprintln(os.Stderr, "  status       registration, links, and counters")
	fmt.Fprintln(os.Stderr, "  messages     recent broadcast log")
	fmt.Fprintln(os.Stderr, "  send <text>  broadcast a message from this node")
}
