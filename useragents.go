package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

var errNoUserAgents = errors.New("user agent list is empty")

// UserAgentList is an immutable pool of user agents loaded at startup from
// a URL or a local file.
type UserAgentList struct {
	agents []string
}

// RandomUserAgent implements UserAgentSource.
func (l *UserAgentList) RandomUserAgent() (string, error) {
	if l == nil || len(l.agents) == 0 {
		return "", errNoUserAgents
	}
	return l.agents[rand.Intn(len(l.agents))], nil
}

// Count returns the number of loaded user agents.
func (l *UserAgentList) Count() int {
	if l == nil {
		return 0
	}
	return len(l.agents)
}

// LoadUserAgents loads a user agent list from source, which is either an
// http(s) URL or a file path. Supported bodies: a JSON array of strings, a
// JSON array of objects with a "useragent" or "ua" field, or one agent per
// line ('#' comments allowed).
func LoadUserAgents(source string, timeout time.Duration) (*UserAgentList, error) {
	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		data, err = fetchUserAgents(source, timeout)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user agents from %s: %w", source, err)
	}

	agents := parseUserAgents(data)
	if len(agents) == 0 {
		return nil, fmt.Errorf("no user agents found in %s", source)
	}
	return &UserAgentList{agents: agents}, nil
}

func fetchUserAgents(uri string, timeout time.Duration) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.Header.SetMethod(fasthttp.MethodGet)

	client := &fasthttp.Client{
		ReadTimeout:               timeout,
		MaxIdemponentCallAttempts: 1,
	}
	if err := client.DoTimeout(req, resp, timeout); err != nil {
		return nil, err
	}
	if code := resp.StatusCode(); code < 200 || code > 299 {
		return nil, fmt.Errorf("unexpected status code: %d", code)
	}

	body, err := resp.BodyUncompressed()
	if err != nil {
		return nil, err
	}
	return bytes.Clone(body), nil
}

func parseUserAgents(data []byte) []string {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err == nil {
			return userAgentsFromJSON(items)
		}
	}
	return userAgentsFromLines(bytes.NewReader(data))
}

func userAgentsFromJSON(items []json.RawMessage) []string {
	var agents []string
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				agents = append(agents, s)
			}
			continue
		}

		var obj struct {
			UserAgent string `json:"useragent"`
			UA        string `json:"ua"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			continue
		}
		ua := obj.UserAgent
		if ua == "" {
			ua = obj.UA
		}
		if ua = strings.TrimSpace(ua); ua != "" {
			agents = append(agents, ua)
		}
	}
	return agents
}

func userAgentsFromLines(r io.Reader) []string {
	var agents []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			agents = append(agents, line)
		}
	}
	return agents
}
