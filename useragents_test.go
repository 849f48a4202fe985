package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestParseUserAgents(t *testing.T) {
	tests := []struct {
		name string
		data string
		want []string
	}{
		{"string array", `["UA-1", " UA-2 ", ""]`, []string{"UA-1", "UA-2"}},
		{"object array", `[{"useragent":"UA-1"},{"ua":"UA-2"},{"other":"x"}]`, []string{"UA-1", "UA-2"}},
		{"mixed array", `["UA-1",{"ua":"UA-2"},42]`, []string{"UA-1", "UA-2"}},
		{"lines", "# list\nUA-1\n\n  UA-2  \n", []string{"UA-1", "UA-2"}},
		{"broken json falls back to lines", "[not json", []string{"[not json"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseUserAgents([]byte(tt.data))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseUserAgents() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadUserAgentsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.txt")
	if err := os.WriteFile(path, []byte("UA-1\nUA-2\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	list, err := LoadUserAgents(path, time.Second)
	if err != nil {
		t.Fatalf("LoadUserAgents() error: %v", err)
	}
	if list.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", list.Count())
	}
	ua, err := list.RandomUserAgent()
	if err != nil || (ua != "UA-1" && ua != "UA-2") {
		t.Errorf("RandomUserAgent() = %q, %v", ua, err)
	}
}

func TestLoadUserAgentsFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"useragent":"Remote-UA"}]`))
	}))
	defer srv.Close()

	list, err := LoadUserAgents(srv.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("LoadUserAgents() error: %v", err)
	}
	if ua, _ := list.RandomUserAgent(); ua != "Remote-UA" {
		t.Errorf("RandomUserAgent() = %q, want Remote-UA", ua)
	}
}

func TestLoadUserAgentsErrors(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer failing.Close()

	empty := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(empty, []byte("# nothing here\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	for name, source := range map[string]string{
		"http error":   failing.URL,
		"missing file": filepath.Join(t.TempDir(), "nope.txt"),
		"empty file":   empty,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadUserAgents(source, time.Second); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestEmptyUserAgentList(t *testing.T) {
	var list *UserAgentList
	if _, err := list.RandomUserAgent(); !errors.Is(err, errNoUserAgents) {
		t.Errorf("nil list error = %v, want errNoUserAgents", err)
	}
	if _, err := (&UserAgentList{}).RandomUserAgent(); !errors.Is(err, errNoUserAgents) {
		t.Errorf("empty list error = %v, want errNoUserAgents", err)
	}
}
