// File: control/settings.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Settings binds the CLI surface (cobra/pflag) to the on-disk, INI-style
// config file (viper) the Supervisor consumes, and suffixes IPC specs per
// worker so multi-worker deployments share nothing.

package control

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ServiceSpecs is one service's endpoint spec group, e.g. "m2a" or "ws".
type ServiceSpecs struct {
	InSpecs       []string
	OutSpecs      []string
	InStreamSpecs []string
}

// Settings is the fully resolved configuration handed to the Supervisor.
type Settings struct {
	ConfigFile string
	LogFile    string
	LogLevel   int
	Verbose    bool
	IPCPrefix  string
	Routes     []string
	QuietCheck bool

	Workers          int
	NewEventLoop     bool
	MaxOpenRequests  int
	ClientMaxConn    int
	RoutesFile       string
	SessionsMax      int
	Services         map[string]ServiceSpecs
	ListenAddr       string
}

// DefaultSettings mirrors the distilled spec's documented defaults.
func DefaultSettings() *Settings {
	return &Settings{
		LogLevel:        2,
		Workers:         1,
		NewEventLoop:    true,
		MaxOpenRequests: 50000,
		ClientMaxConn:   50000,
		SessionsMax:     50000,
		Services:        make(map[string]ServiceSpecs),
		ListenAddr:      ":7999",
	}
}

// BindFlags registers the CLI surface on cmd: --config, --logfile,
// --loglevel, --verbose, --ipc-prefix, --route (repeatable),
// --quiet-check. --help and --version are cobra/pflag built-ins.
func BindFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("config", "", "path to config file")
	flags.String("logfile", "", "path to log file (stderr if empty)")
	flags.Int("loglevel", 2, "log verbosity, 0-4")
	flags.Bool("verbose", false, "alias for --loglevel=3")
	flags.String("ipc-prefix", "", "prefix applied to ipc: specs")
	flags.StringArray("route", nil, "inline route line (repeatable); overrides the routes file")
	flags.Bool("quiet-check", false, "demote update-check log lines to debug")
}

// Load resolves Settings from cmd's flags layered over the config file
// named by --config, if any, using viper for INI parsing. Callers are
// responsible for calling BindFlags(cmd) first.
func Load(cmd *cobra.Command) (*Settings, error) {
	s := DefaultSettings()
	flags := cmd.Flags()

	s.ConfigFile, _ = flags.GetString("config")
	s.LogFile, _ = flags.GetString("logfile")
	s.LogLevel, _ = flags.GetInt("loglevel")
	s.Verbose, _ = flags.GetBool("verbose")
	s.IPCPrefix, _ = flags.GetString("ipc-prefix")
	s.Routes, _ = flags.GetStringArray("route")
	s.QuietCheck, _ = flags.GetBool("quiet-check")
	if s.Verbose {
		s.LogLevel = 3
	}

	if s.ConfigFile == "" {
		return s, nil
	}

	v := viper.New()
	v.SetConfigFile(s.ConfigFile)
	v.SetConfigType("ini")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("control: read config %s: %w", s.ConfigFile, err)
	}

	if v.IsSet("proxy.workers") {
		s.Workers = v.GetInt("proxy.workers")
	}
	if v.IsSet("proxy.new_event_loop") {
		if !v.GetBool("proxy.new_event_loop") {
			s.NewEventLoop = false
		}
	}
	if v.IsSet("runner.client_maxconn") {
		s.ClientMaxConn = v.GetInt("runner.client_maxconn")
	}
	if v.IsSet("proxy.max_open_requests") {
		s.MaxOpenRequests = v.GetInt("proxy.max_open_requests")
	}
	if s.MaxOpenRequests > s.ClientMaxConn {
		s.MaxOpenRequests = s.ClientMaxConn
	}
	s.SessionsMax = s.MaxOpenRequests
	if v.IsSet("proxy.listen_addr") {
		s.ListenAddr = v.GetString("proxy.listen_addr")
	}
	if v.IsSet("proxy.routesfile") {
		rf := v.GetString("proxy.routesfile")
		if !filepath.IsAbs(rf) {
			rf = filepath.Join(filepath.Dir(s.ConfigFile), rf)
		}
		s.RoutesFile = rf
	}

	s.Services = parseServiceSpecs(v.AllSettings())

	return s, nil
}

// parseServiceSpecs collects every "<service>_in_specs" / "_out_specs" /
// "_in_stream_specs" key found directly under the "proxy" section into a
// ServiceSpecs group keyed by service name.
func parseServiceSpecs(all map[string]any) map[string]ServiceSpecs {
	out := make(map[string]ServiceSpecs)
	proxy, ok := all["proxy"].(map[string]any)
	if !ok {
		return out
	}
	for key, raw := range proxy {
		var field *[]string
		var service string
		switch {
		case strings.HasSuffix(key, "_in_stream_specs"):
			service = strings.TrimSuffix(key, "_in_stream_specs")
		case strings.HasSuffix(key, "_in_specs"):
			service = strings.TrimSuffix(key, "_in_specs")
		case strings.HasSuffix(key, "_out_specs"):
			service = strings.TrimSuffix(key, "_out_specs")
		default:
			continue
		}
		specs := out[service]
		switch {
		case strings.HasSuffix(key, "_in_stream_specs"):
			field = &specs.InStreamSpecs
		case strings.HasSuffix(key, "_in_specs"):
			field = &specs.InSpecs
		case strings.HasSuffix(key, "_out_specs"):
			field = &specs.OutSpecs
		}
		*field = toStringSlice(raw)
		out[service] = specs
	}
	return out
}

func toStringSlice(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	case string:
		return strings.Split(v, ",")
	default:
		return nil
	}
}

// SuffixIPCSpec appends "-<workerID>" to an ipc: scheme spec so concurrent
// workers never collide on the same socket path.
func SuffixIPCSpec(spec string, workerID int) string {
	if !strings.HasPrefix(spec, "ipc:") {
		return spec
	}
	return spec + "-" + strconv.Itoa(workerID)
}
