package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Normalize converts a flag/env key to the upper-with-hyphens form used by
// the wire-compatible configuration surface, e.g. "db_url" -> "DB-URL".
func Normalize(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "_", "-"))
}

// Load builds a Config from, in increasing precedence: built-in defaults,
// a YAML file at yamlPath (if it exists), a ".env" INI-style file at
// envPath (if it exists), and finally the process's command-line flags.
// This mirrors the original rustdesk-server binaries: an INI/.env overlay
// plus flags, with flags winning.
func Load(args []string, yamlPath, envPath string) (Config, error) {
	cfg := Defaults()

	if data, err := os.ReadFile(yamlPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", yamlPath, err)
		}
	}

	if err := applyEnvFile(&cfg, envPath); err != nil {
		return cfg, err
	}

	if err := applyFlags(&cfg, args); err != nil {
		return cfg, err
	}

	if cfg.Version > CurrentConfigVersion {
		return cfg, fmt.Errorf("%w: version %d is newer than supported version %d", ErrConfigVersionTooNew, cfg.Version, CurrentConfigVersion)
	}

	cfg.RendezvousServers = ValidateServerList(cfg.RendezvousServers)
	cfg.RelayServers = ValidateServerList(cfg.RelayServers)

	return cfg, nil
}

// applyEnvFile loads a simple "KEY=VALUE" (or "key = value") INI-style file,
// one setting per line, comments starting with '#' or ';'. Keys are
// normalized before being mapped onto Config fields.
func applyEnvFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil // absence is not an error; flags/defaults still apply
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		setField(cfg, Normalize(strings.TrimSpace(k)), strings.TrimSpace(v))
	}
	return nil
}

// applyFlags overlays command-line flags atop cfg. Flag names match the
// lower-case, hyphen-separated form of the table in the external-interfaces
// section.
func applyFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.String("config", "", "path to the yaml config file (consumed by the binary before Load runs)")
	port := fs.Int("port", cfg.Port, "rendezvous UDP/TCP port")
	relayPort := fs.Int("relay-port", cfg.RelayPort, "relay TCP port")
	serial := fs.Int("serial", cfg.Serial, "config generation counter")
	rendezvousServers := fs.String("rendezvous-servers", strings.Join(cfg.RendezvousServers, ","), "comma-separated rendezvous peer list")
	relayServers := fs.String("relay-servers", strings.Join(cfg.RelayServers, ","), "comma-separated relay list")
	softwareURL := fs.String("software-url", cfg.SoftwareURL, "URL served in update responses")
	key := fs.String("key", cfg.Key, "shared access key, '-' or '_' to auto-generate")
	licenceKey := fs.String("licence-key", cfg.LicenceKey, "required RequestRelay.LicenceKey, empty to accept any")
	rmem := fs.Int("rmem", cfg.Rmem, "UDP receive buffer size")
	mask := fs.String("mask", cfg.Mask, "CIDR defining the operator LAN")
	localIP := fs.String("local-ip", cfg.LocalIP, "server's LAN-side ip for LAN substitution")
	dbURL := fs.String("db-url", cfg.DBURL, "durable store location")
	maxConns := fs.Int("max-database-connections", cfg.MaxDatabaseConnections, "pool size")
	alwaysRelay := fs.Bool("always-use-relay", cfg.AlwaysUseRelay, "force relay for every session")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg.Port = *port
	cfg.RelayPort = *relayPort
	cfg.Serial = *serial
	if *rendezvousServers != "" {
		cfg.RendezvousServers = splitCSV(*rendezvousServers)
	}
	if *relayServers != "" {
		cfg.RelayServers = splitCSV(*relayServers)
	}
	cfg.SoftwareURL = *softwareURL
	cfg.Key = *key
	cfg.LicenceKey = *licenceKey
	cfg.Rmem = *rmem
	cfg.Mask = *mask
	cfg.LocalIP = *localIP
	cfg.DBURL = *dbURL
	cfg.MaxDatabaseConnections = *maxConns
	cfg.AlwaysUseRelay = *alwaysRelay
	return nil
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// setField applies one normalized KEY to the relevant Config field. Unknown
// keys are ignored, matching the original's env-var passthrough behavior.
func setField(cfg *Config, key, value string) {
	switch key {
	case "PORT":
		if n, err := strconv.Atoi(value); err == nil {
			cfg.Port = n
		}
	case "RELAY-PORT":
		if n, err := strconv.Atoi(value); err == nil {
			cfg.RelayPort = n
		}
	case "SERIAL":
		if n, err := strconv.Atoi(value); err == nil {
			cfg.Serial = n
		}
	case "RENDEZVOUS-SERVERS":
		cfg.RendezvousServers = splitCSV(value)
	case "RELAY-SERVERS":
		cfg.RelayServers = splitCSV(value)
	case "SOFTWARE-URL":
		cfg.SoftwareURL = value
	case "KEY":
		cfg.Key = value
	case "LICENCE-KEY":
		cfg.LicenceKey = value
	case "RMEM":
		if n, err := strconv.Atoi(value); err == nil {
			cfg.Rmem = n
		}
	case "MASK":
		cfg.Mask = value
	case "LOCAL-IP":
		cfg.LocalIP = value
	case "DB-URL":
		cfg.DBURL = value
	case "MAX-DATABASE-CONNECTIONS":
		if n, err := strconv.Atoi(value); err == nil {
			cfg.MaxDatabaseConnections = n
		}
	case "ALWAYS-USE-RELAY":
		cfg.AlwaysUseRelay = value == "Y" || value == "y" || value == "true" || value == "1"
	}
}

// ValidateServerList drops entries that don't resolve as "host" or
// "host:port", mirroring the original's test_if_valid_server filter so a
// bad ConfigureUpdate entry can't wedge the rendezvous server on a peer
// that will never resolve.
func ValidateServerList(servers []string) []string {
	out := make([]string, 0, len(servers))
	for _, s := range servers {
		if s == "" {
			continue
		}
		host := s
		if h, _, err := net.SplitHostPort(s); err == nil {
			host = h
		}
		if _, err := net.LookupHost(host); err != nil {
			if net.ParseIP(host) == nil {
				continue
			}
		}
		out = append(out, s)
	}
	return out
}
