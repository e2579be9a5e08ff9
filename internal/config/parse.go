package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// ParseFile loads and validates a configuration file. The path must
// end in ".conf" (SPEC_FULL.md §6).
func ParseFile(path string) (*Config, error) {
	if filepath.Ext(path) != ".conf" {
		return nil, fmt.Errorf("config file %q must have a .conf extension", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}
	defer f.Close()

	tokens, err := tokenize(f)
	if err != nil {
		return nil, fmt.Errorf("tokenizing config: %w", err)
	}

	cfg, err := parseTokens(tokens)
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseTokens(tokens []token) (*Config, error) {
	d := newDispenser(tokens)
	cfg := &Config{}

	for d.Next() {
		if d.Val() != "server" {
			return nil, d.Errf("expected 'server', got '%s'", d.Val())
		}
		if !d.Next() || d.Val() != "{" {
			return nil, d.Errf("expected '{' after 'server'")
		}
		vh, err := parseServerBlock(d)
		if err != nil {
			return nil, err
		}
		cfg.VirtualHosts = append(cfg.VirtualHosts, vh)
	}
	return cfg, nil
}

func parseServerBlock(d *dispenser) (*VirtualHost, error) {
	vh := &VirtualHost{
		ClientMaxBodySize: DefaultClientMaxBodySize,
		ErrorPages:        make(map[int]string),
	}

	for d.NextBlock() {
		switch d.Val() {
		case "listen":
			args := d.RemainingArgs()
			if len(args) != 1 {
				return nil, d.ArgErr()
			}
			addr, port, specified, err := parseListen(args[0])
			if err != nil {
				return nil, d.Errf("%v", err)
			}
			vh.BindAddress = addr
			vh.Port = port
			vh.BindSpecified = specified

		case "server_name":
			args := d.RemainingArgs()
			if len(args) == 0 {
				return nil, d.ArgErr()
			}
			for _, a := range args {
				vh.ServerNames = append(vh.ServerNames, strings.ToLower(a))
			}

		case "client_max_body_size":
			args := d.RemainingArgs()
			if len(args) != 1 {
				return nil, d.ArgErr()
			}
			sizeArg := args[0]
			// K, M and G are 1024-based, as in nginx; go-humanize reads a
			// bare "M" as 10^6, so "2M" is passed on as "2Mi".
			if strings.ContainsRune("kKmMgG", rune(sizeArg[len(sizeArg)-1])) {
				sizeArg += "i"
			}
			size, err := humanize.ParseBytes(sizeArg)
			if err != nil {
				return nil, d.Errf("invalid client_max_body_size %q: %v", args[0], err)
			}
			vh.ClientMaxBodySize = int64(size)

		case "error_page":
			args := d.RemainingArgs()
			if len(args) != 2 {
				return nil, d.ArgErr()
			}
			code, err := strconv.Atoi(args[0])
			if err != nil {
				return nil, d.Errf("invalid error_page status code %q", args[0])
			}
			vh.ErrorPages[code] = args[1]

		case "log":
			args := d.RemainingArgs()
			if len(args) == 0 {
				return nil, d.ArgErr()
			}
			vh.AccessLogPath = args[0]
			if len(args) > 1 {
				vh.LogLevel = args[1]
			}

		case "location":
			args := d.RemainingArgs()
			if len(args) != 1 {
				return nil, d.ArgErr()
			}
			if d.Val() != "{" {
				return nil, d.Errf("expected '{' after 'location %s'", args[0])
			}
			loc, err := parseLocationBlock(d, args[0])
			if err != nil {
				return nil, err
			}
			vh.Locations = append(vh.Locations, loc)

		default:
			return nil, d.Errf("unknown server directive '%s'", d.Val())
		}
	}

	return vh, nil
}

func parseLocationBlock(d *dispenser, path string) (*Location, error) {
	loc := &Location{
		Path:            path,
		AllowedMethods:  make(map[Method]bool),
		CGIInterpreters: make(map[string]string),
	}

	for d.NextBlock() {
		switch d.Val() {
		case "root":
			args := d.RemainingArgs()
			if len(args) != 1 {
				return nil, d.ArgErr()
			}
			loc.Root = args[0]

		case "autoindex":
			args := d.RemainingArgs()
			if len(args) != 1 {
				return nil, d.ArgErr()
			}
			loc.Autoindex = args[0] == "on"

		case "allow_methods":
			args := d.RemainingArgs()
			if len(args) == 0 {
				return nil, d.ArgErr()
			}
			for _, a := range args {
				m := Method(strings.ToUpper(a))
				switch m {
				case MethodGet, MethodPost, MethodDelete:
					loc.AllowedMethods[m] = true
				default:
					return nil, d.Errf("unsupported method '%s' in allow_methods", a)
				}
			}

		case "cgi":
			args := d.RemainingArgs()
			if len(args) != 1 {
				return nil, d.ArgErr()
			}
			loc.CGIEnabled = args[0] == "on"

		case "cgi_interpreter":
			args := d.RemainingArgs()
			if len(args) != 2 {
				return nil, d.ArgErr()
			}
			loc.CGIInterpreters[strings.TrimPrefix(args[0], ".")] = args[1]

		case "index":
			args := d.RemainingArgs()
			if len(args) != 1 {
				return nil, d.ArgErr()
			}
			loc.Index = args[0]

		case "redirect":
			args := d.RemainingArgs()
			if len(args) != 1 {
				return nil, d.ArgErr()
			}
			loc.Redirect = args[0]

		default:
			return nil, d.Errf("unknown location directive '%s'", d.Val())
		}
	}

	return loc, nil
}

// parseListen parses "HOST:PORT" or "PORT" into an address and port.
func parseListen(val string) (addr string, port int, specified bool, err error) {
	if !strings.Contains(val, ":") {
		p, perr := strconv.Atoi(val)
		if perr != nil {
			return "", 0, false, fmt.Errorf("invalid listen value %q", val)
		}
		return "0.0.0.0", p, false, nil
	}
	host, portStr, serr := net.SplitHostPort(val)
	if serr != nil {
		return "", 0, false, fmt.Errorf("invalid listen value %q: %v", val, serr)
	}
	p, perr := strconv.Atoi(portStr)
	if perr != nil {
		return "", 0, false, fmt.Errorf("invalid listen port %q", portStr)
	}
	if host == "" {
		host = "0.0.0.0"
	}
	return host, p, true, nil
}
