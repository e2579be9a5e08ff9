package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConf(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "webserv.conf")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestParseFileRejectsWrongExtension(t *testing.T) {
	_, err := ParseFile("webserv.yaml")
	assert.Error(t, err)
}

func TestParseFileMinimalServerBlock(t *testing.T) {
	path := writeConf(t, `
server {
    listen 127.0.0.1:8080;
    server_name example.com;
    client_max_body_size 2M;

    location / {
        root ./testdata/www;
        autoindex on;
        allow_methods GET POST;
    }
}
`)
	cfg, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, cfg.VirtualHosts, 1)

	vh := cfg.VirtualHosts[0]
	assert.Equal(t, "127.0.0.1", vh.BindAddress)
	assert.Equal(t, 8080, vh.Port)
	assert.Equal(t, []string{"example.com"}, vh.ServerNames)
	assert.EqualValues(t, 2*1024*1024, vh.ClientMaxBodySize)
	require.Len(t, vh.Locations, 1)

	loc := vh.Locations[0]
	assert.Equal(t, "/", loc.Path)
	assert.True(t, loc.Autoindex)
	assert.True(t, loc.AllowsMethod(MethodGet))
	assert.True(t, loc.AllowsMethod(MethodPost))
	assert.False(t, loc.AllowsMethod(MethodDelete))
}

func TestParseFileDefaultsBindAddressAndBodySize(t *testing.T) {
	path := writeConf(t, `
server {
    listen 8080;
    location / {
        root ./testdata/www;
        allow_methods GET;
    }
}
`)
	cfg, err := ParseFile(path)
	require.NoError(t, err)
	vh := cfg.VirtualHosts[0]
	assert.Equal(t, "0.0.0.0", vh.BindAddress)
	assert.False(t, vh.BindSpecified)
	assert.EqualValues(t, DefaultClientMaxBodySize, vh.ClientMaxBodySize)
}

func TestParseFileCGIInterpreters(t *testing.T) {
	path := writeConf(t, `
server {
    listen 8080;
    location /cgi-bin {
        root ./testdata/cgi-bin;
        allow_methods GET POST;
        cgi on;
        cgi_interpreter .py /usr/bin/python3;
        cgi_interpreter .sh /bin/sh;
    }
}
`)
	cfg, err := ParseFile(path)
	require.NoError(t, err)
	loc := cfg.VirtualHosts[0].Locations[0]
	assert.True(t, loc.CGIEnabled)
	assert.Equal(t, "/usr/bin/python3", loc.CGIInterpreters["py"])
	assert.Equal(t, "/bin/sh", loc.CGIInterpreters["sh"])
}

func TestParseFileRejectsUnknownDirective(t *testing.T) {
	path := writeConf(t, `
server {
    listen 8080;
    bogus_directive 1;
    location / {
        root ./testdata/www;
        allow_methods GET;
    }
}
`)
	_, err := ParseFile(path)
	assert.Error(t, err)
}

func TestValidateRejectsLocationWithNoRoot(t *testing.T) {
	path := writeConf(t, `
server {
    listen 8080;
    location / {
        allow_methods GET;
    }
}
`)
	_, err := ParseFile(path)
	assert.Error(t, err)
}

func TestParseListen(t *testing.T) {
	addr, port, specified, err := parseListen("9090")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", addr)
	assert.Equal(t, 9090, port)
	assert.False(t, specified)

	addr, port, specified, err = parseListen("10.0.0.1:9090")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", addr)
	assert.Equal(t, 9090, port)
	assert.True(t, specified)

	_, _, _, err = parseListen("not-a-port")
	assert.Error(t, err)
}
