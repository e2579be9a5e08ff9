package httpserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phspeters/webserv-sub000/internal/config"
)

func sampleConfig() *config.Config {
	def := &config.VirtualHost{BindAddress: "0.0.0.0", Port: 8080, ServerNames: nil}
	named := &config.VirtualHost{BindAddress: "0.0.0.0", Port: 8080, ServerNames: []string{"api.example.com"}}
	other := &config.VirtualHost{BindAddress: "10.0.0.5", Port: 9090, ServerNames: []string{"internal.example.com"}}
	return &config.Config{VirtualHosts: []*config.VirtualHost{def, named, other}}
}

func TestVHostIndexResolveExactMatch(t *testing.T) {
	cfg := sampleConfig()
	idx := newVHostIndex(cfg)
	def := idx.defaultFor("0.0.0.0", 8080)
	require.NotNil(t, def)

	vh := idx.resolve("0.0.0.0", 8080, "api.example.com", def)
	require.NotNil(t, vh)
	assert.Equal(t, []string{"api.example.com"}, vh.ServerNames)
}

func TestVHostIndexResolveFallsBackToDefault(t *testing.T) {
	cfg := sampleConfig()
	idx := newVHostIndex(cfg)
	def := idx.defaultFor("0.0.0.0", 8080)

	vh := idx.resolve("0.0.0.0", 8080, "unknown.example.com", def)
	assert.Same(t, def, vh)

	vhNoHost := idx.resolve("0.0.0.0", 8080, "", def)
	assert.Same(t, def, vhNoHost)
}

func TestVHostIndexResolveStripsPort(t *testing.T) {
	cfg := sampleConfig()
	idx := newVHostIndex(cfg)
	def := idx.defaultFor("0.0.0.0", 8080)

	vh := idx.resolve("0.0.0.0", 8080, "api.example.com:8080", def)
	assert.Equal(t, []string{"api.example.com"}, vh.ServerNames)
}

func TestMatchLocationLongestPrefix(t *testing.T) {
	vh := &config.VirtualHost{
		Locations: []*config.Location{
			{Path: "/"},
			{Path: "/static"},
			{Path: "/static/images"},
		},
	}
	loc := matchLocation(vh, "/static/images/logo.png")
	require.NotNil(t, loc)
	assert.Equal(t, "/static/images", loc.Path)

	loc = matchLocation(vh, "/static/logo.png")
	require.NotNil(t, loc)
	assert.Equal(t, "/static", loc.Path)

	loc = matchLocation(vh, "/other")
	require.NotNil(t, loc)
	assert.Equal(t, "/", loc.Path)
}

func TestLocationMatchesSegmentAligned(t *testing.T) {
	assert.True(t, locationMatches("/static", "/static"))
	assert.True(t, locationMatches("/static", "/static/a.png"))
	assert.False(t, locationMatches("/static", "/staticfoo"))
	assert.True(t, locationMatches("/", "/anything"))
}
