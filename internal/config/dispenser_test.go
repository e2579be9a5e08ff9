package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeSkipsCommentsAndHandlesQuotes(t *testing.T) {
	tokens, err := tokenize(strings.NewReader(`
# a comment
server {
    server_name "my host"; # trailing comment
}
`))
	require.NoError(t, err)

	var texts []string
	for _, tok := range tokens {
		texts = append(texts, tok.text)
	}
	assert.Equal(t, []string{"server", "{", "server_name", "my host", ";", "}"}, texts)
}

func TestDispenserRemainingArgsStopsAtDelimiters(t *testing.T) {
	tokens, err := tokenize(strings.NewReader("allow_methods GET POST;"))
	require.NoError(t, err)
	d := newDispenser(tokens)
	require.True(t, d.Next())
	assert.Equal(t, "allow_methods", d.Val())
	assert.Equal(t, []string{"GET", "POST"}, d.RemainingArgs())
}

func TestDispenserNextBlockIteratesUntilClose(t *testing.T) {
	tokens, err := tokenize(strings.NewReader("{ root /a; index b.html; }"))
	require.NoError(t, err)
	d := newDispenser(tokens)
	require.True(t, d.Next()) // consumes '{'

	var directives []string
	for d.NextBlock() {
		directives = append(directives, d.Val())
		d.RemainingArgs()
	}
	assert.Equal(t, []string{"root", "index"}, directives)
}
