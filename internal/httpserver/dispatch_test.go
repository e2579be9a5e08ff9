package httpserver

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/phspeters/webserv-sub000/internal/config"
)

func TestDispatchDisallowedMethod(t *testing.T) {
	loc := &config.Location{AllowedMethods: map[config.Method]bool{config.MethodGet: true}}
	result := Dispatch(loc, config.MethodPost)
	assert.Equal(t, 405, result.Status)
	assert.Equal(t, "GET", result.AllowHeader)
}

func TestDispatchCGITakesPriority(t *testing.T) {
	loc := &config.Location{
		AllowedMethods: map[config.Method]bool{config.MethodGet: true, config.MethodPost: true},
		CGIEnabled:     true,
	}
	result := Dispatch(loc, config.MethodGet)
	assert.Equal(t, HandlerCGI, result.Kind)
	assert.Zero(t, result.Status)
}

func TestDispatchPostGoesToUpload(t *testing.T) {
	loc := &config.Location{AllowedMethods: map[config.Method]bool{config.MethodPost: true}}
	result := Dispatch(loc, config.MethodPost)
	assert.Equal(t, HandlerUpload, result.Kind)
}

func TestDispatchDeleteGoesToDelete(t *testing.T) {
	loc := &config.Location{AllowedMethods: map[config.Method]bool{config.MethodDelete: true}}
	result := Dispatch(loc, config.MethodDelete)
	assert.Equal(t, HandlerDelete, result.Kind)
}

func TestDispatchGetGoesToStatic(t *testing.T) {
	loc := &config.Location{AllowedMethods: map[config.Method]bool{config.MethodGet: true}}
	result := Dispatch(loc, config.MethodGet)
	assert.Equal(t, HandlerStatic, result.Kind)
}
