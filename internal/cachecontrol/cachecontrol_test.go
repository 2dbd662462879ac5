package cachecontrol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tailcallhq/tailcall-go/internal/cachecontrol"
)

func TestNoObservationsYieldsNoHeader(t *testing.T) {
	p := cachecontrol.New()
	_, ok := p.Header()
	assert.False(t, ok)
}

func TestObserveTakesMinimumMaxAge(t *testing.T) {
	p := cachecontrol.New()
	p.Observe("public, max-age=300")
	p.Observe("public, max-age=60")
	header, ok := p.Header()
	assert.True(t, ok)
	assert.Equal(t, "public, max-age=60", header)
}

func TestObservePrivateDowngradesVisibility(t *testing.T) {
	p := cachecontrol.New()
	p.Observe("public, max-age=120")
	p.Observe("private, max-age=300")
	header, ok := p.Header()
	assert.True(t, ok)
	assert.Equal(t, "private, max-age=120", header)
}

func TestObserveWithoutMaxAgeDoesNotSetHeader(t *testing.T) {
	p := cachecontrol.New()
	p.Observe("no-store")
	_, ok := p.Header()
	assert.False(t, ok)
}
