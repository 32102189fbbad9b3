package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want command
	}{
		{"/dm u2 hello there", command{name: "dm", args: []string{"u2"}, text: "hello there"}},
		{"  /group g1   hi  all ", command{name: "group", args: []string{"g1"}, text: "hi  all"}},
		{"/history direct:u2", command{name: "history", args: []string{"direct:u2"}}},
		{"/partners", command{name: "partners"}},
		{"/groups", command{name: "groups"}},
		{"/quit", command{name: "quit"}},
	}
	for _, tt := range tests {
		got, err := parseCommand(tt.line)
		require.NoError(t, err, tt.line)
		assert.Equal(t, tt.want, got, tt.line)
	}
}

func TestParseCommandErrors(t *testing.T) {
	for _, line := range []string{"hello", "/dm u2", "/history", "/nope"} {
		_, err := parseCommand(line)
		assert.Error(t, err, line)
	}
}
