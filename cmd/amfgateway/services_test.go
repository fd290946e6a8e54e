package main

import (
	"math"
	"testing"

	"github.com/mtrqq/amf/pkg/amf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionArg(t *testing.T) {
	tests := []struct {
		name    string
		arg     any
		want    amf.Version
		wantErr bool
	}{
		{name: "legacy", arg: 0.0, want: amf.AMF0},
		{name: "current", arg: 3.0, want: amf.AMF3},
		{name: "integer", arg: 3, want: amf.AMF3},
		{name: "fraction", arg: 3.5, wantErr: true},
		{name: "negative", arg: -3.0, wantErr: true},
		{name: "negative integer", arg: -1, wantErr: true},
		{name: "wraps to current", arg: 65539.0, wantErr: true},
		{name: "nan", arg: math.NaN(), wantErr: true},
		{name: "infinity", arg: math.Inf(1), wantErr: true},
		{name: "unsupported", arg: 1.0, wantErr: true},
		{name: "not a number", arg: "3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := versionArg(tt.arg)
			if tt.wantErr {
				require.ErrorIs(t, err, errBadArguments)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToAssocArrayRejectsIndexedElements(t *testing.T) {
	_, err := toAssocArray(indexedBody())
	require.ErrorIs(t, err, errBadArguments)

	body := indexedBody()
	body.Dense = nil
	got, err := toAssocArray(body)
	require.NoError(t, err)
	assert.Same(t, body, got)
}
