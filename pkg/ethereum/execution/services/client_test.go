package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientFromString(t *testing.T) {
	tests := []struct {
		version string
		want    Client
	}{
		{"Geth/v1.14.0-stable-87246f3c/linux-amd64/go1.22.1", ClientGeth},
		{"Nethermind/v1.25.4+20b10b35/linux-x64/dotnet8.0.2", ClientNethermind},
		{"besu/v24.3.0/linux-x86_64/openjdk-java-21", ClientBesu},
		{"erigon/2.59.0/linux-amd64/go1.21.5", ClientErigon},
		{"reth/v0.2.0-beta.5-3e2f0e8/x86_64-unknown-linux-gnu", ClientReth},
		{"anvil/v0.2.0", ClientUnknown},
		{"", ClientUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			assert.Equal(t, tt.want, ClientFromString(tt.version))
		})
	}
}
