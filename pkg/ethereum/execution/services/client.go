package services

import "strings"

type Client string

const (
	ClientUnknown    Client = "unknown"
	ClientGeth       Client = "geth"
	ClientNethermind Client = "nethermind"
	ClientBesu       Client = "besu"
	ClientErigon     Client = "erigon"
	ClientReth       Client = "reth"
)

var clients = []Client{ClientGeth, ClientNethermind, ClientBesu, ClientErigon, ClientReth}

// ClientFromString maps a web3_clientVersion string such as
// "Geth/v1.14.0-stable/linux-amd64/go1.22" to a client.
func ClientFromString(version string) Client {
	name, _, _ := strings.Cut(strings.ToLower(version), "/")

	for _, c := range clients {
		if strings.Contains(name, string(c)) {
			return c
		}
	}

	return ClientUnknown
}
