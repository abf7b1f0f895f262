// Command corenode runs a single peer of the network: its persistent
// Merkle map, Kademlia-style routing table, and iterative parallel
// search driver, exposed over gRPC and driven by a small CLI, the
// same split cmd/sncli/main.go draws between process entrypoint and
// cmd/sncli/cmd's cobra command tree.
package main

import "github.com/lumeranet/corekad/cmd/corenode/cmd"

func main() {
	cmd.Execute()
}
