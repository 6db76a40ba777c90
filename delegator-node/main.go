// Delegator node implementation.
package main

import (
	"github.com/delegation-marketplace/stx-delegator/delegator-node/cmd"
)

func main() {
	cmd.Execute()
}
