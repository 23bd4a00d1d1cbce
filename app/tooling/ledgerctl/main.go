// This program performs administrative tasks for the ledger service.
package main

import "github.com/greenhydro/ledger/app/tooling/ledgerctl/cmd"

func main() {
	cmd.Execute()
}
