package main

import (
	"fmt"
	"os"

	gen "github.com/whyrusleeping/cbor-gen"

	"github.com/lotus-web3/nffs/flashlog"
)

func main() {
	err := gen.WriteTupleEncodersToFile("./flashlog/cbor_gen.go", "flashlog", flashlog.Head{})
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
