package indexer

import (
	"os"
	"testing"

	"veriframe-indexer/indexer/abi"
)

func TestMain(m *testing.M) {
	abi.InitRegistryAbi("abi/contracts/JobRegistry.json")
	os.Exit(m.Run())
}
