package btree_test

import (
	"fmt"

	"github.com/FocuswithJustin/sqlforensic/core/forensic/internal/btree"
)

func ExampleGetVarint() {
	buf := btree.AppendVarint(nil, 300)
	v, n := btree.GetVarint(buf)
	fmt.Printf("% x -> %d (%d bytes)\n", buf, v, n)
	// Output: 82 2c -> 300 (2 bytes)
}

func ExampleLocalPayload() {
	const usable = 4096
	p := 5000
	fmt.Println(btree.LocalPayload(p, usable), btree.OverflowPageCount(p, usable))
	// Output: 908 1
}
