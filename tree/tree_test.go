package tree

import (
	"bytes"
	"testing"
)

const (
	tree1 = "((((a001:0.242690,a002:0.268555):0.073424,a003:0.252510):0.198740,((((((a004:0.001000,a005:0.014869):0.045007,a006:0.050606):0.056908,a007:0.166439):0.023217,a008:0.094788):0.429852,a009:0.558116):0.130317,(a010:0.009332,a011:0.024271):0.315124):0.217376):0.464470,a012:0.144369):0.0;"
	tree2 = "((a:1,b:2):3,c:1):0;"
	tree3 = "((a:1,b:2,c:3):1,d:1):0;"
)

func TestParse1(tst *testing.T) {
	t, err := ParseNewick(bytes.NewBufferString(tree1))
	if err != nil {
		tst.Fatal("Error parsing tree", err)
	}
	if t.NLeaves() != 12 {
		tst.Error("Expected 12 leaves, got", t.NLeaves())
	}
	if t.NNodes() != 23 {
		tst.Error("Expected 23 nodes, got", t.NNodes())
	}
	if err := t.Validate(); err != nil {
		tst.Error("Unexpected validation error:", err)
	}
}

func TestValidateMultifurcation(tst *testing.T) {
	t, err := ParseNewick(bytes.NewBufferString(tree3))
	if err != nil {
		tst.Fatal("Error parsing tree", err)
	}
	if err := t.Validate(); err == nil {
		tst.Error("Expected validation error for a multifurcating tree")
	}
}

func TestNodeOrder(tst *testing.T) {
	t, err := ParseNewick(bytes.NewBufferString(tree1))
	if err != nil {
		tst.Fatal("Error parsing tree", err)
	}
	seen := make(map[*Node]bool)
	for node := range t.Terminals() {
		seen[node] = true
	}
	for _, node := range t.NodeOrder() {
		for _, child := range node.ChildNodes() {
			if !seen[child] {
				tst.Error("Child visited after parent in post-order")
			}
		}
		seen[node] = true
	}
	if !seen[t.Node] {
		tst.Error("Root missing from post-order")
	}
}

func TestWaves(tst *testing.T) {
	t, err := ParseNewick(bytes.NewBufferString(tree1))
	if err != nil {
		tst.Fatal("Error parsing tree", err)
	}
	waves := t.Waves()
	wave := make(map[*Node]int)
	total := 0
	for k, nodes := range waves {
		for _, node := range nodes {
			wave[node] = k
			total++
		}
	}
	if total != t.NNodes() {
		tst.Error("Waves do not cover all nodes:", total, "of", t.NNodes())
	}
	for node := range t.Walker(nil) {
		for _, child := range node.ChildNodes() {
			if wave[child] >= wave[node] {
				tst.Error("Node scheduled before its child")
			}
		}
	}
	for _, node := range waves[0] {
		if !node.IsTerminal() {
			tst.Error("Wave 0 contains an internal node")
		}
	}
	last := waves[len(waves)-1]
	if len(last) != 1 || !last[0].IsRoot() {
		tst.Error("Last wave must hold only the root")
	}
}

func TestCopy(tst *testing.T) {
	t, err := ParseNewick(bytes.NewBufferString(tree2))
	if err != nil {
		tst.Fatal("Error parsing tree", err)
	}
	t1 := t.Copy()
	if t1.String() != t.String() {
		tst.Error("Copy differs from the original")
	}
	for i, node := range t.Nodes() {
		if node == t1.Nodes()[i] {
			tst.Error("Copy shares nodes with the original")
		}
	}
	t1.Nodes()[1].BranchLength = 100
	if t1.String() == t.String() {
		tst.Error("Original changed after modifying the copy")
	}
}
