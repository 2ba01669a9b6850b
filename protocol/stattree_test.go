package protocol

import (
	"encoding/json"
	"testing"
)

func TestStatTreeBuildAndLookup(t *testing.T) {
	tree := NewStatTree()
	tree.Set("temperature", FloatValue(61.5, "C"))
	tree.Child("memory").
		Set("used", IntRatio(1500, 2048, "MiB")).
		Set("bar1", IntValue(256, "MiB"))

	if err := tree.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	v, ok := tree.Lookup("memory/used")
	if !ok {
		t.Fatal("memory/used not found")
	}
	if *v.IntVal != 1500 || *v.IntDenominator != 2048 {
		t.Errorf("memory/used = %s, want 1500/2048", v.String())
	}

	if _, ok := tree.Lookup("memory/missing"); ok {
		t.Error("lookup of missing attribute should fail")
	}
	if _, ok := tree.Lookup("gpu/clock/sm"); ok {
		t.Error("lookup through missing child should fail")
	}
}

func TestStatTreeDepthCap(t *testing.T) {
	tree := NewStatTree()
	cur := tree
	for i := 0; i < MaxStatDepth; i++ {
		cur = cur.Child("n")
	}
	if err := tree.Validate(); err == nil {
		t.Errorf("tree %d levels deep should exceed the cap", MaxStatDepth+1)
	}

	tree = NewStatTree()
	cur = tree
	for i := 0; i < MaxStatDepth-1; i++ {
		cur = cur.Child("n")
	}
	if err := tree.Validate(); err != nil {
		t.Errorf("tree at the cap should validate: %v", err)
	}
}

func TestStatTreeRejectsInvalidValue(t *testing.T) {
	f := 1.0
	i := int64(2)
	tree := NewStatTree()
	tree.Child("gpu").Set("bad", Value{Kind: KindFloat, FloatVal: &f, IntVal: &i})
	if err := tree.Validate(); err == nil {
		t.Error("expected validation error for invalid nested value")
	}
}

func TestStatTreeJSONRoundTrip(t *testing.T) {
	tree := NewStatTree()
	tree.Set("summary", StringValue("healthy"))
	tree.Child("power").Set("draw", FloatRatio(180, 250, "W"))

	data, err := json.Marshal(tree)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got StatTree
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	v, ok := got.Lookup("power/draw")
	if !ok {
		t.Fatal("power/draw lost in round trip")
	}
	if !v.IsRatio() {
		t.Error("ratio lost in round trip")
	}
}
