package browse

import (
	"testing"

	"github.com/kestrelgs/pb2proto/internal/proto"
)

func TestRunRejectsEmptySchema(t *testing.T) {
	if err := Run(nil); err == nil {
		t.Fatal("Run(nil) error = nil, want an error for an empty package set")
	}
}

func TestNewModelBuildsSortedItems(t *testing.T) {
	units := []proto.GenUnit{
		{Namespace: "Zeta", Messages: []string{"message A {}\n"}},
		{Namespace: "Alpha", Enums: []string{"enum E {}\n"}, Services: []string{"service S {}\n"}},
	}

	m := newModel(units)
	items := m.list.Items()
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}
	first, ok := items[0].(packageItem)
	if !ok || first.namespace != "Alpha" {
		t.Errorf("items[0] = %+v, want namespace Alpha first (sorted)", items[0])
	}
}
