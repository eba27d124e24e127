package validate

import (
	"strings"
	"testing"

	"github.com/kestrelgs/pb2proto/internal/proto"
)

func buildTestSchema() (*proto.Schema, []proto.GenUnit) {
	schema := proto.NewSchema()

	pkg := schema.Get("Demo")
	status := proto.NewEnum("Status", 1)
	status.AddVariant("OK", 0)
	status.AddVariant("FAIL", 1)
	pkg.AddEnum(status)

	msg := proto.NewMessage("Response", 2)
	cardinality := proto.CardinalitySingle
	msg.AddField(proto.NewField(nil, "code", "int32", nil, 1, &cardinality))
	msg.AddField(proto.NewField(nil, "message", "string", nil, 2, &cardinality))
	statusIdx := int32(1)
	msg.AddField(proto.NewField(nil, "status", "Status", &statusIdx, 3, &cardinality))

	mapVal := proto.NewMessage("Entry", 3)
	mapValIdx := int32(3)
	msg.AddMapField(proto.NewMapField("string", nil, "Entry", &mapValIdx, "attrs", 4))
	pkg.AddMessage(msg)
	pkg.AddMessage(mapVal)

	schema.Seal()
	units, err := schema.BuildUnits()
	if err != nil {
		panic(err)
	}
	return schema, units
}

func TestSchemaBuildsCleanDescriptors(t *testing.T) {
	schema, units := buildTestSchema()

	issues, err := Schema(schema, units)
	if err != nil {
		t.Fatalf("Schema() error = %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("Schema() issues = %v, want none", issues)
	}
}

func TestSchemaSkipsWellKnownImports(t *testing.T) {
	units := []proto.GenUnit{
		{
			Namespace: "Demo",
			Imports:   map[string]struct{}{"google/protobuf/timestamp.proto": {}},
		},
	}
	schema := proto.NewSchema()
	schema.Get("Demo")
	schema.Seal()

	issues, err := Schema(schema, units)
	if err != nil {
		t.Fatalf("Schema() error = %v", err)
	}
	if len(issues) != 1 || !strings.Contains(issues[0], "well-known") {
		t.Fatalf("Schema() issues = %v, want one well-known skip note", issues)
	}
}

func TestSchemaFlagsUnnamedServiceMethod(t *testing.T) {
	schema := proto.NewSchema()
	// "Takasho.Schema." is BuildUnits' unconditional-retention prefix: a
	// service-only package otherwise has no used/contained type overlap
	// with anything else and would be dropped as dead before validation
	// ever saw it.
	pkg := schema.Get("Takasho.Schema.Demo")
	svc := proto.NewService("Gateway", 1)
	svc.AddMethod(proto.NewServiceMethod("", nil, "", nil, nil, "", nil, false, false))
	pkg.AddService(svc)
	schema.Seal()

	units, err := schema.BuildUnits()
	if err != nil {
		t.Fatalf("BuildUnits() error = %v", err)
	}

	issues, err := Schema(schema, units)
	if err != nil {
		t.Fatalf("Schema() error = %v", err)
	}

	var sawMissingName, sawMissingRequest, sawMissingResponse bool
	for _, issue := range issues {
		sawMissingName = sawMissingName || strings.Contains(issue, "method has no name")
		sawMissingRequest = sawMissingRequest || strings.Contains(issue, "missing request type")
		sawMissingResponse = sawMissingResponse || strings.Contains(issue, "missing response type")
	}
	if !sawMissingName || !sawMissingRequest || !sawMissingResponse {
		t.Fatalf("Schema() issues = %v, want name/request/response complaints", issues)
	}
}

func TestTopoOrderDetectsCycle(t *testing.T) {
	units := []proto.GenUnit{
		{Namespace: "A", Imports: map[string]struct{}{"B.proto": {}}},
		{Namespace: "B", Imports: map[string]struct{}{"A.proto": {}}},
	}
	if _, _, err := topoOrder(units); err == nil {
		t.Fatal("topoOrder() error = nil, want cycle error")
	}
}
