package config

import (
	"strings"
	"testing"

	"github.com/kbukum/watchtower-sentry/logger"
	"github.com/kbukum/watchtower-sentry/pipeline"
	"github.com/kbukum/watchtower-sentry/sample"
)

type sourceParams struct {
	Expression string `yaml:"expression" validate:"required"`
}

type sinkParams struct {
	FQID string `yaml:"fqid" validate:"required"`
}

func noopBuild(role pipeline.Role) pipeline.BuildFunc {
	return func(params map[string]interface{}, ctx *pipeline.Context, log *logger.Logger, upstream *pipeline.Pipeline[sample.Sample]) (*pipeline.Stage, error) {
		switch role {
		case pipeline.RoleSink:
			return &pipeline.Stage{Role: role, Runnable: &pipeline.Runnable{}}, nil
		default:
			return &pipeline.Stage{Role: role, Samples: upstream}, nil
		}
	}
}

func testRegistry() *pipeline.Registry {
	r := pipeline.NewRegistry()
	r.Register("Historical", pipeline.ModuleDef{Role: pipeline.RoleSource, Params: &sourceParams{}, Build: noopBuild(pipeline.RoleSource)})
	r.Register("Keyfilter", pipeline.ModuleDef{Role: pipeline.RoleFilter, Params: nil, Build: noopBuild(pipeline.RoleFilter)})
	r.Register("AlertKafka", pipeline.ModuleDef{Role: pipeline.RoleSink, Params: &sinkParams{}, Build: noopBuild(pipeline.RoleSink)})
	return r
}

func TestValidateAccepts(t *testing.T) {
	doc := &Document{
		Path: "pipeline.yaml",
		Pipeline: []StageDoc{
			{Module: "Historical", Params: map[string]interface{}{"expression": "servers.*.cpu"}},
			{Module: "Keyfilter", Params: map[string]interface{}{}},
			{Module: "AlertKafka", Params: map[string]interface{}{"fqid": "cpu-alert"}},
		},
	}
	if err := Validate(doc, testRegistry()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsUnknownModule(t *testing.T) {
	doc := &Document{Path: "p.yaml", Pipeline: []StageDoc{
		{Module: "Historical", Params: map[string]interface{}{"expression": "x"}},
		{Module: "Bogus", Params: map[string]interface{}{}},
	}}
	err := Validate(doc, testRegistry())
	if err == nil || !strings.Contains(err.Error(), "unknown module") {
		t.Fatalf("Validate error = %v, want unknown module", err)
	}
}

func TestValidateRejectsWrongRole(t *testing.T) {
	doc := &Document{Path: "p.yaml", Pipeline: []StageDoc{
		{Module: "AlertKafka", Params: map[string]interface{}{"fqid": "x"}},
		{Module: "Historical", Params: map[string]interface{}{"expression": "x"}},
	}}
	err := Validate(doc, testRegistry())
	if err == nil {
		t.Fatal("expected role error")
	}
}

func TestValidateRejectsUnknownField(t *testing.T) {
	doc := &Document{Path: "p.yaml", Pipeline: []StageDoc{
		{Module: "Historical", Params: map[string]interface{}{"expression": "x", "bogus": 1}},
		{Module: "AlertKafka", Params: map[string]interface{}{"fqid": "x"}},
	}}
	err := Validate(doc, testRegistry())
	if err == nil || !strings.Contains(err.Error(), "unknown field") {
		t.Fatalf("Validate error = %v, want unknown field", err)
	}
}

func TestValidateRejectsMissingRequiredField(t *testing.T) {
	doc := &Document{Path: "p.yaml", Pipeline: []StageDoc{
		{Module: "Historical", Params: map[string]interface{}{}},
		{Module: "AlertKafka", Params: map[string]interface{}{"fqid": "x"}},
	}}
	err := Validate(doc, testRegistry())
	if err == nil || !strings.Contains(err.Error(), "missing required field") {
		t.Fatalf("Validate error = %v, want missing required field", err)
	}
}

func TestValidateRejectsTooFewStages(t *testing.T) {
	doc := &Document{Path: "p.yaml", Pipeline: []StageDoc{
		{Module: "Historical", Params: map[string]interface{}{"expression": "x"}},
	}}
	if err := Validate(doc, testRegistry()); err == nil {
		t.Fatal("expected error for single-stage pipeline")
	}
}
