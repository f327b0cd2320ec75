package config

import "testing"

type decodeTarget struct {
	Expression string `yaml:"expression"`
	Groupsize  int    `yaml:"groupsize"`
}

func TestDecode(t *testing.T) {
	raw := map[string]interface{}{"expression": "servers.*.cpu", "groupsize": 5}

	got, err := Decode[decodeTarget](raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Expression != "servers.*.cpu" {
		t.Errorf("Expression = %q", got.Expression)
	}
	if got.Groupsize != 5 {
		t.Errorf("Groupsize = %d, want 5", got.Groupsize)
	}
}
