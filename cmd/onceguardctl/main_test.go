package main

import "testing"

func TestBuildRoot_RegistersExpectedSubcommands(t *testing.T) {
	root := buildRoot()

	want := []string{"serve", "try-start", "complete", "status", "sweep"}
	for _, name := range want {
		if root.Commands() == nil {
			t.Fatalf("root has no subcommands")
		}
		found := false
		for _, c := range root.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestBuildRoot_ClientFlagsHaveDefaults(t *testing.T) {
	root := buildRoot()

	f := root.PersistentFlags().Lookup("server-url")
	if f == nil || f.DefValue != "http://localhost:8080" {
		t.Fatalf("server-url default = %v", f)
	}
}
