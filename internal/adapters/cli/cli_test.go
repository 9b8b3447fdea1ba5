package cli

import "testing"

func TestJoinCommandNamesStripsArguments(t *testing.T) {
	t.Parallel()
	descriptors := []commandDescriptor{
		{name: "list", description: "..."},
		{name: "open <n>", description: "..."},
		{name: "edit <id> <text>", description: "..."},
	}
	got := joinCommandNames(descriptors)
	want := "list, open, edit"
	if got != want {
		t.Fatalf("joinCommandNames = %q, want %q", got, want)
	}
}

func TestJoinCommandNamesEmpty(t *testing.T) {
	t.Parallel()
	if got := joinCommandNames(nil); got != "" {
		t.Fatalf("joinCommandNames(nil) = %q, want empty string", got)
	}
}
