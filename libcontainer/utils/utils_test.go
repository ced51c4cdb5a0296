package utils

import "testing"

func TestStringSliceContains(t *testing.T) {
	s := []string{"CAP_SYS_ADMIN", "CAP_NET_ADMIN"}
	if !StringSliceContains(s, "CAP_SYS_ADMIN") {
		t.Fatal("expected CAP_SYS_ADMIN to be present")
	}
	if StringSliceContains(s, "CAP_CHOWN") {
		t.Fatal("did not expect CAP_CHOWN to be present")
	}
}

func TestCleanPath(t *testing.T) {
	cases := map[string]string{
		"":              "",
		"rootfs":        "/rootfs",
		"/rootfs":       "/rootfs",
		"/a/../b":       "/b",
		"a/./b/../c":    "/a/c",
		"/a/b/":         "/a/b",
	}
	for in, want := range cases {
		if got := CleanPath(in); got != want {
			t.Errorf("CleanPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAnnotations(t *testing.T) {
	labels := []string{"bundle=/var/lib/containers/foo", "org.example.owner=alice", "malformed"}
	bundle, annotations := Annotations(labels)
	if bundle != "/var/lib/containers/foo" {
		t.Errorf("bundle = %q, want /var/lib/containers/foo", bundle)
	}
	if annotations["org.example.owner"] != "alice" {
		t.Errorf("annotations[owner] = %q, want alice", annotations["org.example.owner"])
	}
	if _, ok := annotations["bundle"]; ok {
		t.Error("bundle should not also appear in annotations")
	}
}
