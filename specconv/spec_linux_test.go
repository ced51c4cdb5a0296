package specconv

import "testing"

func TestCheckOCIVersion(t *testing.T) {
	cases := []struct {
		version string
		wantErr bool
	}{
		{version: "", wantErr: false},
		{version: "1.0.0", wantErr: false},
		{version: "1.0.2-dev", wantErr: false},
		{version: "2.0.0", wantErr: true},
		{version: "0.9.0", wantErr: true},
		{version: "not-a-version", wantErr: true},
	}
	for _, c := range cases {
		err := checkOCIVersion(c.version)
		if c.wantErr && err == nil {
			t.Errorf("checkOCIVersion(%q): want error, got none", c.version)
		}
		if !c.wantErr && err != nil {
			t.Errorf("checkOCIVersion(%q): unexpected error: %v", c.version, err)
		}
	}
}
