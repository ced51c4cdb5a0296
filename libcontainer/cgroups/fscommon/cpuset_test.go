package fscommon

import "testing"

func TestParseCpuset(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: ""},
		{in: "0", want: "0"},
		{in: "0-3", want: "0-3"},
		{in: "0-3,5", want: "0-3,5"},
		{in: "5,0-3", want: "0-3,5"},
		{in: "1-1", want: "1"},
		{in: "3-1", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "0-", wantErr: true},
	}
	for _, c := range cases {
		set, err := ParseCpuset(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseCpuset(%q): want error, got none", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseCpuset(%q): unexpected error: %v", c.in, err)
			continue
		}
		if got := FormatCpuset(set); got != c.want {
			t.Errorf("ParseCpuset(%q) round-trip = %q, want %q", c.in, got, c.want)
		}
	}
}
