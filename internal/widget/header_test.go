package widget

import (
	"testing"
)

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name        string
		header      string
		wantSession string
		wantVersion string
		wantErr     bool
	}{
		{
			name:        "session and version",
			header:      `session="sess_8f2a", version="1.4.0"`,
			wantSession: "sess_8f2a",
			wantVersion: "1.4.0",
		},
		{
			name:        "keys in either order",
			header:      `version="2.0.1", session="sess_1"`,
			wantSession: "sess_1",
			wantVersion: "2.0.1",
		},
		{
			name:        "missing version reads as zero",
			header:      `session="sess_1"`,
			wantSession: "sess_1",
			wantVersion: "0.0.0",
		},
		{
			name:        "extra keys ignored",
			header:      `session="sess_1", version="1.0.0", theme="dawn"`,
			wantSession: "sess_1",
			wantVersion: "1.0.0",
		},
		{
			name:        "surrounding whitespace",
			header:      `  session="sess_1"  `,
			wantSession: "sess_1",
			wantVersion: "0.0.0",
		},
		{
			name:    "empty header",
			header:  "",
			wantErr: true,
		},
		{
			name:    "missing session key",
			header:  `version="1.0.0"`,
			wantErr: true,
		},
		{
			name:    "unquoted session value",
			header:  `session=12345, version="1.0.0"`,
			wantErr: true,
		},
		{
			name:    "unterminated quote",
			header:  `session="sess_1`,
			wantErr: true,
		},
		{
			name:    "garbage version",
			header:  `session="sess_1", version="latest"`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseHeader(tt.header)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseHeader() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil {
				return
			}
			if got.SessionID != tt.wantSession || got.Version != tt.wantVersion {
				t.Errorf("ParseHeader() = %+v, want session=%q version=%q", got, tt.wantSession, tt.wantVersion)
			}
		})
	}
}

func TestSupported(t *testing.T) {
	tests := []struct {
		name       string
		version    string
		minVersion string
		want       bool
	}{
		{"at floor", "1.4.0", "1.4.0", true},
		{"above floor", "1.5.2", "1.4.0", true},
		{"major above floor", "2.0.0", "1.4.0", true},
		{"below floor", "1.3.9", "1.4.0", false},
		{"zero version below floor", "0.0.0", "1.0.0", false},
		{"empty floor accepts all", "0.0.0", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Client{SessionID: "sess_1", Version: tt.version}
			if got := c.Supported(tt.minVersion); got != tt.want {
				t.Errorf("Supported(%q) with version %q = %v, want %v", tt.minVersion, tt.version, got, tt.want)
			}
		})
	}
}
