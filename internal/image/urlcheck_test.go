package image

import (
	"errors"
	"testing"
	"time"
)

func TestValidateImageURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		strict  bool
		wantErr error
	}{
		{
			name:   "provider CDN host",
			url:    "https://oaidalleapiprodscus.blob.core.windows.net/private/img.png",
			strict: true,
		},
		{
			name:   "second provider CDN host",
			url:    "https://dalleprodsec.blob.core.windows.net/private/img.png",
			strict: true,
		},
		{
			name:    "http rejected",
			url:     "http://oaidalleapiprodscus.blob.core.windows.net/img.png",
			strict:  true,
			wantErr: ErrInvalidScheme,
		},
		{
			name:    "untrusted host in strict mode",
			url:     "https://evil.example.com/img.png",
			strict:  true,
			wantErr: ErrUntrustedHost,
		},
		{
			name:    "loopback literal",
			url:     "https://127.0.0.1/img.png",
			strict:  false,
			wantErr: ErrPrivateIP,
		},
		{
			name:    "rfc1918 literal",
			url:     "https://192.168.1.10/img.png",
			strict:  false,
			wantErr: ErrPrivateIP,
		},
		{
			name:    "link-local literal",
			url:     "https://169.254.169.254/latest/meta-data",
			strict:  false,
			wantErr: ErrPrivateIP,
		},
		{
			name:    "cgnat literal",
			url:     "https://100.64.0.1/img.png",
			strict:  false,
			wantErr: ErrPrivateIP,
		},
		{
			name:    "file scheme rejected",
			url:     "file:///etc/passwd",
			strict:  false,
			wantErr: ErrInvalidScheme,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateImageURL(tt.url, tt.strict)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("ValidateImageURL() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ValidateImageURL() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsAllowedHostSubdomains(t *testing.T) {
	if !isAllowedHost("cdn.oaidalleapiprodscus.blob.core.windows.net") {
		t.Error("subdomain of an allowed host should pass")
	}
	if isAllowedHost("oaidalleapiprodscus.blob.core.windows.net.evil.com") {
		t.Error("suffix-spoofed host should fail")
	}
}

func TestDefaultFilename(t *testing.T) {
	ts := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	got := DefaultFilename("abcdef12-3456-7890-abcd-ef1234567890", ts)
	want := "image-20240315-103000-abcdef12.png"
	if got != want {
		t.Errorf("DefaultFilename() = %q, want %q", got, want)
	}
}
