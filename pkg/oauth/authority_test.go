package oauth

import (
	"errors"
	"testing"
)

func TestNewAuthority(t *testing.T) {
	tests := []struct {
		name          string
		url           string
		opts          AuthorityOptions
		wantCanonical string
		wantHost      string
		wantTenant    string
		wantType      AuthorityType
		wantErr       bool
	}{
		{
			name:          "aad tenant",
			url:           "https://Login.MicrosoftOnline.com/contoso.onmicrosoft.com",
			wantCanonical: "https://login.microsoftonline.com/contoso.onmicrosoft.com/",
			wantHost:      "login.microsoftonline.com",
			wantTenant:    "contoso.onmicrosoft.com",
			wantType:      AuthorityTypeDefault,
		},
		{
			name:          "b2c tfp",
			url:           "https://contoso.b2clogin.com/tfp/contoso.onmicrosoft.com/B2C_1_SignIn/",
			wantCanonical: "https://contoso.b2clogin.com/tfp/contoso.onmicrosoft.com/B2C_1_SignIn/",
			wantHost:      "contoso.b2clogin.com",
			wantTenant:    "contoso.onmicrosoft.com",
			wantType:      AuthorityTypeB2C,
		},
		{
			name:          "b2c host without tfp",
			url:           "https://contoso.b2clogin.com/contoso.onmicrosoft.com/B2C_1_SignIn",
			wantCanonical: "https://contoso.b2clogin.com/contoso.onmicrosoft.com/B2C_1_SignIn/",
			wantHost:      "contoso.b2clogin.com",
			wantTenant:    "contoso.onmicrosoft.com",
			wantType:      AuthorityTypeB2C,
		},
		{
			name:          "adfs",
			url:           "https://fs.contoso.com/adfs/",
			wantCanonical: "https://fs.contoso.com/adfs/",
			wantHost:      "fs.contoso.com",
			wantType:      AuthorityTypeADFS,
		},
		{
			name:    "http rejected",
			url:     "http://login.microsoftonline.com/common",
			wantErr: true,
		},
		{
			name:          "http allowed",
			url:           "http://localhost:8080/common",
			opts:          AuthorityOptions{AllowInsecure: true},
			wantCanonical: "http://localhost:8080/common/",
			wantHost:      "localhost:8080",
			wantTenant:    "common",
			wantType:      AuthorityTypeDefault,
		},
		{
			name:    "missing host",
			url:     "https:///common",
			wantErr: true,
		},
		{
			name:    "unsupported scheme",
			url:     "ftp://login.microsoftonline.com/common",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewAuthority(tt.url, tt.opts)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAuthority) {
					t.Fatalf("Expected ErrInvalidAuthority, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewAuthority() failed: %v", err)
			}

			if a.CanonicalAuthority() != tt.wantCanonical {
				t.Errorf("CanonicalAuthority() = %q, want %q", a.CanonicalAuthority(), tt.wantCanonical)
			}
			if a.Host() != tt.wantHost {
				t.Errorf("Host() = %q, want %q", a.Host(), tt.wantHost)
			}
			if a.Tenant() != tt.wantTenant {
				t.Errorf("Tenant() = %q, want %q", a.Tenant(), tt.wantTenant)
			}
			if a.AuthorityType() != tt.wantType {
				t.Errorf("AuthorityType() = %q, want %q", a.AuthorityType(), tt.wantType)
			}
			if a.ProtocolMode() != ProtocolModeAAD {
				t.Errorf("Expected default protocol mode AAD, got %q", a.ProtocolMode())
			}
		})
	}
}

func TestAuthority_CloudDiscoveryMetadata(t *testing.T) {
	custom := CloudDiscoveryMetadata{
		PreferredNetwork: "login.contoso.com",
		PreferredCache:   "login.contoso.com",
		Aliases:          []string{"login.contoso.com", "sts.contoso.com"},
	}

	tests := []struct {
		name        string
		url         string
		opts        AuthorityOptions
		host        string
		wantNil     bool
		wantAliases int
	}{
		{
			name:        "public cloud alias",
			url:         "https://login.microsoftonline.com/common",
			host:        "login.windows.net",
			wantAliases: 4,
		},
		{
			name:        "case-insensitive host",
			url:         "https://login.microsoftonline.com/common",
			host:        "LOGIN.MICROSOFTONLINE.COM",
			wantAliases: 4,
		},
		{
			name:        "china cloud",
			url:         "https://login.chinacloudapi.cn/common",
			host:        "login.chinacloudapi.cn",
			wantAliases: 2,
		},
		{
			name:    "unknown host",
			url:     "https://login.unknown.com/common",
			host:    "login.unknown.com",
			wantNil: true,
		},
		{
			name:        "configured metadata",
			url:         "https://login.contoso.com/common",
			opts:        AuthorityOptions{CloudDiscoveryMetadata: []CloudDiscoveryMetadata{custom}},
			host:        "sts.contoso.com",
			wantAliases: 2,
		},
		{
			name:        "known authority",
			url:         "https://contoso.b2clogin.com/tfp/contoso.onmicrosoft.com/B2C_1_SignIn",
			opts:        AuthorityOptions{KnownAuthorities: []string{"contoso.b2clogin.com"}},
			host:        "contoso.b2clogin.com",
			wantAliases: 1,
		},
		{
			name:    "b2c host not known",
			url:     "https://contoso.b2clogin.com/tfp/contoso.onmicrosoft.com/B2C_1_SignIn",
			host:    "contoso.b2clogin.com",
			wantNil: true,
		},
		{
			name:        "oidc trusts own host",
			url:         "https://accounts.example.com/",
			opts:        AuthorityOptions{ProtocolMode: ProtocolModeOIDC},
			host:        "accounts.example.com",
			wantAliases: 1,
		},
		{
			name:    "oidc does not trust other hosts",
			url:     "https://accounts.example.com/",
			opts:    AuthorityOptions{ProtocolMode: ProtocolModeOIDC},
			host:    "login.microsoftonline.com",
			wantNil: true,
		},
		{
			name:        "adfs trusts own host",
			url:         "https://fs.contoso.com/adfs",
			host:        "fs.contoso.com",
			wantAliases: 1,
		},
		{
			name:    "empty host",
			url:     "https://login.microsoftonline.com/common",
			host:    "",
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewAuthority(tt.url, tt.opts)
			if err != nil {
				t.Fatalf("NewAuthority() failed: %v", err)
			}

			metadata := a.CloudDiscoveryMetadata(tt.host)
			if tt.wantNil {
				if metadata != nil {
					t.Errorf("Expected nil metadata, got %+v", metadata)
				}
				return
			}
			if metadata == nil {
				t.Fatal("Expected metadata")
			}
			if len(metadata.Aliases) != tt.wantAliases {
				t.Errorf("Expected %d aliases, got %v", tt.wantAliases, metadata.Aliases)
			}
			if !metadata.Contains(tt.host) {
				t.Errorf("Metadata does not contain %q", tt.host)
			}
		})
	}
}

func TestB2CAuthority(t *testing.T) {
	a, err := B2CAuthority("contoso.b2clogin.com", "contoso.onmicrosoft.com", "B2C_1_SignIn")
	if err != nil {
		t.Fatalf("B2CAuthority() failed: %v", err)
	}
	if a.AuthorityType() != AuthorityTypeB2C {
		t.Errorf("Expected B2C authority, got %q", a.AuthorityType())
	}
	if a.CloudDiscoveryMetadata("contoso.b2clogin.com") == nil {
		t.Error("Expected B2C host to be trusted")
	}

	if _, err := B2CAuthority("contoso.b2clogin.com", "", "B2C_1_SignIn"); !errors.Is(err, ErrInvalidAuthority) {
		t.Errorf("Expected ErrInvalidAuthority, got %v", err)
	}
}

func TestMicrosoftAuthority_DefaultsToCommon(t *testing.T) {
	a, err := MicrosoftAuthority("")
	if err != nil {
		t.Fatalf("MicrosoftAuthority() failed: %v", err)
	}
	if a.Tenant() != "common" {
		t.Errorf("Expected tenant 'common', got %q", a.Tenant())
	}
}
