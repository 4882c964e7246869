package storage_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/JaimeStill/warden/pkg/storage"
)

const azuriteConnString = "DefaultEndpointsProtocol=http;AccountName=wardenstore;AccountKey=Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==;BlobEndpoint=http://127.0.0.1:10000/wardenstore;"

func providers(t *testing.T) map[string]storage.System {
	t.Helper()

	configs := map[string]*storage.Config{
		"azure": {
			Provider:         storage.ProviderAzure,
			ContainerName:    "verifications",
			ConnectionString: azuriteConnString,
		},
		"minio": {
			Provider:      storage.ProviderMinio,
			ContainerName: "verifications",
			Endpoint:      "127.0.0.1:9000",
			AccessKey:     "minioadmin",
			SecretKey:     "minioadmin",
		},
		"memory": {
			Provider:      storage.ProviderMemory,
			ContainerName: "verifications",
		},
	}

	out := make(map[string]storage.System, len(configs))
	for name, cfg := range configs {
		sys, err := storage.New(cfg, slog.Default())
		if err != nil {
			t.Fatalf("New(%s) error = %v", name, err)
		}
		if sys == nil {
			t.Fatalf("New(%s) returned nil system", name)
		}
		out[name] = sys
	}
	return out
}

func TestNewInvalidConnectionString(t *testing.T) {
	cfg := &storage.Config{
		Provider:         storage.ProviderAzure,
		ContainerName:    "verifications",
		ConnectionString: "not-a-connection-string",
	}

	if _, err := storage.New(cfg, slog.Default()); err == nil {
		t.Fatal("expected error for invalid connection string, got nil")
	}
}

func TestNewUnknownProvider(t *testing.T) {
	cfg := &storage.Config{Provider: "ftp", ContainerName: "verifications"}

	if _, err := storage.New(cfg, slog.Default()); err == nil {
		t.Fatal("expected error for unknown provider, got nil")
	}
}

func TestKeyError(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory(slog.New(slog.DiscardHandler))

	_, err := mem.Download(ctx, "verifications/missing/original/a.pdf")

	var keyErr *storage.KeyError
	if !errors.As(err, &keyErr) {
		t.Fatalf("Download() error = %v, want *KeyError", err)
	}
	if keyErr.Op != "download" || keyErr.Key != "verifications/missing/original/a.pdf" {
		t.Errorf("KeyError = %+v", keyErr)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		t.Error("KeyError does not unwrap to ErrNotFound")
	}
	if want := "download verifications/missing/original/a.pdf: blob not found"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestKeyValidation(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{"empty key", "", storage.ErrEmptyKey},
		{"path traversal", "verifications/../secrets/key", storage.ErrInvalidKey},
		{"double dot in middle", "docs/..hidden/file.pdf", storage.ErrInvalidKey},
	}

	ctx := context.Background()

	for provider, sys := range providers(t) {
		for _, tt := range tests {
			t.Run(provider+"/"+tt.name, func(t *testing.T) {
				if err := sys.Upload(ctx, tt.key, bytes.NewReader(nil), "application/pdf"); !errors.Is(err, tt.wantErr) {
					t.Errorf("Upload() error = %v, want %v", err, tt.wantErr)
				}
				if _, err := sys.Download(ctx, tt.key); !errors.Is(err, tt.wantErr) {
					t.Errorf("Download() error = %v, want %v", err, tt.wantErr)
				}
				if err := sys.Delete(ctx, tt.key); !errors.Is(err, tt.wantErr) {
					t.Errorf("Delete() error = %v, want %v", err, tt.wantErr)
				}
				if _, err := sys.Exists(ctx, tt.key); !errors.Is(err, tt.wantErr) {
					t.Errorf("Exists() error = %v, want %v", err, tt.wantErr)
				}
			})
		}
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory(slog.Default())
	key := "verifications/abc/original/report.pdf"

	if ok, _ := mem.Exists(ctx, key); ok {
		t.Fatal("Exists() = true before upload")
	}

	if err := mem.Upload(ctx, key, bytes.NewReader([]byte("%PDF-1.7")), "application/pdf"); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	rc, err := mem.Download(ctx, key)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()

	if string(data) != "%PDF-1.7" {
		t.Errorf("Download() = %q", data)
	}
	if ct, _ := mem.ContentType(key); ct != "application/pdf" {
		t.Errorf("ContentType() = %q", ct)
	}

	if err := mem.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := mem.Download(ctx, key); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Download() after delete = %v, want ErrNotFound", err)
	}
	if err := mem.Delete(ctx, key); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Delete() twice = %v, want ErrNotFound", err)
	}
}
