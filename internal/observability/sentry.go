package observability

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryConfig memuat parameter pelaporan galat.
type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
}

// InitSentry mengaktifkan pelaporan galat bila DSN diisi. Fungsi flush yang
// dikembalikan harus dipanggil saat shutdown.
func InitSentry(cfg SentryConfig) (func(), error) {
	if cfg.DSN == "" {
		return func() {}, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
	}); err != nil {
		return func() {}, err
	}
	return func() { sentry.Flush(2 * time.Second) }, nil
}

// CaptureError melaporkan galat tak terduga. Tanpa klien Sentry aktif
// pemanggilan ini tidak melakukan apa pun.
func CaptureError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.CaptureException(err)
}
