package cdfs

import "log/slog"

// packConfig holds configuration for archive creation.
type packConfig struct {
	sectorSize uint32
	cacheBytes int64
	checksums  bool
	logger     *slog.Logger
	progress   ProgressFunc
}

// PackOption configures archive creation.
type PackOption func(*packConfig)

// PackWithSectorSize sets the sector size in bytes. It must be a power of
// two in [512, 65536]. Zero uses DefaultSectorSize.
func PackWithSectorSize(n uint32) PackOption {
	return func(cfg *packConfig) {
		cfg.sectorSize = n
	}
}

// PackWithCacheSize sets the sector cache budget in bytes. The budget is
// translated into a resident sector count, minimum one sector. Zero uses
// DefaultCacheSize.
func PackWithCacheSize(n int64) PackOption {
	return func(cfg *packConfig) {
		cfg.cacheBytes = n
	}
}

// PackWithChecksums records a SHA-256 digest per file in the directory
// table, letting Verify check content integrity later. The table precedes
// file data in the stream, so enabling this reads every input twice.
func PackWithChecksums() PackOption {
	return func(cfg *packConfig) {
		cfg.checksums = true
	}
}

// PackWithLogger sets the logger for pack diagnostics. Nil discards.
func PackWithLogger(l *slog.Logger) PackOption {
	return func(cfg *packConfig) {
		cfg.logger = l
	}
}

// PackWithProgress sets a callback receiving per-file progress events.
func PackWithProgress(fn ProgressFunc) PackOption {
	return func(cfg *packConfig) {
		cfg.progress = fn
	}
}
