package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/stonefire/cloudsync/internal/chunk"
	"github.com/stonefire/cloudsync/internal/reconcile"
	"github.com/stonefire/cloudsync/internal/scheduler"
)

var validate = validator.New()

// Validate checks struct tags first, then the rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	if _, err := scheduler.ParseTimeOfDay(cfg.Sync.Time); err != nil {
		return fmt.Errorf("sync.time: %w", err)
	}

	size, err := cfg.Sync.ChunkBytes()
	if err != nil {
		return fmt.Errorf("sync.%w", err)
	}
	if size < chunk.MinChunkSize {
		return fmt.Errorf("sync.chunk_size: %d is below the %d byte minimum part size", size, chunk.MinChunkSize)
	}

	if _, err := reconcile.NewFilter(cfg.Sync.Exclude); err != nil {
		return fmt.Errorf("sync.exclude: %w", err)
	}

	if err := cfg.Blob.Validate(); err != nil {
		return fmt.Errorf("blob: %w", err)
	}

	if err := cfg.Mail.Validate(); err != nil {
		return fmt.Errorf("mail: %w", err)
	}

	if (cfg.AuthServer.CertFile == "") != (cfg.AuthServer.KeyFile == "") {
		return fmt.Errorf("auth_server: cert_file and key_file must be set together")
	}

	return nil
}

func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
