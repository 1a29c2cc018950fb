package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"stash/internal/auth"
	"stash/internal/backend"
	"stash/internal/blobstore"
	"stash/internal/config"
	"stash/internal/files"
	"stash/internal/mail"
	"stash/internal/store"
)

// services is the self-hosted backend wired from configuration.
type services struct {
	store *store.Store
	auth  *auth.Flow
	files *files.Service

	closers []io.Closer
}

func (s *services) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func openServices(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*services, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config not initialized")
	}
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path is required")
	}

	svc := &services{}

	mailer, outbox, err := newMailer(cfg.Mail, logger)
	if err != nil {
		return nil, err
	}
	if outbox != nil {
		svc.closers = append(svc.closers, outbox)
	}

	logger.Info("opening database", "path", cfg.DBPath)
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		_ = svc.Close()
		return nil, err
	}
	svc.closers = append(svc.closers, st)
	st.Configure(store.Options{
		Collections: []string{cfg.UsersCollection, cfg.FilesCollection},
		TokenTTL:    cfg.OTPTTL,
		SessionTTL:  cfg.SessionTTL,
		Sender:      mailer,
	})
	svc.store = st

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		_ = svc.Close()
		return nil, err
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey, err = ephemeralAPIKey()
		if err != nil {
			_ = svc.Close()
			return nil, err
		}
		logger.Warn("api_key is not configured; using an ephemeral key for this process")
	}

	factory := store.NewFactory(st, blobs, cfg.ProjectID, apiKey)
	svc.auth = auth.NewFlow(factory, auth.Config{
		Endpoint:        cfg.APIURL,
		ProjectID:       cfg.ProjectID,
		APIKey:          apiKey,
		UsersCollection: cfg.UsersCollection,
	}, logger)
	svc.files = files.NewService(factory, files.Config{
		Endpoint:        cfg.APIURL,
		ProjectID:       cfg.ProjectID,
		APIKey:          apiKey,
		FilesCollection: cfg.FilesCollection,
		BucketID:        cfg.BucketID,
		Quota:           cfg.QuotaBytes,
		PublicURL:       cfg.PublicURL,
	}, logger)
	return svc, nil
}

func newBlobStore(ctx context.Context, cfg *config.Config) (backend.Blobs, error) {
	buckets := blobstore.Buckets{cfg.BucketID}
	switch cfg.Blob.Backend {
	case config.BlobBackendS3:
		s3cfg := cfg.Blob.S3
		return blobstore.NewS3(ctx, blobstore.S3Config{
			Endpoint:        s3cfg.Endpoint,
			Region:          s3cfg.Region,
			Bucket:          s3cfg.Bucket,
			AccessKeyID:     s3cfg.AccessKeyID,
			SecretAccessKey: s3cfg.SecretAccessKey,
			UsePathStyle:    s3cfg.UsePathStyle,
		}, buckets)
	default:
		return blobstore.NewLocal(cfg.Blob.Dir, buckets)
	}
}

// newMailer returns the OTP sender and, in log mode, the outbox file to close
// on shutdown. Log mode never writes to the log streams: messages carry the
// code in clear.
func newMailer(cfg config.MailConfig, logger *slog.Logger) (store.OTPSender, io.Closer, error) {
	switch cfg.Mode {
	case config.MailModeSMTP:
		m, err := mail.NewSMTPMailer(cfg.SMTPAddr, cfg.SMTPUser, cfg.SMTPPassword, cfg.From)
		if err != nil {
			return nil, nil, err
		}
		return m, nil, nil
	default:
		if strings.TrimSpace(cfg.Outbox) == "" {
			return nil, nil, fmt.Errorf("mail.outbox is required when mail.mode is %q", config.MailModeLog)
		}
		f, err := os.OpenFile(cfg.Outbox, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open mail outbox: %w", err)
		}
		logger.Warn("sign-in codes are written to the outbox file, not mailed", "component", "mail", "outbox", cfg.Outbox)
		return &mail.LogMailer{From: cfg.From, Outbox: f, Logger: logger}, f, nil
	}
}

func ephemeralAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
