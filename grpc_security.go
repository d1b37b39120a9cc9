package main

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	configpkg "driftpursuit/rewind/internal/config"
	rewindgrpc "driftpursuit/rewind/internal/grpc"
	"driftpursuit/rewind/internal/logging"
)

// configureGRPCSecurity derives transport credentials and auth interceptors from cfg.
// TLS reuses the HTTP keypair; a client CA upgrades it to mutual TLS.
func configureGRPCSecurity(cfg *configpkg.Config, logger *logging.Logger) ([]grpc.ServerOption, error) {
	if cfg == nil {
		return nil, fmt.Errorf("grpc config required")
	}
	if logger == nil {
		logger = logging.L()
	}
	var opts []grpc.ServerOption

	if cfg.TLSCertPath != "" {
		creds, err := loadServerCredentials(cfg.TLSCertPath, cfg.TLSKeyPath, cfg.GRPCClientCAPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, grpc.Creds(creds))
		if cfg.GRPCClientCAPath != "" {
			logger.Info("gRPC mTLS enabled")
		} else {
			logger.Info("gRPC TLS enabled")
		}
	}
	if cfg.GRPCSharedSecret != "" {
		opts = append(opts,
			grpc.ChainUnaryInterceptor(rewindgrpc.SharedSecretUnaryInterceptor(cfg.GRPCSharedSecret)),
			grpc.ChainStreamInterceptor(rewindgrpc.SharedSecretStreamInterceptor(cfg.GRPCSharedSecret)),
		)
		logger.Info("gRPC shared-secret authentication enabled")
	}
	if len(opts) == 0 {
		logger.Warn("gRPC control service is unauthenticated")
	}
	return opts, nil
}

func loadServerCredentials(certPath, keyPath, caPath string) (credentials.TransportCredentials, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("load server keypair: %w", err)
	}
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if caPath != "" {
		caBytes, err := os.ReadFile(caPath)
		if err != nil {
			return nil, fmt.Errorf("read client ca: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, fmt.Errorf("failed to parse client ca bundle")
		}
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
		tlsConfig.ClientCAs = pool
	}
	return credentials.NewTLS(tlsConfig), nil
}
