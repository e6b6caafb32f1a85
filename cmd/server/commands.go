package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"certified/internal/client"
	"certified/internal/model"
	"certified/internal/session"
	"certified/internal/verify"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Inspect the content log",
}

var logListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print records in append order, one JSON object per line",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := kindFlag(cmd, false)
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context(), cfg, stderrLogger())
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.List(kind)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetEscapeHTML(false)
		for _, rec := range records {
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
		return nil
	},
}

var logIndexCmd = &cobra.Command{
	Use:   "index",
	Short: "Print the latest-wins projection of one record kind",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := kindFlag(cmd, true)
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context(), cfg, stderrLogger())
		if err != nil {
			return err
		}
		defer store.Close()

		idx, err := store.Index(kind)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(idx)
	},
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an ed25519 signing key",
	RunE: func(cmd *cobra.Command, args []string) error {
		signer, err := verify.GenerateSigner()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "signing_key: %s\n", signer.SeedHex())
		fmt.Fprintf(out, "public_key:  %s\n", signer.PublicKeyHex())
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a session token signed with session_secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		subject, _ := cmd.Flags().GetString("subject")
		admin, _ := cmd.Flags().GetBool("admin")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		if subject == "" {
			return fmt.Errorf("--subject is required")
		}
		token, err := session.NewJWT(cfg.SessionSecret).Issue(subject, admin, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify an artifact signature against a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		baseURL, _ := cmd.Flags().GetString("url")
		artifactPath, _ := cmd.Flags().GetString("artifact")
		signature, _ := cmd.Flags().GetString("signature")
		signatureFile, _ := cmd.Flags().GetString("signature-file")
		id, _ := cmd.Flags().GetString("id")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		req := model.VerifyRequest{ID: id, Signature: signature}
		if signatureFile != "" {
			raw, err := os.ReadFile(signatureFile)
			if err != nil {
				return fmt.Errorf("read signature: %w", err)
			}
			req.Signature = base64.StdEncoding.EncodeToString(raw)
		}
		if req.Signature == "" {
			return fmt.Errorf("--signature or --signature-file is required")
		}
		if artifactPath != "" {
			raw, err := os.ReadFile(artifactPath)
			if err != nil {
				return fmt.Errorf("read artifact: %w", err)
			}
			if !json.Valid(raw) {
				return fmt.Errorf("artifact %s is not valid JSON", artifactPath)
			}
			req.Artifact = raw
		}
		if !req.HasInlineArtifact() && id == "" {
			return fmt.Errorf("--artifact or --id is required")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		res, err := client.NewClient(baseURL, nil).Verify(ctx, req)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if res.OK {
			fmt.Fprintf(out, "%s signature valid  sha256=%s\n", colorSuccess("✓"), res.SHA256)
			return nil
		}
		fmt.Fprintf(out, "%s signature invalid (%s)\n", colorWarn("✗"), res.Reason)
		return fmt.Errorf("verification failed")
	},
}

func init() {
	logCmd.PersistentFlags().String("kind", "", "record kind: source, item or audit")
	logCmd.AddCommand(logListCmd, logIndexCmd)

	tokenCmd.Flags().String("subject", "", "session subject")
	tokenCmd.Flags().Bool("admin", false, "grant the admin flag")
	tokenCmd.Flags().Duration("ttl", 12*time.Hour, "token lifetime")

	verifyCmd.Flags().String("url", "http://127.0.0.1:8080", "server base URL")
	verifyCmd.Flags().String("artifact", "", "artifact JSON file")
	verifyCmd.Flags().String("signature", "", "signature, base64 or hex")
	verifyCmd.Flags().String("signature-file", "", "raw detached signature file (.sig)")
	verifyCmd.Flags().String("id", "", "stored artifact id")
	verifyCmd.Flags().Duration("timeout", 10*time.Second, "request timeout")
}

func kindFlag(cmd *cobra.Command, required bool) (model.Kind, error) {
	raw, _ := cmd.Flags().GetString("kind")
	if raw == "" {
		if required {
			return "", fmt.Errorf("--kind is required")
		}
		return "", nil
	}
	return model.ParseKind(raw)
}

// stderrLogger keeps stdout clean for piped output.
func stderrLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
