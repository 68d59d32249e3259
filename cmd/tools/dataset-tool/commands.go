// cmd/tools/dataset-tool/commands.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"loan-club/internal/common/config"
	"loan-club/internal/lifecycle"
	"loan-club/internal/models"
	"loan-club/internal/store"
)

var (
	exportOut    string
	exportRedact bool
	importIn     string
	copyTo       string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the Dataset as indented JSON",
	Long: `Read the Dataset from the configured backend and write it to --out
(stdout when omitted). Password hashes are kept unless --redact is set.`,
	RunE: runExport,
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Replace the Dataset with a JSON file",
	Long: `Replace the Dataset with the content of --in, the same way the admin
save endpoint does: users without password fields keep their stored hash and
cleartext passwords are hashed before writing.`,
	RunE: runImport,
}

var copyCmd = &cobra.Command{
	Use:   "copy",
	Short: "Copy the Dataset to another backend",
	Long: `Read the Dataset from the configured backend and overwrite the Dataset
held by --to (file, github, postgres or redis), using the same configuration
file for the target's settings.`,
	RunE: runCopy,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file")
	exportCmd.Flags().BoolVar(&exportRedact, "redact", false, "strip password material")

	importCmd.Flags().StringVarP(&importIn, "in", "i", "", "input file")
	importCmd.MarkFlagRequired("in")

	copyCmd.Flags().StringVar(&copyTo, "to", "", "target backend")
	copyCmd.MarkFlagRequired("to")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, closeStore, err := openStore(ctx, cfg, newLogger())
	if err != nil {
		return err
	}
	defer closeStore()

	out := cmd.OutOrStdout()
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("create %s: %w", exportOut, err)
		}
		defer f.Close()
		out = f
	}

	n, err := exportDataset(ctx, st, out, exportRedact)
	if err != nil {
		return err
	}
	if exportOut != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d applications from %s to %s\n", n, st.Backend(), exportOut)
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger()
	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	f, err := os.Open(importIn)
	if err != nil {
		return fmt.Errorf("open %s: %w", importIn, err)
	}
	defer f.Close()

	ds, err := importDataset(ctx, newService(st, cfg.Admin.Secret, log), f)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d users and %d applications into %s\n",
		len(ds.Users), len(ds.Applications), st.Backend())
	return nil
}

func runCopy(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !validBackend(copyTo) {
		return fmt.Errorf("unknown target backend %q", copyTo)
	}
	if copyTo == cfg.Store.Backend {
		return fmt.Errorf("source and target are both %q", copyTo)
	}
	log := newLogger()

	src, closeSrc, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSrc()

	targetCfg := *cfg
	targetCfg.Store.Backend = copyTo
	dst, closeDst, err := openStore(ctx, &targetCfg, log)
	if err != nil {
		return err
	}
	defer closeDst()

	ds, err := copyDataset(ctx, src, dst)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Copied %d users and %d applications from %s to %s\n",
		len(ds.Users), len(ds.Applications), src.Backend(), dst.Backend())
	return nil
}

// =============================================================================
// Operations
// =============================================================================

// exportDataset writes the Dataset and returns how many applications it held.
func exportDataset(ctx context.Context, st *store.Store, w io.Writer, redact bool) (int, error) {
	ds, err := st.Load(ctx)
	if err != nil {
		return 0, err
	}
	if redact {
		ds = ds.Redacted()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ds); err != nil {
		return 0, fmt.Errorf("encode dataset: %w", err)
	}
	return len(ds.Applications), nil
}

func importDataset(ctx context.Context, svc *lifecycle.Service, r io.Reader) (*models.Dataset, error) {
	var ds models.Dataset
	if err := json.NewDecoder(r).Decode(&ds); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return svc.Save(ctx, &ds)
}

func copyDataset(ctx context.Context, src, dst *store.Store) (*models.Dataset, error) {
	ds, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}
	ctx = store.WithCommitMessage(ctx, fmt.Sprintf("Copy data.json from %s", src.Backend()))
	return dst.Replace(ctx, ds)
}

func validBackend(name string) bool {
	switch name {
	case config.BackendFile, config.BackendGitHub, config.BackendPostgres, config.BackendRedis:
		return true
	}
	return false
}
