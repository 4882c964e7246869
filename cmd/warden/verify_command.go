package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/warden/internal/verification"
	"github.com/JaimeStill/warden/internal/verifications"
)

func newVerifyCommand(opts *options) *cobra.Command {
	var download bool
	var output string

	cmd := &cobra.Command{
		Use:   "verify <file>",
		Short: "Scan a document for sensitive information",
		Long: "Upload a document, follow its progress, and print the detected categories.\n" +
			"With --download the redacted copy is saved to the working directory.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "" {
				download = true
			}
			return runVerify(cmd.Context(), opts.client(), args[0], cmd.OutOrStdout(), cmd.ErrOrStderr(), download, output)
		},
	}

	cmd.Flags().BoolVarP(&download, "download", "d", false, "Save the redacted document after a successful scan")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Path for the redacted document (implies --download)")

	return cmd
}

func runVerify(ctx context.Context, c *client, path string, stdout, stderr io.Writer, download bool, output string) error {
	session, err := c.open(ctx)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.close(closeCtx, session.ID)
	}()

	conn, err := c.stream(ctx, session.ID)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Unblock the reader when the command is interrupted.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if _, err := c.submit(ctx, session.ID, path); err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("%s rejected: %s", filepath.Base(path), apiErr.Message)
		}
		return err
	}

	printer := newProgressPrinter(stderr, filepath.Base(path))
	final, err := await(conn, printer.update)
	printer.finish()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}

	if final.Status == verification.StatusError {
		return fmt.Errorf("verification failed: %s", final.Error)
	}

	printResult(stdout, final.Result)

	if download {
		saved, err := c.download(ctx, session.ID, verifications.ArtifactRedacted, output)
		if err != nil {
			return fmt.Errorf("download redacted document: %w", err)
		}
		fmt.Fprintf(stdout, "Redacted document saved to %s\n", saved)
	}

	return nil
}

func printResult(w io.Writer, r *verification.Result) {
	if r == nil {
		return
	}

	if len(r.Detections) == 0 {
		fmt.Fprintf(w, "No sensitive information found in %s (%.1fs)\n",
			r.Document.Filename, r.ProcessingTimeSeconds)
		return
	}

	rows := make([][]string, 0, len(r.Detections))
	for _, d := range r.Detections {
		rows = append(rows, []string{
			d.Category.Label(),
			strconv.Itoa(d.Count),
			fmt.Sprintf("%.0f%%", d.Confidence*100),
		})
	}

	fmt.Fprintln(w, renderTable(
		[]string{"Category", "Findings", "Confidence"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight},
	))
	fmt.Fprintf(w, "%d findings in %s (%.1fs)\n",
		r.TotalFindings(), r.Document.Filename, r.ProcessingTimeSeconds)
}
