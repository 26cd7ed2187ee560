package cmd

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/jpfielding/dcmjpeg.go/pkg/logging"
	"github.com/spf13/cobra"
)

func NewRoot(ctx context.Context, gitsha string) *cobra.Command {
	ctx = logging.AppendCtx(ctx, slog.String("session", uuid.NewString()))
	cmd := &cobra.Command{
		Use:   "dcmjpegctl",
		Short: "a CLI to encode, decode and inspect DICOM JPEG pixel data",
		Long:  "dcmjpegctl codes JPEG baseline, extended and lossless streams as carried in DICOM encapsulated pixel data",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFile, _ := cmd.Flags().GetString("log-file")
			logJSON, _ := cmd.Flags().GetBool("log-json")

			// Parse log level
			var level slog.Level
			levelErr := level.UnmarshalText([]byte(strings.ToUpper(logLevel)))
			if levelErr != nil {
				level = slog.LevelInfo
			}
			var w io.Writer = os.Stderr
			if logFile != "" {
				w = logging.RotatingFile(logFile, 10, 3)
			}
			slog.SetDefault(logging.Logger(w, logJSON, level))

			if levelErr != nil {
				slog.WarnContext(ctx, "Invalid log level, defaulting to INFO", "level", logLevel, "error", levelErr)
			}
		},
		Run: func(cmd *cobra.Command, args []string) {
			printCommandTree(cmd.OutOrStdout(), cmd, 0)
		},
	}
	cmd.AddCommand(
		NewVersionCmd(ctx, gitsha),
		NewDecodeCmd(ctx),
		NewEncodeCmd(ctx),
		NewAnalyzeCmd(ctx),
	)
	pf := cmd.PersistentFlags()
	pf.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	pf.String("log-file", "", "write logs to a rotating file instead of stderr")
	pf.Bool("log-json", false, "log as JSON")
	return cmd
}

func printCommandTree(w io.Writer, cmd *cobra.Command, indent int) {
	fmt.Fprintln(w, strings.Repeat("\t", indent), cmd.Use+":", cmd.Short)
	for _, subCmd := range cmd.Commands() {
		printCommandTree(w, subCmd, indent+1)
	}
}

func NewVersionCmd(ctx context.Context, gitsha string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "git sha for this build",
		Long:  "git sha for this build",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), gitsha)
		},
	}
	return cmd
}

// openInput opens a local path, "-" for stdin, or an http(s) URL.
func openInput(ctx context.Context, uri string, insecure, verbose bool) (io.ReadCloser, error) {
	uri = strings.TrimPrefix(uri, "file://")
	switch {
	case uri == "":
		return nil, fmt.Errorf("input is required")
	case uri == "-":
		return io.NopCloser(os.Stdin), nil
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		cl := http.DefaultClient
		if insecure {
			cl = &http.Client{
				Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}},
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := cl.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to download: %w", err)
		}
		if verbose {
			reqDump, _ := httputil.DumpRequest(req, true)
			os.Stderr.Write(reqDump)
			resDump, _ := httputil.DumpResponse(resp, false)
			os.Stderr.Write(resDump)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("failed to download: %s", resp.Status)
		}
		return resp.Body, nil
	default:
		f, err := os.Open(uri)
		if err != nil {
			return nil, fmt.Errorf("failed to open file: %w", err)
		}
		return f, nil
	}
}

// readInput reads all of uri.
func readInput(ctx context.Context, cmd *cobra.Command, uri string) ([]byte, error) {
	insecure, _ := cmd.Flags().GetBool("insecure")
	verbose, _ := cmd.Flags().GetBool("verbose")
	in, err := openInput(ctx, uri, insecure, verbose)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	return io.ReadAll(in)
}

// createOutput opens path for writing, "-" or "" for the command's stdout.
func createOutput(cmd *cobra.Command, path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopWriteCloser{cmd.OutOrStdout()}, nil
	}
	return os.Create(path)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func addInputFlags(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringP("uri", "u", "", "input path, - for stdin, or http(s) URL")
	pf.Bool("insecure", false, "skip TLS verification for https inputs")
	pf.BoolP("verbose", "v", false, "dump http request and response headers")
}
